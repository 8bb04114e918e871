// Package ledger persists the per-mutation reconciliation ledger. Entries are
// append-then-transition: a pending row is written before reconciliation and
// moved to exactly one terminal status afterwards. Rows are never deleted.
package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"id", "user_id", "device_id", "action", "entity", "entity_ref",
	"status", "conflict_reason", "error_message",
	"client_timestamp", "server_timestamp", "payload_snapshot",
}

// Repository handles sync ledger persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert writes a new pending entry. The entry's ID and server timestamp are
// assigned here. Runs on the base connection even when a transaction is open
// in the context, so the attempt is recorded before the mutation is applied.
func (r *Repository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.Insert")
	defer span.End()

	entry.ID = uuid.New().String()
	entry.Status = models.LedgerStatusPending
	entry.ServerTimestamp = time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("sync_ledger")
	ib.Cols(columns...)
	ib.Values(
		entry.ID, entry.UserID, entry.DeviceID, entry.Action, entry.Entity, entry.EntityRef,
		entry.Status, entry.ConflictReason, entry.ErrorMessage,
		entry.ClientTimestamp, entry.ServerTimestamp, entry.PayloadSnapshot,
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": entry.UserID, "entity": entry.Entity, "action": entry.Action}).Error("Failed to insert ledger entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record sync attempt")
	}
	return nil
}

// Get retrieves a ledger entry by ID scoped to its owner
func (r *Repository) Get(ctx context.Context, userID, id string) (*models.LedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("sync_ledger")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("user_id", userID),
	)

	query, args := sb.Build()
	var entry models.LedgerEntry
	if err := database.Querier(ctx, r.db).GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "ledger entry %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to get ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ledger entry")
	}
	return &entry, nil
}

// GetForUpdate retrieves a ledger entry with a row lock so concurrent
// resolutions of the same conflict serialize. Must run inside a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, userID, id string) (*models.LedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.GetForUpdate")
	defer span.End()

	query := `
		SELECT id, user_id, device_id, action, entity, entity_ref,
		       status, conflict_reason, error_message,
		       client_timestamp, server_timestamp, payload_snapshot
		FROM sync_ledger
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`

	var entry models.LedgerEntry
	if err := database.Querier(ctx, r.db).GetContext(ctx, &entry, query, id, userID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "ledger entry %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to lock ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ledger entry")
	}
	return &entry, nil
}

// MarkSuccess transitions a pending or conflicted entry to success.
// Joins an open transaction in the context when one exists.
func (r *Repository) MarkSuccess(ctx context.Context, id string) error {
	return r.transition(ctx, id, models.LedgerStatusSuccess, nil, nil,
		[]models.LedgerStatus{models.LedgerStatusPending, models.LedgerStatusConflict})
}

// MarkConflict transitions a pending entry to conflict with a reason
func (r *Repository) MarkConflict(ctx context.Context, id, reason string) error {
	return r.transition(ctx, id, models.LedgerStatusConflict, &reason, nil,
		[]models.LedgerStatus{models.LedgerStatusPending})
}

// MarkError transitions a pending entry to error. Runs after the mutation's
// transaction rolled back, so it always uses the base connection.
func (r *Repository) MarkError(ctx context.Context, id, message string) error {
	return r.transition(ctx, id, models.LedgerStatusError, nil, &message,
		[]models.LedgerStatus{models.LedgerStatusPending})
}

func (r *Repository) transition(ctx context.Context, id string, to models.LedgerStatus, reason, errMsg *string, from []models.LedgerStatus) error {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.transition")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("sync_ledger")
	assigns := []string{
		ub.Assign("status", to),
		ub.Assign("server_timestamp", time.Now().UTC()),
	}
	if reason != nil {
		assigns = append(assigns, ub.Assign("conflict_reason", *reason))
	}
	if errMsg != nil {
		assigns = append(assigns, ub.Assign("error_message", *errMsg))
	}
	ub.Set(assigns...)
	ub.Where(
		ub.Equal("id", id),
		ub.In("status", sqlbuilder.Flatten(from)...),
	)

	query, args := ub.Build()
	result, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": to}).Error("Failed to transition ledger entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update ledger entry")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "ledger entry %s is not in a transitionable status", id)
	}
	return nil
}

// ListConflicts retrieves the paginated conflict review queue for a user
func (r *Repository) ListConflicts(ctx context.Context, userID string, entity *models.EntityKind, page, pageSize int) (*models.ConflictListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.ListConflicts")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("sync_ledger")
	countWhere := []string{
		countSb.Equal("user_id", userID),
		countSb.Equal("status", models.LedgerStatusConflict),
	}
	if entity != nil {
		countWhere = append(countWhere, countSb.Equal("entity", *entity))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to count conflicts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count conflicts")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "entity", "entity_ref", "action", "conflict_reason", "client_timestamp", "payload_snapshot")
	sb.From("sync_ledger")
	where := []string{
		sb.Equal("user_id", userID),
		sb.Equal("status", models.LedgerStatusConflict),
	}
	if entity != nil {
		where = append(where, sb.Equal("entity", *entity))
	}
	sb.Where(where...)
	sb.OrderBy("server_timestamp ASC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var items []models.PendingConflict
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID, "page": page, "page_size": pageSize}).Error("Failed to list conflicts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conflicts")
	}

	return &models.ConflictListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// statusRow is the aggregate projection backing Status
type statusRow struct {
	LastSuccessfulSync *time.Time `db:"last_successful_sync"`
	PendingChangeCount int        `db:"pending_change_count"`
	ConflictCount      int        `db:"conflict_count"`
}

// Status computes the per-user sync status from the ledger. A user with no
// ledger history gets a zero snapshot rather than an error.
func (r *Repository) Status(ctx context.Context, userID string) (*models.SyncStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.Status")
	defer span.End()

	// pending_change_count counts entries a client still has to act on:
	// unresolved conflicts plus errored mutations awaiting re-submission.
	query := `
		SELECT
			MAX(server_timestamp) FILTER (WHERE status = 'success') AS last_successful_sync,
			COUNT(*) FILTER (WHERE status IN ('conflict', 'error')) AS pending_change_count,
			COUNT(*) FILTER (WHERE status = 'conflict') AS conflict_count
		FROM sync_ledger
		WHERE user_id = $1
	`

	var row statusRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to compute sync status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute sync status")
	}

	return &models.SyncStatus{
		LastSuccessfulSync:     row.LastSuccessfulSync,
		PendingChangeCount:     row.PendingChangeCount,
		HasUnresolvedConflicts: row.ConflictCount > 0,
	}, nil
}
