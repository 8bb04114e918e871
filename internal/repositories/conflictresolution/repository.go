// Package conflictresolution persists resolution decisions for conflicted
// ledger entries. At most one resolution exists per entry; the unique
// constraint on ledger_entry_id makes repeated resolution attempts no-ops.
package conflictresolution

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
	"id", "ledger_entry_id", "user_id", "kind",
	"resolved_payload", "resolved_by", "resolved_at",
}

// Repository handles conflict resolution persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new conflict resolution repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert records a resolution decision. Returns false without error when the
// entry already has a resolution. Joins an open transaction in the context.
func (r *Repository) Insert(ctx context.Context, resolution *models.ConflictResolution) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "conflictresolution.Repository.Insert")
	defer span.End()

	resolution.ID = uuid.New().String()
	resolution.ResolvedAt = time.Now().UTC()

	ib := database.NewInsertBuilder().
		InsertInto("conflict_resolutions").
		Cols(columns...).
		Values(
			resolution.ID, resolution.LedgerEntryID, resolution.UserID, resolution.Kind,
			resolution.ResolvedPayload, resolution.ResolvedBy, resolution.ResolvedAt,
		).
		OnConflictDoNothing("ledger_entry_id")
	sql, args := ib.Build()

	result, err := database.Querier(ctx, r.db).ExecContext(ctx, sql, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ledger_entry_id": resolution.LedgerEntryID, "kind": resolution.Kind}).Error("Failed to insert conflict resolution")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record resolution")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetByLedgerEntry retrieves the resolution for a ledger entry, nil when none exists
func (r *Repository) GetByLedgerEntry(ctx context.Context, userID, ledgerEntryID string) (*models.ConflictResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "conflictresolution.Repository.GetByLedgerEntry")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("conflict_resolutions")
	sb.Where(
		sb.Equal("ledger_entry_id", ledgerEntryID),
		sb.Equal("user_id", userID),
	)

	query, args := sb.Build()
	var resolution models.ConflictResolution
	if err := database.Querier(ctx, r.db).GetContext(ctx, &resolution, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ledger_entry_id": ledgerEntryID, "user_id": userID}).Error("Failed to get conflict resolution")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution")
	}
	return &resolution, nil
}
