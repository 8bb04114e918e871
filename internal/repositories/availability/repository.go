// Package availability persists availability windows
package availability

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
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var _ reconcile.Store[*models.AvailabilityWindow] = (*Repository)(nil)

var columns = []string{
	"id", "user_id", "starts_at", "ends_at",
	"data", "created_at", "updated_at", "deleted_at",
}

// Repository handles availability window persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new availability repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an active availability window by ID, nil when not found or deleted
func (r *Repository) Get(ctx context.Context, userID, id string) (*models.AvailabilityWindow, error) {
	ctx, span := tracing.StartSpan(ctx, "availability.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("availability_windows")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var window models.AvailabilityWindow
	if err := database.Querier(ctx, r.db).GetContext(ctx, &window, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to get availability window")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get availability window")
	}
	return &window, nil
}

// GetForUpdate retrieves an active availability window with a row lock. Must
// run inside a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, userID, id string) (*models.AvailabilityWindow, error) {
	ctx, span := tracing.StartSpan(ctx, "availability.Repository.GetForUpdate")
	defer span.End()

	query := `
		SELECT id, user_id, starts_at, ends_at,
		       data, created_at, updated_at, deleted_at
		FROM availability_windows
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`

	var window models.AvailabilityWindow
	if err := database.Querier(ctx, r.db).GetContext(ctx, &window, query, id, userID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to lock availability window")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get availability window")
	}
	return &window, nil
}

// FindCandidates returns the user's active availability windows for duplicate detection
func (r *Repository) FindCandidates(ctx context.Context, userID string, limit int) ([]*models.AvailabilityWindow, error) {
	ctx, span := tracing.StartSpan(ctx, "availability.Repository.FindCandidates")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("availability_windows")
	sb.Where(
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var windows []*models.AvailabilityWindow
	if err := database.Querier(ctx, r.db).SelectContext(ctx, &windows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to find availability window candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find availability windows")
	}
	return windows, nil
}

// Insert creates a new availability window, assigning its ID and created_at
func (r *Repository) Insert(ctx context.Context, window *models.AvailabilityWindow) error {
	ctx, span := tracing.StartSpan(ctx, "availability.Repository.Insert")
	defer span.End()

	if window.ID == "" {
		window.ID = uuid.New().String()
	}
	window.CreatedAt = time.Now().UTC()
	if window.UpdatedAt.IsZero() {
		window.UpdatedAt = window.CreatedAt
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("availability_windows")
	ib.Cols("id", "user_id", "starts_at", "ends_at", "data", "created_at", "updated_at")
	ib.Values(window.ID, window.UserID, window.StartsAt, window.EndsAt, window.Data, window.CreatedAt, window.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": window.ID, "user_id": window.UserID}).Error("Failed to insert availability window")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create availability window")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": window.ID}).Info("Created availability window")
	return nil
}

// Update persists merged data and extracted columns for an existing window
func (r *Repository) Update(ctx context.Context, window *models.AvailabilityWindow) error {
	ctx, span := tracing.StartSpan(ctx, "availability.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("availability_windows")
	ub.Set(
		ub.Assign("starts_at", window.StartsAt),
		ub.Assign("ends_at", window.EndsAt),
		ub.Assign("data", window.Data),
		ub.Assign("updated_at", window.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", window.ID),
		ub.Equal("user_id", window.UserID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": window.ID, "user_id": window.UserID}).Error("Failed to update availability window")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update availability window")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "availability window %s not found", window.ID)
	}
	return nil
}

// SoftDelete marks an availability window deleted. Returns false when the
// window is already deleted or never existed.
func (r *Repository) SoftDelete(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "availability.Repository.SoftDelete")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("availability_windows")
	ub.Set(
		ub.Assign("deleted_at", at),
		ub.Assign("updated_at", at),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("user_id", userID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to soft delete availability window")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete availability window")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Soft deleted availability window")
	}
	return rows > 0, nil
}
