// Package servicecatalog persists the services a user offers
package servicecatalog

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

var _ reconcile.Store[*models.ServiceEntry] = (*Repository)(nil)

var columns = []string{
	"id", "user_id", "name",
	"data", "created_at", "updated_at", "deleted_at",
}

// Repository handles service entry persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new service catalog repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an active service entry by ID, nil when not found or deleted
func (r *Repository) Get(ctx context.Context, userID, id string) (*models.ServiceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "servicecatalog.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("service_entries")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var entry models.ServiceEntry
	if err := database.Querier(ctx, r.db).GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to get service entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get service entry")
	}
	return &entry, nil
}

// GetForUpdate retrieves an active service entry with a row lock. Must run
// inside a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, userID, id string) (*models.ServiceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "servicecatalog.Repository.GetForUpdate")
	defer span.End()

	query := `
		SELECT id, user_id, name,
		       data, created_at, updated_at, deleted_at
		FROM service_entries
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`

	var entry models.ServiceEntry
	if err := database.Querier(ctx, r.db).GetContext(ctx, &entry, query, id, userID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to lock service entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get service entry")
	}
	return &entry, nil
}

// FindCandidates returns the user's active service entries for duplicate detection
func (r *Repository) FindCandidates(ctx context.Context, userID string, limit int) ([]*models.ServiceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "servicecatalog.Repository.FindCandidates")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("service_entries")
	sb.Where(
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entries []*models.ServiceEntry
	if err := database.Querier(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to find service entry candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find service entries")
	}
	return entries, nil
}

// Insert creates a new service entry, assigning its ID and created_at
func (r *Repository) Insert(ctx context.Context, entry *models.ServiceEntry) error {
	ctx, span := tracing.StartSpan(ctx, "servicecatalog.Repository.Insert")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("service_entries")
	ib.Cols("id", "user_id", "name", "data", "created_at", "updated_at")
	ib.Values(entry.ID, entry.UserID, entry.Name, entry.Data, entry.CreatedAt, entry.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": entry.ID, "user_id": entry.UserID}).Error("Failed to insert service entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create service entry")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": entry.ID}).Info("Created service entry")
	return nil
}

// Update persists merged data and extracted columns for an existing service entry
func (r *Repository) Update(ctx context.Context, entry *models.ServiceEntry) error {
	ctx, span := tracing.StartSpan(ctx, "servicecatalog.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("service_entries")
	ub.Set(
		ub.Assign("name", entry.Name),
		ub.Assign("data", entry.Data),
		ub.Assign("updated_at", entry.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", entry.ID),
		ub.Equal("user_id", entry.UserID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": entry.ID, "user_id": entry.UserID}).Error("Failed to update service entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update service entry")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "service entry %s not found", entry.ID)
	}
	return nil
}

// SoftDelete marks a service entry deleted. Returns false when the entry is
// already deleted or never existed.
func (r *Repository) SoftDelete(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "servicecatalog.Repository.SoftDelete")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("service_entries")
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
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to soft delete service entry")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete service entry")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Soft deleted service entry")
	}
	return rows > 0, nil
}
