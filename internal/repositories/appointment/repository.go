// Package appointment persists appointment records
package appointment

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

var _ reconcile.Store[*models.Appointment] = (*Repository)(nil)

var columns = []string{
	"id", "user_id", "starts_at", "customer_name", "status",
	"data", "created_at", "updated_at", "deleted_at",
}

// Repository handles appointment persistence. All reads and writes join an
// open transaction in the context when one exists.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new appointment repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an active appointment by ID, nil when not found or deleted
func (r *Repository) Get(ctx context.Context, userID, id string) (*models.Appointment, error) {
	ctx, span := tracing.StartSpan(ctx, "appointment.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("appointments")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var appt models.Appointment
	if err := database.Querier(ctx, r.db).GetContext(ctx, &appt, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to get appointment")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get appointment")
	}
	return &appt, nil
}

// GetForUpdate retrieves an active appointment with a row lock so the
// staleness check and the subsequent write see the same row. Must run inside
// a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, userID, id string) (*models.Appointment, error) {
	ctx, span := tracing.StartSpan(ctx, "appointment.Repository.GetForUpdate")
	defer span.End()

	query := `
		SELECT id, user_id, starts_at, customer_name, status,
		       data, created_at, updated_at, deleted_at
		FROM appointments
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`

	var appt models.Appointment
	if err := database.Querier(ctx, r.db).GetContext(ctx, &appt, query, id, userID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to lock appointment")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get appointment")
	}
	return &appt, nil
}

// FindCandidates returns the user's most recently updated active appointments
// for duplicate detection
func (r *Repository) FindCandidates(ctx context.Context, userID string, limit int) ([]*models.Appointment, error) {
	ctx, span := tracing.StartSpan(ctx, "appointment.Repository.FindCandidates")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("appointments")
	sb.Where(
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var appts []*models.Appointment
	if err := database.Querier(ctx, r.db).SelectContext(ctx, &appts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to find appointment candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find appointments")
	}
	return appts, nil
}

// Insert creates a new appointment, assigning its ID and created_at
func (r *Repository) Insert(ctx context.Context, appt *models.Appointment) error {
	ctx, span := tracing.StartSpan(ctx, "appointment.Repository.Insert")
	defer span.End()

	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	appt.CreatedAt = time.Now().UTC()
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = appt.CreatedAt
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("appointments")
	ib.Cols("id", "user_id", "starts_at", "customer_name", "status", "data", "created_at", "updated_at")
	ib.Values(appt.ID, appt.UserID, appt.StartsAt, appt.CustomerName, appt.Status, appt.Data, appt.CreatedAt, appt.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": appt.ID, "user_id": appt.UserID}).Error("Failed to insert appointment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create appointment")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": appt.ID}).Info("Created appointment")
	return nil
}

// Update persists merged data and extracted columns for an existing appointment
func (r *Repository) Update(ctx context.Context, appt *models.Appointment) error {
	ctx, span := tracing.StartSpan(ctx, "appointment.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("appointments")
	ub.Set(
		ub.Assign("starts_at", appt.StartsAt),
		ub.Assign("customer_name", appt.CustomerName),
		ub.Assign("status", appt.Status),
		ub.Assign("data", appt.Data),
		ub.Assign("updated_at", appt.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", appt.ID),
		ub.Equal("user_id", appt.UserID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": appt.ID, "user_id": appt.UserID}).Error("Failed to update appointment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update appointment")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "appointment %s not found", appt.ID)
	}
	return nil
}

// SoftDelete cancels an appointment. Returns false when the appointment is
// already deleted or never existed, which callers treat as an idempotent
// success.
func (r *Repository) SoftDelete(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "appointment.Repository.SoftDelete")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("appointments")
	ub.Set(
		ub.Assign("status", models.AppointmentStatusCancelled),
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
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to soft delete appointment")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete appointment")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Cancelled appointment")
	}
	return rows > 0, nil
}
