// Package customer persists customer records
package customer

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

var _ reconcile.Store[*models.Customer] = (*Repository)(nil)

var columns = []string{
	"id", "user_id", "name", "email", "phone",
	"data", "created_at", "updated_at", "deleted_at",
}

// Repository handles customer persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new customer repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an active customer by ID, nil when not found or deleted
func (r *Repository) Get(ctx context.Context, userID, id string) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("customers")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var cust models.Customer
	if err := database.Querier(ctx, r.db).GetContext(ctx, &cust, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to get customer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get customer")
	}
	return &cust, nil
}

// GetForUpdate retrieves an active customer with a row lock. Must run inside
// a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, userID, id string) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.GetForUpdate")
	defer span.End()

	query := `
		SELECT id, user_id, name, email, phone,
		       data, created_at, updated_at, deleted_at
		FROM customers
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`

	var cust models.Customer
	if err := database.Querier(ctx, r.db).GetContext(ctx, &cust, query, id, userID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to lock customer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get customer")
	}
	return &cust, nil
}

// FindCandidates returns the user's most recently updated active customers
// for duplicate detection
func (r *Repository) FindCandidates(ctx context.Context, userID string, limit int) ([]*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.FindCandidates")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("customers")
	sb.Where(
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var custs []*models.Customer
	if err := database.Querier(ctx, r.db).SelectContext(ctx, &custs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to find customer candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find customers")
	}
	return custs, nil
}

// Insert creates a new customer, assigning its ID and created_at
func (r *Repository) Insert(ctx context.Context, cust *models.Customer) error {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.Insert")
	defer span.End()

	if cust.ID == "" {
		cust.ID = uuid.New().String()
	}
	cust.CreatedAt = time.Now().UTC()
	if cust.UpdatedAt.IsZero() {
		cust.UpdatedAt = cust.CreatedAt
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("customers")
	ib.Cols("id", "user_id", "name", "email", "phone", "data", "created_at", "updated_at")
	ib.Values(cust.ID, cust.UserID, cust.Name, cust.Email, cust.Phone, cust.Data, cust.CreatedAt, cust.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": cust.ID, "user_id": cust.UserID}).Error("Failed to insert customer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create customer")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": cust.ID}).Info("Created customer")
	return nil
}

// Update persists merged data and extracted columns for an existing customer
func (r *Repository) Update(ctx context.Context, cust *models.Customer) error {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("customers")
	ub.Set(
		ub.Assign("name", cust.Name),
		ub.Assign("email", cust.Email),
		ub.Assign("phone", cust.Phone),
		ub.Assign("data", cust.Data),
		ub.Assign("updated_at", cust.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", cust.ID),
		ub.Equal("user_id", cust.UserID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Querier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": cust.ID, "user_id": cust.UserID}).Error("Failed to update customer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update customer")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "customer %s not found", cust.ID)
	}
	return nil
}

// SoftDelete marks a customer deleted. Returns false when the customer is
// already deleted or never existed.
func (r *Repository) SoftDelete(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.SoftDelete")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("customers")
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
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "user_id": userID}).Error("Failed to soft delete customer")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete customer")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Soft deleted customer")
	}
	return rows > 0, nil
}
