// Package sync exposes the mutation batch and status endpoints
package sync

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/status"
)

// MaxBatchSize bounds one submission; larger offline histories are split by
// the client
const MaxBatchSize = 500

// Register registers sync routes
func Register(g *echo.Group) {
	g.POST("/mutations", SubmitMutations)
	g.GET("/status", GetStatus)
}

// BatchRequest is the submission body for a batch of offline mutations
type BatchRequest struct {
	Mutations []models.MutationRequest `json:"mutations"`
}

// BatchResponse carries one outcome per submitted mutation, in order
type BatchResponse struct {
	Outcomes []models.SyncOutcome `json:"outcomes"`
}

// SubmitMutations replays a batch of offline mutations for the caller
func SubmitMutations(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appcontext.GetUserID(ctx)
	deviceID := appcontext.GetDeviceID(ctx)

	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "X-User-ID header is required")
	}

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Mutations) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "mutations must not be empty")
	}
	if len(req.Mutations) > MaxBatchSize {
		return httperror.NewHTTPErrorf(http.StatusRequestEntityTooLarge, "batch exceeds %d mutations", MaxBatchSize)
	}

	ctx, dispatcher, err := ectoinject.GetContext[*reconcile.Dispatcher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	outcomes := dispatcher.ReconcileBatch(ctx, userID, deviceID, req.Mutations)

	return c.JSON(http.StatusOK, BatchResponse{Outcomes: outcomes})
}

// GetStatus returns the caller's sync status snapshot
func GetStatus(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appcontext.GetUserID(ctx)

	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "X-User-ID header is required")
	}

	ctx, reporter, err := ectoinject.GetContext[*status.Reporter](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	return c.JSON(http.StatusOK, reporter.GetStatus(ctx, userID))
}
