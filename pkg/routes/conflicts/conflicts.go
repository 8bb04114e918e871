// Package conflicts exposes the conflict review queue and resolution endpoint
package conflicts

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
)

// Register registers conflict routes
func Register(g *echo.Group) {
	g.GET("", ListConflicts)
	g.POST("/:id/resolve", ResolveConflict)
}

// ListConflicts lists the caller's pending conflicts
func ListConflicts(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appcontext.GetUserID(ctx)

	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "X-User-ID header is required")
	}

	var entity *models.EntityKind
	if raw := c.QueryParam("entity"); raw != "" {
		kind := models.EntityKind(raw)
		if !models.KnownEntityKind(kind) {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity kind %q", raw)
		}
		entity = &kind
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*ledger.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.ListConflicts(ctx, userID, entity, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ResolveRequest is the resolution body for one conflicted ledger entry
type ResolveRequest struct {
	ResolutionKind  models.ResolutionKind `json:"resolution_kind" validate:"required,oneof=client_wins server_wins manual"`
	ResolvedPayload json.RawMessage       `json:"resolved_payload,omitempty"`
	ResolvedBy      string                `json:"resolved_by,omitempty"`
}

// ResolveResponse reports whether this call settled the conflict. Resolved is
// false when the entry was already resolved by an earlier call.
type ResolveResponse struct {
	Resolved      bool   `json:"resolved"`
	LedgerEntryID string `json:"ledger_entry_id"`
}

// ResolveConflict applies a resolution policy to one conflicted ledger entry
func ResolveConflict(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appcontext.GetUserID(ctx)

	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "X-User-ID header is required")
	}

	ledgerEntryID := c.Param("id")
	if ledgerEntryID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "ledger entry id is required")
	}

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = userID
	}

	ctx, resolver, err := ectoinject.GetContext[*reconcile.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolved, err := resolver.ResolveConflict(ctx, userID, ledgerEntryID, req.ResolutionKind, req.ResolvedPayload, resolvedBy)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ResolveResponse{Resolved: resolved, LedgerEntryID: ledgerEntryID})
}
