package reconcile

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Resolver settles conflicted ledger entries. Resolution re-invokes the
// original entity reconciler in force mode rather than carrying its own
// write logic, so resolution and replay can never diverge.
type Resolver struct {
	db          database.DB
	ledger      LedgerStore
	resolutions ResolutionStore
	reconcilers Registry
	telemetry   Telemetry
	invalidator StatusInvalidator
	logger      ectologger.Logger
}

// NewResolver creates a resolver. telemetry and invalidator may be nil.
func NewResolver(
	db database.DB,
	ledger LedgerStore,
	resolutions ResolutionStore,
	reconcilers Registry,
	telemetry Telemetry,
	invalidator StatusInvalidator,
	logger ectologger.Logger,
) *Resolver {
	return &Resolver{
		db:          db,
		ledger:      ledger,
		resolutions: resolutions,
		reconcilers: reconcilers,
		telemetry:   telemetry,
		invalidator: invalidator,
		logger:      logger,
	}
}

// ResolveConflict applies a resolution policy to a conflicted ledger entry.
// Returns false without error when the entry was already resolved, so
// repeated calls are no-ops. The decision row, any forced domain write, and
// the ledger transition commit atomically.
func (r *Resolver) ResolveConflict(ctx context.Context, userID, ledgerEntryID string, kind models.ResolutionKind, resolvedPayload json.RawMessage, resolvedBy string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Resolver.ResolveConflict")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"ledger_entry_id": ledgerEntryID,
		"user_id":         userID,
		"kind":            kind,
	})

	if !models.KnownResolutionKind(kind) {
		return false, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown resolution kind %q", kind)
	}
	if kind == models.ResolutionManual && len(resolvedPayload) == 0 {
		return false, httperror.NewHTTPError(http.StatusBadRequest, "manual resolution requires a resolved payload")
	}

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin resolution")
	}
	defer tx.Rollback(ctx)

	entry, err := r.ledger.GetForUpdate(txCtx, userID, ledgerEntryID)
	if err != nil {
		return false, err
	}
	if entry.Status != models.LedgerStatusConflict {
		log.Info("Ledger entry already resolved")
		return false, nil
	}

	resolution := &models.ConflictResolution{
		LedgerEntryID:   entry.ID,
		UserID:          userID,
		Kind:            kind,
		ResolvedPayload: resolvedPayload,
		ResolvedBy:      resolvedBy,
	}
	inserted, err := r.resolutions.Insert(txCtx, resolution)
	if err != nil {
		return false, err
	}
	if !inserted {
		log.Info("Resolution already recorded for ledger entry")
		return false, nil
	}

	if kind != models.ResolutionServerWins {
		if err := r.applyResolution(txCtx, entry, kind, resolvedPayload); err != nil {
			return false, err
		}
	}

	if err := r.ledger.MarkSuccess(txCtx, entry.ID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit resolution")
	}

	entry.Status = models.LedgerStatusSuccess
	if r.telemetry != nil {
		r.telemetry.EmitConflictResolved(ctx, entry, resolution)
	}
	if r.invalidator != nil {
		r.invalidator.Invalidate(ctx, userID)
	}

	log.Info("Resolved conflict")
	return true, nil
}

// applyResolution replays the original mutation in force mode. client_wins
// uses the payload snapshot the device originally sent; manual substitutes
// the caller's merged payload.
func (r *Resolver) applyResolution(ctx context.Context, entry *models.LedgerEntry, kind models.ResolutionKind, resolvedPayload json.RawMessage) error {
	reconciler, ok := r.reconcilers[entry.Entity]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "no reconciler for entity kind %q", entry.Entity)
	}

	req := &models.MutationRequest{
		UserID:          entry.UserID,
		DeviceID:        entry.DeviceID,
		Action:          entry.Action,
		Entity:          entry.Entity,
		EntityRef:       entry.EntityRef,
		Payload:         entry.PayloadSnapshot,
		ClientTimestamp: entry.ClientTimestamp,
	}
	if kind == models.ResolutionManual {
		req.Payload = resolvedPayload
	}

	outcome, err := dispatchAction(ctx, forced{reconciler}, req)
	if err != nil {
		return err
	}
	if !outcome.Success {
		message := outcome.ErrorMessage
		if message == "" {
			message = outcome.ConflictReason
		}
		return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "failed to apply resolution: %s", message)
	}
	return nil
}

// forced pins every operation of a reconciler to force mode
type forced struct {
	Reconciler
}

func (f forced) Create(ctx context.Context, req *models.MutationRequest, _ Mode) (models.SyncOutcome, error) {
	return f.Reconciler.Create(ctx, req, ModeForce)
}

func (f forced) Update(ctx context.Context, req *models.MutationRequest, _ Mode) (models.SyncOutcome, error) {
	return f.Reconciler.Update(ctx, req, ModeForce)
}

func (f forced) Delete(ctx context.Context, req *models.MutationRequest, _ Mode) (models.SyncOutcome, error) {
	return f.Reconciler.Delete(ctx, req, ModeForce)
}
