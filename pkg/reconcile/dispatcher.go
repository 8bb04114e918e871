package reconcile

import (
	"context"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Dispatcher validates mutations, records them on the ledger, and owns the
// per-mutation transaction boundary. One mutation's failure never affects
// its batch siblings.
type Dispatcher struct {
	db          database.DB
	ledger      LedgerStore
	reconcilers Registry
	telemetry   Telemetry
	invalidator StatusInvalidator
	validate    *validator.Validate
	logger      ectologger.Logger
	timeout     time.Duration
}

// NewDispatcher creates a dispatcher. telemetry and invalidator may be nil.
func NewDispatcher(
	db database.DB,
	ledger LedgerStore,
	reconcilers Registry,
	telemetry Telemetry,
	invalidator StatusInvalidator,
	logger ectologger.Logger,
	timeout time.Duration,
) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		db:          db,
		ledger:      ledger,
		reconcilers: reconcilers,
		telemetry:   telemetry,
		invalidator: invalidator,
		validate:    validator.New(),
		logger:      logger,
		timeout:     timeout,
	}
}

// ReconcileBatch replays a batch of offline mutations in submission order.
// Returns one outcome per mutation, in order; processing always continues
// past individual failures.
func (d *Dispatcher) ReconcileBatch(ctx context.Context, userID, deviceID string, mutations []models.MutationRequest) []models.SyncOutcome {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Dispatcher.ReconcileBatch")
	defer span.End()

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":    userID,
		"device_id":  deviceID,
		"batch_size": len(mutations),
	}).Info("Reconciling mutation batch")

	outcomes := make([]models.SyncOutcome, len(mutations))
	for i := range mutations {
		mutations[i].UserID = userID
		mutations[i].DeviceID = deviceID
		outcomes[i] = d.Reconcile(ctx, &mutations[i])
	}
	return outcomes
}

// Reconcile replays a single mutation: validate, record a pending ledger
// entry, run the entity reconciler inside a transaction with the terminal
// ledger transition, then emit telemetry. Validation failures are rejected
// before any write.
func (d *Dispatcher) Reconcile(ctx context.Context, req *models.MutationRequest) models.SyncOutcome {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Dispatcher.Reconcile")
	defer span.End()

	log := d.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":    req.UserID,
		"action":     req.Action,
		"entity":     req.Entity,
		"entity_ref": req.EntityRef,
	})

	if err := d.validate.Struct(req); err != nil {
		log.WithError(err).Info("Rejected invalid mutation")
		return models.ErrorOutcome("invalid mutation: " + err.Error())
	}
	reconciler, ok := d.reconcilers[req.Entity]
	if !ok {
		return models.ErrorOutcome("unsupported entity kind: " + string(req.Entity))
	}

	entry := &models.LedgerEntry{
		UserID:          req.UserID,
		DeviceID:        req.DeviceID,
		Action:          req.Action,
		Entity:          req.Entity,
		EntityRef:       req.EntityRef,
		ClientTimestamp: req.ClientTimestamp,
		PayloadSnapshot: payloadOrEmpty(req.Payload),
	}
	if err := d.ledger.Insert(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to record pending ledger entry")
		return models.ErrorOutcome("failed to record sync attempt")
	}

	opCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome := d.apply(opCtx, reconciler, entry, req)
	outcome.LedgerEntryID = entry.ID

	if d.telemetry != nil {
		d.telemetry.EmitReconciled(ctx, entry, outcome)
	}
	if d.invalidator != nil {
		d.invalidator.Invalidate(ctx, req.UserID)
	}

	return outcome
}

// apply runs the reconciler and the terminal ledger transition in one
// transaction. Infrastructure faults roll back everything and mark the entry
// errored on the base connection; business outcomes (conflict, not-found)
// commit with the domain untouched.
func (d *Dispatcher) apply(ctx context.Context, reconciler Reconciler, entry *models.LedgerEntry, req *models.MutationRequest) models.SyncOutcome {
	log := d.logger.WithContext(ctx).WithFields(map[string]any{"ledger_entry_id": entry.ID})

	txCtx, tx, err := d.db.GetTx(ctx, nil)
	if err != nil {
		return d.failEntry(ctx, entry, "failed to begin reconciliation")
	}
	defer tx.Rollback(ctx)

	outcome, err := dispatchAction(txCtx, reconciler, req)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.WithError(rbErr).Error("Failed to roll back reconciliation")
		}
		log.WithError(err).Error("Reconciliation failed")
		return d.failEntry(ctx, entry, publicMessage(err))
	}

	switch {
	case outcome.Success:
		err = d.ledger.MarkSuccess(txCtx, entry.ID)
		entry.Status = models.LedgerStatusSuccess
	case outcome.Conflict:
		err = d.ledger.MarkConflict(txCtx, entry.ID, outcome.ConflictReason)
		entry.Status = models.LedgerStatusConflict
		entry.ConflictReason = &outcome.ConflictReason
	default:
		err = d.ledger.MarkError(txCtx, entry.ID, outcome.ErrorMessage)
		entry.Status = models.LedgerStatusError
		entry.ErrorMessage = &outcome.ErrorMessage
	}
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.WithError(rbErr).Error("Failed to roll back reconciliation")
		}
		return d.failEntry(ctx, entry, "failed to finalize sync attempt")
	}

	if err := tx.Commit(ctx); err != nil {
		return d.failEntry(ctx, entry, "failed to commit reconciliation")
	}
	return outcome
}

// failEntry marks the entry errored outside any transaction and builds the
// matching outcome. The per-mutation deadline may already have fired, so the
// ledger write runs detached from it; an errored attempt must still land on
// the ledger.
func (d *Dispatcher) failEntry(ctx context.Context, entry *models.LedgerEntry, message string) models.SyncOutcome {
	ctx = context.WithoutCancel(ctx)
	if err := d.ledger.MarkError(ctx, entry.ID, message); err != nil {
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ledger_entry_id": entry.ID}).Error("Failed to mark ledger entry errored")
	}
	entry.Status = models.LedgerStatusError
	entry.ErrorMessage = &message
	return models.ErrorOutcome(message)
}

// dispatchAction routes a mutation to the reconciler operation for its action
func dispatchAction(ctx context.Context, reconciler Reconciler, req *models.MutationRequest) (models.SyncOutcome, error) {
	switch req.Action {
	case models.ActionCreate:
		return reconciler.Create(ctx, req, ModeGuarded)
	case models.ActionUpdate:
		return reconciler.Update(ctx, req, ModeGuarded)
	case models.ActionDelete:
		return reconciler.Delete(ctx, req, ModeGuarded)
	default:
		return models.ErrorOutcome("unsupported action kind: " + string(req.Action)), nil
	}
}

// publicMessage extracts a client-safe message from an infrastructure error
func publicMessage(err error) string {
	if httperror.IsHTTPError(err) {
		return err.Error()
	}
	return "internal reconciliation failure"
}
