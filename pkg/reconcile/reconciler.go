// Package reconcile replays offline mutations against authoritative server
// state. Each entity kind gets a Reconciler with identical create/update/
// delete semantics; the duplicate heuristics and extracted columns differ per
// kind. Conflicts are surfaced, never silently resolved.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Mode controls whether the optimistic-concurrency guards run.
// Force is used only by conflict resolution replay; it skips the staleness
// check and the duplicate heuristic but is otherwise the same code path, so
// field mapping can never diverge between the two.
type Mode string

const (
	ModeGuarded Mode = "guarded"
	ModeForce   Mode = "force"
)

// Conflict reasons surfaced to clients and recorded on the ledger
const (
	ReasonDuplicate = "matching record already exists"
	ReasonStale     = "server record modified after client snapshot"
)

const candidateLimit = 50

// Reconciler applies one offline mutation of each action kind. Outcomes with
// Conflict or ErrorMessage set are business results; a non-nil error is an
// infrastructure fault and the caller must roll back.
type Reconciler interface {
	Create(ctx context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error)
	Update(ctx context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error)
	Delete(ctx context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error)
}

// Registry maps entity kinds to their reconcilers
type Registry map[models.EntityKind]Reconciler

// syncRecord constrains entity pointers so zero-value checks work
type syncRecord interface {
	comparable
	models.SyncRecord
}

// entityReconciler implements the shared state machine for one entity kind
type entityReconciler[T syncRecord] struct {
	kind      models.EntityKind
	store     Store[T]
	matcher   *matching.Matcher
	logger    ectologger.Logger
	newRecord func(userID string) T
}

// NewAppointmentReconciler builds the appointment reconciler
func NewAppointmentReconciler(store Store[*models.Appointment], matcher *matching.Matcher, logger ectologger.Logger) Reconciler {
	return &entityReconciler[*models.Appointment]{
		kind:    models.EntityAppointment,
		store:   store,
		matcher: matcher,
		logger:  logger,
		newRecord: func(userID string) *models.Appointment {
			return &models.Appointment{UserID: userID, Status: models.AppointmentStatusScheduled}
		},
	}
}

// NewCustomerReconciler builds the customer reconciler
func NewCustomerReconciler(store Store[*models.Customer], matcher *matching.Matcher, logger ectologger.Logger) Reconciler {
	return &entityReconciler[*models.Customer]{
		kind:    models.EntityCustomer,
		store:   store,
		matcher: matcher,
		logger:  logger,
		newRecord: func(userID string) *models.Customer {
			return &models.Customer{UserID: userID}
		},
	}
}

// NewServiceReconciler builds the service catalog reconciler
func NewServiceReconciler(store Store[*models.ServiceEntry], matcher *matching.Matcher, logger ectologger.Logger) Reconciler {
	return &entityReconciler[*models.ServiceEntry]{
		kind:    models.EntityService,
		store:   store,
		matcher: matcher,
		logger:  logger,
		newRecord: func(userID string) *models.ServiceEntry {
			return &models.ServiceEntry{UserID: userID}
		},
	}
}

// NewAvailabilityReconciler builds the availability window reconciler
func NewAvailabilityReconciler(store Store[*models.AvailabilityWindow], matcher *matching.Matcher, logger ectologger.Logger) Reconciler {
	return &entityReconciler[*models.AvailabilityWindow]{
		kind:    models.EntityAvailability,
		store:   store,
		matcher: matcher,
		logger:  logger,
		newRecord: func(userID string) *models.AvailabilityWindow {
			return &models.AvailabilityWindow{UserID: userID}
		},
	}
}

// Create inserts a new record unless the duplicate heuristic finds a record
// that plausibly represents the same real-world object. The client-supplied
// entity ref is a local placeholder with no server meaning, so detection is
// by payload content, never by ID.
func (r *entityReconciler[T]) Create(ctx context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("reconcile.%s.Create", r.kind))
	defer span.End()

	if mode != ModeForce {
		dup, rule, err := r.findDuplicate(ctx, req)
		if err != nil {
			return models.SyncOutcome{}, err
		}
		var zero T
		if dup != zero {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"entity":     r.kind,
				"matched_id": dup.RecordID(),
				"rule":       rule,
			}).Info("Create matched an existing record")
			return models.ConflictOutcome(ReasonDuplicate, dup.Snapshot()), nil
		}
	}

	rec := r.newRecord(req.UserID)
	if err := rec.ApplyPayload(req.Payload, req.ClientTimestamp); err != nil {
		return models.ErrorOutcome(fmt.Sprintf("invalid payload: %v", err)), nil
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		return models.SyncOutcome{}, err
	}
	return models.SuccessOutcome(rec.RecordID()), nil
}

// Update merges the payload into the target record after the staleness check.
// A ref that is not a server ID falls back to the duplicate heuristic, since
// the record may have been created from this device's earlier offline create.
func (r *entityReconciler[T]) Update(ctx context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("reconcile.%s.Update", r.kind))
	defer span.End()

	rec, err := r.resolveTarget(ctx, req)
	if err != nil {
		return models.SyncOutcome{}, err
	}

	var zero T
	if rec == zero {
		return models.ErrorOutcome("target record not found"), nil
	}

	if mode != ModeForce && rec.LastModified().After(req.ClientTimestamp) {
		return models.ConflictOutcome(ReasonStale, rec.Snapshot()), nil
	}

	if err := rec.ApplyPayload(req.Payload, req.ClientTimestamp); err != nil {
		return models.ErrorOutcome(fmt.Sprintf("invalid payload: %v", err)), nil
	}

	if err := r.store.Update(ctx, rec); err != nil {
		return models.SyncOutcome{}, err
	}
	return models.SuccessOutcome(rec.RecordID()), nil
}

// Delete soft-deletes the target record. A missing or already-deleted record
// is treated as success so delete replays stay idempotent.
func (r *entityReconciler[T]) Delete(ctx context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("reconcile.%s.Delete", r.kind))
	defer span.End()

	rec, err := r.store.GetForUpdate(ctx, req.UserID, req.EntityRef)
	if err != nil {
		return models.SyncOutcome{}, err
	}

	var zero T
	if rec == zero {
		return models.SuccessOutcome(req.EntityRef), nil
	}

	if mode != ModeForce && rec.LastModified().After(req.ClientTimestamp) {
		return models.ConflictOutcome(ReasonStale, rec.Snapshot()), nil
	}

	if _, err := r.store.SoftDelete(ctx, req.UserID, rec.RecordID(), req.ClientTimestamp); err != nil {
		return models.SyncOutcome{}, err
	}
	return models.SuccessOutcome(rec.RecordID()), nil
}

// resolveTarget locks the record by server ID, or by the duplicate heuristic
// when the ref is a client placeholder. The heuristic hit is re-fetched under
// FOR UPDATE so the staleness check and write see a locked row.
func (r *entityReconciler[T]) resolveTarget(ctx context.Context, req *models.MutationRequest) (T, error) {
	var zero T

	rec, err := r.store.GetForUpdate(ctx, req.UserID, req.EntityRef)
	if err != nil {
		return zero, err
	}
	if rec != zero {
		return rec, nil
	}

	match, rule, err := r.findDuplicate(ctx, req)
	if err != nil {
		return zero, err
	}
	if match == zero {
		return zero, nil
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity":     r.kind,
		"entity_ref": req.EntityRef,
		"matched_id": match.RecordID(),
		"rule":       rule,
	}).Info("Resolved client placeholder ref by matching")

	return r.store.GetForUpdate(ctx, req.UserID, match.RecordID())
}

// findDuplicate scans the user's recent records for one matching the payload.
// An identical payload fingerprint short-circuits as an exact resubmission;
// otherwise the per-kind matching spec decides.
func (r *entityReconciler[T]) findDuplicate(ctx context.Context, req *models.MutationRequest) (T, string, error) {
	var zero T

	candidates, err := r.store.FindCandidates(ctx, req.UserID, candidateLimit)
	if err != nil {
		return zero, "", err
	}
	if len(candidates) == 0 {
		return zero, "", nil
	}

	payloadFP, fpErr := fingerprint.GenerateFromJSON(req.Payload)

	for _, cand := range candidates {
		if fpErr == nil {
			candFP, err := fingerprint.GenerateFromJSON(cand.RecordData())
			if err == nil && !fingerprint.HasChanged(payloadFP, candFP) {
				return cand, "identical_payload", nil
			}
		}

		ok, rule, err := r.matcher.Matches(r.kind, req.Payload, cand.RecordData())
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity": r.kind, "candidate_id": cand.RecordID()}).Warn("Failed to evaluate match candidate")
			continue
		}
		if ok {
			return cand, rule, nil
		}
	}

	return zero, "", nil
}

// payloadOrEmpty guards json.RawMessage fields that may arrive nil
func payloadOrEmpty(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return json.RawMessage(`{}`)
	}
	return p
}
