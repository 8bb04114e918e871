// Package events emits best-effort sync telemetry. Emission never affects
// reconciliation outcomes; failures are logged and dropped.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes sync lifecycle events to Kafka
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitReconciled emits a sync.reconciled event for a terminal ledger entry
func (e *Emitter) EmitReconciled(ctx context.Context, entry *models.LedgerEntry, outcome models.SyncOutcome) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReconciled")
	defer span.End()

	detail := map[string]any{
		"schema_version": SchemaVersion,
	}
	if outcome.ServerRef != "" {
		detail["server_ref"] = outcome.ServerRef
	}
	if outcome.ConflictReason != "" {
		detail["conflict_reason"] = outcome.ConflictReason
	}
	if outcome.ErrorMessage != "" {
		detail["error_message"] = outcome.ErrorMessage
	}
	detailJSON, _ := json.Marshal(detail)

	event := &kafka.SyncEvent{
		EventType:     "sync.reconciled",
		UserID:        entry.UserID,
		DeviceID:      entry.DeviceID,
		LedgerEntryID: entry.ID,
		Entity:        string(entry.Entity),
		EntityRef:     entry.EntityRef,
		Action:        string(entry.Action),
		Outcome:       outcomeLabel(outcome),
		Detail:        detailJSON,
	}

	if err := e.producer.PublishSyncEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit sync.reconciled event")
	}
}

// EmitConflictResolved emits a sync.conflict_resolved event
func (e *Emitter) EmitConflictResolved(ctx context.Context, entry *models.LedgerEntry, resolution *models.ConflictResolution) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitConflictResolved")
	defer span.End()

	detail := map[string]any{
		"schema_version": SchemaVersion,
		"kind":           resolution.Kind,
		"resolved_by":    resolution.ResolvedBy,
	}
	detailJSON, _ := json.Marshal(detail)

	event := &kafka.SyncEvent{
		EventType:     "sync.conflict_resolved",
		UserID:        entry.UserID,
		DeviceID:      entry.DeviceID,
		LedgerEntryID: entry.ID,
		Entity:        string(entry.Entity),
		EntityRef:     entry.EntityRef,
		Action:        string(entry.Action),
		Outcome:       "success",
		Detail:        detailJSON,
	}

	if err := e.producer.PublishSyncEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit sync.conflict_resolved event")
	}
}

func outcomeLabel(outcome models.SyncOutcome) string {
	switch {
	case outcome.Success:
		return "success"
	case outcome.Conflict:
		return "conflict"
	default:
		return "error"
	}
}
