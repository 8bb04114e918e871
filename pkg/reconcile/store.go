package reconcile

import (
	"context"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// LedgerStore is the ledger surface the dispatcher and resolver drive
type LedgerStore interface {
	Insert(ctx context.Context, entry *models.LedgerEntry) error
	Get(ctx context.Context, userID, id string) (*models.LedgerEntry, error)
	GetForUpdate(ctx context.Context, userID, id string) (*models.LedgerEntry, error)
	MarkSuccess(ctx context.Context, id string) error
	MarkConflict(ctx context.Context, id, reason string) error
	MarkError(ctx context.Context, id, message string) error
}

// ResolutionStore persists conflict resolution decisions
type ResolutionStore interface {
	Insert(ctx context.Context, resolution *models.ConflictResolution) (bool, error)
	GetByLedgerEntry(ctx context.Context, userID, ledgerEntryID string) (*models.ConflictResolution, error)
}

// Store is the per-kind domain record surface. The entity repositories
// satisfy it directly; reads and writes join the dispatcher's transaction
// through the context.
type Store[T models.SyncRecord] interface {
	GetForUpdate(ctx context.Context, userID, id string) (T, error)
	FindCandidates(ctx context.Context, userID string, limit int) ([]T, error)
	Insert(ctx context.Context, rec T) error
	Update(ctx context.Context, rec T) error
	SoftDelete(ctx context.Context, userID, id string, at time.Time) (bool, error)
}

// Telemetry receives best-effort sync lifecycle events. Implementations must
// never fail the caller.
type Telemetry interface {
	EmitReconciled(ctx context.Context, entry *models.LedgerEntry, outcome models.SyncOutcome)
	EmitConflictResolved(ctx context.Context, entry *models.LedgerEntry, resolution *models.ConflictResolution)
}

// StatusInvalidator drops cached status snapshots after a ledger write
type StatusInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}
