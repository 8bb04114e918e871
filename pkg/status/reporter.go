// Package status derives the per-user sync status view from the ledger
package status

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Source computes a status snapshot from authoritative storage
type Source interface {
	Status(ctx context.Context, userID string) (*models.SyncStatus, error)
}

// Reporter serves status snapshots. Reads are lock-free; when both the cache
// and the ledger are unreachable it degrades to a zeroed snapshot rather than
// failing, since status is advisory.
type Reporter struct {
	source Source
	cache  *Cache
	logger ectologger.Logger
}

// NewReporter creates a reporter. cache may be nil.
func NewReporter(source Source, cache *Cache, logger ectologger.Logger) *Reporter {
	return &Reporter{
		source: source,
		cache:  cache,
		logger: logger,
	}
}

// GetStatus returns the user's sync status snapshot
func (r *Reporter) GetStatus(ctx context.Context, userID string) *models.SyncStatus {
	ctx, span := tracing.StartSpan(ctx, "status.Reporter.GetStatus")
	defer span.End()

	if r.cache != nil {
		if snapshot := r.cache.Get(ctx, userID); snapshot != nil {
			return snapshot
		}
	}

	snapshot, err := r.source.Status(ctx, userID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Warn("Ledger unreachable; serving zeroed status snapshot")
		return &models.SyncStatus{}
	}

	if r.cache != nil {
		r.cache.Set(ctx, userID, snapshot)
	}
	return snapshot
}
