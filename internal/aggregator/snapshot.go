package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"perpscope/internal/models"
)

// SnapshotCache holds the most recent aggregation result so the dashboard's
// polling does not trigger a full venue scan on every request. A cron job
// refreshes it in the background; handlers fall back to a live aggregation
// when the snapshot is older than their freshness limit.
type SnapshotCache struct {
	mu      sync.RWMutex
	records []models.UnifiedPerpRecord
	takenAt time.Time
}

// Get returns the cached records and when they were taken. The bool is false
// when no snapshot has been stored yet.
func (c *SnapshotCache) Get() ([]models.UnifiedPerpRecord, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.takenAt.IsZero() {
		return nil, time.Time{}, false
	}
	return c.records, c.takenAt, true
}

func (c *SnapshotCache) set(records []models.UnifiedPerpRecord) {
	c.mu.Lock()
	c.records = records
	c.takenAt = time.Now()
	c.mu.Unlock()
}

// Refresh runs one aggregation pass and stores the result. A failed pass
// keeps the previous snapshot in place.
func (c *SnapshotCache) Refresh(ctx context.Context, svc *Service, logger *zap.Logger) {
	records, err := svc.Aggregate(ctx)
	if err != nil {
		if logger != nil {
			logger.Warn("snapshot refresh failed", zap.Error(err))
		}
		return
	}
	c.set(records)
	if logger != nil {
		logger.Info("snapshot refreshed", zap.Int("records", len(records)))
	}
}
