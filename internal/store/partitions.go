package store

import (
	"context"
	"log/slog"
	"time"
)

// PartitionMaintainer keeps the monthly partitions for the current and next
// month created ahead of the write path. Partition creation is an
// administrative background concern, never inline on a write.
type PartitionMaintainer struct {
	store    *Store
	interval time.Duration
}

// NewPartitionMaintainer creates a maintainer checking on the given interval
// (default: 6h).
func NewPartitionMaintainer(s *Store, interval time.Duration) *PartitionMaintainer {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &PartitionMaintainer{store: s, interval: interval}
}

// EnsureCurrent creates the partitions for now and next month. Called once at
// startup before the pipeline accepts writes.
func (m *PartitionMaintainer) EnsureCurrent(ctx context.Context) error {
	now := time.Now().UTC()
	if err := m.store.EnsurePartitions(ctx, now); err != nil {
		return err
	}
	return m.store.EnsurePartitions(ctx, now.AddDate(0, 1, 0))
}

// Run starts the maintenance loop. It blocks until the context is cancelled.
func (m *PartitionMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.EnsureCurrent(ctx); err != nil {
				slog.Warn("partition maintenance failed", "err", err)
				continue
			}
			slog.Debug("partition maintenance ok")
		}
	}
}
