// Package retention deletes audited interactions once they age out.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger abstracts the audit log's delete operation.
type Purger interface {
	PurgeInteractions(cutoff time.Time) (int64, error)
}

// Sweeper periodically purges interactions older than its retention period.
type Sweeper struct {
	store     Purger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper. If interval is <= 0, it defaults to one
// hour. A retention of zero or less disables sweeping.
func NewSweeper(store Purger, retention, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// Enabled reports whether Run does anything.
func (s *Sweeper) Enabled() bool {
	return s.retention > 0
}

// Run sweeps once immediately and then on every interval until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("retention sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// RunOnce deletes every interaction created before now minus the retention
// period and returns how many were removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.retention)
	n, err := s.store.PurgeInteractions(cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging interactions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		s.logger.Info("retention sweep", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
