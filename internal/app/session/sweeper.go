package session

import (
	"context"
	"fmt"
	"time"

	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

// Sweeper soft-clears sessions that have been idle longer than the threshold.
// The session records themselves are kept.
type Sweeper struct {
	store     domain.SessionStore
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewSweeper(store domain.SessionStore, threshold, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
	}
}

func (s *Sweeper) Threshold() time.Duration { return s.threshold }

// SweepOnce clears every session idle since before now-threshold.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]domain.SessionID, error) {
	cutoff := s.now().Add(-s.threshold)
	log := observability.LoggerFromContext(ctx).With("cutoff", cutoff, "threshold", s.threshold.String())

	start := time.Now()
	cleared, err := s.store.ClearIdle(ctx, cutoff)
	if err != nil {
		log.Error("idle sweep failed", "cleared", len(cleared), "error", err)
		return cleared, fmt.Errorf("clear idle sessions: %w", err)
	}

	log.Info("idle sweep done", "cleared", len(cleared), "elapsed_ms", time.Since(start).Milliseconds())
	return cleared, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	observability.Logger().Info("session sweeper started", "interval", s.interval.String(), "threshold", s.threshold.String())
	for {
		select {
		case <-ctx.Done():
			observability.Logger().Info("session sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}
