// Package sweeper runs the periodic job that expires promotional credits.
package sweeper

import (
	"context"
	"time"

	"proledger/internal/ledger"
	"proledger/internal/logger"
)

// Sweeper invokes the ledger's expiry pass on a fixed interval. A sweep
// that fails for some accounts still expires the rest; failures are
// retried naturally on the next tick.
type Sweeper struct {
	engine   *ledger.Engine
	interval time.Duration
}

func New(engine *ledger.Engine, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
	}
}

// Run blocks until the context is cancelled. The first sweep happens
// immediately so a restarted process does not wait a full interval to
// catch up on overdue lots.
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info("expiry sweeper started", "interval", s.interval.String())

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep at the current time.
func (s *Sweeper) RunOnce(ctx context.Context) {
	result, err := s.engine.ExpireEntries(ctx, time.Now())
	if err != nil {
		logger.Error("expiry sweep finished with errors", "error", err)
	}
	if result != nil && result.ExpiredEntries > 0 {
		logger.Info("expiry sweep complete",
			"expired_lots", result.ExpiredEntries,
			"expired_credits", result.TotalExpired)
	}
}
