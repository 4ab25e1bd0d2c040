package scheduler

import (
	"context"
	"time"

	"leadengine/internal/leads/lifecycle"
	"leadengine/platform/logger"
)

const defaultSweepInterval = 4 * time.Hour

// SweepRunner drives the lifecycle sweep on a fixed interval. One run
// executes immediately at startup so a long-stopped scheduler catches up
// without waiting a full tick.
type SweepRunner struct {
	sweeper  *lifecycle.Sweeper
	interval time.Duration
	log      *logger.Logger
}

func NewSweepRunner(sweeper *lifecycle.Sweeper, interval time.Duration, log *logger.Logger) *SweepRunner {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SweepRunner{sweeper: sweeper, interval: interval, log: log}
}

func (r *SweepRunner) Run(ctx context.Context) {
	if r == nil || r.sweeper == nil {
		return
	}

	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *SweepRunner) sweep(ctx context.Context) {
	if _, err := r.sweeper.Run(ctx); err != nil {
		r.log.Warn("lifecycle sweep failed", "error", err)
	}
}
