// Package scheduler triggers periodic catalog passes on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// RunFunc executes one full pass (all retailers, sequentially).
type RunFunc func(ctx context.Context)

// Config configures the scheduler.
type Config struct {
	// Interval between passes. Default: 1 hour.
	Interval time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
}

// Scheduler drives RunFunc on a ticker.
type Scheduler struct {
	run    RunFunc
	config Config
	logger *slog.Logger
}

// New creates a Scheduler.
func New(run RunFunc, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{run: run, config: cfg, logger: logger}
}

// Run starts the loop. Blocks until ctx is cancelled. The first pass fires
// immediately on start.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler: started", "interval", s.config.Interval)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.run(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}
