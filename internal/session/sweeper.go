package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the idle-session sweep every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Sweeper periodically evicts idle sessions from a store.
type Sweeper struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper schedules store.EvictIdle on the given cron schedule
// (empty means DefaultSweepSchedule). Call Start to begin sweeping.
func NewSweeper(store Store, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := store.EvictIdle(ctx, time.Now()); err != nil {
			logger.Warn("session sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling session sweep %q: %w", schedule, err)
	}
	return &Sweeper{cron: c, logger: logger}, nil
}

// Start begins sweeping in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Debug("session sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
