package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"communityevents/internal/domain"
)

// ElapseSweeper periodically moves active events whose date has passed to the elapsed state.
type ElapseSweeper struct {
	cron   *cron.Cron
	events domain.EventService
	logger *slog.Logger
}

// NewElapseSweeper schedules the sweep with a standard cron spec or descriptor such as "@every 15m".
func NewElapseSweeper(spec string, events domain.EventService, logger *slog.Logger) (*ElapseSweeper, error) {
	s := &ElapseSweeper{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		events: events,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule elapse sweep %q: %w", spec, err)
	}
	return s, nil
}

// Sweep runs one pass.
func (s *ElapseSweeper) Sweep(ctx context.Context) {
	n, err := s.events.MarkElapsed(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "elapse sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "events marked elapsed", "count", n)
	}
}

// Run starts the scheduler and blocks until ctx is done, then waits for a running sweep.
func (s *ElapseSweeper) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
