// Package scheduler drives the weekly lifecycle from wall-clock time: it
// sweeps expired claims, opens each new week by rolling the previous one
// over and runs the draw once the draw time has passed.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/logger"

	"github.com/kkkkikiki/cashcode/internal/cashcode"
	"github.com/kkkkikiki/cashcode/internal/metrics"
	"github.com/kkkkikiki/cashcode/internal/model"
	"github.com/kkkkikiki/cashcode/internal/weekkey"
)

// Lifecycle is the part of the engine the scheduler drives
type Lifecycle interface {
	SweepExpired(ctx context.Context, now time.Time) ([]string, error)
	RolloverWeek(ctx context.Context, prevWeekKey, nextWeekKey string) (*cashcode.RolloverResult, error)
	RunDraw(ctx context.Context, weekKey string) (*cashcode.DrawResult, error)
	GetDraw(ctx context.Context, weekKey string) (*model.Draw, error)
}

// Scheduler runs Tick on a fixed interval. Every step is idempotent, so
// several replicas may run a scheduler against the same store.
type Scheduler struct {
	engine   Lifecycle
	resolver *weekkey.Resolver
	clock    cashcode.Clock
	interval time.Duration
}

// New creates a new Scheduler instance
func New(engine Lifecycle, resolver *weekkey.Resolver, clock cashcode.Clock, interval time.Duration) *Scheduler {
	if clock == nil {
		clock = cashcode.SystemClock{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		engine:   engine,
		resolver: resolver,
		clock:    clock,
		interval: interval,
	}
}

// Run ticks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	logger.Infof("Scheduler started with interval %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx, s.clock.Now()); err != nil && ctx.Err() == nil {
			logger.Errorf("Scheduler tick failed: %v", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick performs one pass of the lifecycle at now
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	if _, err := s.engine.SweepExpired(ctx, now); err != nil {
		return err
	}

	current := s.resolver.WeekKeyFor(now)
	prev, err := s.resolver.Prev(current)
	if err != nil {
		return err
	}

	result, err := s.engine.RolloverWeek(ctx, prev, current)
	switch {
	case err == nil:
		metrics.RecordCarried(result.CarriedTicketCount)
	case errors.Is(err, cashcode.ErrAlreadyRolledOver):
	default:
		return err
	}

	windows, err := s.resolver.PhaseWindowsFor(current)
	if err != nil {
		return err
	}
	if now.Before(windows.DrawAt) {
		return nil
	}

	draw, err := s.engine.GetDraw(ctx, current)
	if err != nil {
		return err
	}
	if draw.Status != model.DrawPending || draw.Drawn() {
		return nil
	}

	_, err = s.engine.RunDraw(ctx, current)
	switch {
	case err == nil:
		metrics.RecordDraw("success")
	case errors.Is(err, cashcode.ErrAlreadyDrawn):
	case errors.Is(err, cashcode.ErrNoEligibleTickets):
		metrics.RecordDraw("no_eligible_tickets")
	default:
		metrics.RecordDraw("error")
		return err
	}
	return nil
}
