package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/soyeahso/consultant/internal/logging"
)

// DefaultPruneSchedule runs retention daily at 03:30.
const DefaultPruneSchedule = "30 3 * * *"

// Pruner is the part of Store retention needs.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Retention deletes sessions idle for longer than a fixed window, either on
// demand or on a cron schedule.
type Retention struct {
	store   Pruner
	keep    time.Duration
	log     *logging.Logger
	now     func() time.Time
	onPrune func(n int)

	cron *cron.Cron
}

// NewRetention keeps sessions active within the last days days.
func NewRetention(p Pruner, days int, log *logging.Logger) *Retention {
	return &Retention{
		store: p,
		keep:  time.Duration(days) * 24 * time.Hour,
		log:   log.Sub("retention"),
		now:   time.Now,
	}
}

// OnPrune registers a callback invoked after every run that removed sessions.
func (r *Retention) OnPrune(fn func(n int)) {
	r.onPrune = fn
}

// Cutoff returns the activity time before which sessions are pruned.
func (r *Retention) Cutoff() time.Time {
	return r.now().Add(-r.keep)
}

// RunOnce prunes immediately.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	if r.keep <= 0 {
		return 0, nil
	}
	cutoff := r.Cutoff()
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	r.log.Info().Int("sessions", n).Time("cutoff", cutoff).Msg("retention run complete")
	if n > 0 && r.onPrune != nil {
		r.onPrune(n)
	}
	return n, nil
}

// Start schedules RunOnce with a standard five-field cron expression.
func (r *Retention) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.log.Error().Err(err).Msg("scheduled retention failed")
		}
	}); err != nil {
		return fmt.Errorf("scheduling retention: %w", err)
	}
	r.cron.Start()
	r.log.Info().Str("schedule", schedule).Dur("keep", r.keep).Msg("retention scheduled")
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
