// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// LifecycleScheduler drives RunLifecycleScan on a fixed interval. Ticks may
// overlap; every step of the scan is a per-event compare-and-set.
type LifecycleScheduler struct {
	sched gocron.Scheduler
	once  sync.Once
	err   error
}

// StartLifecycleScheduler runs the first scan immediately, then every
// interval, until ctx is done or Shutdown is called. clock may be nil.
func (s *LifecycleService) StartLifecycleScheduler(ctx context.Context, interval time.Duration, clock clockwork.Clock) (*LifecycleScheduler, error) {
	opts := []gocron.SchedulerOption{}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			if _, err := s.RunLifecycleScan(ctx); err != nil {
				s.Log.Error().Err(err).Msg("[Scheduler] lifecycle scan error")
			}
		}),
		gocron.WithName("event-lifecycle-scan"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule lifecycle scan: %w", err)
	}

	sched.Start()
	s.Log.Info().Dur("interval", interval).Msg("✅ Lifecycle scheduler running")

	ls := &LifecycleScheduler{sched: sched}
	go func() {
		<-ctx.Done()
		_ = ls.Shutdown()
	}()
	return ls, nil
}

// Shutdown stops the scheduler and waits for running scans to return.
func (l *LifecycleScheduler) Shutdown() error {
	l.once.Do(func() { l.err = l.sched.Shutdown() })
	return l.err
}
