// Package scheduler triggers the acquisition cycle periodically and runs it
// on a dedicated worker goroutine.
//
// The trigger never blocks. Requests are coalesced into a single pending
// slot, so at any time there is at most one cycle running and at most one
// waiting; further triggers are dropped until the slot frees.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"cloudpico-envnode/internal/metrics"
)

type Options struct {
	Interval     time.Duration
	InitialDelay time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

type Scheduler struct {
	opts    Options
	work    func()
	pending chan struct{}
	logger  *slog.Logger
}

func New(opts Options, work func()) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		opts:    opts,
		work:    work,
		pending: make(chan struct{}, 1),
		logger:  logger,
	}
}

// Trigger requests one cycle. It returns false when a request is already
// pending and this one was coalesced into it.
func (s *Scheduler) Trigger() bool {
	select {
	case s.pending <- struct{}{}:
		return true
	default:
		s.opts.Metrics.TriggerCoalesced()
		s.logger.Debug("scheduler: trigger coalesced")
		return false
	}
}

// Run starts the periodic trigger and the worker and blocks until ctx is
// done. A cycle in flight when ctx is cancelled runs to completion before
// Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		s.tick(ctx)
	}()

	s.logger.Info("scheduler: started",
		"interval", s.opts.Interval,
		"initial_delay", s.opts.InitialDelay,
	)

	for {
		select {
		case <-ctx.Done():
			<-tickerDone
			s.logger.Info("scheduler: stopped")
			return ctx.Err()
		case <-s.pending:
			// Both cases can be ready at once; a pending request never
			// starts a cycle once shutdown has begun.
			if ctx.Err() != nil {
				continue
			}
			s.work()
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	delay := time.NewTimer(s.opts.InitialDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}
	s.Trigger()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger()
		}
	}
}
