package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cloudpico-envnode/internal/metrics"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRun_PeriodicAfterInitialDelay(t *testing.T) {
	var runs atomic.Int32
	s := New(Options{Interval: 5 * time.Millisecond, InitialDelay: 10 * time.Millisecond}, func() {
		runs.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	waitFor(t, "three cycles", func() bool { return runs.Load() >= 3 })
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
}

func TestRun_NothingBeforeInitialDelay(t *testing.T) {
	var runs atomic.Int32
	s := New(Options{Interval: time.Millisecond, InitialDelay: time.Hour}, func() {
		runs.Add(1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	if runs.Load() != 0 {
		t.Errorf("runs = %d before initial delay elapsed", runs.Load())
	}
}

func TestTrigger_CoalescesWhileBusy(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	started := make(chan struct{}, 8)
	release := make(chan struct{})
	var running, maxRunning, runs atomic.Int32

	s := New(Options{Interval: time.Hour, InitialDelay: time.Hour, Metrics: m}, func() {
		n := running.Add(1)
		for {
			cur := maxRunning.Load()
			if n <= cur || maxRunning.CompareAndSwap(cur, n) {
				break
			}
		}
		runs.Add(1)
		started <- struct{}{}
		<-release
		running.Add(-1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	if !s.Trigger() {
		t.Fatal("first Trigger() coalesced")
	}
	<-started

	// One cycle is running: one more may wait, the rest are dropped.
	if !s.Trigger() {
		t.Error("second Trigger() coalesced, want pending")
	}
	for i := 0; i < 5; i++ {
		if s.Trigger() {
			t.Errorf("Trigger() accepted while a cycle is pending")
		}
	}

	release <- struct{}{}
	<-started
	release <- struct{}{}

	waitFor(t, "worker idle", func() bool { return running.Load() == 0 })
	time.Sleep(10 * time.Millisecond)

	if runs.Load() != 2 {
		t.Errorf("runs = %d, want 2", runs.Load())
	}
	if maxRunning.Load() != 1 {
		t.Errorf("max concurrent cycles = %d, want 1", maxRunning.Load())
	}
	if got := counterValue(t, reg, "envnode_triggers_coalesced_total"); got != 5 {
		t.Errorf("coalesced = %v, want 5", got)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestRun_FinishesInFlightCycle(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	s := New(Options{Interval: time.Hour, InitialDelay: 0}, func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	<-started
	cancel()
	<-errCh

	if !finished.Load() {
		t.Error("Run returned before the in-flight cycle completed")
	}
}

func TestRun_PendingTriggerDroppedOnCancel(t *testing.T) {
	for i := 0; i < 50; i++ {
		started := make(chan struct{}, 2)
		release := make(chan struct{})
		var runs atomic.Int32
		s := New(Options{Interval: time.Hour, InitialDelay: time.Hour}, func() {
			runs.Add(1)
			started <- struct{}{}
			<-release
		})

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- s.Run(ctx) }()

		s.Trigger()
		<-started
		if !s.Trigger() {
			t.Fatal("second Trigger() coalesced, want pending")
		}
		cancel()
		close(release)

		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
		if got := runs.Load(); got != 1 {
			t.Fatalf("iteration %d: runs = %d, want 1", i, got)
		}
	}
}
