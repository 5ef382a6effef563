package simulation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsAtLeastTargetTicks(t *testing.T) {
	var ticks int32
	loop := NewLoop(60, func(time.Duration) bool {
		atomic.AddInt32(&ticks, 1)
		return true
	})
	loop.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	loop.Stop()
	if atomic.LoadInt32(&ticks) == 0 {
		t.Fatalf("expected loop to tick at least once")
	}
}

func TestLoopStepDuration(t *testing.T) {
	loop := NewLoop(120, func(time.Duration) bool { return true })
	step := loop.StepDuration()
	expected := time.Second / 120
	if step != expected {
		t.Fatalf("unexpected step duration %v", step)
	}
}

func TestLoopStopsWhenStepReportsCompletion(t *testing.T) {
	var ticks int32
	loop := NewLoop(500, func(time.Duration) bool {
		return atomic.AddInt32(&ticks, 1) < 3
	})
	loop.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	loop.Stop()
	if got := atomic.LoadInt32(&ticks); got != 3 {
		t.Fatalf("expected exactly 3 ticks, got %d", got)
	}
}

func TestLoopObservesContextCancellation(t *testing.T) {
	var ticks int32
	loop := NewLoop(500, func(time.Duration) bool {
		atomic.AddInt32(&ticks, 1)
		return true
	})
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	cancel()
	loop.Stop()
	observed := atomic.LoadInt32(&ticks)
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&ticks); got != observed {
		t.Fatalf("loop ticked after cancellation: %d -> %d", observed, got)
	}
}

func TestLoopHaltRacesStartSafely(t *testing.T) {
	//1.- Hammer Start against concurrent Halt calls; the race detector
	// flags any unsynchronized access to the loop's cancel handle.
	for i := 0; i < 20; i++ {
		loop := NewLoop(500, func(time.Duration) bool { return true })
		release := make(chan struct{})
		done := make(chan struct{})
		go func() {
			<-release
			loop.Halt()
			close(done)
		}()
		close(release)
		loop.Start(context.Background())
		<-done
		loop.Stop()
	}
}

func TestLoopHaltBeforeStartIsNoop(t *testing.T) {
	loop := NewLoop(60, func(time.Duration) bool { return true })
	loop.Halt()
	loop.Start(context.Background())
	loop.Stop()
}

func TestTickMonitorAggregates(t *testing.T) {
	monitor := NewTickMonitor()
	monitor.Observe(10 * time.Millisecond)
	monitor.Observe(30 * time.Millisecond)

	snapshot := monitor.Snapshot()
	if snapshot.Samples != 2 {
		t.Fatalf("unexpected sample count %d", snapshot.Samples)
	}
	if snapshot.Average != 20*time.Millisecond {
		t.Fatalf("unexpected average %v", snapshot.Average)
	}
	if snapshot.Max != 30*time.Millisecond {
		t.Fatalf("unexpected max %v", snapshot.Max)
	}
	if snapshot.Last != 30*time.Millisecond {
		t.Fatalf("unexpected last %v", snapshot.Last)
	}
	if tps := snapshot.AverageTPS(); tps != 50 {
		t.Fatalf("unexpected tps %v", tps)
	}
}
