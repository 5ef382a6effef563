// Package simulation provides the fixed-timestep driver shared by every
// running match. Each match owns one Loop; loops never coordinate with each
// other, which is what lets many matches run side by side.
package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc advances the simulation by a fixed timestep and may emit side effects.
// Returning false stops the loop without waiting for context cancellation.
type StepFunc func(step time.Duration) bool

// Loop drives a fixed timestep simulation at the configured target frequency.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop configures a loop that targets the provided ticks per second.
func NewLoop(targetHz float64, step StepFunc) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) bool { return true }
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{
		step:     interval,
		stepFunc: step,
	}
}

// Start begins ticking until the context is cancelled, Stop is invoked, or the
// step function reports completion.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.stepFunc == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	//1.- Publish cancel and done under the lock so a racing Halt or Stop
	// observes fully initialised handles.
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	ticker := time.NewTicker(l.step)
	go func() {
		defer close(done)
		defer ticker.Stop()
		last := time.Now()
		accumulator := time.Duration(0)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				//1.- Accumulate elapsed time and run fixed steps while catching up.
				accumulator += now.Sub(last)
				last = now
				for accumulator >= l.step {
					if !l.stepFunc(l.step) {
						//2.- The step reported a terminal state, so quit without another tick.
						return
					}
					accumulator -= l.step
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for the goroutine to exit. Safe to call from
// any goroutine except the step function itself.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.done = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Halt cancels the loop without waiting, safe to call from inside a step.
func (l *Loop) Halt() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
