package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/defistate/defistate-router-go/chains"
)

// TickFunc is one unit of work run by a Task.
type TickFunc func(ctx context.Context)

// Trigger drives a task: it calls tick whenever work is due and returns
// once ctx is done.
type Trigger func(ctx context.Context, tick TickFunc)

// Ticker ticks immediately, then every interval.
func Ticker(interval time.Duration) Trigger {
	return func(ctx context.Context, tick TickFunc) {
		tick(ctx)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}
}

// Blocks ticks once per new head delivered by source. The head stream is
// opened once, so restarting a task does not leave listeners behind.
func Blocks(source chains.BlockSource) Trigger {
	heads := source.Blocks()
	return func(ctx context.Context, tick TickFunc) {
		for {
			select {
			case _, ok := <-heads:
				if !ok {
					return
				}
				tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}
}

// Task is a cancellable handle around one running trigger. Ticks run
// sequentially in the task's goroutine. At most one trigger runs at a time.
type Task struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Restart stops the running trigger, waits for it to exit, and starts a new
// one under ctx.
func (t *Task) Restart(ctx context.Context, trigger Trigger, tick TickFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel, t.done = cancel, done
	go func() {
		defer close(done)
		trigger(runCtx, tick)
	}()
}

// Stop cancels the running trigger and waits for it to exit. It is safe to
// call on a stopped task.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Running reports whether a trigger is still live.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *Task) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel, t.done = nil, nil
}
