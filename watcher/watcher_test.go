package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/patcher"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterSchema = differ.Schema("test/counter@v1")

type counter struct {
	N int
}

func (c counter) Clone() counter {
	return c
}

func counterDiffer(old, new any) (any, error) {
	if old != nil && old.(counter) == new.(counter) {
		return nil, nil
	}
	return new, nil
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

// manual ticks once per value sent on ticks.
func manual(ticks <-chan struct{}) Trigger {
	return func(ctx context.Context, tick TickFunc) {
		for {
			select {
			case <-ticks:
				tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}
}

func newTestWatcher(t *testing.T, trigger Trigger, buffer int) (*Watcher[counter], *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		EntryDiffers: map[differ.Schema]differ.EntryDiffer{counterSchema: counterDiffer},
		Registry:     reg,
		Logger:       logger,
	})
	require.NoError(t, err)
	p, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: map[differ.Schema]patcher.PatcherFunc{counterSchema: patcher.Replace[counter]()},
	})
	require.NoError(t, err)
	w, err := New[counter](Config{
		Schema:   counterSchema,
		Trigger:  trigger,
		Differ:   d,
		Patcher:  p,
		Buffer:   buffer,
		Logger:   logger,
		Registry: reg,
	})
	require.NoError(t, err)
	return w, reg
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a value")
	}
	var zero T
	return zero
}

func assertNothing[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %v", v)
		}
	default:
	}
}

func TestWatcher_EmitsOnlyChangedKeys(t *testing.T) {
	ticks := make(chan struct{})
	w, _ := newTestWatcher(t, manual(ticks), 4)
	defer w.Stop()

	var n atomic.Int64
	refresh := func(ctx context.Context) (map[string]counter, error) {
		return map[string]counter{
			"a": {N: 1},
			"b": {N: int(n.Add(1))},
		}, nil
	}

	subA, subB := w.Subscribe("a"), w.Subscribe("b")
	require.NoError(t, w.Watch(context.Background(), refresh, map[string]counter{"a": {N: 1}, "b": {N: 0}}))

	ticks <- struct{}{}
	assert.Equal(t, 1, receive(t, subB.C()).N)
	ticks <- struct{}{}
	assert.Equal(t, 2, receive(t, subB.C()).N)

	assertNothing(t, subA.C())
}

func TestWatcher_FansOutToEverySubscriberOfAKey(t *testing.T) {
	ticks := make(chan struct{})
	w, _ := newTestWatcher(t, manual(ticks), 4)
	defer w.Stop()

	first, second := w.Subscribe("k"), w.Subscribe("k")
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, "k", first.Key())

	require.NoError(t, w.Watch(context.Background(), func(ctx context.Context) (map[string]counter, error) {
		return map[string]counter{"k": {N: 7}}, nil
	}, nil))

	ticks <- struct{}{}
	assert.Equal(t, 7, receive(t, first.C()).N)
	assert.Equal(t, 7, receive(t, second.C()).N)
}

func TestWatcher_RefreshErrorKeepsCache(t *testing.T) {
	ticks := make(chan struct{})
	w, reg := newTestWatcher(t, manual(ticks), 4)
	defer w.Stop()

	var calls atomic.Int64
	sub := w.Subscribe("k")
	require.NoError(t, w.Watch(context.Background(), func(ctx context.Context) (map[string]counter, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("node unavailable")
		}
		return map[string]counter{"k": {N: 1}}, nil
	}, map[string]counter{"k": {N: 0}}))

	ticks <- struct{}{}
	ticks <- struct{}{}
	assert.Equal(t, 1, receive(t, sub.C()).N)

	m := NewMetrics(reg)
	assert.Equal(t, float64(1), counterValue(t, m.ticksTotal.WithLabelValues(string(counterSchema), "error")))
	assert.Equal(t, float64(1), counterValue(t, m.ticksTotal.WithLabelValues(string(counterSchema), "ok")))
}

func TestWatcher_DropsWhenSubscriberIsFull(t *testing.T) {
	ticks := make(chan struct{})
	w, reg := newTestWatcher(t, manual(ticks), 1)
	defer w.Stop()

	var n atomic.Int64
	sub := w.Subscribe("k")
	require.NoError(t, w.Watch(context.Background(), func(ctx context.Context) (map[string]counter, error) {
		return map[string]counter{"k": {N: int(n.Add(1))}}, nil
	}, nil))

	ticks <- struct{}{}
	ticks <- struct{}{}
	// The third tick can only be taken once the second has been handled.
	ticks <- struct{}{}

	assert.Equal(t, 1, receive(t, sub.C()).N)
	m := NewMetrics(reg)
	assert.GreaterOrEqual(t, counterValue(t, m.emissionsTotal.WithLabelValues(string(counterSchema), "dropped")), float64(1))
}

func TestWatcher_UnsubscribeClosesStream(t *testing.T) {
	w, _ := newTestWatcher(t, manual(make(chan struct{})), 1)
	sub := w.Subscribe("k")

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestWatcher_StopCompletesStreams(t *testing.T) {
	w, _ := newTestWatcher(t, Ticker(time.Hour), 1)
	sub := w.Subscribe("k")
	require.NoError(t, w.Watch(context.Background(), func(ctx context.Context) (map[string]counter, error) {
		return nil, nil
	}, nil))

	w.Stop()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.False(t, w.Running())
	sub.Unsubscribe()
}

func TestWatcher_DiscardsResultsThatLandAfterStop(t *testing.T) {
	ticks := make(chan struct{})
	w, reg := newTestWatcher(t, manual(ticks), 4)

	entered, release := make(chan struct{}), make(chan struct{})
	sub := w.Subscribe("k")
	require.NoError(t, w.Watch(context.Background(), func(ctx context.Context) (map[string]counter, error) {
		close(entered)
		<-release
		return map[string]counter{"k": {N: 1}}, nil
	}, nil))

	ticks <- struct{}{}
	<-entered

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	// The stream completes before the in-flight refresh returns.
	_, ok := <-sub.C()
	assert.False(t, ok)

	close(release)
	<-stopped

	m := NewMetrics(reg)
	assert.Equal(t, float64(1), counterValue(t, m.staleTotal.WithLabelValues(string(counterSchema))))
}

func TestWatcher_RestartDiscardsPreviousGeneration(t *testing.T) {
	ticks := make(chan struct{})
	w, _ := newTestWatcher(t, manual(ticks), 4)
	defer w.Stop()

	sub := w.Subscribe("k")
	require.NoError(t, w.Watch(context.Background(), func(ctx context.Context) (map[string]counter, error) {
		return map[string]counter{"k": {N: 1}}, nil
	}, nil))
	require.NoError(t, w.Watch(context.Background(), func(ctx context.Context) (map[string]counter, error) {
		return map[string]counter{"k": {N: 2}}, nil
	}, nil))

	ticks <- struct{}{}
	assert.Equal(t, 2, receive(t, sub.C()).N)
}

func TestWatcher_RejectsNilRefresh(t *testing.T) {
	w, _ := newTestWatcher(t, manual(make(chan struct{})), 1)
	assert.Error(t, w.Watch(context.Background(), nil, nil))
}

func TestNew_Validation(t *testing.T) {
	_, err := New[counter](Config{})
	assert.Error(t, err)
}

// --- Task ---

func TestTask_RestartKeepsOneTickChainLive(t *testing.T) {
	var (
		task    Task
		mu      sync.Mutex
		live    int
		maxLive int
		started = make(chan struct{}, 16)
	)
	trigger := func(ctx context.Context, tick TickFunc) {
		mu.Lock()
		live++
		maxLive = max(maxLive, live)
		mu.Unlock()
		started <- struct{}{}

		<-ctx.Done()

		mu.Lock()
		live--
		mu.Unlock()
	}

	for i := 0; i < 5; i++ {
		task.Restart(context.Background(), trigger, func(context.Context) {})
		<-started
	}
	assert.True(t, task.Running())

	task.Stop()
	task.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxLive)
	assert.Equal(t, 0, live)
	assert.False(t, task.Running())
}

func TestTicker_FirstTickIsImmediate(t *testing.T) {
	var task Task
	ticked := make(chan struct{}, 1)
	task.Restart(context.Background(), Ticker(time.Hour), func(context.Context) {
		ticked <- struct{}{}
	})
	defer task.Stop()

	receive(t, ticked)
}

type headSource struct {
	ch chan engine.BlockSummary
}

func (s headSource) Blocks() <-chan engine.BlockSummary {
	return s.ch
}

func TestBlocks_TicksPerHeadAndEndsWithTheStream(t *testing.T) {
	var task Task
	source := headSource{ch: make(chan engine.BlockSummary, 2)}
	ticked := make(chan struct{}, 2)
	task.Restart(context.Background(), Blocks(source), func(context.Context) {
		ticked <- struct{}{}
	})

	source.ch <- engine.BlockSummary{}
	source.ch <- engine.BlockSummary{}
	receive(t, ticked)
	receive(t, ticked)

	close(source.ch)
	require.Eventually(t, func() bool { return !task.Running() }, 2*time.Second, 10*time.Millisecond)
}
