package watcher

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/patcher"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultBufferSize is the per-subscription channel capacity.
const DefaultBufferSize = 16

// Cloner is implemented by every value a watcher emits, so that each
// subscriber receives its own copy.
type Cloner[T any] interface {
	Clone() T
}

// RefreshFunc reads the current value for every watched key.
type RefreshFunc[T any] func(ctx context.Context) (map[string]T, error)

// Config holds the configuration for a watcher.
type Config struct {
	Schema   differ.Schema
	Trigger  Trigger
	Differ   *differ.StateDiffer
	Patcher  *patcher.StatePatcher
	Buffer   int
	Logger   chains.Logger
	Registry prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Schema == "" {
		return errors.New("config: Schema is required")
	}
	if c.Trigger == nil {
		return errors.New("config: Trigger is required")
	}
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.Patcher == nil {
		return errors.New("config: Patcher is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Watcher re-runs a refresh on every tick of its trigger and sends each
// changed value to the subscribers of its key.
//
// The cached state lives only inside the tick goroutine. mu guards the
// subscriber map and the active generation.
type Watcher[T Cloner[T]] struct {
	schema  differ.Schema
	trigger Trigger
	differ  *differ.StateDiffer
	patcher *patcher.StatePatcher
	buffer  int
	logger  chains.Logger
	metrics *Metrics

	task    Task
	watchMu sync.Mutex

	mu         sync.Mutex
	subs       map[string]map[uuid.UUID]*Subscription[T]
	active     bool
	generation uint64
}

func New[T Cloner[T]](cfg Config) (*Watcher[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Watcher[T]{
		schema:  cfg.Schema,
		trigger: cfg.Trigger,
		differ:  cfg.Differ,
		patcher: cfg.Patcher,
		buffer:  buffer,
		logger:  cfg.Logger,
		metrics: NewMetrics(cfg.Registry),
		subs:    make(map[string]map[uuid.UUID]*Subscription[T]),
	}, nil
}

// Subscription is one consumer's stream of values for a key. The channel is
// closed by Unsubscribe or by the watcher's Stop.
type Subscription[T any] struct {
	id          uuid.UUID
	key         string
	ch          chan T
	unsubscribe func(*Subscription[T])
}

func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

func (s *Subscription[T]) ID() uuid.UUID {
	return s.id
}

func (s *Subscription[T]) Key() string {
	return s.key
}

// Unsubscribe closes the stream. It is safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.unsubscribe(s)
}

// Subscribe opens a stream of values for key.
func (w *Watcher[T]) Subscribe(key string) *Subscription[T] {
	sub := &Subscription[T]{
		id:          uuid.New(),
		key:         key,
		ch:          make(chan T, w.buffer),
		unsubscribe: w.unsubscribe,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subs[key] == nil {
		w.subs[key] = make(map[uuid.UUID]*Subscription[T])
	}
	w.subs[key][sub.id] = sub
	w.metrics.subscribers.WithLabelValues(string(w.schema)).Inc()
	return sub
}

func (w *Watcher[T]) unsubscribe(sub *Subscription[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	subs, ok := w.subs[sub.key]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(w.subs, sub.key)
	}
	close(sub.ch)
	w.metrics.subscribers.WithLabelValues(string(w.schema)).Dec()
}

// Watch starts refreshing. initial is the value set subscribers already
// hold; only changes against it are emitted. A running watch is stopped,
// and has exited, before the new one starts.
func (w *Watcher[T]) Watch(ctx context.Context, refresh RefreshFunc[T], initial map[string]T) error {
	if refresh == nil {
		return errors.New("watcher: refresh cannot be nil")
	}
	w.watchMu.Lock()
	defer w.watchMu.Unlock()

	w.mu.Lock()
	w.generation++
	gen := w.generation
	w.active = true
	w.mu.Unlock()

	cached := w.state(0, initial)
	w.task.Restart(ctx, w.trigger, func(ctx context.Context) {
		cached = w.tick(ctx, gen, refresh, cached)
	})
	return nil
}

// Stop cancels the running watch, waits for it to exit and completes every
// subscription.
func (w *Watcher[T]) Stop() {
	w.watchMu.Lock()
	defer w.watchMu.Unlock()

	w.mu.Lock()
	w.active = false
	w.generation++
	for _, subs := range w.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	w.subs = make(map[string]map[uuid.UUID]*Subscription[T])
	w.metrics.subscribers.WithLabelValues(string(w.schema)).Set(0)
	w.mu.Unlock()

	w.task.Stop()
}

// Running reports whether a watch is live.
func (w *Watcher[T]) Running() bool {
	return w.task.Running()
}

func (w *Watcher[T]) state(sequence uint64, values map[string]T) *differ.State {
	entries := make(map[string]differ.Entry, len(values))
	for key, value := range values {
		entries[key] = differ.Entry{Schema: w.schema, Data: value}
	}
	return &differ.State{Sequence: sequence, Entries: entries}
}

// tick refreshes, diffs against cached and emits. It returns the state to
// cache for the next tick.
func (w *Watcher[T]) tick(ctx context.Context, gen uint64, refresh RefreshFunc[T], cached *differ.State) *differ.State {
	schema := string(w.schema)
	timer := prometheus.NewTimer(w.metrics.tickDuration.WithLabelValues(schema))
	defer timer.ObserveDuration()

	values, err := refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			w.metrics.staleTotal.WithLabelValues(schema).Inc()
			return cached
		}
		w.metrics.ticksTotal.WithLabelValues(schema, "error").Inc()
		w.logger.Warn("Watch refresh failed", "schema", schema, "error", err)
		return cached
	}

	diff, err := w.differ.Diff(cached, w.state(cached.Sequence+1, values))
	if err != nil {
		w.metrics.ticksTotal.WithLabelValues(schema, "error").Inc()
		w.logger.Error("Watch diff failed", "schema", schema, "error", err)
		return cached
	}
	next, err := w.patcher.Patch(cached, diff)
	if err != nil {
		w.metrics.ticksTotal.WithLabelValues(schema, "error").Inc()
		w.logger.Error("Watch patch failed", "schema", schema, "error", err)
		return cached
	}
	w.metrics.ticksTotal.WithLabelValues(schema, "ok").Inc()

	w.emit(ctx, gen, next, diff)
	return next
}

// emit sends every changed value to its key's subscribers. A result that
// belongs to a stopped or replaced watch is discarded. Sends never block; a
// full subscriber misses the update.
func (w *Watcher[T]) emit(ctx context.Context, gen uint64, state *differ.State, diff *differ.StateDiff) {
	schema := string(w.schema)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active || gen != w.generation || ctx.Err() != nil {
		w.metrics.staleTotal.WithLabelValues(schema).Inc()
		w.logger.Debug("Discarding stale watch result", "schema", schema, "sequence", state.Sequence)
		return
	}

	keys := make([]string, 0, len(diff.Entries))
	for key := range diff.Entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		subs := w.subs[key]
		if len(subs) == 0 {
			continue
		}
		value, ok := state.Entries[key].Data.(T)
		if !ok {
			continue
		}
		for _, sub := range subs {
			select {
			case sub.ch <- value.Clone():
				w.metrics.emissionsTotal.WithLabelValues(schema, "delivered").Inc()
			default:
				w.metrics.emissionsTotal.WithLabelValues(schema, "dropped").Inc()
				w.logger.Warn("Subscriber is full; dropping update.", "schema", schema, "key", key, "subscription", sub.id)
			}
		}
	}
}
