package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-router-go/differ"
)

// PatcherFunc applies an entry diff to the previous value to produce the next.
//
// Implementations must not mutate prev, which is nil for a key that is new.
type PatcherFunc func(prev any, diffData any) (next any, err error)

type StatePatcherConfig struct {
	// Map Schema -> Patcher Function
	// Example: "defistate/router/trade@v1" -> Replace[engine.TradeContext]()
	Patchers map[differ.Schema]PatcherFunc
}

func (c *StatePatcherConfig) validate() error {
	for schema, patcher := range c.Patchers {
		if patcher == nil {
			return fmt.Errorf("patcher for schema %q cannot be nil", schema)
		}
	}
	return nil
}

// StatePatcher applies watcher diffs to cached states.
type StatePatcher struct {
	patchers map[differ.Schema]PatcherFunc
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if cfg == nil {
		return nil, errors.New("config: StatePatcherConfig cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	patchers := make(map[differ.Schema]PatcherFunc, len(cfg.Patchers))
	for k, v := range cfg.Patchers {
		patchers[k] = v
	}

	return &StatePatcher{
		patchers: patchers,
	}, nil
}

// Patch creates the next State by applying diff to old. Entries that did
// not change are shared with old; changed entries are replaced by their
// PatcherFunc's result.
func (p *StatePatcher) Patch(old *differ.State, diff *differ.StateDiff) (*differ.State, error) {
	if old == nil || diff == nil {
		return nil, errors.New("patcher: state and diff cannot be nil")
	}
	if old.Sequence != diff.FromSequence {
		return nil, fmt.Errorf("patcher: mismatch fromSequence (state=%d, diff=%d)", old.Sequence, diff.FromSequence)
	}

	entries := make(map[string]differ.Entry, len(old.Entries)+len(diff.Entries))
	for k, v := range old.Entries {
		entries[k] = v
	}
	for _, key := range diff.Deletions {
		delete(entries, key)
	}

	for key, entryDiff := range diff.Entries {
		patcherFunc, ok := p.patchers[entryDiff.Schema]
		if !ok {
			return nil, fmt.Errorf("patcher: no patcher registered for schema %q (key=%s)", entryDiff.Schema, key)
		}

		var prev any
		if oldEntry, exists := old.Entries[key]; exists {
			if oldEntry.Schema != entryDiff.Schema {
				return nil, fmt.Errorf("patcher: schema mismatch for key %s (old=%s, diff=%s)", key, oldEntry.Schema, entryDiff.Schema)
			}
			prev = oldEntry.Data
		}

		next, err := patcherFunc(prev, entryDiff.Data)
		if err != nil {
			return nil, fmt.Errorf("patcher: failed to patch key %s: %w", key, err)
		}
		entries[key] = differ.Entry{Schema: entryDiff.Schema, Data: next}
	}

	return &differ.State{
		Sequence:  diff.ToSequence,
		Timestamp: diff.Timestamp,
		Entries:   entries,
	}, nil
}
