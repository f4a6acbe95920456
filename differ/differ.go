package differ

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Config and Main Struct ---

// EntryDiffer compares two values of one schema. old is nil for a key that
// is new. It returns a nil diff when nothing a subscriber cares about changed.
type EntryDiffer func(old, new any) (diff any, err error)

// StateDifferConfig holds all the individual differ functions and dependencies.
type StateDifferConfig struct {
	// One differ per schema (data contract), not per key.
	EntryDiffers map[Schema]EntryDiffer
	Registry     prometheus.Registerer
	Logger       Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, differ := range c.EntryDiffers {
		if differ == nil {
			return fmt.Errorf("config: differ for schema %q cannot be nil", schema)
		}
	}
	return nil
}

// StateDiffer finds the keys whose values changed between two refreshes.
type StateDiffer struct {
	metrics      *Metrics
	logger       Logger
	entryDiffers map[Schema]EntryDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	entryDiffers := make(map[Schema]EntryDiffer, len(cfg.EntryDiffers))
	for schema, entryDiffer := range cfg.EntryDiffers {
		entryDiffers[schema] = entryDiffer
	}

	return &StateDiffer{
		metrics:      NewMetrics(cfg.Registry),
		logger:       cfg.Logger,
		entryDiffers: entryDiffers,
	}, nil
}

// Diff compares new against old. A key missing from old is diffed against
// nil; a key missing from new is a deletion.
func (d *StateDiffer) Diff(old, new *State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration)
	defer totalTimer.ObserveDuration()

	if old == nil || new == nil {
		return nil, errors.New("differ: states cannot be nil")
	}

	entryDiffs := make(map[string]EntryDiff)
	for key, newEntry := range new.Entries {
		var oldData any
		if oldEntry, ok := old.Entries[key]; ok {
			if oldEntry.Schema != newEntry.Schema {
				return nil, fmt.Errorf("differ: schema changed for key %s (old=%s, new=%s)", key, oldEntry.Schema, newEntry.Schema)
			}
			oldData = oldEntry.Data
		}

		differFunc, exists := d.entryDiffers[newEntry.Schema]
		if !exists {
			return nil, fmt.Errorf("differ: no differ registered for schema %q", newEntry.Schema)
		}
		diffData, err := differFunc(oldData, newEntry.Data)
		if err != nil {
			return nil, fmt.Errorf("differ: failed to diff key %s: %w", key, err)
		}
		if diffData == nil {
			continue
		}
		entryDiffs[key] = EntryDiff{Schema: newEntry.Schema, Data: diffData}
	}

	var deletions []string
	for key := range old.Entries {
		if _, ok := new.Entries[key]; !ok {
			deletions = append(deletions, key)
		}
	}
	sort.Strings(deletions)

	d.metrics.changedEntries.Observe(float64(len(entryDiffs)))
	d.logger.Debug("State diffed",
		"fromSequence", old.Sequence,
		"toSequence", new.Sequence,
		"changed", len(entryDiffs),
		"deleted", len(deletions),
	)

	return &StateDiff{
		Timestamp:    uint64(time.Now().UnixNano()),
		FromSequence: old.Sequence,
		ToSequence:   new.Sequence,
		Entries:      entryDiffs,
		Deletions:    deletions,
	}, nil
}
