package differ

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Schema is the decode contract for an entry's Data.
// Examples:
// "defistate/router/trade@v1"
// "defistate/uniswapv2/pairLiquidity@v1"
type Schema string

// Entry is one watched value, keyed by subscription key in a State.
type Entry struct {
	Schema Schema `json:"schema"`
	Data   any    `json:"data,omitempty"`
}

// State is one refresh of everything a watcher tracks.
type State struct {
	Sequence  uint64           `json:"sequence"`
	Timestamp uint64           `json:"timestamp"`
	Entries   map[string]Entry `json:"entries"`
}

type EntryDiff struct {
	Schema Schema `json:"schema"`

	// Data is the entry diff, shaped by Schema.
	Data any `json:"data,omitempty"`
}

// StateDiff summarises the changes from one sequence to the next. Entries
// holds only the keys whose values changed.
type StateDiff struct {
	Timestamp    uint64               `json:"timestamp"`
	FromSequence uint64               `json:"fromSequence"`
	ToSequence   uint64               `json:"toSequence"`
	Entries      map[string]EntryDiff `json:"entries"`
	Deletions    []string             `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Entries) == 0 && len(d.Deletions) == 0
}
