package patcher

import (
	"errors"
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockIntPatcher treats the value as an integer and the diff as an addition.
func mockIntPatcher(old any, diff any) (any, error) {
	val := 0
	if old != nil {
		val = old.(int)
	}
	delta, ok := diff.(int)
	if !ok {
		return nil, errors.New("diff is not int")
	}
	return val + delta, nil
}

func makeState(sequence uint64, entries map[string]differ.Entry) *differ.State {
	return &differ.State{Sequence: sequence, Entries: entries}
}

func TestStatePatcher_HappyPath(t *testing.T) {
	schema := differ.Schema("mock/int@v1")
	patcher, err := NewStatePatcher(&StatePatcherConfig{
		Patchers: map[differ.Schema]PatcherFunc{schema: mockIntPatcher},
	})
	require.NoError(t, err)

	oldState := makeState(7, map[string]differ.Entry{
		"a": {Schema: schema, Data: 10},
		"b": {Schema: schema, Data: 50},
		"c": {Schema: schema, Data: 1},
	})

	// "a" is updated, "b" is untouched, "c" is deleted and "d" is new.
	diff := &differ.StateDiff{
		FromSequence: 7,
		ToSequence:   8,
		Timestamp:    42,
		Entries: map[string]differ.EntryDiff{
			"a": {Schema: schema, Data: 5},
			"d": {Schema: schema, Data: 100},
		},
		Deletions: []string{"c"},
	}

	newState, err := patcher.Patch(oldState, diff)
	require.NoError(t, err)

	assert.Equal(t, uint64(8), newState.Sequence)
	assert.Equal(t, uint64(42), newState.Timestamp)
	assert.Equal(t, 15, newState.Entries["a"].Data)
	assert.Equal(t, 50, newState.Entries["b"].Data)
	assert.Equal(t, 100, newState.Entries["d"].Data)
	assert.NotContains(t, newState.Entries, "c")

	assert.Equal(t, 10, oldState.Entries["a"].Data, "old state is not mutated")
	assert.Contains(t, oldState.Entries, "c")
}

func TestStatePatcher_SequenceMismatch(t *testing.T) {
	patcher, _ := NewStatePatcher(&StatePatcherConfig{})

	_, err := patcher.Patch(makeState(100, nil), &differ.StateDiff{FromSequence: 99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch fromSequence")
}

func TestStatePatcher_MissingPatcher(t *testing.T) {
	patcher, _ := NewStatePatcher(&StatePatcherConfig{
		Patchers: map[differ.Schema]PatcherFunc{},
	})

	diff := &differ.StateDiff{
		FromSequence: 1,
		Entries: map[string]differ.EntryDiff{
			"k": {Schema: "unknown", Data: 1},
		},
	}

	_, err := patcher.Patch(makeState(1, nil), diff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no patcher registered")
}

func TestStatePatcher_SchemaMismatch(t *testing.T) {
	schemaA := differ.Schema("A")
	schemaB := differ.Schema("B")
	patcher, _ := NewStatePatcher(&StatePatcherConfig{
		Patchers: map[differ.Schema]PatcherFunc{schemaB: mockIntPatcher},
	})

	oldState := makeState(1, map[string]differ.Entry{"k": {Schema: schemaA, Data: 1}})
	diff := &differ.StateDiff{
		FromSequence: 1,
		Entries:      map[string]differ.EntryDiff{"k": {Schema: schemaB, Data: 1}},
	}

	_, err := patcher.Patch(oldState, diff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
}

func TestNewStatePatcher_RejectsNilPatcher(t *testing.T) {
	_, err := NewStatePatcher(&StatePatcherConfig{
		Patchers: map[differ.Schema]PatcherFunc{"x": nil},
	})
	assert.Error(t, err)
}

func TestReplace_StoresACopy(t *testing.T) {
	patch := Patchers()[differ.SchemaPairLiquidity]
	require.NotNil(t, patch)

	diff := engine.PairLiquidity{Reserve0: big.NewInt(10), LPBalance: decimal.NewFromInt(1)}
	next, err := patch(nil, diff)
	require.NoError(t, err)

	stored := next.(engine.PairLiquidity)
	diff.Reserve0.SetInt64(99)
	assert.Equal(t, int64(10), stored.Reserve0.Int64())

	_, err = patch(nil, 1)
	assert.Error(t, err)
}
