package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to find a pair by address in a slice, for testing assertions.
func findPair(pairs []Pair, addr common.Address) *Pair {
	for i := range pairs {
		if pairs[i].Address == addr {
			return &pairs[i]
		}
	}
	return nil
}

func TestPatcher(t *testing.T) {
	// --- Base Data for Tests ---
	initialState := []Pair{
		newPair(pairAddr1, 1000, 5000, 1),
		newPair(pairAddr2, 2000, 6000, 1),
		newPair(pairAddr3, 3000, 7000, 1),
	}

	t.Run("should handle only additions", func(t *testing.T) {
		newState, err := Patcher(initialState, PairsDiff{Additions: []Pair{newPair(pairAddr4, 4000, 1, 1)}})
		require.NoError(t, err)

		require.Len(t, newState, 4)
		assert.Equal(t, pairAddr4, newState[3].Address, "additions are appended")
		assert.Equal(t, int64(4000), newState[3].Reserve0.Int64())
	})

	t.Run("should handle only deletions", func(t *testing.T) {
		newState, err := Patcher(initialState, PairsDiff{Deletions: []common.Address{pairAddr2}})
		require.NoError(t, err)

		assert.Len(t, newState, 2)
		assert.Nil(t, findPair(newState, pairAddr2), "Pair 2 should be deleted")
		assert.Equal(t, pairAddr1, newState[0].Address)
		assert.Equal(t, pairAddr3, newState[1].Address)
	})

	t.Run("should handle only updates in place", func(t *testing.T) {
		newState, err := Patcher(initialState, PairsDiff{Updates: []Pair{newPair(pairAddr2, 2001, 6006, 2)}})
		require.NoError(t, err)

		require.Len(t, newState, 3)
		assert.Equal(t, pairAddr2, newState[1].Address, "updates keep their position")
		assert.Equal(t, int64(2001), newState[1].Reserve0.Int64())
		assert.Equal(t, uint32(2), newState[1].BlockTimestampLast)
	})

	t.Run("should verify deep copy on update", func(t *testing.T) {
		localInitialState := []Pair{newPair(pairAddr1, 1000, 5000, 1)}
		pair1Updated := newPair(pairAddr1, 1001, 5005, 2)

		newState, err := Patcher(localInitialState, PairsDiff{Updates: []Pair{pair1Updated}})
		require.NoError(t, err)

		pair1Updated.Reserve0.SetInt64(9999)
		assert.Equal(t, int64(1001), newState[0].Reserve0.Int64(), "patched state must not alias the diff")

		newState[0].LPBalance.SetInt64(42)
		assert.Equal(t, int64(10), localInitialState[0].LPBalance.Int64(), "patched state must not alias the previous state")
	})

	t.Run("patching a diff reproduces the new snapshot", func(t *testing.T) {
		next := []Pair{newPair(pairAddr1, 1001, 5000, 2), newPair(pairAddr3, 3000, 7000, 1), newPair(pairAddr4, 1, 1, 1)}
		patched, err := Patcher(initialState, Differ(initialState, next))
		require.NoError(t, err)

		require.Len(t, patched, len(next))
		for i := range next {
			assert.Equal(t, next[i].Address, patched[i].Address)
			assert.Equal(t, 0, next[i].Reserve0.Cmp(patched[i].Reserve0))
		}
		assert.Equal(t, big.NewInt(100), patched[0].TotalSupply)
	})
}
