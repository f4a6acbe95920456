package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// --- Diff Structures with Helper Methods ---

type PairsDiff struct {
	Additions []Pair           `json:"additions,omitempty"`
	Updates   []Pair           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PairsDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Changed returns the addresses of every added or updated pair.
func (d PairsDiff) Changed() []common.Address {
	out := make([]common.Address, 0, len(d.Additions)+len(d.Updates))
	for _, p := range d.Additions {
		out = append(out, p.Address)
	}
	for _, p := range d.Updates {
		out = append(out, p.Address)
	}
	return out
}

// Differ calculates the difference between two snapshots of a wallet's pairs.
// A pair is updated when its blockTimestampLast advanced or when any of the
// reserves, the total supply or the wallet's LP balance moved. Output follows
// the order of new; deletions follow the order of old.
func Differ(old, new []Pair) PairsDiff {
	oldPairsMap := make(map[common.Address]Pair, len(old))
	for _, pair := range old {
		oldPairsMap[pair.Address] = pair
	}
	newPairsMap := make(map[common.Address]struct{}, len(new))

	var diff PairsDiff
	for _, newPair := range new {
		newPairsMap[newPair.Address] = struct{}{}
		oldPair, exists := oldPairsMap[newPair.Address]
		if !exists {
			diff.Additions = append(diff.Additions, newPair)
			continue
		}
		if pairChanged(oldPair, newPair) {
			diff.Updates = append(diff.Updates, newPair)
		}
	}

	for _, oldPair := range old {
		if _, exists := newPairsMap[oldPair.Address]; !exists {
			diff.Deletions = append(diff.Deletions, oldPair.Address)
		}
	}
	return diff
}

func pairChanged(old, new Pair) bool {
	if new.BlockTimestampLast != old.BlockTimestampLast {
		return true
	}
	return cmpBig(old.Reserve0, new.Reserve0) != 0 ||
		cmpBig(old.Reserve1, new.Reserve1) != 0 ||
		cmpBig(old.TotalSupply, new.TotalSupply) != 0 ||
		cmpBig(old.LPBalance, new.LPBalance) != 0
}

func cmpBig(a, b *big.Int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Cmp(b)
}
