package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// deepCopyPair creates a new Pair with its own memory for pointer types like *big.Int.
// This is essential to prevent the new state from sharing memory with the old state.
func deepCopyPair(p Pair) Pair {
	newPair := p
	for _, v := range []**big.Int{&newPair.Reserve0, &newPair.Reserve1, &newPair.TotalSupply, &newPair.LPBalance} {
		if *v != nil {
			*v = new(big.Int).Set(*v)
		}
	}
	return newPair
}

// Patcher constructs the next snapshot by applying a diff to the previous one.
// Surviving pairs keep their position, additions are appended in diff order.
func Patcher(prevState []Pair, diff PairsDiff) ([]Pair, error) {
	deleted := make(map[common.Address]struct{}, len(diff.Deletions))
	for _, addr := range diff.Deletions {
		deleted[addr] = struct{}{}
	}
	updated := make(map[common.Address]Pair, len(diff.Updates))
	for _, pair := range diff.Updates {
		updated[pair.Address] = pair
	}

	finalState := make([]Pair, 0, len(prevState)+len(diff.Additions))
	for _, pair := range prevState {
		if _, ok := deleted[pair.Address]; ok {
			continue
		}
		if next, ok := updated[pair.Address]; ok {
			pair = next
		}
		finalState = append(finalState, deepCopyPair(pair))
	}
	for _, pair := range diff.Additions {
		finalState = append(finalState, deepCopyPair(pair))
	}
	return finalState, nil
}
