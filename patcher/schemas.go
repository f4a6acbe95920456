package patcher

import (
	"fmt"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
)

// Replace returns a PatcherFunc for schemas whose diff is the whole next
// value. The stored value is a copy, so it never shares memory with the diff.
func Replace[T interface{ Clone() T }]() PatcherFunc {
	return func(_ any, diffData any) (any, error) {
		next, ok := diffData.(T)
		if !ok {
			return nil, fmt.Errorf("unexpected diff type %T", diffData)
		}
		return next.Clone(), nil
	}
}

// Patchers returns the patcher for every schema the router watches.
func Patchers() map[differ.Schema]PatcherFunc {
	return map[differ.Schema]PatcherFunc{
		differ.SchemaTrade:           Replace[engine.TradeContext](),
		differ.SchemaAddLiquidity:    Replace[engine.AddLiquidityInfo](),
		differ.SchemaRemoveLiquidity: Replace[engine.RemoveLiquidityInfo](),
		differ.SchemaPairLiquidity:   Replace[engine.PairLiquidity](),
	}
}
