package differ

import (
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/defistate-router-go/engine"
)

const (
	SchemaTrade           Schema = "defistate/router/trade@v1"
	SchemaAddLiquidity    Schema = "defistate/router/addLiquidityInfo@v1"
	SchemaRemoveLiquidity Schema = "defistate/router/removeLiquidityInfo@v1"
	SchemaPairLiquidity   Schema = "defistate/uniswapv2/pairLiquidity@v1"
)

// Differs returns the differ for every schema the router watches. now
// decides when a cached trade's deadline has elapsed.
func Differs(now func() time.Time) map[Schema]EntryDiffer {
	return map[Schema]EntryDiffer{
		SchemaTrade:           TradeDiffer(now),
		SchemaAddLiquidity:    typed(addLiquidityChanged),
		SchemaRemoveLiquidity: typed(removeLiquidityChanged),
		SchemaPairLiquidity:   typed(pairLiquidityChanged),
	}
}

// typed adapts a change predicate to an EntryDiffer whose diff is the whole
// new value.
func typed[T any](changed func(old, new T) bool) EntryDiffer {
	return func(old, new any) (any, error) {
		next, ok := new.(T)
		if !ok {
			return nil, fmt.Errorf("unexpected type %T", new)
		}
		if old == nil {
			return next, nil
		}
		prev, ok := old.(T)
		if !ok {
			return nil, fmt.Errorf("unexpected type %T", old)
		}
		if !changed(prev, next) {
			return nil, nil
		}
		return next, nil
	}
}

// TradeDiffer reports a trade as changed when its quote, route, allowance
// or balance moved, and whenever the cached trade's deadline has passed so
// subscribers always hold a signable transaction.
func TradeDiffer(now func() time.Time) EntryDiffer {
	return typed(func(old, new engine.TradeContext) bool {
		if now().Unix() >= old.Expires {
			return true
		}
		return !old.ExpectedQuote.Equal(new.ExpectedQuote) ||
			old.RouteLabel != new.RouteLabel ||
			old.Version != new.Version ||
			old.HasEnoughAllowance != new.HasEnoughAllowance ||
			old.FromBalance.HasEnough != new.FromBalance.HasEnough ||
			!old.FromBalance.Balance.Equal(new.FromBalance.Balance)
	})
}

func addLiquidityChanged(old, new engine.AddLiquidityInfo) bool {
	return old.IsFirstSupplier != new.IsFirstSupplier ||
		!old.TokenAPerLP.Equal(new.TokenAPerLP) ||
		!old.TokenBPerLP.Equal(new.TokenBPerLP) ||
		!old.LPBalance.Equal(new.LPBalance)
}

func removeLiquidityChanged(old, new engine.RemoveLiquidityInfo) bool {
	return old.InvalidPair != new.InvalidPair ||
		!old.TokenAPerLP.Equal(new.TokenAPerLP) ||
		!old.TokenBPerLP.Equal(new.TokenBPerLP) ||
		!old.LPBalance.Equal(new.LPBalance)
}

// pairLiquidityChanged fires when the pair synced since the last read, or
// when the reserves or the wallet's LP balance moved.
func pairLiquidityChanged(old, new engine.PairLiquidity) bool {
	if new.BlockTimestampLast > old.BlockTimestampLast {
		return true
	}
	return cmpBig(old.Reserve0, new.Reserve0) != 0 ||
		cmpBig(old.Reserve1, new.Reserve1) != 0 ||
		!old.LPBalance.Equal(new.LPBalance)
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
