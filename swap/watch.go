package swap

import (
	"context"
	"maps"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/watcher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Single-value watches keep their value under one key.
const (
	tradeKey           = "trade"
	addLiquidityKey    = "addLiquidity"
	removeLiquidityKey = "removeLiquidity"
)

// WatchTrade builds the trade for amount and re-quotes it on every tick.
// The subscription receives a new trade context whenever the quote, route,
// allowance or balance moves, and when the previous one has expired.
// Watching again replaces the running trade watch.
func (p *Pair) WatchTrade(ctx context.Context, amount decimal.Decimal, direction engine.Direction) (engine.TradeContext, *watcher.Subscription[engine.TradeContext], error) {
	initial, err := p.Trade(ctx, amount, direction)
	if err != nil {
		return engine.TradeContext{}, nil, err
	}
	sub := p.trades.Subscribe(tradeKey)
	refresh := func(ctx context.Context) (map[string]engine.TradeContext, error) {
		tc, err := p.Trade(ctx, amount, direction)
		if err != nil {
			return nil, err
		}
		return map[string]engine.TradeContext{tradeKey: tc}, nil
	}
	if err := p.trades.Watch(ctx, refresh, map[string]engine.TradeContext{tradeKey: initial.Clone()}); err != nil {
		sub.Unsubscribe()
		return engine.TradeContext{}, nil, err
	}
	return initial, sub, nil
}

// StopWatchingTrade stops the trade watch and completes its subscriptions.
func (p *Pair) StopWatchingTrade() {
	p.trades.Stop()
}

// WatchAddLiquidity streams the pair's add-liquidity info whenever the pool
// ratio or the wallet's LP balance moves.
func (p *Pair) WatchAddLiquidity(ctx context.Context) (engine.AddLiquidityInfo, *watcher.Subscription[engine.AddLiquidityInfo], error) {
	initial, err := p.AddLiquidityInfo(ctx)
	if err != nil {
		return engine.AddLiquidityInfo{}, nil, err
	}
	sub := p.adds.Subscribe(addLiquidityKey)
	refresh := func(ctx context.Context) (map[string]engine.AddLiquidityInfo, error) {
		info, err := p.AddLiquidityInfo(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]engine.AddLiquidityInfo{addLiquidityKey: info}, nil
	}
	if err := p.adds.Watch(ctx, refresh, map[string]engine.AddLiquidityInfo{addLiquidityKey: initial.Clone()}); err != nil {
		sub.Unsubscribe()
		return engine.AddLiquidityInfo{}, nil, err
	}
	return initial, sub, nil
}

func (p *Pair) StopWatchingAddLiquidity() {
	p.adds.Stop()
}

// WatchRemoveLiquidity streams the wallet's position in the pair whenever
// the pool ratio or its LP balance moves.
func (p *Pair) WatchRemoveLiquidity(ctx context.Context) (engine.RemoveLiquidityInfo, *watcher.Subscription[engine.RemoveLiquidityInfo], error) {
	initial, err := p.RemoveLiquidityInfo(ctx)
	if err != nil {
		return engine.RemoveLiquidityInfo{}, nil, err
	}
	sub := p.removes.Subscribe(removeLiquidityKey)
	refresh := func(ctx context.Context) (map[string]engine.RemoveLiquidityInfo, error) {
		info, err := p.RemoveLiquidityInfo(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]engine.RemoveLiquidityInfo{removeLiquidityKey: info}, nil
	}
	if err := p.removes.Watch(ctx, refresh, map[string]engine.RemoveLiquidityInfo{removeLiquidityKey: initial.Clone()}); err != nil {
		sub.Unsubscribe()
		return engine.RemoveLiquidityInfo{}, nil, err
	}
	return initial, sub, nil
}

func (p *Pair) StopWatchingRemoveLiquidity() {
	p.removes.Stop()
}

// Position is one supplied pair and the stream of its updates.
type Position struct {
	Liquidity engine.PairLiquidity
	Updates   *watcher.Subscription[engine.PairLiquidity]
}

// WatchPortfolio scans the wallet's supplied pairs and streams each pair's
// position separately. A tick re-reads only the pair values that move and
// recomputes positions for the pairs that changed.
func (p *Pair) WatchPortfolio(ctx context.Context) ([]Position, error) {
	addrs, err := p.scanner.SuppliedPairs(ctx)
	if err != nil {
		return nil, err
	}
	pairs, err := p.scanner.Pairs(ctx, addrs)
	if err != nil {
		return nil, err
	}
	positions, err := p.scanner.Liquidity(ctx, pairs)
	if err != nil {
		return nil, err
	}

	current := make(map[string]engine.PairLiquidity, len(positions))
	out := make([]Position, len(positions))
	for i, pos := range positions {
		key := pos.PairAddress.Hex()
		current[key] = pos.Clone()
		out[i] = Position{Liquidity: pos, Updates: p.positions.Subscribe(key)}
	}

	// snapshot and current are only touched by the tick goroutine from here on.
	snapshot := pairs
	refresh := func(ctx context.Context) (map[string]engine.PairLiquidity, error) {
		next, diff, err := p.scanner.Refresh(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		if !diff.IsEmpty() {
			changed, err := p.scanner.Liquidity(ctx, pairsByAddress(next, diff.Changed()))
			if err != nil {
				return nil, err
			}
			for _, pos := range changed {
				current[pos.PairAddress.Hex()] = pos
			}
		}
		snapshot = next
		return maps.Clone(current), nil
	}
	initial := maps.Clone(current)
	if err := p.positions.Watch(ctx, refresh, initial); err != nil {
		for _, pos := range out {
			pos.Updates.Unsubscribe()
		}
		return nil, err
	}
	return out, nil
}

func (p *Pair) StopWatchingPortfolio() {
	p.positions.Stop()
}

// Close stops every watch.
func (p *Pair) Close() {
	p.trades.Stop()
	p.adds.Stop()
	p.removes.Stop()
	p.positions.Stop()
}

func pairsByAddress(pairs []uniswapv2.Pair, addrs []common.Address) []uniswapv2.Pair {
	want := make(map[common.Address]bool, len(addrs))
	for _, a := range addrs {
		want[a] = true
	}
	var out []uniswapv2.Pair
	for _, pair := range pairs {
		if want[pair.Address] {
			out = append(out, pair)
		}
	}
	return out
}
