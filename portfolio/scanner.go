package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/multicall"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/tokens"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config holds the configuration for the portfolio scanner.
type Config struct {
	Caller    chains.Caller
	Tokens    *tokens.Resolver
	Addresses contracts.Addresses
	Owner     common.Address
	Logger    chains.Logger
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Caller == nil {
		return errors.New("config: Caller is required")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	if c.Owner == (common.Address{}) {
		return errors.New("config: Owner is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Scanner finds the v2 pairs a wallet supplies and reports its positions.
type Scanner struct {
	caller chains.Caller
	tokens *tokens.Resolver
	addrs  contracts.Addresses
	owner  common.Address
	logger chains.Logger
	abis   *contracts.ABIs
}

func NewScanner(cfg Config) (*Scanner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	abis, err := contracts.Load()
	if err != nil {
		return nil, err
	}
	return &Scanner{
		caller: cfg.Caller,
		tokens: cfg.Tokens,
		addrs:  cfg.Addresses,
		owner:  cfg.Owner,
		logger: cfg.Logger,
		abis:   abis,
	}, nil
}

// SuppliedPairs walks every pair the factory has created and returns those
// in which the wallet holds LP tokens, in factory order.
func (s *Scanner) SuppliedPairs(ctx context.Context) ([]common.Address, error) {
	results, err := s.caller.Call(ctx, []multicall.Call{uniswapv2.AllPairsLengthCall(s.abis, s.addrs.V2Factory)})
	if err != nil {
		return nil, fmt.Errorf("failed to read pair count: %w", err)
	}
	length, err := results[0].BigInt()
	if err != nil {
		return nil, fmt.Errorf("failed to read pair count: %w", err)
	}
	if !length.IsUint64() || length.Sign() == 0 {
		return nil, nil
	}

	n := length.Uint64()
	calls := make([]multicall.Call, 0, n)
	for i := uint64(0); i < n; i++ {
		calls = append(calls, uniswapv2.AllPairsCall(s.abis, s.addrs.V2Factory, i))
	}
	results, err = s.caller.Call(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}

	pairs := make([]common.Address, 0, len(results))
	for i, r := range results {
		pair, err := r.Address()
		if err != nil {
			s.logger.Warn("Pair index unreadable", "index", i, "error", err)
			continue
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	calls = calls[:0]
	for _, pair := range pairs {
		calls = append(calls, multicall.Call{
			Reference: pair.Hex(),
			Target:    pair,
			ABI:       &s.abis.V2Pair,
			Method:    contracts.MethodBalanceOf,
			Params:    []any{s.owner},
		})
	}
	results, err = s.caller.Call(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to read lp balances: %w", err)
	}

	var supplied []common.Address
	for i, r := range results {
		balance, err := r.BigInt()
		if err != nil || balance.Sign() <= 0 {
			continue
		}
		supplied = append(supplied, pairs[i])
	}
	s.logger.Debug("Scanned supplied pairs", "pairs", len(pairs), "supplied", len(supplied))
	return supplied, nil
}

// Pairs reads a full snapshot of every pair in one batch.
func (s *Scanner) Pairs(ctx context.Context, addrs []common.Address) ([]uniswapv2.Pair, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	var calls []multicall.Call
	for _, addr := range addrs {
		calls = append(calls, uniswapv2.SnapshotCalls(s.abis, addr, s.owner)...)
	}
	results, err := s.caller.Call(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to read pairs: %w", err)
	}
	byRef := multicall.Index(results)

	out := make([]uniswapv2.Pair, 0, len(addrs))
	for _, addr := range addrs {
		pair, err := uniswapv2.DecodeSnapshot(byRef, addr)
		if err != nil {
			return nil, engine.ConfigurationError(engine.CodeInvalidAddress, "%s is not a v2 pair: %v", addr, err)
		}
		out = append(out, pair)
	}
	return out, nil
}

// Refresh re-reads the values of prev that move between blocks and returns
// the patched snapshot along with what changed. A pair whose reads fail
// keeps its previous values.
func (s *Scanner) Refresh(ctx context.Context, prev []uniswapv2.Pair) ([]uniswapv2.Pair, uniswapv2.PairsDiff, error) {
	if len(prev) == 0 {
		return prev, uniswapv2.PairsDiff{}, nil
	}
	var calls []multicall.Call
	for _, pair := range prev {
		calls = append(calls, uniswapv2.RefreshCalls(s.abis, pair.Address, s.owner)...)
	}
	results, err := s.caller.Call(ctx, calls)
	if err != nil {
		return nil, uniswapv2.PairsDiff{}, fmt.Errorf("failed to refresh pairs: %w", err)
	}
	byRef := multicall.Index(results)

	fresh := make([]uniswapv2.Pair, 0, len(prev))
	for _, pair := range prev {
		next, err := uniswapv2.DecodeRefresh(byRef, pair)
		if err != nil {
			s.logger.Warn("Pair refresh failed, keeping previous values", "pair", pair.Address, "error", err)
			next = pair
		}
		fresh = append(fresh, next)
	}

	diff := uniswapv2.Differ(prev, fresh)
	if diff.IsEmpty() {
		return prev, diff, nil
	}
	next, err := uniswapv2.Patcher(prev, diff)
	if err != nil {
		return nil, uniswapv2.PairsDiff{}, err
	}
	return next, diff, nil
}

// Liquidity turns pair snapshots into positions. Token metadata comes from
// one resolver lookup and the pairs' token balances from one batch.
func (s *Scanner) Liquidity(ctx context.Context, pairs []uniswapv2.Pair) ([]engine.PairLiquidity, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	var (
		addrs []common.Address
		calls []multicall.Call
	)
	seen := make(map[common.Address]struct{})
	for _, pair := range pairs {
		for _, token := range []common.Address{pair.Token0, pair.Token1} {
			if _, ok := seen[token]; !ok {
				seen[token] = struct{}{}
				addrs = append(addrs, token)
			}
			calls = append(calls, multicall.Call{
				Reference: pairBalanceRef(pair.Address, token),
				Target:    token,
				ABI:       &s.abis.ERC20,
				Method:    contracts.MethodBalanceOf,
				Params:    []any{pair.Address},
			})
		}
	}

	metadata, err := s.tokens.Resolve(ctx, addrs)
	if err != nil {
		return nil, err
	}
	results, err := s.caller.Call(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to read pair token balances: %w", err)
	}
	byRef := multicall.Index(results)

	out := make([]engine.PairLiquidity, 0, len(pairs))
	for _, pair := range pairs {
		token0, token1 := metadata[pair.Token0], metadata[pair.Token1]
		held0 := s.pairBalance(byRef, pair, pair.Token0, pair.Reserve0)
		held1 := s.pairBalance(byRef, pair, pair.Token1, pair.Reserve1)

		lp := engine.FromBaseUnits(pair.LPBalance, pair.Decimals)
		supply := engine.FromBaseUnits(pair.TotalSupply, pair.Decimals)
		out = append(out, engine.PairLiquidity{
			PairAddress:          pair.Address,
			Token0:               token0,
			Token1:               token1,
			Reserve0:             pair.Reserve0,
			Reserve1:             pair.Reserve1,
			BlockTimestampLast:   pair.BlockTimestampLast,
			TotalSupply:          supply,
			LPBalance:            lp,
			EstimatedToken0Owned: estimate(pair, held0, token0.Decimals),
			EstimatedToken1Owned: estimate(pair, held1, token1.Decimals),
			PoolShare:            engine.PoolShare(lp, supply),
		})
	}
	return out, nil
}

// PairsLiquidity reads the wallet's position in every pair.
func (s *Scanner) PairsLiquidity(ctx context.Context, addrs []common.Address) ([]engine.PairLiquidity, error) {
	pairs, err := s.Pairs(ctx, addrs)
	if err != nil {
		return nil, err
	}
	return s.Liquidity(ctx, pairs)
}

// pairBalance falls back to the reserve when the token balance is unreadable.
func (s *Scanner) pairBalance(byRef map[string]multicall.Result, pair uniswapv2.Pair, token common.Address, reserve *big.Int) *big.Int {
	balance, err := byRef[pairBalanceRef(pair.Address, token)].BigInt()
	if err != nil {
		s.logger.Debug("Pair token balance unreadable, using reserve", "pair", pair.Address, "token", token, "error", err)
		return reserve
	}
	return balance
}

// estimate is lp * held / totalSupply in base units, which truncates to the
// token's decimals.
func estimate(pair uniswapv2.Pair, held *big.Int, decimals uint8) decimal.Decimal {
	if pair.TotalSupply == nil || pair.TotalSupply.Sign() <= 0 || pair.LPBalance == nil || held == nil {
		return decimal.Zero
	}
	owned := new(big.Int).Mul(pair.LPBalance, held)
	return engine.FromBaseUnits(owned.Quo(owned, pair.TotalSupply), decimals)
}

func pairBalanceRef(pair, token common.Address) string {
	return pair.Hex() + ".holds." + token.Hex()
}
