package tokens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/multicall"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/patrickmn/go-cache"
)

const DefaultCacheTTL = time.Hour

// Config holds the configuration for the resolver.
type Config struct {
	Caller   chains.Caller
	Network  chains.Network
	Logger   chains.Logger
	CacheTTL time.Duration
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Caller == nil {
		return errors.New("config: Caller is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Network.WrappedNative.Address == (common.Address{}) {
		return errors.New("config: Network is required")
	}
	return nil
}

// Resolver reads token metadata, balances and allowances. Metadata is
// immutable on chain and cached.
type Resolver struct {
	caller  chains.Caller
	network chains.Network
	logger  chains.Logger
	abis    *contracts.ABIs
	cache   *cache.Cache
}

func NewResolver(cfg Config) (*Resolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	abis, err := contracts.Load()
	if err != nil {
		return nil, err
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	r := &Resolver{
		caller:  cfg.Caller,
		network: cfg.Network,
		logger:  cfg.Logger,
		abis:    abis,
		cache:   cache.New(ttl, 2*ttl),
	}
	for _, hub := range cfg.Network.Hubs {
		r.cache.Set(r.cacheKey(hub.Address), hub, cache.NoExpiration)
	}
	return r, nil
}

func (r *Resolver) cacheKey(addr common.Address) string {
	return strconv.FormatUint(r.network.ChainID, 10) + ":" + addr.Hex()
}

// Token resolves one token.
func (r *Resolver) Token(ctx context.Context, addr common.Address) (engine.Token, error) {
	tokens, err := r.Resolve(ctx, []common.Address{addr})
	if err != nil {
		return engine.Token{}, err
	}
	return tokens[addr], nil
}

// Resolve returns metadata for every address in one batch. The native
// pseudo-address resolves without a call. An address whose decimals cannot
// be read is not a token and fails the lookup.
func (r *Resolver) Resolve(ctx context.Context, addrs []common.Address) (map[common.Address]engine.Token, error) {
	out := make(map[common.Address]engine.Token, len(addrs))
	var missing []common.Address
	for _, addr := range addrs {
		if addr == engine.NativeAddress {
			out[addr] = r.network.Native
			continue
		}
		if cached, ok := r.cache.Get(r.cacheKey(addr)); ok {
			out[addr] = cached.(engine.Token)
			continue
		}
		if _, queued := out[addr]; !queued {
			out[addr] = engine.Token{}
			missing = append(missing, addr)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	calls := make([]multicall.Call, 0, len(missing)*3)
	for _, addr := range missing {
		for _, method := range []string{contracts.MethodDecimals, contracts.MethodSymbol, contracts.MethodName} {
			calls = append(calls, multicall.Call{
				Reference: addr.Hex() + "." + method,
				Target:    addr,
				ABI:       &r.abis.ERC20,
				Method:    method,
			})
		}
	}
	results, err := r.caller.Call(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tokens: %w", err)
	}
	byRef := multicall.Index(results)

	for _, addr := range missing {
		decimals, err := byRef[addr.Hex()+"."+contracts.MethodDecimals].Uint8()
		if err != nil {
			return nil, engine.ConfigurationError(engine.CodeInvalidAddress, "%s is not an erc20 token: %v", addr, err)
		}
		symbol, err := byRef[addr.Hex()+"."+contracts.MethodSymbol].Text()
		if err != nil {
			r.logger.Debug("Token symbol unreadable", "token", addr, "error", err)
			symbol = addr.Hex()
		}
		name, err := byRef[addr.Hex()+"."+contracts.MethodName].Text()
		if err != nil {
			name = symbol
		}
		token := engine.Token{
			ChainID:  r.network.ChainID,
			Address:  addr,
			Decimals: decimals,
			Symbol:   symbol,
			Name:     name,
		}
		r.cache.Set(r.cacheKey(addr), token, cache.DefaultExpiration)
		out[addr] = token
	}
	return out, nil
}

// Holding is a wallet's balance of one token and what it has approved to
// each router. Native holdings carry unlimited allowances.
type Holding struct {
	Balance     *big.Int
	AllowanceV2 *big.Int
	AllowanceV3 *big.Int
}

// Allowance returns the allowance to the given version's router.
func (h Holding) Allowance(v engine.Version) *big.Int {
	if v == engine.V3 {
		return h.AllowanceV3
	}
	return h.AllowanceV2
}

// HoldingCalls returns the balance and router allowance reads for owner
// over every non-native token, for callers that fold them into a larger batch.
func (r *Resolver) HoldingCalls(owner common.Address, routers contracts.Addresses, tokens []common.Address) []multicall.Call {
	var calls []multicall.Call
	for _, addr := range tokens {
		if addr == engine.NativeAddress {
			continue
		}
		ref := holdingRef(addr)
		calls = append(calls,
			multicall.Call{Reference: ref + ".balance", Target: addr, ABI: &r.abis.ERC20, Method: contracts.MethodBalanceOf, Params: []any{owner}},
			multicall.Call{Reference: ref + ".v2", Target: addr, ABI: &r.abis.ERC20, Method: contracts.MethodAllowance, Params: []any{owner, routers.V2Router}},
			multicall.Call{Reference: ref + ".v3", Target: addr, ABI: &r.abis.ERC20, Method: contracts.MethodAllowance, Params: []any{owner, routers.V3Router}},
		)
	}
	return calls
}

// DecodeHoldings assembles holdings from the results of HoldingCalls. A
// native token costs one balance read. Unreadable values are reported as zero.
func (r *Resolver) DecodeHoldings(ctx context.Context, byRef map[string]multicall.Result, owner common.Address, tokens []common.Address) (map[common.Address]Holding, error) {
	out := make(map[common.Address]Holding, len(tokens))
	for _, addr := range tokens {
		if addr == engine.NativeAddress {
			balance, err := r.caller.BalanceAt(ctx, owner)
			if err != nil {
				return nil, fmt.Errorf("failed to read native balance: %w", err)
			}
			out[addr] = Holding{
				Balance:     balance,
				AllowanceV2: new(big.Int).Set(math.MaxBig256),
				AllowanceV3: new(big.Int).Set(math.MaxBig256),
			}
			continue
		}
		ref := holdingRef(addr)
		out[addr] = Holding{
			Balance:     bigOrZero(byRef[ref+".balance"]),
			AllowanceV2: bigOrZero(byRef[ref+".v2"]),
			AllowanceV3: bigOrZero(byRef[ref+".v3"]),
		}
	}
	return out, nil
}

// Holdings reads balance and router allowances for owner over every token
// in one batch.
func (r *Resolver) Holdings(ctx context.Context, owner common.Address, routers contracts.Addresses, tokens []common.Address) (map[common.Address]Holding, error) {
	var byRef map[string]multicall.Result
	if calls := r.HoldingCalls(owner, routers, tokens); len(calls) > 0 {
		results, err := r.caller.Call(ctx, calls)
		if err != nil {
			return nil, fmt.Errorf("failed to read holdings: %w", err)
		}
		byRef = multicall.Index(results)
	}
	return r.DecodeHoldings(ctx, byRef, owner, tokens)
}

func holdingRef(addr common.Address) string {
	return "holding." + addr.Hex()
}

func bigOrZero(r multicall.Result) *big.Int {
	v, err := r.BigInt()
	if err != nil {
		return new(big.Int)
	}
	return v
}
