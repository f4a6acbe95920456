package liquidity

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
	calculator "github.com/defistate/defistate-router-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-router-go/tokens"
	"github.com/defistate/defistate-router-go/txbuilder"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const lpAllowanceRef = "lp.allowance"

// Config holds the configuration for the liquidity engine.
type Config struct {
	Caller    chains.Caller
	Tokens    *tokens.Resolver
	Network   chains.Network
	Addresses contracts.Addresses
	Settings  engine.Settings
	Builder   *txbuilder.Builder
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
	if c.Builder == nil {
		return errors.New("config: Builder is required")
	}
	if c.Owner == (common.Address{}) {
		return errors.New("config: Owner is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Engine quotes adding and removing liquidity on v2 pairs for one wallet.
type Engine struct {
	caller   chains.Caller
	tokens   *tokens.Resolver
	network  chains.Network
	addrs    contracts.Addresses
	settings engine.Settings
	builder  *txbuilder.Builder
	owner    common.Address
	logger   chains.Logger
	abis     *contracts.ABIs
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	abis, err := contracts.Load()
	if err != nil {
		return nil, err
	}
	return &Engine{
		caller:   cfg.Caller,
		tokens:   cfg.Tokens,
		network:  cfg.Network,
		addrs:    cfg.Addresses,
		settings: cfg.Settings.WithDefaults(),
		builder:  cfg.Builder,
		owner:    cfg.Owner,
		logger:   cfg.Logger,
		abis:     abis,
	}, nil
}

// pairState is everything one liquidity request needs, read in the caller's
// A/B order.
type pairState struct {
	a, b        engine.Token
	exists      bool
	pair        uniswapv2.Pair
	lpToken     engine.Token
	lpAllowance *big.Int
	reserveA    *big.Int
	reserveB    *big.Int
	holdingA    tokens.Holding
	holdingB    tokens.Holding
}

func (s *pairState) firstSupplier() bool {
	return !s.exists || s.pair.TotalSupply == nil || s.pair.TotalSupply.Sign() == 0
}

func (s *pairState) totalSupply() *big.Int {
	if !s.exists || s.pair.TotalSupply == nil {
		return new(big.Int)
	}
	return s.pair.TotalSupply
}

func (s *pairState) lpBalance() *big.Int {
	if !s.exists || s.pair.LPBalance == nil {
		return new(big.Int)
	}
	return s.pair.LPBalance
}

func (s *pairState) lpDecimals() uint8 {
	if !s.exists {
		return 18
	}
	return s.pair.Decimals
}

// owned returns what the wallet's LP balance redeems for, in A/B order.
func (s *pairState) owned() (*big.Int, *big.Int) {
	if s.firstSupplier() {
		return new(big.Int), new(big.Int)
	}
	a, b, err := calculator.BurnAmounts(s.lpBalance(), s.reserveA, s.reserveB, s.totalSupply())
	if err != nil {
		return new(big.Int), new(big.Int)
	}
	return a, b
}

func (s *pairState) perLP(reserve *big.Int, decimals uint8) decimal.Decimal {
	if s.firstSupplier() {
		return decimal.Zero
	}
	supply := engine.FromBaseUnits(s.totalSupply(), s.lpDecimals())
	return engine.FromBaseUnits(reserve, decimals).Div(supply).Truncate(int32(decimals))
}

func (e *Engine) requireV2() error {
	if !e.settings.HasVersion(engine.V2) {
		return engine.UnsupportedOperationError(engine.CodeVersionNotSupported, "liquidity is only supported on v2")
	}
	return nil
}

// read looks the pair up, then reads the pair snapshot and both token
// holdings in a second batch.
func (e *Engine) read(ctx context.Context, a, b engine.Token) (*pairState, error) {
	if err := e.requireV2(); err != nil {
		return nil, err
	}
	if _, err := e.network.ClassifyTradePath(a, b); err != nil {
		return nil, err
	}
	aOn, bOn := e.network.OnChainAddress(a.Address), e.network.OnChainAddress(b.Address)

	results, err := e.caller.Call(ctx, []multicall.Call{uniswapv2.GetPairCall(e.abis, e.addrs.V2Factory, aOn, bOn, "pair")})
	if err != nil {
		return nil, fmt.Errorf("failed to look up pair: %w", err)
	}
	pairAddr, err := results[0].Address()
	if err != nil {
		e.logger.Debug("Pair lookup reverted", "tokenA", a.Symbol, "tokenB", b.Symbol, "error", err)
	}
	st := &pairState{a: a, b: b, exists: err == nil && pairAddr != (common.Address{})}

	holdingTokens := []common.Address{a.Address, b.Address}
	calls := e.tokens.HoldingCalls(e.owner, e.addrs, holdingTokens)
	if st.exists {
		calls = append(calls, uniswapv2.SnapshotCalls(e.abis, pairAddr, e.owner)...)
		calls = append(calls, multicall.Call{
			Reference: lpAllowanceRef,
			Target:    pairAddr,
			ABI:       &e.abis.ERC20,
			Method:    contracts.MethodAllowance,
			Params:    []any{e.owner, e.addrs.V2Router},
		})
	}

	var byRef map[string]multicall.Result
	if len(calls) > 0 {
		results, err = e.caller.Call(ctx, calls)
		if err != nil {
			return nil, fmt.Errorf("failed to read pair state: %w", err)
		}
		byRef = multicall.Index(results)
	}

	holdings, err := e.tokens.DecodeHoldings(ctx, byRef, e.owner, holdingTokens)
	if err != nil {
		return nil, err
	}
	st.holdingA, st.holdingB = holdings[a.Address], holdings[b.Address]
	if !st.exists {
		return st, nil
	}

	st.pair, err = uniswapv2.DecodeSnapshot(byRef, pairAddr)
	if err != nil {
		return nil, err
	}
	st.reserveA, st.reserveB, _ = st.pair.ReservesFor(aOn)
	st.lpAllowance, err = byRef[lpAllowanceRef].BigInt()
	if err != nil {
		st.lpAllowance = new(big.Int)
	}
	st.lpToken, err = e.tokens.Token(ctx, pairAddr)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// AddLiquidityInfo reports the pair's ratio and the wallet's position in it.
// A pair that does not exist yet makes the caller the first supplier.
func (e *Engine) AddLiquidityInfo(ctx context.Context, a, b engine.Token) (engine.AddLiquidityInfo, error) {
	st, err := e.read(ctx, a, b)
	if err != nil {
		return engine.AddLiquidityInfo{}, err
	}
	info := engine.AddLiquidityInfo{
		TokenAAllowance: engine.FromBaseUnits(st.holdingA.AllowanceV2, a.Decimals),
		TokenBAllowance: engine.FromBaseUnits(st.holdingB.AllowanceV2, b.Decimals),
		IsFirstSupplier: st.firstSupplier(),
	}
	if !st.exists {
		return info, nil
	}

	lpToken := st.lpToken
	ownedA, ownedB := st.owned()
	lp := engine.FromBaseUnits(st.lpBalance(), st.lpDecimals())
	supply := engine.FromBaseUnits(st.totalSupply(), st.lpDecimals())

	info.PairAddress = st.pair.Address
	info.LPToken = &lpToken
	info.LPBalance = lp
	info.TokenAPerLP = st.perLP(st.reserveA, a.Decimals)
	info.TokenBPerLP = st.perLP(st.reserveB, b.Decimals)
	info.EstimatedTokenAOwned = engine.FromBaseUnits(ownedA, a.Decimals)
	info.EstimatedTokenBOwned = engine.FromBaseUnits(ownedB, b.Decimals)
	info.SelfPoolLP = lp
	info.TotalPoolLP = supply
	info.PoolShare = engine.PoolShare(lp, supply)
	return info, nil
}

// AddLiquidityQuote prices a deposit. With engine.Input amount is token A's
// side and token B's is derived from the pool ratio; with engine.Output it
// is the other way around. The first supplier sets the ratio and must give
// the counter amount.
func (e *Engine) AddLiquidityQuote(ctx context.Context, a, b engine.Token, amount decimal.Decimal, direction engine.Direction, firstSupplierCounter *decimal.Decimal) (engine.LiquidityTradeContext, error) {
	st, err := e.read(ctx, a, b)
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}

	fixed, other := a, b
	reserveFixed, reserveOther := st.reserveA, st.reserveB
	if direction == engine.Output {
		fixed, other = b, a
		reserveFixed, reserveOther = st.reserveB, st.reserveA
	}
	fixedRaw, err := engine.ToBaseUnits(amount, fixed.Decimals)
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}
	if fixedRaw.Sign() == 0 {
		return engine.LiquidityTradeContext{}, engine.ConfigurationError(engine.CodeInvalidAmount, "amount %s is zero in base units", amount)
	}

	var otherRaw *big.Int
	if st.firstSupplier() {
		if firstSupplierCounter == nil {
			return engine.LiquidityTradeContext{}, engine.ConfigurationError(engine.CodeFirstSupplierAmount, "first supplier of %s/%s must give both amounts", a.Symbol, b.Symbol)
		}
		if otherRaw, err = engine.ToBaseUnits(*firstSupplierCounter, other.Decimals); err != nil {
			return engine.LiquidityTradeContext{}, err
		}
	} else {
		if otherRaw, err = calculator.Quote(fixedRaw, reserveFixed, reserveOther); err != nil {
			return engine.LiquidityTradeContext{}, engine.ConfigurationError(engine.CodeInvalidAmount, "cannot price %s against %s: %v", fixed.Symbol, other.Symbol, err)
		}
	}

	amountA, amountB := fixedRaw, otherRaw
	if direction == engine.Output {
		amountA, amountB = otherRaw, fixedRaw
	}

	reserveA, reserveB := st.reserveA, st.reserveB
	if st.firstSupplier() {
		reserveA, reserveB = new(big.Int), new(big.Int)
	}
	minted, err := calculator.MintLiquidity(amountA, amountB, reserveA, reserveB, st.totalSupply())
	if err != nil {
		return engine.LiquidityTradeContext{}, engine.ConfigurationError(engine.CodeInvalidAmount, "deposit mints no liquidity: %v", err)
	}

	expectedA := engine.FromBaseUnits(amountA, a.Decimals)
	expectedB := engine.FromBaseUnits(amountB, b.Decimals)
	minA := engine.ApplySlippage(expectedA, e.settings.Slippage, engine.Input, a.Decimals)
	minB := engine.ApplySlippage(expectedB, e.settings.Slippage, engine.Input, b.Decimals)
	minARaw, err := engine.ToBaseUnits(minA, a.Decimals)
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}
	minBRaw, err := engine.ToBaseUnits(minB, b.Decimals)
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}

	tx, expires, err := e.builder.AddLiquidity(txbuilder.LiquidityRequest{
		Owner:   e.owner,
		TokenA:  a,
		TokenB:  b,
		AmountA: amountA,
		AmountB: amountB,
		MinA:    minARaw,
		MinB:    minBRaw,
	})
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}

	lpDecimals := st.lpDecimals()
	mintedLP := engine.FromBaseUnits(minted, lpDecimals)
	supply := engine.FromBaseUnits(st.totalSupply(), lpDecimals)
	out := engine.LiquidityTradeContext{
		Version:           engine.V2,
		Direction:         direction,
		IsFirstSupplier:   st.firstSupplier(),
		BaseRequest:       amount,
		ExpectedQuote:     engine.FromBaseUnits(otherRaw, other.Decimals),
		MinTokenA:         minA,
		MinTokenB:         minB,
		ExpectedTokenA:    expectedA,
		ExpectedTokenB:    expectedB,
		TokenA:            a,
		TokenB:            b,
		TokenABalance:     balance(st.holdingA, amountA, a.Decimals),
		TokenBBalance:     balance(st.holdingB, amountB, b.Decimals),
		LPTokensToReceive: mintedLP,
		LPBalance:         engine.FromBaseUnits(st.lpBalance(), lpDecimals),
		LPAllowance:       true,
		PoolShare:         engine.PoolShare(mintedLP, mintedLP.Add(supply)),
		Transaction:       tx,
		Expires:           expires,
	}
	if st.exists {
		lpToken := st.lpToken
		out.LPToken = &lpToken
	}

	if out.TokenAAllowance, out.TokenAApproval, err = e.allowance(st.holdingA, a, amountA); err != nil {
		return engine.LiquidityTradeContext{}, err
	}
	if out.TokenBAllowance, out.TokenBApproval, err = e.allowance(st.holdingB, b, amountB); err != nil {
		return engine.LiquidityTradeContext{}, err
	}
	return out, nil
}

// allowance reports whether the v2 router may pull need, and when it may
// not, the approval that covers it.
func (e *Engine) allowance(h tokens.Holding, token engine.Token, need *big.Int) (bool, *engine.Transaction, error) {
	if h.AllowanceV2.Cmp(need) >= 0 {
		return true, nil, nil
	}
	tx, err := e.builder.ApproveRouter(e.owner, token, engine.V2, need)
	if err != nil {
		return false, nil, err
	}
	return false, &tx, nil
}

func balance(h tokens.Holding, need *big.Int, decimals uint8) engine.TokenBalance {
	return engine.TokenBalance{
		HasEnough: h.Balance.Cmp(need) >= 0,
		Balance:   engine.FromBaseUnits(h.Balance, decimals),
	}
}

// RemoveLiquidityInfo reports the wallet's position in a pair. A missing
// pair is reported through InvalidPair rather than an error.
func (e *Engine) RemoveLiquidityInfo(ctx context.Context, a, b engine.Token) (engine.RemoveLiquidityInfo, error) {
	st, err := e.read(ctx, a, b)
	if err != nil {
		return engine.RemoveLiquidityInfo{}, err
	}
	if !st.exists {
		return engine.RemoveLiquidityInfo{InvalidPair: true}, nil
	}

	lpToken := st.lpToken
	ownedA, ownedB := st.owned()
	lp := engine.FromBaseUnits(st.lpBalance(), st.lpDecimals())
	return engine.RemoveLiquidityInfo{
		PairAddress:          st.pair.Address,
		LPToken:              &lpToken,
		LPBalance:            lp,
		TokenAPerLP:          st.perLP(st.reserveA, a.Decimals),
		TokenBPerLP:          st.perLP(st.reserveB, b.Decimals),
		EstimatedTokenAOwned: engine.FromBaseUnits(ownedA, a.Decimals),
		EstimatedTokenBOwned: engine.FromBaseUnits(ownedB, b.Decimals),
		PoolShare:            engine.PoolShare(lp, engine.FromBaseUnits(st.totalSupply(), st.lpDecimals())),
		LPAllowance:          engine.FromBaseUnits(st.lpAllowance, st.lpDecimals()),
	}, nil
}

// RemoveLiquidityQuote prices burning lpAmount of the pair's LP token.
func (e *Engine) RemoveLiquidityQuote(ctx context.Context, a, b engine.Token, lpAmount decimal.Decimal) (engine.LiquidityTradeContext, error) {
	st, err := e.read(ctx, a, b)
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}
	if !st.exists {
		return engine.LiquidityTradeContext{}, engine.NoRouteFoundError("no v2 pair for %s/%s", a.Symbol, b.Symbol)
	}

	lpDecimals := st.lpDecimals()
	liquidity, err := engine.ToBaseUnits(lpAmount, lpDecimals)
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}
	if liquidity.Sign() == 0 {
		return engine.LiquidityTradeContext{}, engine.ConfigurationError(engine.CodeInvalidAmount, "lp amount %s is zero in base units", lpAmount)
	}
	amountA, amountB, err := calculator.BurnAmounts(liquidity, st.reserveA, st.reserveB, st.totalSupply())
	if err != nil {
		return engine.LiquidityTradeContext{}, engine.ConfigurationError(engine.CodeInvalidAmount, "cannot burn from %s: %v", st.pair.Address, err)
	}

	expectedA := engine.FromBaseUnits(amountA, a.Decimals)
	expectedB := engine.FromBaseUnits(amountB, b.Decimals)
	minA := engine.ApplySlippage(expectedA, e.settings.Slippage, engine.Input, a.Decimals)
	minB := engine.ApplySlippage(expectedB, e.settings.Slippage, engine.Input, b.Decimals)
	minARaw, err := engine.ToBaseUnits(minA, a.Decimals)
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}
	minBRaw, err := engine.ToBaseUnits(minB, b.Decimals)
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}

	tx, expires, err := e.builder.RemoveLiquidity(txbuilder.LiquidityRequest{
		Owner:     e.owner,
		TokenA:    a,
		TokenB:    b,
		Liquidity: liquidity,
		MinA:      minARaw,
		MinB:      minBRaw,
	})
	if err != nil {
		return engine.LiquidityTradeContext{}, err
	}

	lpToken := st.lpToken
	lp := engine.FromBaseUnits(st.lpBalance(), lpDecimals)
	out := engine.LiquidityTradeContext{
		Version:         engine.V2,
		Direction:       engine.Input,
		BaseRequest:     lpAmount,
		ExpectedQuote:   expectedA,
		MinTokenA:       minA,
		MinTokenB:       minB,
		ExpectedTokenA:  expectedA,
		ExpectedTokenB:  expectedB,
		TokenA:          a,
		TokenB:          b,
		TokenABalance:   engine.TokenBalance{HasEnough: true, Balance: engine.FromBaseUnits(st.holdingA.Balance, a.Decimals)},
		TokenBBalance:   engine.TokenBalance{HasEnough: true, Balance: engine.FromBaseUnits(st.holdingB.Balance, b.Decimals)},
		TokenAAllowance: true,
		TokenBAllowance: true,
		LPToken:         &lpToken,
		LPBalance:       lp,
		LPAllowance:     st.lpAllowance.Cmp(liquidity) >= 0,
		PoolShare:       engine.PoolShare(lp, engine.FromBaseUnits(st.totalSupply(), lpDecimals)),
		Transaction:     tx,
		Expires:         expires,
	}
	if !out.LPAllowance {
		// approve replaces the allowance, so it must cover the whole burn.
		approval, err := e.builder.ApproveRouter(e.owner, lpToken, engine.V2, liquidity)
		if err != nil {
			return engine.LiquidityTradeContext{}, err
		}
		out.LPApproval = &approval
	}
	return out, nil
}

// ApproveLP approves amount of a pair's LP token to the router of version.
func (e *Engine) ApproveLP(ctx context.Context, pair common.Address, amount decimal.Decimal, version engine.Version) (engine.Transaction, error) {
	lpToken, err := e.tokens.Token(ctx, pair)
	if err != nil {
		return engine.Transaction{}, err
	}
	raw, err := engine.ToBaseUnits(amount, lpToken.Decimals)
	if err != nil {
		return engine.Transaction{}, err
	}
	return e.builder.ApproveRouter(e.owner, lpToken, version, raw)
}
