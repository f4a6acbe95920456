package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/liquidity"
	"github.com/defistate/defistate-router-go/patcher"
	"github.com/defistate/defistate-router-go/portfolio"
	"github.com/defistate/defistate-router-go/quoter"
	"github.com/defistate/defistate-router-go/routes"
	"github.com/defistate/defistate-router-go/selector"
	"github.com/defistate/defistate-router-go/tokens"
	"github.com/defistate/defistate-router-go/txbuilder"
	"github.com/defistate/defistate-router-go/watcher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// DefaultWatchInterval is how often watches re-quote when no head stream is
// configured.
const DefaultWatchInterval = 5 * time.Second

// Config holds the configuration for a trading pair.
type Config struct {
	Caller   chains.Caller
	ChainID  uint64
	Owner    common.Address
	From     common.Address
	To       common.Address
	Settings engine.Settings

	// GasPrice, Estimator and PriceFeed enable gas-aware route selection
	// when Settings.GasAware is set.
	GasPrice  chains.GasPriceSource
	Estimator chains.GasEstimator
	PriceFeed chains.FiatPriceFeed

	// Heads switches watches from polling to one refresh per new block.
	Heads         chains.BlockSource
	WatchInterval time.Duration
	Now           func() time.Time

	Logger   chains.Logger
	Registry prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Caller == nil {
		return errors.New("config: Caller is required")
	}
	if c.Owner == (common.Address{}) {
		return errors.New("config: Owner is required")
	}
	if c.From == (common.Address{}) {
		return errors.New("config: From is required")
	}
	if c.To == (common.Address{}) {
		return errors.New("config: To is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Pair is the entry point for one wallet trading one token pair. It wires
// discovery, pricing, selection, liquidity and portfolio reads, and the live
// watches over them.
type Pair struct {
	owner    common.Address
	from     engine.Token
	to       engine.Token
	network  chains.Network
	addrs    contracts.Addresses
	settings engine.Settings
	logger   chains.Logger

	tokens     *tokens.Resolver
	builder    *txbuilder.Builder
	discoverer *routes.Discoverer
	quoter     *quoter.Engine
	selector   *selector.Selector
	liquidity  *liquidity.Engine
	scanner    *portfolio.Scanner

	trades    *watcher.Watcher[engine.TradeContext]
	adds      *watcher.Watcher[engine.AddLiquidityInfo]
	removes   *watcher.Watcher[engine.RemoveLiquidityInfo]
	positions *watcher.Watcher[engine.PairLiquidity]
}

// New validates the configuration, resolves both tokens and assembles every
// component. It fails for unknown chains and unsupported trade paths.
func New(ctx context.Context, cfg Config) (*Pair, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	settings := cfg.Settings.WithDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	network, err := chains.Lookup(cfg.ChainID, settings.CustomNetwork)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	addrs := contracts.Resolve(settings.CloneContracts)

	p := &Pair{
		owner:    cfg.Owner,
		network:  network,
		addrs:    addrs,
		settings: settings,
		logger:   cfg.Logger,
	}

	if p.tokens, err = tokens.NewResolver(tokens.Config{
		Caller:  cfg.Caller,
		Network: network,
		Logger:  cfg.Logger,
	}); err != nil {
		return nil, err
	}
	if p.builder, err = txbuilder.New(txbuilder.Config{
		Network:         network,
		Addresses:       addrs,
		DeadlineMinutes: settings.DeadlineMinutes,
		Now:             now,
	}); err != nil {
		return nil, err
	}
	if p.discoverer, err = routes.NewDiscoverer(routes.Config{
		Caller:    cfg.Caller,
		Network:   network,
		Addresses: addrs,
		Settings:  settings,
		Logger:    cfg.Logger,
	}); err != nil {
		return nil, err
	}
	if p.quoter, err = quoter.NewEngine(quoter.Config{
		Caller:    cfg.Caller,
		Network:   network,
		Addresses: addrs,
		Settings:  settings,
		Builder:   p.builder,
		Logger:    cfg.Logger,
		Registry:  cfg.Registry,
	}); err != nil {
		return nil, err
	}
	if p.selector, err = selector.New(selector.Config{
		Network:   network,
		Settings:  settings,
		GasPrice:  cfg.GasPrice,
		Estimator: cfg.Estimator,
		PriceFeed: cfg.PriceFeed,
		Logger:    cfg.Logger,
		Registry:  cfg.Registry,
	}); err != nil {
		return nil, err
	}
	if p.liquidity, err = liquidity.NewEngine(liquidity.Config{
		Caller:    cfg.Caller,
		Tokens:    p.tokens,
		Network:   network,
		Addresses: addrs,
		Settings:  settings,
		Builder:   p.builder,
		Owner:     cfg.Owner,
		Logger:    cfg.Logger,
	}); err != nil {
		return nil, err
	}
	if p.scanner, err = portfolio.NewScanner(portfolio.Config{
		Caller:    cfg.Caller,
		Tokens:    p.tokens,
		Addresses: addrs,
		Owner:     cfg.Owner,
		Logger:    cfg.Logger,
	}); err != nil {
		return nil, err
	}

	resolved, err := p.tokens.Resolve(ctx, []common.Address{cfg.From, cfg.To})
	if err != nil {
		return nil, err
	}
	p.from, p.to = resolved[cfg.From], resolved[cfg.To]
	if _, err := network.ClassifyTradePath(p.from, p.to); err != nil {
		return nil, err
	}

	if err := p.initWatchers(cfg, now); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pair) initWatchers(cfg Config, now func() time.Time) error {
	d, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		EntryDiffers: differ.Differs(now),
		Registry:     cfg.Registry,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return err
	}
	pt, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{Patchers: patcher.Patchers()})
	if err != nil {
		return err
	}

	interval := cfg.WatchInterval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	// Each watcher needs its own head listener.
	trigger := func() watcher.Trigger {
		if cfg.Heads != nil {
			return watcher.Blocks(cfg.Heads)
		}
		return watcher.Ticker(interval)
	}
	watchConfig := func(schema differ.Schema) watcher.Config {
		return watcher.Config{
			Schema:   schema,
			Trigger:  trigger(),
			Differ:   d,
			Patcher:  pt,
			Logger:   cfg.Logger,
			Registry: cfg.Registry,
		}
	}

	if p.trades, err = watcher.New[engine.TradeContext](watchConfig(differ.SchemaTrade)); err != nil {
		return err
	}
	if p.adds, err = watcher.New[engine.AddLiquidityInfo](watchConfig(differ.SchemaAddLiquidity)); err != nil {
		return err
	}
	if p.removes, err = watcher.New[engine.RemoveLiquidityInfo](watchConfig(differ.SchemaRemoveLiquidity)); err != nil {
		return err
	}
	if p.positions, err = watcher.New[engine.PairLiquidity](watchConfig(differ.SchemaPairLiquidity)); err != nil {
		return err
	}
	return nil
}

func (p *Pair) FromToken() engine.Token {
	return p.from
}

func (p *Pair) ToToken() engine.Token {
	return p.to
}

func (p *Pair) Network() chains.Network {
	return p.network
}

// FindAllPossibleRoutes returns every candidate route between the pair's
// tokens, without pricing them.
func (p *Pair) FindAllPossibleRoutes(ctx context.Context) (routes.Candidates, error) {
	return p.discoverer.Discover(ctx, p.from, p.to, false)
}

// FindAllPossibleRoutesWithQuote prices every candidate route, best first.
func (p *Pair) FindAllPossibleRoutesWithQuote(ctx context.Context, amount decimal.Decimal, direction engine.Direction) ([]engine.RouteQuote, error) {
	if !amount.IsPositive() {
		return nil, engine.ConfigurationError(engine.CodeInvalidAmount, "amount %s must be positive", amount)
	}
	candidates, err := p.FindAllPossibleRoutes(ctx)
	if err != nil {
		return nil, err
	}
	return p.quoter.Quote(ctx, quoter.Request{
		Owner:     p.owner,
		From:      p.from,
		To:        p.to,
		Amount:    amount,
		Direction: direction,
	}, candidates)
}

// BestRoute is the chosen route along with the wallet's position against it.
type BestRoute struct {
	Best               engine.RouteQuote
	All                []engine.RouteQuote
	HasEnoughAllowance bool
	HasEnoughBalance   bool
	FromBalance        decimal.Decimal
	ToBalance          decimal.Decimal
}

// FindBestRoute prices every route, reads the wallet's balances and router
// allowances in one batch and selects the best route.
func (p *Pair) FindBestRoute(ctx context.Context, amount decimal.Decimal, direction engine.Direction) (BestRoute, error) {
	quotes, err := p.FindAllPossibleRoutesWithQuote(ctx, amount, direction)
	if err != nil {
		return BestRoute{}, err
	}
	if len(quotes) == 0 {
		return BestRoute{}, engine.NoRouteFoundError("no routes found for %s > %s", p.from.Symbol, p.to.Symbol)
	}
	holdings, err := p.AllowancesAndBalances(ctx)
	if err != nil {
		return BestRoute{}, err
	}
	from, to := holdings[p.from.Address], holdings[p.to.Address]

	need, err := p.spend(amount, direction, quotes[0])
	if err != nil {
		return BestRoute{}, err
	}
	selected, err := p.selector.Select(ctx, selector.SelectRequest{
		Quotes:  quotes,
		ToToken: p.to,
		Allowance: selector.Allowance{
			V2: from.AllowanceV2.Cmp(need) >= 0,
			V3: from.AllowanceV3.Cmp(need) >= 0,
		},
		EnoughBalance: from.Balance.Cmp(need) >= 0,
	})
	if err != nil {
		return BestRoute{}, err
	}

	best := selected[0]
	if need, err = p.spend(amount, direction, best); err != nil {
		return BestRoute{}, err
	}
	return BestRoute{
		Best:               best,
		All:                selected,
		HasEnoughAllowance: from.Allowance(best.Route.Version).Cmp(need) >= 0,
		HasEnoughBalance:   from.Balance.Cmp(need) >= 0,
		FromBalance:        engine.FromBaseUnits(from.Balance, p.from.Decimals),
		ToBalance:          engine.FromBaseUnits(to.Balance, p.to.Decimals),
	}, nil
}

// spend is what the router may pull from the wallet for quote, in base
// units: the amount for exact input, the slippage maximum for exact output.
func (p *Pair) spend(amount decimal.Decimal, direction engine.Direction, quote engine.RouteQuote) (*big.Int, error) {
	if direction == engine.Output {
		return engine.ToBaseUnits(quote.SlippageBound, p.from.Decimals)
	}
	return engine.ToBaseUnits(amount, p.from.Decimals)
}

// Trade builds the full trade context for amount: the best route's quote,
// slippage bound, fees, balances, and the transactions to sign.
func (p *Pair) Trade(ctx context.Context, amount decimal.Decimal, direction engine.Direction) (engine.TradeContext, error) {
	best, err := p.FindBestRoute(ctx, amount, direction)
	if err != nil {
		return engine.TradeContext{}, err
	}
	q := best.Best

	// The fee is charged on the input side, in the from token.
	feeBase := amount
	if direction == engine.Output {
		feeBase = q.ExpectedQuote
	}
	tc := engine.TradeContext{
		Version:             q.Route.Version,
		Direction:           direction,
		BaseRequest:         amount,
		ExpectedQuote:       q.ExpectedQuote,
		LiquidityFee:        feeBase.Mul(q.Route.LiquidityProviderFee).Truncate(int32(p.from.Decimals)),
		LiquidityFeePercent: q.Route.LiquidityProviderFee,
		Expires:             q.Expires,
		RouteLabel:          q.Label,
		RoutePath:           slices.Clone(q.Route.Path),
		RouteTokens:         slices.Clone(q.Route.Tokens),
		HasEnoughAllowance:  best.HasEnoughAllowance,
		FromToken:           p.from,
		ToToken:             p.to,
		FromBalance:         engine.TokenBalance{HasEnough: best.HasEnoughBalance, Balance: best.FromBalance},
		ToBalance:           best.ToBalance,
		Transaction:         q.Transaction.Clone(),
		AllTriedRoutes:      best.All,
	}
	if q.GasPriceEstimatedBy != nil {
		g := *q.GasPriceEstimatedBy
		tc.GasPriceEstimatedBy = &g
	}
	bound := q.SlippageBound
	if direction == engine.Output {
		tc.MaximumIn = &bound
	} else {
		tc.MinimumOut = &bound
	}
	if !best.HasEnoughAllowance {
		approval, err := p.builder.ApproveMax(p.owner, p.from, q.Route.Version)
		if err != nil {
			return engine.TradeContext{}, err
		}
		tc.ApprovalTransaction = &approval
	}
	p.logger.Debug("Built trade", "route", tc.RouteLabel, "version", tc.Version, "direction", direction, "expected", tc.ExpectedQuote)
	return tc, nil
}

// AllowancesAndBalances reads the wallet's balance of both tokens and what
// it has approved to each router, in one batch.
func (p *Pair) AllowancesAndBalances(ctx context.Context) (map[common.Address]tokens.Holding, error) {
	return p.tokens.Holdings(ctx, p.owner, p.addrs, []common.Address{p.from.Address, p.to.Address})
}

// Allowance returns the from token's allowance to the router of version,
// in base units. The native currency needs no approval and reports the
// maximum uint256.
func (p *Pair) Allowance(ctx context.Context, version engine.Version) (*big.Int, error) {
	holdings, err := p.tokens.Holdings(ctx, p.owner, p.addrs, []common.Address{p.from.Address})
	if err != nil {
		return nil, err
	}
	return holdings[p.from.Address].Allowance(version), nil
}

// FromTokenBalance reports whether the wallet holds amount of the from token.
func (p *Pair) FromTokenBalance(ctx context.Context, amount decimal.Decimal) (engine.TokenBalance, error) {
	need, err := engine.ToBaseUnits(amount, p.from.Decimals)
	if err != nil {
		return engine.TokenBalance{}, err
	}
	holdings, err := p.tokens.Holdings(ctx, p.owner, p.addrs, []common.Address{p.from.Address})
	if err != nil {
		return engine.TokenBalance{}, err
	}
	balance := holdings[p.from.Address].Balance
	return engine.TokenBalance{
		HasEnough: balance.Cmp(need) >= 0,
		Balance:   engine.FromBaseUnits(balance, p.from.Decimals),
	}, nil
}

// ToTokenBalance returns the wallet's balance of the to token.
func (p *Pair) ToTokenBalance(ctx context.Context) (decimal.Decimal, error) {
	holdings, err := p.tokens.Holdings(ctx, p.owner, p.addrs, []common.Address{p.to.Address})
	if err != nil {
		return decimal.Zero, err
	}
	return engine.FromBaseUnits(holdings[p.to.Address].Balance, p.to.Decimals), nil
}

// GenerateApproveMaxAllowanceData approves the maximum amount of the from
// token to the router of version. The native currency cannot be approved.
func (p *Pair) GenerateApproveMaxAllowanceData(version engine.Version) (engine.Transaction, error) {
	if !p.settings.HasVersion(version) {
		return engine.Transaction{}, engine.ConfigurationError(engine.CodeVersionNotSupported, "version %s is not enabled", version)
	}
	return p.builder.ApproveMax(p.owner, p.from, version)
}

// AddLiquidityInfo describes the pair's pool from the wallet's side, with
// the from token as A and the to token as B.
func (p *Pair) AddLiquidityInfo(ctx context.Context) (engine.AddLiquidityInfo, error) {
	return p.liquidity.AddLiquidityInfo(ctx, p.from, p.to)
}

// AddLiquidityQuote prices a deposit. counter is only read when the wallet
// would be the pool's first supplier.
func (p *Pair) AddLiquidityQuote(ctx context.Context, amount decimal.Decimal, direction engine.Direction, counter *decimal.Decimal) (engine.LiquidityTradeContext, error) {
	return p.liquidity.AddLiquidityQuote(ctx, p.from, p.to, amount, direction, counter)
}

func (p *Pair) RemoveLiquidityInfo(ctx context.Context) (engine.RemoveLiquidityInfo, error) {
	return p.liquidity.RemoveLiquidityInfo(ctx, p.from, p.to)
}

func (p *Pair) RemoveLiquidityQuote(ctx context.Context, lpAmount decimal.Decimal) (engine.LiquidityTradeContext, error) {
	return p.liquidity.RemoveLiquidityQuote(ctx, p.from, p.to, lpAmount)
}

func (p *Pair) ApproveLP(ctx context.Context, pair common.Address, amount decimal.Decimal, version engine.Version) (engine.Transaction, error) {
	return p.liquidity.ApproveLP(ctx, pair, amount, version)
}

// SuppliedPairs lists every v2 pair the wallet holds LP tokens in.
func (p *Pair) SuppliedPairs(ctx context.Context) ([]common.Address, error) {
	return p.scanner.SuppliedPairs(ctx)
}

// PairsLiquidity reports the wallet's position in each pair.
func (p *Pair) PairsLiquidity(ctx context.Context, pairs []common.Address) ([]engine.PairLiquidity, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out, err := p.scanner.PairsLiquidity(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("failed to read pair liquidity: %w", err)
	}
	return out, nil
}
