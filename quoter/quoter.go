package quoter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strconv"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/multicall"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/defistate/defistate-router-go/routes"
	"github.com/defistate/defistate-router-go/txbuilder"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Config holds the configuration for the quote engine.
type Config struct {
	Caller    chains.Caller
	Network   chains.Network
	Addresses contracts.Addresses
	Settings  engine.Settings
	Builder   *txbuilder.Builder
	Logger    chains.Logger
	Registry  prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Caller == nil {
		return errors.New("config: Caller is required")
	}
	if c.Builder == nil {
		return errors.New("config: Builder is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Request is one quote request. Amount is the fixed side of the trade: the
// input for engine.Input, the output for engine.Output.
type Request struct {
	Owner     common.Address
	From      engine.Token
	To        engine.Token
	Amount    decimal.Decimal
	Direction engine.Direction
}

// Engine prices candidate routes in one batched read and turns each into a
// ready-to-sign quote.
type Engine struct {
	caller   chains.Caller
	network  chains.Network
	addrs    contracts.Addresses
	slippage decimal.Decimal
	builder  *txbuilder.Builder
	logger   chains.Logger
	metrics  *Metrics
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
		network:  cfg.Network,
		addrs:    cfg.Addresses,
		slippage: cfg.Settings.WithDefaults().Slippage,
		builder:  cfg.Builder,
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registry),
		abis:     abis,
	}, nil
}

// Quote prices every candidate and returns the priced routes best first:
// highest output for exact input, lowest input for exact output. Routes
// whose pricing call fails are dropped.
func (e *Engine) Quote(ctx context.Context, req Request, candidates routes.Candidates) ([]engine.RouteQuote, error) {
	timer := prometheus.NewTimer(e.metrics.quoteDuration)
	defer timer.ObserveDuration()

	if _, err := e.network.ClassifyTradePath(req.From, req.To); err != nil {
		return nil, err
	}
	if req.Direction != engine.Input && req.Direction != engine.Output {
		return nil, engine.ConfigurationError(engine.CodeInvalidAmount, "unknown direction %q", req.Direction)
	}
	exactOutput := req.Direction == engine.Output

	// The fixed side is scaled by its own token; the quote by the other one.
	amountDecimals, quoteDecimals := req.From.Decimals, req.To.Decimals
	if exactOutput {
		amountDecimals, quoteDecimals = req.To.Decimals, req.From.Decimals
	}
	amount, err := engine.ToBaseUnits(req.Amount, amountDecimals)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, engine.ConfigurationError(engine.CodeInvalidAmount, "amount %s is zero in base units", req.Amount)
	}

	all := candidates.All()
	if len(all) == 0 {
		return nil, nil
	}
	calls := make([]multicall.Call, len(all))
	for i, route := range all {
		ref := strconv.Itoa(i)
		if route.Version == engine.V3 {
			calls[i] = uniswapv3.QuoteCall(e.abis, e.addrs.V3Quoter, route.Path[0], route.Path[len(route.Path)-1], uniswapv3.FeeTier(route.FeeTier), amount, exactOutput, ref)
			continue
		}
		calls[i] = uniswapv2.AmountsCall(e.abis, e.addrs.V2Router, amount, route.Path, exactOutput, ref)
	}
	results, err := e.caller.Call(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to price routes: %w", err)
	}

	quotes := make([]engine.RouteQuote, 0, len(all))
	for i, route := range all {
		raw, err := expectedAmount(results[i], route.Version, exactOutput)
		if err == nil && raw.Sign() == 0 {
			err = errors.New("route has no liquidity")
		}
		if err != nil {
			e.logger.Debug("Dropping unpriceable route", "route", route.Label(), "version", route.Version, "error", err)
			e.metrics.routesTotal.WithLabelValues("dropped").Inc()
			continue
		}

		expected := engine.FromBaseUnits(raw, quoteDecimals)
		bound := engine.ApplySlippage(expected, e.slippage, req.Direction, quoteDecimals)
		boundRaw, err := engine.ToBaseUnits(bound, quoteDecimals)
		if err != nil {
			return nil, err
		}
		tx, expires, err := e.builder.Swap(txbuilder.SwapRequest{
			Owner:     req.Owner,
			Route:     route,
			Direction: req.Direction,
			From:      req.From,
			To:        req.To,
			Amount:    amount,
			Bound:     boundRaw,
		})
		if err != nil {
			return nil, err
		}

		quotes = append(quotes, engine.RouteQuote{
			Route:         route.Clone(),
			Direction:     req.Direction,
			ExpectedQuote: expected,
			SlippageBound: bound,
			Transaction:   tx,
			Expires:       expires,
			Label:         route.Label(),
		})
		e.metrics.routesTotal.WithLabelValues("priced").Inc()
	}

	slices.SortStableFunc(quotes, func(a, b engine.RouteQuote) int {
		if exactOutput {
			return a.ExpectedQuote.Cmp(b.ExpectedQuote)
		}
		return b.ExpectedQuote.Cmp(a.ExpectedQuote)
	})
	return quotes, nil
}

func expectedAmount(r multicall.Result, version engine.Version, exactOutput bool) (*big.Int, error) {
	if version == engine.V3 {
		return r.BigInt()
	}
	amounts, err := r.BigInts()
	if err != nil {
		return nil, err
	}
	if len(amounts) < 2 {
		return nil, fmt.Errorf("%w: %d amounts", multicall.ErrUnexpectedOutput, len(amounts))
	}
	if exactOutput {
		return amounts[0], nil
	}
	return amounts[len(amounts)-1], nil
}
