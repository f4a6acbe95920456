package selector

import (
	"context"
	"errors"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var gweiPerEth = decimal.New(1, 9)

// Config holds the configuration for the selector. The gas price source,
// estimator and price feed are optional; without all three the selector
// keeps the quote order.
type Config struct {
	Network   chains.Network
	Settings  engine.Settings
	GasPrice  chains.GasPriceSource
	Estimator chains.GasEstimator
	PriceFeed chains.FiatPriceFeed
	Logger    chains.Logger
	Registry  prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Allowance reports whether the wallet has approved enough to each router.
type Allowance struct {
	V2 bool
	V3 bool
}

func (a Allowance) For(v engine.Version) bool {
	if v == engine.V3 {
		return a.V3
	}
	return a.V2
}

// SelectRequest carries quotes ordered best first, as the quoter returns them.
type SelectRequest struct {
	Quotes        []engine.RouteQuote
	ToToken       engine.Token
	Allowance     Allowance
	EnoughBalance bool
}

// Selector picks the best route, optionally accounting for gas cost.
type Selector struct {
	network   chains.Network
	settings  engine.Settings
	gasPrice  chains.GasPriceSource
	estimator chains.GasEstimator
	feed      chains.FiatPriceFeed
	logger    chains.Logger
	metrics   *Metrics
}

func New(cfg Config) (*Selector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Selector{
		network:   cfg.Network,
		settings:  cfg.Settings.WithDefaults(),
		gasPrice:  cfg.GasPrice,
		estimator: cfg.Estimator,
		feed:      cfg.PriceFeed,
		logger:    cfg.Logger,
		metrics:   NewMetrics(cfg.Registry),
	}, nil
}

func (s *Selector) gasAware(req SelectRequest) bool {
	return s.settings.GasAware &&
		s.network.ChainID == chains.Mainnet &&
		s.gasPrice != nil && s.estimator != nil && s.feed != nil &&
		!s.settings.DisableMultihops &&
		req.EnoughBalance
}

// Select returns a copy of the quotes with the chosen route first. By default
// that is the quoter's order. When gas-aware ranking applies, the best
// route per hop count is scored by fiat output minus fiat gas cost and the
// highest score moves to the front.
func (s *Selector) Select(ctx context.Context, req SelectRequest) ([]engine.RouteQuote, error) {
	if len(req.Quotes) == 0 {
		return nil, engine.NoRouteFoundError("no routes found for %s", req.ToToken.Symbol)
	}
	out := make([]engine.RouteQuote, len(req.Quotes))
	for i, q := range req.Quotes {
		out[i] = q.Clone()
	}
	if !s.gasAware(req) {
		return out, nil
	}

	best, ok := s.rerank(ctx, out, req)
	if !ok {
		s.metrics.rerankTotal.WithLabelValues("skipped").Inc()
		return out, nil
	}
	if best == 0 {
		s.metrics.rerankTotal.WithLabelValues("unchanged").Inc()
		return out, nil
	}
	promoted := out[best]
	copy(out[1:best+1], out[:best])
	out[0] = promoted
	s.metrics.rerankTotal.WithLabelValues("reordered").Inc()
	return out, nil
}

// rerank scores the hop-bucket winners in place and returns the index of
// the best one.
func (s *Selector) rerank(ctx context.Context, quotes []engine.RouteQuote, req SelectRequest) (int, bool) {
	toAddr := s.network.OnChainAddress(req.ToToken.Address)
	ethAddr := s.network.WrappedNative.Address
	prices, err := s.feed.USDPrices(ctx, []common.Address{toAddr, ethAddr})
	if err != nil {
		s.logger.Warn("Fiat prices unavailable, keeping quote order", "error", err)
		return 0, false
	}
	toUSD, okTo := prices[toAddr]
	ethUSD, okEth := prices[ethAddr]
	if !okTo || !okEth {
		s.logger.Debug("Fiat price missing, keeping quote order", "token", toAddr)
		return 0, false
	}

	gwei, err := s.gasPrice.GasPriceGwei(ctx)
	if err != nil {
		s.logger.Warn("Gas price unavailable, keeping quote order", "error", err)
		return 0, false
	}

	var (
		bestIdx   = -1
		bestScore decimal.Decimal
	)
	for _, i := range hopWinners(quotes, req.Allowance) {
		units, err := s.estimator.EstimateGas(ctx, quotes[i].Transaction)
		if err != nil {
			s.logger.Warn("Gas estimation failed, skipping route", "route", quotes[i].Label, "error", err)
			continue
		}
		gasUSD := decimal.NewFromInt(int64(units)).Mul(gwei).Div(gweiPerEth).Mul(ethUSD)
		score := quotes[i].ExpectedQuote.Mul(toUSD).Sub(gasUSD)

		g := gwei
		quotes[i].GasPriceEstimatedBy = &g
		if bestIdx < 0 || score.GreaterThan(bestScore) {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx < 0 {
		return 0, false
	}
	return bestIdx, true
}

// hopWinners returns the index of the first allowance-sufficient quote for
// each route length.
func hopWinners(quotes []engine.RouteQuote, allowance Allowance) []int {
	var winners []int
	seen := make(map[int]bool, 3)
	for i, q := range quotes {
		hops := q.Route.Hops()
		if seen[hops] || !allowance.For(q.Route.Version) {
			continue
		}
		seen[hops] = true
		winners = append(winners, i)
		if len(seen) == 3 {
			break
		}
	}
	return winners
}
