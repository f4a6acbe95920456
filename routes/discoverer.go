package routes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/multicall"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
)

// Config holds the configuration for the discoverer.
type Config struct {
	Caller    chains.Caller
	Network   chains.Network
	Addresses contracts.Addresses
	Settings  engine.Settings
	Logger    chains.Logger
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

// Candidates are the routes found for a pair, partitioned by version and in
// discovery order.
type Candidates struct {
	V2 []engine.Route
	V3 []engine.Route
}

// Len returns the total number of candidate routes.
func (c Candidates) Len() int {
	return len(c.V2) + len(c.V3)
}

// All returns v2 routes followed by v3 routes.
func (c Candidates) All() []engine.Route {
	out := make([]engine.Route, 0, c.Len())
	out = append(out, c.V2...)
	return append(out, c.V3...)
}

// Discoverer enumerates candidate routes over the network's hub tokens.
// Existence of every pair and pool is checked in a single batch.
type Discoverer struct {
	caller   chains.Caller
	network  chains.Network
	addrs    contracts.Addresses
	settings engine.Settings
	logger   chains.Logger
	abis     *contracts.ABIs
}

func NewDiscoverer(cfg Config) (*Discoverer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	abis, err := contracts.Load()
	if err != nil {
		return nil, err
	}
	return &Discoverer{
		caller:   cfg.Caller,
		network:  cfg.Network,
		addrs:    cfg.Addresses,
		settings: cfg.Settings.WithDefaults(),
		logger:   cfg.Logger,
		abis:     abis,
	}, nil
}

// pairKey identifies an unordered token pair.
func pairKey(a, b common.Address) string {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return "v2:" + a.Hex() + ":" + b.Hex()
}

func poolKey(fee uniswapv3.FeeTier) string {
	return fmt.Sprintf("v3:%d", fee)
}

// Discover returns every candidate route from one token to another. With
// directOnly, or when multihops are disabled, only the direct pair is
// considered.
func (d *Discoverer) Discover(ctx context.Context, from, to engine.Token, directOnly bool) (Candidates, error) {
	if _, err := d.network.ClassifyTradePath(from, to); err != nil {
		return Candidates{}, err
	}
	fromOn := d.network.OnChainAddress(from.Address)
	toOn := d.network.OnChainAddress(to.Address)
	multihop := !d.settings.DisableMultihops && !directOnly

	var hubs []engine.Token
	if multihop {
		seen := mapset.NewThreadUnsafeSet(fromOn, toOn)
		for _, hub := range d.network.Hubs {
			if seen.Add(hub.Address) {
				hubs = append(hubs, hub)
			}
		}
	}

	calls := d.existenceCalls(fromOn, toOn, hubs)
	if len(calls) == 0 {
		return Candidates{}, nil
	}
	results, err := d.caller.Call(ctx, calls)
	if err != nil {
		return Candidates{}, fmt.Errorf("failed to check pair existence: %w", err)
	}

	existing := mapset.NewThreadUnsafeSet[string]()
	for _, r := range results {
		addr, err := r.Address()
		if err != nil {
			d.logger.Debug("Pair existence check failed", "reference", r.Reference, "error", err)
			continue
		}
		if addr != (common.Address{}) {
			existing.Add(r.Reference)
		}
	}

	var out Candidates
	if d.settings.HasVersion(engine.V2) {
		out.V2 = d.v2Routes(from, to, hubs, existing)
	}
	if d.settings.HasVersion(engine.V3) {
		for _, fee := range uniswapv3.FeeTiers {
			if existing.Contains(poolKey(fee)) {
				out.V3 = append(out.V3, engine.Route{
					Version:              engine.V3,
					Tokens:               []engine.Token{from, to},
					Path:                 []common.Address{fromOn, toOn},
					FeeTier:              uint32(fee),
					LiquidityProviderFee: fee.Percent(),
				})
			}
		}
	}
	d.logger.Debug("Discovered routes", "from", from.Symbol, "to", to.Symbol, "v2", len(out.V2), "v3", len(out.V3))
	return out, nil
}

func (d *Discoverer) existenceCalls(fromOn, toOn common.Address, hubs []engine.Token) []multicall.Call {
	var calls []multicall.Call
	if d.settings.HasVersion(engine.V2) {
		nodes := make([]common.Address, 0, len(hubs)+2)
		nodes = append(nodes, fromOn, toOn)
		for _, hub := range hubs {
			nodes = append(nodes, hub.Address)
		}
		for i := 0; i < len(nodes); i++ {
			for j := i + 1; j < len(nodes); j++ {
				calls = append(calls, uniswapv2.GetPairCall(d.abis, d.addrs.V2Factory, nodes[i], nodes[j], pairKey(nodes[i], nodes[j])))
			}
		}
	}
	if d.settings.HasVersion(engine.V3) {
		for _, fee := range uniswapv3.FeeTiers {
			calls = append(calls, uniswapv3.GetPoolCall(d.abis, d.addrs.V3Factory, fromOn, toOn, fee, poolKey(fee)))
		}
	}
	return calls
}

// v2Routes enumerates routes of up to four tokens. For every hub h paired
// with both ends it yields [from h to], then [from f h to] for hubs f
// paired with from and h, then [from h t to] for hubs t paired with h and to.
func (d *Discoverer) v2Routes(from, to engine.Token, hubs []engine.Token, existing mapset.Set[string]) []engine.Route {
	addr := func(t engine.Token) common.Address { return d.network.OnChainAddress(t.Address) }
	paired := func(a, b engine.Token) bool { return existing.Contains(pairKey(addr(a), addr(b))) }

	var routes []engine.Route
	seen := mapset.NewThreadUnsafeSet[string]()
	add := func(tokens ...engine.Token) {
		path := make([]common.Address, len(tokens))
		keys := make([]string, len(tokens))
		distinct := mapset.NewThreadUnsafeSet[common.Address]()
		for i, t := range tokens {
			path[i] = addr(t)
			keys[i] = path[i].Hex()
			distinct.Add(path[i])
		}
		if distinct.Cardinality() != len(tokens) || !seen.Add(strings.Join(keys, ">")) {
			return
		}
		routes = append(routes, engine.Route{
			Version:              engine.V2,
			Tokens:               tokens,
			Path:                 path,
			LiquidityProviderFee: uniswapv2.LiquidityProviderFee,
		})
	}

	if paired(from, to) {
		add(from, to)
	}
	for _, h := range hubs {
		if !paired(from, h) || !paired(h, to) {
			continue
		}
		add(from, h, to)
		for _, f := range hubs {
			if paired(from, f) && paired(f, h) {
				add(from, f, h, to)
			}
		}
		for _, t := range hubs {
			if paired(h, t) && paired(t, to) {
				add(from, h, t, to)
			}
		}
	}
	return routes
}
