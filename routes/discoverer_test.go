package routes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/multicall/multicalltest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uni = engine.Token{ChainID: chains.Mainnet, Address: common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"), Decimals: 18, Symbol: "UNI"}

type fixture struct {
	network chains.Network
	fake    *multicalltest.Fake
	abis    *contracts.ABIs
	nextID  int64
}

func newFixture(t *testing.T) *fixture {
	network, err := chains.Lookup(chains.Mainnet, nil)
	require.NoError(t, err)
	return &fixture{network: network, fake: multicalltest.New(t), abis: contracts.MustLoad()}
}

func (f *fixture) hub(symbol string) engine.Token {
	for _, h := range f.network.Hubs {
		if h.Symbol == symbol {
			return h
		}
	}
	panic("unknown hub " + symbol)
}

func (f *fixture) pair(a, b engine.Token) {
	f.nextID++
	pairAddr := common.BigToAddress(big.NewInt(0x1000 + f.nextID))
	for _, order := range [][2]common.Address{{a.Address, b.Address}, {b.Address, a.Address}} {
		f.fake.Respond(contracts.DefaultV2Factory, &f.abis.V2Factory, contracts.MethodGetPair, []any{order[0], order[1]}, pairAddr)
	}
}

func (f *fixture) discoverer(t *testing.T, settings engine.Settings) *Discoverer {
	d, err := NewDiscoverer(Config{
		Caller:    f.fake,
		Network:   f.network,
		Addresses: contracts.Resolve(nil),
		Settings:  settings,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d
}

func labels(routes []engine.Route) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.Label()
	}
	return out
}

func TestDiscover_EnumeratesHubRoutesInOrder(t *testing.T) {
	f := newFixture(t)
	weth, usdt, usdc, dai := f.network.WrappedNative, f.hub("USDT"), f.hub("USDC"), f.hub("DAI")
	f.pair(uni, weth)
	f.pair(uni, usdt)
	f.pair(usdt, weth)
	f.pair(uni, dai)
	f.pair(dai, usdt)
	f.pair(usdc, weth)
	f.pair(usdt, usdc)
	f.fake.Respond(contracts.DefaultV3Factory, &f.abis.V3Factory, contracts.MethodGetPool, []any{uni.Address, weth.Address, big.NewInt(3000)}, common.HexToAddress("0x00000000000000000000000000000000000000c3"))

	candidates, err := f.discoverer(t, engine.DefaultSettings()).Discover(context.Background(), uni, f.network.Native, false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"UNI > ETH",
		"UNI > USDT > ETH",
		"UNI > DAI > USDT > ETH",
		"UNI > USDT > USDC > ETH",
	}, labels(candidates.V2))
	assert.Equal(t, []common.Address{uni.Address, dai.Address, usdt.Address, weth.Address}, candidates.V2[2].Path)
	for _, r := range candidates.V2 {
		assert.Equal(t, "0.003", r.LiquidityProviderFee.String())
		assert.LessOrEqual(t, r.Hops(), 4)
	}

	require.Len(t, candidates.V3, 1)
	assert.Equal(t, uint32(3000), candidates.V3[0].FeeTier)
	assert.Equal(t, []common.Address{uni.Address, weth.Address}, candidates.V3[0].Path)
	assert.Equal(t, 5, candidates.Len())

	batches := f.fake.Batches()
	require.Len(t, batches, 1, "existence is checked in one round trip")
	// 7 nodes (from, to and five hubs once WETH is excluded) give 21 pairs, plus 3 fee tiers.
	assert.Len(t, batches[0], 24)
}

func TestDiscover_DirectOnly(t *testing.T) {
	testCases := []struct {
		name       string
		settings   engine.Settings
		directOnly bool
	}{
		{name: "should only check the direct pair when asked", settings: engine.DefaultSettings(), directOnly: true},
		{name: "should only check the direct pair when multihops are disabled", settings: engine.Settings{DisableMultihops: true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			usdt := f.hub("USDT")
			f.pair(uni, usdt)
			f.pair(uni, f.network.WrappedNative)
			f.pair(usdt, f.network.WrappedNative)

			candidates, err := f.discoverer(t, tc.settings).Discover(context.Background(), uni, f.network.WrappedNative, tc.directOnly)
			require.NoError(t, err)
			assert.Equal(t, []string{"UNI > WETH"}, labels(candidates.V2))
			assert.Empty(t, candidates.V3)
			assert.Len(t, f.fake.Batches()[0], 4)
		})
	}
}

func TestDiscover_RespectsVersions(t *testing.T) {
	f := newFixture(t)
	f.pair(uni, f.network.WrappedNative)

	candidates, err := f.discoverer(t, engine.Settings{Versions: []engine.Version{engine.V3}}).Discover(context.Background(), uni, f.network.WrappedNative, false)
	require.NoError(t, err)
	assert.Empty(t, candidates.V2)
	assert.Len(t, f.fake.Batches()[0], 3, "only fee tiers are checked")
}

func TestDiscover_NoPairs(t *testing.T) {
	f := newFixture(t)
	candidates, err := f.discoverer(t, engine.DefaultSettings()).Discover(context.Background(), uni, f.hub("DAI"), false)
	require.NoError(t, err)
	assert.Zero(t, candidates.Len())
}

func TestDiscover_RejectsIdenticalTokens(t *testing.T) {
	f := newFixture(t)
	_, err := f.discoverer(t, engine.DefaultSettings()).Discover(context.Background(), f.network.Native, f.network.WrappedNative, false)
	require.ErrorIs(t, err, engine.ErrConfiguration)
	assert.Empty(t, f.fake.Batches())
}

func TestDiscover_TransportFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection refused")
	f.fake.FailWith(boom)
	_, err := f.discoverer(t, engine.DefaultSettings()).Discover(context.Background(), uni, f.hub("DAI"), false)
	require.ErrorIs(t, err, boom)
}
