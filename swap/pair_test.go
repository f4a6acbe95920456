package swap

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/multicall/multicalltest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	pairAddr = common.HexToAddress("0xAE461cA67B15dc8dc81CE7615e0320dA1A9aB8D5")
	fixedAt  = time.Unix(1_700_000_000, 0)
)

// newBigIntFromString is a helper function to create a big.Int from a string,
// which is necessary for numbers larger than a standard int64.
func newBigIntFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

type headSource struct {
	ch chan engine.BlockSummary
}

func (s headSource) Blocks() <-chan engine.BlockSummary {
	return s.ch
}

type fixture struct {
	network chains.Network
	fake    *multicalltest.Fake
	abis    *contracts.ABIs
	heads   headSource
	dai     engine.Token
	usdc    engine.Token
}

func newFixture(t *testing.T) *fixture {
	network, err := chains.Lookup(chains.Mainnet, nil)
	require.NoError(t, err)
	return &fixture{
		network: network,
		fake:    multicalltest.New(t),
		abis:    contracts.MustLoad(),
		heads:   headSource{ch: make(chan engine.BlockSummary, 4)},
		usdc:    network.Hubs[2],
		dai:     network.Hubs[3],
	}
}

func (f *fixture) pair(t *testing.T, from, to common.Address) *Pair {
	p, err := New(context.Background(), Config{
		Caller:   f.fake,
		ChainID:  chains.Mainnet,
		Owner:    owner,
		From:     from,
		To:       to,
		Settings: engine.DefaultSettings(),
		Heads:    f.heads,
		Now:      func() time.Time { return fixedAt },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

// primeRoute makes DAI/USDC the only existing pool and prices 100 DAI at
// usdcOut base units.
func (f *fixture) primeRoute(usdcOut int64) {
	f.fake.Respond(contracts.DefaultV2Factory, &f.abis.V2Factory, contracts.MethodGetPair, []any{f.dai.Address, f.usdc.Address}, pairAddr)
	path := []common.Address{f.dai.Address, f.usdc.Address}
	f.fake.Respond(contracts.DefaultV2Router, &f.abis.V2Router, contracts.MethodGetAmountsOut,
		[]any{newBigIntFromString("100000000000000000000"), path},
		[]*big.Int{newBigIntFromString("100000000000000000000"), big.NewInt(usdcOut)})
}

func (f *fixture) primeHoldings(daiAllowanceV2 *big.Int) {
	f.fake.Respond(f.dai.Address, &f.abis.ERC20, contracts.MethodBalanceOf, []any{owner}, newBigIntFromString("50000000000000000000"))
	f.fake.Respond(f.dai.Address, &f.abis.ERC20, contracts.MethodAllowance, []any{owner, contracts.DefaultV2Router}, daiAllowanceV2)
	f.fake.Respond(f.usdc.Address, &f.abis.ERC20, contracts.MethodBalanceOf, []any{owner}, big.NewInt(7_000_000))
}

// primePosition sets up a USDC/DAI pair holding 2M of each, 1000 LP in
// supply of which the owner holds 10, as the factory's only pair.
func (f *fixture) primePosition(reserveUSDC *big.Int, blockTimestampLast uint32) {
	factory := contracts.DefaultV2Factory
	f.fake.Respond(factory, &f.abis.V2Factory, contracts.MethodAllPairsLength, nil, big.NewInt(1))
	f.fake.Respond(factory, &f.abis.V2Factory, contracts.MethodAllPairs, []any{big.NewInt(0)}, pairAddr)
	f.fake.Respond(pairAddr, &f.abis.V2Pair, contracts.MethodToken0, nil, f.usdc.Address)
	f.fake.Respond(pairAddr, &f.abis.V2Pair, contracts.MethodToken1, nil, f.dai.Address)
	f.fake.Respond(pairAddr, &f.abis.V2Pair, contracts.MethodDecimals, nil, uint8(18))
	f.fake.Respond(pairAddr, &f.abis.V2Pair, contracts.MethodGetReserves, nil,
		reserveUSDC, newBigIntFromString("2000000000000000000000000"), blockTimestampLast)
	f.fake.Respond(pairAddr, &f.abis.V2Pair, contracts.MethodTotalSupply, nil, newBigIntFromString("1000000000000000000000"))
	f.fake.Respond(pairAddr, &f.abis.V2Pair, contracts.MethodBalanceOf, []any{owner}, newBigIntFromString("10000000000000000000"))
	f.fake.Respond(f.usdc.Address, &f.abis.ERC20, contracts.MethodBalanceOf, []any{pairAddr}, reserveUSDC)
	f.fake.Respond(f.dai.Address, &f.abis.ERC20, contracts.MethodBalanceOf, []any{pairAddr}, newBigIntFromString("2000000000000000000000000"))
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an update")
	}
	var zero T
	return zero
}

func TestTrade_ExactInput(t *testing.T) {
	f := newFixture(t)
	f.primeRoute(99_000_000)
	f.primeHoldings(newBigIntFromString("1000000000000000000000"))
	p := f.pair(t, f.dai.Address, f.usdc.Address)

	tc, err := p.Trade(context.Background(), decimal.NewFromInt(100), engine.Input)
	require.NoError(t, err)

	assert.Equal(t, engine.V2, tc.Version)
	assert.Equal(t, engine.Input, tc.Direction)
	assert.Equal(t, "100", tc.BaseRequest.String())
	assert.Equal(t, "99", tc.ExpectedQuote.String())
	require.NotNil(t, tc.MinimumOut)
	assert.Equal(t, "98.505", tc.MinimumOut.String())
	assert.Nil(t, tc.MaximumIn)
	assert.Equal(t, "0.3", tc.LiquidityFee.String())
	assert.Equal(t, "0.003", tc.LiquidityFeePercent.String())
	assert.Equal(t, "DAI > USDC", tc.RouteLabel)
	assert.Equal(t, []common.Address{f.dai.Address, f.usdc.Address}, tc.RoutePath)
	assert.Equal(t, fixedAt.Unix()+20*60, tc.Expires)

	assert.True(t, tc.HasEnoughAllowance)
	assert.Nil(t, tc.ApprovalTransaction)
	assert.False(t, tc.FromBalance.HasEnough)
	assert.Equal(t, "50", tc.FromBalance.Balance.String())
	assert.Equal(t, "7", tc.ToBalance.String())

	assert.Equal(t, contracts.DefaultV2Router, tc.Transaction.To)
	assert.Equal(t, owner, tc.Transaction.From)
	assert.Len(t, tc.AllTriedRoutes, 1)
}

func TestTrade_ShortAllowanceAddsApproval(t *testing.T) {
	f := newFixture(t)
	f.primeRoute(99_000_000)
	f.primeHoldings(newBigIntFromString("1000000000000000000"))
	p := f.pair(t, f.dai.Address, f.usdc.Address)

	tc, err := p.Trade(context.Background(), decimal.NewFromInt(100), engine.Input)
	require.NoError(t, err)

	assert.False(t, tc.HasEnoughAllowance)
	require.NotNil(t, tc.ApprovalTransaction)
	assert.Equal(t, f.dai.Address, tc.ApprovalTransaction.To)

	method, err := f.abis.ERC20.MethodById(tc.ApprovalTransaction.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, contracts.MethodApprove, method.Name)
	args, err := method.Inputs.Unpack(tc.ApprovalTransaction.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, contracts.DefaultV2Router, args[0].(common.Address))
}

func TestTrade_ExactOutputSetsMaximumIn(t *testing.T) {
	f := newFixture(t)
	f.fake.Respond(contracts.DefaultV2Factory, &f.abis.V2Factory, contracts.MethodGetPair, []any{f.dai.Address, f.usdc.Address}, pairAddr)
	path := []common.Address{f.dai.Address, f.usdc.Address}
	f.fake.Respond(contracts.DefaultV2Router, &f.abis.V2Router, contracts.MethodGetAmountsIn,
		[]any{big.NewInt(99_000_000), path},
		[]*big.Int{newBigIntFromString("100000000000000000000"), big.NewInt(99_000_000)})
	f.primeHoldings(newBigIntFromString("1000000000000000000000"))
	p := f.pair(t, f.dai.Address, f.usdc.Address)

	tc, err := p.Trade(context.Background(), decimal.NewFromInt(99), engine.Output)
	require.NoError(t, err)

	assert.Equal(t, "100", tc.ExpectedQuote.String())
	assert.Nil(t, tc.MinimumOut)
	require.NotNil(t, tc.MaximumIn)
	assert.Equal(t, "100.5", tc.MaximumIn.String())
	assert.Equal(t, "0.3", tc.LiquidityFee.String(), "the fee is taken from the expected input")
	assert.True(t, tc.HasEnoughAllowance)
}

func TestTrade_Errors(t *testing.T) {
	t.Run("should report no route when no pool exists", func(t *testing.T) {
		f := newFixture(t)
		p := f.pair(t, f.dai.Address, f.usdc.Address)

		_, err := p.Trade(context.Background(), decimal.NewFromInt(100), engine.Input)
		require.ErrorIs(t, err, engine.ErrNoRouteFound)
	})

	t.Run("should reject a non-positive amount", func(t *testing.T) {
		f := newFixture(t)
		p := f.pair(t, f.dai.Address, f.usdc.Address)

		_, err := p.Trade(context.Background(), decimal.Zero, engine.Input)
		require.ErrorIs(t, err, engine.ErrConfiguration)
		code, ok := engine.CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, engine.CodeInvalidAmount, code)
		assert.Empty(t, f.fake.Batches())
	})
}

func TestNew_Errors(t *testing.T) {
	t.Run("should reject identical tokens", func(t *testing.T) {
		f := newFixture(t)
		_, err := New(context.Background(), Config{
			Caller:   f.fake,
			ChainID:  chains.Mainnet,
			Owner:    owner,
			From:     f.network.WrappedNative.Address,
			To:       engine.NativeAddress,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			Registry: prometheus.NewRegistry(),
		})
		code, ok := engine.CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, engine.CodeIdenticalTokens, code)
	})

	t.Run("should reject an unknown chain", func(t *testing.T) {
		f := newFixture(t)
		_, err := New(context.Background(), Config{
			Caller:   f.fake,
			ChainID:  424242,
			Owner:    owner,
			From:     f.dai.Address,
			To:       f.usdc.Address,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			Registry: prometheus.NewRegistry(),
		})
		require.ErrorIs(t, err, engine.ErrConfiguration)
	})

	t.Run("should require every dependency", func(t *testing.T) {
		_, err := New(context.Background(), Config{})
		assert.Error(t, err)
	})
}

func TestDefaultWatchInterval(t *testing.T) {
	assert.Equal(t, 5*time.Second, DefaultWatchInterval)
}

func TestBalancesAndAllowances(t *testing.T) {
	f := newFixture(t)
	f.primeHoldings(newBigIntFromString("1000000000000000000000"))
	p := f.pair(t, f.dai.Address, f.usdc.Address)
	ctx := context.Background()

	balance, err := p.FromTokenBalance(ctx, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.True(t, balance.HasEnough)
	assert.Equal(t, "50", balance.Balance.String())

	toBalance, err := p.ToTokenBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", toBalance.String())

	allowance, err := p.Allowance(ctx, engine.V2)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", allowance.String())

	allowance, err = p.Allowance(ctx, engine.V3)
	require.NoError(t, err)
	assert.Zero(t, allowance.Sign())
}

func TestNativeSource(t *testing.T) {
	f := newFixture(t)
	f.fake.SetBalance(owner, newBigIntFromString("2000000000000000000"))
	p := f.pair(t, engine.NativeAddress, f.dai.Address)
	ctx := context.Background()

	allowance, err := p.Allowance(ctx, engine.V2)
	require.NoError(t, err)
	assert.Equal(t, 256, allowance.BitLen(), "the native currency reports the maximum allowance")

	balance, err := p.FromTokenBalance(ctx, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, balance.HasEnough)
	assert.Equal(t, "2", balance.Balance.String())

	_, err = p.GenerateApproveMaxAllowanceData(engine.V2)
	require.ErrorIs(t, err, engine.ErrUnsupportedOperation)
}

func TestWatchTrade_EmitsWhenTheQuoteMoves(t *testing.T) {
	f := newFixture(t)
	f.primeRoute(99_000_000)
	f.primeHoldings(newBigIntFromString("1000000000000000000000"))
	p := f.pair(t, f.dai.Address, f.usdc.Address)

	initial, sub, err := p.WatchTrade(context.Background(), decimal.NewFromInt(100), engine.Input)
	require.NoError(t, err)
	assert.Equal(t, "99", initial.ExpectedQuote.String())

	f.primeRoute(98_000_000)
	f.heads.ch <- engine.BlockSummary{Number: big.NewInt(1)}

	next := receive(t, sub.C())
	assert.Equal(t, "98", next.ExpectedQuote.String())
	assert.Equal(t, "97.51", next.MinimumOut.String())

	p.StopWatchingTrade()
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestWatchPortfolio_StreamsPairsThatMoved(t *testing.T) {
	f := newFixture(t)
	f.primePosition(newBigIntFromString("2000000000000"), 1_699_999_000)
	p := f.pair(t, f.dai.Address, f.usdc.Address)

	positions, err := p.WatchPortfolio(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, pairAddr, positions[0].Liquidity.PairAddress)
	assert.Equal(t, "20000", positions[0].Liquidity.EstimatedToken0Owned.String())
	assert.Equal(t, pairAddr.Hex(), positions[0].Updates.Key())

	f.primePosition(newBigIntFromString("2200000000000"), 1_700_000_100)
	f.heads.ch <- engine.BlockSummary{Number: big.NewInt(1)}

	update := receive(t, positions[0].Updates.C())
	assert.Equal(t, "2200000000000", update.Reserve0.String())
	assert.Equal(t, uint32(1_700_000_100), update.BlockTimestampLast)
	assert.Equal(t, "22000", update.EstimatedToken0Owned.String())

	p.Close()
	_, ok := <-positions[0].Updates.C()
	assert.False(t, ok)
}
