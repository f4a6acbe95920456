package txbuilder

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// Config holds the configuration for the builder.
type Config struct {
	Network   chains.Network
	Addresses contracts.Addresses
	// DeadlineMinutes is added to the clock at every build.
	DeadlineMinutes int
	// Now defaults to time.Now.
	Now func() time.Time
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Network.WrappedNative.Address == (common.Address{}) {
		return errors.New("config: Network is required")
	}
	if c.Addresses.V2Router == (common.Address{}) && c.Addresses.V3Router == (common.Address{}) {
		return errors.New("config: Addresses is required")
	}
	if c.DeadlineMinutes <= 0 {
		return errors.New("config: DeadlineMinutes must be positive")
	}
	return nil
}

// Builder encodes unsigned router and token transactions. It never signs or
// sends anything.
type Builder struct {
	abis     *contracts.ABIs
	network  chains.Network
	addrs    contracts.Addresses
	deadline int
	now      func() time.Time
}

func New(cfg Config) (*Builder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	abis, err := contracts.Load()
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{
		abis:     abis,
		network:  cfg.Network,
		addrs:    cfg.Addresses,
		deadline: cfg.DeadlineMinutes,
		now:      now,
	}, nil
}

// Expires returns the deadline a transaction built now would carry.
func (b *Builder) Expires() int64 {
	return engine.Deadline(b.now(), b.deadline)
}

func value(v *big.Int) *hexutil.Big {
	if v == nil {
		v = new(big.Int)
	}
	return (*hexutil.Big)(new(big.Int).Set(v))
}

// Approve builds an ERC20 approval of amount to spender.
func (b *Builder) Approve(owner common.Address, token engine.Token, spender common.Address, amount *big.Int) (engine.Transaction, error) {
	if token.IsNative() {
		return engine.Transaction{}, engine.UnsupportedOperationError(engine.CodeApproveNotAllowed, "%s is the native currency and needs no approval", token.Symbol)
	}
	data, err := b.abis.ERC20.Pack(contracts.MethodApprove, spender, amount)
	if err != nil {
		return engine.Transaction{}, fmt.Errorf("failed to pack approve: %w", err)
	}
	return engine.Transaction{To: token.Address, From: owner, Data: data, Value: value(nil)}, nil
}

// ApproveRouter approves amount to the router of the given version.
func (b *Builder) ApproveRouter(owner common.Address, token engine.Token, version engine.Version, amount *big.Int) (engine.Transaction, error) {
	return b.Approve(owner, token, b.addrs.Router(version), amount)
}

// ApproveMax approves the maximum uint256 to the router of the given version.
func (b *Builder) ApproveMax(owner common.Address, token engine.Token, version engine.Version) (engine.Transaction, error) {
	return b.ApproveRouter(owner, token, version, math.MaxBig256)
}

// SwapRequest describes one swap along a priced route. Amount is the fixed
// side of the trade and Bound the slippage limit on the other side, both in
// base units.
type SwapRequest struct {
	Owner     common.Address
	Route     engine.Route
	Direction engine.Direction
	From      engine.Token
	To        engine.Token
	Amount    *big.Int
	Bound     *big.Int
}

// Swap builds the router transaction for req and returns it with its deadline.
func (b *Builder) Swap(req SwapRequest) (engine.Transaction, int64, error) {
	tradePath, err := b.network.ClassifyTradePath(req.From, req.To)
	if err != nil {
		return engine.Transaction{}, 0, err
	}
	expires := b.Expires()

	var tx engine.Transaction
	switch req.Route.Version {
	case engine.V2:
		tx, err = b.swapV2(req, tradePath, big.NewInt(expires))
	case engine.V3:
		tx, err = b.swapV3(req, tradePath, big.NewInt(expires))
	default:
		err = engine.ConfigurationError(engine.CodeVersionNotSupported, "version %q is not supported", req.Route.Version)
	}
	if err != nil {
		return engine.Transaction{}, 0, err
	}
	return tx, expires, nil
}

func (b *Builder) swapV2(req SwapRequest, tradePath engine.TradePath, deadline *big.Int) (engine.Transaction, error) {
	var (
		method string
		args   []any
		val    *big.Int
	)
	path := req.Route.Path
	switch {
	case tradePath == engine.EthToErc20 && req.Direction == engine.Input:
		method, args, val = contracts.MethodSwapExactETHForTokens, []any{req.Bound, path, req.Owner, deadline}, req.Amount
	case tradePath == engine.EthToErc20:
		method, args, val = contracts.MethodSwapETHForExactTokens, []any{req.Amount, path, req.Owner, deadline}, req.Bound
	case tradePath == engine.Erc20ToEth && req.Direction == engine.Input:
		method, args = contracts.MethodSwapExactTokensForETH, []any{req.Amount, req.Bound, path, req.Owner, deadline}
	case tradePath == engine.Erc20ToEth:
		method, args = contracts.MethodSwapTokensForExactETH, []any{req.Amount, req.Bound, path, req.Owner, deadline}
	case req.Direction == engine.Input:
		method, args = contracts.MethodSwapExactTokensForTokens, []any{req.Amount, req.Bound, path, req.Owner, deadline}
	default:
		method, args = contracts.MethodSwapTokensForExactTokens, []any{req.Amount, req.Bound, path, req.Owner, deadline}
	}

	data, err := b.abis.V2Router.Pack(method, args...)
	if err != nil {
		return engine.Transaction{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return engine.Transaction{To: b.addrs.V2Router, From: req.Owner, Data: data, Value: value(val)}, nil
}

func (b *Builder) swapV3(req SwapRequest, tradePath engine.TradePath, deadline *big.Int) (engine.Transaction, error) {
	if len(req.Route.Path) != 2 {
		return engine.Transaction{}, engine.UnsupportedOperationError(engine.CodeMultihopNotSupported, "v3 routes are direct only, got %d tokens", len(req.Route.Path))
	}
	fee := uniswapv3.FeeTier(req.Route.FeeTier).Big()
	// The router keeps native output and unwraps it in a second call.
	recipient := req.Owner
	if tradePath == engine.Erc20ToEth {
		recipient = common.Address{}
	}

	var (
		calls [][]byte
		val   *big.Int
	)
	if req.Direction == engine.Input {
		swap, err := b.abis.V3Router.Pack(contracts.MethodExactInSingle, uniswapv3.ExactInputSingleParams{
			TokenIn:           req.Route.Path[0],
			TokenOut:          req.Route.Path[1],
			Fee:               fee,
			Recipient:         recipient,
			Deadline:          deadline,
			AmountIn:          req.Amount,
			AmountOutMinimum:  req.Bound,
			SqrtPriceLimitX96: new(big.Int),
		})
		if err != nil {
			return engine.Transaction{}, fmt.Errorf("failed to pack %s: %w", contracts.MethodExactInSingle, err)
		}
		calls = append(calls, swap)
		if tradePath == engine.EthToErc20 {
			val = req.Amount
		}
		if tradePath == engine.Erc20ToEth {
			unwrap, err := b.abis.V3Router.Pack(contracts.MethodUnwrapWETH9, req.Bound, req.Owner)
			if err != nil {
				return engine.Transaction{}, fmt.Errorf("failed to pack %s: %w", contracts.MethodUnwrapWETH9, err)
			}
			calls = append(calls, unwrap)
		}
	} else {
		swap, err := b.abis.V3Router.Pack(contracts.MethodExactOutSingle, uniswapv3.ExactOutputSingleParams{
			TokenIn:           req.Route.Path[0],
			TokenOut:          req.Route.Path[1],
			Fee:               fee,
			Recipient:         recipient,
			Deadline:          deadline,
			AmountOut:         req.Amount,
			AmountInMaximum:   req.Bound,
			SqrtPriceLimitX96: new(big.Int),
		})
		if err != nil {
			return engine.Transaction{}, fmt.Errorf("failed to pack %s: %w", contracts.MethodExactOutSingle, err)
		}
		calls = append(calls, swap)
		switch tradePath {
		case engine.EthToErc20:
			refund, err := b.abis.V3Router.Pack(contracts.MethodRefundETH)
			if err != nil {
				return engine.Transaction{}, fmt.Errorf("failed to pack %s: %w", contracts.MethodRefundETH, err)
			}
			calls = append(calls, refund)
			val = req.Bound
		case engine.Erc20ToEth:
			unwrap, err := b.abis.V3Router.Pack(contracts.MethodUnwrapWETH9, req.Amount, req.Owner)
			if err != nil {
				return engine.Transaction{}, fmt.Errorf("failed to pack %s: %w", contracts.MethodUnwrapWETH9, err)
			}
			calls = append(calls, unwrap)
		}
	}

	data, err := b.abis.V3Router.Pack(contracts.MethodMulticall, calls)
	if err != nil {
		return engine.Transaction{}, fmt.Errorf("failed to pack %s: %w", contracts.MethodMulticall, err)
	}
	return engine.Transaction{To: b.addrs.V3Router, From: req.Owner, Data: data, Value: value(val)}, nil
}

// LiquidityRequest describes an add or remove on a v2 pair. For adds,
// AmountA and AmountB are the desired deposits; for removes, Liquidity is
// the LP amount to burn. All amounts are in base units.
type LiquidityRequest struct {
	Owner     common.Address
	TokenA    engine.Token
	TokenB    engine.Token
	AmountA   *big.Int
	AmountB   *big.Int
	MinA      *big.Int
	MinB      *big.Int
	Liquidity *big.Int
}

// AddLiquidity builds addLiquidity, or addLiquidityETH when one side is native.
func (b *Builder) AddLiquidity(req LiquidityRequest) (engine.Transaction, int64, error) {
	expires := b.Expires()
	deadline := big.NewInt(expires)

	var (
		method string
		args   []any
		val    *big.Int
	)
	switch {
	case req.TokenA.IsNative():
		method = contracts.MethodAddLiquidityETH
		args = []any{req.TokenB.Address, req.AmountB, req.MinB, req.MinA, req.Owner, deadline}
		val = req.AmountA
	case req.TokenB.IsNative():
		method = contracts.MethodAddLiquidityETH
		args = []any{req.TokenA.Address, req.AmountA, req.MinA, req.MinB, req.Owner, deadline}
		val = req.AmountB
	default:
		method = contracts.MethodAddLiquidity
		args = []any{req.TokenA.Address, req.TokenB.Address, req.AmountA, req.AmountB, req.MinA, req.MinB, req.Owner, deadline}
	}

	data, err := b.abis.V2Router.Pack(method, args...)
	if err != nil {
		return engine.Transaction{}, 0, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return engine.Transaction{To: b.addrs.V2Router, From: req.Owner, Data: data, Value: value(val)}, expires, nil
}

// RemoveLiquidity builds removeLiquidity, or removeLiquidityETH when one side is native.
func (b *Builder) RemoveLiquidity(req LiquidityRequest) (engine.Transaction, int64, error) {
	expires := b.Expires()
	deadline := big.NewInt(expires)

	var (
		method string
		args   []any
	)
	switch {
	case req.TokenA.IsNative():
		method = contracts.MethodRemoveLiquidityETH
		args = []any{req.TokenB.Address, req.Liquidity, req.MinB, req.MinA, req.Owner, deadline}
	case req.TokenB.IsNative():
		method = contracts.MethodRemoveLiquidityETH
		args = []any{req.TokenA.Address, req.Liquidity, req.MinA, req.MinB, req.Owner, deadline}
	default:
		method = contracts.MethodRemoveLiquidity
		args = []any{req.TokenA.Address, req.TokenB.Address, req.Liquidity, req.MinA, req.MinB, req.Owner, deadline}
	}

	data, err := b.abis.V2Router.Pack(method, args...)
	if err != nil {
		return engine.Transaction{}, 0, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return engine.Transaction{To: b.addrs.V2Router, From: req.Owner, Data: data, Value: value(nil)}, expires, nil
}
