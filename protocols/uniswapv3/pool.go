package uniswapv3

import (
	"math/big"

	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/multicall"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FeeTier is a pool fee in hundredths of a basis point.
type FeeTier uint32

const (
	FeeLow    FeeTier = 500
	FeeMedium FeeTier = 3000
	FeeHigh   FeeTier = 10000
)

// FeeTiers lists the tiers searched for direct routes, in search order.
var FeeTiers = []FeeTier{FeeLow, FeeMedium, FeeHigh}

var feeDenominator = decimal.NewFromInt(1_000_000)

// Percent returns the fee as a fraction, e.g. 0.003 for FeeMedium.
func (f FeeTier) Percent() decimal.Decimal {
	return decimal.NewFromInt(int64(f)).Div(feeDenominator)
}

// Big returns the fee in the form the ABI encoder expects for uint24.
func (f FeeTier) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(f))
}

// ExactInputSingleParams mirrors ISwapRouter.ExactInputSingleParams.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactOutputSingleParams mirrors ISwapRouter.ExactOutputSingleParams.
type ExactOutputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountOut         *big.Int
	AmountInMaximum   *big.Int
	SqrtPriceLimitX96 *big.Int
}

// GetPoolCall looks up the pool for a pair and tier.
func GetPoolCall(abis *contracts.ABIs, factory, tokenA, tokenB common.Address, fee FeeTier, reference string) multicall.Call {
	return multicall.Call{
		Reference: reference,
		Target:    factory,
		ABI:       &abis.V3Factory,
		Method:    contracts.MethodGetPool,
		Params:    []any{tokenA, tokenB, fee.Big()},
	}
}

// QuoteCall prices a single-pool swap through the quoter. For exact input
// amount is the input and the result the output; for exact output it is
// the other way around.
func QuoteCall(abis *contracts.ABIs, quoter, tokenIn, tokenOut common.Address, fee FeeTier, amount *big.Int, exactOutput bool, reference string) multicall.Call {
	method := contracts.MethodQuoteExactIn
	if exactOutput {
		method = contracts.MethodQuoteExactOut
	}
	return multicall.Call{
		Reference: reference,
		Target:    quoter,
		ABI:       &abis.V3Quoter,
		Method:    method,
		Params:    []any{tokenIn, tokenOut, fee.Big(), amount, new(big.Int)},
	}
}
