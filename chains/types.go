package chains

import (
	"context"
	"math/big"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/multicall"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Caller executes batched read-only contract calls in one round trip and
// reads native balances.
type Caller interface {
	Call(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// GasPriceSource reports the current gas price in gwei.
type GasPriceSource interface {
	GasPriceGwei(ctx context.Context) (decimal.Decimal, error)
}

// GasEstimator estimates the gas units a transaction would consume.
type GasEstimator interface {
	EstimateGas(ctx context.Context, tx engine.Transaction) (uint64, error)
}

// FiatPriceFeed maps token contract addresses to USD prices. Tokens without
// a price are absent from the result.
type FiatPriceFeed interface {
	USDPrices(ctx context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error)
}

// BlockSource delivers new block heads.
type BlockSource interface {
	Blocks() <-chan engine.BlockSummary
}
