package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/engine"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/shopspring/decimal"
)

// GasBackend is the subset of *ethclient.Client gas reads need.
type GasBackend interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Gas answers gas price and gas estimate queries from a node.
type Gas struct {
	backend GasBackend
}

func NewGas(backend GasBackend) *Gas {
	return &Gas{backend: backend}
}

// GasPriceGwei returns the node's suggested gas price in gwei.
func (g *Gas) GasPriceGwei(ctx context.Context) (decimal.Decimal, error) {
	wei, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read gas price: %w", err)
	}
	return engine.FromBaseUnits(wei, 9), nil
}

// EstimateGas estimates the gas units tx would consume if sent now.
func (g *Gas) EstimateGas(ctx context.Context, tx engine.Transaction) (uint64, error) {
	to := tx.To
	msg := ethereum.CallMsg{
		From: tx.From,
		To:   &to,
		Data: tx.Data,
	}
	if tx.Value != nil {
		msg.Value = new(big.Int).Set(tx.Value.ToInt())
	}
	units, err := g.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas for call to %s: %w", tx.To, err)
	}
	return units, nil
}
