package multicall

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultBatchSize bounds how many eth_calls travel in one JSON-RPC batch.
	DefaultBatchSize = 500

	blockTag = "latest"
)

// RPC is the subset of *rpc.Client the batch client needs.
type RPC interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// Config holds the configuration for the client.
type Config struct {
	Logger    Logger
	Registry  prometheus.Registerer
	BatchSize int
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.BatchSize < 0 {
		return errors.New("config: BatchSize must not be negative")
	}
	return nil
}

type callArgs struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// Client aggregates contract reads into JSON-RPC batches of eth_call.
// It is safe for concurrent use.
type Client struct {
	rpc       RPC
	logger    Logger
	metrics   *Metrics
	batchSize int
}

// NewClient wraps an RPC connection.
func NewClient(rpcClient RPC, cfg Config) (*Client, error) {
	if rpcClient == nil {
		return nil, errors.New("multicall: rpc client is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		rpc:       rpcClient,
		logger:    cfg.Logger,
		metrics:   NewMetrics(cfg.Registry),
		batchSize: batchSize,
	}, nil
}

// Call executes every call and returns results in input order. Individual
// reverts are reported per result; only packing and transport failures
// fail the whole call.
func (c *Client) Call(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	timer := prometheus.NewTimer(c.metrics.batchDuration)
	defer timer.ObserveDuration()

	elems := make([]rpc.BatchElem, len(calls))
	for i, call := range calls {
		data, err := call.Pack()
		if err != nil {
			return nil, err
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []any{callArgs{To: call.Target, Data: data}, blockTag},
			Result: new(hexutil.Bytes),
		}
	}

	for start := 0; start < len(elems); start += c.batchSize {
		end := min(start+c.batchSize, len(elems))
		if err := c.rpc.BatchCallContext(ctx, elems[start:end]); err != nil {
			c.metrics.batchesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("multicall batch [%d:%d] failed: %w", start, end, err)
		}
		c.metrics.batchesTotal.WithLabelValues("ok").Inc()
	}

	results := make([]Result, len(calls))
	failed := 0
	for i, elem := range elems {
		if elem.Error != nil {
			failed++
			results[i] = NewResult(calls[i], nil, elem.Error)
			continue
		}
		results[i] = NewResult(calls[i], *elem.Result.(*hexutil.Bytes), nil)
	}
	c.metrics.callsTotal.WithLabelValues("ok").Add(float64(len(calls) - failed))
	c.metrics.callsTotal.WithLabelValues("reverted").Add(float64(failed))

	c.logger.Debug("Multicall completed", "calls", len(calls), "failed", failed)
	return results, nil
}

// BalanceAt returns the native-currency balance of account.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance hexutil.Big
	if err := c.rpc.CallContext(ctx, &balance, "eth_getBalance", account, blockTag); err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", account, err)
	}
	return balance.ToInt(), nil
}
