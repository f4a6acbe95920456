package ethereum

import (
	"context"
	"fmt"
	"sync"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/multicall"
	jsonrpcclient "github.com/defistate/defistate-router-go/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

// Client is a connection to an Ethereum node. It hands the router the
// batched contract reader, the gas sources and, when a websocket endpoint
// is configured, the new-heads stream. Its lifecycle is bound to the
// context passed during Dial.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	caller  *multicall.Client
	gas     *Gas
	heads   *jsonrpcclient.Client
	chainID uint64
	logger  chains.Logger
	errCh   chan error

	// Set via Options during Dial.
	batchSize  int
	headsURL   string
	headBuffer uint

	ctx context.Context
	wg  sync.WaitGroup
}

// Option configures the Client.
// The interface method is unexported to prevent external modification after Dial.
type Option interface {
	apply(*Client)
}

type funcOption func(*Client)

func (f funcOption) apply(c *Client) {
	f(c)
}

func newOption(f func(*Client)) Option {
	return funcOption(f)
}

// Dial connects to the node at url, reads its chain id and, when configured,
// subscribes to new heads. The returned Client remains active until ctx is
// cancelled.
func Dial(
	ctx context.Context,
	url string,
	logger chains.Logger,
	prometheusRegistry prometheus.Registerer,
	opts ...Option,
) (*Client, error) {
	c := &Client{
		logger:     logger,
		errCh:      make(chan error, 1),
		headBuffer: 16,
	}
	for _, opt := range opts {
		opt.apply(c)
	}

	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node url: %w", err)
	}
	c.rpc = rpcClient
	c.eth = ethclient.NewClient(rpcClient)

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	c.chainID = chainID.Uint64()

	if c.caller, err = multicall.NewClient(rpcClient, multicall.Config{
		Logger:    logger,
		Registry:  prometheusRegistry,
		BatchSize: c.batchSize,
	}); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to create multicall client: %w", err)
	}
	c.gas = NewGas(c.eth)

	if c.headsURL != "" {
		if c.heads, err = jsonrpcclient.NewClient(ctx, jsonrpcclient.Config{
			URL:        c.headsURL,
			Logger:     logger,
			BufferSize: c.headBuffer,
		}); err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("failed to start head stream: %w", err)
		}
	}

	c.ctx = ctx
	c.wg.Add(1)
	go c.loop()

	c.logger.Info("Client started", "url", url, "chain", c.chainID, "heads", c.headsURL != "")
	return c, nil
}

func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Caller batches contract reads into JSON-RPC eth_call batches.
func (c *Client) Caller() chains.Caller {
	return c.caller
}

// Gas reports gas prices and estimates from the node.
func (c *Client) Gas() *Gas {
	return c.gas
}

// Heads returns the new-heads stream, or nil when Dial was not given a
// websocket endpoint.
func (c *Client) Heads() chains.BlockSource {
	if c.heads == nil {
		return nil
	}
	return c.heads
}

// Err delivers the error that ended the head stream. It is closed when the
// client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// Wait blocks until the client has released its connection.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) loop() {
	defer c.wg.Done()
	defer func() {
		c.rpc.Close()
		close(c.errCh)
		c.logger.Info("Client stopped")
	}()

	var streamErr <-chan error
	if c.heads != nil {
		streamErr = c.heads.Err()
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case err, ok := <-streamErr:
			if !ok {
				streamErr = nil
				continue
			}
			c.logger.Error("Head stream failed", "err", err)
			select {
			case c.errCh <- err:
			default:
			}
		}
	}
}

// Options Constructors for the Client

// WithBatchSize bounds how many calls travel in one JSON-RPC batch.
func WithBatchSize(n int) Option {
	return newOption(func(c *Client) {
		c.batchSize = n
	})
}

// WithHeadStream subscribes to new heads over the websocket endpoint url.
func WithHeadStream(url string) Option {
	return newOption(func(c *Client) {
		c.headsURL = url
	})
}

// WithHeadBuffer sets the per-listener capacity of the head stream.
func WithHeadBuffer(n uint) Option {
	return newOption(func(c *Client) {
		c.headBuffer = n
	})
}
