package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which heads are published.
	RpcNamespace             = "eth"
	NewHeadsSubscriptionName = "newHeads"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// HeadProcessor
// -----------------------------------------------------------------------------

// HeadProcessor decodes head notifications, drops stale or repeated heads
// and fans the rest out to every listener. It is decoupled from the
// networking layer.
type HeadProcessor struct {
	logger     Logger
	bufferSize uint

	mu        sync.Mutex
	lastHead  *engine.BlockSummary
	listeners []chan engine.BlockSummary
	closed    bool
}

// NewHeadProcessor creates a pure logic processor without networking.
func NewHeadProcessor(logger Logger, bufferSize uint) *HeadProcessor {
	return &HeadProcessor{
		logger:     logger,
		bufferSize: bufferSize,
	}
}

// Blocks returns a new channel that receives every accepted head. Each call
// registers an independent listener. A listener that falls behind misses
// heads rather than stalling the stream.
func (hp *HeadProcessor) Blocks() <-chan engine.BlockSummary {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	ch := make(chan engine.BlockSummary, hp.bufferSize)
	if hp.closed {
		close(ch)
		return ch
	}
	hp.listeners = append(hp.listeners, ch)
	return ch
}

// Last returns the most recent accepted head, if any.
func (hp *HeadProcessor) Last() (engine.BlockSummary, bool) {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	if hp.lastHead == nil {
		return engine.BlockSummary{}, false
	}
	return *hp.lastHead, true
}

// ProcessMessage accepts a raw newHeads notification and broadcasts it.
func (hp *HeadProcessor) ProcessMessage(rawData json.RawMessage) error {
	receivedAt := time.Now()
	var h header
	if err := json.Unmarshal(rawData, &h); err != nil {
		return fmt.Errorf("failed to unmarshal head: %w", err)
	}
	if h.Number == nil {
		return errors.New("head has no number")
	}

	head := engine.BlockSummary{
		Number:     h.Number.ToInt(),
		Hash:       h.Hash,
		Timestamp:  uint64(h.Timestamp),
		ReceivedAt: receivedAt.UnixNano(),
	}

	hp.mu.Lock()
	defer hp.mu.Unlock()
	if hp.closed {
		return nil
	}
	if hp.lastHead != nil && head.Number.Cmp(hp.lastHead.Number) <= 0 {
		hp.logger.Warn(
			"Received stale head; discarding.",
			"last_known_block", hp.lastHead.Number,
			"head_block", head.Number,
		)
		return nil
	}
	hp.lastHead = &head

	latency := receivedAt.Sub(time.Unix(int64(head.Timestamp), 0))
	hp.logger.Debug("Head Processed",
		"block", head.Number,
		"hash", head.Hash,
		"listeners", len(hp.listeners),
		"latency_ms", latency.Milliseconds(),
	)

	for _, ch := range hp.listeners {
		select {
		case ch <- head:
		default:
			hp.logger.Warn("Head listener is full; dropping head.", "block", head.Number)
		}
	}
	return nil
}

// close completes every listener. Later heads are ignored.
func (hp *HeadProcessor) close() {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	if hp.closed {
		return
	}
	hp.closed = true
	for _, ch := range hp.listeners {
		close(ch)
	}
	hp.listeners = nil
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the websocket connection and uses HeadProcessor for logic.
type Client struct {
	processor *HeadProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled. The connection is
// kept alive until ctx is done, reconnecting with exponential backoff.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewHeadProcessor(cfg.Logger, cfg.BufferSize),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Blocks delegates to the processor.
func (c *Client) Blocks() <-chan engine.BlockSummary {
	return c.processor.Blocks()
}

// Err returns a read-only channel that is closed once the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	defer c.processor.close()
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, NewHeadsSubscriptionName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for heads...")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing head", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				return errors.New("subscription closed")
			}
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether it slept fully.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
