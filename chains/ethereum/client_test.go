package ethereum

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-router-go/engine"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	router = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	holder = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

// --- Test Setup: Mock RPC Server ---

type MockEthService struct{}

func (s *MockEthService) ChainId() (*hexutil.Big, error) {
	return (*hexutil.Big)(big.NewInt(1)), nil
}

func (s *MockEthService) GasPrice() (*hexutil.Big, error) {
	return (*hexutil.Big)(big.NewInt(25_500_000_000)), nil
}

func (s *MockEthService) EstimateGas(args map[string]any) (hexutil.Uint64, error) {
	to, _ := args["to"].(string)
	if !strings.EqualFold(to, router.Hex()) {
		return 0, errors.New("execution reverted")
	}
	return 150_000, nil
}

func (s *MockEthService) GetBalance(account common.Address, block string) (*hexutil.Big, error) {
	if account == holder {
		return (*hexutil.Big)(big.NewInt(7)), nil
	}
	return (*hexutil.Big)(new(big.Int)), nil
}

func newMockNode(t *testing.T) string {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &MockEthService{}))
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return httpServer.URL
}

func TestDial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := Dial(ctx, newMockNode(t), slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry(), WithBatchSize(50))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), client.ChainID())
	assert.Nil(t, client.Heads(), "no head stream without a websocket endpoint")

	balance, err := client.Caller().BalanceAt(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance.Int64())

	gwei, err := client.Gas().GasPriceGwei(ctx)
	require.NoError(t, err)
	assert.Equal(t, "25.5", gwei.String())

	units, err := client.Gas().EstimateGas(ctx, engine.Transaction{To: router, From: holder, Data: []byte{0x01}})
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000), units)

	_, err = client.Gas().EstimateGas(ctx, engine.Transaction{To: holder, From: holder})
	assert.Error(t, err)

	cancel()
	done := make(chan struct{})
	go func() {
		client.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop after cancellation")
	}
	_, ok := <-client.Err()
	assert.False(t, ok)
}

func TestDial_UnreachableNode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, "http://127.0.0.1:1", slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	assert.Error(t, err)
}

// --- Gas ---

type fakeBackend struct {
	price *big.Int
	err   error
	msg   ethereum.CallMsg
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return b.price, b.err
}

func (b *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.msg = msg
	return 21_000, b.err
}

func TestGas(t *testing.T) {
	t.Run("should convert wei to gwei", func(t *testing.T) {
		gas := NewGas(&fakeBackend{price: big.NewInt(30_000_000_001)})
		gwei, err := gas.GasPriceGwei(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "30.000000001", gwei.String())
	})

	t.Run("should forward the transaction envelope", func(t *testing.T) {
		backend := &fakeBackend{}
		value := big.NewInt(5)
		_, err := NewGas(backend).EstimateGas(context.Background(), engine.Transaction{
			To:    router,
			From:  holder,
			Data:  []byte{0xde, 0xad},
			Value: (*hexutil.Big)(value),
		})
		require.NoError(t, err)
		require.NotNil(t, backend.msg.To)
		assert.Equal(t, router, *backend.msg.To)
		assert.Equal(t, holder, backend.msg.From)
		assert.Equal(t, []byte{0xde, 0xad}, backend.msg.Data)
		assert.Equal(t, int64(5), backend.msg.Value.Int64())

		backend.msg.Value.SetInt64(9)
		assert.Equal(t, int64(5), value.Int64(), "the caller's value is not shared")
	})

	t.Run("should wrap node errors", func(t *testing.T) {
		nodeErr := errors.New("node down")
		gas := NewGas(&fakeBackend{err: nodeErr})
		_, err := gas.GasPriceGwei(context.Background())
		assert.ErrorIs(t, err, nodeErr)
		_, err = gas.EstimateGas(context.Background(), engine.Transaction{To: router})
		assert.ErrorIs(t, err, nodeErr)
	})
}
