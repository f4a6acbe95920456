// Package multicalltest provides an in-memory multicall backend for tests.
package multicalltest

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/defistate/defistate-router-go/multicall"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// ErrNoResponse is the call error for calls the fake was not primed with.
var ErrNoResponse = errors.New("execution reverted")

type response struct {
	data []byte
	err  error
}

// Fake answers calls from canned ABI-encoded responses keyed by target and
// calldata. Unknown calls revert.
type Fake struct {
	t testing.TB

	mu        sync.Mutex
	responses map[string]response
	balances  map[common.Address]*big.Int
	batches   [][]multicall.Call
	err       error
}

func New(t testing.TB) *Fake {
	return &Fake{
		t:         t,
		responses: make(map[string]response),
		balances:  make(map[common.Address]*big.Int),
	}
}

func key(t testing.TB, target common.Address, a *abi.ABI, method string, params []any) string {
	data, err := a.Pack(method, params...)
	require.NoError(t, err)
	return target.Hex() + hex.EncodeToString(data)
}

// Respond primes a successful answer.
func (f *Fake) Respond(target common.Address, a *abi.ABI, method string, params []any, outputs ...any) {
	out, err := a.Methods[method].Outputs.Pack(outputs...)
	require.NoError(f.t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key(f.t, target, a, method, params)] = response{data: out}
}

// Revert primes a failing answer.
func (f *Fake) Revert(target common.Address, a *abi.ABI, method string, params []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key(f.t, target, a, method, params)] = response{err: ErrNoResponse}
}

// SetBalance primes a native-currency balance.
func (f *Fake) SetBalance(account common.Address, balance *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = balance
}

// FailWith makes every subsequent Call return err, or succeed again when err is nil.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Batches returns every batch received so far.
func (f *Fake) Batches() [][]multicall.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]multicall.Call, len(f.batches))
	copy(out, f.batches)
	return out
}

func (f *Fake) Call(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, calls)

	results := make([]multicall.Result, len(calls))
	for i, call := range calls {
		data, err := call.Pack()
		if err != nil {
			return nil, err
		}
		resp, ok := f.responses[call.Target.Hex()+hex.EncodeToString(data)]
		if !ok {
			resp = response{err: ErrNoResponse}
		}
		results[i] = multicall.NewResult(call, resp.data, resp.err)
	}
	return results, nil
}

func (f *Fake) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}
