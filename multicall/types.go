package multicall

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrCallFailed is returned when decoding a result whose call reverted.
	ErrCallFailed = errors.New("call failed")
	// ErrUnexpectedOutput is returned when a result does not have the requested shape.
	ErrUnexpectedOutput = errors.New("unexpected call output")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Call is one read-only contract call inside a batch. Reference is opaque to
// the client and copied onto the matching Result.
type Call struct {
	Reference string
	Target    common.Address
	ABI       *abi.ABI
	Method    string
	Params    []any
}

// Pack encodes the call's calldata.
func (c Call) Pack() ([]byte, error) {
	if c.ABI == nil {
		return nil, fmt.Errorf("call %q has no abi", c.Reference)
	}
	data, err := c.ABI.Pack(c.Method, c.Params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s for %q: %w", c.Method, c.Reference, err)
	}
	return data, nil
}

// Result is the outcome of one Call. A reverted call is reported with
// Success false and never fails the batch.
type Result struct {
	Reference string
	Success   bool
	Data      []byte
	Err       error

	abi    *abi.ABI
	method string
}

// NewResult binds raw return data to the call that produced it.
func NewResult(call Call, data []byte, callErr error) Result {
	return Result{
		Reference: call.Reference,
		Success:   callErr == nil,
		Data:      data,
		Err:       callErr,
		abi:       call.ABI,
		method:    call.Method,
	}
}

// Unpack decodes every output value.
func (r Result) Unpack() ([]any, error) {
	if !r.Success {
		return nil, fmt.Errorf("%w: %s: %v", ErrCallFailed, r.Reference, r.Err)
	}
	if r.abi == nil {
		return nil, fmt.Errorf("%w: %s has no abi", ErrUnexpectedOutput, r.Reference)
	}
	return r.abi.Unpack(r.method, r.Data)
}

// Decode unpacks a multi-value output into a struct whose fields follow the
// ABI output names.
func (r Result) Decode(out any) error {
	if !r.Success {
		return fmt.Errorf("%w: %s: %v", ErrCallFailed, r.Reference, r.Err)
	}
	if r.abi == nil {
		return fmt.Errorf("%w: %s has no abi", ErrUnexpectedOutput, r.Reference)
	}
	return r.abi.UnpackIntoInterface(out, r.method, r.Data)
}

func single[T any](r Result) (T, error) {
	var zero T
	values, err := r.Unpack()
	if err != nil {
		return zero, err
	}
	if len(values) != 1 {
		return zero, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedOutput, r.Reference, len(values))
	}
	v, ok := values[0].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, r.Reference, values[0])
	}
	return v, nil
}

func (r Result) BigInt() (*big.Int, error) {
	return single[*big.Int](r)
}

func (r Result) BigInts() ([]*big.Int, error) {
	return single[[]*big.Int](r)
}

func (r Result) Address() (common.Address, error) {
	return single[common.Address](r)
}

func (r Result) Uint8() (uint8, error) {
	return single[uint8](r)
}

func (r Result) Text() (string, error) {
	return single[string](r)
}

// Index maps results by reference. References are expected to be unique
// within a batch.
func Index(results []Result) map[string]Result {
	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.Reference] = r
	}
	return out
}
