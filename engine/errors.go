package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is the kind of every error caused by bad input or settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoRouteFound is the kind returned when no priced route exists.
	ErrNoRouteFound = errors.New("no route found")
	// ErrUnsupportedOperation is the kind returned when a version cannot serve a request.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// ErrorCode is a stable, machine-readable reason attached to an Error.
type ErrorCode string

const (
	CodeTradePathNotSupported ErrorCode = "TRADE_PATH_NOT_SUPPORTED"
	CodeChainIDNotSupported   ErrorCode = "CHAIN_ID_NOT_SUPPORTED"
	CodeInvalidAddress        ErrorCode = "INVALID_ADDRESS"
	CodeIdenticalTokens       ErrorCode = "IDENTICAL_TOKENS"
	CodeInvalidAmount         ErrorCode = "INVALID_AMOUNT"
	CodeInvalidSlippage       ErrorCode = "INVALID_SLIPPAGE"
	CodeInvalidDeadline       ErrorCode = "INVALID_DEADLINE"
	CodeNoRoutesFound         ErrorCode = "NO_ROUTES_FOUND"
	CodeVersionNotSupported   ErrorCode = "UNISWAP_VERSION_NOT_SUPPORTED"
	CodeMultihopNotSupported  ErrorCode = "MULTIHOP_NOT_SUPPORTED"
	CodeApproveNotAllowed     ErrorCode = "APPROVE_NOT_ALLOWED"
	CodeFirstSupplierAmount   ErrorCode = "FIRST_SUPPLIER_AMOUNT_REQUIRED"
)

// Error is a domain error. errors.Is matches it against its Kind.
type Error struct {
	Kind    error
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func ConfigurationError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Kind: ErrConfiguration, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NoRouteFoundError(format string, args ...any) *Error {
	return &Error{Kind: ErrNoRouteFound, Code: CodeNoRoutesFound, Message: fmt.Sprintf(format, args...)}
}

func UnsupportedOperationError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Kind: ErrUnsupportedOperation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
