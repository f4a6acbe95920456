package engine

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const DefaultDeadlineMinutes = 20

var DefaultSlippage = decimal.RequireFromString("0.005")

// CustomNetwork replaces the built-in network table for forks and private chains.
type CustomNetwork struct {
	Name           string
	NativeCurrency Token
	WrappedNative  Token
	BaseTokens     []Token
}

// CloneContracts overrides the canonical Uniswap deployment addresses.
type CloneContracts struct {
	V2 *V2Contracts
	V3 *V3Contracts
}

type V2Contracts struct {
	Router  common.Address
	Factory common.Address
}

type V3Contracts struct {
	Router  common.Address
	Factory common.Address
	Quoter  common.Address
}

// Settings is the immutable per-engine configuration.
type Settings struct {
	Slippage         decimal.Decimal
	DeadlineMinutes  int
	DisableMultihops bool
	Versions         []Version
	// GasAware enables gas-cost re-ranking of the best routes on mainnet.
	GasAware       bool
	CustomNetwork  *CustomNetwork
	CloneContracts *CloneContracts
}

// DefaultSettings returns 0.5% slippage, a 20 minute deadline and both versions.
func DefaultSettings() Settings {
	return Settings{
		Slippage:        DefaultSlippage,
		DeadlineMinutes: DefaultDeadlineMinutes,
		Versions:        []Version{V2, V3},
	}
}

// WithDefaults fills every zero field with its default.
func (s Settings) WithDefaults() Settings {
	out := s
	out.Versions = slices.Clone(s.Versions)
	if len(out.Versions) == 0 {
		out.Versions = []Version{V2, V3}
	}
	if out.DeadlineMinutes == 0 {
		out.DeadlineMinutes = DefaultDeadlineMinutes
	}
	if out.Slippage.IsZero() {
		out.Slippage = DefaultSlippage
	}
	return out
}

func (s Settings) HasVersion(v Version) bool {
	return slices.Contains(s.Versions, v)
}

// Validate checks that slippage lies in [0,1), the deadline is positive and
// every version is known.
func (s Settings) Validate() error {
	if s.Slippage.IsNegative() || s.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ConfigurationError(CodeInvalidSlippage, "slippage %s must be within [0, 1)", s.Slippage)
	}
	if s.DeadlineMinutes <= 0 {
		return ConfigurationError(CodeInvalidDeadline, "deadline minutes must be positive, got %d", s.DeadlineMinutes)
	}
	if len(s.Versions) == 0 {
		return ConfigurationError(CodeVersionNotSupported, "at least one version must be enabled")
	}
	for _, v := range s.Versions {
		if v != V2 && v != V3 {
			return ConfigurationError(CodeVersionNotSupported, "unknown version %q", v)
		}
	}
	if s.CustomNetwork != nil && s.CustomNetwork.WrappedNative.Address == (common.Address{}) {
		return ConfigurationError(CodeInvalidAddress, "custom network %q has no wrapped native token", s.CustomNetwork.Name)
	}
	return nil
}
