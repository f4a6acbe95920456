package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const DefaultWatchInterval = 5 * time.Second

// TokenConfig describes a token of a custom network.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
}

type CustomNetworkConfig struct {
	Name           string        `yaml:"name"`
	NativeCurrency TokenConfig   `yaml:"native_currency"`
	WrappedNative  TokenConfig   `yaml:"wrapped_native"`
	BaseTokens     []TokenConfig `yaml:"base_tokens"`
}

type V2ContractsConfig struct {
	Router  string `yaml:"router"`
	Factory string `yaml:"factory"`
}

type V3ContractsConfig struct {
	Router  string `yaml:"router"`
	Factory string `yaml:"factory"`
	Quoter  string `yaml:"quoter"`
}

type CloneContractsConfig struct {
	V2 *V2ContractsConfig `yaml:"v2"`
	V3 *V3ContractsConfig `yaml:"v3"`
}

// ClientConfig is the YAML configuration of the router client.
type ClientConfig struct {
	RPCURL      string `yaml:"rpc_url"`
	WSURL       string `yaml:"ws_url"`
	ChainID     uint64 `yaml:"chain_id"`
	MetricsAddr string `yaml:"metrics_addr"`

	Wallet    string `yaml:"wallet"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Amount    string `yaml:"amount"`
	Direction string `yaml:"direction"`
	Portfolio bool   `yaml:"portfolio"`

	Slippage         string   `yaml:"slippage"`
	DeadlineMinutes  int      `yaml:"deadline_minutes"`
	DisableMultihops bool     `yaml:"disable_multihops"`
	Versions         []string `yaml:"versions"`

	GasAware        bool          `yaml:"gas_aware"`
	CoinGeckoURL    string        `yaml:"coingecko_url"`
	CoinGeckoAPIKey string        `yaml:"coingecko_api_key"`
	WatchInterval   time.Duration `yaml:"watch_interval"`

	CustomNetwork  *CustomNetworkConfig  `yaml:"custom_network"`
	CloneContracts *CloneContractsConfig `yaml:"clone_contracts"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates it.
func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) applyDefaults() {
	if c.Direction == "" {
		c.Direction = string(engine.Input)
	}
	if c.WatchInterval == 0 {
		c.WatchInterval = DefaultWatchInterval
	}
	if c.DeadlineMinutes == 0 {
		c.DeadlineMinutes = engine.DefaultDeadlineMinutes
	}
}

// validate checks if the configuration is valid.
func (c *ClientConfig) validate() error {
	if c.RPCURL == "" {
		return errors.New("config: rpc_url is required")
	}
	if c.ChainID == 0 {
		return errors.New("config: chain_id is required")
	}
	for field, addr := range map[string]string{"wallet": c.Wallet, "from": c.From, "to": c.To} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("config: %s must be a hex address, got %q", field, addr)
		}
	}
	if _, err := c.TradeAmount(); err != nil {
		return err
	}
	if c.Direction != string(engine.Input) && c.Direction != string(engine.Output) {
		return fmt.Errorf("config: direction must be %q or %q, got %q", engine.Input, engine.Output, c.Direction)
	}
	if c.WatchInterval < 0 {
		return errors.New("config: watch_interval must not be negative")
	}
	settings, err := c.Settings()
	if err != nil {
		return err
	}
	return settings.WithDefaults().Validate()
}

// TradeAmount is the amount to quote.
func (c *ClientConfig) TradeAmount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: amount %q is not a number: %w", c.Amount, err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("config: amount must be positive, got %s", amount)
	}
	return amount, nil
}

// Settings converts the configuration into engine settings. Unset values
// are left zero for engine.Settings.WithDefaults.
func (c *ClientConfig) Settings() (engine.Settings, error) {
	s := engine.Settings{
		DeadlineMinutes:  c.DeadlineMinutes,
		DisableMultihops: c.DisableMultihops,
		GasAware:         c.GasAware,
	}
	if c.Slippage != "" {
		slippage, err := decimal.NewFromString(c.Slippage)
		if err != nil {
			return engine.Settings{}, fmt.Errorf("config: slippage %q is not a number: %w", c.Slippage, err)
		}
		s.Slippage = slippage
	}
	for _, v := range c.Versions {
		s.Versions = append(s.Versions, engine.Version(v))
	}

	if n := c.CustomNetwork; n != nil {
		native, err := n.NativeCurrency.token(c.ChainID, true)
		if err != nil {
			return engine.Settings{}, err
		}
		wrapped, err := n.WrappedNative.token(c.ChainID, false)
		if err != nil {
			return engine.Settings{}, err
		}
		custom := &engine.CustomNetwork{Name: n.Name, NativeCurrency: native, WrappedNative: wrapped}
		for _, t := range n.BaseTokens {
			base, err := t.token(c.ChainID, false)
			if err != nil {
				return engine.Settings{}, err
			}
			custom.BaseTokens = append(custom.BaseTokens, base)
		}
		s.CustomNetwork = custom
	}

	if cc := c.CloneContracts; cc != nil {
		clone := &engine.CloneContracts{}
		if cc.V2 != nil {
			clone.V2 = &engine.V2Contracts{
				Router:  common.HexToAddress(cc.V2.Router),
				Factory: common.HexToAddress(cc.V2.Factory),
			}
		}
		if cc.V3 != nil {
			clone.V3 = &engine.V3Contracts{
				Router:  common.HexToAddress(cc.V3.Router),
				Factory: common.HexToAddress(cc.V3.Factory),
				Quoter:  common.HexToAddress(cc.V3.Quoter),
			}
		}
		s.CloneContracts = clone
	}
	return s, nil
}

// token converts a token entry. The native currency has no address.
func (t TokenConfig) token(chainID uint64, native bool) (engine.Token, error) {
	out := engine.Token{ChainID: chainID, Decimals: t.Decimals, Symbol: t.Symbol, Name: t.Name}
	if native {
		out.Address = engine.NativeAddress
		return out, nil
	}
	if !common.IsHexAddress(t.Address) {
		return engine.Token{}, fmt.Errorf("config: token %s has invalid address %q", t.Symbol, t.Address)
	}
	out.Address = common.HexToAddress(t.Address)
	return out, nil
}
