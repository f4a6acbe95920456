package chains

import (
	"slices"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

const (
	Mainnet uint64 = 1
	Goerli  uint64 = 5
	Sepolia uint64 = 11155111
)

// Network is the routing context of one chain. Hubs are the intermediate
// tokens multi-hop routes may pass through.
type Network struct {
	ChainID       uint64
	Name          string
	Native        engine.Token
	WrappedNative engine.Token
	Hubs          []engine.Token
}

func ether(chainID uint64) engine.Token {
	return engine.Token{ChainID: chainID, Address: engine.NativeAddress, Decimals: 18, Symbol: "ETH", Name: "Ethers"}
}

func weth(chainID uint64, addr string) engine.Token {
	return engine.Token{ChainID: chainID, Address: common.HexToAddress(addr), Decimals: 18, Symbol: "WETH", Name: "Wrapped Ether"}
}

var mainnetWETH = weth(Mainnet, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

var networks = map[uint64]Network{
	Mainnet: {
		ChainID:       Mainnet,
		Name:          "mainnet",
		Native:        ether(Mainnet),
		WrappedNative: mainnetWETH,
		Hubs: []engine.Token{
			{ChainID: Mainnet, Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6, Symbol: "USDT", Name: "Tether USD"},
			{ChainID: Mainnet, Address: common.HexToAddress("0xc00e94Cb662C3520282E6f5717214004A7f26888"), Decimals: 18, Symbol: "COMP", Name: "Compound"},
			{ChainID: Mainnet, Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6, Symbol: "USDC", Name: "USD Coin"},
			{ChainID: Mainnet, Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Decimals: 18, Symbol: "DAI", Name: "Dai Stablecoin"},
			mainnetWETH,
			{ChainID: Mainnet, Address: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), Decimals: 8, Symbol: "WBTC", Name: "Wrapped BTC"},
		},
	},
	Goerli: {
		ChainID:       Goerli,
		Name:          "goerli",
		Native:        ether(Goerli),
		WrappedNative: weth(Goerli, "0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6"),
	},
	Sepolia: {
		ChainID:       Sepolia,
		Name:          "sepolia",
		Native:        ether(Sepolia),
		WrappedNative: weth(Sepolia, "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
	},
}

func init() {
	for id, n := range networks {
		if len(n.Hubs) == 0 {
			n.Hubs = []engine.Token{n.WrappedNative}
			networks[id] = n
		}
	}
}

// Lookup returns the network for chainID. A custom network takes precedence
// over the built-in table and may use any chain ID.
func Lookup(chainID uint64, custom *engine.CustomNetwork) (Network, error) {
	if custom != nil {
		native := custom.NativeCurrency
		native.ChainID = chainID
		native.Address = engine.NativeAddress
		if native.Decimals == 0 {
			native.Decimals = 18
		}
		wrapped := custom.WrappedNative
		wrapped.ChainID = chainID
		hubs := make([]engine.Token, 0, len(custom.BaseTokens)+1)
		for _, t := range custom.BaseTokens {
			t.ChainID = chainID
			hubs = append(hubs, t)
		}
		if !slices.ContainsFunc(hubs, func(t engine.Token) bool { return t.Address == wrapped.Address }) {
			hubs = append(hubs, wrapped)
		}
		return Network{ChainID: chainID, Name: custom.Name, Native: native, WrappedNative: wrapped, Hubs: hubs}, nil
	}

	n, ok := networks[chainID]
	if !ok {
		return Network{}, engine.ConfigurationError(engine.CodeChainIDNotSupported, "chain id %d is not supported", chainID)
	}
	n.Hubs = slices.Clone(n.Hubs)
	return n, nil
}

// OnChain maps the native pseudo-token to the wrapped native token.
func (n Network) OnChain(t engine.Token) engine.Token {
	if t.IsNative() {
		return n.WrappedNative
	}
	return t
}

// OnChainAddress maps the native pseudo-address to the wrapped native address.
func (n Network) OnChainAddress(addr common.Address) common.Address {
	if addr == engine.NativeAddress {
		return n.WrappedNative.Address
	}
	return addr
}

// ClassifyTradePath decides the trade path of a pair. Pairs that resolve to
// the same on-chain token cannot be traded.
func (n Network) ClassifyTradePath(from, to engine.Token) (engine.TradePath, error) {
	if n.OnChainAddress(from.Address) == n.OnChainAddress(to.Address) {
		return "", engine.ConfigurationError(engine.CodeIdenticalTokens, "%s and %s resolve to the same token", from.Symbol, to.Symbol)
	}
	switch {
	case from.IsNative():
		return engine.EthToErc20, nil
	case to.IsNative():
		return engine.Erc20ToEth, nil
	default:
		return engine.Erc20ToErc20, nil
	}
}
