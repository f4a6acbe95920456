package contracts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Method names shared by callers so they are spelled once.
const (
	MethodApprove        = "approve"
	MethodAllowance      = "allowance"
	MethodBalanceOf      = "balanceOf"
	MethodDecimals       = "decimals"
	MethodSymbol         = "symbol"
	MethodName           = "name"
	MethodTotalSupply    = "totalSupply"
	MethodToken0         = "token0"
	MethodToken1         = "token1"
	MethodGetReserves    = "getReserves"
	MethodGetPair        = "getPair"
	MethodAllPairs       = "allPairs"
	MethodAllPairsLength = "allPairsLength"
	MethodGetAmountsOut  = "getAmountsOut"
	MethodGetAmountsIn   = "getAmountsIn"
	MethodQuote          = "quote"
	MethodGetPool        = "getPool"
	MethodQuoteExactIn   = "quoteExactInputSingle"
	MethodQuoteExactOut  = "quoteExactOutputSingle"
	MethodExactInSingle  = "exactInputSingle"
	MethodExactOutSingle = "exactOutputSingle"
	MethodMulticall      = "multicall"
	MethodUnwrapWETH9    = "unwrapWETH9"
	MethodRefundETH      = "refundETH"

	MethodSwapExactETHForTokens    = "swapExactETHForTokens"
	MethodSwapETHForExactTokens    = "swapETHForExactTokens"
	MethodSwapExactTokensForETH    = "swapExactTokensForETH"
	MethodSwapTokensForExactETH    = "swapTokensForExactETH"
	MethodSwapExactTokensForTokens = "swapExactTokensForTokens"
	MethodSwapTokensForExactTokens = "swapTokensForExactTokens"
	MethodAddLiquidity             = "addLiquidity"
	MethodAddLiquidityETH          = "addLiquidityETH"
	MethodRemoveLiquidity          = "removeLiquidity"
	MethodRemoveLiquidityETH       = "removeLiquidityETH"
)

const erc20Functions = `
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}`

const erc20ABI = `[` + erc20Functions + `]`

const v2PairABI = `[` + erc20Functions + `,
{"type":"function","name":"token0","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"token1","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]}
]`

const v2FactoryABI = `[
{"type":"function","name":"getPair","stateMutability":"view","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"outputs":[{"name":"pair","type":"address"}]},
{"type":"function","name":"allPairs","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"pair","type":"address"}]},
{"type":"function","name":"allPairsLength","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const v2RouterABI = `[
{"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"getAmountsIn","stateMutability":"view","inputs":[{"name":"amountOut","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"quote","stateMutability":"pure","inputs":[{"name":"amountA","type":"uint256"},{"name":"reserveA","type":"uint256"},{"name":"reserveB","type":"uint256"}],"outputs":[{"name":"amountB","type":"uint256"}]},
{"type":"function","name":"swapExactETHForTokens","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"swapETHForExactTokens","stateMutability":"payable","inputs":[{"name":"amountOut","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"swapExactTokensForETH","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"swapTokensForExactETH","stateMutability":"nonpayable","inputs":[{"name":"amountOut","type":"uint256"},{"name":"amountInMax","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"swapTokensForExactTokens","stateMutability":"nonpayable","inputs":[{"name":"amountOut","type":"uint256"},{"name":"amountInMax","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"addLiquidity","stateMutability":"nonpayable","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"amountADesired","type":"uint256"},{"name":"amountBDesired","type":"uint256"},{"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"},{"name":"liquidity","type":"uint256"}]},
{"type":"function","name":"addLiquidityETH","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"amountTokenDesired","type":"uint256"},{"name":"amountTokenMin","type":"uint256"},{"name":"amountETHMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountToken","type":"uint256"},{"name":"amountETH","type":"uint256"},{"name":"liquidity","type":"uint256"}]},
{"type":"function","name":"removeLiquidity","stateMutability":"nonpayable","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"liquidity","type":"uint256"},{"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"}]},
{"type":"function","name":"removeLiquidityETH","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"liquidity","type":"uint256"},{"name":"amountTokenMin","type":"uint256"},{"name":"amountETHMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountToken","type":"uint256"},{"name":"amountETH","type":"uint256"}]}
]`

const v3FactoryABI = `[
{"type":"function","name":"getPool","stateMutability":"view","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"outputs":[{"name":"pool","type":"address"}]}
]`

const v3QuoterABI = `[
{"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable","inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"amountIn","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"outputs":[{"name":"amountOut","type":"uint256"}]},
{"type":"function","name":"quoteExactOutputSingle","stateMutability":"nonpayable","inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"outputs":[{"name":"amountIn","type":"uint256"}]}
]`

const v3RouterABI = `[
{"type":"function","name":"exactInputSingle","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","internalType":"struct ISwapRouter.ExactInputSingleParams","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]},
{"type":"function","name":"exactOutputSingle","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","internalType":"struct ISwapRouter.ExactOutputSingleParams","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountOut","type":"uint256"},{"name":"amountInMaximum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountIn","type":"uint256"}]},
{"type":"function","name":"multicall","stateMutability":"payable","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]},
{"type":"function","name":"unwrapWETH9","stateMutability":"payable","inputs":[{"name":"amountMinimum","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[]},
{"type":"function","name":"refundETH","stateMutability":"payable","inputs":[],"outputs":[]}
]`

// ABIs holds every parsed contract interface the router talks to. The values
// are shared and must not be modified.
type ABIs struct {
	ERC20     abi.ABI
	V2Pair    abi.ABI
	V2Factory abi.ABI
	V2Router  abi.ABI
	V3Factory abi.ABI
	V3Quoter  abi.ABI
	V3Router  abi.ABI
}

var load = sync.OnceValues(func() (*ABIs, error) {
	sources := []struct {
		name string
		json string
		dst  func(*ABIs) *abi.ABI
	}{
		{"erc20", erc20ABI, func(a *ABIs) *abi.ABI { return &a.ERC20 }},
		{"v2 pair", v2PairABI, func(a *ABIs) *abi.ABI { return &a.V2Pair }},
		{"v2 factory", v2FactoryABI, func(a *ABIs) *abi.ABI { return &a.V2Factory }},
		{"v2 router", v2RouterABI, func(a *ABIs) *abi.ABI { return &a.V2Router }},
		{"v3 factory", v3FactoryABI, func(a *ABIs) *abi.ABI { return &a.V3Factory }},
		{"v3 quoter", v3QuoterABI, func(a *ABIs) *abi.ABI { return &a.V3Quoter }},
		{"v3 router", v3RouterABI, func(a *ABIs) *abi.ABI { return &a.V3Router }},
	}

	abis := &ABIs{}
	for _, src := range sources {
		parsed, err := abi.JSON(strings.NewReader(src.json))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s abi: %w", src.name, err)
		}
		*src.dst(abis) = parsed
	}
	return abis, nil
})

// Load parses the embedded ABIs once and returns the shared set.
func Load() (*ABIs, error) {
	return load()
}

// MustLoad is Load for package initialisation and tests.
func MustLoad() *ABIs {
	abis, err := Load()
	if err != nil {
		panic(err)
	}
	return abis
}
