package uniswapv2

import (
	"math/big"

	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/multicall"
	"github.com/ethereum/go-ethereum/common"
)

// GetPairCall looks up the pair for two tokens. The factory answers the zero
// address when no pair exists.
func GetPairCall(abis *contracts.ABIs, factory, tokenA, tokenB common.Address, reference string) multicall.Call {
	return multicall.Call{
		Reference: reference,
		Target:    factory,
		ABI:       &abis.V2Factory,
		Method:    contracts.MethodGetPair,
		Params:    []any{tokenA, tokenB},
	}
}

func AllPairsLengthCall(abis *contracts.ABIs, factory common.Address) multicall.Call {
	return multicall.Call{
		Reference: "allPairsLength",
		Target:    factory,
		ABI:       &abis.V2Factory,
		Method:    contracts.MethodAllPairsLength,
	}
}

func AllPairsCall(abis *contracts.ABIs, factory common.Address, index uint64) multicall.Call {
	return multicall.Call{
		Reference: "allPairs." + new(big.Int).SetUint64(index).String(),
		Target:    factory,
		ABI:       &abis.V2Factory,
		Method:    contracts.MethodAllPairs,
		Params:    []any{new(big.Int).SetUint64(index)},
	}
}

// AmountsCall prices a path through the router. For exact input amount is
// the input and the last element of the result the output; for exact
// output the first element is the required input.
func AmountsCall(abis *contracts.ABIs, router common.Address, amount *big.Int, path []common.Address, exactOutput bool, reference string) multicall.Call {
	method := contracts.MethodGetAmountsOut
	if exactOutput {
		method = contracts.MethodGetAmountsIn
	}
	return multicall.Call{
		Reference: reference,
		Target:    router,
		ABI:       &abis.V2Router,
		Method:    method,
		Params:    []any{amount, path},
	}
}
