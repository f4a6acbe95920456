package uniswapv2

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/contracts"
	"github.com/defistate/defistate-router-go/multicall"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LiquidityProviderFee is the fee every v2 hop charges.
var LiquidityProviderFee = decimal.RequireFromString("0.003")

// Pair is an on-chain snapshot of a v2 pair as seen by one wallet.
type Pair struct {
	Address            common.Address `json:"address"`
	Token0             common.Address `json:"token0"`
	Token1             common.Address `json:"token1"`
	Reserve0           *big.Int       `json:"reserve0"`
	Reserve1           *big.Int       `json:"reserve1"`
	BlockTimestampLast uint32         `json:"blockTimestampLast"`
	TotalSupply        *big.Int       `json:"totalSupply"`
	Decimals           uint8          `json:"decimals"`
	LPBalance          *big.Int       `json:"lpBalance"`
}

// Reserves mirrors the getReserves return tuple.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// ReservesFor orders the reserves as (tokenA, other). Reversed reports that
// tokenA is the pair's token1.
func (p Pair) ReservesFor(tokenA common.Address) (reserveA, reserveB *big.Int, reversed bool) {
	if p.Token0 == tokenA {
		return p.Reserve0, p.Reserve1, false
	}
	return p.Reserve1, p.Reserve0, true
}

// HasLiquidity reports whether the pair has been minted into.
func (p Pair) HasLiquidity() bool {
	return p.TotalSupply != nil && p.TotalSupply.Sign() > 0 &&
		p.Reserve0 != nil && p.Reserve0.Sign() > 0 &&
		p.Reserve1 != nil && p.Reserve1.Sign() > 0
}

func ref(pair common.Address, field string) string {
	return pair.Hex() + "." + field
}

func refreshCalls(abis *contracts.ABIs, pair, owner common.Address) []multicall.Call {
	return []multicall.Call{
		{Reference: ref(pair, "reserves"), Target: pair, ABI: &abis.V2Pair, Method: contracts.MethodGetReserves},
		{Reference: ref(pair, "totalSupply"), Target: pair, ABI: &abis.V2Pair, Method: contracts.MethodTotalSupply},
		{Reference: ref(pair, "balance"), Target: pair, ABI: &abis.V2Pair, Method: contracts.MethodBalanceOf, Params: []any{owner}},
	}
}

// SnapshotCalls returns every read that makes up a Pair snapshot.
func SnapshotCalls(abis *contracts.ABIs, pair, owner common.Address) []multicall.Call {
	return append([]multicall.Call{
		{Reference: ref(pair, "token0"), Target: pair, ABI: &abis.V2Pair, Method: contracts.MethodToken0},
		{Reference: ref(pair, "token1"), Target: pair, ABI: &abis.V2Pair, Method: contracts.MethodToken1},
		{Reference: ref(pair, "decimals"), Target: pair, ABI: &abis.V2Pair, Method: contracts.MethodDecimals},
	}, refreshCalls(abis, pair, owner)...)
}

// RefreshCalls returns the reads whose values move between blocks.
func RefreshCalls(abis *contracts.ABIs, pair, owner common.Address) []multicall.Call {
	return refreshCalls(abis, pair, owner)
}

// DecodeSnapshot assembles a Pair from the results of SnapshotCalls.
func DecodeSnapshot(byRef map[string]multicall.Result, pair common.Address) (Pair, error) {
	token0, err := byRef[ref(pair, "token0")].Address()
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s token0: %w", pair, err)
	}
	token1, err := byRef[ref(pair, "token1")].Address()
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s token1: %w", pair, err)
	}
	decimals, err := byRef[ref(pair, "decimals")].Uint8()
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s decimals: %w", pair, err)
	}
	return DecodeRefresh(byRef, Pair{Address: pair, Token0: token0, Token1: token1, Decimals: decimals})
}

// DecodeRefresh returns prev with the values read by RefreshCalls.
func DecodeRefresh(byRef map[string]multicall.Result, prev Pair) (Pair, error) {
	var reserves Reserves
	if err := byRef[ref(prev.Address, "reserves")].Decode(&reserves); err != nil {
		return Pair{}, fmt.Errorf("pair %s reserves: %w", prev.Address, err)
	}
	totalSupply, err := byRef[ref(prev.Address, "totalSupply")].BigInt()
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s totalSupply: %w", prev.Address, err)
	}
	balance, err := byRef[ref(prev.Address, "balance")].BigInt()
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s balance: %w", prev.Address, err)
	}
	next := prev
	next.Reserve0 = reserves.Reserve0
	next.Reserve1 = reserves.Reserve1
	next.BlockTimestampLast = reserves.BlockTimestampLast
	next.TotalSupply = totalSupply
	next.LPBalance = balance
	return next, nil
}
