package uniswapv3

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/contracts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeTierPercent(t *testing.T) {
	assert.Equal(t, "0.0005", FeeLow.Percent().String())
	assert.Equal(t, "0.003", FeeMedium.Percent().String())
	assert.Equal(t, "0.01", FeeHigh.Percent().String())
}

func TestCallsPack(t *testing.T) {
	abis := contracts.MustLoad()
	a := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	b := common.HexToAddress("0x00000000000000000000000000000000000000b1")

	_, err := GetPoolCall(abis, contracts.DefaultV3Factory, a, b, FeeMedium, "pool").Pack()
	require.NoError(t, err)

	_, err = QuoteCall(abis, contracts.DefaultV3Quoter, a, b, FeeLow, big.NewInt(1), false, "in").Pack()
	require.NoError(t, err)

	call := QuoteCall(abis, contracts.DefaultV3Quoter, a, b, FeeLow, big.NewInt(1), true, "out")
	assert.Equal(t, contracts.MethodQuoteExactOut, call.Method)
	_, err = call.Pack()
	require.NoError(t, err)
}

func TestSwapParamsPack(t *testing.T) {
	abis := contracts.MustLoad()
	params := ExactInputSingleParams{
		TokenIn:           common.HexToAddress("0x01"),
		TokenOut:          common.HexToAddress("0x02"),
		Fee:               FeeMedium.Big(),
		Recipient:         common.HexToAddress("0x03"),
		Deadline:          big.NewInt(100),
		AmountIn:          big.NewInt(5),
		AmountOutMinimum:  big.NewInt(4),
		SqrtPriceLimitX96: new(big.Int),
	}
	data, err := abis.V3Router.Pack(contracts.MethodExactInSingle, params)
	require.NoError(t, err)

	method, err := abis.V3Router.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, contracts.MethodExactInSingle, method.Name)

	_, err = abis.V3Router.Pack(contracts.MethodExactOutSingle, ExactOutputSingleParams{
		Fee: FeeHigh.Big(), Deadline: big.NewInt(1), AmountOut: big.NewInt(1), AmountInMaximum: big.NewInt(2), SqrtPriceLimitX96: new(big.Int),
	})
	require.NoError(t, err)
}
