package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBigIntFromString is a helper function to create a big.Int from a string,
// which is necessary for numbers larger than a standard int64.
func newBigIntFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

func TestQuote(t *testing.T) {
	testCases := []struct {
		name           string
		amountA        *big.Int
		reserveA       *big.Int
		reserveB       *big.Int
		expectedAmount *big.Int
		expectedErr    error
	}{
		{
			name:           "1 USDC against a 100 USDC / 50 WETH pair",
			amountA:        big.NewInt(1_000_000),
			reserveA:       big.NewInt(100_000_000),
			reserveB:       newBigIntFromString("50000000000000000000"),
			expectedAmount: newBigIntFromString("500000000000000000"),
		},
		{
			name:           "result truncates toward zero",
			amountA:        big.NewInt(1),
			reserveA:       big.NewInt(3),
			reserveB:       big.NewInt(2),
			expectedAmount: big.NewInt(0),
		},
		{
			name:        "zero amount",
			amountA:     big.NewInt(0),
			reserveA:    big.NewInt(1),
			reserveB:    big.NewInt(1),
			expectedErr: ErrInsufficientAmount,
		},
		{
			name:        "empty pair",
			amountA:     big.NewInt(1),
			reserveA:    big.NewInt(0),
			reserveB:    big.NewInt(1),
			expectedErr: ErrInsufficientLiquidity,
		},
		{
			name:        "negative amount",
			amountA:     big.NewInt(-1),
			reserveA:    big.NewInt(1),
			reserveB:    big.NewInt(1),
			expectedErr: ErrInvalidAmount,
		},
		{
			name:        "nil reserve",
			amountA:     big.NewInt(1),
			reserveA:    nil,
			reserveB:    big.NewInt(1),
			expectedErr: ErrNilAmount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Quote(tc.amountA, tc.reserveA, tc.reserveB)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tc.expectedAmount.Cmp(got), "expected %s, got %s", tc.expectedAmount, got)
		})
	}
}

func TestMintLiquidity(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	testCases := []struct {
		name           string
		amountA        *big.Int
		amountB        *big.Int
		reserveA       *big.Int
		reserveB       *big.Int
		totalSupply    *big.Int
		expectedAmount *big.Int
		expectedErr    error
	}{
		{
			name:           "first supplier mints sqrt(a*b) minus minimum liquidity",
			amountA:        newBigIntFromString("1000000000000000000"),
			amountB:        newBigIntFromString("4000000000000000000"),
			totalSupply:    big.NewInt(0),
			expectedAmount: newBigIntFromString("1999999999999999000"),
		},
		{
			name:        "first supplier at the minimum mints nothing",
			amountA:     big.NewInt(1000),
			amountB:     big.NewInt(1000),
			totalSupply: big.NewInt(0),
			expectedErr: ErrInsufficientLiquidityMinted,
		},
		{
			name:           "later supplier gets the smaller proportional share",
			amountA:        big.NewInt(10),
			amountB:        big.NewInt(30),
			reserveA:       big.NewInt(100),
			reserveB:       big.NewInt(200),
			totalSupply:    big.NewInt(1000),
			expectedAmount: big.NewInt(100),
		},
		{
			name:           "later supplier at the pool ratio mints equally on both sides",
			amountA:        big.NewInt(10),
			amountB:        big.NewInt(20),
			reserveA:       big.NewInt(100),
			reserveB:       big.NewInt(200),
			totalSupply:    big.NewInt(50),
			expectedAmount: big.NewInt(5),
		},
		{
			name:           "later supplier share is symmetric in the limiting side",
			amountA:        big.NewInt(50),
			amountB:        big.NewInt(20),
			reserveA:       big.NewInt(100),
			reserveB:       big.NewInt(200),
			totalSupply:    big.NewInt(1000),
			expectedAmount: big.NewInt(100),
		},
		{
			name:        "supply without reserves",
			amountA:     big.NewInt(1),
			amountB:     big.NewInt(1),
			reserveA:    big.NewInt(0),
			reserveB:    big.NewInt(0),
			totalSupply: big.NewInt(1),
			expectedErr: ErrInsufficientLiquidity,
		},
		{
			name:        "product overflows",
			amountA:     maxUint256,
			amountB:     big.NewInt(2),
			totalSupply: big.NewInt(0),
			expectedErr: ErrOverflow,
		},
		{
			name:        "value wider than 256 bits",
			amountA:     new(big.Int).Lsh(big.NewInt(1), 256),
			amountB:     big.NewInt(1),
			totalSupply: big.NewInt(0),
			expectedErr: ErrOverflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MintLiquidity(tc.amountA, tc.amountB, tc.reserveA, tc.reserveB, tc.totalSupply)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tc.expectedAmount.Cmp(got), "expected %s, got %s", tc.expectedAmount, got)
		})
	}
}

func TestBurnAmounts(t *testing.T) {
	amountA, amountB, err := BurnAmounts(big.NewInt(100), big.NewInt(1000), big.NewInt(2000), big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(100), amountA.Int64())
	assert.Equal(t, int64(200), amountB.Int64())

	_, _, err = BurnAmounts(big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(0))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestCalculatorPoolReuseDoesNotLeakState(t *testing.T) {
	first, err := MintLiquidity(big.NewInt(10), big.NewInt(30), big.NewInt(100), big.NewInt(200), big.NewInt(1000))
	require.NoError(t, err)
	second, err := MintLiquidity(big.NewInt(10), big.NewInt(30), big.NewInt(100), big.NewInt(200), big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, 0, first.Cmp(second))
}
