package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

var (
	// MinimumLiquidity is burned from the first mint of every pair.
	MinimumLiquidity = uint256.NewInt(1000)

	// ErrInvalidAmount is returned when an amount or reserve is negative.
	ErrInvalidAmount = errors.New("amount must be non-negative")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrOverflow is returned when a value or intermediate product exceeds 256 bits.
	ErrOverflow = errors.New("uint256 overflow")
	// ErrInsufficientAmount is returned when a quote is requested for a zero amount.
	ErrInsufficientAmount = errors.New("insufficient amount")
	// ErrInsufficientLiquidity is returned when a pair has no reserves or supply to price against.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInsufficientLiquidityMinted is returned when a first deposit does not exceed the minimum liquidity.
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
)

// Calculator holds reusable uint256 values so the pair arithmetic matches
// the contract's integer semantics without allocating per call.
// Instances are NOT safe for concurrent use and are managed by calculatorPool.
type Calculator struct {
	amountA     uint256.Int
	amountB     uint256.Int
	reserveA    uint256.Int
	reserveB    uint256.Int
	totalSupply uint256.Int
	product     uint256.Int
	liquidityA  uint256.Int
	liquidityB  uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{}
	},
}

func load(dst *uint256.Int, v *big.Int, name string) error {
	if v == nil {
		return fmt.Errorf("%w: %s", ErrNilAmount, name)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is %s", ErrInvalidAmount, name, v)
	}
	if dst.SetFromBig(v) {
		return fmt.Errorf("%w: %s", ErrOverflow, name)
	}
	return nil
}

// Quote returns the amount of token B worth amountA at the pair's current
// ratio, as UniswapV2Library.quote does: amountA * reserveB / reserveA.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.quote(amountA, reserveA, reserveB)
}

// MintLiquidity returns the LP tokens a deposit of amountA and amountB
// mints. The first deposit mints sqrt(amountA*amountB) minus the minimum
// liquidity; later deposits mint the smaller of the two proportional shares.
func MintLiquidity(amountA, amountB, reserveA, reserveB, totalSupply *big.Int) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.mintLiquidity(amountA, amountB, reserveA, reserveB, totalSupply)
}

// BurnAmounts returns the token amounts redeemed by burning liquidity.
func BurnAmounts(liquidity, reserveA, reserveB, totalSupply *big.Int) (amountA, amountB *big.Int, err error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.burnAmounts(liquidity, reserveA, reserveB, totalSupply)
}

func (c *Calculator) quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if err := load(&c.amountA, amountA, "amountA"); err != nil {
		return nil, err
	}
	if err := load(&c.reserveA, reserveA, "reserveA"); err != nil {
		return nil, err
	}
	if err := load(&c.reserveB, reserveB, "reserveB"); err != nil {
		return nil, err
	}
	if c.amountA.IsZero() {
		return nil, ErrInsufficientAmount
	}
	if c.reserveA.IsZero() || c.reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	if _, overflow := c.product.MulOverflow(&c.amountA, &c.reserveB); overflow {
		return nil, fmt.Errorf("%w: amountA * reserveB", ErrOverflow)
	}
	return new(uint256.Int).Div(&c.product, &c.reserveA).ToBig(), nil
}

func (c *Calculator) mintLiquidity(amountA, amountB, reserveA, reserveB, totalSupply *big.Int) (*big.Int, error) {
	if err := load(&c.amountA, amountA, "amountA"); err != nil {
		return nil, err
	}
	if err := load(&c.amountB, amountB, "amountB"); err != nil {
		return nil, err
	}
	if err := load(&c.totalSupply, totalSupply, "totalSupply"); err != nil {
		return nil, err
	}

	if c.totalSupply.IsZero() {
		if _, overflow := c.product.MulOverflow(&c.amountA, &c.amountB); overflow {
			return nil, fmt.Errorf("%w: amountA * amountB", ErrOverflow)
		}
		c.product.Sqrt(&c.product)
		if !c.product.Gt(MinimumLiquidity) {
			return nil, fmt.Errorf("%w: sqrt(amountA*amountB) = %s", ErrInsufficientLiquidityMinted, c.product.Dec())
		}
		return new(uint256.Int).Sub(&c.product, MinimumLiquidity).ToBig(), nil
	}

	if err := load(&c.reserveA, reserveA, "reserveA"); err != nil {
		return nil, err
	}
	if err := load(&c.reserveB, reserveB, "reserveB"); err != nil {
		return nil, err
	}
	if c.reserveA.IsZero() || c.reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	if _, overflow := c.liquidityA.MulOverflow(&c.amountA, &c.totalSupply); overflow {
		return nil, fmt.Errorf("%w: amountA * totalSupply", ErrOverflow)
	}
	c.liquidityA.Div(&c.liquidityA, &c.reserveA)

	if _, overflow := c.liquidityB.MulOverflow(&c.amountB, &c.totalSupply); overflow {
		return nil, fmt.Errorf("%w: amountB * totalSupply", ErrOverflow)
	}
	c.liquidityB.Div(&c.liquidityB, &c.reserveB)

	if c.liquidityA.Lt(&c.liquidityB) {
		return c.liquidityA.ToBig(), nil
	}
	return c.liquidityB.ToBig(), nil
}

func (c *Calculator) burnAmounts(liquidity, reserveA, reserveB, totalSupply *big.Int) (*big.Int, *big.Int, error) {
	if err := load(&c.product, liquidity, "liquidity"); err != nil {
		return nil, nil, err
	}
	if err := load(&c.reserveA, reserveA, "reserveA"); err != nil {
		return nil, nil, err
	}
	if err := load(&c.reserveB, reserveB, "reserveB"); err != nil {
		return nil, nil, err
	}
	if err := load(&c.totalSupply, totalSupply, "totalSupply"); err != nil {
		return nil, nil, err
	}
	if c.totalSupply.IsZero() {
		return nil, nil, ErrInsufficientLiquidity
	}

	if _, overflow := c.amountA.MulOverflow(&c.product, &c.reserveA); overflow {
		return nil, nil, fmt.Errorf("%w: liquidity * reserveA", ErrOverflow)
	}
	if _, overflow := c.amountB.MulOverflow(&c.product, &c.reserveB); overflow {
		return nil, nil, fmt.Errorf("%w: liquidity * reserveB", ErrOverflow)
	}
	amountA := new(uint256.Int).Div(&c.amountA, &c.totalSupply).ToBig()
	amountB := new(uint256.Int).Div(&c.amountB, &c.totalSupply).ToBig()
	return amountA, amountB, nil
}
