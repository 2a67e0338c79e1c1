package amm

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// FeeDenominator is the basis-point scale of FeeBps.
	FeeDenominator = 10_000
	// DefaultFeeBps is 0.3%.
	DefaultFeeBps = 30
)

// MaxReserve bounds each reserve to 112 bits so reserve products stay far
// inside 256 bits.
var MaxReserve = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))

// Quote returns the amount of the other asset equivalent to amountA at the
// given reserve ratio: amountA * reserveB / reserveA.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return mulDiv(amountA, reserveB, reserveA)
}

// AmountInAfterFee strips the swap fee from amountIn, rounding down.
func AmountInAfterFee(amountIn *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	return mulDiv(amountIn, uint256.NewInt(FeeDenominator-feeBps), uint256.NewInt(FeeDenominator))
}

// GetAmountOut prices a swap of amountIn against the reserves:
//
//	afterFee  = floor(amountIn * (10000 - feeBps) / 10000)
//	amountOut = floor(reserveOut * afterFee / (reserveIn + afterFee))
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	out, _, err := amountOut(amountIn, reserveIn, reserveOut, feeBps)
	return out, err
}

func amountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (out, afterFee *uint256.Int, err error) {
	if amountIn.IsZero() {
		return nil, nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, nil, ErrInsufficientLiquidity
	}
	afterFee, err = AmountInAfterFee(amountIn, feeBps)
	if err != nil {
		return nil, nil, err
	}
	denominator, err := add(reserveIn, afterFee)
	if err != nil {
		return nil, nil, err
	}
	out, err = mulDiv(reserveOut, afterFee, denominator)
	if err != nil {
		return nil, nil, err
	}
	return out, afterFee, nil
}

// GetAmountIn returns the smallest input whose GetAmountOut is at least
// amountOut.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: want %s of reserve %s", ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}
	// smallest afterFee with reserveOut*afterFee >= amountOut*(reserveIn+afterFee)
	afterFee, err := mulDivUp(amountOut, reserveIn, new(uint256.Int).Sub(reserveOut, amountOut))
	if err != nil {
		return nil, err
	}
	// smallest amountIn with floor(amountIn*(10000-fee)/10000) >= afterFee
	return mulDivUp(afterFee, uint256.NewInt(FeeDenominator), uint256.NewInt(FeeDenominator-feeBps))
}

// floorSqrt returns floor(sqrt(x)).
func floorSqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// mulDiv computes floor(x*y/d), failing instead of wrapping.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrInsufficientLiquidity)
	}
	product, err := mul(x, y)
	if err != nil {
		return nil, err
	}
	return product.Div(product, d), nil
}

// mulDivUp computes ceil(x*y/d).
func mulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrInsufficientLiquidity)
	}
	product, err := mul(x, y)
	if err != nil {
		return nil, err
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(product, d, r)
	if !r.IsZero() {
		return add(q, uint256.NewInt(1))
	}
	return q, nil
}

// addReserve adds amount to a reserve and enforces MaxReserve.
func addReserve(reserve, amount *uint256.Int) (*uint256.Int, error) {
	z, err := add(reserve, amount)
	if err != nil {
		return nil, err
	}
	if z.Gt(MaxReserve) {
		return nil, fmt.Errorf("%w: reserve %s exceeds 112 bits", ErrOverflow, z.Dec())
	}
	return z, nil
}

func minAmount(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}
