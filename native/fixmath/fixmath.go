package fixmath

import (
	"errors"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	ErrDivisionByZero = errors.New("fixmath: division by zero")
	ErrOverflow       = errors.New("fixmath: quotient exceeds 256 bits")
	ErrInputTooLarge  = errors.New("fixmath: operand too large for shift")
)

// emaShift is the fixed binary exponent applied to yield samples before they
// are divided by the moving average. 64 fractional bits keep the factor
// precise for 18-decimal token amounts.
const emaShift = 64

// MulDiv computes floor(a*b/den) exactly, even when the product a*b does not
// fit in 256 bits. The full 512-bit product is assembled from 64-bit limbs
// with explicit carry propagation and then divided back down. Division is
// truncating throughout.
//
// MulDiv fails with ErrDivisionByZero when den is zero and with ErrOverflow
// when the true quotient does not fit in 256 bits, i.e. when the high half of
// the product is at least den.
func MulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	if den == nil || den.IsZero() {
		return nil, ErrDivisionByZero
	}
	if a == nil || b == nil || a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}

	hi, lo := mul512(a, b)

	if hi.IsZero() {
		return new(uint256.Int).Div(&lo, den), nil
	}
	if hi.Cmp(den) >= 0 {
		return nil, ErrOverflow
	}
	return divWide(&hi, &lo, den), nil
}

// mul512 returns the full 512-bit product of x and y split into its high and
// low 256-bit halves.
func mul512(x, y *uint256.Int) (hi, lo uint256.Int) {
	var p [8]uint64
	for j := 0; j < 4; j++ {
		carry := uint64(0)
		for i := 0; i < 4; i++ {
			carry, p[i+j] = mulStep(p[i+j], x[i], y[j], carry)
		}
		p[j+4] = carry
	}
	lo = uint256.Int{p[0], p[1], p[2], p[3]}
	hi = uint256.Int{p[4], p[5], p[6], p[7]}
	return hi, lo
}

// mulStep computes z + x*y + carry, returning the high and low 64-bit words
// of the result. The sum cannot overflow 128 bits.
func mulStep(z, x, y, carry uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(x, y)
	lo, c := bits.Add64(lo, carry, 0)
	hi, _ = bits.Add64(hi, 0, c)
	lo, c = bits.Add64(lo, z, 0)
	hi, _ = bits.Add64(hi, 0, c)
	return hi, lo
}

// divWide divides the 512-bit value hi*2^256+lo by den using restoring
// shift-subtract long division. The caller guarantees den != 0 and hi < den,
// so the quotient fits in 256 bits.
func divWide(hi, lo, den *uint256.Int) *uint256.Int {
	rem := new(uint256.Int).Set(hi)
	quo := new(uint256.Int)
	for i := 255; i >= 0; i-- {
		// The bit shifted off the top of the remainder. When it is set the
		// shifted remainder is >= 2^256 > den and the subtraction always
		// applies.
		top := rem[3] >> 63
		rem.Lsh(rem, 1)
		if lo[i/64]>>(uint(i)%64)&1 == 1 {
			rem[0] |= 1
		}
		if top == 1 || rem.Cmp(den) >= 0 {
			rem.Sub(rem, den)
			quo[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return quo
}

// EMAFactor derives the moving-average yield factor yield*2^64/ema with 64
// fractional bits of precision. The shift happens before the wide divide, so
// callers must pre-validate magnitude: a yield sample occupying any of the
// top 64 bits fails with ErrInputTooLarge rather than silently losing high
// bits.
func EMAFactor(yield, ema *uint256.Int) (*uint256.Int, error) {
	if ema == nil || ema.IsZero() {
		return nil, ErrDivisionByZero
	}
	if yield == nil || yield.IsZero() {
		return new(uint256.Int), nil
	}
	if !new(uint256.Int).Rsh(yield, 256-emaShift).IsZero() {
		return nil, ErrInputTooLarge
	}
	shifted := new(uint256.Int).Lsh(yield, emaShift)
	return MulDiv(shifted, uint256.NewInt(1), ema)
}
