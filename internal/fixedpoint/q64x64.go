// Package fixedpoint implements the Q64.64 fixed-point arithmetic the risk
// core uses for scale factors and ratios (spec §4.1, L0).
package fixedpoint

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Q64x64 is a 128-bit unsigned fixed-point number: bits [0,64) are the
// fractional part, bits [64,128) are the integer part. 1.0 is represented
// as ONE (1<<64). Values used by this package always live in [0, 1].
type Q64x64 struct {
	bits uint128
}

// ONE represents 1.0.
var ONE = Q64x64{bits: uint128{lo: 0, hi: 1}}

// Zero represents 0.0.
var Zero = Q64x64{}

// Max is the largest representable value.
var Max = Q64x64{bits: maxUint128}

// Bits exposes the raw u128 representation split into (hi, lo) 64-bit
// limbs, where the value equals hi*2^64 + lo. Used by callers that need to
// compare or persist the raw representation.
func (q Q64x64) Bits() (hi, lo uint64) {
	return q.bits.hi, q.bits.lo
}

// FromBits reconstructs a Q64x64 from the limb pair returned by Bits.
func FromBits(hi, lo uint64) Q64x64 {
	return Q64x64{bits: uint128{hi: hi, lo: lo}}
}

// FromInt returns x.0 as a Q64.64 value.
func FromInt(x uint64) Q64x64 {
	return Q64x64{bits: uint128{hi: x, lo: 0}}
}

// Equal reports whether q and other represent the same value.
func (q Q64x64) Equal(other Q64x64) bool {
	return q.bits == other.bits
}

// Less reports whether q < other.
func (q Q64x64) Less(other Q64x64) bool {
	return q.bits.less(other.bits)
}

// LessEqual reports whether q <= other.
func (q Q64x64) LessEqual(other Q64x64) bool {
	return q.bits == other.bits || q.bits.less(other.bits)
}

// IsZero reports whether q is exactly 0.
func (q Q64x64) IsZero() bool {
	return q.bits.hi == 0 && q.bits.lo == 0
}

// GobEncode implements gob.GobEncoder. Q64x64's limbs are unexported, so
// without this the gob codec would silently encode it as zero.
func (q Q64x64) GobEncode() ([]byte, error) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], q.bits.hi)
	binary.BigEndian.PutUint64(buf[8:], q.bits.lo)
	return buf, nil
}

// GobDecode implements gob.GobDecoder.
func (q *Q64x64) GobDecode(data []byte) error {
	if len(data) != 16 {
		return fmt.Errorf("fixedpoint: invalid Q64x64 gob encoding length %d", len(data))
	}
	q.bits.hi = binary.BigEndian.Uint64(data[:8])
	q.bits.lo = binary.BigEndian.Uint64(data[8:])
	return nil
}

// maxI128Magnitude is the largest magnitude a signed 128-bit value can
// hold: 2^127 - 1.
var maxI128Magnitude = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

// bigToUint128 truncates the magnitude of a non-negative big.Int to 128
// bits, saturating at maxUint128 if it doesn't fit.
func bigToUint128(b *big.Int) uint128 {
	if b.Sign() <= 0 {
		return uint128{}
	}
	mask := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(b, mask)
	hiBig := new(big.Int).Rsh(b, 64)
	if hiBig.BitLen() > 64 {
		return maxUint128
	}
	return uint128{hi: hiBig.Uint64(), lo: lo.Uint64()}
}

func uint128ToBig(u uint128) *big.Int {
	out := new(big.Int).SetUint64(u.hi)
	out.Lsh(out, 64)
	out.Or(out, new(big.Int).SetUint64(u.lo))
	return out
}

// Ratio returns min(1.0, numer/denom) in Q64.64, or Zero if numer<=0 or
// denom<=0. Mirrors model_safety::crisis::amount::Q64x64::ratio.
func Ratio(numer, denom *big.Int) Q64x64 {
	if numer.Sign() <= 0 || denom.Sign() <= 0 {
		return Zero
	}
	n := bigToUint128(numer)
	d := bigToUint128(denom)
	result := wideDiv(n, d)
	if !result.less(ONE.bits) {
		return ONE
	}
	return Q64x64{bits: result}
}

// OneMinus returns 1.0 - q, saturating at 0 if q > 1.0.
func (q Q64x64) OneMinus() Q64x64 {
	return Q64x64{bits: ONE.bits.saturatingSub(q.bits)}
}

// MulScale returns q * other, computed as (q*other) >> 64.
func (q Q64x64) MulScale(other Q64x64) Q64x64 {
	return Q64x64{bits: wideMulShr64(q.bits, other.bits)}
}

// MulI128 multiplies q by a signed 128-bit integer, rounding toward zero
// and saturating to the max representable magnitude (2^127-1) on overflow.
// Never panics.
func (q Q64x64) MulI128(x *big.Int) *big.Int {
	if x.Sign() == 0 || q.IsZero() {
		return big.NewInt(0)
	}
	sign := x.Sign()
	absX := new(big.Int).Abs(x)
	n := bigToUint128(absX)
	result := wideMulShr64(n, q.bits)
	resBig := uint128ToBig(result)
	if resBig.Cmp(maxI128Magnitude) > 0 {
		resBig.Set(maxI128Magnitude)
	}
	if sign < 0 {
		resBig.Neg(resBig)
	}
	return resBig
}
