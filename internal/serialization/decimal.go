package serialization

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// DecimalSize is the encoded width of a decimal: a 96-bit coefficient in
	// three little-endian words followed by a flags word.
	DecimalSize = 16

	// MaxDecimalScale is the largest number of fractional digits a decimal
	// can carry on the wire.
	MaxDecimalScale = 28

	decimalScaleShift = 16
	decimalSignBit    = uint32(1) << 31
	decimalFlagsMask  = ^(decimalSignBit | uint32(0xFF)<<decimalScaleShift)
)

var (
	ErrDecimalRange   = errors.New("decimal out of range")
	ErrDecimalEncoded = errors.New("invalid decimal encoding")
)

var (
	wordMask = new(big.Int).SetUint64(0xFFFFFFFF)
	ten      = big.NewInt(10)
)

// PutDecimal writes d as [lo][mid][hi][flags]. Values with more than
// MaxDecimalScale fractional digits are rounded half away from zero first.
func PutDecimal(b []byte, d decimal.Decimal) error {
	if -d.Exponent() > MaxDecimalScale {
		d = d.Round(MaxDecimalScale)
	}

	coef := d.Coefficient()
	exp := d.Exponent()
	if exp > 0 {
		coef.Mul(coef, new(big.Int).Exp(ten, big.NewInt(int64(exp)), nil))
		exp = 0
	}
	scale := uint32(-exp)

	var flags uint32
	if coef.Sign() < 0 {
		flags |= decimalSignBit
		coef.Neg(coef)
	}
	if coef.BitLen() > 96 {
		return fmt.Errorf("%w: %s needs more than 96 bits", ErrDecimalRange, d.String())
	}
	flags |= scale << decimalScaleShift

	lo := new(big.Int).And(coef, wordMask).Uint64()
	mid := new(big.Int).And(new(big.Int).Rsh(coef, 32), wordMask).Uint64()
	hi := new(big.Int).Rsh(coef, 64).Uint64()

	PutUint32(b[0:4], uint32(lo))
	PutUint32(b[4:8], uint32(mid))
	PutUint32(b[8:12], uint32(hi))
	PutUint32(b[12:16], flags)
	return nil
}

// GetDecimal reads the encoding written by PutDecimal.
func GetDecimal(b []byte) (decimal.Decimal, error) {
	lo := GetUint32(b[0:4])
	mid := GetUint32(b[4:8])
	hi := GetUint32(b[8:12])
	flags := GetUint32(b[12:16])

	if flags&decimalFlagsMask != 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: reserved flag bits set (0x%08x)", ErrDecimalEncoded, flags)
	}
	scale := (flags >> decimalScaleShift) & 0xFF
	if scale > MaxDecimalScale {
		return decimal.Decimal{}, fmt.Errorf("%w: scale %d exceeds %d", ErrDecimalEncoded, scale, MaxDecimalScale)
	}

	coef := new(big.Int).SetUint64(uint64(hi))
	coef.Lsh(coef, 32).Or(coef, new(big.Int).SetUint64(uint64(mid)))
	coef.Lsh(coef, 32).Or(coef, new(big.Int).SetUint64(uint64(lo)))
	if flags&decimalSignBit != 0 {
		coef.Neg(coef)
	}
	return decimal.NewFromBigInt(coef, -int32(scale)), nil
}
