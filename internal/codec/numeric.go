package codec

import (
	"encoding/binary"
	"math/big"

	"github.com/shopspring/decimal"
)

// moneyScale is the fixed number of decimal places a Money column carries,
// stored as a scaled int64 rather than a floating type to avoid rounding
// drift (spec.md §4.3).
const moneyScale = 4

func encodeMoney(column string, value any) ([]byte, error) {
	d, err := asDecimal(column, Money, value)
	if err != nil {
		return nil, err
	}
	scaled := d.Shift(moneyScale).Round(0)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(scaled.IntPart()))
	return buf, nil
}

func decodeMoney(column string, data []byte) (any, error) {
	if len(data) < 8 {
		return nil, invalid(column, Money, "truncated")
	}
	raw := int64(binary.LittleEndian.Uint64(data))
	return decimal.New(raw, -moneyScale), nil
}

// encodeNumeric packs an arbitrary-precision decimal into a scale byte, a
// sign byte, and a 16-byte big-endian two's-complement-free magnitude
// (spec.md §4.3's precision/scale numeric type).
func encodeNumeric(column string, value any, opts Options) ([]byte, error) {
	d, err := asDecimal(column, Numeric, value)
	if err != nil {
		return nil, err
	}
	rescaled := d.Rescale(-int32(opts.Scale))
	coeff := rescaled.Coefficient()

	buf := make([]byte, 18)
	buf[0] = opts.Scale
	if coeff.Sign() < 0 {
		buf[1] = 1
	}
	mag := new(big.Int).Abs(coeff)
	magBytes := mag.Bytes()
	if len(magBytes) > 16 {
		return nil, invalid(column, Numeric, "coefficient exceeds 16-byte magnitude")
	}
	copy(buf[2+16-len(magBytes):], magBytes)
	return buf, nil
}

func decodeNumeric(column string, data []byte) (any, error) {
	if len(data) < 18 {
		return nil, invalid(column, Numeric, "truncated")
	}
	scale := data[0]
	negative := data[1] != 0
	mag := new(big.Int).SetBytes(data[2:18])
	if negative {
		mag.Neg(mag)
	}
	return decimal.NewFromBigInt(mag, -int32(scale)), nil
}

func asDecimal(column string, t Type, value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, invalid(column, t, "not a valid decimal string")
		}
		return d, nil
	default:
		return decimal.Decimal{}, invalid(column, t, "expected a decimal-compatible value")
	}
}
