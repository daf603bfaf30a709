package codec

import (
	"encoding/binary"
	"math"
	"math/big"
	"unicode/utf16"
)

// descendingFlip is XORed over an ascending key's bytes to produce the
// descending ordering (spec.md §4.4): byte-lexicographic comparison of the
// flipped bytes reverses the original ordering.
const descendingFlip = 0xFF

// keyTerminator separates consecutive variable-length columns within a
// composite key so a short column's bytes can never be mistaken for a
// longer neighboring column's prefix (spec.md §4.4). It is written twice,
// as one zero UTF-16 code unit, so it sorts below every text character;
// a descending column gets the flipped terminator.
const keyTerminator = 0x00

// EncodeIndexKeyColumn produces the order-preserving byte encoding of a
// single column value: ascending keys compare correctly under
// bytes.Compare, and descending keys are the bitwise complement of the
// ascending encoding.
func EncodeIndexKeyColumn(column string, t Type, value any, opts Options, ascending bool) ([]byte, error) {
	enc, err := encodeOrdered(column, t, value, opts)
	if err != nil {
		return nil, err
	}
	if !ascending {
		flip(enc)
	}
	return enc, nil
}

func flip(b []byte) {
	for i := range b {
		b[i] ^= descendingFlip
	}
}

func encodeOrdered(column string, t Type, value any, opts Options) ([]byte, error) {
	switch t {
	case Boolean:
		v, ok := value.(bool)
		if !ok {
			return nil, invalid(column, t, "expected bool")
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case Byte:
		v, err := asInt64(column, t, value)
		if err != nil {
			return nil, err
		}
		return orderedInt(v, 1), nil
	case Short:
		v, err := asInt64(column, t, value)
		if err != nil {
			return nil, err
		}
		return orderedInt(v, 2), nil
	case Int, ComplexForeignKey:
		v, err := asInt64(column, t, value)
		if err != nil {
			return nil, err
		}
		return orderedInt(v, 4), nil
	case Long:
		v, err := asInt64(column, t, value)
		if err != nil {
			return nil, err
		}
		return orderedInt(v, 8), nil
	case Float:
		v, err := asFloat64(column, t, value)
		if err != nil {
			return nil, err
		}
		return orderedFloat(float64(float32(v)), 4), nil
	case Double:
		v, err := asFloat64(column, t, value)
		if err != nil {
			return nil, err
		}
		return orderedFloat(v, 8), nil
	case Money:
		d, err := asDecimal(column, t, value)
		if err != nil {
			return nil, err
		}
		return orderedInt(d.Shift(moneyScale).Round(0).IntPart(), 8), nil
	case Numeric:
		d, err := asDecimal(column, t, value)
		if err != nil {
			return nil, err
		}
		return orderedMagnitude(d.Rescale(-int32(opts.Scale)).Coefficient(), 16), nil
	case TextFixed, TextVariable:
		s, ok := value.(string)
		if !ok {
			return nil, invalid(column, t, "expected string")
		}
		units := utf16.Encode([]rune(s))
		out := make([]byte, len(units)*2)
		for i, u := range units {
			binary.BigEndian.PutUint16(out[2*i:], u)
		}
		return out, nil
	case GUID:
		return encodeGUID(column, value)
	case ShortDateTime:
		return encodeOrderedTime(column, t, value)
	case ExtendedDateTime:
		return encodeOrderedTime(column, t, value)
	default:
		return nil, invalid(column, t, "type has no defined key ordering")
	}
}

func encodeOrderedTime(column string, t Type, value any) ([]byte, error) {
	var raw []byte
	var err error
	if t == ShortDateTime {
		raw, err = encodeShortDateTime(column, value)
	} else {
		raw, err = encodeExtendedDateTime(column, value)
	}
	if err != nil {
		return nil, err
	}
	if t == ShortDateTime {
		bits := binary.LittleEndian.Uint64(raw)
		return orderedFloatBits(bits, 8), nil
	}
	v := int64(binary.LittleEndian.Uint64(raw))
	return orderedInt(v, 8), nil
}

// orderedInt produces a big-endian, sign-bit-flipped encoding of a signed
// integer so two's-complement ordering becomes unsigned lexicographic
// ordering.
func orderedInt(v int64, width int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	out := buf[8-width:]
	out[0] ^= 0x80
	return append([]byte(nil), out...)
}

// orderedFloat applies the standard order-preserving transform for IEEE 754
// values: flip the sign bit for non-negatives, invert every bit for
// negatives.
func orderedFloat(v float64, width int) []byte {
	var bits uint64
	if width == 4 {
		bits = uint64(math.Float32bits(float32(v)))
		bits <<= 32
	} else {
		bits = math.Float64bits(v)
	}
	return orderedFloatBits(bits, width)
}

func orderedFloatBits(bits uint64, width int) []byte {
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return append([]byte(nil), buf[:width]...)
}

// orderedMagnitude encodes a signed big.Int coefficient into a fixed-width
// sign-and-magnitude key: negatives get a lower marker byte and an inverted
// magnitude so that a larger negative magnitude (a more negative number)
// sorts before a smaller one.
func orderedMagnitude(coeff *big.Int, width int) []byte {
	out := make([]byte, 1+width)
	mag := new(big.Int).Abs(coeff)
	magBytes := mag.Bytes()
	dst := out[1+width-len(magBytes):]
	copy(dst, magBytes)
	if coeff.Sign() < 0 {
		out[0] = 0
		for i := 1; i < len(out); i++ {
			out[i] ^= 0xFF
		}
	} else {
		out[0] = 1
	}
	return out
}

// IndexKeyColumn is one column's contribution to a composite index key.
type IndexKeyColumn struct {
	Name      string
	Type      Type
	Value     any
	Options   Options
	Ascending bool
}

// EncodeIndexKey assembles a composite key from its column values in
// index-column order, matching spec.md §4.4's requirement that comparing
// two encoded keys byte-for-byte reproduce the logical multi-column
// comparison.
func EncodeIndexKey(columns []IndexKeyColumn) ([]byte, error) {
	var out []byte
	for i, c := range columns {
		enc, err := EncodeIndexKeyColumn(c.Name, c.Type, c.Value, c.Options, c.Ascending)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
		_, fixed := c.Type.FixedWidth()
		if !fixed && i != len(columns)-1 {
			term := byte(keyTerminator)
			if !c.Ascending {
				term ^= descendingFlip
			}
			out = append(out, term, term)
		}
	}
	return out, nil
}
