package codec

import (
	"encoding/binary"
	"math"

	"github.com/jetfile/jetdb/jeterrors"
)

// Encode converts a host value into its on-disk representation for t.
// column identifies the value's owner for error reporting only.
func Encode(column string, t Type, value any, opts Options) ([]byte, error) {
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
		return []byte{byte(v)}, nil
	case Short:
		v, err := asInt64(column, t, value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
		return buf, nil
	case Int:
		v, err := asInt64(column, t, value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
		return buf, nil
	case Long:
		v, err := asInt64(column, t, value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return buf, nil
	case Float:
		v, err := asFloat64(column, t, value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		return buf, nil
	case Double:
		v, err := asFloat64(column, t, value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		return buf, nil
	case Money:
		return encodeMoney(column, value)
	case Numeric:
		return encodeNumeric(column, value, opts)
	case TextFixed, TextVariable:
		s, ok := value.(string)
		if !ok {
			return nil, invalid(column, t, "expected string")
		}
		return encodeText(s, opts.Compress)
	case GUID:
		return encodeGUID(column, value)
	case ShortDateTime:
		return encodeShortDateTime(column, value)
	case ExtendedDateTime:
		return encodeExtendedDateTime(column, value)
	case ComplexForeignKey:
		v, err := asInt64(column, t, value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
		return buf, nil
	case Memo, OLE:
		return nil, invalid(column, t, "overflow types are encoded via the overflow chain writer, not Encode")
	default:
		return nil, &jeterrors.UnknownEncodingError{Column: column, Reason: "unrecognized column type"}
	}
}

// Decode converts an on-disk representation back to a host value for t.
func Decode(column string, t Type, data []byte) (any, error) {
	switch t {
	case Boolean:
		if len(data) < 1 {
			return nil, invalid(column, t, "truncated")
		}
		return data[0] != 0, nil
	case Byte:
		if len(data) < 1 {
			return nil, invalid(column, t, "truncated")
		}
		return int8(data[0]), nil
	case Short:
		if len(data) < 2 {
			return nil, invalid(column, t, "truncated")
		}
		return int16(binary.LittleEndian.Uint16(data)), nil
	case Int:
		if len(data) < 4 {
			return nil, invalid(column, t, "truncated")
		}
		return int32(binary.LittleEndian.Uint32(data)), nil
	case Long:
		if len(data) < 8 {
			return nil, invalid(column, t, "truncated")
		}
		return int64(binary.LittleEndian.Uint64(data)), nil
	case Float:
		if len(data) < 4 {
			return nil, invalid(column, t, "truncated")
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
	case Double:
		if len(data) < 8 {
			return nil, invalid(column, t, "truncated")
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case Money:
		return decodeMoney(column, data)
	case Numeric:
		return decodeNumeric(column, data)
	case TextFixed, TextVariable:
		return decodeText(column, data)
	case GUID:
		return decodeGUID(column, data)
	case ShortDateTime:
		return decodeShortDateTime(column, data)
	case ExtendedDateTime:
		return decodeExtendedDateTime(column, data)
	case ComplexForeignKey:
		if len(data) < 4 {
			return nil, invalid(column, t, "truncated")
		}
		return int32(binary.LittleEndian.Uint32(data)), nil
	default:
		return nil, &jeterrors.UnknownEncodingError{Column: column, Reason: "unrecognized column type"}
	}
}

func invalid(column string, t Type, reason string) error {
	return &jeterrors.InvalidValueError{Column: column, TypeName: t.String(), Reason: reason}
}

func asInt64(column string, t Type, value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, invalid(column, t, "expected an integer")
	}
}

func asFloat64(column string, t Type, value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, invalid(column, t, "expected a float")
	}
}
