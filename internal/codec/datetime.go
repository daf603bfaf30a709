package codec

import (
	"encoding/binary"
	"math"
	"time"
)

// shortDateTimeEpoch is the day-zero reference for the classic
// short-date-time encoding: an integer day count plus a fractional day,
// both packed into one double (spec.md §4.3).
var shortDateTimeEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func encodeShortDateTime(column string, value any) ([]byte, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, invalid(column, ShortDateTime, "expected time.Time")
	}
	days := t.UTC().Sub(shortDateTimeEpoch).Hours() / 24
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(days))
	return buf, nil
}

func decodeShortDateTime(column string, data []byte) (any, error) {
	if len(data) < 8 {
		return nil, invalid(column, ShortDateTime, "truncated")
	}
	days := math.Float64frombits(binary.LittleEndian.Uint64(data))
	offset := time.Duration(days * float64(24*time.Hour))
	return shortDateTimeEpoch.Add(offset), nil
}

// extendedDateTimeEpoch is the Unix epoch; extended-date-time trades the
// short encoding's day/fraction-of-day packing for flat nanosecond
// resolution, used where sub-millisecond precision matters.
var extendedDateTimeEpoch = time.Unix(0, 0).UTC()

func encodeExtendedDateTime(column string, value any) ([]byte, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, invalid(column, ExtendedDateTime, "expected time.Time")
	}
	nanos := t.UTC().Sub(extendedDateTimeEpoch).Nanoseconds()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(nanos))
	return buf, nil
}

func decodeExtendedDateTime(column string, data []byte) (any, error) {
	if len(data) < 8 {
		return nil, invalid(column, ExtendedDateTime, "truncated")
	}
	nanos := int64(binary.LittleEndian.Uint64(data))
	return extendedDateTimeEpoch.Add(time.Duration(nanos)), nil
}
