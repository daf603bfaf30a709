package codec

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func roundTrip(t *testing.T, typ Type, value any, opts Options) any {
	t.Helper()
	enc, err := Encode("col", typ, value, opts)
	if err != nil {
		t.Fatalf("Encode(%v): %v", value, err)
	}
	dec, err := Decode("col", typ, enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return dec
}

func TestIntegerRoundTrip(t *testing.T) {
	if got := roundTrip(t, Long, int64(-12345), Options{}); got != int64(-12345) {
		t.Errorf("Long round trip = %v", got)
	}
	if got := roundTrip(t, Short, int16(-7), Options{}); got != int16(-7) {
		t.Errorf("Short round trip = %v", got)
	}
}

func TestMoneyRoundTrip(t *testing.T) {
	in := decimal.NewFromFloat(19.99)
	got := roundTrip(t, Money, in, Options{}).(decimal.Decimal)
	if !got.Equal(in) {
		t.Errorf("Money round trip = %v, want %v", got, in)
	}
}

func TestNumericRoundTrip(t *testing.T) {
	in, _ := decimal.NewFromString("-1234.5600")
	got := roundTrip(t, Numeric, in, Options{Precision: 10, Scale: 4}).(decimal.Decimal)
	if !got.Equal(in) {
		t.Errorf("Numeric round trip = %v, want %v", got, in)
	}
}

func TestTextRoundTripCompressed(t *testing.T) {
	got := roundTrip(t, TextVariable, "hello world", Options{Compress: true}).(string)
	if got != "hello world" {
		t.Errorf("Text round trip = %q", got)
	}
}

func TestTextRoundTripUncompressible(t *testing.T) {
	in := "café中" // mixes a multi-byte-unsafe-for-compression code unit
	got := roundTrip(t, TextVariable, in, Options{Compress: true}).(string)
	if got != in {
		t.Errorf("Text round trip = %q, want %q", got, in)
	}
}

func TestGUIDRoundTrip(t *testing.T) {
	in := uuid.New()
	got := roundTrip(t, GUID, in, Options{}).(uuid.UUID)
	if got != in {
		t.Errorf("GUID round trip = %v, want %v", got, in)
	}
}

func TestShortDateTimeRoundTrip(t *testing.T) {
	in := time.Date(2020, time.May, 1, 12, 30, 0, 0, time.UTC)
	got := roundTrip(t, ShortDateTime, in, Options{}).(time.Time)
	if got.Sub(in) > time.Second || in.Sub(got) > time.Second {
		t.Errorf("ShortDateTime round trip = %v, want %v", got, in)
	}
}

func TestIndexKeyOrderingIntegers(t *testing.T) {
	values := []int64{-100, -1, 0, 1, 100}
	var encoded [][]byte
	for _, v := range values {
		enc, err := EncodeIndexKeyColumn("col", Long, v, Options{}, true)
		if err != nil {
			t.Fatalf("EncodeIndexKeyColumn(%d): %v", v, err)
		}
		encoded = append(encoded, enc)
	}
	for i := 1; i < len(encoded); i++ {
		if string(encoded[i-1]) >= string(encoded[i]) {
			t.Errorf("ordering violated between %d and %d", values[i-1], values[i])
		}
	}
}

func TestIndexKeyOrderingDescendingReversesAscending(t *testing.T) {
	a, _ := EncodeIndexKeyColumn("col", Int, int32(5), Options{}, true)
	b, _ := EncodeIndexKeyColumn("col", Int, int32(9), Options{}, true)
	da, _ := EncodeIndexKeyColumn("col", Int, int32(5), Options{}, false)
	db, _ := EncodeIndexKeyColumn("col", Int, int32(9), Options{}, false)

	if string(a) >= string(b) {
		t.Fatal("ascending precondition violated")
	}
	if string(da) <= string(db) {
		t.Error("descending encoding did not reverse ascending order")
	}
}

func TestIndexKeyOrderingFloats(t *testing.T) {
	values := []float64{-3.5, -0.1, 0, 0.1, 3.5}
	var encoded [][]byte
	for _, v := range values {
		enc, err := EncodeIndexKeyColumn("col", Double, v, Options{}, true)
		if err != nil {
			t.Fatalf("EncodeIndexKeyColumn(%v): %v", v, err)
		}
		encoded = append(encoded, enc)
	}
	for i := 1; i < len(encoded); i++ {
		if string(encoded[i-1]) >= string(encoded[i]) {
			t.Errorf("ordering violated between %v and %v", values[i-1], values[i])
		}
	}
}

func TestIndexKeyOrderingNumeric(t *testing.T) {
	lo, _ := decimal.NewFromString("-99.99")
	hi, _ := decimal.NewFromString("100.00")
	opts := Options{Scale: 2}
	encLo, err := EncodeIndexKeyColumn("col", Numeric, lo, opts, true)
	if err != nil {
		t.Fatalf("EncodeIndexKeyColumn(lo): %v", err)
	}
	encHi, err := EncodeIndexKeyColumn("col", Numeric, hi, opts, true)
	if err != nil {
		t.Fatalf("EncodeIndexKeyColumn(hi): %v", err)
	}
	if string(encLo) >= string(encHi) {
		t.Error("expected negative numeric key to sort before positive")
	}
}

func TestCompositeIndexKeyAssembly(t *testing.T) {
	cols := []IndexKeyColumn{
		{Name: "a", Type: TextVariable, Value: "ab", Ascending: true},
		{Name: "b", Type: Int, Value: int32(1), Ascending: true},
	}
	enc, err := EncodeIndexKey(cols)
	if err != nil {
		t.Fatalf("EncodeIndexKey: %v", err)
	}
	if len(enc) == 0 {
		t.Fatal("expected non-empty composite key")
	}
}
