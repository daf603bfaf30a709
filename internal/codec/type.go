package codec

// Type identifies a column's on-disk value encoding (spec.md §4.3). The
// ordinal values are this engine's own stable assignment, not a claim of
// wire compatibility with any particular Jet-family product.
type Type byte

const (
	Boolean Type = iota + 1
	Byte
	Short
	Int
	Long
	Float
	Double
	Money
	Numeric
	TextFixed
	TextVariable
	Memo
	OLE
	GUID
	ShortDateTime
	ExtendedDateTime
	ComplexForeignKey
)

func (t Type) String() string {
	switch t {
	case Boolean:
		return "Boolean"
	case Byte:
		return "Byte"
	case Short:
		return "Short"
	case Int:
		return "Int"
	case Long:
		return "Long"
	case Float:
		return "Float"
	case Double:
		return "Double"
	case Money:
		return "Money"
	case Numeric:
		return "Numeric"
	case TextFixed:
		return "TextFixed"
	case TextVariable:
		return "TextVariable"
	case Memo:
		return "Memo"
	case OLE:
		return "OLE"
	case GUID:
		return "GUID"
	case ShortDateTime:
		return "ShortDateTime"
	case ExtendedDateTime:
		return "ExtendedDateTime"
	case ComplexForeignKey:
		return "ComplexForeignKey"
	default:
		return "Unknown"
	}
}

// FixedWidth returns the encoded byte width for types whose size never
// varies by value, and false for variable-length types (text, memo, OLE).
func (t Type) FixedWidth() (int, bool) {
	switch t {
	case Boolean, Byte:
		return 1, true
	case Short:
		return 2, true
	case Int, Float, ComplexForeignKey:
		return 4, true
	case Long, Double, Money, ShortDateTime, ExtendedDateTime:
		return 8, true
	case Numeric:
		return 18, true
	case GUID:
		return 16, true
	default:
		return 0, false
	}
}

// Options carries the per-column parameters the codec needs beyond the raw
// Type: precision/scale for Numeric, the compressed-unicode opt-in for
// text, and the maximum encoded size a fixed-region slot reserves.
type Options struct {
	Precision byte
	Scale     byte
	Compress  bool
	MaxSize   int
}
