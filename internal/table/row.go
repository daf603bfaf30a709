package table

import (
	"encoding/binary"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/jeterrors"
)

// memoInlineLimit is the column-level overflow threshold for Memo/OLE
// values: up to this many bytes the value sits directly in the row's
// variable region, above it the region instead holds a codec
// overflow descriptor pointing at a dedicated page chain (spec.md §4.3's
// "stored inline, as a single overflow pointer, or as a chain of overflow
// pages"). This is independent of the whole-row overflow placeRow
// performs for rows that don't fit their page at all.
const memoInlineLimit = 256

func encodeLongValue(channel *pagestore.PageChannel, t codec.Type, value any) ([]byte, error) {
	var raw []byte
	switch t {
	case codec.Memo:
		s, ok := value.(string)
		if !ok {
			return nil, &jeterrors.InvalidValueError{TypeName: t.String(), Reason: "expected string"}
		}
		var err error
		raw, err = codec.EncodeText(s)
		if err != nil {
			return nil, err
		}
	case codec.OLE:
		b, ok := value.([]byte)
		if !ok {
			return nil, &jeterrors.InvalidValueError{TypeName: t.String(), Reason: "expected []byte"}
		}
		raw = b
	}
	return codec.EncodeOverflow(channel, raw, memoInlineLimit)
}

func decodeLongValue(channel *pagestore.PageChannel, t codec.Type, descriptor []byte) (any, error) {
	raw, err := codec.DecodeOverflow(channel, descriptor)
	if err != nil {
		return nil, err
	}
	if t == codec.Memo {
		return codec.DecodeText(raw)
	}
	return raw, nil
}

// ColumnDef is the subset of a catalog column description the row codec
// needs to place a value in the fixed or variable region.
type ColumnDef struct {
	Name     string
	Type     codec.Type
	Options  codec.Options
	Nullable bool

	// AutoNumber marks the column whose value the table engine assigns
	// from its own counter on every insert (spec.md §4.5), ignoring
	// whatever the caller supplied. At most one column per table should
	// carry this flag; the row codec itself does not enforce that.
	AutoNumber bool

	// HasDefault and Calculated mark columns whose value is supplied by
	// the evaluator hook API (spec.md §6) rather than the caller: a null
	// HasDefault column is filled by EvaluateDefault, a Calculated column
	// is always recomputed by EvaluateCalculated. The row codec itself
	// never calls the evaluator; it is the top-level engine's job to
	// resolve these before encodeRow sees the values.
	HasDefault bool
	Calculated bool

	// Validate marks a column carrying a validation rule the evaluator's
	// ValidateColumn hook should check before the row is written.
	Validate bool

	// Properties carries the column-level PropertyMap (spec.md §4.6). The
	// row codec never reads it; it rides along on ColumnDef purely so
	// internal/catalog can round-trip it through the same column schema
	// blob it already persists, rather than a second system table.
	Properties map[string]string
}

// Row physical layout (spec.md §4.5): a 2-byte column-count prefix, the
// fixed-width region in column order, the variable-length region in
// column order, a null bitmap (1 bit per column, 1 = null), and a
// variable-length offset table at the end of the blob, one 2-byte entry
// per variable column, in column order, giving that column's end
// offset within the variable region.
func encodeRow(channel *pagestore.PageChannel, columns []ColumnDef, values map[string]any) ([]byte, error) {
	fixed := make([][]byte, 0)
	nullBits := make([]bool, len(columns))

	blob := make([]byte, 2)
	binary.LittleEndian.PutUint16(blob, uint16(len(columns)))

	// Variable-region bytes are appended directly to blob once the fixed
	// region (whose total size is known up front) has been written, so a
	// null variable column simply contributes zero bytes and repeats the
	// running offset.
	type pending struct {
		column string
		typ    codec.Type
		opts   codec.Options
		value  any
	}
	var variableCols []pending

	for i, c := range columns {
		v, present := values[c.Name]
		isNull := !present || v == nil
		nullBits[i] = isNull
		width, fixedType := c.Type.FixedWidth()
		if fixedType {
			if isNull {
				fixed = append(fixed, make([]byte, width))
				continue
			}
			enc, err := codec.Encode(c.Name, c.Type, v, c.Options)
			if err != nil {
				return nil, err
			}
			if len(enc) != width {
				return nil, &jeterrors.InvalidValueError{Column: c.Name, TypeName: c.Type.String(), Reason: "encoded width mismatch"}
			}
			fixed = append(fixed, enc)
			continue
		}
		if isNull {
			variableCols = append(variableCols, pending{column: c.Name})
		} else {
			variableCols = append(variableCols, pending{column: c.Name, typ: c.Type, opts: c.Options, value: v})
		}
	}

	for _, f := range fixed {
		blob = append(blob, f...)
	}
	varStart := len(blob)
	varOffsets := make([]uint16, 0, len(variableCols))
	for _, p := range variableCols {
		if p.value != nil {
			var enc []byte
			var err error
			if p.typ == codec.Memo || p.typ == codec.OLE {
				enc, err = encodeLongValue(channel, p.typ, p.value)
			} else {
				enc, err = codec.Encode(p.column, p.typ, p.value, p.opts)
			}
			if err != nil {
				return nil, err
			}
			blob = append(blob, enc...)
		}
		varOffsets = append(varOffsets, uint16(len(blob)-varStart))
	}

	nullBitmapLen := (len(columns) + 7) / 8
	bitmap := make([]byte, nullBitmapLen)
	for i, isNull := range nullBits {
		if isNull {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}
	blob = append(blob, bitmap...)

	for _, off := range varOffsets {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], off)
		blob = append(blob, b[:]...)
	}
	return blob, nil
}

func decodeRow(channel *pagestore.PageChannel, columns []ColumnDef, blob []byte) (map[string]any, error) {
	if len(blob) < 2 {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "row blob truncated")
	}
	count := int(binary.LittleEndian.Uint16(blob))
	if count != len(columns) {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "row column count does not match table schema")
	}

	numVariable := 0
	fixedWidths := make([]int, len(columns))
	for i, c := range columns {
		if w, ok := c.Type.FixedWidth(); ok {
			fixedWidths[i] = w
		} else {
			numVariable++
		}
	}

	nullBitmapLen := (count + 7) / 8
	if len(blob) < nullBitmapLen+numVariable*2 {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "row blob truncated")
	}
	offsetTableStart := len(blob) - numVariable*2
	bitmapStart := offsetTableStart - nullBitmapLen
	bitmap := blob[bitmapStart:offsetTableStart]

	varOffsets := make([]uint16, numVariable)
	for i := 0; i < numVariable; i++ {
		varOffsets[i] = binary.LittleEndian.Uint16(blob[offsetTableStart+i*2:])
	}

	out := make(map[string]any, count)
	fixedPos := 2
	varIdx := 0
	varStart := 2
	for _, w := range fixedWidths {
		varStart += w
	}
	varCursor := varStart

	for i, c := range columns {
		isNull := bitmap[i/8]&(1<<uint(i%8)) != 0
		if w := fixedWidths[i]; w > 0 {
			if isNull {
				fixedPos += w
				continue
			}
			v, err := codec.Decode(c.Name, c.Type, blob[fixedPos:fixedPos+w])
			if err != nil {
				return nil, err
			}
			out[c.Name] = v
			fixedPos += w
			continue
		}
		// Variable column.
		end := varStart + int(varOffsets[varIdx])
		if isNull {
			varIdx++
			varCursor = end
			continue
		}
		start := varCursor
		if start > end || end > bitmapStart {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "row variable offset out of range")
		}
		var v any
		var err error
		if c.Type == codec.Memo || c.Type == codec.OLE {
			v, err = decodeLongValue(channel, c.Type, blob[start:end])
		} else {
			v, err = codec.Decode(c.Name, c.Type, blob[start:end])
		}
		if err != nil {
			return nil, err
		}
		out[c.Name] = v
		varCursor = end
		varIdx++
	}
	return out, nil
}
