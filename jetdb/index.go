package jetdb

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jetfile/jetdb/internal/catalog"
	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/jeterrors"
)

// Index is a handle to one index's ordered entries, obtained from
// Table.Index, Table.Indexes, or Database.CreateIndex.
type Index struct {
	db    *Database
	entry *catalog.TableEntry
	idx   *catalog.IndexEntry
}

// Name returns the index's name.
func (ix *Index) Name() string { return ix.idx.Name }

// Unique reports whether the index rejects duplicate keys.
func (ix *Index) Unique() bool { return ix.idx.Unique }

// IgnoreNull reports whether a row with every indexed column null is
// omitted from the index rather than carrying a null-keyed entry.
func (ix *Index) IgnoreNull() bool { return ix.idx.IgnoreNull }

// Columns returns the index's column names, in key order.
func (ix *Index) Columns() []string { return ix.idx.Columns }

// SetProperty sets a property on the index definition.
func (ix *Index) SetProperty(name, value string) error {
	return ix.db.withWriteBarrier(func() error {
		return ix.db.cat.SetIndexProperty(ix.idx, name, value)
	})
}

// Property reads a property on the index definition.
func (ix *Index) Property(name string) (string, bool) {
	v, ok := ix.idx.Properties[name]
	return v, ok
}

// encodePartialKey builds the encoded key for the index's first
// len(values) columns, validating spec.md §4.4's partial-key lookup rule
// that a caller supply between 1 and the index's full column count.
func (ix *Index) encodePartialKey(values []any) ([]byte, error) {
	if len(values) == 0 || len(values) > len(ix.idx.Columns) {
		return nil, &jeterrors.InvalidArgumentError{
			Operation: "partial-key lookup",
			Reason:    fmt.Sprintf("index %q has %d columns, got %d components", ix.idx.Name, len(ix.idx.Columns), len(values)),
		}
	}
	types, opts := columnMaps(ix.entry.Columns)
	cols := make([]codec.IndexKeyColumn, len(values))
	for i, v := range values {
		name := ix.idx.Columns[i]
		t, ok := types[strings.ToLower(name)]
		if !ok {
			return nil, &jeterrors.InvalidArgumentError{Operation: "partial-key lookup", Reason: "unknown column " + name}
		}
		cols[i] = codec.IndexKeyColumn{
			Name:      name,
			Type:      t,
			Value:     v,
			Options:   opts[strings.ToLower(name)],
			Ascending: ix.idx.Ascending[i],
		}
	}
	return codec.EncodeIndexKey(cols)
}

// FindFirstRowByEntry returns the first row whose key has values as its
// leading components — a full key if len(values) equals the index's
// column count, a prefix match otherwise. ok is false if no entry
// carries that prefix.
func (ix *Index) FindFirstRowByEntry(values ...any) (index.RowId, bool, error) {
	prefix, err := ix.encodePartialKey(values)
	if err != nil {
		return index.RowId{}, false, err
	}
	foundKey, row, ok, err := ix.idx.Data.FindClosestRowByEntry(prefix)
	if err != nil {
		return index.RowId{}, false, err
	}
	if !ok || !bytes.HasPrefix(foundKey, prefix) {
		return index.RowId{}, false, nil
	}
	return row, true, nil
}

// FindClosestRowByEntry returns the first row whose key is
// greater-than-or-equal-to values' encoding, without requiring the
// result actually carry values as a prefix — the unrestricted seek
// spec.md §4.4 names alongside the exact/prefix FindFirstRowByEntry.
func (ix *Index) FindClosestRowByEntry(values ...any) (index.RowId, bool, error) {
	prefix, err := ix.encodePartialKey(values)
	if err != nil {
		return index.RowId{}, false, err
	}
	_, row, ok, err := ix.idx.Data.FindClosestRowByEntry(prefix)
	if err != nil {
		return index.RowId{}, false, err
	}
	return row, ok, nil
}

// NewCursor returns a cursor over every entry in the index, positioned
// BeforeFirst.
func (ix *Index) NewCursor() *IndexCursor {
	return &IndexCursor{ix: ix, cur: index.NewCursor(ix.idx.Data, true)}
}

// Matching returns a cursor restricted to entries whose key carries
// values as a prefix, positioned at the first such entry (or AfterLast
// if none match). This is spec.md §4.4's newEntryIterable for a
// partial-key scan.
func (ix *Index) Matching(values ...any) (*IndexCursor, error) {
	prefix, err := ix.encodePartialKey(values)
	if err != nil {
		return nil, err
	}
	cur := index.NewCursor(ix.idx.Data, true)
	if err := cur.Seek(prefix); err != nil {
		return nil, err
	}
	ic := &IndexCursor{ix: ix, cur: cur, prefix: prefix}
	if cur.State() == index.OnRow {
		key, _, _ := cur.Current()
		if !bytes.HasPrefix(key, prefix) {
			ic.exhausted = true
		}
	}
	return ic, nil
}

// IndexCursor walks an Index's entries in key order, optionally
// restricted to a partial-key prefix (Index.Matching). It implements the
// BeforeFirst/OnRow/AfterLast/DeletedRow state machine spec.md §4.4
// describes.
type IndexCursor struct {
	ix        *Index
	cur       *index.Cursor
	prefix    []byte
	exhausted bool
}

// State reports the cursor's current state.
func (c *IndexCursor) State() index.CursorState {
	if c.exhausted {
		return index.AfterLast
	}
	return c.cur.State()
}

// Key returns the encoded key and row the cursor currently sits on. ok is
// false unless State is OnRow.
func (c *IndexCursor) Key() (key []byte, row index.RowId, ok bool) {
	if c.exhausted {
		return nil, index.RowId{}, false
	}
	return c.cur.Current()
}

// Row decodes the row the cursor currently sits on.
func (c *IndexCursor) Row() (Row, index.RowId, bool, error) {
	_, row, ok := c.Key()
	if !ok {
		return nil, index.RowId{}, false, nil
	}
	values, found, err := c.ix.entry.Data.Get(row)
	return values, row, found, err
}

// First positions the cursor at the lowest-keyed entry within the
// cursor's prefix restriction, if any.
func (c *IndexCursor) First() (bool, error) {
	c.exhausted = false
	if err := c.cur.First(); err != nil {
		return false, err
	}
	return c.checkPrefix()
}

// Next advances the cursor one entry forward.
func (c *IndexCursor) Next() (bool, error) {
	if c.exhausted {
		return false, nil
	}
	if err := c.cur.Next(); err != nil {
		return false, err
	}
	return c.checkPrefix()
}

// Prev moves the cursor one entry backward.
func (c *IndexCursor) Prev() (bool, error) {
	if c.exhausted {
		return false, nil
	}
	if err := c.cur.Prev(); err != nil {
		return false, err
	}
	return c.checkPrefix()
}

func (c *IndexCursor) checkPrefix() (bool, error) {
	if c.cur.State() != index.OnRow {
		return false, nil
	}
	if c.prefix != nil {
		key, _, _ := c.cur.Current()
		if !bytes.HasPrefix(key, c.prefix) {
			c.exhausted = true
			return false, nil
		}
	}
	return true, nil
}

// Save captures the cursor's current position for a later Restore.
func (c *IndexCursor) Save() index.Savepoint { return c.cur.Save() }

// Restore re-positions the cursor from a savepoint, entering DeletedRow
// (rather than erroring) if the row it pointed at is gone.
func (c *IndexCursor) Restore(sp index.Savepoint) error {
	c.exhausted = false
	return c.cur.Restore(sp)
}
