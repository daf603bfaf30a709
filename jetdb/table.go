package jetdb

import (
	"strings"

	"github.com/jetfile/jetdb/internal/catalog"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/table"
)

// Table is a handle to one table's rows and indexes, obtained from
// Database.Table, Database.Tables, or Database.CreateTable.
type Table struct {
	db    *Database
	entry *catalog.TableEntry
}

// Name returns the table's name.
func (t *Table) Name() string { return t.entry.Name }

// Columns returns the table's column schema.
func (t *Table) Columns() []table.ColumnDef { return t.entry.Columns }

// IsLinked reports whether the table resolves through a link rather than
// storing rows locally.
func (t *Table) IsLinked() bool { return t.entry.IsLinked() }

// Writable reports whether the table accepts direct mutation (an
// ODBC-linked table never does).
func (t *Table) Writable() bool { return t.entry.Writable() }

// Index looks up one of the table's indexes by name (case-insensitive).
func (t *Table) Index(name string) (*Index, bool) {
	idx, ok := t.entry.Indexes[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &Index{db: t.db, entry: t.entry, idx: idx}, true
}

// Indexes returns every index defined on the table.
func (t *Table) Indexes() []*Index {
	out := make([]*Index, 0, len(t.entry.Indexes))
	for _, idx := range t.entry.Indexes {
		out = append(out, &Index{db: t.db, entry: t.entry, idx: idx})
	}
	return out
}

// SetProperty sets a property on the table definition (spec.md §4.6).
func (t *Table) SetProperty(name, value string) error {
	return t.db.withWriteBarrier(func() error {
		return t.db.cat.SetTableProperty(t.entry, name, value)
	})
}

// Property reads a property on the table definition.
func (t *Table) Property(name string) (string, bool) {
	v, ok := t.entry.Properties[name]
	return v, ok
}

// Insert resolves auto-number, default, and calculated column values,
// runs the evaluator's validation hooks, checks referential integrity
// against any parent this table references, stores the row, and
// maintains every index. It returns the RowId of the new row.
func (t *Table) Insert(values Row) (index.RowId, error) {
	var rowID index.RowId
	err := t.db.withWriteBarrier(func() error {
		var err error
		rowID, err = t.db.insertRow(t.entry, values)
		return err
	})
	return rowID, err
}

// Update merges updates over rowID's current values, re-runs calculated
// and validation hooks, checks referential integrity, and re-indexes the
// row. Any cascadeUpdates relationship with this table as parent fires
// if the update changed a column the parent index covers.
func (t *Table) Update(rowID index.RowId, updates Row) error {
	return t.db.withWriteBarrier(func() error {
		return t.db.updateRow(t.entry, rowID, updates)
	})
}

// Delete removes rowID. Any cascadeDeletes or cascadeNullOnDelete
// relationship with this table as parent fires first, while the row's
// values are still readable. Deleting an already-deleted RowId is a
// no-op.
func (t *Table) Delete(rowID index.RowId) error {
	return t.db.withWriteBarrier(func() error {
		return t.db.deleteRow(t.entry, rowID)
	})
}

// Get decodes the row at rowID, or returns (nil, false, nil) if it has
// been deleted.
func (t *Table) Get(rowID index.RowId) (Row, bool, error) {
	return t.entry.Data.Get(rowID)
}

// Scan returns a physical-order cursor over the table's rows, optionally
// restricted by match (nil matches every live row).
func (t *Table) Scan(match table.MatchFunc) *Cursor {
	return &Cursor{cur: table.NewCursor(t.entry.Data, match)}
}

// MatchFunc is the predicate type Scan accepts; re-exported so callers
// need not import internal/table themselves.
type MatchFunc = table.MatchFunc

// MatchAll returns a MatchFunc accepting rows where every column named in
// pattern compares equal (by ==) to the corresponding row value — the
// case-sensitive column matcher spec.md §4.5 describes.
func MatchAll(pattern Row) MatchFunc {
	return func(values map[string]any) bool {
		for k, want := range pattern {
			if values[k] != want {
				return false
			}
		}
		return true
	}
}

// MatchAllFold is MatchAll's case-insensitive counterpart: string-typed
// pattern values compare with strings.EqualFold, every other type falls
// back to ==.
func MatchAllFold(pattern Row) MatchFunc {
	return func(values map[string]any) bool {
		for k, want := range pattern {
			got := values[k]
			ws, wok := want.(string)
			gs, gok := got.(string)
			if wok && gok {
				if !strings.EqualFold(ws, gs) {
					return false
				}
				continue
			}
			if got != want {
				return false
			}
		}
		return true
	}
}
