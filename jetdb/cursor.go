package jetdb

import (
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/table"
)

// Cursor walks a table's rows in physical page order, skipping tombstoned
// slots (spec.md §4.5's scan cursor). Obtained from Table.Scan.
type Cursor struct {
	cur *table.Cursor
}

// Next advances the cursor to the next matching row. It returns false
// once the scan is exhausted.
func (c *Cursor) Next() (bool, error) { return c.cur.Next() }

// Current returns the row the cursor currently sits on.
func (c *Cursor) Current() (Row, index.RowId, bool) { return c.cur.Current() }
