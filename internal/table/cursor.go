package table

import (
	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/pagestore"
)

// MatchFunc decides whether a decoded row satisfies a scan's match
// pattern. Pluggable so callers can choose case-sensitive or
// case-insensitive column comparison (spec.md §4.5).
type MatchFunc func(values map[string]any) bool

// Cursor performs a physical-order scan across a table's page set,
// skipping tombstoned slots. Index-order scans are built directly on
// internal/index.Cursor instead, since they need the index's own
// key-ordered traversal rather than physical page order.
type Cursor struct {
	table       *Table
	pageNumbers []pagestore.Pgno
	pageIdx     int
	slot        int
	match       MatchFunc

	current map[string]any
	rowID   index.RowId
	ok      bool
}

// NewCursor returns a physical-order cursor over every row in t, filtered
// by match (pass nil to visit every row).
func NewCursor(t *Table, match MatchFunc) *Cursor {
	return &Cursor{
		table:       t,
		pageNumbers: t.pages.PageIterator(),
		pageIdx:     0,
		slot:        0,
		match:       match,
	}
}

// Next advances to the next matching row, returning false once the scan
// is exhausted.
func (c *Cursor) Next() (bool, error) {
	for c.pageIdx < len(c.pageNumbers) {
		page, err := c.table.channel.ReadPage(c.pageNumbers[c.pageIdx])
		if err != nil {
			return false, err
		}
		dp := loadDataPage(page)
		if c.slot >= dp.slotCount() {
			c.pageIdx++
			c.slot = 0
			continue
		}
		slot := c.slot
		c.slot++

		descriptor, err := dp.read(slot)
		if err != nil {
			return false, err
		}
		if descriptor == nil {
			continue
		}
		rowBytes, err := codec.DecodeOverflow(c.table.channel, descriptor)
		if err != nil {
			return false, err
		}
		values, err := decodeRow(c.table.channel, c.table.columns, rowBytes)
		if err != nil {
			return false, err
		}
		if c.match != nil && !c.match(values) {
			continue
		}
		c.current = values
		c.rowID = index.RowId{Page: c.pageNumbers[c.pageIdx], Slot: uint16(slot)}
		c.ok = true
		return true, nil
	}
	c.ok = false
	return false, nil
}

// Current returns the most recently visited row and its RowId.
func (c *Cursor) Current() (map[string]any, index.RowId, bool) {
	return c.current, c.rowID, c.ok
}
