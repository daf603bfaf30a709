package index

import "github.com/jetfile/jetdb/internal/pagestore"

// RowId identifies a row's physical location: the page holding it and its
// slot index within that page's row-slot array (spec.md §3).
type RowId struct {
	Page pagestore.Pgno
	Slot uint16
}

// Equal reports whether two RowIds name the same physical row.
func (r RowId) Equal(other RowId) bool {
	return r.Page == other.Page && r.Slot == other.Slot
}

// Less orders RowIds by page then slot, used to break ties between equal
// keys in a non-unique index so iteration order is deterministic.
func (r RowId) Less(other RowId) bool {
	if r.Page != other.Page {
		return r.Page < other.Page
	}
	return r.Slot < other.Slot
}
