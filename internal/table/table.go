package table

import (
	"sync"
	"sync/atomic"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/internal/usagemap"
	"github.com/jetfile/jetdb/jeterrors"
)

// Table is a named collection of rows sharing one column schema,
// physically stored across the pages its UsageMap owns (spec.md §4.5).
type Table struct {
	mu sync.Mutex

	Name    string
	channel *pagestore.PageChannel
	pages   *usagemap.UsageMap
	columns []ColumnDef

	autoNumber atomic.Int64
}

// New creates a table over a fresh UsageMap-owned page set. The channel
// must have a write barrier open.
func New(channel *pagestore.PageChannel, name string, columns []ColumnDef) (*Table, error) {
	first, err := channel.AllocatePage(pagestore.PageTypeData)
	if err != nil {
		return nil, err
	}
	pages := usagemap.New(channel, first, first)
	if err := pages.Add(first); err != nil {
		return nil, err
	}
	page, err := channel.ReadPage(first)
	if err != nil {
		return nil, err
	}
	pages.SetFreeSpace(first, loadDataPage(page).freeBytes())
	return &Table{Name: name, channel: channel, pages: pages, columns: columns}, nil
}

// Open wraps an existing table whose page set is already populated.
func Open(channel *pagestore.PageChannel, name string, columns []ColumnDef, pages *usagemap.UsageMap) *Table {
	return &Table{Name: name, channel: channel, pages: pages, columns: columns}
}

// Columns returns the table's column schema.
func (t *Table) Columns() []ColumnDef { return t.columns }

// Pages returns the current page set backing the table, for callers that
// need to persist it (internal/catalog, recovering a reopened file's
// schema without a UsageMap that survives a process restart on its own).
func (t *Table) Pages() []pagestore.Pgno { return t.pages.PageIterator() }

// NextAutoNumber atomically issues the next auto-number counter value.
func (t *Table) NextAutoNumber() int64 { return t.autoNumber.Add(1) }

// RollbackAutoNumber restores the counter after a failed insert consumed
// a value (spec.md §4.5's "on unique-index violation the counter is
// restored and the insert fails"), so the next successful insert reuses
// the number the failed attempt burned rather than leaving a permanent
// gap. Safe only because spec.md §5 rules out concurrent writers on one
// handle: a rollback racing a concurrent NextAutoNumber on another
// goroutine would misassign numbers.
func (t *Table) RollbackAutoNumber() { t.autoNumber.Add(-1) }

// SeedAutoNumber advances the counter to at least n, used when reopening
// a file so a table's next assigned auto-number continues after the
// highest value already persisted rather than restarting at 1 (spec.md
// §8 invariant 7's monotonicity must survive a reopen, not just one
// process lifetime).
func (t *Table) SeedAutoNumber(n int64) {
	for {
		cur := t.autoNumber.Load()
		if n <= cur {
			return
		}
		if t.autoNumber.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Insert encodes values according to the table's schema and stores the
// result in a page with enough free space, preferring an existing page
// via the UsageMap's BestFit query over allocating a new one. The
// channel must have a write barrier open.
func (t *Table) Insert(values map[string]any) (index.RowId, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rowBytes, err := encodeRow(t.channel, t.columns, values)
	if err != nil {
		return index.RowId{}, err
	}

	pgno, page, dp, err := t.pageWithRoom(len(rowBytes))
	if err != nil {
		return index.RowId{}, err
	}

	clone := page.Clone()
	cdp := loadDataPage(clone)
	slot, _, err := placeRow(t.channel, cdp, rowBytes, -1)
	if err != nil {
		return index.RowId{}, err
	}
	if err := t.channel.WritePage(clone); err != nil {
		return index.RowId{}, err
	}
	t.pages.SetFreeSpace(pgno, cdp.freeBytes())
	return index.RowId{Page: pgno, Slot: uint16(slot)}, nil
}

// pageWithRoom returns a page (and its current decoded form) with at
// least needed bytes of descriptor budget, allocating a fresh page if no
// existing one qualifies.
func (t *Table) pageWithRoom(needed int) (pagestore.Pgno, *pagestore.Page, *dataPage, error) {
	if pgno, ok := t.pages.BestFit(needed + slotEntrySize + 1); ok {
		page, err := t.channel.ReadPage(pgno)
		if err != nil {
			return 0, nil, nil, err
		}
		return pgno, page, loadDataPage(page), nil
	}
	pgno, err := t.channel.AllocatePage(pagestore.PageTypeData)
	if err != nil {
		return 0, nil, nil, err
	}
	if err := t.pages.Add(pgno); err != nil {
		return 0, nil, nil, err
	}
	page, err := t.channel.ReadPage(pgno)
	if err != nil {
		return 0, nil, nil, err
	}
	return pgno, page, loadDataPage(page), nil
}

// Get decodes the row at rowID, or returns (nil, false, nil) if it has
// been deleted.
func (t *Table) Get(rowID index.RowId) (map[string]any, bool, error) {
	page, err := t.channel.ReadPage(rowID.Page)
	if err != nil {
		return nil, false, err
	}
	dp := loadDataPage(page)
	descriptor, err := dp.read(int(rowID.Slot))
	if err != nil {
		return nil, false, err
	}
	if descriptor == nil {
		return nil, false, nil
	}
	rowBytes, err := codec.DecodeOverflow(t.channel, descriptor)
	if err != nil {
		return nil, false, err
	}
	values, err := decodeRow(t.channel, t.columns, rowBytes)
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// Update re-encodes values and rewrites rowID's slot in place: the slot
// index never moves, so index entries referencing this RowId remain
// valid even when the new encoding no longer fits inline and must
// overflow.
func (t *Table) Update(rowID index.RowId, values map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rowBytes, err := encodeRow(t.channel, t.columns, values)
	if err != nil {
		return err
	}
	page, err := t.channel.ReadPage(rowID.Page)
	if err != nil {
		return err
	}
	clone := page.Clone()
	dp := loadDataPage(clone)
	if int(rowID.Slot) >= dp.slotCount() {
		return jeterrors.Wrap(jeterrors.ErrCorruptFile, "update against unknown row slot")
	}
	if _, _, err := placeRow(t.channel, dp, rowBytes, int(rowID.Slot)); err != nil {
		return err
	}
	if err := t.channel.WritePage(clone); err != nil {
		return err
	}
	t.pages.SetFreeSpace(rowID.Page, dp.freeBytes())
	return nil
}

// Delete tombstones rowID's slot. The table engine does not reclaim the
// slot or its bytes; callers are responsible for removing any index
// entries that referenced the deleted row.
func (t *Table) Delete(rowID index.RowId) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	page, err := t.channel.ReadPage(rowID.Page)
	if err != nil {
		return err
	}
	clone := page.Clone()
	dp := loadDataPage(clone)
	if int(rowID.Slot) >= dp.slotCount() {
		return jeterrors.Wrap(jeterrors.ErrCorruptFile, "delete against unknown row slot")
	}
	dp.delete(int(rowID.Slot))
	if err := t.channel.WritePage(clone); err != nil {
		return err
	}
	t.pages.SetFreeSpace(rowID.Page, dp.freeBytes())
	return nil
}
