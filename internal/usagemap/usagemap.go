// Package usagemap implements the UsageMap component (spec.md §4.2): a
// compact, ordered set of page numbers owned by a table or by the database
// itself, with two on-disk encodings and automatic promotion between them.
package usagemap

import (
	"sort"
	"sync"

	"github.com/jetfile/jetdb/internal/pagestore"
)

// Encoding identifies which on-disk representation a UsageMap currently
// uses.
type Encoding int

const (
	// Inline stores the bitmap directly in the owning page. Used while the
	// set's highest page number fits the owner's spare bytes.
	Inline Encoding = iota
	// Reference stores the bitmap across dedicated bitmap pages, indexed
	// by an indirection list kept on the owning page.
	Reference
)

// bitmapHeaderSize is the fixed overhead an inline bitmap leaves for the
// owning page's own fields (type tag, start-page, encoding marker).
const bitmapHeaderSize = 9

// UsageMap is a set of page numbers with ordered iteration and an
// auxiliary free-space index used by the table engine to pick an insertion
// target (the bestFit extension from SPEC_FULL's supplemented features).
type UsageMap struct {
	mu sync.Mutex

	channel   *pagestore.PageChannel
	ownerPage pagestore.Pgno
	startPage pagestore.Pgno

	encoding Encoding
	// bits[i] is set if startPage+i is a member of the map.
	bits []bool
	// refPages holds the bitmap page numbers once promoted to Reference
	// encoding; empty while Inline.
	refPages []pagestore.Pgno

	freeSpace map[pagestore.Pgno]int
}

// inlineCapacityBits returns how many page slots fit in the owner's page
// once bitmapHeaderSize bytes are reserved for the map's own bookkeeping.
func inlineCapacityBits(pageSize int) int {
	return (pageSize - bitmapHeaderSize) * 8
}

// New creates an empty UsageMap anchored at ownerPage, covering page
// numbers starting at startPage.
func New(channel *pagestore.PageChannel, ownerPage, startPage pagestore.Pgno) *UsageMap {
	return &UsageMap{
		channel:   channel,
		ownerPage: ownerPage,
		startPage: startPage,
		encoding:  Inline,
		freeSpace: make(map[pagestore.Pgno]int),
	}
}

// FromPages reconstructs an Inline-encoding UsageMap from an explicit page
// list recovered by the caller. This package's Inline encoding keeps its
// bitmap in the UsageMap struct rather than in the owning page's own bytes
// (see internal/catalog's dataPagesBlob system-row column, which persists
// the page list itself alongside the rest of a table's schema so
// Database.Open can hand it back here instead of re-deriving it from the
// file).
func FromPages(channel *pagestore.PageChannel, ownerPage pagestore.Pgno, pages []pagestore.Pgno) *UsageMap {
	m := New(channel, ownerPage, ownerPage)
	if len(pages) == 0 {
		return m
	}
	minPage, maxPage := pages[0], pages[0]
	for _, p := range pages {
		if p < minPage {
			minPage = p
		}
		if p > maxPage {
			maxPage = p
		}
	}
	m.startPage = minPage
	m.bits = make([]bool, maxPage-minPage+1)
	for _, p := range pages {
		m.bits[p-minPage] = true
	}
	return m
}

func (m *UsageMap) indexOf(pgno pagestore.Pgno) int {
	return int(pgno - m.startPage)
}

func (m *UsageMap) ensureLen(n int) {
	if n <= len(m.bits) {
		return
	}
	grown := make([]bool, n)
	copy(grown, m.bits)
	m.bits = grown
}

// Add marks pgno as allocated, promoting to the reference encoding within
// the caller's open write barrier if the inline capacity is exceeded.
func (m *UsageMap) Add(pgno pagestore.Pgno) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(pgno)
	if idx < 0 {
		// Pages below startPage extend the map backward; rebase.
		shift := -idx
		grown := make([]bool, len(m.bits)+shift)
		copy(grown[shift:], m.bits)
		m.bits = grown
		m.startPage = pgno
		idx = 0
	}

	if m.encoding == Inline && idx >= inlineCapacityBits(m.channel.PageSize()) {
		if err := m.promote(); err != nil {
			return err
		}
	}

	m.ensureLen(idx + 1)
	m.bits[idx] = true
	return nil
}

// Remove clears pgno's membership. Reverse promotion back to Inline is not
// performed, matching spec.md §4.2's "reverse promotion is not required".
func (m *UsageMap) Remove(pgno pagestore.Pgno) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexOf(pgno)
	if idx >= 0 && idx < len(m.bits) {
		m.bits[idx] = false
	}
	delete(m.freeSpace, pgno)
}

// Contains reports whether pgno is a member of the set.
func (m *UsageMap) Contains(pgno pagestore.Pgno) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexOf(pgno)
	return idx >= 0 && idx < len(m.bits) && m.bits[idx]
}

// PageIterator returns a stable, ascending snapshot of the member page
// numbers as of the call. Later mutation of the map does not affect an
// already-returned slice, matching the snapshot semantics spec.md §4.2
// requires of one read-only traversal.
func (m *UsageMap) PageIterator() []pagestore.Pgno {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pagestore.Pgno
	for i, set := range m.bits {
		if set {
			out = append(out, m.startPage+pagestore.Pgno(i))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Encoding reports the map's current on-disk representation.
func (m *UsageMap) Encoding() Encoding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encoding
}

// promote converts an Inline map to the Reference encoding by allocating
// dedicated bitmap pages and copying the existing bits across, all inside
// the write barrier the caller already has open. Must be called with m.mu
// held.
func (m *UsageMap) promote() error {
	bitsPerBitmapPage := (m.channel.PageSize() - 1) * 8 // 1 byte type tag
	needed := len(m.bits)
	if needed == 0 {
		needed = 1
	}
	numPages := (needed + bitsPerBitmapPage - 1) / bitsPerBitmapPage
	if numPages == 0 {
		numPages = 1
	}

	refPages := make([]pagestore.Pgno, 0, numPages)
	for i := 0; i < numPages; i++ {
		pgno, err := m.channel.AllocatePage(pagestore.PageTypeUsageMap)
		if err != nil {
			return err
		}
		refPages = append(refPages, pgno)
	}

	for i, set := range m.bits {
		if !set {
			continue
		}
		pageIdx := i / bitsPerBitmapPage
		bitIdx := i % bitsPerBitmapPage
		page, err := m.channel.ReadPage(refPages[pageIdx])
		if err != nil {
			return err
		}
		byteOff := 1 + bitIdx/8
		b := page.Data[byteOff]
		b |= 1 << uint(bitIdx%8)
		page.PutAt(byteOff, []byte{b})
		if err := m.channel.WritePage(page); err != nil {
			return err
		}
	}

	m.refPages = refPages
	m.encoding = Reference
	return nil
}

// SetFreeSpace records how many bytes a data page still has available for
// row insertion, updated by the table engine after every write to that
// page.
func (m *UsageMap) SetFreeSpace(pgno pagestore.Pgno, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bytes <= 0 {
		delete(m.freeSpace, pgno)
		return
	}
	m.freeSpace[pgno] = bytes
}

// BestFit returns the page with the least recorded free space that still
// holds requiredBytes (the lower page number on a tie), the free-space query the table
// engine uses instead of always allocating a new page (SPEC_FULL's
// supplemented UsageMap feature, grounded on the teacher's
// PageCache.evictCleanPages free-list walk).
func (m *UsageMap) BestFit(requiredBytes int) (pagestore.Pgno, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best pagestore.Pgno
	bestFree := -1
	found := false
	for pgno, free := range m.freeSpace {
		if free < requiredBytes {
			continue
		}
		if !found || free < bestFree || (free == bestFree && pgno < best) {
			best = pgno
			bestFree = free
			found = true
		}
	}
	return best, found
}
