package table

import (
	"encoding/binary"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/jeterrors"
)

// FreeBytes reports how many bytes of row-insertion budget a data page
// still has. Database.Open uses this to repopulate a reopened table's
// UsageMap free-space index, which (like the rest of UsageMap's bookkeeping
// state) is not itself persisted to the page.
func FreeBytes(channel *pagestore.PageChannel, pgno pagestore.Pgno) (int, error) {
	page, err := channel.ReadPage(pgno)
	if err != nil {
		return 0, err
	}
	return loadDataPage(page).freeBytes(), nil
}

// Data page layout: a slotted page. byte0 is the DATA type tag, bytes
// [1:3] hold the slot count, bytes[3:5] hold freeOffset (the low-water
// mark row data has been written down to; slot entries grow upward from
// slotDirStart while row bytes grow downward from the page's end). Each
// slot is 4 bytes: a 2-byte offset and a 2-byte length; an (0, 0) slot is
// a deleted/tombstoned row.
const (
	dataPageHeaderSize = 5
	slotEntrySize      = 4
)

func slotDirEnd(slotCount int) int { return dataPageHeaderSize + slotCount*slotEntrySize }

type dataPage struct {
	page     *pagestore.Page
	pageSize int
}

func loadDataPage(p *pagestore.Page) *dataPage {
	return &dataPage{page: p, pageSize: len(p.Data)}
}

func (dp *dataPage) slotCount() int {
	return int(binary.LittleEndian.Uint16(dp.page.Data[1:3]))
}

func (dp *dataPage) freeOffset() int {
	off := int(binary.LittleEndian.Uint16(dp.page.Data[3:5]))
	if off == 0 {
		return dp.pageSize
	}
	return off
}

func (dp *dataPage) freeBytes() int {
	return dp.freeOffset() - slotDirEnd(dp.slotCount())
}

func (dp *dataPage) slot(i int) (offset, length int) {
	base := dataPageHeaderSize + i*slotEntrySize
	offset = int(binary.LittleEndian.Uint16(dp.page.Data[base:]))
	length = int(binary.LittleEndian.Uint16(dp.page.Data[base+2:]))
	return
}

func (dp *dataPage) setSlot(i, offset, length int) {
	base := dataPageHeaderSize + i*slotEntrySize
	binary.LittleEndian.PutUint16(dp.page.Data[base:], uint16(offset))
	binary.LittleEndian.PutUint16(dp.page.Data[base+2:], uint16(length))
}

func (dp *dataPage) setSlotCount(n int) {
	binary.LittleEndian.PutUint16(dp.page.Data[1:3], uint16(n))
}

func (dp *dataPage) setFreeOffset(off int) {
	binary.LittleEndian.PutUint16(dp.page.Data[3:5], uint16(off))
}

func (dp *dataPage) read(slot int) ([]byte, error) {
	if slot < 0 || slot >= dp.slotCount() {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "row slot out of range")
	}
	off, length := dp.slot(slot)
	if length == 0 {
		return nil, nil // tombstoned
	}
	if off+length > dp.pageSize {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "row slot exceeds page bounds")
	}
	return dp.page.Data[off : off+length], nil
}

// insert places descriptor bytes into a new slot appended to the slot
// directory, returning the slot index; tombstoned slots are never reused.
// Caller must have room for both a new slot directory entry and
// len(descriptor) bytes of row space.
func (dp *dataPage) insert(descriptor []byte) (int, error) {
	needed := len(descriptor)
	newOffset := dp.freeOffset() - needed
	if newOffset < slotDirEnd(dp.slotCount()+1) {
		return 0, jeterrors.Wrap(jeterrors.ErrCorruptFile, "insufficient page space for row")
	}
	copy(dp.page.Data[newOffset:newOffset+needed], descriptor)
	slot := dp.slotCount()
	dp.setSlotCount(slot + 1)
	dp.setSlot(slot, newOffset, needed)
	dp.setFreeOffset(newOffset)
	return slot, nil
}

// update overwrites slot's descriptor with a new one occupying fresh
// space (the old bytes are abandoned, not reclaimed: this format performs
// no in-page compaction). Caller must have confirmed there is room.
func (dp *dataPage) update(slot int, descriptor []byte) error {
	needed := len(descriptor)
	newOffset := dp.freeOffset() - needed
	if newOffset < slotDirEnd(dp.slotCount()) {
		return jeterrors.Wrap(jeterrors.ErrCorruptFile, "insufficient page space for row update")
	}
	copy(dp.page.Data[newOffset:newOffset+needed], descriptor)
	dp.setSlot(slot, newOffset, needed)
	dp.setFreeOffset(newOffset)
	return nil
}

func (dp *dataPage) delete(slot int) {
	dp.setSlot(slot, 0, 0)
}

// descriptorBudget returns the maximum descriptor size (inline row or
// overflow pointer) that would fit as a brand-new slot without growing
// the page.
func (dp *dataPage) descriptorBudget(newSlot bool) int {
	dirEnd := slotDirEnd(dp.slotCount())
	if newSlot {
		dirEnd += slotEntrySize
	}
	budget := dp.freeOffset() - dirEnd
	if budget < 0 {
		return 0
	}
	return budget
}

// placeRow writes a row blob into the page, as an inline descriptor if it
// fits the available budget or as a codec overflow pointer otherwise, and
// returns the row's slot index.
func placeRow(channel *pagestore.PageChannel, dp *dataPage, rowBytes []byte, reuseSlot int) (int, []byte, error) {
	newSlot := reuseSlot < 0
	budget := dp.descriptorBudget(newSlot)
	inlineLimit := budget - 1
	if inlineLimit < 0 {
		inlineLimit = 0
	}
	descriptor, err := codec.EncodeOverflow(channel, rowBytes, inlineLimit)
	if err != nil {
		return 0, nil, err
	}
	if len(descriptor) > budget {
		// Even the 9-byte overflow pointer does not fit; caller must pick
		// a different page.
		return 0, nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "no room for row descriptor on this page")
	}
	if newSlot {
		slot, err := dp.insert(descriptor)
		return slot, descriptor, err
	}
	if err := dp.update(reuseSlot, descriptor); err != nil {
		return 0, nil, err
	}
	return reuseSlot, descriptor, nil
}
