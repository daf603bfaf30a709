package pagestore

import (
	"log/slog"

	"github.com/jetfile/jetdb/internal/jetlog"
	"github.com/jetfile/jetdb/jeterrors"
)

// state is the channel's write-barrier state machine. Unlike the teacher
// pager's multi-process lock ladder, this has no reader/writer lock states:
// spec.md §5 rules out concurrent writers across processes, so the only
// states that matter are whether a write barrier is open and whether a
// fatal error has poisoned the handle.
type state int

const (
	stateIdle state = iota
	stateWriting
	statePoisoned
)

// PageChannel is the paged storage layer: typed page read/write against a
// backing store, with a write barrier that makes a batch of writes visible
// atomically (§4.1, §5).
type PageChannel struct {
	backing  BackingStore
	header   *FileHeader
	pageSize int
	checksum Checksum
	log      *slog.Logger

	cache *cache
	state state
	err   error

	// undo holds the pre-barrier bytes of every page touched during the
	// current write barrier, so Abort can restore them without a
	// file-backed rollback journal: this format has no concurrent
	// transactions to recover across a crash, only the in-process abort
	// path spec.md §5 describes.
	undo map[Pgno][]byte

	freeList []Pgno
}

// Create initializes a brand-new, empty container on backing using the
// given format version, and returns a channel with a single write barrier
// already open so the caller can populate the system tables before the
// first FinishWrite.
func Create(backing BackingStore, version FormatVersion) (*PageChannel, error) {
	if !version.Valid() {
		return nil, &jeterrors.UnsupportedFormatError{Version: version.String(), Reason: "not a recognized format generation"}
	}
	pc := &PageChannel{
		backing:  backing,
		header:   NewFileHeader(version),
		pageSize: version.PageSize(),
		checksum: DefaultChecksum,
		log:      jetlog.Default(),
		cache:    newCache(),
		state:    stateIdle,
	}
	if err := backing.Truncate(int64(pc.pageSize)); err != nil {
		return nil, err
	}
	if err := pc.StartWrite(); err != nil {
		return nil, err
	}
	if _, err := pc.allocatePageLocked(PageTypeData); err != nil {
		return nil, err
	}
	return pc, nil
}

// Open reads an existing container's header from backing.
func Open(backing BackingStore) (*PageChannel, error) {
	buf := make([]byte, FileHeaderSize)
	if _, err := backing.ReadAt(buf, 0); err != nil {
		return nil, &jeterrors.IOError{Operation: "read header", Err: err}
	}
	header, err := ParseFileHeader(buf)
	if err != nil {
		return nil, err
	}
	pc := &PageChannel{
		backing:  backing,
		header:   header,
		pageSize: header.Version.PageSize(),
		checksum: DefaultChecksum,
		log:      jetlog.Default(),
		cache:    newCache(),
		state:    stateIdle,
	}
	return pc, nil
}

// SetChecksum overrides the default page-integrity transform.
func (pc *PageChannel) SetChecksum(c Checksum) { pc.checksum = c }

// Header returns the file header in effect.
func (pc *PageChannel) Header() *FileHeader { return pc.header }

// PageSize returns the fixed page size for this container's format version.
func (pc *PageChannel) PageSize() int { return pc.pageSize }

func (pc *PageChannel) checkAlive() error {
	if pc.state == statePoisoned {
		return &jeterrors.DatabasePoisonedError{Reason: "prior write barrier aborted", Err: pc.err}
	}
	return nil
}

// ReadPage returns a read-only view of pageNumber's current bytes,
// validating its checksum and recognized type tag.
func (pc *PageChannel) ReadPage(pageNumber Pgno) (*Page, error) {
	if err := pc.checkAlive(); err != nil {
		return nil, err
	}
	if p := pc.cache.get(pageNumber); p != nil {
		return p, nil
	}
	raw := make([]byte, pc.pageSize)
	if _, err := pc.backing.ReadAt(raw, int64(pageNumber)*int64(pc.pageSize)); err != nil {
		return nil, &jeterrors.IOError{Operation: "read page", Err: err}
	}
	if pageNumber != 0 {
		if err := pc.verifyChecksum(pageNumber, raw); err != nil {
			return nil, err
		}
		if !validPageType(raw[0]) {
			return nil, &jeterrors.CorruptFileError{Page: uint32(pageNumber), Reason: "unrecognized page type tag"}
		}
	}
	p := &Page{Number: pageNumber, Type: raw[0], Data: raw}
	pc.cache.put(p)
	return p, nil
}

func validPageType(tag byte) bool {
	switch tag {
	case PageTypeData, PageTypeTableDef, PageTypeIndexDef, PageTypeIndexNode, PageTypeIndexLeaf, PageTypeUsageMap:
		return true
	default:
		return false
	}
}

func (pc *PageChannel) verifyChecksum(pageNumber Pgno, raw []byte) error {
	if len(raw) < ChecksumSize {
		return &jeterrors.CorruptFileError{Page: uint32(pageNumber), Reason: "page too small for checksum"}
	}
	body := raw[:len(raw)-ChecksumSize]
	stored := raw[len(raw)-ChecksumSize:]
	want := pc.checksum.Sum(pageNumber, body)
	for i := range want {
		if stored[i] != want[i] {
			return &jeterrors.CorruptFileError{Page: uint32(pageNumber), Reason: "checksum mismatch"}
		}
	}
	return nil
}

// StartWrite opens a write barrier. All subsequent WritePage calls buffer
// in the cache until FinishWrite or Abort.
func (pc *PageChannel) StartWrite() error {
	if err := pc.checkAlive(); err != nil {
		return err
	}
	if pc.state == stateWriting {
		return nil
	}
	pc.state = stateWriting
	pc.undo = make(map[Pgno][]byte)
	return nil
}

// WritePage queues a page write within the current barrier, applying the
// checksum transform. StartWrite must have been called first.
func (pc *PageChannel) WritePage(p *Page) error {
	if err := pc.checkAlive(); err != nil {
		return err
	}
	if pc.state != stateWriting {
		return &jeterrors.DatabasePoisonedError{Reason: "WritePage called outside a write barrier"}
	}
	if _, saved := pc.undo[p.Number]; !saved {
		existing := pc.cache.get(p.Number)
		if existing != nil {
			orig := make([]byte, len(existing.Data))
			copy(orig, existing.Data)
			pc.undo[p.Number] = orig
		} else {
			pc.undo[p.Number] = nil
		}
	}
	pc.applyChecksum(p)
	pc.cache.put(p)
	p.dirty = true
	pc.log.Debug("page write buffered", "page", p.Number, "type", p.Type)
	return nil
}

func (pc *PageChannel) applyChecksum(p *Page) {
	if len(p.Data) < ChecksumSize {
		return
	}
	body := p.Data[:len(p.Data)-ChecksumSize]
	sum := pc.checksum.Sum(p.Number, body)
	copy(p.Data[len(p.Data)-ChecksumSize:], sum[:])
}

// AllocatePage returns a fresh page number, taking from the free list
// before extending the file, and registers it in the current write
// barrier. StartWrite must be open.
func (pc *PageChannel) AllocatePage(pageType byte) (Pgno, error) {
	if pc.state != stateWriting {
		return 0, &jeterrors.DatabasePoisonedError{Reason: "AllocatePage called outside a write barrier"}
	}
	return pc.allocatePageLocked(pageType)
}

func (pc *PageChannel) allocatePageLocked(pageType byte) (Pgno, error) {
	var pgno Pgno
	if len(pc.freeList) > 0 {
		pgno = pc.freeList[len(pc.freeList)-1]
		pc.freeList = pc.freeList[:len(pc.freeList)-1]
	} else {
		pgno = pc.header.PageCount
		pc.header.PageCount++
	}
	p := newPage(pgno, pageType, pc.pageSize)
	if err := pc.WritePage(p); err != nil {
		return 0, err
	}
	pc.log.Debug("page allocated", "page", pgno, "type", pageType)
	return pgno, nil
}

// FreePage returns a page to the free list for reuse by a later
// AllocatePage call within this or a later write barrier.
func (pc *PageChannel) FreePage(pgno Pgno) {
	pc.freeList = append(pc.freeList, pgno)
	pc.log.Debug("page freed", "page", pgno)
}

// FinishWrite flushes every buffered page to the backing store and makes
// them visible atomically: either all of them land or, on a flush failure,
// the channel is poisoned and none of the in-memory state is trusted again.
func (pc *PageChannel) FinishWrite() error {
	if pc.state != stateWriting {
		return nil
	}
	dirty := pc.cache.dirtyPages()
	for _, p := range dirty {
		if _, err := pc.backing.WriteAt(p.Data, int64(p.Number)*int64(pc.pageSize)); err != nil {
			pc.poison(err)
			return err
		}
	}
	if err := pc.flushHeader(); err != nil {
		pc.poison(err)
		return err
	}
	if err := pc.backing.Sync(); err != nil {
		pc.poison(err)
		return err
	}
	pc.cache.markAllClean()
	pc.undo = nil
	pc.state = stateIdle
	pc.log.Info("write barrier committed", "pages", len(dirty))
	return nil
}

func (pc *PageChannel) flushHeader() error {
	data := pc.header.Serialize()
	padded := make([]byte, pc.pageSize)
	copy(padded, data)
	_, err := pc.backing.WriteAt(padded, 0)
	return err
}

// Abort discards every buffered write in the current barrier and poisons
// the channel: spec.md §5 requires a fatal error to abort the barrier and
// mark the Database poisoned, not merely roll back.
func (pc *PageChannel) Abort(cause error) error {
	if pc.state != stateWriting {
		pc.poison(cause)
		return nil
	}
	pc.cache.discard(pc.undo)
	pc.undo = nil
	pc.poison(cause)
	return nil
}

func (pc *PageChannel) poison(cause error) {
	pc.state = statePoisoned
	pc.err = cause
	pc.log.Warn("page channel poisoned", "cause", cause)
}

// InWriteBarrier reports whether a write barrier is currently open.
func (pc *PageChannel) InWriteBarrier() bool { return pc.state == stateWriting }

// Close releases the backing store.
func (pc *PageChannel) Close() error { return pc.backing.Close() }
