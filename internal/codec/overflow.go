package codec

import (
	"encoding/binary"

	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/jeterrors"
)

// Overflow markers prefix a Memo/OLE column's stored bytes: spec.md §4.3
// allows a value to be kept inline, point at a single overflow page, or
// chain across several. A one-page chain and "single overflow pointer" are
// therefore the same on-disk shape; the chain link is simply nil.
const (
	overflowInline byte = 0x00
	overflowLinked byte = 0x01
)

const overflowPageHeaderSize = 9 // type tag (1) + next pgno (4) + payload len (4)

// EncodeOverflow stores data either inline (if it fits inlineLimit) or
// across a freshly allocated chain of pages, returning the bytes to place
// in the row's variable region. The channel must already have a write
// barrier open.
func EncodeOverflow(channel *pagestore.PageChannel, data []byte, inlineLimit int) ([]byte, error) {
	if len(data) <= inlineLimit {
		out := make([]byte, 1+len(data))
		out[0] = overflowInline
		copy(out[1:], data)
		return out, nil
	}

	first, err := writeOverflowChain(channel, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 9)
	out[0] = overflowLinked
	binary.LittleEndian.PutUint32(out[1:], uint32(first))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(data)))
	return out, nil
}

func writeOverflowChain(channel *pagestore.PageChannel, data []byte) (pagestore.Pgno, error) {
	payloadCap := channel.PageSize() - overflowPageHeaderSize - pagestore.ChecksumSize
	if payloadCap <= 0 {
		return 0, jeterrors.Wrap(jeterrors.ErrCorruptFile, "page too small to hold any overflow payload")
	}

	var pages []pagestore.Pgno
	for off := 0; off < len(data); off += payloadCap {
		end := off + payloadCap
		if end > len(data) {
			end = len(data)
		}
		pgno, err := channel.AllocatePage(pagestore.PageTypeData)
		if err != nil {
			return 0, err
		}
		pages = append(pages, pgno)
		if err := writeOverflowPage(channel, pgno, data[off:end], 0); err != nil {
			return 0, err
		}
	}
	// Link pages in order, last to first, now that every page number is
	// known.
	for i := len(pages) - 2; i >= 0; i-- {
		page, err := channel.ReadPage(pages[i])
		if err != nil {
			return 0, err
		}
		clone := page.Clone()
		binary.LittleEndian.PutUint32(clone.Data[1:], uint32(pages[i+1]))
		if err := channel.WritePage(clone); err != nil {
			return 0, err
		}
	}
	return pages[0], nil
}

func writeOverflowPage(channel *pagestore.PageChannel, pgno pagestore.Pgno, chunk []byte, next pagestore.Pgno) error {
	page, err := channel.ReadPage(pgno)
	if err != nil {
		return err
	}
	clone := page.Clone()
	binary.LittleEndian.PutUint32(clone.Data[1:], uint32(next))
	binary.LittleEndian.PutUint32(clone.Data[5:], uint32(len(chunk)))
	clone.PutAt(overflowPageHeaderSize, chunk)
	return channel.WritePage(clone)
}

// WriteChainFrom writes data as a page chain anchored at root, a page the
// caller has already allocated, allocating further DATA pages as needed to
// hold the rest. It serves a caller that needs a chain anchored at a page
// number fixed ahead of time rather than one EncodeOverflow allocates
// fresh.
func WriteChainFrom(channel *pagestore.PageChannel, root pagestore.Pgno, data []byte) error {
	payloadCap := channel.PageSize() - overflowPageHeaderSize - pagestore.ChecksumSize
	if payloadCap <= 0 {
		return jeterrors.Wrap(jeterrors.ErrCorruptFile, "page too small to hold any overflow payload")
	}
	pages := []pagestore.Pgno{root}
	for off := payloadCap; off < len(data); off += payloadCap {
		pgno, err := channel.AllocatePage(pagestore.PageTypeData)
		if err != nil {
			return err
		}
		pages = append(pages, pgno)
	}
	for i, pgno := range pages {
		start := i * payloadCap
		if start > len(data) {
			start = len(data)
		}
		end := start + payloadCap
		if end > len(data) {
			end = len(data)
		}
		var next pagestore.Pgno
		if i+1 < len(pages) {
			next = pages[i+1]
		}
		if err := writeOverflowPage(channel, pgno, data[start:end], next); err != nil {
			return err
		}
	}
	return nil
}

// ReadChainFrom reverses WriteChainFrom, following next-page links until
// the chain terminates.
func ReadChainFrom(channel *pagestore.PageChannel, root pagestore.Pgno) ([]byte, error) {
	var out []byte
	pgno := root
	for pgno != 0 {
		page, err := channel.ReadPage(pgno)
		if err != nil {
			return nil, err
		}
		next := pagestore.Pgno(binary.LittleEndian.Uint32(page.Data[1:]))
		length := int(binary.LittleEndian.Uint32(page.Data[5:]))
		if overflowPageHeaderSize+length > len(page.Data) {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "chain page length exceeds page size")
		}
		out = append(out, page.Data[overflowPageHeaderSize:overflowPageHeaderSize+length]...)
		pgno = next
	}
	return out, nil
}

// DecodeOverflow reverses EncodeOverflow, following the chain if necessary.
func DecodeOverflow(channel *pagestore.PageChannel, stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "empty overflow descriptor")
	}
	switch stored[0] {
	case overflowInline:
		return append([]byte(nil), stored[1:]...), nil
	case overflowLinked:
		if len(stored) < 9 {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "truncated overflow pointer")
		}
		pgno := pagestore.Pgno(binary.LittleEndian.Uint32(stored[1:]))
		total := int(binary.LittleEndian.Uint32(stored[5:]))
		out := make([]byte, 0, total)
		for pgno != 0 && len(out) < total {
			page, err := channel.ReadPage(pgno)
			if err != nil {
				return nil, err
			}
			next := pagestore.Pgno(binary.LittleEndian.Uint32(page.Data[1:]))
			length := int(binary.LittleEndian.Uint32(page.Data[5:]))
			if overflowPageHeaderSize+length > len(page.Data) {
				return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "overflow page length exceeds page size")
			}
			out = append(out, page.Data[overflowPageHeaderSize:overflowPageHeaderSize+length]...)
			pgno = next
		}
		return out, nil
	default:
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "unrecognized overflow marker")
	}
}
