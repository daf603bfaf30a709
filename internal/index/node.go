package index

import (
	"bytes"
	"encoding/binary"

	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/jeterrors"
)

// nodeHeaderSize is the fixed prefix every index page carries before its
// entries: type tag (1), a side-link field whose meaning depends on the
// tag (4), entry count (2).
const nodeHeaderSize = 7

// leafEntry is one (key, row) pair stored in a leaf page, in ascending
// key order.
type leafEntry struct {
	key []byte
	row RowId
}

// interiorEntry pairs a separator key with the left child whose subtree
// holds every key less than the separator.
type interiorEntry struct {
	key   []byte
	child pagestore.Pgno
}

// leafNode is a leaf page's decoded form. next chains to the following
// leaf in key order, or 0 for the last leaf, giving the cursor a cheap
// ordered-scan path without re-descending the tree.
type leafNode struct {
	entries []leafEntry
	next    pagestore.Pgno
}

// interiorNode is an interior page's decoded form: len(entries) separator
// keys plus one further "rightmost" child covering every key greater than
// or equal to the last separator.
type interiorNode struct {
	entries   []interiorEntry
	rightmost pagestore.Pgno
}

func decodeLeaf(data []byte) (*leafNode, error) {
	if len(data) < nodeHeaderSize {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "index leaf page truncated")
	}
	next := pagestore.Pgno(binary.LittleEndian.Uint32(data[1:5]))
	count := int(binary.LittleEndian.Uint16(data[5:7]))
	n := &leafNode{next: next}
	off := nodeHeaderSize
	for i := 0; i < count; i++ {
		if off+2 > len(data) {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "index leaf entry truncated")
		}
		keyLen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if off+keyLen+6 > len(data) {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "index leaf entry truncated")
		}
		key := append([]byte(nil), data[off:off+keyLen]...)
		off += keyLen
		page := pagestore.Pgno(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		slot := binary.LittleEndian.Uint16(data[off:])
		off += 2
		n.entries = append(n.entries, leafEntry{key: key, row: RowId{Page: page, Slot: slot}})
	}
	return n, nil
}

func (n *leafNode) encode(pageSize int) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(pagestore.PageTypeIndexLeaf)
	var hdr [6]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(n.next))
	binary.LittleEndian.PutUint16(hdr[4:], uint16(len(n.entries)))
	buf.Write(hdr[:])
	for _, e := range n.entries {
		var klen [2]byte
		binary.LittleEndian.PutUint16(klen[:], uint16(len(e.key)))
		buf.Write(klen[:])
		buf.Write(e.key)
		var tail [6]byte
		binary.LittleEndian.PutUint32(tail[0:], uint32(e.row.Page))
		binary.LittleEndian.PutUint16(tail[4:], e.row.Slot)
		buf.Write(tail[:])
	}
	out := make([]byte, pageSize)
	copy(out, buf.Bytes())
	return out
}

func decodeInterior(data []byte) (*interiorNode, error) {
	if len(data) < nodeHeaderSize {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "index interior page truncated")
	}
	rightmost := pagestore.Pgno(binary.LittleEndian.Uint32(data[1:5]))
	count := int(binary.LittleEndian.Uint16(data[5:7]))
	n := &interiorNode{rightmost: rightmost}
	off := nodeHeaderSize
	for i := 0; i < count; i++ {
		if off+4+2 > len(data) {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "index interior entry truncated")
		}
		child := pagestore.Pgno(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		keyLen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if off+keyLen > len(data) {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "index interior entry truncated")
		}
		key := append([]byte(nil), data[off:off+keyLen]...)
		off += keyLen
		n.entries = append(n.entries, interiorEntry{key: key, child: child})
	}
	return n, nil
}

func (n *interiorNode) encode(pageSize int) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(pagestore.PageTypeIndexNode)
	var hdr [6]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(n.rightmost))
	binary.LittleEndian.PutUint16(hdr[4:], uint16(len(n.entries)))
	buf.Write(hdr[:])
	for _, e := range n.entries {
		var child [4]byte
		binary.LittleEndian.PutUint32(child[:], uint32(e.child))
		buf.Write(child[:])
		var klen [2]byte
		binary.LittleEndian.PutUint16(klen[:], uint16(len(e.key)))
		buf.Write(klen[:])
		buf.Write(e.key)
	}
	out := make([]byte, pageSize)
	copy(out, buf.Bytes())
	return out
}

func (n *leafNode) byteSize() int {
	size := nodeHeaderSize
	for _, e := range n.entries {
		size += 2 + len(e.key) + 6
	}
	return size
}

func (n *interiorNode) byteSize() int {
	size := nodeHeaderSize
	for _, e := range n.entries {
		size += 4 + 2 + len(e.key)
	}
	return size
}
