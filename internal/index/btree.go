package index

import (
	"bytes"

	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/jeterrors"
)

// IndexData is an order-preserving B-tree keyed by the caller's
// already-encoded index key bytes (produced by internal/codec). Node
// splits promote the first key of the new right sibling into the parent;
// deletion never merges underfull nodes back together, matching spec.md
// §4.4's relaxed balance requirement.
type IndexData struct {
	channel  *pagestore.PageChannel
	rootPage pagestore.Pgno
	unique   bool
	maxBytes int
}

// Create allocates a fresh, empty index rooted at a new leaf page. The
// channel must have a write barrier open.
func Create(channel *pagestore.PageChannel, unique bool) (*IndexData, error) {
	root, err := channel.AllocatePage(pagestore.PageTypeIndexLeaf)
	if err != nil {
		return nil, err
	}
	idx := newIndexData(channel, root, unique)
	if err := idx.writeLeaf(root, &leafNode{}); err != nil {
		return nil, err
	}
	return idx, nil
}

// Open wraps an existing index rooted at rootPage.
func Open(channel *pagestore.PageChannel, rootPage pagestore.Pgno, unique bool) *IndexData {
	return newIndexData(channel, rootPage, unique)
}

func newIndexData(channel *pagestore.PageChannel, root pagestore.Pgno, unique bool) *IndexData {
	return &IndexData{
		channel:  channel,
		rootPage: root,
		unique:   unique,
		maxBytes: channel.PageSize() - pagestore.ChecksumSize - 16,
	}
}

// RootPage returns the index's root page number, for persisting in the
// owning IndexDef row.
func (idx *IndexData) RootPage() pagestore.Pgno { return idx.rootPage }

func (idx *IndexData) readLeaf(pgno pagestore.Pgno) (*leafNode, error) {
	page, err := idx.channel.ReadPage(pgno)
	if err != nil {
		return nil, err
	}
	return decodeLeaf(page.Data)
}

func (idx *IndexData) writeLeaf(pgno pagestore.Pgno, n *leafNode) error {
	page, err := idx.channel.ReadPage(pgno)
	if err != nil {
		return err
	}
	clone := page.Clone()
	clone.Data = n.encode(idx.channel.PageSize())
	return idx.channel.WritePage(clone)
}

func (idx *IndexData) readInterior(pgno pagestore.Pgno) (*interiorNode, error) {
	page, err := idx.channel.ReadPage(pgno)
	if err != nil {
		return nil, err
	}
	return decodeInterior(page.Data)
}

func (idx *IndexData) writeInterior(pgno pagestore.Pgno, n *interiorNode) error {
	page, err := idx.channel.ReadPage(pgno)
	if err != nil {
		return err
	}
	clone := page.Clone()
	clone.Data = n.encode(idx.channel.PageSize())
	return idx.channel.WritePage(clone)
}

func (idx *IndexData) isLeaf(pgno pagestore.Pgno) (bool, error) {
	page, err := idx.channel.ReadPage(pgno)
	if err != nil {
		return false, err
	}
	return page.Type == pagestore.PageTypeIndexLeaf, nil
}

// pathStep records one interior hop taken while descending to a leaf, so
// Insert can propagate a split back up without re-descending.
type pathStep struct {
	pgno  pagestore.Pgno
	child int // index into entries (or len(entries) for the rightmost slot)
}

// descend walks from the root to the leaf that should contain key,
// recording the interior path taken.
func (idx *IndexData) descend(key []byte) (pagestore.Pgno, []pathStep, error) {
	var path []pathStep
	cur := idx.rootPage
	for {
		leaf, err := idx.isLeaf(cur)
		if err != nil {
			return 0, nil, err
		}
		if leaf {
			return cur, path, nil
		}
		node, err := idx.readInterior(cur)
		if err != nil {
			return 0, nil, err
		}
		i := 0
		for i < len(node.entries) && bytes.Compare(key, node.entries[i].key) >= 0 {
			i++
		}
		var next pagestore.Pgno
		if i == len(node.entries) {
			next = node.rightmost
		} else {
			next = node.entries[i].child
		}
		path = append(path, pathStep{pgno: cur, child: i})
		cur = next
	}
}

// Insert adds (key, row) to the tree, splitting overfull leaves and
// propagating a promoted separator up through any overfull interior
// ancestors. Returns UniquenessViolation if the index is unique and an
// entry with an identical key already exists.
func (idx *IndexData) Insert(key []byte, row RowId) error {
	leafPgno, path, err := idx.descend(key)
	if err != nil {
		return err
	}
	leaf, err := idx.readLeaf(leafPgno)
	if err != nil {
		return err
	}

	pos := 0
	for pos < len(leaf.entries) && bytes.Compare(leaf.entries[pos].key, key) < 0 {
		pos++
	}
	if idx.unique && pos < len(leaf.entries) && bytes.Equal(leaf.entries[pos].key, key) {
		return &jeterrors.UniquenessViolationError{Key: string(key)}
	}
	for pos < len(leaf.entries) && bytes.Equal(leaf.entries[pos].key, key) && leaf.entries[pos].row.Less(row) {
		pos++
	}

	entry := leafEntry{key: append([]byte(nil), key...), row: row}
	leaf.entries = append(leaf.entries, leafEntry{})
	copy(leaf.entries[pos+1:], leaf.entries[pos:])
	leaf.entries[pos] = entry

	if leaf.byteSize() <= idx.maxBytes {
		return idx.writeLeaf(leafPgno, leaf)
	}
	return idx.splitLeaf(leafPgno, leaf, path)
}

func (idx *IndexData) splitLeaf(leafPgno pagestore.Pgno, leaf *leafNode, path []pathStep) error {
	mid := len(leaf.entries) / 2
	left := &leafNode{entries: leaf.entries[:mid], next: 0}
	right := &leafNode{entries: append([]leafEntry(nil), leaf.entries[mid:]...), next: leaf.next}

	rightPgno, err := idx.channel.AllocatePage(pagestore.PageTypeIndexLeaf)
	if err != nil {
		return err
	}
	left.next = rightPgno
	if err := idx.writeLeaf(leafPgno, left); err != nil {
		return err
	}
	if err := idx.writeLeaf(rightPgno, right); err != nil {
		return err
	}

	promoted := append([]byte(nil), right.entries[0].key...)
	return idx.insertIntoParent(path, promoted, rightPgno)
}

// insertIntoParent threads a newly promoted separator (and its right
// child) into the last interior node on path, splitting that node too if
// it overflows, and so on up to the root. An empty path means the split
// node was the root, so a brand-new root is created.
func (idx *IndexData) insertIntoParent(path []pathStep, promoted []byte, rightChild pagestore.Pgno) error {
	if len(path) == 0 {
		return idx.newRoot(promoted, rightChild)
	}
	step := path[len(path)-1]
	node, err := idx.readInterior(step.pgno)
	if err != nil {
		return err
	}

	pos := step.child
	oldLen := len(node.entries)
	var originalChild pagestore.Pgno
	if pos < oldLen {
		originalChild = node.entries[pos].child
	} else {
		originalChild = node.rightmost
	}

	// The split moved the upper half of originalChild's content into
	// rightChild, so the slot that used to point at originalChild now
	// needs two entries: (promoted, originalChild) for the lower half,
	// and the existing separator (or rightmost) repointed at rightChild
	// for the upper half.
	node.entries = append(node.entries, interiorEntry{})
	copy(node.entries[pos+1:oldLen+1], node.entries[pos:oldLen])
	node.entries[pos] = interiorEntry{key: promoted, child: originalChild}
	if pos < oldLen {
		node.entries[pos+1].child = rightChild
	} else {
		node.rightmost = rightChild
	}

	if node.byteSize() <= idx.maxBytes {
		return idx.writeInterior(step.pgno, node)
	}
	return idx.splitInterior(step.pgno, node, path[:len(path)-1])
}

func (idx *IndexData) splitInterior(pgno pagestore.Pgno, node *interiorNode, parentPath []pathStep) error {
	mid := len(node.entries) / 2
	promotedEntry := node.entries[mid]

	left := &interiorNode{entries: node.entries[:mid], rightmost: promotedEntry.child}
	right := &interiorNode{entries: append([]interiorEntry(nil), node.entries[mid+1:]...), rightmost: node.rightmost}

	rightPgno, err := idx.channel.AllocatePage(pagestore.PageTypeIndexNode)
	if err != nil {
		return err
	}
	if err := idx.writeInterior(pgno, left); err != nil {
		return err
	}
	if err := idx.writeInterior(rightPgno, right); err != nil {
		return err
	}
	return idx.insertIntoParent(parentPath, promotedEntry.key, rightPgno)
}

func (idx *IndexData) newRoot(promoted []byte, rightChild pagestore.Pgno) error {
	oldRoot := idx.rootPage
	newRootPgno, err := idx.channel.AllocatePage(pagestore.PageTypeIndexNode)
	if err != nil {
		return err
	}
	root := &interiorNode{
		entries:   []interiorEntry{{key: promoted, child: oldRoot}},
		rightmost: rightChild,
	}
	if err := idx.writeInterior(newRootPgno, root); err != nil {
		return err
	}
	idx.rootPage = newRootPgno
	return nil
}

// Delete removes the (key, row) entry if present. No rebalance or merge
// is performed on underflow, matching spec.md §4.4.
func (idx *IndexData) Delete(key []byte, row RowId) error {
	leafPgno, _, err := idx.descend(key)
	if err != nil {
		return err
	}
	leaf, err := idx.readLeaf(leafPgno)
	if err != nil {
		return err
	}
	for i, e := range leaf.entries {
		if bytes.Equal(e.key, key) && e.row.Equal(row) {
			leaf.entries = append(leaf.entries[:i], leaf.entries[i+1:]...)
			return idx.writeLeaf(leafPgno, leaf)
		}
	}
	return nil
}

// FindFirstRowByEntry returns the first (lowest-ordered) row whose key
// equals key exactly.
func (idx *IndexData) FindFirstRowByEntry(key []byte) (RowId, bool, error) {
	leafPgno, _, err := idx.descend(key)
	if err != nil {
		return RowId{}, false, err
	}
	leaf, err := idx.readLeaf(leafPgno)
	if err != nil {
		return RowId{}, false, err
	}
	for _, e := range leaf.entries {
		if bytes.Equal(e.key, key) {
			return e.row, true, nil
		}
	}
	return RowId{}, false, nil
}

// FindClosestRowByEntry returns the first entry whose key is
// greater-than-or-equal to key, walking forward across leaf boundaries if
// the starting leaf has none. This is what partial-key (prefix) lookups
// use: prefix bytes sort immediately before any key that extends them.
func (idx *IndexData) FindClosestRowByEntry(key []byte) (foundKey []byte, row RowId, ok bool, err error) {
	leafPgno, _, err := idx.descend(key)
	if err != nil {
		return nil, RowId{}, false, err
	}
	for leafPgno != 0 {
		leaf, err := idx.readLeaf(leafPgno)
		if err != nil {
			return nil, RowId{}, false, err
		}
		for _, e := range leaf.entries {
			if bytes.Compare(e.key, key) >= 0 {
				return e.key, e.row, true, nil
			}
		}
		leafPgno = leaf.next
	}
	return nil, RowId{}, false, nil
}

// firstLeaf returns the leftmost leaf page, the entry point for a
// forward full-index scan.
func (idx *IndexData) firstLeaf() (pagestore.Pgno, error) {
	cur := idx.rootPage
	for {
		leaf, err := idx.isLeaf(cur)
		if err != nil {
			return 0, err
		}
		if leaf {
			return cur, nil
		}
		node, err := idx.readInterior(cur)
		if err != nil {
			return 0, err
		}
		if len(node.entries) == 0 {
			cur = node.rightmost
			continue
		}
		cur = node.entries[0].child
	}
}
