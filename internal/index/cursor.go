package index

import (
	"bytes"

	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/jeterrors"
)

// CursorState is the IndexCursor state machine spec.md §4.4 describes:
// BeforeFirst and AfterLast bracket the ordered sequence, OnRow sits at a
// live entry, and DeletedRow marks a cursor whose current entry was
// removed out from under it (by Delete or a savepoint restore that can no
// longer find the original row).
type CursorState int

const (
	BeforeFirst CursorState = iota
	OnRow
	AfterLast
	DeletedRow
)

// Cursor walks an IndexData's entries in key order, forward or backward.
type Cursor struct {
	idx       *IndexData
	ascending bool

	state CursorState
	leaf  pagestore.Pgno
	entry int
	key   []byte
	row   RowId
}

// NewCursor returns a cursor over idx positioned BeforeFirst.
func NewCursor(idx *IndexData, ascending bool) *Cursor {
	return &Cursor{idx: idx, ascending: ascending, state: BeforeFirst}
}

// State reports the cursor's current state.
func (c *Cursor) State() CursorState { return c.state }

// Current returns the entry the cursor sits on. ok is false unless State
// is OnRow.
func (c *Cursor) Current() (key []byte, row RowId, ok bool) {
	if c.state != OnRow {
		return nil, RowId{}, false
	}
	return c.key, c.row, true
}

func (c *Cursor) loadLeaf(pgno pagestore.Pgno) (*leafNode, error) {
	return c.idx.readLeaf(pgno)
}

// First positions the cursor at the lowest-keyed entry.
func (c *Cursor) First() error {
	leafPgno, err := c.idx.firstLeaf()
	if err != nil {
		return err
	}
	for leafPgno != 0 {
		leaf, err := c.loadLeaf(leafPgno)
		if err != nil {
			return err
		}
		if len(leaf.entries) > 0 {
			c.setPosition(leafPgno, 0, leaf.entries[0])
			return nil
		}
		leafPgno = leaf.next
	}
	c.state = AfterLast
	return nil
}

// Last positions the cursor at the highest-keyed entry.
func (c *Cursor) Last() error {
	leafPgno, err := c.idx.firstLeaf()
	if err != nil {
		return err
	}
	var lastNonEmpty pagestore.Pgno
	var lastNode *leafNode
	for leafPgno != 0 {
		leaf, err := c.loadLeaf(leafPgno)
		if err != nil {
			return err
		}
		if len(leaf.entries) > 0 {
			lastNonEmpty = leafPgno
			lastNode = leaf
		}
		leafPgno = leaf.next
	}
	if lastNode == nil {
		c.state = BeforeFirst
		return nil
	}
	i := len(lastNode.entries) - 1
	c.setPosition(lastNonEmpty, i, lastNode.entries[i])
	return nil
}

// Seek positions the cursor at the first entry whose key is
// greater-than-or-equal to key (a full or partial/prefix key), the
// operation both exact lookups and partial-key scans use.
func (c *Cursor) Seek(key []byte) error {
	foundKey, row, ok, err := c.idx.FindClosestRowByEntry(key)
	if err != nil {
		return err
	}
	if !ok {
		c.state = AfterLast
		return nil
	}
	leafPgno, _, err := c.idx.descend(foundKey)
	if err != nil {
		return err
	}
	leaf, err := c.loadLeaf(leafPgno)
	if err != nil {
		return err
	}
	for i, e := range leaf.entries {
		if bytes.Equal(e.key, foundKey) && e.row.Equal(row) {
			c.setPosition(leafPgno, i, e)
			return nil
		}
	}
	c.state = AfterLast
	return nil
}

func (c *Cursor) setPosition(leaf pagestore.Pgno, entry int, e leafEntry) {
	c.leaf = leaf
	c.entry = entry
	c.key = e.key
	c.row = e.row
	c.state = OnRow
}

// Next advances the cursor one entry forward in key order.
func (c *Cursor) Next() error {
	if c.state == BeforeFirst {
		return c.First()
	}
	if c.state != OnRow {
		return nil
	}
	leaf, err := c.loadLeaf(c.leaf)
	if err != nil {
		return err
	}
	if c.entry+1 < len(leaf.entries) {
		c.setPosition(c.leaf, c.entry+1, leaf.entries[c.entry+1])
		return nil
	}
	next := leaf.next
	for next != 0 {
		nl, err := c.loadLeaf(next)
		if err != nil {
			return err
		}
		if len(nl.entries) > 0 {
			c.setPosition(next, 0, nl.entries[0])
			return nil
		}
		next = nl.next
	}
	c.state = AfterLast
	return nil
}

// Prev moves the cursor one entry backward in key order. Implemented as a
// linear rescan from First since leaf pages only carry a forward link;
// spec.md does not require O(1) backward stepping.
func (c *Cursor) Prev() error {
	if c.state == AfterLast {
		return c.Last()
	}
	if c.state != OnRow {
		return nil
	}
	target := append([]byte(nil), c.key...)
	targetRow := c.row

	var prevLeaf pagestore.Pgno
	var prevEntry int
	var prevE leafEntry
	found := false

	leafPgno, err := c.idx.firstLeaf()
	if err != nil {
		return err
	}
	for leafPgno != 0 {
		leaf, err := c.loadLeaf(leafPgno)
		if err != nil {
			return err
		}
		for i, e := range leaf.entries {
			if bytes.Equal(e.key, target) && e.row.Equal(targetRow) {
				if found {
					c.setPosition(prevLeaf, prevEntry, prevE)
					return nil
				}
				c.state = BeforeFirst
				return nil
			}
			prevLeaf, prevEntry, prevE = leafPgno, i, e
			found = true
		}
		leafPgno = leaf.next
	}
	c.state = BeforeFirst
	return nil
}

// Savepoint is a restorable cursor position: the node and entry index it
// last sat at, plus the key it was positioned on, so a restore can
// re-search if the tree has since split or shrunk around that location
// (spec.md §4.4/§5).
type Savepoint struct {
	node  pagestore.Pgno
	entry int
	key   []byte
	row   RowId
	valid bool
}

// Save captures the cursor's current position.
func (c *Cursor) Save() Savepoint {
	if c.state != OnRow {
		return Savepoint{valid: false}
	}
	return Savepoint{node: c.leaf, entry: c.entry, key: append([]byte(nil), c.key...), row: c.row, valid: true}
}

// Restore re-positions the cursor from a savepoint by re-searching for its
// key and row rather than trusting the recorded node/entry index, since a
// split or deletion may have moved the entry since the savepoint was
// taken. If the exact (key, row) pair can no longer be found, the cursor
// enters DeletedRow rather than erroring, matching spec.md §4.4's
// DeletedRow substate. Restoring a savepoint that was never validly
// captured is a SavepointMismatch.
func (c *Cursor) Restore(sp Savepoint) error {
	if !sp.valid {
		return &jeterrors.SavepointMismatchError{}
	}
	leafPgno, _, err := c.idx.descend(sp.key)
	if err != nil {
		return err
	}
	for leafPgno != 0 {
		leaf, err := c.loadLeaf(leafPgno)
		if err != nil {
			return err
		}
		for i, e := range leaf.entries {
			if bytes.Equal(e.key, sp.key) && e.row.Equal(sp.row) {
				c.setPosition(leafPgno, i, e)
				return nil
			}
		}
		if len(leaf.entries) > 0 && bytes.Compare(leaf.entries[len(leaf.entries)-1].key, sp.key) > 0 {
			break
		}
		leafPgno = leaf.next
	}
	c.key = sp.key
	c.row = sp.row
	c.state = DeletedRow
	return nil
}
