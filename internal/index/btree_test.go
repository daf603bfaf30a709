package index

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/jeterrors"
)

func newChannel(t *testing.T) *pagestore.PageChannel {
	t.Helper()
	pc, err := pagestore.Create(pagestore.NewMemoryBacking(), pagestore.Jet3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return pc
}

func keyFor(n int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n)^0x80000000)
	return b
}

// TestForwardAndBackwardOrdering mirrors the S1 scenario: ids inserted out
// of order must iterate in ascending order forward and descending order
// backward.
func TestForwardAndBackwardOrdering(t *testing.T) {
	pc := newChannel(t)
	idx, err := Create(pc, true)
	if err != nil {
		t.Fatalf("Create index: %v", err)
	}
	ids := []int{3, 7, 6, 1, 2}
	for _, id := range ids {
		if err := idx.Insert(keyFor(id), RowId{Page: pagestore.Pgno(id), Slot: 0}); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}

	cur := NewCursor(idx, true)
	var forward []int
	for err := cur.First(); cur.State() == OnRow; err = cur.Next() {
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		_, row, _ := cur.Current()
		forward = append(forward, int(row.Page))
	}
	want := []int{1, 2, 3, 6, 7}
	if len(forward) != len(want) {
		t.Fatalf("forward = %v, want %v", forward, want)
	}
	for i := range want {
		if forward[i] != want[i] {
			t.Errorf("forward[%d] = %d, want %d", i, forward[i], want[i])
		}
	}

	cur2 := NewCursor(idx, true)
	var backward []int
	for err := cur2.Last(); cur2.State() == OnRow; err = cur2.Prev() {
		if err != nil {
			t.Fatalf("Prev: %v", err)
		}
		_, row, _ := cur2.Current()
		backward = append(backward, int(row.Page))
	}
	wantBack := []int{7, 6, 3, 2, 1}
	if len(backward) != len(wantBack) {
		t.Fatalf("backward = %v, want %v", backward, wantBack)
	}
	for i := range wantBack {
		if backward[i] != wantBack[i] {
			t.Errorf("backward[%d] = %d, want %d", i, backward[i], wantBack[i])
		}
	}
}

func TestUniqueIndexRejectsDuplicateKey(t *testing.T) {
	pc := newChannel(t)
	idx, err := Create(pc, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := idx.Insert(keyFor(1), RowId{Page: 10}); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	err = idx.Insert(keyFor(1), RowId{Page: 20})
	if err == nil {
		t.Fatal("expected uniqueness violation")
	}
	if !jeterrors.Is(err, jeterrors.ErrUniquenessViolation) {
		t.Errorf("got %v, want UniquenessViolation", err)
	}
}

func TestSplitAcrossManyInserts(t *testing.T) {
	pc := newChannel(t)
	idx, err := Create(pc, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	const n = 500
	for i := 0; i < n; i++ {
		if err := idx.Insert(keyFor(i), RowId{Page: pagestore.Pgno(i + 1)}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	cur := NewCursor(idx, true)
	count := 0
	prev := []byte(nil)
	for err := cur.First(); cur.State() == OnRow; err = cur.Next() {
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		key, _, _ := cur.Current()
		if prev != nil && bytes.Compare(prev, key) > 0 {
			t.Fatal("keys out of order after split")
		}
		prev = append([]byte(nil), key...)
		count++
	}
	if count != n {
		t.Errorf("scanned %d entries, want %d", count, n)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	pc := newChannel(t)
	idx, err := Create(pc, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	row := RowId{Page: 5}
	if err := idx.Insert(keyFor(5), row); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := idx.Delete(keyFor(5), row); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err := idx.FindFirstRowByEntry(keyFor(5))
	if err != nil {
		t.Fatalf("FindFirstRowByEntry: %v", err)
	}
	if ok {
		t.Error("expected entry to be gone after delete")
	}
}

func TestSavepointRestoreAfterDelete(t *testing.T) {
	pc := newChannel(t)
	idx, err := Create(pc, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := idx.Insert(keyFor(i), RowId{Page: pagestore.Pgno(i + 1)}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	cur := NewCursor(idx, true)
	cur.First()
	cur.Next()
	cur.Next() // sits on key 2
	sp := cur.Save()

	if err := idx.Delete(keyFor(2), RowId{Page: 3}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	cur2 := NewCursor(idx, true)
	if err := cur2.Restore(sp); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if cur2.State() != DeletedRow {
		t.Errorf("State = %v, want DeletedRow", cur2.State())
	}
}

func TestPartialKeyLookup(t *testing.T) {
	pc := newChannel(t)
	idx, err := Create(pc, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Composite keys: prefix byte + full 4-byte key, simulating a
	// multi-column index where the prefix matches several rows.
	for i := 0; i < 10; i++ {
		k := append([]byte{byte(i / 5)}, keyFor(i)...)
		if err := idx.Insert(k, RowId{Page: pagestore.Pgno(i + 1)}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	prefix := []byte{1}
	foundKey, _, ok, err := idx.FindClosestRowByEntry(prefix)
	if err != nil {
		t.Fatalf("FindClosestRowByEntry: %v", err)
	}
	if !ok {
		t.Fatal("expected a match for prefix")
	}
	if foundKey[0] != 1 {
		t.Errorf("matched prefix byte %d, want 1", foundKey[0])
	}
}
