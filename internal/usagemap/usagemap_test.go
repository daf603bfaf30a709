package usagemap

import (
	"testing"

	"github.com/jetfile/jetdb/internal/pagestore"
)

func newChannel(t *testing.T) *pagestore.PageChannel {
	t.Helper()
	backing := pagestore.NewMemoryBacking()
	pc, err := pagestore.Create(backing, pagestore.Jet4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return pc
}

func TestAddContainsRemove(t *testing.T) {
	pc := newChannel(t)
	m := New(pc, 1, 1)

	for _, pgno := range []pagestore.Pgno{1, 5, 9} {
		if err := m.Add(pgno); err != nil {
			t.Fatalf("Add(%d): %v", pgno, err)
		}
	}
	if !m.Contains(5) {
		t.Error("expected 5 to be a member")
	}
	m.Remove(5)
	if m.Contains(5) {
		t.Error("expected 5 to no longer be a member")
	}
	if !m.Contains(9) {
		t.Error("expected 9 to remain a member")
	}
}

func TestPageIteratorIsOrderedAndSnapshot(t *testing.T) {
	pc := newChannel(t)
	m := New(pc, 1, 1)
	for _, pgno := range []pagestore.Pgno{9, 1, 5} {
		if err := m.Add(pgno); err != nil {
			t.Fatalf("Add(%d): %v", pgno, err)
		}
	}
	snap := m.PageIterator()
	want := []pagestore.Pgno{1, 5, 9}
	if len(snap) != len(want) {
		t.Fatalf("PageIterator() = %v, want %v", snap, want)
	}
	for i := range want {
		if snap[i] != want[i] {
			t.Errorf("PageIterator()[%d] = %d, want %d", i, snap[i], want[i])
		}
	}

	if err := m.Add(3); err != nil {
		t.Fatalf("Add(3): %v", err)
	}
	if len(snap) != 3 {
		t.Error("earlier snapshot should not observe a later Add")
	}
}

func TestPromotionOnOverflow(t *testing.T) {
	pc := newChannel(t)
	m := New(pc, 1, 1)
	if m.Encoding() != Inline {
		t.Fatal("expected new UsageMap to start Inline")
	}

	huge := pagestore.Pgno(1 + inlineCapacityBits(pc.PageSize())*2)
	if err := m.Add(huge); err != nil {
		t.Fatalf("Add(%d): %v", huge, err)
	}
	if m.Encoding() != Reference {
		t.Error("expected promotion to Reference encoding")
	}
	if !m.Contains(huge) {
		t.Error("expected member added during promotion to remain a member")
	}
}

func TestBestFit(t *testing.T) {
	pc := newChannel(t)
	m := New(pc, 1, 1)
	m.Add(1)
	m.Add(2)
	m.SetFreeSpace(1, 50)
	m.SetFreeSpace(2, 200)

	pgno, ok := m.BestFit(100)
	if !ok {
		t.Fatal("expected a fit for 100 bytes")
	}
	if pgno != 2 {
		t.Errorf("BestFit(100) = %d, want 2", pgno)
	}

	if _, ok := m.BestFit(1000); ok {
		t.Error("expected no fit for 1000 bytes")
	}
}
