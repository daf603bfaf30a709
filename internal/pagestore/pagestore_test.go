package pagestore

import (
	"errors"
	"testing"

	"github.com/jetfile/jetdb/jeterrors"
)

func TestCreateAndReopen(t *testing.T) {
	backing := NewMemoryBacking()
	pc, err := Create(backing, Jet4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := pc.FinishWrite(); err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}

	reopened, err := Open(backing)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.Header().Version != Jet4 {
		t.Errorf("Version = %v, want Jet4", reopened.Header().Version)
	}
	if reopened.PageSize() != Jet4.PageSize() {
		t.Errorf("PageSize = %d, want %d", reopened.PageSize(), Jet4.PageSize())
	}
}

func TestWriteBarrierVisibility(t *testing.T) {
	backing := NewMemoryBacking()
	pc, err := Create(backing, Jet4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	pgno, err := pc.AllocatePage(PageTypeData)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	page, err := pc.ReadPage(pgno)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	page.PutAt(1, []byte{0xAB})
	if err := pc.WritePage(page); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := pc.FinishWrite(); err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}

	reopened, err := Open(backing)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := reopened.ReadPage(pgno)
	if err != nil {
		t.Fatalf("ReadPage after reopen: %v", err)
	}
	if got.Data[1] != 0xAB {
		t.Errorf("Data[1] = %x, want 0xAB", got.Data[1])
	}
}

func TestAbortDiscardsBufferedWrites(t *testing.T) {
	backing := NewMemoryBacking()
	pc, err := Create(backing, Jet4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := pc.FinishWrite(); err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}

	if err := pc.StartWrite(); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	pgno, err := pc.AllocatePage(PageTypeData)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	_ = pc.Abort(errors.New("simulated corruption"))

	if _, err := pc.ReadPage(pgno); err == nil {
		t.Error("expected poisoned channel to reject further reads")
	} else if !jeterrors.Is(err, jeterrors.ErrDatabasePoisoned) {
		t.Errorf("expected DatabasePoisoned, got %v", err)
	}
}

func TestChecksumMismatchIsCorruptFile(t *testing.T) {
	backing := NewMemoryBacking()
	pc, err := Create(backing, Jet3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	pgno, err := pc.AllocatePage(PageTypeData)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if err := pc.FinishWrite(); err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}

	corrupt := make([]byte, Jet3.PageSize())
	backing.WriteAt(corrupt, int64(pgno)*int64(Jet3.PageSize()))
	// restore the type tag but leave a stale checksum trailer behind.
	tagged := make([]byte, Jet3.PageSize())
	tagged[0] = PageTypeData
	backing.WriteAt(tagged, int64(pgno)*int64(Jet3.PageSize()))

	fresh, err := Open(backing)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := fresh.ReadPage(pgno); err == nil {
		t.Error("expected checksum mismatch to be reported")
	} else if !jeterrors.Is(err, jeterrors.ErrCorruptFile) {
		t.Errorf("expected CorruptFile, got %v", err)
	}
}
