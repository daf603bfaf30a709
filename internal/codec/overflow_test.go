package codec

import (
	"bytes"
	"testing"

	"github.com/jetfile/jetdb/internal/pagestore"
)

func TestOverflowInline(t *testing.T) {
	backing := pagestore.NewMemoryBacking()
	pc, err := pagestore.Create(backing, pagestore.Jet4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	small := []byte("short value")
	stored, err := EncodeOverflow(pc, small, 64)
	if err != nil {
		t.Fatalf("EncodeOverflow: %v", err)
	}
	if stored[0] != overflowInline {
		t.Fatal("expected inline marker for small value")
	}
	got, err := DecodeOverflow(pc, stored)
	if err != nil {
		t.Fatalf("DecodeOverflow: %v", err)
	}
	if !bytes.Equal(got, small) {
		t.Errorf("DecodeOverflow = %q, want %q", got, small)
	}
}

func TestOverflowChainRoundTrip(t *testing.T) {
	backing := pagestore.NewMemoryBacking()
	pc, err := pagestore.Create(backing, pagestore.Jet4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	large := bytes.Repeat([]byte("0123456789"), 2000) // forces a multi-page chain
	stored, err := EncodeOverflow(pc, large, 64)
	if err != nil {
		t.Fatalf("EncodeOverflow: %v", err)
	}
	if stored[0] != overflowLinked {
		t.Fatal("expected linked marker for large value")
	}
	if err := pc.FinishWrite(); err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}

	got, err := DecodeOverflow(pc, stored)
	if err != nil {
		t.Fatalf("DecodeOverflow: %v", err)
	}
	if !bytes.Equal(got, large) {
		t.Error("DecodeOverflow did not reproduce the original bytes")
	}
}
