package jetdb

import (
	"bytes"
	"testing"
	"time"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/complexvalue"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/jeterrors"
)

func newDocsTable(t *testing.T, db *Database) *Table {
	t.Helper()
	tbl, err := db.CreateTable("docs", []table.ColumnDef{
		{Name: "id", Type: codec.Long},
		{Name: "attachments", Type: codec.ComplexForeignKey},
	})
	if err != nil {
		t.Fatalf("CreateTable(docs): %v", err)
	}
	return tbl
}

// TestAttachmentRoundTrip is S4: a small attachment round-trips stored
// raw (flag 00 00 00 00); one at or above the compression threshold
// round-trips through DEFLATE (flag 01 00 00 00), and GetAttachment
// returns byte-identical data either way.
func TestAttachmentRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	newDocsTable(t, db)

	col, err := db.RegisterComplexColumn(complexvalue.Column{
		ParentTable: "docs",
		ColumnName:  "attachments",
		Kind:        complexvalue.KindAttachment,
	})
	if err != nil {
		t.Fatalf("RegisterComplexColumn: %v", err)
	}

	groupID := db.NextComplexGroupID(col)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	small := []byte("hi")
	rowID, err := db.AddAttachment(col, groupID, "file://small", "small.txt", "text/plain", small, now)
	if err != nil {
		t.Fatalf("AddAttachment(small): %v", err)
	}
	got, err := db.GetAttachment(col, rowID)
	if err != nil {
		t.Fatalf("GetAttachment(small): %v", err)
	}
	if !bytes.Equal(got.FileData, small) {
		t.Errorf("small FileData = %v, want %v", got.FileData, small)
	}
	if got.FileName != "small.txt" || got.FileType != "text/plain" || got.FileURL != "file://small" {
		t.Errorf("small attachment metadata = %+v", got)
	}

	large := bytes.Repeat([]byte("payload-bytes-"), 64)
	rowID2, err := db.AddAttachment(col, groupID, "file://large", "large.bin", "application/octet-stream", large, now)
	if err != nil {
		t.Fatalf("AddAttachment(large): %v", err)
	}
	got2, err := db.GetAttachment(col, rowID2)
	if err != nil {
		t.Fatalf("GetAttachment(large): %v", err)
	}
	if !bytes.Equal(got2.FileData, large) {
		t.Errorf("large FileData round-trip mismatch, got %d bytes want %d", len(got2.FileData), len(large))
	}

	all, err := db.ListAttachments(col, groupID)
	if err != nil {
		t.Fatalf("ListAttachments: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListAttachments returned %d entries, want 2", len(all))
	}

	if err := db.RemoveAttachment(col, rowID); err != nil {
		t.Fatalf("RemoveAttachment: %v", err)
	}
	remaining, err := db.ListAttachments(col, groupID)
	if err != nil {
		t.Fatalf("ListAttachments after remove: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("remaining attachments = %d, want 1", len(remaining))
	}
}

// TestVersionHistoryOrderingAndImmutability is S5: versions list newest
// first by modified date, and neither UpdateVersion nor DeleteVersion is
// permitted once a version is written.
func TestVersionHistoryOrderingAndImmutability(t *testing.T) {
	db := newTestDatabase(t)
	if _, err := db.CreateTable("notes", []table.ColumnDef{
		{Name: "id", Type: codec.Long},
		{Name: "history", Type: codec.ComplexForeignKey},
	}); err != nil {
		t.Fatalf("CreateTable(notes): %v", err)
	}

	col, err := db.RegisterComplexColumn(complexvalue.Column{
		ParentTable: "notes",
		ColumnName:  "history",
		Kind:        complexvalue.KindVersionHistory,
	})
	if err != nil {
		t.Fatalf("RegisterComplexColumn: %v", err)
	}

	groupID := db.NextComplexGroupID(col)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)

	if _, err := db.AddVersion(col, groupID, "draft one", t0); err != nil {
		t.Fatalf("AddVersion(t0): %v", err)
	}
	if _, err := db.AddVersion(col, groupID, "draft two", t1); err != nil {
		t.Fatalf("AddVersion(t1): %v", err)
	}
	rowID3, err := db.AddVersion(col, groupID, "final", t2)
	if err != nil {
		t.Fatalf("AddVersion(t2): %v", err)
	}

	versions, err := db.ListVersions(col, groupID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("ListVersions returned %d entries, want 3", len(versions))
	}
	want := []string{"final", "draft two", "draft one"}
	for i, v := range versions {
		if v.Value != want[i] {
			t.Errorf("versions[%d] = %q, want %q", i, v.Value, want[i])
		}
	}

	engine := db.complex
	if err := engine.UpdateVersion(col, rowID3, map[string]any{"value": "tampered"}); err == nil {
		t.Fatal("expected UpdateVersion to fail on an immutable version")
	} else {
		var ve *jeterrors.VersionImmutableError
		if !jeterrors.As(err, &ve) {
			t.Errorf("UpdateVersion err = %v (%T), want *VersionImmutableError", err, err)
		}
	}
	if err := engine.DeleteVersion(col, rowID3); err == nil {
		t.Fatal("expected DeleteVersion to fail on an immutable version")
	}
}
