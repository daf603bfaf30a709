package table

import (
	"testing"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/pagestore"
)

func newChannel(t *testing.T) *pagestore.PageChannel {
	t.Helper()
	pc, err := pagestore.Create(pagestore.NewMemoryBacking(), pagestore.Jet4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return pc
}

func sampleColumns() []ColumnDef {
	return []ColumnDef{
		{Name: "id", Type: codec.Long},
		{Name: "name", Type: codec.TextVariable},
		{Name: "score", Type: codec.Double, Nullable: true},
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	pc := newChannel(t)
	tbl, err := New(pc, "people", sampleColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rowID, err := tbl.Insert(map[string]any{"id": int64(1), "name": "Ada", "score": 99.5})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok, err := tbl.Get(rowID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected row to exist")
	}
	if got["id"] != int64(1) || got["name"] != "Ada" || got["score"] != 99.5 {
		t.Errorf("Get = %v", got)
	}
}

func TestInsertWithNullColumn(t *testing.T) {
	pc := newChannel(t)
	tbl, err := New(pc, "people", sampleColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rowID, err := tbl.Insert(map[string]any{"id": int64(2), "name": "Bob"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok, err := tbl.Get(rowID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected row to exist")
	}
	if _, present := got["score"]; present {
		t.Errorf("expected score to be absent (null), got %v", got["score"])
	}
	if got["name"] != "Bob" {
		t.Errorf("name = %v, want Bob", got["name"])
	}
}

func TestUpdateKeepsSameRowId(t *testing.T) {
	pc := newChannel(t)
	tbl, err := New(pc, "people", sampleColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rowID, err := tbl.Insert(map[string]any{"id": int64(3), "name": "Cy", "score": 1.0})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tbl.Update(rowID, map[string]any{"id": int64(3), "name": "Cy Updated With A Much Longer Name Than Before", "score": 2.0}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, ok, err := tbl.Get(rowID)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if !ok {
		t.Fatal("expected row to still exist at same RowId")
	}
	if got["name"] != "Cy Updated With A Much Longer Name Than Before" {
		t.Errorf("name = %v", got["name"])
	}
}

func TestDeleteTombstones(t *testing.T) {
	pc := newChannel(t)
	tbl, err := New(pc, "people", sampleColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rowID, err := tbl.Insert(map[string]any{"id": int64(4), "name": "Dee"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tbl.Delete(rowID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err := tbl.Get(rowID)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if ok {
		t.Error("expected row to be gone after delete")
	}
}

func TestCursorScansAllRows(t *testing.T) {
	pc := newChannel(t)
	tbl, err := New(pc, "people", sampleColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := tbl.Insert(map[string]any{"id": int64(i), "name": "row"}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	cur := NewCursor(tbl, nil)
	count := 0
	for {
		ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 20 {
		t.Errorf("scanned %d rows, want 20", count)
	}
}

func TestCursorMatchFilter(t *testing.T) {
	pc := newChannel(t)
	tbl, err := New(pc, "people", sampleColumns())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tbl.Insert(map[string]any{"id": int64(1), "name": "keep"})
	tbl.Insert(map[string]any{"id": int64(2), "name": "skip"})

	cur := NewCursor(tbl, func(v map[string]any) bool { return v["name"] == "keep" })
	ok, err := cur.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected one matching row")
	}
	values, _, _ := cur.Current()
	if values["name"] != "keep" {
		t.Errorf("matched row = %v", values)
	}
	ok, err = cur.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Error("expected no further matches")
	}
}
