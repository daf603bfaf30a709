package jetdb

import (
	"testing"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/jeterrors"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := CreateInMemory(CreateOptions{})
	if err != nil {
		t.Fatalf("CreateInMemory: %v", err)
	}
	return db
}

func peopleColumns() []table.ColumnDef {
	return []table.ColumnDef{
		{Name: "id", Type: codec.Long},
		{Name: "name", Type: codec.TextVariable},
	}
}

// TestInsertScanForwardAndBackward is S1: insert five rows, then walk the
// primary-key index forward and backward, expecting ids 1..5 and 5..1.
func TestInsertScanForwardAndBackward(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.CreateTable("people", peopleColumns())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := db.CreateIndex("people", "pk", []string{"id"}, []bool{true}, true, false); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	idx, ok := tbl.Index("pk")
	if !ok {
		t.Fatal("expected pk index to exist")
	}

	for i := int64(1); i <= 5; i++ {
		if _, err := tbl.Insert(Row{"id": i, "name": "row"}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	cur := idx.NewCursor()
	var forward []int64
	for {
		ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		values, _, found, err := cur.Row()
		if err != nil || !found {
			t.Fatalf("Row: found=%v err=%v", found, err)
		}
		forward = append(forward, values["id"].(int64))
	}
	wantForward := []int64{1, 2, 3, 4, 5}
	if !int64SliceEqual(forward, wantForward) {
		t.Errorf("forward scan = %v, want %v", forward, wantForward)
	}

	var backward []int64
	for {
		ok, err := cur.Prev()
		if err != nil {
			t.Fatalf("Prev: %v", err)
		}
		if !ok {
			break
		}
		values, _, found, err := cur.Row()
		if err != nil || !found {
			t.Fatalf("Row: found=%v err=%v", found, err)
		}
		backward = append(backward, values["id"].(int64))
	}
	wantBackward := []int64{5, 4, 3, 2, 1}
	if !int64SliceEqual(backward, wantBackward) {
		t.Errorf("backward scan = %v, want %v", backward, wantBackward)
	}
}

// TestDuplicatePrimaryKeyInsertFails is S2: a second insert under an
// already-used unique key fails with UniquenessViolation and leaves the
// table's row count and index entry count unchanged.
func TestDuplicatePrimaryKeyInsertFails(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.CreateTable("people", peopleColumns())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := db.CreateIndex("people", "pk", []string{"id"}, []bool{true}, true, false); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	if _, err := tbl.Insert(Row{"id": int64(1), "name": "Ada"}); err != nil {
		t.Fatalf("first Insert: %v", err)
	}

	_, err = tbl.Insert(Row{"id": int64(1), "name": "Eve"})
	if err == nil {
		t.Fatal("expected uniqueness violation on duplicate key")
	}
	var uv *jeterrors.UniquenessViolationError
	if !jeterrors.As(err, &uv) {
		t.Fatalf("err = %v (%T), want *UniquenessViolationError", err, err)
	}
	if uv.Table != "people" || uv.Index != "pk" {
		t.Errorf("uv = %+v", uv)
	}

	count := 0
	cur := tbl.Scan(nil)
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
	if count != 1 {
		t.Errorf("row count after failed insert = %d, want 1", count)
	}

	idx, _ := tbl.Index("pk")
	row, ok, err := idx.FindFirstRowByEntry(int64(1))
	if err != nil || !ok {
		t.Fatalf("FindFirstRowByEntry: ok=%v err=%v", ok, err)
	}
	values, found, err := tbl.Get(row)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if values["name"] != "Ada" {
		t.Errorf("surviving row name = %v, want Ada (rejected insert must not clobber it)", values["name"])
	}
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
