package jetdb

import (
	"testing"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/jeterrors"
)

func eventsColumns() []table.ColumnDef {
	return []table.ColumnDef{
		{Name: "region", Type: codec.TextVariable},
		{Name: "category", Type: codec.TextVariable},
		{Name: "sequence", Type: codec.Long},
		{Name: "label", Type: codec.TextVariable},
	}
}

// TestPartialKeyLookup is S6: a 3-column index accepts 1, 2, and 3
// component lookups that each restrict to the matching prefix, and
// rejects a 4-component lookup against a 3-column index outright.
func TestPartialKeyLookup(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.CreateTable("events", eventsColumns())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := db.CreateIndex("events", "by_region_category_seq",
		[]string{"region", "category", "sequence"},
		[]bool{true, true, true}, false, false); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	idx, ok := tbl.Index("by_region_category_seq")
	if !ok {
		t.Fatal("expected index to exist")
	}

	rows := []Row{
		{"region": "east", "category": "alpha", "sequence": int64(1), "label": "e-a-1"},
		{"region": "east", "category": "alpha", "sequence": int64(2), "label": "e-a-2"},
		{"region": "east", "category": "beta", "sequence": int64(1), "label": "e-b-1"},
		{"region": "west", "category": "alpha", "sequence": int64(1), "label": "w-a-1"},
	}
	for _, r := range rows {
		if _, err := tbl.Insert(r); err != nil {
			t.Fatalf("Insert(%v): %v", r, err)
		}
	}

	// 1-component prefix: region == "east" matches three rows. Matching
	// already positions the cursor on the first match, so the scan loop
	// reads the current entry before advancing with Next.
	cur, err := idx.Matching("east")
	if err != nil {
		t.Fatalf("Matching(east): %v", err)
	}
	var labels []string
	for cur.State() == index.OnRow {
		values, _, found, err := cur.Row()
		if err != nil || !found {
			t.Fatalf("Row: found=%v err=%v", found, err)
		}
		labels = append(labels, values["label"].(string))
		more, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !more {
			break
		}
	}
	if len(labels) != 3 {
		t.Errorf("region=east matched %d rows, want 3: %v", len(labels), labels)
	}

	// 2-component prefix: region == "east", category == "alpha" matches two.
	cur2, err := idx.Matching("east", "alpha")
	if err != nil {
		t.Fatalf("Matching(east, alpha): %v", err)
	}
	count2 := 0
	for cur2.State() == index.OnRow {
		count2++
		more, err := cur2.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !more {
			break
		}
	}
	if count2 != 2 {
		t.Errorf("region=east,category=alpha matched %d rows, want 2", count2)
	}

	// 3-component (full) key: exact match of one row.
	row, ok, err := idx.FindFirstRowByEntry("east", "beta", int64(1))
	if err != nil || !ok {
		t.Fatalf("FindFirstRowByEntry(full key): ok=%v err=%v", ok, err)
	}
	values, found, err := tbl.Get(row)
	if err != nil || !found || values["label"] != "e-b-1" {
		t.Errorf("full-key lookup = %v, found=%v err=%v", values, found, err)
	}

	// 4 components against a 3-column index must fail InvalidArgument.
	_, _, err = idx.FindFirstRowByEntry("east", "alpha", int64(1), "extra")
	if err == nil {
		t.Fatal("expected error for 4 components against a 3-column index")
	}
	var iae *jeterrors.InvalidArgumentError
	if !jeterrors.As(err, &iae) {
		t.Errorf("err = %v (%T), want *InvalidArgumentError", err, err)
	}
}

// TestAutoNumberMonotonicAndNoGapOnFailure covers spec.md §8 invariant 7:
// auto-number values advance strictly on every successful insert, and a
// failed insert that already drew a counter value rolls it back so the
// next successful insert reuses it rather than leaving a permanent gap.
func TestAutoNumberMonotonicAndNoGapOnFailure(t *testing.T) {
	db := newTestDatabase(t)
	_, err := db.CreateTable("seq", []table.ColumnDef{
		{Name: "id", Type: codec.Long, AutoNumber: true},
		{Name: "name", Type: codec.TextVariable},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	// Uniqueness lives on name, not id, so a deliberate duplicate-name
	// insert fails after the id counter has already been drawn.
	if _, err := db.CreateIndex("seq", "by_name", []string{"name"}, []bool{true}, true, false); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	tbl, _ := db.Table("seq")

	row1, err := tbl.Insert(Row{"name": "alpha"})
	if err != nil {
		t.Fatalf("Insert(alpha): %v", err)
	}
	values1, _, _ := tbl.Get(row1)
	first := values1["id"].(int64)

	row2, err := tbl.Insert(Row{"name": "beta"})
	if err != nil {
		t.Fatalf("Insert(beta): %v", err)
	}
	values2, _, _ := tbl.Get(row2)
	second := values2["id"].(int64)
	if second != first+1 {
		t.Errorf("second auto-number = %d, want %d", second, first+1)
	}

	if _, err := tbl.Insert(Row{"name": "alpha"}); err == nil {
		t.Fatal("expected duplicate name to fail uniqueness")
	}

	row3, err := tbl.Insert(Row{"name": "gamma"})
	if err != nil {
		t.Fatalf("Insert(gamma): %v", err)
	}
	values3, _, _ := tbl.Get(row3)
	third := values3["id"].(int64)
	if third != second+1 {
		t.Errorf("auto-number after rollback = %d, want %d (no permanent gap from the failed insert)", third, second+1)
	}
}
