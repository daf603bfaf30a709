package jetdb

import (
	"testing"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/relationship"
	"github.com/jetfile/jetdb/internal/table"
)

// TestCascadeDeleteRemovesOnlyMatchingChildren is S3: deleting a parent row
// with CascadeDeletes set removes exactly the child rows referencing it and
// leaves every other parent and child row in place.
func TestCascadeDeleteRemovesOnlyMatchingChildren(t *testing.T) {
	db := newTestDatabase(t)

	parent, err := db.CreateTable("parent", []table.ColumnDef{
		{Name: "id", Type: codec.Long},
	})
	if err != nil {
		t.Fatalf("CreateTable(parent): %v", err)
	}
	if _, err := db.CreateIndex("parent", "pk", []string{"id"}, []bool{true}, true, false); err != nil {
		t.Fatalf("CreateIndex(parent.pk): %v", err)
	}

	child, err := db.CreateTable("child", []table.ColumnDef{
		{Name: "id", Type: codec.Long},
		{Name: "parentId", Type: codec.Long},
	})
	if err != nil {
		t.Fatalf("CreateTable(child): %v", err)
	}
	if _, err := db.CreateIndex("child", "child_pk", []string{"id"}, []bool{true}, true, false); err != nil {
		t.Fatalf("CreateIndex(child.child_pk): %v", err)
	}
	if _, err := db.CreateIndex("child", "fk", []string{"parentId"}, []bool{true}, false, false); err != nil {
		t.Fatalf("CreateIndex(child.fk): %v", err)
	}

	if err := db.CreateRelationship(&relationship.Relationship{
		Name:        "parent_child",
		ParentTable: "parent",
		ParentIndex: "pk",
		ChildTable:  "child",
		ChildIndex:  "fk",
		Flags:       relationship.Flags{CascadeDeletes: true},
	}); err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}

	parentRow1, err := parent.Insert(Row{"id": int64(1)})
	if err != nil {
		t.Fatalf("Insert parent 1: %v", err)
	}
	parentRow2, err := parent.Insert(Row{"id": int64(2)})
	if err != nil {
		t.Fatalf("Insert parent 2: %v", err)
	}

	if _, err := child.Insert(Row{"id": int64(10), "parentId": int64(1)}); err != nil {
		t.Fatalf("Insert child 10: %v", err)
	}
	if _, err := child.Insert(Row{"id": int64(11), "parentId": int64(1)}); err != nil {
		t.Fatalf("Insert child 11: %v", err)
	}
	if _, err := child.Insert(Row{"id": int64(12), "parentId": int64(2)}); err != nil {
		t.Fatalf("Insert child 12: %v", err)
	}

	if err := parent.Delete(parentRow1); err != nil {
		t.Fatalf("Delete parent 1: %v", err)
	}

	_, ok, err := parent.Get(parentRow1)
	if err != nil {
		t.Fatalf("Get deleted parent: %v", err)
	}
	if ok {
		t.Error("expected parent 1 to be gone")
	}
	if _, ok, err := parent.Get(parentRow2); err != nil || !ok {
		t.Fatalf("expected parent 2 to survive: ok=%v err=%v", ok, err)
	}

	var survivingIDs []int64
	cur := child.Scan(nil)
	for {
		more, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !more {
			break
		}
		values, _, _ := cur.Current()
		survivingIDs = append(survivingIDs, values["id"].(int64))
	}
	if !int64SliceEqual(survivingIDs, []int64{12}) {
		t.Errorf("surviving child ids = %v, want [12]", survivingIDs)
	}
}
