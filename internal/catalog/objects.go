package catalog

import (
	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/internal/table"
)

// ObjectType distinguishes the kinds of definition rows the system object
// table carries (spec.md §4.6).
type ObjectType byte

const (
	// ObjectDatabase names the single sentinel row (id 0) carrying the
	// database-level PropertyMap (spec.md §3): every other object type
	// names a real schema object, so this is the one row without a
	// corresponding Table/Index descriptor.
	ObjectDatabase ObjectType = 0
	ObjectTable    ObjectType = 1
	ObjectIndex    ObjectType = 2
)

// LinkKind identifies whether a table is local, points at another file, or
// is resolved through an ODBC connection string (spec.md §4.6's linked-table
// resolver).
type LinkKind byte

const (
	// LinkNone is an ordinary local table.
	LinkNone LinkKind = 0
	// LinkFile is linked to a table in another Jet-family file; writes are
	// forwarded like a local table.
	LinkFile LinkKind = 1
	// LinkODBC is linked through an ODBC connection string; the resolver
	// never allows writes against it (jeterrors.ErrLinkedTableReadOnly).
	LinkODBC LinkKind = 2
)

// LinkInfo records how a linked table's rows are actually resolved.
type LinkInfo struct {
	Kind   LinkKind
	Target string
}

// IndexEntry is a materialized index definition plus its live B-tree handle.
// Per spec.md §3, multiple IndexEntry values on the same table may point at
// the same IndexData when they index the same column set; Primary marks
// the one that owns the shared tree (the one CreateIndex allocated fresh).
type IndexEntry struct {
	ID         int32
	Name       string
	TableID    int32
	Columns    []string
	Ascending  []bool
	Unique     bool
	IgnoreNull bool
	Primary    bool

	ForeignKey *ForeignKeyRef

	Properties map[string]string

	rowID index.RowId
	Data  *index.IndexData
}

// ForeignKeyRef names the IndexData a relationship's child index must stay
// consistent with (spec.md §3's "optional foreign-key reference").
type ForeignKeyRef struct {
	ParentTable string
	ParentIndex string
}

// TableEntry is a materialized table definition: its column schema, live
// storage handle, and the indexes and properties attached to it.
type TableEntry struct {
	ID      int32
	Name    string
	Columns []table.ColumnDef
	Link    LinkInfo

	rowID      index.RowId
	Data       *table.Table
	Indexes    map[string]*IndexEntry // keyed by lowercase index name
	Properties map[string]string
}

// IsLinked reports whether the table resolves through a link rather than
// storing rows locally.
func (e *TableEntry) IsLinked() bool { return e.Link.Kind != LinkNone }

// Writable reports whether inserts/updates/deletes may be applied directly
// (an ODBC link is never writable through this engine).
func (e *TableEntry) Writable() bool { return e.Link.Kind != LinkODBC }

// systemColumns is the fixed schema of the system object table itself. Every
// Table/Index definition, regardless of its own column shape, is described
// by one row of this shape.
func systemColumns() []table.ColumnDef {
	return []table.ColumnDef{
		{Name: "id", Type: codec.Long},
		{Name: "name", Type: codec.TextVariable},
		{Name: "objType", Type: codec.Byte},
		{Name: "parentId", Type: codec.Long},
		{Name: "rootPage", Type: codec.Long},
		{Name: "linkKind", Type: codec.Byte},
		{Name: "linkTarget", Type: codec.TextVariable, Nullable: true},
		{Name: "columnsBlob", Type: codec.TextVariable, Nullable: true},
		{Name: "indexColsBlob", Type: codec.TextVariable, Nullable: true},
		{Name: "indexAscBlob", Type: codec.TextVariable, Nullable: true},
		{Name: "unique", Type: codec.Byte},
		{Name: "ignoreNull", Type: codec.Byte},
		{Name: "isPrimary", Type: codec.Byte},
		{Name: "fkParentTable", Type: codec.TextVariable, Nullable: true},
		{Name: "fkParentIndex", Type: codec.TextVariable, Nullable: true},
		{Name: "dataPagesBlob", Type: codec.TextVariable, Nullable: true},
		{Name: "properties", Type: codec.TextVariable, Nullable: true},
	}
}

func boolToByte(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func byteToBool(v any) bool {
	switch n := v.(type) {
	case int64:
		return n != 0
	case int8:
		return n != 0
	default:
		return false
	}
}

func asInt32(v any) int32 {
	switch n := v.(type) {
	case int64:
		return int32(n)
	case int32:
		return n
	default:
		return 0
	}
}

func asPgno(v any) pagestore.Pgno {
	switch n := v.(type) {
	case int64:
		return pagestore.Pgno(n)
	default:
		return 0
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
