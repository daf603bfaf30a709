// Package relationship implements the relationship engine spec.md §4.7
// describes: referential-integrity checking and cascading delete/update
// across a pair of indexes in two tables. The engine holds no storage of
// its own; it drives catalog.Database's materialized tables and indexes
// the same way internal/table's row operations drive an IndexData, the
// way FocuswithJustin-JuniperBible's handlers drive their store layer
// through a small collaborator interface rather than reaching into its
// internals directly.
package relationship

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jetfile/jetdb/internal/catalog"
	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/jeterrors"
)

// Flags is the set of behavior toggles spec.md §4.7 attaches to a
// relationship.
type Flags struct {
	OneToOne               bool
	NoReferentialIntegrity bool
	CascadeUpdates         bool
	CascadeDeletes         bool
	CascadeNullOnDelete    bool
	LeftOuterJoin          bool
	RightOuterJoin         bool
}

// Relationship binds a child table's foreign-key index to the parent
// table's referenced index. The two index column lists are matched
// positionally: ParentIndex's i'th column corresponds to ChildIndex's
// i'th column.
type Relationship struct {
	Name        string
	ParentTable string
	ParentIndex string
	ChildTable  string
	ChildIndex  string
	Flags       Flags
}

// Mutator performs a full row delete or update, including maintenance of
// every index the target table owns. The top-level jetdb package's
// Delete/Update methods satisfy this; the engine calls back into it
// rather than touching an IndexData directly, so a cascade reuses
// exactly the same index-maintenance path an ordinary write does. Because
// that same top-level method re-invokes the engine's OnParentDelete /
// OnParentUpdate hooks for whichever table it just touched, a cascade
// several relationships deep happens through ordinary mutual recursion
// rather than the engine walking its own graph.
type Mutator interface {
	DeleteRow(table string, rowID index.RowId) error
	UpdateRow(table string, rowID index.RowId, values map[string]any) error
}

// Engine enforces referential integrity and fires cascades for every
// Relationship registered against one catalog.Database.
type Engine struct {
	mu sync.Mutex

	db      *catalog.Database
	mutator Mutator

	relationships []*Relationship
	byChild       map[string][]*Relationship
	byParent      map[string][]*Relationship

	cascadePath []string
}

// New returns an Engine over db. SetMutator must be called before any
// cascade-triggering delete or update runs.
func New(db *catalog.Database) *Engine {
	return &Engine{
		db:       db,
		byChild:  make(map[string][]*Relationship),
		byParent: make(map[string][]*Relationship),
	}
}

// SetMutator installs the collaborator cascades drive row changes through.
func (e *Engine) SetMutator(m Mutator) { e.mutator = m }

// Register validates and adds a relationship. Both tables and indexes
// must already exist in the catalog.
func (e *Engine) Register(r *Relationship) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	parent, ok := e.db.Table(r.ParentTable)
	if !ok {
		return &jeterrors.InvalidArgumentError{Operation: "Register", Reason: fmt.Sprintf("unknown parent table %q", r.ParentTable)}
	}
	child, ok := e.db.Table(r.ChildTable)
	if !ok {
		return &jeterrors.InvalidArgumentError{Operation: "Register", Reason: fmt.Sprintf("unknown child table %q", r.ChildTable)}
	}
	parentIdx, ok := parent.Indexes[strings.ToLower(r.ParentIndex)]
	if !ok {
		return &jeterrors.InvalidArgumentError{Operation: "Register", Reason: fmt.Sprintf("unknown parent index %q", r.ParentIndex)}
	}
	childIdx, ok := child.Indexes[strings.ToLower(r.ChildIndex)]
	if !ok {
		return &jeterrors.InvalidArgumentError{Operation: "Register", Reason: fmt.Sprintf("unknown child index %q", r.ChildIndex)}
	}
	if len(parentIdx.Columns) != len(childIdx.Columns) {
		return &jeterrors.InvalidArgumentError{Operation: "Register", Reason: "parent and child index column counts differ"}
	}

	if err := e.db.SetForeignKey(childIdx, r.ParentTable, r.ParentIndex); err != nil {
		return err
	}

	e.relationships = append(e.relationships, r)
	ckey := strings.ToLower(r.ChildTable)
	e.byChild[ckey] = append(e.byChild[ckey], r)
	pkey := strings.ToLower(r.ParentTable)
	e.byParent[pkey] = append(e.byParent[pkey], r)
	return nil
}

func (e *Engine) relsForChild(table string) []*Relationship {
	return e.byChild[strings.ToLower(table)]
}

func (e *Engine) relsForParent(table string) []*Relationship {
	return e.byParent[strings.ToLower(table)]
}

// keyColumns builds the encoded index key for idxCols, pulling values out
// of row by the *other* side's column names at the same position (a
// relationship's two index column lists correspond positionally, not by
// name).
func keyColumns(idxCols []string, idxAsc []bool, srcCols []string, row map[string]any, colTypes map[string]codec.Type, colOpts map[string]codec.Options) ([]codec.IndexKeyColumn, error) {
	out := make([]codec.IndexKeyColumn, len(idxCols))
	for i, name := range idxCols {
		srcName := name
		if i < len(srcCols) {
			srcName = srcCols[i]
		}
		t, ok := colTypes[strings.ToLower(name)]
		if !ok {
			return nil, &jeterrors.InvalidArgumentError{Operation: "keyColumns", Reason: fmt.Sprintf("unknown column %q", name)}
		}
		out[i] = codec.IndexKeyColumn{
			Name:      name,
			Type:      t,
			Value:     row[srcName],
			Options:   colOpts[strings.ToLower(name)],
			Ascending: idxAsc[i],
		}
	}
	return out, nil
}

func columnMaps(cols []table.ColumnDef) (map[string]codec.Type, map[string]codec.Options) {
	types := make(map[string]codec.Type, len(cols))
	opts := make(map[string]codec.Options, len(cols))
	for _, c := range cols {
		key := strings.ToLower(c.Name)
		types[key] = c.Type
		opts[key] = c.Options
	}
	return types, opts
}

// CheckReferentialIntegrity verifies, for every relationship where table
// is the child side, that values carries a foreign key pointing at a row
// that exists in the parent's referenced index. Called before an insert
// or update is allowed to land.
func (e *Engine) CheckReferentialIntegrity(tableName string, values map[string]any) error {
	e.mu.Lock()
	rels := append([]*Relationship(nil), e.relsForChild(tableName)...)
	e.mu.Unlock()

	for _, r := range rels {
		if r.Flags.NoReferentialIntegrity {
			continue
		}
		ok, err := e.parentHasMatch(r, values)
		if err != nil {
			return err
		}
		if !ok {
			return &jeterrors.ReferentialIntegrityViolationError{
				Relationship: r.Name,
				ChildTable:   r.ChildTable,
				ParentTable:  r.ParentTable,
				Reason:       "no matching row in parent index",
			}
		}
	}
	return nil
}

// parentHasMatch encodes the parent-side key from the child row's foreign
// key values and checks whether it exists in the parent's referenced
// index.
func (e *Engine) parentHasMatch(r *Relationship, childValues map[string]any) (bool, error) {
	parent, ok := e.db.Table(r.ParentTable)
	if !ok {
		return false, &jeterrors.InvalidArgumentError{Operation: "parentHasMatch", Reason: "unknown parent table"}
	}
	child, ok := e.db.Table(r.ChildTable)
	if !ok {
		return false, &jeterrors.InvalidArgumentError{Operation: "parentHasMatch", Reason: "unknown child table"}
	}
	parentIdx := parent.Indexes[strings.ToLower(r.ParentIndex)]
	childIdx := child.Indexes[strings.ToLower(r.ChildIndex)]

	// A null foreign-key component means "no reference yet"; spec.md §4.7
	// only requires RI on a value that is actually present.
	if anyNullForKey(childIdx.Columns, childValues) {
		return true, nil
	}

	types, opts := columnMaps(parent.Columns)
	keyCols, err := keyColumns(parentIdx.Columns, parentIdx.Ascending, childIdx.Columns, childValues, types, opts)
	if err != nil {
		return false, err
	}
	key, err := codec.EncodeIndexKey(keyCols)
	if err != nil {
		return false, err
	}
	_, found, err := parentIdx.Data.FindFirstRowByEntry(key)
	if err != nil {
		return false, err
	}
	return found, nil
}

func anyNullForKey(cols []string, values map[string]any) bool {
	for _, c := range cols {
		if v, ok := values[c]; !ok || v == nil {
			return true
		}
	}
	return false
}

// OnParentDelete fires cascadeDeletes/cascadeNullOnDelete for every
// relationship where table is the parent side, after parentValues (the
// row about to be removed) has been read but before the parent row
// itself is deleted. A cascade revisiting a table already on the current
// cascade path fails with CascadeCycle rather than looping forever.
func (e *Engine) OnParentDelete(tableName string, parentValues map[string]any) error {
	top, cycle := e.enterCascade(tableName)
	if cycle != nil {
		return cycle
	}
	defer e.exitCascade(top)

	e.mu.Lock()
	rels := append([]*Relationship(nil), e.relsForParent(tableName)...)
	e.mu.Unlock()

	for _, r := range rels {
		if !r.Flags.CascadeDeletes && !r.Flags.CascadeNullOnDelete {
			continue
		}
		childRows, err := e.matchingChildRows(r, parentValues)
		if err != nil {
			return err
		}
		for _, cr := range childRows {
			if r.Flags.CascadeDeletes {
				if err := e.mutator.DeleteRow(r.ChildTable, cr.rowID); err != nil {
					return err
				}
				continue
			}
			nulled := make(map[string]any, len(cr.values))
			for k, v := range cr.values {
				nulled[k] = v
			}
			child, _ := e.db.Table(r.ChildTable)
			childIdx := child.Indexes[strings.ToLower(r.ChildIndex)]
			for _, c := range childIdx.Columns {
				nulled[c] = nil
			}
			if err := e.mutator.UpdateRow(r.ChildTable, cr.rowID, nulled); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnParentUpdate fires cascadeUpdates for every relationship where table
// is the parent side and the parent's indexed key actually changed.
func (e *Engine) OnParentUpdate(tableName string, oldValues, newValues map[string]any) error {
	top, cycle := e.enterCascade(tableName)
	if cycle != nil {
		return cycle
	}
	defer e.exitCascade(top)

	e.mu.Lock()
	rels := append([]*Relationship(nil), e.relsForParent(tableName)...)
	e.mu.Unlock()

	for _, r := range rels {
		if !r.Flags.CascadeUpdates {
			continue
		}
		parent, _ := e.db.Table(r.ParentTable)
		parentIdx := parent.Indexes[strings.ToLower(r.ParentIndex)]
		if !keyChanged(parentIdx.Columns, oldValues, newValues) {
			continue
		}
		childRows, err := e.matchingChildRows(r, oldValues)
		if err != nil {
			return err
		}
		child, _ := e.db.Table(r.ChildTable)
		childIdx := child.Indexes[strings.ToLower(r.ChildIndex)]
		for _, cr := range childRows {
			updated := make(map[string]any, len(cr.values))
			for k, v := range cr.values {
				updated[k] = v
			}
			for i, pc := range parentIdx.Columns {
				updated[childIdx.Columns[i]] = newValues[pc]
			}
			if err := e.mutator.UpdateRow(r.ChildTable, cr.rowID, updated); err != nil {
				return err
			}
		}
	}
	return nil
}

func keyChanged(cols []string, oldValues, newValues map[string]any) bool {
	for _, c := range cols {
		if fmt.Sprint(oldValues[c]) != fmt.Sprint(newValues[c]) {
			return true
		}
	}
	return false
}

type childRow struct {
	rowID  index.RowId
	values map[string]any
}

// matchingChildRows scans the child index for every row whose foreign
// key matches parentValues, walking the leaf chain forward from the
// first matching entry since the child index need not be unique.
func (e *Engine) matchingChildRows(r *Relationship, parentValues map[string]any) ([]childRow, error) {
	parent, ok := e.db.Table(r.ParentTable)
	if !ok {
		return nil, &jeterrors.InvalidArgumentError{Operation: "matchingChildRows", Reason: "unknown parent table"}
	}
	child, ok := e.db.Table(r.ChildTable)
	if !ok {
		return nil, &jeterrors.InvalidArgumentError{Operation: "matchingChildRows", Reason: "unknown child table"}
	}
	parentIdx := parent.Indexes[strings.ToLower(r.ParentIndex)]
	childIdx := child.Indexes[strings.ToLower(r.ChildIndex)]

	types, opts := columnMaps(child.Columns)
	keyCols, err := keyColumns(childIdx.Columns, childIdx.Ascending, parentIdx.Columns, parentValues, types, opts)
	if err != nil {
		return nil, err
	}
	target, err := codec.EncodeIndexKey(keyCols)
	if err != nil {
		return nil, err
	}

	cur := index.NewCursor(childIdx.Data, true)
	if err := cur.Seek(target); err != nil {
		return nil, err
	}
	var out []childRow
	for {
		key, row, ok := cur.Current()
		if !ok || !bytesEqual(key, target) {
			break
		}
		values, found, err := child.Data.Get(row)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, childRow{rowID: row, values: values})
		}
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func bytesEqual(a, b []byte) bool {
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

// enterCascade pushes tableName onto the active cascade path, returning
// top=true if this call started a fresh cascade (so exitCascade knows to
// clear the path rather than just popping one frame). A table already on
// the path yields a CascadeCycleError instead of a pushed frame.
func (e *Engine) enterCascade(tableName string) (top bool, cycleErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := strings.ToLower(tableName)
	for _, t := range e.cascadePath {
		if t == key {
			path := append([]string(nil), e.cascadePath...)
			return false, &jeterrors.CascadeCycleError{Table: tableName, Path: path}
		}
	}
	top = len(e.cascadePath) == 0
	e.cascadePath = append(e.cascadePath, key)
	return top, nil
}

func (e *Engine) exitCascade(top bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if top {
		e.cascadePath = nil
		return
	}
	if len(e.cascadePath) > 0 {
		e.cascadePath = e.cascadePath[:len(e.cascadePath)-1]
	}
}
