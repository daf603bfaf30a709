package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/jetlog"
	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/internal/usagemap"
	"github.com/jetfile/jetdb/jeterrors"
)

// sysObjectName is the physical table name the catalog's own rows live
// under, visible through Tables() like any other table so a caller
// inspecting the schema sees it the way Access's MSysObjects is visible
// to a privileged query.
const sysObjectName = "MSysObjects"

// catalogRootPage is the page PageChannel.Create pre-allocates immediately
// after the file header; the system object table is anchored there rather
// than at whatever page a first AllocatePage call would hand back, so
// Open can always find row 0 (the database sentinel, ObjectDatabase)
// without first knowing the rest of the system table's page set.
const catalogRootPage pagestore.Pgno = 1

var sentinelRowID = index.RowId{Page: catalogRootPage, Slot: 0}

// LinkResolver resolves a linked table's rows through an external
// collaborator (spec.md §4.6): a file-link resolver forwards to another
// Jet-family file's already-open Table, an ODBC-link resolver hands back
// a read-only view and is never consulted for writes.
type LinkResolver interface {
	Resolve(target string) (*table.Table, []table.ColumnDef, error)
}

// Database is the bootstrapped catalog: the system object table plus the
// materialized Table/Index definitions it describes, ready for the
// top-level engine to drive inserts, updates, deletes, and scans through.
type Database struct {
	mu sync.Mutex

	channel *pagestore.PageChannel
	sys     *table.Table

	tables map[string]*TableEntry // keyed by lowercase name
	nextID int32

	linkResolvers map[LinkKind]LinkResolver

	properties map[string]string

	log *slog.Logger
}

// Create bootstraps a brand-new catalog over channel, which must already
// have its initial write barrier open (as returned by pagestore.Create).
func Create(channel *pagestore.PageChannel) (*Database, error) {
	log := jetlog.Default()

	pages := usagemap.New(channel, catalogRootPage, catalogRootPage)
	if err := pages.Add(catalogRootPage); err != nil {
		return nil, err
	}
	if err := refreshFreeSpace(channel, pages, []pagestore.Pgno{catalogRootPage}); err != nil {
		return nil, err
	}

	db := &Database{
		channel:       channel,
		sys:           table.Open(channel, sysObjectName, systemColumns(), pages),
		tables:        make(map[string]*TableEntry),
		nextID:        1,
		linkResolvers: make(map[LinkKind]LinkResolver),
		properties:    make(map[string]string),
		log:           log,
	}

	rowID, err := db.sys.Insert(db.sentinelValues())
	if err != nil {
		return nil, err
	}
	if rowID != sentinelRowID {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "database sentinel row did not land on the catalog root page")
	}
	log.Info("catalog created")
	return db, nil
}

// Open reconstructs a Database from an already-open channel whose catalog
// was previously written by Create. The channel need not have a write
// barrier open; one is required only for subsequent mutating calls.
func Open(channel *pagestore.PageChannel) (*Database, error) {
	log := jetlog.Default()

	provisional := usagemap.FromPages(channel, catalogRootPage, []pagestore.Pgno{catalogRootPage})
	sys := table.Open(channel, sysObjectName, systemColumns(), provisional)

	values, ok, err := sys.Get(sentinelRowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "catalog root page does not carry the database sentinel row")
	}
	sysPages, err := parsePages(asString(values["dataPagesBlob"]))
	if err != nil {
		return nil, err
	}
	if len(sysPages) == 0 {
		sysPages = []pagestore.Pgno{catalogRootPage}
	}

	pages := usagemap.FromPages(channel, catalogRootPage, sysPages)
	if err := refreshFreeSpace(channel, pages, sysPages); err != nil {
		return nil, err
	}
	sys = table.Open(channel, sysObjectName, systemColumns(), pages)

	db := &Database{
		channel:       channel,
		sys:           sys,
		tables:        make(map[string]*TableEntry),
		nextID:        1,
		linkResolvers: make(map[LinkKind]LinkResolver),
		properties:    parseProperties(asString(values["properties"])),
		log:           log,
	}

	if err := db.loadSchema(); err != nil {
		return nil, err
	}
	log.Info("catalog opened", "tables", len(db.tables))
	return db, nil
}

// refreshFreeSpace repopulates a UsageMap's free-byte index for pages
// recovered from a persisted page list, since that bookkeeping (like the
// rest of UsageMap's in-memory state) does not itself survive a reopen.
func refreshFreeSpace(channel *pagestore.PageChannel, pages *usagemap.UsageMap, pgnos []pagestore.Pgno) error {
	for _, pgno := range pgnos {
		free, err := table.FreeBytes(channel, pgno)
		if err != nil {
			return err
		}
		pages.SetFreeSpace(pgno, free)
	}
	return nil
}

// loadSchema walks every row of the system object table, materializing
// TableEntry/IndexEntry values and their live Table/IndexData handles.
// Indexes are loaded in a second pass so a shared IndexData (two
// IndexEntry rows with the same underlying root page) resolves to a
// single *index.IndexData regardless of row order.
func (db *Database) loadSchema() error {
	cur := table.NewCursor(db.sys, nil)
	type pendingIndex struct {
		values map[string]any
	}
	var pendingIndexes []pendingIndex
	maxID := int32(0)

	for {
		more, err := cur.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		values, rowID, _ := cur.Current()
		id := asInt32(values["id"])
		if id > maxID {
			maxID = id
		}
		switch ObjectType(byteTag(values["objType"])) {
		case ObjectDatabase:
			// Already consumed by Open before loadSchema runs.
		case ObjectTable:
			entry, err := db.materializeTable(values, rowID)
			if err != nil {
				return err
			}
			db.tables[strings.ToLower(entry.Name)] = entry
		case ObjectIndex:
			pendingIndexes = append(pendingIndexes, pendingIndex{values: values})
		}
	}

	rootToData := make(map[pagestore.Pgno]*index.IndexData)
	for _, p := range pendingIndexes {
		entry, err := db.materializeIndex(p.values, rootToData)
		if err != nil {
			return err
		}
		parent := db.tableByID(asInt32(p.values["parentId"]))
		if parent == nil {
			return jeterrors.Wrap(jeterrors.ErrCorruptFile, "index references unknown parent table")
		}
		parent.Indexes[strings.ToLower(entry.Name)] = entry
	}

	db.nextID = maxID + 1
	return nil
}

func byteTag(v any) byte {
	switch n := v.(type) {
	case int8:
		return byte(n)
	case int64:
		return byte(n)
	default:
		return 0
	}
}

func (db *Database) tableByID(id int32) *TableEntry {
	for _, e := range db.tables {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (db *Database) materializeTable(values map[string]any, rowID index.RowId) (*TableEntry, error) {
	columns, err := parseColumns(asString(values["columnsBlob"]))
	if err != nil {
		return nil, err
	}
	link := LinkInfo{Kind: LinkKind(byteTag(values["linkKind"])), Target: asString(values["linkTarget"])}

	entry := &TableEntry{
		ID:         asInt32(values["id"]),
		Name:       asString(values["name"]),
		Columns:    columns,
		Link:       link,
		rowID:      rowID,
		Indexes:    make(map[string]*IndexEntry),
		Properties: parseProperties(asString(values["properties"])),
	}

	if link.Kind == LinkNone {
		pages, err := parsePages(asString(values["dataPagesBlob"]))
		if err != nil {
			return nil, err
		}
		if len(pages) == 0 {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "table row carries an empty page list")
		}
		um := usagemap.FromPages(db.channel, pages[0], pages)
		if err := refreshFreeSpace(db.channel, um, pages); err != nil {
			return nil, err
		}
		entry.Data = table.Open(db.channel, entry.Name, columns, um)
		if err := seedAutoNumber(entry.Data, columns); err != nil {
			return nil, err
		}
	} else {
		data, resolvedColumns, err := db.resolveLink(link.Kind, link.Target)
		if err != nil {
			return nil, err
		}
		entry.Data = data
		if len(columns) == 0 {
			entry.Columns = resolvedColumns
		}
	}
	return entry, nil
}

// seedAutoNumber scans a reopened table once for its auto-number column's
// highest persisted value and advances the in-memory counter past it, so
// the monotonicity invariant (spec.md §8 property 7) survives a reopen
// instead of resetting to 1 and eventually colliding with rows already on
// disk.
func seedAutoNumber(t *table.Table, columns []table.ColumnDef) error {
	var autoCol string
	for _, c := range columns {
		if c.AutoNumber {
			autoCol = c.Name
			break
		}
	}
	if autoCol == "" {
		return nil
	}
	cur := table.NewCursor(t, nil)
	var max int64
	for {
		more, err := cur.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		values, _, _ := cur.Current()
		if v, ok := values[autoCol].(int64); ok && v > max {
			max = v
		}
	}
	t.SeedAutoNumber(max)
	return nil
}

func (db *Database) materializeIndex(values map[string]any, rootToData map[pagestore.Pgno]*index.IndexData) (*IndexEntry, error) {
	root := asPgno(values["rootPage"])
	unique := byteTag(values["unique"]) != 0

	data, ok := rootToData[root]
	if !ok {
		data = index.Open(db.channel, root, unique)
		rootToData[root] = data
	}

	var fk *ForeignKeyRef
	if parentTable := asString(values["fkParentTable"]); parentTable != "" {
		fk = &ForeignKeyRef{ParentTable: parentTable, ParentIndex: asString(values["fkParentIndex"])}
	}

	return &IndexEntry{
		ID:         asInt32(values["id"]),
		Name:       asString(values["name"]),
		TableID:    asInt32(values["parentId"]),
		Columns:    parseStrings(asString(values["indexColsBlob"])),
		Ascending:  parseBools(asString(values["indexAscBlob"])),
		Unique:     unique,
		IgnoreNull: byteTag(values["ignoreNull"]) != 0,
		Primary:    byteTag(values["isPrimary"]) != 0,
		ForeignKey: fk,
		Properties: parseProperties(asString(values["properties"])),
		Data:       data,
	}, nil
}

func (db *Database) sentinelValues() map[string]any {
	return map[string]any{
		"id":            int64(0),
		"name":          "",
		"objType":       int64(ObjectDatabase),
		"parentId":      int64(0),
		"rootPage":      int64(0),
		"linkKind":      int64(LinkNone),
		"linkTarget":    nil,
		"columnsBlob":   nil,
		"indexColsBlob": nil,
		"indexAscBlob":  nil,
		"unique":        int64(0),
		"ignoreNull":    int64(0),
		"isPrimary":     int64(0),
		"fkParentTable": nil,
		"fkParentIndex": nil,
		"dataPagesBlob": serializePages(db.sys.Pages()),
		"properties":    serializeProperties(db.properties),
	}
}

func (db *Database) persistSentinel() error {
	return db.sys.Update(sentinelRowID, db.sentinelValues())
}

func (db *Database) tableRowValues(e *TableEntry) map[string]any {
	var dataPages string
	var root int64
	if e.Link.Kind == LinkNone && e.Data != nil {
		dataPages = serializePages(e.Data.Pages())
	}
	return map[string]any{
		"id":            int64(e.ID),
		"name":          e.Name,
		"objType":       int64(ObjectTable),
		"parentId":      int64(0),
		"rootPage":      root,
		"linkKind":      int64(e.Link.Kind),
		"linkTarget":    nullableString(e.Link.Target),
		"columnsBlob":   nullableString(serializeColumns(e.Columns)),
		"indexColsBlob": nil,
		"indexAscBlob":  nil,
		"unique":        int64(0),
		"ignoreNull":    int64(0),
		"isPrimary":     int64(0),
		"fkParentTable": nil,
		"fkParentIndex": nil,
		"dataPagesBlob": nullableString(dataPages),
		"properties":    nullableString(serializeProperties(e.Properties)),
	}
}

func (db *Database) indexRowValues(tableID int32, e *IndexEntry) map[string]any {
	var fkParentTable, fkParentIndex string
	if e.ForeignKey != nil {
		fkParentTable = e.ForeignKey.ParentTable
		fkParentIndex = e.ForeignKey.ParentIndex
	}
	return map[string]any{
		"id":            int64(e.ID),
		"name":          e.Name,
		"objType":       int64(ObjectIndex),
		"parentId":      int64(tableID),
		"rootPage":      int64(e.Data.RootPage()),
		"linkKind":      int64(LinkNone),
		"linkTarget":    nil,
		"columnsBlob":   nil,
		"indexColsBlob": nullableString(serializeStrings(e.Columns)),
		"indexAscBlob":  nullableString(serializeBools(e.Ascending)),
		"unique":        boolToByte(e.Unique),
		"ignoreNull":    boolToByte(e.IgnoreNull),
		"isPrimary":     boolToByte(e.Primary),
		"fkParentTable": nullableString(fkParentTable),
		"fkParentIndex": nullableString(fkParentIndex),
		"dataPagesBlob": nil,
		"properties":    nullableString(serializeProperties(e.Properties)),
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateTable allocates storage for a new local table and records it in
// the catalog.
func (db *Database) CreateTable(name string, columns []table.ColumnDef) (*TableEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := db.tables[key]; exists {
		return nil, &jeterrors.InvalidArgumentError{Operation: "CreateTable", Reason: fmt.Sprintf("table %q already exists", name)}
	}

	data, err := table.New(db.channel, name, columns)
	if err != nil {
		return nil, err
	}

	id := db.nextID
	db.nextID++
	entry := &TableEntry{
		ID:         id,
		Name:       name,
		Columns:    columns,
		Data:       data,
		Indexes:    make(map[string]*IndexEntry),
		Properties: make(map[string]string),
	}

	rowID, err := db.sys.Insert(db.tableRowValues(entry))
	if err != nil {
		return nil, err
	}
	entry.rowID = rowID
	db.tables[key] = entry

	if err := db.persistSentinel(); err != nil {
		return nil, err
	}
	db.log.Info("table created", "table", name, "id", id)
	return entry, nil
}

// CreateLinkedTable registers a table whose rows are resolved through a
// registered LinkResolver instead of stored locally.
func (db *Database) CreateLinkedTable(name string, link LinkInfo) (*TableEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := db.tables[key]; exists {
		return nil, &jeterrors.InvalidArgumentError{Operation: "CreateLinkedTable", Reason: fmt.Sprintf("table %q already exists", name)}
	}
	data, columns, err := db.resolveLink(link.Kind, link.Target)
	if err != nil {
		return nil, err
	}

	id := db.nextID
	db.nextID++
	entry := &TableEntry{
		ID:         id,
		Name:       name,
		Columns:    columns,
		Link:       link,
		Data:       data,
		Indexes:    make(map[string]*IndexEntry),
		Properties: make(map[string]string),
	}
	rowID, err := db.sys.Insert(db.tableRowValues(entry))
	if err != nil {
		return nil, err
	}
	entry.rowID = rowID
	db.tables[key] = entry

	if err := db.persistSentinel(); err != nil {
		return nil, err
	}
	db.log.Info("linked table registered", "table", name, "kind", link.Kind)
	return entry, nil
}

func sameColumnSet(aCols []string, aAsc []bool, bCols []string, bAsc []bool) bool {
	if len(aCols) != len(bCols) {
		return false
	}
	for i := range aCols {
		if !strings.EqualFold(aCols[i], bCols[i]) || aAsc[i] != bAsc[i] {
			return false
		}
	}
	return true
}

// CreateIndex builds a new index on an existing table, reusing an existing
// IndexData when another index on the table already covers the identical
// ordered column set (spec.md §3's shared-tree arrangement) rather than
// maintaining two redundant B-trees over the same keys.
func (db *Database) CreateIndex(tableName, indexName string, columns []string, ascending []bool, unique, ignoreNull bool) (*IndexEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	te, ok := db.tables[strings.ToLower(tableName)]
	if !ok {
		return nil, &jeterrors.InvalidArgumentError{Operation: "CreateIndex", Reason: fmt.Sprintf("unknown table %q", tableName)}
	}
	if _, exists := te.Indexes[strings.ToLower(indexName)]; exists {
		return nil, &jeterrors.InvalidArgumentError{Operation: "CreateIndex", Reason: fmt.Sprintf("index %q already exists on table %q", indexName, tableName)}
	}
	if len(columns) != len(ascending) {
		return nil, &jeterrors.InvalidArgumentError{Operation: "CreateIndex", Reason: "columns and ascending flags must be the same length"}
	}

	var data *index.IndexData
	primary := true
	for _, existing := range te.Indexes {
		if sameColumnSet(existing.Columns, existing.Ascending, columns, ascending) {
			data = existing.Data
			primary = false
			break
		}
	}
	if data == nil {
		var err error
		data, err = index.Create(db.channel, unique)
		if err != nil {
			return nil, err
		}
	}

	id := db.nextID
	db.nextID++
	entry := &IndexEntry{
		ID:         id,
		Name:       indexName,
		TableID:    te.ID,
		Columns:    columns,
		Ascending:  ascending,
		Unique:     unique,
		IgnoreNull: ignoreNull,
		Primary:    primary,
		Data:       data,
		Properties: make(map[string]string),
	}

	rowID, err := db.sys.Insert(db.indexRowValues(te.ID, entry))
	if err != nil {
		return nil, err
	}
	entry.rowID = rowID
	te.Indexes[strings.ToLower(indexName)] = entry

	if err := db.persistSentinel(); err != nil {
		return nil, err
	}
	db.log.Info("index created", "table", tableName, "index", indexName, "shared_tree", !primary)
	return entry, nil
}

// SetForeignKey records which parent index a child index must stay
// consistent with, used by the relationship engine when it registers a
// relationship over an existing index rather than one it created itself.
func (db *Database) SetForeignKey(idx *IndexEntry, parentTable, parentIndex string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	idx.ForeignKey = &ForeignKeyRef{ParentTable: parentTable, ParentIndex: parentIndex}
	return db.sys.Update(idx.rowID, db.indexRowValues(idx.TableID, idx))
}

// Table looks up a table definition by name (case-insensitive).
func (db *Database) Table(name string) (*TableEntry, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.tables[strings.ToLower(name)]
	return e, ok
}

// Tables returns every table definition, ordered by name.
func (db *Database) Tables() []*TableEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*TableEntry, 0, len(db.tables))
	for _, e := range db.tables {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterLinkResolver installs the collaborator used to resolve tables
// linked with the given kind. Must be called before CreateLinkedTable or
// Open encounters a row of that kind.
func (db *Database) RegisterLinkResolver(kind LinkKind, r LinkResolver) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.linkResolvers[kind] = r
}

func (db *Database) resolveLink(kind LinkKind, target string) (*table.Table, []table.ColumnDef, error) {
	r, ok := db.linkResolvers[kind]
	if !ok {
		return nil, nil, &jeterrors.InvalidArgumentError{Operation: "resolveLink", Reason: "no resolver registered for link kind"}
	}
	return r.Resolve(target)
}

// SetProperty sets a database-level property (spec.md §4.6's PropertyMap).
func (db *Database) SetProperty(name, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.properties[name] = value
	return db.persistSentinel()
}

// Property reads a database-level property.
func (db *Database) Property(name string) (string, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	v, ok := db.properties[name]
	return v, ok
}

// SetTableProperty sets a property on a table definition.
func (db *Database) SetTableProperty(te *TableEntry, name, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	te.Properties[name] = value
	return db.sys.Update(te.rowID, db.tableRowValues(te))
}

// SetIndexProperty sets a property on an index definition.
func (db *Database) SetIndexProperty(ie *IndexEntry, name, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	ie.Properties[name] = value
	return db.sys.Update(ie.rowID, db.indexRowValues(ie.TableID, ie))
}

// Flush re-serializes every table's current page list into its system
// row, and every index's current root page into its own. The UsageMap free-space index and page membership it captures
// live only in process memory, so a caller must call Flush before
// FinishWrite if the file is about to be closed or otherwise must survive
// a reopen with an accurate page set.
func (db *Database) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, te := range db.tables {
		if te.Link.Kind != LinkNone {
			continue
		}
		if err := db.sys.Update(te.rowID, db.tableRowValues(te)); err != nil {
			return err
		}
		for _, ie := range te.Indexes {
			if err := db.sys.Update(ie.rowID, db.indexRowValues(ie.TableID, ie)); err != nil {
				return err
			}
		}
	}
	return db.persistSentinel()
}

// Channel returns the underlying page channel, for callers (the top-level
// engine, the relationship and complex-value subsystems) that need to
// open write barriers or allocate pages directly.
func (db *Database) Channel() *pagestore.PageChannel { return db.channel }
