package jetdb

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jetfile/jetdb/evaluator"
	"github.com/jetfile/jetdb/internal/catalog"
	"github.com/jetfile/jetdb/internal/complexvalue"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/jetlog"
	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/internal/relationship"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/jeterrors"
)

// Row is the value-bag shape every Table operation accepts and returns:
// column name to Go value, exactly as internal/table and internal/codec
// exchange them.
type Row = map[string]any

// Database is the public handle over one Jet-family container: the page
// channel, the catalog of tables and indexes, and the relationship and
// complex-value engines that ride on top of it. A Database is not safe
// for concurrent use by more than one goroutine at a time (spec.md §5).
type Database struct {
	mu sync.Mutex

	channel *pagestore.PageChannel
	cat     *catalog.Database

	relationships *relationship.Engine
	complex       *complexvalue.Engine

	eval evaluator.Config

	log *slog.Logger
}

// Create initializes a brand-new container at path and returns a handle
// with its bootstrap catalog already committed.
func Create(path string, opts CreateOptions) (*Database, error) {
	backing, err := pagestore.OpenFileBacking(path, false)
	if err != nil {
		return nil, &jeterrors.IOError{Operation: "create", Path: path, Err: err}
	}
	db, err := createOn(backing, opts)
	if err != nil {
		return nil, err
	}
	db.log = jetlog.ForDatabase(path)
	return db, nil
}

// CreateInMemory initializes a brand-new container entirely in memory,
// for tests and other callers with no durability requirement.
func CreateInMemory(opts CreateOptions) (*Database, error) {
	return createOn(pagestore.NewMemoryBacking(), opts)
}

func createOn(backing pagestore.BackingStore, opts CreateOptions) (*Database, error) {
	channel, err := pagestore.Create(backing, resolvedVersion(opts.Version))
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Create(channel)
	if err != nil {
		return nil, err
	}
	db := newDatabase(channel, cat, opts.Eval)
	if err := channel.FinishWrite(); err != nil {
		return nil, err
	}
	return db, nil
}

// Open opens an existing container at path.
func Open(path string, opts OpenOptions) (*Database, error) {
	backing, err := pagestore.OpenFileBacking(path, opts.ReadOnly)
	if err != nil {
		return nil, &jeterrors.IOError{Operation: "open", Path: path, Err: err}
	}
	db, err := openOn(backing, opts)
	if err != nil {
		return nil, err
	}
	db.log = jetlog.ForDatabase(path)
	return db, nil
}

// OpenInMemory opens a container whose bytes already live in data.
func OpenInMemory(data []byte, opts OpenOptions) (*Database, error) {
	return openOn(pagestore.NewMemoryBackingFrom(data), opts)
}

// OpenCopy reads path into memory and opens the in-memory copy, leaving
// the file on disk untouched even if the caller goes on to mutate the
// returned Database (spec.md §4.1's non-destructive open-copy path, used
// by tests that want to inspect a fixture without risking it).
func OpenCopy(path string, opts OpenOptions) (*Database, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &jeterrors.IOError{Operation: "read", Path: path, Err: err}
	}
	return OpenInMemory(raw, opts)
}

func openOn(backing pagestore.BackingStore, opts OpenOptions) (*Database, error) {
	channel, err := pagestore.Open(backing)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(channel)
	if err != nil {
		return nil, err
	}
	return newDatabase(channel, cat, opts.Eval), nil
}

func newDatabase(channel *pagestore.PageChannel, cat *catalog.Database, evalCfg evaluator.Config) *Database {
	db := &Database{
		channel: channel,
		cat:     cat,
		eval:    resolvedEval(evalCfg),
		log:     jetlog.Default(),
	}
	db.relationships = relationship.New(cat)
	db.relationships.SetMutator(db)
	db.complex = complexvalue.New(cat)
	return db
}

// withWriteBarrier runs fn inside an open write barrier, opening one if
// the channel does not already have one open (the nested case: fn itself
// recurses into another top-level Database method, as a cascade does).
// Caller-caused errors (uniqueness, referential-integrity, constraint,
// validation, invalid-argument, version-immutable, linked-read-only,
// savepoint-mismatch, cascade-cycle) still commit the barrier, since the
// operations that can raise them undo their own partial writes before
// returning (spec.md §7's "leaves the table unchanged" without poisoning
// the handle). Only corruption, I/O, an already-poisoned channel, and an
// unsupported format abort the barrier instead; every other error,
// including invalid-value and unknown-encoding ones, commits it.
func (db *Database) withWriteBarrier(fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	nested := db.channel.InWriteBarrier()
	if !nested {
		if err := db.channel.StartWrite(); err != nil {
			return err
		}
	}

	err := fn()
	if nested {
		return err
	}
	if err != nil && isFatal(err) {
		_ = db.channel.Abort(err)
		return err
	}
	if ferr := db.channel.FinishWrite(); ferr != nil {
		return ferr
	}
	return err
}

func isFatal(err error) bool {
	switch {
	case jeterrors.Is(err, jeterrors.ErrCorruptFile),
		jeterrors.Is(err, jeterrors.ErrIO),
		jeterrors.Is(err, jeterrors.ErrDatabasePoisoned),
		jeterrors.Is(err, jeterrors.ErrUnsupportedFormat):
		return true
	default:
		return false
	}
}

// Close releases the underlying backing store. It does not flush pending
// schema bookkeeping; call Flush first if the handle owns unsaved table
// page-list changes.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.channel.Close()
}

// Flush re-persists every table's current page-list bookkeeping into the
// catalog, so a subsequent Open sees an accurate page set.
func (db *Database) Flush() error {
	return db.withWriteBarrier(func() error {
		return db.cat.Flush()
	})
}

// CreateTable registers a new local table.
func (db *Database) CreateTable(name string, columns []table.ColumnDef) (*Table, error) {
	var entry *catalog.TableEntry
	err := db.withWriteBarrier(func() error {
		var err error
		entry, err = db.cat.CreateTable(name, columns)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Table{db: db, entry: entry}, nil
}

// CreateLinkedTable registers a table whose rows resolve through a
// previously registered LinkResolver (RegisterLinkResolver).
func (db *Database) CreateLinkedTable(name string, link catalog.LinkInfo) (*Table, error) {
	var entry *catalog.TableEntry
	err := db.withWriteBarrier(func() error {
		var err error
		entry, err = db.cat.CreateLinkedTable(name, link)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Table{db: db, entry: entry}, nil
}

// Table looks up a table by name (case-insensitive).
func (db *Database) Table(name string) (*Table, bool) {
	entry, ok := db.cat.Table(name)
	if !ok {
		return nil, false
	}
	return &Table{db: db, entry: entry}, true
}

// Tables returns every table, ordered by name.
func (db *Database) Tables() []*Table {
	entries := db.cat.Tables()
	out := make([]*Table, len(entries))
	for i, e := range entries {
		out[i] = &Table{db: db, entry: e}
	}
	return out
}

// RegisterLinkResolver installs the collaborator CreateLinkedTable and a
// reopen's schema load use to resolve tables of the given kind.
func (db *Database) RegisterLinkResolver(kind catalog.LinkKind, r catalog.LinkResolver) {
	db.cat.RegisterLinkResolver(kind, r)
}

// CreateIndex builds a new index on an existing table.
func (db *Database) CreateIndex(tableName, indexName string, columns []string, ascending []bool, unique, ignoreNull bool) (*Index, error) {
	var entry *catalog.IndexEntry
	err := db.withWriteBarrier(func() error {
		var err error
		entry, err = db.cat.CreateIndex(tableName, indexName, columns, ascending, unique, ignoreNull)
		return err
	})
	if err != nil {
		return nil, err
	}
	te, _ := db.cat.Table(tableName)
	return &Index{db: db, entry: te, idx: entry}, nil
}

// CreateRelationship registers a relationship between two already-indexed
// tables, enabling referential-integrity checks and cascades for it.
func (db *Database) CreateRelationship(r *relationship.Relationship) error {
	return db.withWriteBarrier(func() error {
		return db.relationships.Register(r)
	})
}

// SetEvaluatorConfig replaces the evaluator hook configuration consulted
// by every subsequent Insert/Update. A nil cfg.Eval falls back to
// evaluator.NoopEvaluator.
func (db *Database) SetEvaluatorConfig(cfg evaluator.Config) {
	db.eval = resolvedEval(cfg)
}

func (db *Database) evaluator() evaluator.Evaluator { return db.eval.Eval }

// SetProperty sets a database-level property (spec.md §4.6's PropertyMap).
func (db *Database) SetProperty(name, value string) error {
	return db.withWriteBarrier(func() error {
		return db.cat.SetProperty(name, value)
	})
}

// Property reads a database-level property.
func (db *Database) Property(name string) (string, bool) { return db.cat.Property(name) }

// RegisterComplexColumn creates (or attaches to) the hidden flat table
// backing a Multi-value, Attachment, or Version-history column.
func (db *Database) RegisterComplexColumn(c complexvalue.Column) (*complexvalue.Column, error) {
	var out *complexvalue.Column
	err := db.withWriteBarrier(func() error {
		var err error
		out, err = db.complex.Register(c)
		return err
	})
	return out, err
}

// ComplexColumn looks up a previously registered complex column.
func (db *Database) ComplexColumn(parentTable, columnName string) (*complexvalue.Column, bool) {
	return db.complex.Column(parentTable, columnName)
}

// NextComplexGroupID allocates a fresh complex-foreign-key value for c.
func (db *Database) NextComplexGroupID(c *complexvalue.Column) int64 {
	return db.complex.NextGroupID(c)
}

// AddMultiValue appends one value to complexID's group under c.
func (db *Database) AddMultiValue(c *complexvalue.Column, complexID int64, value any) (index.RowId, error) {
	var rowID index.RowId
	err := db.withWriteBarrier(func() error {
		var err error
		rowID, err = db.complex.AddMultiValue(c, complexID, value)
		return err
	})
	return rowID, err
}

// RemoveMultiValue removes one previously added value.
func (db *Database) RemoveMultiValue(c *complexvalue.Column, rowID index.RowId) error {
	return db.withWriteBarrier(func() error {
		return db.complex.RemoveMultiValue(c, rowID)
	})
}

// ListMultiValues lists every value in complexID's group under c.
func (db *Database) ListMultiValues(c *complexvalue.Column, complexID int64) ([]map[string]any, error) {
	return db.complex.ListMultiValues(c, complexID)
}

// AddAttachment appends one attachment to complexID's group under c.
func (db *Database) AddAttachment(c *complexvalue.Column, complexID int64, fileURL, fileName, fileType string, data []byte, timestamp time.Time) (index.RowId, error) {
	var rowID index.RowId
	err := db.withWriteBarrier(func() error {
		var err error
		rowID, err = db.complex.AddAttachment(c, complexID, fileURL, fileName, fileType, data, timestamp)
		return err
	})
	return rowID, err
}

// GetAttachment decodes one previously added attachment.
func (db *Database) GetAttachment(c *complexvalue.Column, rowID index.RowId) (*complexvalue.Attachment, error) {
	return db.complex.GetAttachment(c, rowID)
}

// RemoveAttachment removes one previously added attachment.
func (db *Database) RemoveAttachment(c *complexvalue.Column, rowID index.RowId) error {
	return db.withWriteBarrier(func() error {
		return db.complex.RemoveAttachment(c, rowID)
	})
}

// ListAttachments lists every attachment in complexID's group under c.
func (db *Database) ListAttachments(c *complexvalue.Column, complexID int64) ([]*complexvalue.Attachment, error) {
	return db.complex.ListAttachments(c, complexID)
}

// AddVersion appends a new, immutable version to complexID's history
// under c.
func (db *Database) AddVersion(c *complexvalue.Column, complexID int64, value string, modified time.Time) (index.RowId, error) {
	var rowID index.RowId
	err := db.withWriteBarrier(func() error {
		var err error
		rowID, err = db.complex.AddVersion(c, complexID, value, modified)
		return err
	})
	return rowID, err
}

// ListVersions lists complexID's version history, newest first.
func (db *Database) ListVersions(c *complexvalue.Column, complexID int64) ([]*complexvalue.Version, error) {
	return db.complex.ListVersions(c, complexID)
}

// DeleteRow implements relationship.Mutator: it deletes a row of
// tableName by RowId, including all of that row's own index maintenance
// and any cascades it in turn triggers, exactly as a direct Table.Delete
// call would.
func (db *Database) DeleteRow(tableName string, rowID index.RowId) error {
	entry, ok := db.cat.Table(tableName)
	if !ok {
		return &jeterrors.InvalidArgumentError{Operation: "DeleteRow", Reason: fmt.Sprintf("unknown table %q", tableName)}
	}
	return db.deleteRow(entry, rowID)
}

// UpdateRow implements relationship.Mutator: it merges values into the
// row of tableName at rowID, including index maintenance and any
// cascades it in turn triggers.
func (db *Database) UpdateRow(tableName string, rowID index.RowId, values map[string]any) error {
	entry, ok := db.cat.Table(tableName)
	if !ok {
		return &jeterrors.InvalidArgumentError{Operation: "UpdateRow", Reason: fmt.Sprintf("unknown table %q", tableName)}
	}
	return db.updateRow(entry, rowID, values)
}
