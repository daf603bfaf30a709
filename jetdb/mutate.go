package jetdb

import (
	"strings"

	"github.com/jetfile/jetdb/internal/catalog"
	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/jeterrors"
)

// columnMaps indexes a table's column schema by lowercased name, the
// lookup buildIndexKey and the evaluator hooks need when matching a
// column by name against caller-supplied values.
func columnMaps(cols []table.ColumnDef) (map[string]codec.Type, map[string]codec.Options) {
	types := make(map[string]codec.Type, len(cols))
	opts := make(map[string]codec.Options, len(cols))
	for _, c := range cols {
		types[strings.ToLower(c.Name)] = c.Type
		opts[strings.ToLower(c.Name)] = c.Options
	}
	return types, opts
}

func allNull(cols []string, values map[string]any) bool {
	for _, c := range cols {
		if v, ok := values[c]; ok && v != nil {
			return false
		}
	}
	return true
}

func mergeValues(base, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// enrichUniqueness fills in the table and index names on a raw
// UniquenessViolationError returned by IndexData.Insert, which only knows
// the encoded key, not which table or index it belongs to.
func enrichUniqueness(err error, tableName, indexName string) error {
	var uv *jeterrors.UniquenessViolationError
	if jeterrors.As(err, &uv) {
		return &jeterrors.UniquenessViolationError{Table: tableName, Index: indexName, Key: uv.Key}
	}
	return err
}

// buildIndexKey encodes idx's composite key from values, using entry's
// column schema to resolve each component's codec type and options.
func (db *Database) buildIndexKey(entry *catalog.TableEntry, idx *catalog.IndexEntry, values map[string]any) ([]byte, error) {
	types, opts := columnMaps(entry.Columns)
	cols := make([]codec.IndexKeyColumn, len(idx.Columns))
	for i, name := range idx.Columns {
		t, ok := types[strings.ToLower(name)]
		if !ok {
			return nil, &jeterrors.InvalidArgumentError{Operation: "buildIndexKey", Reason: "unknown column " + name}
		}
		cols[i] = codec.IndexKeyColumn{
			Name:      name,
			Type:      t,
			Value:     values[name],
			Options:   opts[strings.ToLower(name)],
			Ascending: idx.Ascending[i],
		}
	}
	return codec.EncodeIndexKey(cols)
}

type insertedEntry struct {
	idx *catalog.IndexEntry
	key []byte
}

// insertIndexEntries inserts (key, rowID) into every index on entry that
// values should be reachable through, skipping ignore-null indexes whose
// columns are all null. On the first failure it removes every entry
// already inserted during this call before returning the enriched error,
// so a unique-index violation on the third index leaves the first two
// untouched rather than half-indexed.
func (db *Database) insertIndexEntries(entry *catalog.TableEntry, values map[string]any, rowID index.RowId) error {
	var inserted []insertedEntry
	for _, idx := range entry.Indexes {
		if idx.IgnoreNull && allNull(idx.Columns, values) {
			continue
		}
		key, err := db.buildIndexKey(entry, idx, values)
		if err != nil {
			db.removeIndexEntries(inserted, rowID)
			return err
		}
		if err := idx.Data.Insert(key, rowID); err != nil {
			db.removeIndexEntries(inserted, rowID)
			return enrichUniqueness(err, entry.Name, idx.Name)
		}
		inserted = append(inserted, insertedEntry{idx, key})
	}
	return nil
}

func (db *Database) removeIndexEntries(inserted []insertedEntry, rowID index.RowId) {
	for _, e := range inserted {
		if err := e.idx.Data.Delete(e.key, rowID); err != nil {
			db.log.Warn("failed to roll back index entry", "index", e.idx.Name, "err", err)
		}
	}
}

func (db *Database) removeOldIndexEntries(entry *catalog.TableEntry, values map[string]any, rowID index.RowId) ([]insertedEntry, error) {
	var removed []insertedEntry
	for _, idx := range entry.Indexes {
		if idx.IgnoreNull && allNull(idx.Columns, values) {
			continue
		}
		key, err := db.buildIndexKey(entry, idx, values)
		if err != nil {
			db.reinsertIndexEntries(removed, rowID)
			return nil, err
		}
		if err := idx.Data.Delete(key, rowID); err != nil {
			db.reinsertIndexEntries(removed, rowID)
			return nil, err
		}
		removed = append(removed, insertedEntry{idx, key})
	}
	return removed, nil
}

func (db *Database) reinsertIndexEntries(removed []insertedEntry, rowID index.RowId) {
	for _, e := range removed {
		if err := e.idx.Data.Insert(e.key, rowID); err != nil {
			db.log.Warn("failed to restore index entry after rollback", "index", e.idx.Name, "err", err)
		}
	}
}

// prepareInsert resolves auto-number assignment and the evaluator hooks
// (default, calculated, per-column validation, whole-row validation)
// against a copy of the caller's values, in the order spec.md §6
// describes. It returns the column name an auto-number value was
// assigned to, if any, so the caller can roll that counter back on a
// later failure.
func (db *Database) prepareInsert(entry *catalog.TableEntry, values map[string]any) (map[string]any, string, error) {
	out := make(map[string]any, len(values)+len(entry.Columns))
	for k, v := range values {
		out[k] = v
	}

	var autoCol string
	for _, c := range entry.Columns {
		if c.AutoNumber {
			autoCol = c.Name
			out[c.Name] = entry.Data.NextAutoNumber()
		}
	}

	ev := db.evaluator()
	for _, c := range entry.Columns {
		if !c.HasDefault {
			continue
		}
		if v, ok := out[c.Name]; ok && v != nil {
			continue
		}
		dv, err := ev.EvaluateDefault(c, out)
		if err != nil {
			return nil, autoCol, err
		}
		out[c.Name] = dv
	}

	if err := db.applyCalculatedAndValidate(entry, out); err != nil {
		return nil, autoCol, err
	}
	return out, autoCol, nil
}

func (db *Database) applyCalculatedAndValidate(entry *catalog.TableEntry, values map[string]any) error {
	ev := db.evaluator()
	for _, c := range entry.Columns {
		if !c.Calculated {
			continue
		}
		cv, err := ev.EvaluateCalculated(c, values)
		if err != nil {
			return err
		}
		values[c.Name] = cv
	}
	for _, c := range entry.Columns {
		if !c.Validate {
			continue
		}
		res, err := ev.ValidateColumn(c, values)
		if err != nil {
			return err
		}
		if !res.OK() {
			return &jeterrors.ConstraintViolationError{Table: entry.Name, Column: c.Name, Reason: res.Message}
		}
	}
	res, err := ev.ValidateRow(entry.Name, values)
	if err != nil {
		return err
	}
	if !res.OK() {
		return &jeterrors.ConstraintViolationError{Table: entry.Name, Reason: res.Message}
	}
	return nil
}

// insertRow is the shared core of Table.Insert: resolve defaults and
// calculated/validated values, check referential integrity against
// parent tables, insert the row, then maintain every index. A failure at
// any step after the auto-number counter was consumed rolls that counter
// back; a failure during index maintenance additionally tombstones the
// just-inserted row so the table's visible row count returns to its
// pre-insert value (spec.md §8 invariant 3).
func (db *Database) insertRow(entry *catalog.TableEntry, values map[string]any) (index.RowId, error) {
	if !entry.Writable() {
		return index.RowId{}, &jeterrors.LinkedTableReadOnlyError{Table: entry.Name}
	}

	prepared, autoCol, err := db.prepareInsert(entry, values)
	if err != nil {
		if autoCol != "" {
			entry.Data.RollbackAutoNumber()
		}
		return index.RowId{}, err
	}

	if err := db.relationships.CheckReferentialIntegrity(entry.Name, prepared); err != nil {
		if autoCol != "" {
			entry.Data.RollbackAutoNumber()
		}
		return index.RowId{}, err
	}

	rowID, err := entry.Data.Insert(prepared)
	if err != nil {
		if autoCol != "" {
			entry.Data.RollbackAutoNumber()
		}
		return index.RowId{}, err
	}

	if err := db.insertIndexEntries(entry, prepared, rowID); err != nil {
		if derr := entry.Data.Delete(rowID); derr != nil {
			db.log.Warn("failed to roll back inserted row after index failure", "table", entry.Name, "err", derr)
		}
		if autoCol != "" {
			entry.Data.RollbackAutoNumber()
		}
		return index.RowId{}, err
	}

	return rowID, nil
}

// updateRow is the shared core of Table.Update and the relationship
// engine's cascade path: merge updates over the current row, re-run
// calculated/validation hooks, check referential integrity, swap the
// row's index entries, rewrite the row, then fire any cascade the change
// triggers on the rows' own children. Every step before the row is
// rewritten is undone on failure, leaving the row and its indexes
// exactly as they were (spec.md §7).
func (db *Database) updateRow(entry *catalog.TableEntry, rowID index.RowId, updates map[string]any) error {
	if !entry.Writable() {
		return &jeterrors.LinkedTableReadOnlyError{Table: entry.Name}
	}

	oldValues, ok, err := entry.Data.Get(rowID)
	if err != nil {
		return err
	}
	if !ok {
		return &jeterrors.InvalidArgumentError{Operation: "Update", Reason: "row does not exist"}
	}

	merged := mergeValues(oldValues, updates)
	if err := db.applyCalculatedAndValidate(entry, merged); err != nil {
		return err
	}
	if err := db.relationships.CheckReferentialIntegrity(entry.Name, merged); err != nil {
		return err
	}

	removed, err := db.removeOldIndexEntries(entry, oldValues, rowID)
	if err != nil {
		return err
	}

	if err := entry.Data.Update(rowID, merged); err != nil {
		db.reinsertIndexEntries(removed, rowID)
		return err
	}

	if err := db.insertIndexEntries(entry, merged, rowID); err != nil {
		if rerr := entry.Data.Update(rowID, oldValues); rerr != nil {
			db.log.Warn("failed to restore row after index failure", "table", entry.Name, "err", rerr)
		}
		db.reinsertIndexEntries(removed, rowID)
		return err
	}

	return db.relationships.OnParentUpdate(entry.Name, oldValues, merged)
}

// deleteRow is the shared core of Table.Delete and the relationship
// engine's cascade path: fire OnParentDelete while the row's values are
// still readable, then remove every index entry and tombstone the row
// itself. Deleting an already-deleted (or never-existent) RowId is a
// no-op, matching spec.md §4.5's idempotent delete.
func (db *Database) deleteRow(entry *catalog.TableEntry, rowID index.RowId) error {
	if !entry.Writable() {
		return &jeterrors.LinkedTableReadOnlyError{Table: entry.Name}
	}

	values, ok, err := entry.Data.Get(rowID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := db.relationships.OnParentDelete(entry.Name, values); err != nil {
		return err
	}

	for _, idx := range entry.Indexes {
		if idx.IgnoreNull && allNull(idx.Columns, values) {
			continue
		}
		key, err := db.buildIndexKey(entry, idx, values)
		if err != nil {
			return err
		}
		if err := idx.Data.Delete(key, rowID); err != nil {
			return err
		}
	}

	return entry.Data.Delete(rowID)
}
