// Package complexvalue implements the complex-value engine spec.md §4.8
// describes: a complex column in a flat table does not store its value
// directly, it stores a ComplexForeignKey pointing at a group of rows in
// a hidden flat table this package creates and maintains. The three
// kinds — Multi-value, Attachment, Version history — differ only in the
// hidden table's column shape and in which operations are allowed against
// it; all three resolve the foreign key and then drive catalog.Database's
// ordinary table/index operations, nesting inside whatever write barrier
// the caller already has open.
package complexvalue

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jetfile/jetdb/internal/catalog"
	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/index"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/jeterrors"
)

// Kind identifies the shape of hidden flat table backing a complex column.
type Kind byte

const (
	KindMultiValue Kind = iota + 1
	KindAttachment
	KindVersionHistory
)

// deflateCompressThreshold is the payload size below which an attachment's
// FileData is stored raw: below this many bytes the DEFLATE/zlib framing
// itself can exceed the saving, so spec.md S4 always compresses at or
// above it and never below.
const deflateCompressThreshold = 8

// Stored attachment payloads begin with an 8-byte header: a 4-byte
// compression flag followed by a 4-byte little-endian original length,
// then the payload itself (compressed or raw per the flag).
var (
	attachmentFlagRaw        = [4]byte{0, 0, 0, 0}
	attachmentFlagCompressed = [4]byte{1, 0, 0, 0}
)

// Column describes one complex column: the parent table/column it backs,
// the shape of its hidden flat table, and (for Multi-value) the simple
// type its one value column holds.
type Column struct {
	ParentTable string
	ColumnName  string
	Kind        Kind
	ValueType   codec.Type
	ValueOpts   codec.Options

	flatTable string
}

// Engine manages the hidden flat tables backing every registered complex
// column, and the operations spec.md §4.8 allows against each kind.
type Engine struct {
	db      *catalog.Database
	columns map[string]*Column
	groupCounters map[string]*atomic.Int64
}

// New returns an Engine over db.
func New(db *catalog.Database) *Engine {
	return &Engine{db: db, columns: make(map[string]*Column), groupCounters: make(map[string]*atomic.Int64)}
}

func columnKey(parentTable, columnName string) string {
	return strings.ToLower(parentTable) + "." + strings.ToLower(columnName)
}

// Register creates the hidden flat table and group index for a complex
// column, or attaches to it if it already exists (a reopened file whose
// schema loadSchema already materialized). Returns the Column handle
// every other Engine method is called against.
func (e *Engine) Register(c Column) (*Column, error) {
	c.flatTable = fmt.Sprintf("%s_%s_complex", c.ParentTable, c.ColumnName)

	if _, ok := e.db.Table(c.flatTable); ok {
		cp := c
		e.columns[columnKey(c.ParentTable, c.ColumnName)] = &cp
		return &cp, nil
	}

	columns, err := flatColumns(c)
	if err != nil {
		return nil, err
	}
	if _, err := e.db.CreateTable(c.flatTable, columns); err != nil {
		return nil, err
	}
	if _, err := e.db.CreateIndex(c.flatTable, c.flatTable+"_group", []string{"complexId"}, []bool{true}, false, false); err != nil {
		return nil, err
	}

	cp := c
	e.columns[columnKey(c.ParentTable, c.ColumnName)] = &cp
	return &cp, nil
}

// Column looks up a previously registered complex column.
func (e *Engine) Column(parentTable, columnName string) (*Column, bool) {
	c, ok := e.columns[columnKey(parentTable, columnName)]
	return c, ok
}

// NextGroupID allocates a fresh, unique complex-foreign-key value for c,
// the id the caller stores in the parent row's ComplexForeignKey column
// before adding any group rows under it (spec.md §3's "a non-zero value
// is unique within the complex column"). Counters are per column, not
// shared across complex columns, mirroring each column's own hidden flat
// table.
func (e *Engine) NextGroupID(c *Column) int64 {
	key := columnKey(c.ParentTable, c.ColumnName)
	counter, ok := e.groupCounters[key]
	if !ok {
		counter = &atomic.Int64{}
		e.groupCounters[key] = counter
	}
	return counter.Add(1)
}

func flatColumns(c Column) ([]table.ColumnDef, error) {
	base := []table.ColumnDef{
		{Name: "id", Type: codec.Long},
		{Name: "complexId", Type: codec.Long},
	}
	switch c.Kind {
	case KindMultiValue:
		if c.ValueType == 0 {
			return nil, &jeterrors.InvalidArgumentError{Operation: "Register", Reason: "multi-value column requires a ValueType"}
		}
		return append(base, table.ColumnDef{Name: "value", Type: c.ValueType, Options: c.ValueOpts, Nullable: true}), nil
	case KindAttachment:
		return append(base,
			table.ColumnDef{Name: "FileURL", Type: codec.Memo, Nullable: true},
			table.ColumnDef{Name: "FileName", Type: codec.TextVariable},
			table.ColumnDef{Name: "FileType", Type: codec.TextVariable, Nullable: true},
			table.ColumnDef{Name: "FileData", Type: codec.OLE, Nullable: true},
			table.ColumnDef{Name: "FileTimeStamp", Type: codec.ExtendedDateTime},
			table.ColumnDef{Name: "FileFlags", Type: codec.Long},
		), nil
	case KindVersionHistory:
		return append(base,
			table.ColumnDef{Name: "value", Type: codec.Memo, Nullable: true},
			table.ColumnDef{Name: "modified", Type: codec.ExtendedDateTime},
		), nil
	default:
		return nil, &jeterrors.InvalidArgumentError{Operation: "Register", Reason: "unknown complex value kind"}
	}
}

func (e *Engine) flatTable(c *Column) (*catalog.TableEntry, error) {
	te, ok := e.db.Table(c.flatTable)
	if !ok {
		return nil, &jeterrors.InvalidArgumentError{Operation: "complexvalue", Reason: "complex column is not registered"}
	}
	return te, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// AddMultiValue appends one value to a Multi-value complex column's group.
func (e *Engine) AddMultiValue(c *Column, complexID int64, value any) (index.RowId, error) {
	if c.Kind != KindMultiValue {
		return index.RowId{}, &jeterrors.InvalidArgumentError{Operation: "AddMultiValue", Reason: "column is not Multi-value"}
	}
	te, err := e.flatTable(c)
	if err != nil {
		return index.RowId{}, err
	}
	return te.Data.Insert(map[string]any{
		"id":        te.Data.NextAutoNumber(),
		"complexId": complexID,
		"value":     value,
	})
}

// RemoveMultiValue deletes one value row from a Multi-value group.
func (e *Engine) RemoveMultiValue(c *Column, rowID index.RowId) error {
	if c.Kind != KindMultiValue {
		return &jeterrors.InvalidArgumentError{Operation: "RemoveMultiValue", Reason: "column is not Multi-value"}
	}
	te, err := e.flatTable(c)
	if err != nil {
		return err
	}
	return te.Data.Delete(rowID)
}

// ListMultiValues returns every value in complexID's group, in group-scan
// (ascending complexId, then row) order.
func (e *Engine) ListMultiValues(c *Column, complexID int64) ([]map[string]any, error) {
	if c.Kind != KindMultiValue {
		return nil, &jeterrors.InvalidArgumentError{Operation: "ListMultiValues", Reason: "column is not Multi-value"}
	}
	return e.scanGroup(c, complexID)
}

// appendHeader assembles a stored attachment payload: 4-byte flag, 4-byte
// little-endian decoded length, then the payload bytes. decodedLen is the
// length of the fully decoded content — for a compressed blob that
// includes the extension preamble prepended ahead of the real payload,
// not just the payload's own length.
func appendHeader(flag [4]byte, decodedLen uint32, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload))
	out = append(out, flag[:]...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], decodedLen)
	out = append(out, lenBuf[:]...)
	return append(out, payload...)
}

// extensionPreamble builds spec.md §4.3's length-prefixed "file extension"
// preamble: a 2-byte little-endian length followed by the extension bytes
// (fileName's suffix after the last dot, without the dot itself).
func extensionPreamble(fileName string) []byte {
	ext := ""
	if i := strings.LastIndexByte(fileName, '.'); i >= 0 {
		ext = fileName[i+1:]
	}
	out := make([]byte, 2+len(ext))
	binary.LittleEndian.PutUint16(out[:2], uint16(len(ext)))
	copy(out[2:], ext)
	return out
}

func encodeAttachmentData(raw []byte, fileName string) ([]byte, error) {
	if len(raw) < deflateCompressThreshold {
		return appendHeader(attachmentFlagRaw, uint32(len(raw)), raw), nil
	}
	preamble := extensionPreamble(fileName)
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(preamble); err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return appendHeader(attachmentFlagCompressed, uint32(len(preamble)+len(raw)), buf.Bytes()), nil
}

func decodeAttachmentData(blob []byte) ([]byte, error) {
	if len(blob) < 8 {
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "attachment payload truncated")
	}
	var flag [4]byte
	copy(flag[:], blob[:4])
	decodedLen := binary.LittleEndian.Uint32(blob[4:8])
	payload := blob[8:]
	switch flag {
	case attachmentFlagRaw:
		return payload, nil
	case attachmentFlagCompressed:
		r := flate.NewReader(bytes.NewReader(payload))
		defer r.Close()
		decoded := make([]byte, decodedLen)
		if _, err := io.ReadFull(r, decoded); err != nil {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "attachment payload failed to decompress")
		}
		if len(decoded) < 2 {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "attachment extension preamble truncated")
		}
		extLen := int(binary.LittleEndian.Uint16(decoded[:2]))
		if 2+extLen > len(decoded) {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "attachment extension preamble overruns payload")
		}
		return decoded[2+extLen:], nil
	default:
		return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "unrecognized attachment compression flag")
	}
}

// Attachment is the decoded view of one attachment row: FileData already
// has its header stripped and, if compressed, inflated.
type Attachment struct {
	RowID     index.RowId
	FileURL   string
	FileName  string
	FileType  string
	FileData  []byte
	Timestamp time.Time
	Flags     int64
}

// AddAttachment stores one file in an Attachment complex column's group.
func (e *Engine) AddAttachment(c *Column, complexID int64, fileURL, fileName, fileType string, data []byte, timestamp time.Time) (index.RowId, error) {
	if c.Kind != KindAttachment {
		return index.RowId{}, &jeterrors.InvalidArgumentError{Operation: "AddAttachment", Reason: "column is not Attachment"}
	}
	encoded, err := encodeAttachmentData(data, fileName)
	if err != nil {
		return index.RowId{}, err
	}
	te, err := e.flatTable(c)
	if err != nil {
		return index.RowId{}, err
	}
	return te.Data.Insert(map[string]any{
		"id":            te.Data.NextAutoNumber(),
		"complexId":     complexID,
		"FileURL":       nullableString(fileURL),
		"FileName":      fileName,
		"FileType":      nullableString(fileType),
		"FileData":      encoded,
		"FileTimeStamp": timestamp,
		"FileFlags":     int64(0),
	})
}

// GetAttachment reads and decodes one attachment row.
func (e *Engine) GetAttachment(c *Column, rowID index.RowId) (*Attachment, error) {
	if c.Kind != KindAttachment {
		return nil, &jeterrors.InvalidArgumentError{Operation: "GetAttachment", Reason: "column is not Attachment"}
	}
	te, err := e.flatTable(c)
	if err != nil {
		return nil, err
	}
	values, ok, err := te.Data.Get(rowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return decodeAttachmentRow(rowID, values)
}

func decodeAttachmentRow(rowID index.RowId, values map[string]any) (*Attachment, error) {
	raw, _ := values["FileData"].([]byte)
	data, err := decodeAttachmentData(raw)
	if err != nil {
		return nil, err
	}
	ts, _ := values["FileTimeStamp"].(time.Time)
	flags, _ := values["FileFlags"].(int64)
	return &Attachment{
		RowID:     rowID,
		FileURL:   asString(values["FileURL"]),
		FileName:  asString(values["FileName"]),
		FileType:  asString(values["FileType"]),
		FileData:  data,
		Timestamp: ts,
		Flags:     flags,
	}, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// RemoveAttachment deletes one attachment row from the group.
func (e *Engine) RemoveAttachment(c *Column, rowID index.RowId) error {
	if c.Kind != KindAttachment {
		return &jeterrors.InvalidArgumentError{Operation: "RemoveAttachment", Reason: "column is not Attachment"}
	}
	te, err := e.flatTable(c)
	if err != nil {
		return err
	}
	return te.Data.Delete(rowID)
}

// ListAttachments returns every attachment in complexID's group, decoded.
func (e *Engine) ListAttachments(c *Column, complexID int64) ([]*Attachment, error) {
	if c.Kind != KindAttachment {
		return nil, &jeterrors.InvalidArgumentError{Operation: "ListAttachments", Reason: "column is not Attachment"}
	}
	rows, err := e.scanGroupRows(c, complexID)
	if err != nil {
		return nil, err
	}
	out := make([]*Attachment, 0, len(rows))
	for _, r := range rows {
		a, err := decodeAttachmentRow(r.rowID, r.values)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// AddVersion appends a new, immutable entry to a Version history complex
// column's group.
func (e *Engine) AddVersion(c *Column, complexID int64, value string, modified time.Time) (index.RowId, error) {
	if c.Kind != KindVersionHistory {
		return index.RowId{}, &jeterrors.InvalidArgumentError{Operation: "AddVersion", Reason: "column is not Version history"}
	}
	te, err := e.flatTable(c)
	if err != nil {
		return index.RowId{}, err
	}
	return te.Data.Insert(map[string]any{
		"id":        te.Data.NextAutoNumber(),
		"complexId": complexID,
		"value":     nullableString(value),
		"modified":  modified,
	})
}

// UpdateVersion and DeleteVersion always fail: version history entries
// are append-only (spec.md §4.8).
func (e *Engine) UpdateVersion(c *Column, rowID index.RowId, _ map[string]any) error {
	return e.versionImmutable(c, rowID)
}

func (e *Engine) DeleteVersion(c *Column, rowID index.RowId) error {
	return e.versionImmutable(c, rowID)
}

func (e *Engine) versionImmutable(c *Column, rowID index.RowId) error {
	if c.Kind != KindVersionHistory {
		return &jeterrors.InvalidArgumentError{Operation: "versionImmutable", Reason: "column is not Version history"}
	}
	return &jeterrors.VersionImmutableError{Table: c.flatTable, Version: int(rowID.Slot)}
}

// Version is the decoded view of one version-history entry.
type Version struct {
	RowID    index.RowId
	Value    string
	Modified time.Time
	id       int64
}

// ListVersions returns every version in complexID's group ordered newest
// first: descending by modified date, ties broken by descending value id
// (spec.md §4.8's "most recent version first" contract).
func (e *Engine) ListVersions(c *Column, complexID int64) ([]*Version, error) {
	if c.Kind != KindVersionHistory {
		return nil, &jeterrors.InvalidArgumentError{Operation: "ListVersions", Reason: "column is not Version history"}
	}
	rows, err := e.scanGroupRows(c, complexID)
	if err != nil {
		return nil, err
	}
	out := make([]*Version, 0, len(rows))
	for _, r := range rows {
		modified, _ := r.values["modified"].(time.Time)
		id, _ := r.values["id"].(int64)
		out = append(out, &Version{
			RowID:    r.rowID,
			Value:    asString(r.values["value"]),
			Modified: modified,
			id:       id,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Modified.Equal(out[j].Modified) {
			return out[i].Modified.After(out[j].Modified)
		}
		return out[i].id > out[j].id
	})
	return out, nil
}

type groupRow struct {
	rowID  index.RowId
	values map[string]any
}

// scanGroupRows walks the group index for every row whose complexId
// matches, in index order.
func (e *Engine) scanGroupRows(c *Column, complexID int64) ([]groupRow, error) {
	te, err := e.flatTable(c)
	if err != nil {
		return nil, err
	}
	idx := te.Indexes[strings.ToLower(c.flatTable+"_group")]
	target, err := codec.EncodeIndexKey([]codec.IndexKeyColumn{
		{Name: "complexId", Type: codec.Long, Value: complexID, Ascending: true},
	})
	if err != nil {
		return nil, err
	}

	cur := index.NewCursor(idx.Data, true)
	if err := cur.Seek(target); err != nil {
		return nil, err
	}
	var out []groupRow
	for {
		key, row, ok := cur.Current()
		if !ok || !bytes.Equal(key, target) {
			break
		}
		values, found, err := te.Data.Get(row)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, groupRow{rowID: row, values: values})
		}
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) scanGroup(c *Column, complexID int64) ([]map[string]any, error) {
	rows, err := e.scanGroupRows(c, complexID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r.values
	}
	return out, nil
}
