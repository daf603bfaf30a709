package catalog

import (
	"strconv"
	"strings"

	"github.com/jetfile/jetdb/internal/codec"
	"github.com/jetfile/jetdb/internal/pagestore"
	"github.com/jetfile/jetdb/internal/table"
	"github.com/jetfile/jetdb/jeterrors"
)

// Column definitions, index column lists, and property maps all live inside
// the system object table's own TextVariable columns, so each gets a small
// delimited encoding rather than a dedicated page structure: spec.md §4.6
// does not describe a wire format for the catalog's own metadata rows, only
// the materialized shape callers observe, and schema changes are rare enough
// that a compact text encoding costs nothing in practice.

// columnFlag bits pack the four evaluator/auto-number-related booleans of
// table.ColumnDef into the schema record's flags field, rather than
// growing the delimited record by one field per future boolean.
const (
	columnFlagAutoNumber = 1 << iota
	columnFlagHasDefault
	columnFlagCalculated
	columnFlagValidate
)

func columnFlags(c table.ColumnDef) int {
	var f int
	if c.AutoNumber {
		f |= columnFlagAutoNumber
	}
	if c.HasDefault {
		f |= columnFlagHasDefault
	}
	if c.Calculated {
		f |= columnFlagCalculated
	}
	if c.Validate {
		f |= columnFlagValidate
	}
	return f
}

// serializeColumns renders a column schema as one semicolon-separated record
// per column: name:type:precision:scale:compress:maxsize:nullable:flags:properties.
// The trailing properties field is parsed with a bounded split so a
// property value may itself contain a colon.
func serializeColumns(columns []table.ColumnDef) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		compress := "0"
		if c.Options.Compress {
			compress = "1"
		}
		nullable := "0"
		if c.Nullable {
			nullable = "1"
		}
		parts = append(parts, strings.Join([]string{
			c.Name,
			strconv.Itoa(int(c.Type)),
			strconv.Itoa(int(c.Options.Precision)),
			strconv.Itoa(int(c.Options.Scale)),
			compress,
			strconv.Itoa(c.Options.MaxSize),
			nullable,
			strconv.Itoa(columnFlags(c)),
			serializeProperties(c.Properties),
		}, ":"))
	}
	return strings.Join(parts, ";")
}

func parseColumns(blob string) ([]table.ColumnDef, error) {
	if blob == "" {
		return nil, nil
	}
	records := strings.Split(blob, ";")
	out := make([]table.ColumnDef, 0, len(records))
	for _, rec := range records {
		fields := strings.SplitN(rec, ":", 9)
		if len(fields) != 9 {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "malformed column schema record")
		}
		typVal, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "malformed column type")
		}
		precision, _ := strconv.Atoi(fields[2])
		scale, _ := strconv.Atoi(fields[3])
		maxSize, _ := strconv.Atoi(fields[5])
		flags, _ := strconv.Atoi(fields[7])
		out = append(out, table.ColumnDef{
			Name: fields[0],
			Type: codec.Type(typVal),
			Options: codec.Options{
				Precision: byte(precision),
				Scale:     byte(scale),
				Compress:  fields[4] == "1",
				MaxSize:   maxSize,
			},
			Nullable:   fields[6] == "1",
			AutoNumber: flags&columnFlagAutoNumber != 0,
			HasDefault: flags&columnFlagHasDefault != 0,
			Calculated: flags&columnFlagCalculated != 0,
			Validate:   flags&columnFlagValidate != 0,
			Properties: parseProperties(fields[8]),
		})
	}
	return out, nil
}

func serializeStrings(items []string) string { return strings.Join(items, ",") }

func parseStrings(blob string) []string {
	if blob == "" {
		return nil
	}
	return strings.Split(blob, ",")
}

func serializeBools(items []bool) string {
	parts := make([]string, len(items))
	for i, b := range items {
		if b {
			parts[i] = "1"
		} else {
			parts[i] = "0"
		}
	}
	return strings.Join(parts, ",")
}

func parseBools(blob string) []bool {
	if blob == "" {
		return nil
	}
	fields := strings.Split(blob, ",")
	out := make([]bool, len(fields))
	for i, f := range fields {
		out[i] = f == "1"
	}
	return out
}

// serializePages and parsePages round-trip a table's or index's owned page
// list (the page set a UsageMap tracks) through the dataPagesBlob column,
// since this engine's UsageMap keeps that set in process memory rather
// than in its owning page's own bytes: without this, a reopened file would
// have no way to rediscover which pages belong to which table.
func serializePages(pages []pagestore.Pgno) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}
	return strings.Join(parts, ",")
}

func parsePages(blob string) ([]pagestore.Pgno, error) {
	if blob == "" {
		return nil, nil
	}
	fields := strings.Split(blob, ",")
	out := make([]pagestore.Pgno, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, jeterrors.Wrap(jeterrors.ErrCorruptFile, "malformed page list")
		}
		out[i] = pagestore.Pgno(n)
	}
	return out, nil
}

// serializeProperties and parseProperties round-trip a PropertyMap (spec.md
// §4.6) through the same TextVariable column an ordinary row-update would
// touch, so SetProperty is not a special write path: it mutates the
// in-memory map, re-serializes, and calls Table.Update exactly like any
// other column change.
func serializeProperties(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+props[k])
	}
	return strings.Join(parts, "\x00")
}

func parseProperties(blob string) map[string]string {
	out := make(map[string]string)
	if blob == "" {
		return out
	}
	for _, rec := range strings.Split(blob, "\x00") {
		eq := strings.IndexByte(rec, '=')
		if eq < 0 {
			continue
		}
		out[rec[:eq]] = rec[eq+1:]
	}
	return out
}
