package pagestore

import (
	"encoding/binary"
	"time"

	"github.com/jetfile/jetdb/jeterrors"
)

// FormatVersion identifies one of the five supported on-disk format
// generations. Page size, maximum row size, and the system-root page are
// derived from the version rather than stored redundantly per spec.md §6.
type FormatVersion uint8

const (
	Jet3 FormatVersion = iota + 1
	Jet4
	V2003
	V2007
	V2010
)

// versionDescriptor is the per-version constant table spec.md §1 calls out
// as out of scope to enumerate exhaustively; the engine still needs the
// handful of values that change page layout.
type versionDescriptor struct {
	pageSize       int
	maxRowSize     int
	systemRootPage Pgno
	defaultCharset string
}

var versionDescriptors = map[FormatVersion]versionDescriptor{
	Jet3:  {pageSize: 2048, maxRowSize: 2048, systemRootPage: 1, defaultCharset: "cp1252"},
	Jet4:  {pageSize: 4096, maxRowSize: 4056, systemRootPage: 1, defaultCharset: "utf16le"},
	V2003: {pageSize: 4096, maxRowSize: 4056, systemRootPage: 1, defaultCharset: "utf16le"},
	V2007: {pageSize: 4096, maxRowSize: 4056, systemRootPage: 1, defaultCharset: "utf16le"},
	V2010: {pageSize: 4096, maxRowSize: 4056, systemRootPage: 1, defaultCharset: "utf16le"},
}

// PageSize returns the fixed page size for this format version.
func (v FormatVersion) PageSize() int { return versionDescriptors[v].pageSize }

// MaxRowSize returns the maximum encoded row size this version permits.
func (v FormatVersion) MaxRowSize() int { return versionDescriptors[v].maxRowSize }

// SystemRootPage returns the page number of the system object table's root.
func (v FormatVersion) SystemRootPage() Pgno { return versionDescriptors[v].systemRootPage }

// DefaultCharset returns the version's default text encoding name.
func (v FormatVersion) DefaultCharset() string { return versionDescriptors[v].defaultCharset }

// Valid reports whether v is one of the five recognized generations.
func (v FormatVersion) Valid() bool {
	_, ok := versionDescriptors[v]
	return ok
}

func (v FormatVersion) String() string {
	switch v {
	case Jet3:
		return "Jet3"
	case Jet4:
		return "Jet4"
	case V2003:
		return "V2003"
	case V2007:
		return "V2007"
	case V2010:
		return "V2010"
	default:
		return "unknown"
	}
}

// Page type tags, the one-byte value every non-header page carries at
// offset 0 per spec.md §3.
const (
	PageTypeData      byte = 0x01
	PageTypeTableDef  byte = 0x02
	PageTypeIndexDef  byte = 0x03
	PageTypeIndexNode byte = 0x04
	PageTypeIndexLeaf byte = 0x05
	PageTypeUsageMap  byte = 0x06
)

// FileHeaderSize is the fixed size of page 0, independent of the data page
// size (the header never needs the full page).
const FileHeaderSize = 64

// magicBytes identifies a Jet-family container. Distinct from any real
// product's magic to avoid implying wire-level compatibility with files
// this exercise never opens.
var magicBytes = [4]byte{0x4a, 0x45, 0x54, 0x00} // "JET\0"

// Header offsets within page 0.
const (
	offMagic          = 0
	offFormatVersion  = 4
	offDefaultCharset = 5 // 1-byte index into a small fixed charset table
	offCreateDateUnix = 8 // int64, seconds since Unix epoch
	offPageCount      = 16
	offFreePageHead   = 20
	offSystemRoot     = 24
	offChangeCounter  = 28
)

var charsetTable = []string{"cp1252", "utf16le", "cp1250", "cp932"}

func charsetIndex(name string) byte {
	for i, c := range charsetTable {
		if c == name {
			return byte(i)
		}
	}
	return 0
}

// FileHeader is the decoded form of page 0.
type FileHeader struct {
	Version        FormatVersion
	DefaultCharset string
	CreateDate     time.Time
	PageCount      Pgno
	FreePageHead   Pgno
	SystemRoot     Pgno
	ChangeCounter  uint32
}

// NewFileHeader builds the header for a freshly created database.
func NewFileHeader(version FormatVersion) *FileHeader {
	return &FileHeader{
		Version:        version,
		DefaultCharset: version.DefaultCharset(),
		CreateDate:     time.Unix(0, 0).UTC(),
		PageCount:      1,
		FreePageHead:   0,
		SystemRoot:     version.SystemRootPage(),
		ChangeCounter:  0,
	}
}

// Serialize writes the header into a FileHeaderSize buffer.
func (h *FileHeader) Serialize() []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[offMagic:], magicBytes[:])
	buf[offFormatVersion] = byte(h.Version)
	buf[offDefaultCharset] = charsetIndex(h.DefaultCharset)
	binary.LittleEndian.PutUint64(buf[offCreateDateUnix:], uint64(h.CreateDate.Unix()))
	binary.LittleEndian.PutUint32(buf[offPageCount:], uint32(h.PageCount))
	binary.LittleEndian.PutUint32(buf[offFreePageHead:], uint32(h.FreePageHead))
	binary.LittleEndian.PutUint32(buf[offSystemRoot:], uint32(h.SystemRoot))
	binary.LittleEndian.PutUint32(buf[offChangeCounter:], h.ChangeCounter)
	return buf
}

// ParseFileHeader decodes page 0. Returns CorruptFile if the magic bytes or
// format version are unrecognized.
func ParseFileHeader(data []byte) (*FileHeader, error) {
	if len(data) < FileHeaderSize {
		return nil, &jeterrors.CorruptFileError{Page: 0, Reason: "file header truncated"}
	}
	if string(data[offMagic:offMagic+4]) != string(magicBytes[:]) {
		return nil, &jeterrors.CorruptFileError{Page: 0, Reason: "bad magic bytes"}
	}
	version := FormatVersion(data[offFormatVersion])
	if !version.Valid() {
		return nil, &jeterrors.UnsupportedFormatError{
			Version: version.String(),
			Reason:  "not one of the five supported format generations",
		}
	}
	idx := int(data[offDefaultCharset])
	charset := version.DefaultCharset()
	if idx >= 0 && idx < len(charsetTable) {
		charset = charsetTable[idx]
	}
	return &FileHeader{
		Version:        version,
		DefaultCharset: charset,
		CreateDate:     time.Unix(int64(binary.LittleEndian.Uint64(data[offCreateDateUnix:])), 0).UTC(),
		PageCount:      Pgno(binary.LittleEndian.Uint32(data[offPageCount:])),
		FreePageHead:   Pgno(binary.LittleEndian.Uint32(data[offFreePageHead:])),
		SystemRoot:     Pgno(binary.LittleEndian.Uint32(data[offSystemRoot:])),
		ChangeCounter:  binary.LittleEndian.Uint32(data[offChangeCounter:]),
	}, nil
}
