package pagestore

import "github.com/zeebo/blake3"

// ChecksumSize is the number of trailing bytes of every page reserved for
// the checksum transform.
const ChecksumSize = 4

// Checksum computes the integrity tag stored in a page's trailing bytes.
// PageChannel calls it on every write and verifies it on every read,
// following the checksum/crypt hook §4.1 calls for.
type Checksum interface {
	Sum(pageNumber Pgno, data []byte) [ChecksumSize]byte
}

// blake3Checksum is the default Checksum, truncating a BLAKE3 digest of the
// page number and payload to four bytes.
type blake3Checksum struct{}

// DefaultChecksum is the checksum transform used when a database is opened
// without an explicit override.
var DefaultChecksum Checksum = blake3Checksum{}

func (blake3Checksum) Sum(pageNumber Pgno, data []byte) [ChecksumSize]byte {
	h := blake3.New()
	var pgnoBytes [4]byte
	pgnoBytes[0] = byte(pageNumber)
	pgnoBytes[1] = byte(pageNumber >> 8)
	pgnoBytes[2] = byte(pageNumber >> 16)
	pgnoBytes[3] = byte(pageNumber >> 24)
	h.Write(pgnoBytes[:])
	h.Write(data)
	sum := h.Sum(nil)
	var out [ChecksumSize]byte
	copy(out[:], sum[:ChecksumSize])
	return out
}
