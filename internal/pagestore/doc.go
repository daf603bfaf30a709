// Package pagestore implements the paged storage layer of a Jet-family
// database container: typed read/write access to fixed-size pages against a
// byte-addressable backing store, with a per-page checksum transform and a
// write barrier that makes a batch of page writes visible atomically.
//
// # Overview
//
// A Jet container is a sequence of fixed-size pages. Page 0 is the file
// header (magic bytes, format version, collation, creation date, and the
// page size / system-root offset the version descriptor implies). Every
// other page begins with a one-byte type tag: DATA, TableDef, IndexDef,
// IndexNode, IndexLeaf, or UsageMap.
//
// # Write barrier
//
// Writes are not visible to readers of the backing store until FinishWrite
// commits them; StartWrite opens the buffering scope, Abort discards it and
// poisons the channel so that no further write barrier can open. This
// mirrors the "all or none" commit guarantee in the teacher pager's
// writeDirtyPages/Commit pair, simplified to a single barrier depth because
// this format has no cross-table transactions and no concurrent writers.
//
// # Checksum hook
//
// Every page write runs through a Checksum, by default a blake3-backed
// truncation stored in the page's trailing four bytes and verified on every
// read. A CorruptFile error is returned when the stored and recomputed
// checksums disagree.
package pagestore
