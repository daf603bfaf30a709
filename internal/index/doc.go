// Package index implements IndexData and IndexCursor (spec.md §4.4): an
// ordered B-tree over encoded index keys, with leaf pages chained for
// ordered scans and a cursor state machine supporting partial-key seeks
// and restorable savepoints.
package index
