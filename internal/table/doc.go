// Package table implements the Table and Cursor components (spec.md
// §4.5): row physical layout (fixed/variable regions, null bitmap), a
// slotted data page format addressed by RowId, and scan cursors in
// physical or index order. Oversized rows reuse the codec package's
// overflow-chain writer rather than duplicating it, so a row's slot never
// needs to move once assigned.
package table
