// Package codec implements the Codec component (spec.md §4.3): per-type
// column value encode/decode, including text compression, decimal and
// money encoding, date/time conversion, and the order-preserving index-key
// encoding the B-tree engine relies on.
package codec
