// Package jetdb is the public API over the Jet-family container engine:
// Database, Table, Index, and their cursors. Every exported method here is
// a thin, write-barrier-aware wrapper over internal/catalog,
// internal/table, internal/index, internal/relationship, and
// internal/complexvalue — this package owns no on-disk format knowledge of
// its own, only the orchestration those packages' narrow collaborator
// interfaces (relationship.Mutator, catalog.LinkResolver) ask some caller
// to provide.
package jetdb
