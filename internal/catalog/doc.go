// Package catalog implements the Catalog component (spec.md §4.6):
// bootstrapping and querying the system object table, materializing
// Table/Column/Index/PropertyMap definitions with stable object ids, and
// the file-linked/ODBC-linked resolver for linked tables.
package catalog
