// Package table holds the descriptors of a source table that the export
// engine reads from. Descriptors are fetched once per table and treated as
// read-only afterwards.
package table

import (
	"database/sql"
	"slices"
	"strings"
)

// Column describes one source column.
type Column struct {
	Ordinal   int
	Name      string
	DataType  string
	Length    sql.NullInt64
	Precision sql.NullInt64
	Scale     sql.NullInt64
}

// Descriptor describes a source table and its columns.
type Descriptor struct {
	Schema  string
	Name    string
	Columns []Column
}

// NewDescriptor returns a descriptor whose columns are sorted by ordinal.
func NewDescriptor(schema, name string, columns []Column) *Descriptor {
	cols := slices.Clone(columns)
	slices.SortStableFunc(cols, func(a, b Column) int {
		return a.Ordinal - b.Ordinal
	})

	return &Descriptor{
		Schema:  schema,
		Name:    name,
		Columns: cols,
	}
}

// QualifiedName returns schema.table, or just the table when no schema is set.
func (d *Descriptor) QualifiedName() string {
	if d.Schema == "" {
		return d.Name
	}

	return d.Schema + "." + d.Name
}

// ColumnNames returns the column names in ordinal order.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}

	return names
}

// HasColumn reports whether the table has a column with the given name.
// The comparison is case-insensitive since Oracle folds unquoted identifiers.
func (d *Descriptor) HasColumn(name string) bool {
	return slices.ContainsFunc(d.Columns, func(c Column) bool {
		return strings.EqualFold(c.Name, name)
	})
}

// ReplicationState is the incremental position of a table: the replication
// key column and the last value seen for it. The watermark is kept as a string
// so the state stays agnostic of the key's source type.
type ReplicationState struct {
	Key       string
	Watermark string
}

// Active reports whether the state should restrict extraction.
func (r *ReplicationState) Active() bool {
	return r != nil && r.Key != "" && r.Watermark != ""
}
