// Package source connects to the stores tables are exported from and
// answers the metadata questions the export engine asks of them.
package source

import (
	"context"
	"database/sql"
	"slices"

	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/spool"
	"github.com/block/spooler/pkg/table"
)

// Source is one connected backend.
type Source interface {
	Dialect() query.Dialect
	DB() *sql.DB
	Supports(op Operation) bool
	// BulkTool returns the external export tool, or nil when the backend
	// has none.
	BulkTool() spool.Tool
	TableColumns(ctx context.Context, schema, tableName string) (*table.Descriptor, error)
	TableExists(ctx context.Context, schema, tableName string) (bool, error)
	Tables(ctx context.Context) ([]string, error)
	Schemas(ctx context.Context) ([]string, error)
	TruncateTable(ctx context.Context, schema, tableName string) error
	CreateSchema(ctx context.Context, schema string) error
	Close() error
}

// Operation is an optional backend capability.
type Operation int

const (
	BulkExport Operation = iota
	TruncateTable
	CreateSchema
	GenerateDDL
	WriteLog
	ImportTable
	SwitchTables
)

// Operations lists every optional capability in display order.
var Operations = []Operation{BulkExport, TruncateTable, CreateSchema, GenerateDDL, WriteLog, ImportTable, SwitchTables}

func (o Operation) String() string {
	switch o {
	case BulkExport:
		return "bulk-export"
	case TruncateTable:
		return "truncate-table"
	case CreateSchema:
		return "create-schema"
	case GenerateDDL:
		return "generate-ddl"
	case WriteLog:
		return "write-log"
	case ImportTable:
		return "import-table"
	case SwitchTables:
		return "switch-tables"
	}

	return "unknown"
}

var capabilities = map[query.Dialect][]Operation{
	query.Oracle: {BulkExport},
	query.MySQL:  {TruncateTable, CreateSchema},
}

// Supports reports whether backends of dialect d implement op.
func Supports(d query.Dialect, op Operation) bool {
	return slices.Contains(capabilities[d], op)
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryColumns(ctx context.Context, db rowQuerier, schema, tableName, stmt string, args ...any) (*table.Descriptor, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &QueryError{Op: "table columns", Err: err}
	}
	defer rows.Close()

	var cols []table.Column
	for rows.Next() {
		var c table.Column
		if err := rows.Scan(&c.Ordinal, &c.Name, &c.DataType, &c.Length, &c.Precision, &c.Scale); err != nil {
			return nil, &QueryError{Op: "table columns", Err: err}
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "table columns", Err: err}
	}
	if len(cols) == 0 {
		return nil, &QueryError{Op: "table columns", Err: &TableNotFoundError{Schema: schema, Table: tableName}}
	}

	return table.NewDescriptor(schema, tableName, cols), nil
}

func queryStrings(ctx context.Context, db rowQuerier, op, stmt string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &QueryError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, &QueryError{Op: op, Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: op, Err: err}
	}

	return out, nil
}
