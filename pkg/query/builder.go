// Package query generates the extraction statements for the export engine and
// validates user supplied predicates.
package query

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/block/spooler/pkg/table"
	"github.com/samber/lo"
)

// Flavor selects the output form of a generated SELECT.
type Flavor int

const (
	// API is a plain projection fetched through the driver.
	API Flavor = iota
	// Spool is a single delimited column per row, terminated for the bulk
	// export tool.
	Spool
)

func (f Flavor) String() string {
	switch f {
	case API:
		return "api"
	case Spool:
		return "spool"
	}

	return "unknown"
}

var ErrNoColumns = errors.New("no columns to select")

// Select describes one extraction statement.
type Select struct {
	Columns []table.Column
	// Table is the schema-qualified table name.
	Table string
	// Filters are conjoined with AND in the given order. Empty entries are skipped.
	Filters []string
	// Limit caps the number of rows returned. Zero means no limit.
	Limit     int64
	Flavor    Flavor
	Delimiter string
	Dialect   Dialect
}

// Build renders the statement text.
func Build(s Select) (string, error) {
	if len(s.Columns) == 0 {
		return "", ErrNoColumns
	}
	if err := CheckQualified(s.Table); err != nil {
		return "", err
	}
	cols := slices.Clone(s.Columns)
	slices.SortStableFunc(cols, func(a, b table.Column) int {
		return a.Ordinal - b.Ordinal
	})
	names := make([]string, len(cols))
	for i, c := range cols {
		if err := CheckIdent(c.Name); err != nil {
			return "", err
		}
		names[i] = c.Name
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	switch s.Flavor {
	case API:
		sb.WriteString(strings.Join(names, ", "))
	case Spool:
		if s.Delimiter == "" {
			return "", errors.New("spool flavor requires a delimiter")
		}
		sb.WriteString(s.Dialect.spoolProjection(names, s.Delimiter))
	default:
		return "", fmt.Errorf("unknown flavor %d", s.Flavor)
	}
	sb.WriteString(" FROM ")
	sb.WriteString(s.Table)

	if where := Where(s.Filters...); where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if s.Limit > 0 {
		sb.WriteString(" ")
		sb.WriteString(s.Dialect.limitClause(s.Limit))
	}
	if s.Flavor == Spool {
		sb.WriteString(";\n")
	}

	return sb.String(), nil
}

// Filters returns the job level predicates in their fixed order.
func Filters(incremental, static, partitionRange string) []string {
	return []string{incremental, static, partitionRange}
}

// Where joins the non-empty predicates with AND.
func Where(filters ...string) string {
	present := lo.Filter(filters, func(f string, _ int) bool {
		return strings.TrimSpace(f) != ""
	})

	return strings.Join(present, " AND ")
}

// Incremental renders the replication predicate key > 'watermark'. The
// comparison is always string typed; coercion is left to the source store.
func Incremental(key, watermark string) (string, error) {
	if err := CheckIdent(key); err != nil {
		return "", err
	}

	return key + " > " + QuoteLiteral(watermark), nil
}

// Between renders an inclusive key range predicate.
func Between(key string, lower, upper int64) (string, error) {
	if err := CheckIdent(key); err != nil {
		return "", err
	}

	return key + " BETWEEN " + strconv.FormatInt(lower, 10) + " AND " + strconv.FormatInt(upper, 10), nil
}
