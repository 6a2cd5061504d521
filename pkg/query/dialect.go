package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor of the source store.
type Dialect int

const (
	Oracle Dialect = iota
	MySQL
)

func (d Dialect) String() string {
	switch d {
	case Oracle:
		return "oracle"
	case MySQL:
		return "mysql"
	}

	return "unknown"
}

// ParseDialect maps a connection type name to its dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case Oracle.String():
		return Oracle, nil
	case MySQL.String():
		return MySQL, nil
	}

	return 0, fmt.Errorf("unknown dialect %q", s)
}

func (d Dialect) limitClause(n int64) string {
	if d == MySQL {
		return "LIMIT " + strconv.FormatInt(n, 10)
	}

	return "FETCH FIRST " + strconv.FormatInt(n, 10) + " ROW ONLY"
}

func (d Dialect) stripNUL(column string) string {
	if d == MySQL {
		return "REPLACE(" + column + ", CHAR(0), '')"
	}

	return "REPLACE(" + column + ",chr(0),'')"
}

// spoolProjection renders the columns as a single delimiter-joined value so
// the bulk export tool writes one delimited line per row.
func (d Dialect) spoolProjection(columns []string, delimiter string) string {
	stripped := make([]string, len(columns))
	for i, c := range columns {
		stripped[i] = d.stripNUL(c)
	}
	sep := QuoteLiteral(delimiter)
	if d == MySQL {
		return "CONCAT(" + strings.Join(stripped, ", "+sep+", ") + ")"
	}

	return strings.Join(stripped, " || "+sep+" || \n")
}
