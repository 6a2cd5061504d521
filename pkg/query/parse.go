package query

import (
	"errors"
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // required for the tidb parser
)

var (
	errNonSelectStmt = errors.New("is not a SELECT statement type")
	errEmptyFilter   = errors.New("filter has no predicate")
)

// ParseSelect parses the given SQL query as a SELECT statement and returns
// AST (Abstract syntax tree) node if there is no error.
func ParseSelect(query string) (*ast.SelectStmt, error) {
	p := parser.New()
	p.SetSQLMode(mysql.ModeStrictAllTables)

	nodes, err := p.ParseOneStmt(query, "", "")
	if err != nil {
		return nil, fmt.Errorf("given query: %s is invalid", query)
	}

	if nodes != nil {
		stmt, ok := nodes.(*ast.SelectStmt)
		if !ok {
			return nil, fmt.Errorf("query: %s %w", query, errNonSelectStmt)
		}

		return stmt, nil
	}

	return nil, fmt.Errorf("given query: %s is invalid", query)
}

// ParseFilter parses a static WHERE predicate with the MySQL grammar. A
// predicate that smuggles in a second statement fails to parse.
func ParseFilter(where string) (*ast.SelectStmt, error) {
	stmt, err := ParseSelect(filterProbe(where))
	if err != nil {
		return nil, fmt.Errorf("filter %q is invalid: %w", where, err)
	}
	if stmt.Where == nil {
		return nil, fmt.Errorf("filter %q: %w", where, errEmptyFilter)
	}

	return stmt, nil
}

func filterProbe(where string) string {
	return "SELECT 1 FROM t WHERE " + where
}
