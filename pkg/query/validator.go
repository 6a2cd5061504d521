package query

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is the subset of *sql.DB the validators need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ValidateFilter checks that where parses and that the source accepts it
// against tableName by EXPLAINing the resulting select.
func ValidateFilter(ctx context.Context, db Querier, tableName, where string) error {
	if _, err := ParseFilter(where); err != nil {
		return err
	}
	if err := CheckQualified(tableName); err != nil {
		return err
	}

	// Test that query is valid by EXPLAINing it
	explainQuery := "EXPLAIN SELECT * FROM " + tableName + " WHERE " + where
	if _, err := db.ExecContext(ctx, explainQuery); err != nil {
		return fmt.Errorf("could not EXPLAIN filter: %w", err)
	}

	return nil
}
