package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type explainOutput struct {
	QueryBlock queryBlock `json:"query_block"`
}

type queryBlock struct {
	Table             *tableKey          `json:"table"`
	OrderingOperation *orderingOperation `json:"ordering_operation"`
	Message           string             `json:"message"`
}
type orderingOperation struct {
	Table *tableKey `json:"table"`
}
type tableKey struct {
	TableName    string   `json:"table_name"`
	AccessType   string   `json:"access_type"`
	PossibleKeys []string `json:"possible_keys"`
	Key          string   `json:"key"`
	UsedKeyParts []string `json:"used_key_parts"`
	UsingIndex   bool     `json:"using_index"`
}

var (
	ErrNoIndexAvb = errors.New("no index available to satisfy the filter")
	ErrNoTable    = errors.New("could not identify table in EXPLAIN output")
)

// GetIndex returns the index the source would use to satisfy where on
// tableName and whether it's a covering index.
func GetIndex(ctx context.Context, db Querier, tableName, where string) (string, bool, error) {
	if err := CheckQualified(tableName); err != nil {
		return "", false, err
	}
	selectStmt := "SELECT * FROM " + tableName + " WHERE " + where

	var explainResult string
	err := db.QueryRowContext(ctx, "EXPLAIN format=json "+selectStmt).Scan(&explainResult)
	if err != nil {
		return "", false, err
	}

	var eo explainOutput
	err = json.Unmarshal([]byte(explainResult), &eo)
	if err != nil {
		return "", false, err
	}

	// If the query has an ORDER BY clause, the table will be in the OrderingOperation field.
	if eo.QueryBlock.OrderingOperation != nil && eo.QueryBlock.Table == nil {
		eo.QueryBlock.Table = eo.QueryBlock.OrderingOperation.Table
	}
	if eo.QueryBlock.Table == nil {
		return "", false, fmt.Errorf("%w: %s, message: %s", ErrNoTable, where, eo.QueryBlock.Message)
	}

	tbl := eo.QueryBlock.Table

	// Use the Key field preferably, otherwise use the first index in the list
	// from PossibleKeys field.
	if tbl.Key != "" {
		return tbl.Key, tbl.UsingIndex, nil
	} else if len(tbl.PossibleKeys) != 0 {
		return tbl.PossibleKeys[0], tbl.UsingIndex, nil
	}

	return "", false, fmt.Errorf("%w: %s, message: %s", ErrNoIndexAvb, where, eo.QueryBlock.Message)
}
