// Package partition splits a table into contiguous key ranges sized from the
// observed key density.
package partition

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/block/spooler/pkg/query"
)

// Querier is satisfied by *sql.DB.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Partition is an inclusive key range. IDs start at 1.
type Partition struct {
	ID    int
	Lower int64
	Upper int64
}

// Predicate renders the range restriction for key.
func (p Partition) Predicate(key string) (string, error) {
	return query.Between(key, p.Lower, p.Upper)
}

// Bounds is the result of the range probe.
type Bounds struct {
	Min   int64
	Max   int64
	Count int64
	// Width is the number of key values per partition.
	Width int64
}

// Probe reads the key range, row count and partition width of tableName in a
// single query. The probe applies no filters.
func Probe(ctx context.Context, db Querier, tableName, key string, batchSize int64) (Bounds, error) {
	if batchSize <= 0 {
		return Bounds{}, &RangeQueryError{Table: tableName, Key: key, Err: fmt.Errorf("batch size %d must be positive", batchSize)}
	}
	if err := query.CheckQualified(tableName); err != nil {
		return Bounds{}, &RangeQueryError{Table: tableName, Key: key, Err: err}
	}
	if err := query.CheckIdent(key); err != nil {
		return Bounds{}, &RangeQueryError{Table: tableName, Key: key, Err: err}
	}

	stmt := fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s), COUNT(*), CEIL((MAX(%[1]s) - MIN(%[1]s)) / (COUNT(*) / %[2]d.0)) FROM %[3]s",
		key, batchSize, tableName)

	var lo, hi, count sql.NullInt64
	var width sql.NullFloat64
	if err := db.QueryRowContext(ctx, stmt).Scan(&lo, &hi, &count, &width); err != nil {
		return Bounds{}, &RangeQueryError{Table: tableName, Key: key, Err: err}
	}
	if !count.Valid || count.Int64 == 0 {
		return Bounds{}, &RangeQueryError{Table: tableName, Key: key, Err: errEmptyTable}
	}
	if !lo.Valid || !hi.Valid || !width.Valid {
		return Bounds{}, &RangeQueryError{Table: tableName, Key: key, Err: errNullBounds}
	}

	b := Bounds{
		Min:   lo.Int64,
		Max:   hi.Int64,
		Count: count.Int64,
		Width: int64(math.Ceil(width.Float64)),
	}
	if b.Min < b.Max && b.Width <= 0 {
		return Bounds{}, &RangeQueryError{Table: tableName, Key: key, Err: fmt.Errorf("non-positive partition width %d", b.Width)}
	}

	return b, nil
}

// Plan splits [b.Min, b.Max] into contiguous partitions of b.Width keys. The
// last partition ends at b.Max. A single-valued range yields no partitions.
func Plan(b Bounds) []Partition {
	if b.Min >= b.Max || b.Width <= 0 {
		return nil
	}

	var partitions []Partition
	for start, id := b.Min, 1; start < b.Max; id++ {
		partitions = append(partitions, Partition{
			ID:    id,
			Lower: start,
			Upper: start + b.Width - 1,
		})
		if start > math.MaxInt64-b.Width {
			break
		}
		start += b.Width
	}
	partitions[len(partitions)-1].Upper = b.Max

	return partitions
}

// Planner computes a partition plan for one table.
type Planner struct {
	db Querier
}

func NewPlanner(db Querier) *Planner {
	return &Planner{db: db}
}

// Plan probes tableName and returns its partitions together with the bounds
// they were derived from.
func (p *Planner) Plan(ctx context.Context, tableName, key string, batchSize int64) ([]Partition, Bounds, error) {
	b, err := Probe(ctx, p.db, tableName, key, batchSize)
	if err != nil {
		return nil, Bounds{}, err
	}

	return Plan(b), b, nil
}
