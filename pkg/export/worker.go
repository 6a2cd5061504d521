package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/block/spooler/pkg/partition"
	"github.com/block/spooler/pkg/writer"
)

// Querier is satisfied by *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Task is the unit of work handed to a Worker. A zero Partition is the whole
// table.
type Task struct {
	Partition partition.Partition
	Query     string
	Path      string
}

// Worker extracts one task into its destination file. Failures are reported
// through Result.Err.
type Worker interface {
	Run(ctx context.Context, task Task) Result
}

// StreamWorker fetches rows through the driver and appends them to the
// destination in batches.
type StreamWorker struct {
	DB        Querier
	Delimiter rune
	FetchSize int
}

var _ Worker = (*StreamWorker)(nil)

func (w *StreamWorker) Run(ctx context.Context, task Task) Result {
	id := task.Partition.ID
	res := Result{PartitionID: id, Path: task.Path, Rows: Known(0)}
	fail := func(written int64, err error) Result {
		res.Rows = Known(written)
		res.Err = &PartitionExecutionError{PartitionID: id, Rows: written, Err: err}

		return res
	}

	fetchSize := w.FetchSize
	if fetchSize <= 0 {
		fetchSize = DefaultFetchSize
	}
	if err := writer.ValidDelimiter(w.Delimiter); err != nil {
		return fail(0, err)
	}
	// An empty partition still yields its file, and a rerun starts clean.
	if err := writer.Create(task.Path); err != nil {
		return fail(0, err)
	}

	rows, err := w.DB.QueryContext(ctx, task.Query)
	if err != nil {
		return fail(0, fmt.Errorf("query failed: %w", err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fail(0, err)
	}

	var written int64
	batch := make([][]any, 0, fetchSize)
	flush := func() error {
		n, err := writer.Append(task.Path, w.Delimiter, batch)
		written += int64(n)
		batch = batch[:0]

		return err
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			if flushErr := flush(); flushErr != nil {
				return fail(written, flushErr)
			}

			return fail(written, fmt.Errorf("scan failed: %w", err))
		}
		batch = append(batch, vals)
		if len(batch) < fetchSize {
			continue
		}
		if err := flush(); err != nil {
			return fail(written, err)
		}
		if err := ctx.Err(); err != nil {
			return fail(written, err)
		}
	}
	// Rows scanned before a fetch error are kept.
	if err := flush(); err != nil {
		return fail(written, err)
	}
	if err := rows.Err(); err != nil {
		return fail(written, fmt.Errorf("fetch failed: %w", err))
	}
	res.Rows = Known(written)

	return res
}
