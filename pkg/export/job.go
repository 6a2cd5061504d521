// Package export runs a table export: it plans key range partitions, fans the
// extraction out to a bounded pool of workers and aggregates their results.
package export

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/table"
	"github.com/block/spooler/pkg/writer"
)

const (
	DefaultBatchSize  = 1_000_000
	DefaultFetchSize  = 5000
	DefaultMaxWorkers = 10
	fileExt           = ".csv"
)

var (
	ErrNoTable          = errors.New("job has no table")
	ErrNoColumns        = errors.New("table has no columns")
	ErrNoDir            = errors.New("job has no destination directory")
	ErrLimitPartitioned = errors.New("limit cannot be combined with a partition key")
)

// Job describes the export of one table. A Job must not be modified once
// Execute has been called with it.
type Job struct {
	// Database names the source in output file names.
	Database  string
	Table     *table.Descriptor
	Dir       string
	Delimiter rune
	// PartitionKey is an integer column used to split the table. Empty means
	// the table is exported by a single worker.
	PartitionKey string
	Replication  *table.ReplicationState
	// Limit caps the rows of an unpartitioned export. Zero means no limit.
	Limit int64
	// Where is a static predicate from the project configuration. It is
	// used verbatim.
	Where         string
	BatchSize     int64
	FetchSize     int
	MaxWorkers    int
	WorkerTimeout time.Duration
	Dialect       query.Dialect
}

// withDefaults returns a copy of the job with unset sizes filled in.
func (j Job) withDefaults() Job {
	if j.Delimiter == 0 {
		j.Delimiter = ','
	}
	if j.BatchSize <= 0 {
		j.BatchSize = DefaultBatchSize
	}
	if j.FetchSize <= 0 {
		j.FetchSize = DefaultFetchSize
	}
	if j.MaxWorkers <= 0 {
		j.MaxWorkers = DefaultMaxWorkers
	}

	return j
}

func (j *Job) Validate() error {
	if j.Table == nil {
		return ErrNoTable
	}
	if len(j.Table.Columns) == 0 {
		return fmt.Errorf("%s: %w", j.Table.QualifiedName(), ErrNoColumns)
	}
	if err := query.CheckQualified(j.Table.QualifiedName()); err != nil {
		return err
	}
	if j.Dir == "" {
		return ErrNoDir
	}
	if info, err := os.Stat(j.Dir); err != nil {
		return fmt.Errorf("destination directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("destination %s is not a directory", j.Dir)
	}
	if j.Delimiter != 0 {
		if err := writer.ValidDelimiter(j.Delimiter); err != nil {
			return err
		}
	}
	if j.PartitionKey != "" {
		if err := query.CheckIdent(j.PartitionKey); err != nil {
			return err
		}
		if j.Limit > 0 {
			return ErrLimitPartitioned
		}
	}
	if j.Replication.Active() {
		if err := query.CheckIdent(j.Replication.Key); err != nil {
			return err
		}
	}
	if j.Limit < 0 || j.BatchSize < 0 || j.FetchSize < 0 || j.MaxWorkers < 0 || j.WorkerTimeout < 0 {
		return errors.New("job sizes and timeouts must not be negative")
	}

	return nil
}

// FileName returns the output file name of one partition. Batch 0 is the
// whole table.
func FileName(database, schema, tableName string, batchID int) string {
	name := database + "_" + schema + "_" + tableName
	if batchID > 0 {
		name += "_" + strconv.Itoa(batchID)
	}

	return name + fileExt
}
