package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/block/spooler/pkg/partition"
	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/spool"
	"github.com/siddontang/loggers"
	"golang.org/x/sync/errgroup"
)

// Finalizer post-processes a finished file and returns its final location.
type Finalizer interface {
	Finalize(ctx context.Context, path string) (string, error)
}

type Config struct {
	DB Querier
	// Tool is the bulk export tool of the source. Nil means partitions are
	// streamed through DB.
	Tool       spool.Tool
	Finalizers []Finalizer
	Logger     loggers.Advanced
}

// Coordinator executes jobs. It is safe to call GetProgress while Execute runs.
type Coordinator struct {
	db         Querier
	tool       spool.Tool
	finalizers []Finalizer
	logger     loggers.Advanced
	// worker replaces the strategy chosen for partitioned jobs. Only set
	// from tests; partitions it runs get the API flavor.
	worker Worker

	totalPartitions    atomic.Int64
	finishedPartitions atomic.Int64
	failedPartitions   atomic.Int64
	knownRows          atomic.Int64
}

func NewCoordinator(cfg *Config) *Coordinator {
	return &Coordinator{
		db:         cfg.DB,
		tool:       cfg.Tool,
		finalizers: cfg.Finalizers,
		logger:     cfg.Logger,
	}
}

// Execute exports the job. A range probe failure is returned before any
// work is dispatched; partition failures are reported in the JobResult and
// never cancel other partitions.
func (c *Coordinator) Execute(ctx context.Context, job *Job) (*JobResult, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	j := job.withDefaults()
	tbl := j.Table

	incremental := ""
	if j.Replication.Active() {
		var err error
		if incremental, err = query.Incremental(j.Replication.Key, j.Replication.Watermark); err != nil {
			return nil, err
		}
	}

	var parts []partition.Partition
	if j.PartitionKey != "" {
		var err error
		var bounds partition.Bounds
		parts, bounds, err = partition.NewPlanner(c.db).Plan(ctx, tbl.QualifiedName(), j.PartitionKey, j.BatchSize)
		if err != nil {
			return nil, err
		}
		c.logger.Infof("planned %d partitions for %s: key=%s min=%d max=%d rows=%d width=%d",
			len(parts), tbl.QualifiedName(), j.PartitionKey, bounds.Min, bounds.Max, bounds.Count, bounds.Width)
	}

	c.reset()
	if len(parts) == 0 {
		stmt, err := query.Build(query.Select{
			Columns: tbl.Columns,
			Table:   tbl.QualifiedName(),
			Filters: query.Filters(incremental, j.Where, ""),
			Limit:   j.Limit,
			Flavor:  query.API,
			Dialect: j.Dialect,
		})
		if err != nil {
			return nil, err
		}
		c.totalPartitions.Store(1)
		task := Task{Query: stmt, Path: filepath.Join(j.Dir, FileName(j.Database, tbl.Schema, tbl.Name, 0))}
		res := c.runTask(ctx, &j, c.streamWorker(&j), task)
		c.logResult(res)

		return newJobResult(&j, []Result{res}), nil
	}

	worker, flavor := c.partitionWorker(&j)
	tasks := make([]Task, 0, len(parts))
	for _, p := range parts {
		rangePred, err := p.Predicate(j.PartitionKey)
		if err != nil {
			return nil, err
		}
		stmt, err := query.Build(query.Select{
			Columns:   tbl.Columns,
			Table:     tbl.QualifiedName(),
			Filters:   query.Filters(incremental, j.Where, rangePred),
			Flavor:    flavor,
			Delimiter: string(j.Delimiter),
			Dialect:   j.Dialect,
		})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, Task{
			Partition: p,
			Query:     stmt,
			Path:      filepath.Join(j.Dir, FileName(j.Database, tbl.Schema, tbl.Name, p.ID)),
		})
	}
	c.totalPartitions.Store(int64(len(tasks)))

	return newJobResult(&j, c.dispatch(ctx, &j, worker, tasks)), nil
}

func (c *Coordinator) dispatch(ctx context.Context, j *Job, w Worker, tasks []Task) []Result {
	results := make(chan Result, len(tasks))
	collected := make(chan []Result)
	go func() {
		all := make([]Result, 0, len(tasks))
		for res := range results {
			c.logResult(res)
			all = append(all, res)
		}
		collected <- all
	}()

	g := new(errgroup.Group)
	g.SetLimit(min(j.MaxWorkers, len(tasks)))
	for _, task := range tasks {
		g.Go(func() error {
			results <- c.runTask(ctx, j, w, task)
			// Partition failures are reported through the result.
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	return <-collected
}

func (c *Coordinator) runTask(ctx context.Context, j *Job, w Worker, task Task) Result {
	defer c.finishedPartitions.Add(1)
	id := task.Partition.ID
	if err := ctx.Err(); err != nil {
		c.failedPartitions.Add(1)
		return Result{PartitionID: id, Path: task.Path, Rows: Unknown(), Err: &PartitionExecutionError{PartitionID: id, Err: err}}
	}
	if j.WorkerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.WorkerTimeout)
		defer cancel()
	}

	res := w.Run(ctx, task)
	if n, ok := res.Rows.Value(); ok {
		c.knownRows.Add(n)
	}
	if res.Err == nil {
		for _, f := range c.finalizers {
			path, err := f.Finalize(ctx, res.Path)
			if err != nil {
				res.Err = &PartitionExecutionError{PartitionID: id, Err: fmt.Errorf("finalizing %s: %w", res.Path, err)}
				break
			}
			res.Path = path
		}
	}
	if res.Err != nil {
		c.failedPartitions.Add(1)
	}

	return res
}

func (c *Coordinator) streamWorker(j *Job) Worker {
	return &StreamWorker{DB: c.db, Delimiter: j.Delimiter, FetchSize: j.FetchSize}
}

// partitionWorker picks the bulk tool when the source has one.
func (c *Coordinator) partitionWorker(j *Job) (Worker, query.Flavor) {
	switch {
	case c.worker != nil:
		return c.worker, query.API
	case c.tool != nil:
		return &ToolWorker{Tool: c.tool, Logger: c.logger}, query.Spool
	default:
		return c.streamWorker(j), query.API
	}
}

func (c *Coordinator) logResult(res Result) {
	if res.Err != nil {
		c.logger.Errorf("partition %d failed: %v", res.PartitionID, res.Err)
		return
	}
	c.logger.Infof("partition %d written: file=%s rows=%s", res.PartitionID, res.Path, res.Rows)
}

func (c *Coordinator) reset() {
	c.totalPartitions.Store(0)
	c.finishedPartitions.Store(0)
	c.failedPartitions.Store(0)
	c.knownRows.Store(0)
}

// GetProgress reports finished partitions out of the planned total.
func (c *Coordinator) GetProgress() string {
	var pct = 0.0
	total := c.totalPartitions.Load()
	finished := c.finishedPartitions.Load()
	if total > 0 {
		pct = 100 * float64(finished) / float64(total)
	}

	return fmt.Sprintf("%d/%d %.2f%% failed=%d rows=%d", finished, total, pct, c.failedPartitions.Load(), c.knownRows.Load())
}
