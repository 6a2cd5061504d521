package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/block/spooler/pkg/compress"
	"github.com/block/spooler/pkg/config"
	"github.com/block/spooler/pkg/destinations"
	"github.com/block/spooler/pkg/export"
	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/random"
	"github.com/block/spooler/pkg/source"
	"github.com/block/spooler/pkg/spool"
	"github.com/block/spooler/pkg/table"
	"github.com/block/spooler/pkg/upload"
	"github.com/siddontang/loggers"
	"github.com/sirupsen/logrus"
)

// ErrIncomplete is returned by Run when at least one table did not export
// every partition.
var ErrIncomplete = errors.New("not all tables exported successfully")

type ExportRunnerConfig struct {
	RunID  string
	Config *config.Config
	// Opener defaults to OpenSource.
	Opener SourceOpener
	// ConfigLoader loads the AWS config for s3 destinations.
	ConfigLoader upload.ConfigLoader
	// Summary receives the result table. Defaults to stdout.
	Summary io.Writer
}

// TableResult is the outcome of exporting one configured table.
type TableResult struct {
	Table    string
	Job      *export.JobResult
	Err      error
	Duration time.Duration
}

func (r *TableResult) Status() export.Status {
	if r.Err != nil || r.Job == nil {
		return export.Failed
	}

	return r.Job.Status()
}

type ExportRunner struct {
	cfg          *config.Config
	opener       SourceOpener
	configLoader upload.ConfigLoader
	summary      io.Writer
	base         *logrus.Logger
	// Attached logger
	logger loggers.Advanced

	runID       string
	src         source.Source
	coordinator *export.Coordinator
	startTime   time.Time

	mu      sync.Mutex
	current string
	results []*TableResult
}

func NewExportRunner(ecfg *ExportRunnerConfig, logger *logrus.Logger) (*ExportRunner, error) {
	if ecfg.Config == nil {
		return nil, errors.New("export runner needs a config")
	}
	r := &ExportRunner{
		cfg:          ecfg.Config,
		runID:        ecfg.RunID,
		opener:       ecfg.Opener,
		configLoader: ecfg.ConfigLoader,
		summary:      ecfg.Summary,
		base:         logger,
		logger:       logger,
	}
	if r.opener == nil {
		r.opener = OpenSource
	}
	if r.configLoader == nil {
		r.configLoader = awsConfigLoader
	}
	if r.summary == nil {
		r.summary = os.Stdout
	}

	return r, nil
}

// Prepare generates a new runID if not present already.
func (r *ExportRunner) Prepare() string {
	if r.runID == "" {
		r.runID = random.ID()
	}
	r.logger = r.base.WithField("run-id", r.runID)

	return r.runID
}

func (r *ExportRunner) Close() error {
	if r.src != nil {
		return r.src.Close()
	}

	return nil
}

// Results returns the table results of the last Run in project order.
func (r *ExportRunner) Results() []*TableResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*TableResult(nil), r.results...)
}

// Run exports every table of the project. Connection failures abort the run;
// a table whose export fails is recorded and the run moves on.
func (r *ExportRunner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.Prepare()
	r.startTime = time.Now()
	p := &r.cfg.Project
	r.logger.Infof("Starting export: project=%s source=%s tables=%d target=%s",
		p.ID, p.Source, len(p.Tables), p.TargetDir)

	var err error
	r.src, err = r.opener(ctx, &r.cfg.Connection)
	if err != nil {
		r.logger.Errorf("export %s: %v", Errored, err)
		return err
	}
	finalizers, err := r.finalizers(ctx)
	if err != nil {
		r.logger.Errorf("export %s: %v", Errored, err)
		return err
	}
	r.coordinator = export.NewCoordinator(&export.Config{
		DB:         r.src.DB(),
		Tool:       r.bulkTool(),
		Finalizers: finalizers,
		Logger:     r.logger,
	})

	go r.writeStatus(ctx)

	if err := os.MkdirAll(p.TargetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create target dir: %w", err)
	}
	for _, t := range p.Tables {
		if ctx.Err() != nil {
			break
		}
		res := r.exportTable(ctx, t)
		r.mu.Lock()
		r.results = append(r.results, res)
		r.mu.Unlock()
	}

	results := r.Results()
	if err := writeSummary(r.summary, results); err != nil {
		r.logger.Warnf("failed to write summary: %v", err)
	}
	status := Succeeded
	for _, res := range results {
		if res.Status() != export.Succeeded {
			status = Failed
		}
	}
	if len(results) < len(p.Tables) {
		status = Failed
	}
	r.logger.Infof("export %s: total-time=%s", status, time.Since(r.startTime).Round(time.Second))
	if err := ctx.Err(); err != nil {
		return err
	}
	if status != Succeeded {
		return ErrIncomplete
	}

	return nil
}

func (r *ExportRunner) exportTable(ctx context.Context, t config.Table) *TableResult {
	start := time.Now()
	res := &TableResult{Table: t.Name}
	r.setCurrent(t.Name)
	defer func() {
		r.setCurrent("")
		res.Duration = time.Since(start)
	}()

	job, err := r.buildJob(ctx, t)
	if err != nil {
		r.logger.Errorf("cannot determine export of %s: %v", t.Name, err)
		res.Err = err
		return res
	}
	res.Job, res.Err = r.coordinator.Execute(ctx, job)
	if res.Err != nil {
		r.logger.Errorf("export of %s failed: %v", t.Name, res.Err)
		return res
	}
	r.logger.Infof("export of %s %s: files=%d rows=%s", t.Name, res.Job.Status(), res.Job.Files(), res.Job.TotalRows())

	return res
}

func (r *ExportRunner) buildJob(ctx context.Context, t config.Table) (*export.Job, error) {
	schema, name, err := t.SchemaTable()
	if err != nil {
		return nil, err
	}
	desc, err := r.src.TableColumns(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	cr := r.cfg.Connection.Credentials
	p := r.cfg.Project
	delim, err := p.DelimiterRune()
	if err != nil {
		return nil, err
	}

	key := t.ParallelizationKey
	var limit int64
	if cr.LimitRows > 0 {
		if key != "" {
			r.logger.Warnf("%s: limit_rows=%d set, exporting without parallelization key %s", t.Name, cr.LimitRows, key)
			key = ""
		}
		limit = cr.LimitRows
	}

	where, err := r.prepareFilter(ctx, desc, t.Where, key)
	if err != nil {
		return nil, err
	}

	var repl *table.ReplicationState
	if t.Incremental() {
		repl = &table.ReplicationState{Key: t.ReplicationKey, Watermark: t.Watermark}
		if t.Watermark == "" {
			r.logger.Infof("%s: no watermark, exporting the full table", t.Name)
		}
	}

	database := cr.Database
	if database == "" {
		database = p.Source
	}

	return &export.Job{
		Database:      database,
		Table:         desc,
		Dir:           p.TargetDir,
		Delimiter:     delim,
		PartitionKey:  key,
		Replication:   repl,
		Limit:         limit,
		Where:         where,
		BatchSize:     cr.TableParallelBatchSize,
		FetchSize:     cr.FetchSize,
		MaxWorkers:    cr.TableParallelLoads,
		WorkerTimeout: p.WorkerTimeout,
		Dialect:       r.src.Dialect(),
	}, nil
}

// prepareFilter validates and folds static MySQL filters so every partition
// sees the same values for non-deterministic functions. Other dialects use
// the filter verbatim.
func (r *ExportRunner) prepareFilter(ctx context.Context, desc *table.Descriptor, where, key string) (string, error) {
	if where == "" || r.src.Dialect() != query.MySQL {
		return where, nil
	}
	db := r.src.DB()
	if err := query.ValidateFilter(ctx, db, desc.QualifiedName(), where); err != nil {
		return "", err
	}
	folded, err := query.FoldFilter(ctx, db, where)
	if err != nil {
		return "", err
	}
	if folded != where {
		r.logger.Infof("%s: folded filter %q to %q", desc.QualifiedName(), where, folded)
	}
	if key != "" {
		idx, _, err := query.GetIndex(ctx, db, desc.QualifiedName(), folded)
		if err != nil {
			r.logger.Warnf("%s: filter may scan the full table for every partition: %v", desc.QualifiedName(), err)
		} else {
			r.logger.Debugf("%s: filter uses index %s", desc.QualifiedName(), idx)
		}
	}

	return folded, nil
}

// bulkTool returns the source's export tool when it can be run here.
func (r *ExportRunner) bulkTool() spool.Tool {
	if !r.src.Supports(source.BulkExport) {
		return nil
	}
	if a, ok := r.src.(interface{ ToolAvailable() bool }); ok && !a.ToolAvailable() {
		r.logger.Warnf("bulk export tool not found, streaming partitions through the driver")
		return nil
	}

	return r.src.BulkTool()
}

func (r *ExportRunner) finalizers(ctx context.Context) ([]export.Finalizer, error) {
	p := r.cfg.Project
	var fs []export.Finalizer
	c, err := compress.Get(p.Compression)
	if err != nil {
		return nil, err
	}
	if c.Extension() != "" {
		fs = append(fs, compress.NewFileFinalizer(c, p.CompressionLevel))
	}
	dst, err := destinations.Parse(p.Destination)
	if err != nil {
		return nil, err
	}
	if dst == destinations.LocalFile && p.DestinationPath == "" {
		return fs, nil
	}
	uploader, err := upload.NewUploader(ctx, dst, p.DestinationPath, r.configLoader)
	if err != nil {
		return nil, err
	}

	return append(fs, uploadFinalizer{uploader}), nil
}

type uploadFinalizer struct {
	upload.Uploader
}

func (u uploadFinalizer) Finalize(ctx context.Context, path string) (string, error) {
	return u.Upload(ctx, path)
}

func (r *ExportRunner) setCurrent(name string) {
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
}

func (r *ExportRunner) getCurrent() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current
}

func (r *ExportRunner) writeStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := r.getCurrent()
			if current == "" {
				continue
			}
			r.logger.Infof("export status: table=%s progress=%s total-time=%s conns-in-use=%d",
				current,
				r.coordinator.GetProgress(),
				time.Since(r.startTime).Round(time.Second),
				r.src.DB().Stats().InUse,
			)
		}
	}
}

func awsConfigLoader(ctx context.Context, _ ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}
