package runner

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/block/spooler/pkg/config"
	"github.com/block/spooler/pkg/export"
	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/source"
	"github.com/block/spooler/pkg/spool"
	"github.com/block/spooler/pkg/table"
	"github.com/block/spooler/pkg/test"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	dialect query.Dialect
	db      *sql.DB
	tables  map[string]*table.Descriptor
	closed  bool
}

func (f *fakeSource) Dialect() query.Dialect { return f.dialect }
func (f *fakeSource) DB() *sql.DB            { return f.db }
func (f *fakeSource) Supports(op source.Operation) bool {
	return source.Supports(f.dialect, op)
}
func (f *fakeSource) BulkTool() spool.Tool { return nil }
func (f *fakeSource) TableColumns(_ context.Context, schema, name string) (*table.Descriptor, error) {
	d, ok := f.tables[schema+"."+name]
	if !ok {
		return nil, &source.QueryError{Op: "table columns", Err: &source.TableNotFoundError{Schema: schema, Table: name}}
	}

	return d, nil
}
func (f *fakeSource) TableExists(_ context.Context, schema, name string) (bool, error) {
	_, ok := f.tables[schema+"."+name]
	return ok, nil
}
func (f *fakeSource) Tables(context.Context) ([]string, error)  { return nil, nil }
func (f *fakeSource) Schemas(context.Context) ([]string, error) { return nil, nil }
func (f *fakeSource) TruncateTable(context.Context, string, string) error {
	return &source.UnsupportedOperationError{Backend: "fake", Op: source.TruncateTable}
}
func (f *fakeSource) CreateSchema(context.Context, string) error {
	return &source.UnsupportedOperationError{Backend: "fake", Op: source.CreateSchema}
}
func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func openerFor(src source.Source) SourceOpener {
	return func(context.Context, *config.Connection) (source.Source, error) {
		return src, nil
	}
}

func projectConfig(dir string, tables ...config.Table) *config.Config {
	return &config.Config{
		Project: config.Project{
			ID:          "erp_export",
			Source:      "erp",
			TargetDir:   dir,
			Delimiter:   ",",
			Compression: "none",
			Destination: "local",
			Tables:      tables,
		},
		Connection: config.Connection{
			Type: "oracle",
			Credentials: config.Credentials{
				Host:                   "db",
				User:                   "scott",
				Database:               "ORCL",
				TableParallelLoads:     2,
				TableParallelBatchSize: 1000,
				FetchSize:              100,
			},
		},
	}
}

func ordersTable() *table.Descriptor {
	return table.NewDescriptor("SALES", "ORDERS", []table.Column{
		{Ordinal: 1, Name: "ID"},
		{Ordinal: 2, Name: "NAME"},
	})
}

func TestExportRunnerContinuesAfterMetadataFailure(t *testing.T) {
	db, mock := test.NewExactMock(t)
	mock.ExpectQuery("SELECT ID, NAME FROM SALES.ORDERS").
		WillReturnRows(sqlmock.NewRows([]string{"ID", "NAME"}).AddRow(1, "alpha").AddRow(2, "beta"))
	src := &fakeSource{dialect: query.Oracle, db: db, tables: map[string]*table.Descriptor{"SALES.ORDERS": ordersTable()}}

	dir := t.TempDir()
	var summary bytes.Buffer
	r, err := NewExportRunner(&ExportRunnerConfig{
		RunID:   "run1",
		Config:  projectConfig(dir, config.Table{Name: "SALES.MISSING"}, config.Table{Name: "SALES.ORDERS"}),
		Opener:  openerFor(src),
		Summary: &summary,
	}, logrus.New())
	require.NoError(t, err)
	require.Equal(t, "run1", r.Prepare())

	err = r.Run(context.Background())
	require.ErrorIs(t, err, ErrIncomplete)

	results := r.Results()
	require.Len(t, results, 2)
	require.Equal(t, export.Failed, results[0].Status())
	require.ErrorIs(t, results[0].Err, source.ErrQuery)
	require.ErrorIs(t, results[0].Err, source.ErrTableNotFound)
	require.Equal(t, export.Succeeded, results[1].Status())
	rows, ok := results[1].Job.TotalRows().Value()
	require.True(t, ok)
	require.EqualValues(t, 2, rows)

	require.Equal(t, []string{"1,alpha", "2,beta"}, test.ReadLines(t, filepath.Join(dir, "ORCL_SALES_ORDERS.csv")))
	require.Contains(t, summary.String(), "SALES.ORDERS")
	require.Contains(t, summary.String(), "SALES.MISSING")

	require.NoError(t, r.Close())
	require.True(t, src.closed)
}

func TestExportRunnerConnectionFailure(t *testing.T) {
	connErr := &source.ConnectionError{Backend: "oracle", Target: "db:1521", Err: errors.New("ORA-12541: TNS:no listener")}
	r, err := NewExportRunner(&ExportRunnerConfig{
		Config: projectConfig(t.TempDir(), config.Table{Name: "SALES.ORDERS"}),
		Opener: func(context.Context, *config.Connection) (source.Source, error) {
			return nil, connErr
		},
		Summary: &bytes.Buffer{},
	}, logrus.New())
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.ErrorIs(t, err, source.ErrConnection)
	require.Empty(t, r.Results())
	require.NotEmpty(t, r.Prepare())
	require.NoError(t, r.Close())
}

func TestExportRunnerCompressesAndMoves(t *testing.T) {
	db, mock := test.NewExactMock(t)
	mock.ExpectQuery("SELECT ID, NAME FROM SALES.ORDERS WHERE UPDATED_AT > '2023-01-01' AND NAME <> 'x'").
		WillReturnRows(sqlmock.NewRows([]string{"ID", "NAME"}).AddRow(7, "gamma"))
	src := &fakeSource{dialect: query.Oracle, db: db, tables: map[string]*table.Descriptor{"SALES.ORDERS": ordersTable()}}

	dir := t.TempDir()
	published := t.TempDir()
	cfg := projectConfig(dir, config.Table{
		Name:              "SALES.ORDERS",
		ReplicationMethod: config.Incremental,
		ReplicationKey:    "UPDATED_AT",
		Watermark:         "2023-01-01",
		Where:             "NAME <> 'x'",
	})
	cfg.Project.Compression = "gzip"
	cfg.Project.DestinationPath = published

	r, err := NewExportRunner(&ExportRunnerConfig{Config: cfg, Opener: openerFor(src), Summary: &bytes.Buffer{}}, logrus.New())
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	res := r.Results()[0]
	require.Len(t, res.Job.Results, 1)
	want := filepath.Join(published, "ORCL_SALES_ORDERS.csv.gz")
	require.Equal(t, want, res.Job.Results[0].Path)
	_, err = os.Stat(want)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "ORCL_SALES_ORDERS.csv"))
	require.True(t, os.IsNotExist(err))
}

func TestExportRunnerMySQLFilterAndLimit(t *testing.T) {
	db, mock := test.NewExactMock(t)
	mock.ExpectExec("EXPLAIN SELECT * FROM shop.orders WHERE status = 'A'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, status FROM shop.orders WHERE status = 'A' LIMIT 5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(1, "A"))
	src := &fakeSource{dialect: query.MySQL, db: db, tables: map[string]*table.Descriptor{
		"shop.orders": table.NewDescriptor("shop", "orders", []table.Column{
			{Ordinal: 1, Name: "id"},
			{Ordinal: 2, Name: "status"},
		}),
	}}

	dir := t.TempDir()
	cfg := projectConfig(dir, config.Table{Name: "shop.orders", ParallelizationKey: "id", Where: "status = 'A'"})
	cfg.Connection.Type = "mysql"
	cfg.Connection.Credentials.Database = "shop"
	cfg.Connection.Credentials.LimitRows = 5

	r, err := NewExportRunner(&ExportRunnerConfig{Config: cfg, Opener: openerFor(src), Summary: &bytes.Buffer{}}, logrus.New())
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, []string{"1,A"}, test.ReadLines(t, filepath.Join(dir, "shop_shop_orders.csv")))
}

func TestExportRunnerRejectsInvalidFilter(t *testing.T) {
	db, _ := test.NewExactMock(t)
	src := &fakeSource{dialect: query.MySQL, db: db, tables: map[string]*table.Descriptor{
		"shop.orders": table.NewDescriptor("shop", "orders", []table.Column{{Ordinal: 1, Name: "id"}}),
	}}
	cfg := projectConfig(t.TempDir(), config.Table{Name: "shop.orders", Where: "id IN (SELECT"})
	cfg.Connection.Type = "mysql"

	r, err := NewExportRunner(&ExportRunnerConfig{Config: cfg, Opener: openerFor(src), Summary: &bytes.Buffer{}}, logrus.New())
	require.NoError(t, err)
	require.ErrorIs(t, r.Run(context.Background()), ErrIncomplete)
	require.Equal(t, export.Failed, r.Results()[0].Status())
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSummary(&buf, []*TableResult{
		{Table: "SALES.ORDERS", Job: &export.JobResult{Results: []export.Result{
			{PartitionID: 1, Rows: export.Known(1500)},
			{PartitionID: 2, Rows: export.Unknown(), Err: errors.New("exit 3")},
		}}},
		{Table: "SALES.MISSING", Err: errors.New("table not found")},
	}))
	out := buf.String()
	require.Contains(t, out, "partial-failure")
	require.Contains(t, out, "unknown")
	require.Contains(t, out, "table not found")
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "started", Started.String())
	require.Equal(t, "errored", Errored.String())
	require.Equal(t, "unknown", Status(42).String())
}
