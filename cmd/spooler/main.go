package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/block/spooler/pkg/config"
	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/runner"
	"github.com/block/spooler/pkg/source"
	"github.com/gosuri/uitable"
)

type Globals struct {
	LogFile string `name:"log-file" help:"Also write logs to this file, rotated at 200MB" optional:""`
	Debug   bool   `name:"debug" help:"Enable debug logging"`
}

var cli struct {
	Globals

	Run          RunCmd          `cmd:"run"          help:"Export every table of a project"`
	Table        TableCmd        `cmd:"table"        help:"Export a single table"`
	Capabilities CapabilitiesCmd `cmd:"capabilities" help:"List the optional operations a source type supports"`
}

// RunCmd exports the tables listed in a project file.
type RunCmd struct {
	Project     string `arg:"" name:"project" help:"Project file listing the tables to export" type:"existingfile"`
	Connections string `name:"connections" help:"Connections file, defaults to ~/.spooler/connections.yml" optional:""`
	RunID       string `name:"run-id" help:"RunID for the export" optional:""`
}

// TableCmd holds the arguments required for exporting one table without a
// project file.
type TableCmd struct {
	RunID          string        `name:"run-id" help:"RunID for the export" optional:""`
	Table          string        `name:"table" help:"Source table as SCHEMA.TABLE" required:""`
	Dir            string        `name:"dir" help:"Directory the files are written to" required:""`
	Delimiter      string        `name:"delimiter" help:"Field delimiter" default:","`
	PartitionKey   string        `name:"partition-key" help:"Integer column used to split the table" optional:""`
	ReplicationKey string        `name:"replication-key" help:"Column compared against the watermark" optional:""`
	Watermark      string        `name:"watermark" help:"Export only rows whose replication key is greater than this" optional:""`
	Where          string        `name:"where" help:"Static predicate added to every query" optional:""`
	Limit          int64         `name:"limit" help:"Maximum number of rows, unpartitioned exports only" optional:""`
	BatchSize      int64         `name:"batch-size" help:"Target rows per partition" default:"1000000"`
	Workers        int           `name:"workers" help:"Maximum concurrent partition workers" default:"10"`
	FetchSize      int           `name:"fetch-size" help:"Rows buffered per write when streaming" default:"5000"`
	WorkerTimeout  time.Duration `name:"worker-timeout" help:"Maximum run time of one partition, 0 for none" default:"0s"`
	Compression    string        `name:"compression" help:"none, gzip, zstd or lz4" default:"none"`
	DstType        string        `name:"destination-type" help:"local or s3" default:"local"`
	DstPath        string        `name:"destination-path" help:"Directory or s3://bucket/prefix the files are published to" optional:""`
	DBCreds
}

// DBCreds is the connection used by TableCmd.
type DBCreds struct {
	Type     string `name:"type" help:"Source type: oracle or mysql" default:"oracle" enum:"oracle,mysql"`
	Host     string `name:"host" help:"Hostname" optional:""`
	Port     int    `name:"port" help:"Port" optional:""`
	Username string `name:"username" help:"User" optional:""`
	Password string `name:"password" help:"Password" optional:"" env:"SPOOLER_PASSWORD"`
	Database string `name:"database" help:"Oracle service name or MySQL database" optional:""`
	SID      string `name:"sid" help:"Oracle SID" optional:""`
	TNSAlias string `name:"tns-alias" help:"Oracle TNS alias" optional:""`
	NLSLang  string `name:"nls-lang" help:"NLS_LANG for sqlplus" optional:""`
	SQLPlus  string `name:"sqlplus" help:"Path to the sqlplus binary" optional:""`
}

type CapabilitiesCmd struct {
	Type string `name:"type" help:"Source type: oracle or mysql" required:"" enum:"oracle,mysql"`
}

// Run invokes the export of a project. Blocks until completion.
func (r *RunCmd) Run(g *Globals) error {
	cfg, err := config.Load(r.Project, r.Connections)
	if err != nil {
		return err
	}

	return runExport(g, r.RunID, cfg)
}

func (t *TableCmd) Run(g *Globals) error {
	method := config.FullTable
	if t.ReplicationKey != "" {
		method = config.Incremental
	}
	cfg := &config.Config{
		Project: config.Project{
			ID:              t.Table,
			Source:          t.Type,
			TargetDir:       t.Dir,
			Delimiter:       t.Delimiter,
			Compression:     t.Compression,
			Destination:     t.DstType,
			DestinationPath: t.DstPath,
			WorkerTimeout:   t.WorkerTimeout,
			Tables: []config.Table{{
				Name:               t.Table,
				ParallelizationKey: t.PartitionKey,
				ReplicationMethod:  method,
				ReplicationKey:     t.ReplicationKey,
				Watermark:          t.Watermark,
				Where:              t.Where,
			}},
		},
		Connection: config.Connection{
			Type: t.Type,
			Credentials: config.Credentials{
				Host:                   t.Host,
				Port:                   t.Port,
				User:                   t.Username,
				Password:               t.Password,
				Database:               t.Database,
				SID:                    t.SID,
				TNSAlias:               t.TNSAlias,
				LimitRows:              t.Limit,
				TableParallelLoads:     t.Workers,
				TableParallelBatchSize: t.BatchSize,
				FetchSize:              t.FetchSize,
				NLSLang:                t.NLSLang,
				SQLPlus:                t.SQLPlus,
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return runExport(g, t.RunID, cfg)
}

func (c *CapabilitiesCmd) Run() error {
	dialect, err := query.ParseDialect(c.Type)
	if err != nil {
		return err
	}
	tbl := uitable.New()
	tbl.AddRow("OPERATION", "SUPPORTED")
	for _, op := range source.Operations {
		supported := "no"
		if source.Supports(dialect, op) {
			supported = "yes"
		}
		tbl.AddRow(op, supported)
	}
	fmt.Println(tbl)

	return nil
}

func runExport(g *Globals, runID string, cfg *config.Config) error {
	logger := newLogger(g)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exportRunner, err := runner.NewExportRunner(&runner.ExportRunnerConfig{
		RunID:  runID,
		Config: cfg,
	}, logger)
	if err != nil {
		return fmt.Errorf("error creating export runner: %w", err)
	}
	defer exportRunner.Close()
	logger.Infof("run-id=%s", exportRunner.Prepare())

	return exportRunner.Run(ctx)
}

func main() {
	parsedCmd := kong.Parse(&cli,
		kong.Name("spooler"),
		kong.Description("Export tables from Oracle and MySQL into delimited files."),
	)
	parsedCmd.FatalIfErrorf(parsedCmd.Run(&cli.Globals))
}
