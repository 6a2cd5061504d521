package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const connectionsYAML = `
erp:
  type: oracle
  credentials:
    host: db.internal
    port: 1521
    user: scott
    password: ${SPOOLER_TEST_PASSWORD}
    database: ORCL
    table_parallel_loads: 4
    nls_lang: AMERICAN_AMERICA.AL32UTF8
shop:
  type: mysql
  credentials:
    host: 127.0.0.1
    user: app
    password: pa$$word
    database: shop
`

const projectYAML = `
source: erp
target_dir: /data/out
delimiter: "|"
compression: zstd
worker_timeout: 30m
tables:
  - table: SALES.ORDERS
    parallelization_key: ID
    replication_method: INCREMENTAL
    replication_key: UPDATED_AT
    watermark: "2023-01-01"
  - table: SALES.CUSTOMERS
    table_where_clause: "STATUS = 'A'"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("SPOOLER_TEST_PASSWORD", "tiger")
	dir := t.TempDir()
	project := writeFile(t, dir, "erp_export.yml", projectYAML)
	conns := writeFile(t, dir, "connections.yml", connectionsYAML)

	cfg, err := Load(project, conns)
	require.NoError(t, err)

	require.Equal(t, "erp_export", cfg.Project.ID)
	require.Equal(t, "/data/out", cfg.Project.TargetDir)
	require.Equal(t, "zstd", cfg.Project.Compression)
	require.Equal(t, "local", cfg.Project.Destination)
	require.Equal(t, 30*time.Minute, cfg.Project.WorkerTimeout)
	d, err := cfg.Project.DelimiterRune()
	require.NoError(t, err)
	require.Equal(t, '|', d)

	require.Len(t, cfg.Project.Tables, 2)
	orders := cfg.Project.Tables[0]
	require.True(t, orders.Incremental())
	schema, name, err := orders.SchemaTable()
	require.NoError(t, err)
	require.Equal(t, "SALES", schema)
	require.Equal(t, "ORDERS", name)
	require.False(t, cfg.Project.Tables[1].Incremental())
	require.Equal(t, "STATUS = 'A'", cfg.Project.Tables[1].Where)

	require.Equal(t, "oracle", cfg.Connection.Type)
	cr := cfg.Connection.Credentials
	require.Equal(t, "tiger", cr.Password)
	require.Equal(t, 1521, cr.Port)
	require.Equal(t, 4, cr.TableParallelLoads)
	require.EqualValues(t, 1_000_000, cr.TableParallelBatchSize)
	require.Equal(t, 5000, cr.FetchSize)
	require.Equal(t, "AMERICAN_AMERICA.AL32UTF8", cr.NLSLang)
}

func TestLoadKeepsBareDollar(t *testing.T) {
	dir := t.TempDir()
	project := writeFile(t, dir, "p.yml", "source: shop\ntarget_dir: /tmp\ntables:\n  - table: shop.orders\n")
	conns := writeFile(t, dir, "connections.yml", connectionsYAML)

	cfg, err := Load(project, conns)
	require.NoError(t, err)
	require.Equal(t, "pa$$word", cfg.Connection.Credentials.Password)
	require.Equal(t, "mysql", cfg.Connection.Type)
	require.Equal(t, "none", cfg.Project.Compression)
	require.Equal(t, ",", cfg.Project.Delimiter)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	conns := writeFile(t, dir, "connections.yml", connectionsYAML)

	_, err := Load(filepath.Join(dir, "missing.yml"), conns)
	require.Error(t, err)

	noSource := writeFile(t, dir, "nosource.yml", "target_dir: /tmp\n")
	_, err = Load(noSource, conns)
	require.ErrorIs(t, err, ErrSourceRequired)

	unknown := writeFile(t, dir, "unknown.yml", "source: crm\ntarget_dir: /tmp\n")
	_, err = Load(unknown, conns)
	require.ErrorIs(t, err, ErrSourceUnknown)
}

func validConfig() Config {
	return Config{
		Project: Project{
			Source:      "erp",
			TargetDir:   "/tmp",
			Delimiter:   ",",
			Compression: "none",
			Destination: "local",
			Tables:      []Table{{Name: "SALES.ORDERS"}},
		},
		Connection: Connection{
			Type: "oracle",
			Credentials: Credentials{
				Host:                   "db",
				User:                   "scott",
				TableParallelLoads:     1,
				TableParallelBatchSize: 10,
			},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{"valid", func(*Config) {}, nil},
		{"tns alias without host", func(c *Config) {
			c.Connection.Credentials.Host = ""
			c.Connection.Credentials.TNSAlias = "ERP"
		}, nil},
		{"bad type", func(c *Config) { c.Connection.Type = "postgres" }, ErrConnectionType},
		{"no host", func(c *Config) { c.Connection.Credentials.Host = "" }, ErrHostRequired},
		{"no user", func(c *Config) { c.Connection.Credentials.User = "" }, ErrUserRequired},
		{"bad port", func(c *Config) { c.Connection.Credentials.Port = 70000 }, ErrPortInvalid},
		{"zero loads", func(c *Config) { c.Connection.Credentials.TableParallelLoads = 0 }, ErrParallelLoadsInvalid},
		{"zero batch", func(c *Config) { c.Connection.Credentials.TableParallelBatchSize = 0 }, ErrBatchSizeInvalid},
		{"no target", func(c *Config) { c.Project.TargetDir = "" }, ErrTargetDirRequired},
		{"long delimiter", func(c *Config) { c.Project.Delimiter = "||" }, ErrDelimiterInvalid},
		{"quote delimiter", func(c *Config) { c.Project.Delimiter = `"` }, ErrDelimiterInvalid},
		{"s3 without path", func(c *Config) { c.Project.Destination = "s3" }, ErrDestinationPath},
		{"no tables", func(c *Config) { c.Project.Tables = nil }, ErrTablesRequired},
		{"unqualified table", func(c *Config) { c.Project.Tables[0].Name = "ORDERS" }, ErrTableNameInvalid},
		{"bad method", func(c *Config) { c.Project.Tables[0].ReplicationMethod = "LOG_BASED" }, ErrReplicationMethod},
		{"incremental without key", func(c *Config) { c.Project.Tables[0].ReplicationMethod = "incremental" }, ErrReplicationKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.err)
		})
	}

	cfg := validConfig()
	cfg.Project.Compression = "brotli"
	require.Error(t, cfg.Validate())
}
