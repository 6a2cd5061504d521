package source

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/block/spirit/pkg/dbconn"
	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/spool"
	"github.com/block/spooler/pkg/table"
	"github.com/go-sql-driver/mysql"
)

type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	MaxOpenConnections int
	LockWaitTimeout    time.Duration
}

// MySQL is a source backed by go-sql-driver/mysql through spirit's
// connection setup. It has no bulk tool, so every partition is streamed.
type MySQL struct {
	db       *sql.DB
	database string
}

var _ Source = (*MySQL)(nil)

func OpenMySQL(ctx context.Context, cfg *MySQLConfig) (*MySQL, error) {
	dbConfig := dbconn.NewDBConfig()
	if cfg.MaxOpenConnections > 0 {
		dbConfig.MaxOpenConnections = cfg.MaxOpenConnections
	}
	if cfg.LockWaitTimeout > 0 {
		dbConfig.LockWaitTimeout = int(cfg.LockWaitTimeout.Seconds())
	}
	db, err := dbconn.New(cfg.dsn(), dbConfig)
	if err != nil {
		return nil, &ConnectionError{Backend: "mysql", Target: cfg.addr(), Err: err}
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Backend: "mysql", Target: cfg.addr(), Err: err}
	}

	return &MySQL{db: db, database: cfg.Database}, nil
}

func (cfg *MySQLConfig) addr() string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	return cfg.Host + ":" + strconv.Itoa(port)
}

func (cfg *MySQLConfig) dsn() string {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = cfg.addr()
	c.DBName = cfg.Database

	return c.FormatDSN()
}

func (m *MySQL) Dialect() query.Dialect { return query.MySQL }
func (m *MySQL) DB() *sql.DB            { return m.db }

func (m *MySQL) Supports(op Operation) bool {
	return Supports(query.MySQL, op)
}

func (m *MySQL) BulkTool() spool.Tool {
	return nil
}

func (m *MySQL) TableColumns(ctx context.Context, schema, tableName string) (*table.Descriptor, error) {
	return queryColumns(ctx, m.db, schema, tableName, `SELECT ORDINAL_POSITION, COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ORDINAL_POSITION`, schema, tableName)
}

func (m *MySQL) TableExists(ctx context.Context, schema, tableName string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT * FROM information_schema.tables WHERE table_schema = ? AND table_name = ?)", schema, tableName).Scan(&exists)
	if err != nil {
		return false, &QueryError{Op: "table exists", Err: err}
	}

	return exists, nil
}

func (m *MySQL) Tables(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, m.db, "tables",
		"SELECT CONCAT(table_schema, '.', table_name) FROM information_schema.tables WHERE table_schema = ? ORDER BY 1", m.database)
}

func (m *MySQL) Schemas(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, m.db, "schemas", "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name")
}

func (m *MySQL) TruncateTable(ctx context.Context, schema, tableName string) error {
	if err := dbconn.Exec(ctx, m.db, "TRUNCATE TABLE %n.%n", schema, tableName); err != nil {
		return &QueryError{Op: "truncate table", Err: err}
	}

	return nil
}

func (m *MySQL) CreateSchema(ctx context.Context, schema string) error {
	if err := dbconn.Exec(ctx, m.db, "CREATE DATABASE IF NOT EXISTS %n", schema); err != nil {
		return &QueryError{Op: "create schema", Err: err}
	}

	return nil
}

func (m *MySQL) Close() error {
	return m.db.Close()
}
