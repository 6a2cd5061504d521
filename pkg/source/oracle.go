package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/spool"
	"github.com/block/spooler/pkg/table"
	_ "github.com/godror/godror" // register the godror driver
)

type OracleConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// Service is the service name. SID and TNSAlias are alternatives.
	Service  string
	SID      string
	TNSAlias string

	MaxOpenConnections int
	NLSLang            string
	SQLPlusBinary      string
}

// Oracle is a source backed by godror, with sqlplus for bulk export.
type Oracle struct {
	db   *sql.DB
	tool *spool.SQLPlus
}

var _ Source = (*Oracle)(nil)

// OpenOracle connects and verifies the connection with a ping.
func OpenOracle(ctx context.Context, cfg *OracleConfig) (*Oracle, error) {
	target := cfg.host()
	for field, v := range map[string]string{"user": cfg.User, "password": cfg.Password} {
		if err := query.CheckCredential(field, v); err != nil {
			return nil, &ConnectionError{Backend: "oracle", Target: target, Err: err}
		}
	}
	db, err := sql.Open("godror", cfg.connectionURI())
	if err != nil {
		return nil, &ConnectionError{Backend: "oracle", Target: target, Err: err}
	}
	if cfg.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConnections)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Backend: "oracle", Target: target, Err: err}
	}

	return newOracle(db, cfg)
}

func newOracle(db *sql.DB, cfg *OracleConfig) (*Oracle, error) {
	tool, err := spool.NewSQLPlus(spool.SQLPlusConfig{
		Binary:   cfg.SQLPlusBinary,
		User:     cfg.User,
		Password: cfg.Password,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Service:  cfg.Service,
		SID:      cfg.SID,
		TNSAlias: cfg.TNSAlias,
		NLSLang:  cfg.NLSLang,
	})
	if err != nil {
		return nil, &ConnectionError{Backend: "oracle", Target: cfg.host(), Err: err}
	}

	return &Oracle{db: db, tool: tool}, nil
}

// host identifies the target in messages without exposing credentials.
func (cfg *OracleConfig) host() string {
	if cfg.TNSAlias != "" {
		return cfg.TNSAlias
	}

	return cfg.Host + ":" + strconv.Itoa(cfg.Port)
}

func (cfg *OracleConfig) connectionURI() string {
	return fmt.Sprintf(`user="%s" password="%s" connectString="%s"`, cfg.User, cfg.Password,
		GetOracleConnectionString(cfg.Host, cfg.Port, cfg.Service, cfg.SID, cfg.TNSAlias))
}

func GetOracleConnectionString(host string, port int, dbname string, dbsid string, tnsalias string) string {
	switch {
	case dbsid != "":
		return fmt.Sprintf(`(DESCRIPTION=(ADDRESS=(PROTOCOL=TCP)(HOST=%s)(PORT=%d))(CONNECT_DATA=(SID=%s)))`,
			host, port, dbsid)

	case tnsalias != "":
		return tnsalias

	case dbname != "":
		return fmt.Sprintf(`(DESCRIPTION=(ADDRESS=(PROTOCOL=TCP)(HOST=%s)(PORT=%d))(CONNECT_DATA=(SERVICE_NAME=%s)))`,
			host, port, dbname)
	}

	return ""
}

func (o *Oracle) Dialect() query.Dialect { return query.Oracle }
func (o *Oracle) DB() *sql.DB            { return o.db }

func (o *Oracle) Supports(op Operation) bool {
	return Supports(query.Oracle, op)
}

func (o *Oracle) BulkTool() spool.Tool {
	return o.tool
}

// ToolAvailable reports whether sqlplus is on PATH.
func (o *Oracle) ToolAvailable() bool {
	return o.tool.Available()
}

func (o *Oracle) TableColumns(ctx context.Context, schema, tableName string) (*table.Descriptor, error) {
	return queryColumns(ctx, o.db, schema, tableName, `SELECT COLUMN_ID, COLUMN_NAME, DATA_TYPE, DATA_LENGTH, DATA_PRECISION, DATA_SCALE
		FROM all_tab_cols
		WHERE owner = :1 AND table_name = :2 AND COLUMN_ID IS NOT NULL
		ORDER BY COLUMN_ID`, schema, tableName)
}

func (o *Oracle) TableExists(ctx context.Context, schema, tableName string) (bool, error) {
	var n int
	err := o.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ALL_TABLES WHERE OWNER = :1 AND TABLE_NAME = :2", schema, tableName).Scan(&n)
	if err != nil {
		return false, &QueryError{Op: "table exists", Err: err}
	}

	return n > 0, nil
}

func (o *Oracle) Tables(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, o.db, "tables", "SELECT OWNER || '.' || TABLE_NAME FROM ALL_TABLES ORDER BY 1")
}

func (o *Oracle) Schemas(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, o.db, "schemas", "SELECT DISTINCT OWNER FROM ALL_TABLES ORDER BY OWNER")
}

func (o *Oracle) TruncateTable(context.Context, string, string) error {
	return &UnsupportedOperationError{Backend: "oracle", Op: TruncateTable}
}

func (o *Oracle) CreateSchema(context.Context, string) error {
	return &UnsupportedOperationError{Backend: "oracle", Op: CreateSchema}
}

func (o *Oracle) Close() error {
	return o.db.Close()
}
