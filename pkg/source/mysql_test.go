package source

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/test"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLDSN(t *testing.T) {
	cfg := &MySQLConfig{Host: "127.0.0.1", User: "msandbox", Password: "p@ss:word", Database: "test"}
	parsed, err := mysql.ParseDSN(cfg.dsn())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3306", parsed.Addr)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "test", parsed.DBName)
}

func TestMySQLMetadata(t *testing.T) {
	db, mock := test.NewMock(t)
	m := &MySQL{db: db, database: "test"}

	mock.ExpectQuery("FROM information_schema.columns").WithArgs("test", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"ORDINAL_POSITION", "COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION", "NUMERIC_SCALE"}).
			AddRow(2, "name", "varchar", 255, nil, nil).
			AddRow(1, "id", "bigint", nil, 19, 0))
	d, err := m.TableColumns(context.Background(), "test", "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, d.ColumnNames())

	mock.ExpectQuery("SELECT EXISTS").WithArgs("test", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))
	exists, err := m.TableExists(context.Background(), "test", "orders")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("FROM information_schema.tables WHERE table_schema = \\?").WithArgs("test").
		WillReturnRows(sqlmock.NewRows([]string{"t"}).AddRow("test.orders"))
	tables, err := m.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"test.orders"}, tables)

	assert.Equal(t, query.MySQL, m.Dialect())
	assert.Nil(t, m.BulkTool())
	assert.True(t, m.Supports(TruncateTable))
}

func TestMySQLIntegration(t *testing.T) {
	test.RequireMySQL(t)
	cfg, err := mysql.ParseDSN(test.DSN())
	require.NoError(t, err)
	host, port := cfg.Addr, 3306
	addr, err := splitAddr(cfg.Addr)
	if err == nil {
		host, port = addr.host, addr.port
	}

	m, err := OpenMySQL(context.Background(), &MySQLConfig{
		Host:            host,
		Port:            port,
		User:            cfg.User,
		Password:        cfg.Passwd,
		Database:        cfg.DBName,
		LockWaitTimeout: 30 * time.Second,
	})
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.CreateSchema(context.Background(), "spooler_it"))
	test.RunSQL(t, "DROP TABLE IF EXISTS spooler_it.t1")
	test.RunSQL(t, "CREATE TABLE spooler_it.t1 (id INT PRIMARY KEY, name VARCHAR(20))")
	test.RunSQL(t, "INSERT INTO spooler_it.t1 VALUES (1, 'a'), (2, 'b')")

	d, err := m.TableColumns(context.Background(), "spooler_it", "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, d.ColumnNames())

	require.NoError(t, m.TruncateTable(context.Background(), "spooler_it", "t1"))
	var n int
	require.NoError(t, m.DB().QueryRow("SELECT COUNT(*) FROM spooler_it.t1").Scan(&n))
	assert.Zero(t, n)
}

type hostPort struct {
	host string
	port int
}

func splitAddr(addr string) (hostPort, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return hostPort{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return hostPort{}, err
	}

	return hostPort{host: host, port: port}, nil
}
