// Package test holds helpers shared by the package tests.
package test

import (
	"bufio"
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/block/spirit/pkg/dbconn"
	_ "github.com/go-sql-driver/mysql" // register the mysql driver
	"github.com/stretchr/testify/require"
)

// DSN returns the MySQL server used by integration tests. Tests that need it
// call RequireMySQL first.
func DSN() string {
	return os.Getenv("MYSQL_DSN")
}

// RequireMySQL skips the test unless MYSQL_DSN points at a server.
func RequireMySQL(t *testing.T) {
	t.Helper()
	if DSN() == "" {
		t.Skip("MYSQL_DSN not set")
	}
}

func RunSQL(t *testing.T, stmt string) {
	t.Helper()
	db, err := sql.Open("mysql", DSN())
	require.NoError(t, err)
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("error closing db: %v", closeErr)
		}
	}()
	_, err = db.Exec(stmt)
	require.NoError(t, err)
}

// SetupDB opens the integration server through spirit's connection setup.
func SetupDB(t *testing.T, threads int) *sql.DB {
	t.Helper()
	dbConfig := dbconn.NewDBConfig()
	dbConfig.MaxOpenConnections = threads + 1
	db, err := dbconn.New(DSN(), dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// NewMock returns a sqlmock database matching queries by regular expression.
// It is closed and checked for unmet expectations when the test ends.
func NewMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return cleanup(t, db, mock)
}

// NewExactMock is NewMock with exact query matching.
func NewExactMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	return cleanup(t, db, mock)
}

func cleanup(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return db, mock
}

func TableExists(t *testing.T, schema, table string, db *sql.DB) bool {
	t.Helper()
	var count int
	query := "SELECT COUNT(TABLE_NAME) FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?;"

	_ = db.QueryRowContext(context.Background(), query, schema, table).Scan(&count)

	return count > 0
}

// ReadLines returns the lines of the file at path.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	require.NoError(t, s.Err())

	return lines
}
