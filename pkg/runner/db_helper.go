package runner

import (
	"context"
	"fmt"

	"github.com/block/spooler/pkg/config"
	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/source"
)

// SourceOpener connects to the connection a project exports from.
type SourceOpener func(ctx context.Context, conn *config.Connection) (source.Source, error)

// maxOpenConnections sizes the pool for the partition workers. One extra
// connection is kept for metadata and range queries issued while workers run.
func maxOpenConnections(cr *config.Credentials) int {
	return cr.TableParallelLoads + 1
}

// OpenSource is the default SourceOpener.
func OpenSource(ctx context.Context, conn *config.Connection) (source.Source, error) {
	dialect, err := query.ParseDialect(conn.Type)
	if err != nil {
		return nil, err
	}
	cr := conn.Credentials
	switch dialect {
	case query.Oracle:
		return source.OpenOracle(ctx, &source.OracleConfig{
			Host:               cr.Host,
			Port:               cr.Port,
			User:               cr.User,
			Password:           cr.Password,
			Service:            cr.Database,
			SID:                cr.SID,
			TNSAlias:           cr.TNSAlias,
			MaxOpenConnections: maxOpenConnections(&cr),
			NLSLang:            cr.NLSLang,
			SQLPlusBinary:      cr.SQLPlus,
		})
	case query.MySQL:
		return source.OpenMySQL(ctx, &source.MySQLConfig{
			Host:               cr.Host,
			Port:               cr.Port,
			User:               cr.User,
			Password:           cr.Password,
			Database:           cr.Database,
			MaxOpenConnections: maxOpenConnections(&cr),
			LockWaitTimeout:    cr.LockWaitTimeout,
		})
	}

	return nil, fmt.Errorf("unsupported connection type %s", conn.Type)
}
