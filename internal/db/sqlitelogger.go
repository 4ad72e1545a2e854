package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"cosmoz-server/internal/metrics"
)

// statementLogMsg is the slog message used for every logged statement.
const statementLogMsg = "docstore statement"

var errUseConnector = errors.New("sqlite3-log: use sql.OpenDB(NewLoggingConnector(...)) instead of sql.Open")

// loggingConnector opens sqlite3 connections whose prepared statements are
// logged and counted.
type loggingConnector struct {
	dsn    string
	logger *slog.Logger
}

type loggingConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

type loggingStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

type loggingDriver struct{}

// NewLoggingConnector returns a driver.Connector for sql.OpenDB. A nil logger
// falls back to slog.Default().
func NewLoggingConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingConnector{dsn: dsn, logger: logger}, nil
}

func (c *loggingConnector) Driver() driver.Driver { return loggingDriver{} }

func (c *loggingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := (&sqlite3.SQLiteDriver{}).Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{conn: conn, logger: c.logger}, nil
}

func (loggingDriver) Open(string) (driver.Conn, error) { return nil, errUseConnector }

func (c *loggingConn) wrap(stmt driver.Stmt, query string) driver.Stmt {
	return &loggingStmt{stmt: stmt, query: query, logger: c.logger}
}

func (c *loggingConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return c.wrap(stmt, query), nil
}

func (c *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	prep, ok := c.conn.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	stmt, err := prep.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.wrap(stmt, query), nil
}

func (c *loggingConn) Close() error { return c.conn.Close() }

func (c *loggingConn) Begin() (driver.Tx, error) {
	//nolint:staticcheck // SA1019 – required when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

func (c *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	return c.Begin()
}

func (s *loggingStmt) Exec(args []driver.Value) (driver.Result, error) {
	defer s.observe("exec", valuesToStrings(args), time.Now())
	//nolint:staticcheck // SA1019 – required when underlying stmt does not implement StmtExecContext
	return s.stmt.Exec(args)
}

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	defer s.observe("exec", namedToStrings(args), time.Now())
	if execCtx, ok := s.stmt.(driver.StmtExecContext); ok {
		return execCtx.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 – fallback when underlying stmt does not implement StmtExecContext
	return s.stmt.Exec(namedToValues(args))
}

func (s *loggingStmt) Query(args []driver.Value) (driver.Rows, error) {
	defer s.observe("query", valuesToStrings(args), time.Now())
	//nolint:staticcheck // SA1019 – required when underlying stmt does not implement StmtQueryContext
	return s.stmt.Query(args)
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	defer s.observe("query", namedToStrings(args), time.Now())
	if queryCtx, ok := s.stmt.(driver.StmtQueryContext); ok {
		return queryCtx.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 – fallback when underlying stmt does not implement StmtQueryContext
	return s.stmt.Query(namedToValues(args))
}

func (s *loggingStmt) Close() error { return s.stmt.Close() }

// NumInput returns -1 (unknown) when the wrapped statement cannot tell.
func (s *loggingStmt) NumInput() int {
	if s.stmt == nil {
		return -1
	}
	return s.stmt.NumInput()
}

func (s *loggingStmt) observe(op string, args []string, start time.Time) {
	metrics.DocStoreStatements.WithLabelValues(op).Inc()
	s.logger.Debug(statementLogMsg,
		"op", op,
		"sql", s.query,
		"args", args,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func namedToStrings(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = a.Name + "=" + formatArg(a.Value)
			continue
		}
		out[i] = formatArg(a.Value)
	}
	return out
}

func valuesToStrings(args []driver.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = formatArg(a)
	}
	return out
}

func namedToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
