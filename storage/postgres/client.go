// Package postgres implements the target storage interface
// backed by PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/chainledger/wallet-indexer/common"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/storage"
)

const (
	moduleName = "postgres"
)

// Client is a client for connecting to PostgreSQL.
type Client struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

var _ storage.TargetStorage = (*Client)(nil)

// pgxLogger routes pgx's tracer output into our structured logger.
type pgxLogger struct {
	logger *log.Logger
}

func (l *pgxLogger) logFuncForLevel(level tracelog.LogLevel) func(string, ...interface{}) {
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		return l.logger.Debug
	case tracelog.LogLevelInfo:
		return l.logger.Info
	case tracelog.LogLevelWarn:
		return l.logger.Warn
	case tracelog.LogLevelError, tracelog.LogLevelNone:
		return l.logger.Error
	default:
		l.logger.Warn("unknown pgx log level", "unknown_level", level)
		return l.logger.Info
	}
}

// Log implements tracelog.Logger.
func (l *pgxLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	args := make([]interface{}, 0, 2*len(data))
	for k, v := range data {
		args = append(args, k, v)
	}
	l.logFuncForLevel(level)(msg, args...)
}

// NewClient creates a new PostgreSQL client.
func NewClient(connString string, l *log.Logger) (*Client, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	// A log line is produced only if it is >= the level specified here and
	// >= the level of the underlying logger. "Info" logs every statement.
	config.ConnConfig.Tracer = &tracelog.TraceLog{
		LogLevel: tracelog.LogLevelWarn,
		Logger: &pgxLogger{
			logger: l.WithModule(moduleName).With("db", config.ConnConfig.Database),
		},
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return &Client{
		pool:   pool,
		logger: l.WithModule(moduleName),
	}, nil
}

// SendBatch submits a batch of queries as one atomic transaction.
//
// Row counts are discarded; callers only care whether all the writes
// belonging to a block landed together.
func (c *Client) SendBatch(ctx context.Context, batch *storage.QueryBatch) error {
	return c.SendBatchWithOptions(ctx, batch, pgx.TxOptions{})
}

// sendBatchFast pipelines the whole batch in a single roundtrip. pgx reports
// errors poorly in this mode: a malformed query anywhere in the batch is
// usually attributed to the first one.
func (c *Client) sendBatchFast(ctx context.Context, batch *storage.QueryBatch, opts pgx.TxOptions) error {
	pgxBatch := batch.AsPgxBatch()

	// Without options, pgx wraps the batch in an implicit tx; see https://github.com/jackc/pgx/issues/879
	var tx pgx.Tx
	var results pgx.BatchResults
	if opts != (pgx.TxOptions{}) {
		var err error
		if tx, err = c.pool.BeginTx(ctx, opts); err != nil {
			return fmt.Errorf("failed to begin tx: %w", err)
		}
		results = tx.SendBatch(ctx, &pgxBatch)
	} else {
		results = c.pool.SendBatch(ctx, &pgxBatch)
	}

	for i := 0; i < pgxBatch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			common.CloseOrLog(results, c.logger)
			if tx != nil {
				if rbErr := tx.Rollback(ctx); rbErr != nil {
					return fmt.Errorf("query %d %v: %w; also failed to rollback tx: %v", i, batch.Queries()[i], err, rbErr)
				}
			}
			return fmt.Errorf("query %d %v: %w", i, batch.Queries()[i], err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch results: %w", err)
	}

	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit tx: %w", err)
		}
	}
	return nil
}

// sendBatchSlow executes one query at a time inside an explicit tx, so
// that a failure is attributed to the right query.
func (c *Client) sendBatchSlow(ctx context.Context, batch *storage.QueryBatch, opts pgx.TxOptions) error {
	tx, err := c.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	for i, q := range batch.Queries() {
		if _, err := tx.Exec(ctx, q.Cmd, q.Args...); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("query %d %v: %w; also failed to rollback tx: %v", i, q, err, rbErr)
			}
			return fmt.Errorf("query %d %v: %w", i, q, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		c.logger.Error("failed to commit tx",
			"err", err,
			"batch_len", batch.Len(),
		)
		return err
	}
	return nil
}

// SendBatchWithOptions is like SendBatch, with custom tx options.
func (c *Client) SendBatchWithOptions(ctx context.Context, batch *storage.QueryBatch, opts pgx.TxOptions) error {
	if err := c.sendBatchFast(ctx, batch, opts); err == nil {
		return nil
	}
	// The failed tx was rolled back, so it is safe to resubmit; this
	// time with per-query error reporting.
	return c.sendBatchSlow(ctx, batch, opts)
}

// Query submits a new read query to PostgreSQL.
func (c *Client) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		c.logger.Error("failed to query db",
			"err", err,
			"query_cmd", sql,
			"query_args", args,
		)
		return nil, err
	}
	return rows, nil
}

// QueryRow submits a new read query for a single row to PostgreSQL.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// Close implements the storage.TargetStorage interface for Client.
func (c *Client) Close() {
	c.pool.Close()
}

// Name implements the storage.TargetStorage interface for Client.
func (c *Client) Name() string {
	return moduleName
}

// Queries listing the fully-qualified names of user-defined objects, keyed
// by the SQL keyword used to drop them. Order matters: views depend on
// tables, and tables may depend on types and functions.
var userObjectQueries = []struct {
	kind  string
	query string
}{
	{"MATERIALIZED VIEW", `
		SELECT schemaname, matviewname FROM pg_matviews
		WHERE schemaname != 'information_schema' AND schemaname NOT LIKE 'pg_%'`},
	{"TABLE", `
		SELECT schemaname, tablename FROM pg_tables
		WHERE schemaname != 'information_schema' AND schemaname NOT LIKE 'pg_%'`},
	{"TYPE", `
		SELECT n.nspname, t.typname
		FROM pg_type t
		LEFT JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		WHERE (t.typrelid = 0 OR (SELECT c.relkind = 'c' FROM pg_catalog.pg_class c WHERE c.oid = t.typrelid))
			AND NOT EXISTS(SELECT 1 FROM pg_catalog.pg_type el WHERE el.oid = t.typelem AND el.typarray = t.oid)
			AND n.nspname != 'information_schema' AND n.nspname NOT LIKE 'pg_%'`},
	{"FUNCTION", `
		SELECT n.nspname, p.proname
		FROM pg_proc p
		LEFT JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')`},
}

func (c *Client) listObjects(ctx context.Context, query string) ([]string, error) {
	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var schema, name string
		if err = rows.Scan(&schema, &name); err != nil {
			return nil, err
		}
		names = append(names, fmt.Sprintf("%s.%s", schema, name))
	}
	return names, rows.Err()
}

// Wipe removes all contents of the database, including the migration
// bookkeeping, so that the next start re-indexes from scratch.
func (c *Client) Wipe(ctx context.Context) error {
	for _, objs := range userObjectQueries {
		names, err := c.listObjects(ctx, objs.query)
		if err != nil {
			return fmt.Errorf("list %s: %w", objs.kind, err)
		}
		for _, name := range names {
			c.logger.Info("dropping "+objs.kind, "name", name)
			if _, err = c.pool.Exec(ctx, fmt.Sprintf("DROP %s IF EXISTS %s CASCADE;", objs.kind, name)); err != nil {
				return err
			}
		}
	}
	return nil
}
