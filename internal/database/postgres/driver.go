// Package postgres implements the database driver boundary for PostgreSQL
// on top of pgxpool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
)

// Connector hands out pooled PostgreSQL connections.
// It is safe for concurrent use by multiple goroutines.
type Connector struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL using the provided Config and returns a
// Connector. It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Connector, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	c := &Connector{pool: pool}
	if err := c.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// FromPool wraps an existing pool.
func FromPool(pool *pgxpool.Pool) *Connector {
	return &Connector{pool: pool}
}

// Pool returns the underlying pgxpool (for advanced use)
func (c *Connector) Pool() *pgxpool.Pool {
	return c.pool
}

// Connect acquires a connection from the pool. Closing it releases it back.
func (c *Connector) Connect(ctx context.Context) (database.Conn, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}
	return &pgConn{conn: conn}, nil
}

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool. Call when the application shuts down.
func (c *Connector) Close() {
	c.pool.Close()
}

type pgConn struct {
	conn *pgxpool.Conn
}

func (c *pgConn) BeginTx(ctx context.Context, level database.IsolationLevel) (database.Tx, error) {
	tx, err := c.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: isoLevel(level)})
	if err != nil {
		return nil, mapError(err, "failed to begin transaction")
	}
	return &pgTx{tx: tx}, nil
}

func (c *pgConn) Close() error {
	c.conn.Release()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// Exec runs without arguments on the simple protocol, so a command may
// hold several statements.
func (t *pgTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx), "commit failed")
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return mapError(t.tx.Rollback(ctx), "rollback failed")
}

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return mapError(r.rows.Scan(dest...), "scan failed") }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return mapError(r.rows.Err(), "error iterating rows") }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

func isoLevel(l database.IsolationLevel) pgx.TxIsoLevel {
	switch l {
	case database.LevelReadUncommitted:
		return pgx.ReadUncommitted
	case database.LevelReadCommitted:
		return pgx.ReadCommitted
	case database.LevelRepeatableRead:
		return pgx.RepeatableRead
	case database.LevelSerializable:
		return pgx.Serializable
	default:
		return ""
	}
}
