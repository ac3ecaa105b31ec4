// Package sqldb implements the database driver boundary over database/sql,
// for drivers registered with the standard library (MySQL, SQLite, and
// sqlmock in tests).
package sqldb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
)

// ErrorMapper translates native driver errors into *errs.Error.
type ErrorMapper func(err error, msg string) error

// Option configures a Connector.
type Option func(*Connector)

// WithErrorMapper installs a driver-specific error classifier.
func WithErrorMapper(m ErrorMapper) Option {
	return func(c *Connector) { c.mapErr = m }
}

// WithIsolationMapper replaces Isolation for engines that support fewer
// levels than database/sql names.
func WithIsolationMapper(m func(database.IsolationLevel) sql.IsolationLevel) Option {
	return func(c *Connector) { c.isolation = m }
}

// Connector hands out connections from a *sql.DB pool.
// It is safe for concurrent use by multiple goroutines.
type Connector struct {
	db        *sql.DB
	mapErr    ErrorMapper
	isolation func(database.IsolationLevel) sql.IsolationLevel
}

// New wraps an open *sql.DB.
func New(db *sql.DB, opts ...Option) *Connector {
	c := &Connector{db: db, mapErr: MapError, isolation: Isolation}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open opens a pool for driverName and applies the pool settings of cfg.
// The DSN is used as given; callers build it.
func Open(driverName, dsn string, cfg *database.Config, opts ...Option) (*Connector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	if cfg != nil {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(int(cfg.MaxConns))
		}
		if cfg.MinConns > 0 {
			db.SetMaxIdleConns(int(cfg.MinConns))
		}
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}
	return New(db, opts...), nil
}

// DB exposes the underlying pool.
func (c *Connector) DB() *sql.DB {
	return c.db
}

// Connect acquires a dedicated connection from the pool.
func (c *Connector) Connect(ctx context.Context) (database.Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, c.mapErr(err, "failed to acquire connection")
	}
	return &sqlConn{conn: conn, mapErr: c.mapErr, isolation: c.isolation}, nil
}

// Ping verifies the database is reachable.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return c.mapErr(err, "ping failed")
	}
	return nil
}

// Close closes the pool. Call when the application shuts down.
func (c *Connector) Close() error {
	return c.db.Close()
}

type sqlConn struct {
	conn      *sql.Conn
	mapErr    ErrorMapper
	isolation func(database.IsolationLevel) sql.IsolationLevel
}

func (c *sqlConn) BeginTx(ctx context.Context, level database.IsolationLevel) (database.Tx, error) {
	tx, err := c.conn.BeginTx(ctx, &sql.TxOptions{Isolation: c.isolation(level)})
	if err != nil {
		return nil, c.mapErr(err, "failed to begin transaction")
	}
	return &sqlTx{tx: tx, mapErr: c.mapErr}, nil
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}

type sqlTx struct {
	tx     *sql.Tx
	mapErr ErrorMapper
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, t.mapErr(err, "exec failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.mapErr(err, "rows affected unavailable")
	}
	return n, nil
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, t.mapErr(err, "query failed")
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTx) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(context.Context) error {
	return t.tx.Rollback()
}

// sqlRows wraps *sql.Rows to satisfy database.Rows.
type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }
func (r *sqlRows) Err() error                 { return r.rows.Err() }

// Isolation maps a database.IsolationLevel onto database/sql.
func Isolation(l database.IsolationLevel) sql.IsolationLevel {
	switch l {
	case database.LevelReadUncommitted:
		return sql.LevelReadUncommitted
	case database.LevelReadCommitted:
		return sql.LevelReadCommitted
	case database.LevelRepeatableRead:
		return sql.LevelRepeatableRead
	case database.LevelSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// MapError classifies the errors database/sql itself produces. Driver
// mappers fall back to it.
func MapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	case errors.Is(err, sql.ErrNoRows):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, sql.ErrConnDone):
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
