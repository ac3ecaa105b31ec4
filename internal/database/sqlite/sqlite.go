// Package sqlite implements the database driver boundary for SQLite using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/database/sqldb"
	"github.com/koustreak/datastore/internal/errs"
)

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 5000 // milliseconds
)

// Connector hands out connections to one SQLite database file.
type Connector struct {
	*sqldb.Connector
}

// New opens the database named by cfg.DSN, or by cfg.Database when no DSN
// is set, and pings it.
func New(ctx context.Context, cfg *database.Config) (*Connector, error) {
	pool := *cfg
	if pool.MaxConns == 0 {
		// SQLite allows one writer at a time.
		pool.MaxConns = 1
	}

	db, err := sqldb.Open(driverName, BuildDSN(cfg), &pool,
		sqldb.WithErrorMapper(mapError),
		sqldb.WithIsolationMapper(isolation))
	if err != nil {
		return nil, err
	}
	c := &Connector{Connector: db}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// BuildDSN returns the DSN of cfg with a busy timeout and foreign-key
// enforcement added unless the DSN already sets pragmas.
func BuildDSN(cfg *database.Config) string {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Database
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", dsn, sep, defaultBusyTimeout)
}

// isolation maps every level to the default: SQLite transactions are
// always serializable.
func isolation(database.IsolationLevel) sql.IsolationLevel {
	return sql.LevelDefault
}

// mapError translates modernc.org/sqlite errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return errs.Wrap(classify(sqliteErr.Code()), msg, err)
	}
	return sqldb.MapError(err, msg)
}

// classify maps a (possibly extended) SQLite result code to ErrKind.
func classify(code int) errs.ErrKind {
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return errs.ErrKindTransaction
	case sqlite3.SQLITE_INTERRUPT:
		return errs.ErrKindTimeout
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
		return errs.ErrKindPermissionDenied
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
