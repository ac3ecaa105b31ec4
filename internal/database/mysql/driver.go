// Package mysql implements the database driver boundary for MySQL and
// MariaDB on top of database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/database/sqldb"
)

const driverName = "mysql"

// Connector hands out pooled MySQL connections and reads the live schema.
// It is safe for concurrent use by multiple goroutines.
type Connector struct {
	*sqldb.Connector
}

// New opens a MySQL connection pool using the provided Config and returns
// a Connector. It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Connector, error) {
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := sqldb.Open(driverName, dsn, poolSettings(cfg), sqldb.WithErrorMapper(mapError))
	if err != nil {
		return nil, err
	}
	c := &Connector{Connector: pool}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := c.Ping(pingCtx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// FromDB wraps an open *sql.DB, classifying errors the MySQL way.
func FromDB(db *sql.DB) *Connector {
	return &Connector{Connector: sqldb.New(db, sqldb.WithErrorMapper(mapError))}
}
