package database

import "context"

// Connector opens connections. Drivers backed by a pool hand out a pooled
// connection; Close returns it.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) { return f(ctx) }

// Conn is one open connection.
type Conn interface {
	// BeginTx starts a transaction at the given isolation level.
	BeginTx(ctx context.Context, level IsolationLevel) (Tx, error)

	// Close releases the connection.
	Close() error
}

// Tx is an active transaction.
type Tx interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query runs a statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Pinger is implemented by drivers that can check reachability without a
// transaction.
type Pinger interface {
	Ping(ctx context.Context) error
}
