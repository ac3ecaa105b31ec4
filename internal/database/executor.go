package database

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/logger"
	"github.com/koustreak/datastore/internal/mapper"
	"github.com/koustreak/datastore/internal/record"
)

// Session runs commands. The Executor runs each call in its own
// transaction; the Session passed to WithTransaction runs every call in
// one shared transaction.
type Session interface {
	Execute(ctx context.Context, cmd Command) (int64, error)
	ExecuteScalar(ctx context.Context, cmd Command) (any, error)
	ExecuteQuery(ctx context.Context, cmd Command) ([]record.Record, error)
}

// Options tune an Executor.
type Options struct {
	// Isolation is requested for every transaction.
	Isolation IsolationLevel

	// CommandTimeout bounds commands that carry no Timeout of their own.
	// Zero means no bound beyond the caller's context.
	CommandTimeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithIsolation sets the transaction isolation level.
func WithIsolation(l IsolationLevel) Option {
	return func(e *Executor) { e.opts.Isolation = l }
}

// WithCommandTimeout sets the default per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(e *Executor) { e.opts.CommandTimeout = d }
}

// WithLogger sets the logger for command tracing.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = logger.OrNop(l).Component("executor") }
}

// WithMapper sets the mapper used by Query.
func WithMapper(m *mapper.Mapper) Option {
	return func(e *Executor) { e.mapper = m }
}

// Executor runs commands transactionally over a Connector.
//
// Every call follows the same protocol: open a connection, begin a
// transaction, run, commit. Any failure rolls the transaction back, and the
// connection is closed on every path.
type Executor struct {
	connector Connector
	opts      Options
	log       *logger.Logger
	mapper    *mapper.Mapper
}

// NewExecutor returns an Executor over c with ReadCommitted isolation.
func NewExecutor(c Connector, opts ...Option) *Executor {
	e := &Executor{
		connector: c,
		opts:      Options{Isolation: LevelReadCommitted},
		log:       logger.Nop(),
		mapper:    mapper.Default,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Options returns the effective options.
func (e *Executor) Options() Options {
	return e.opts
}

// Mapper returns the mapper used to materialize entities.
func (e *Executor) Mapper() *mapper.Mapper {
	return e.mapper
}

// Execute runs cmd and returns the number of affected rows.
func (e *Executor) Execute(ctx context.Context, cmd Command) (int64, error) {
	var n int64
	err := e.WithTransaction(ctx, func(ctx context.Context, s Session) error {
		var err error
		n, err = s.Execute(ctx, cmd)
		return err
	})
	return n, err
}

// ExecuteScalar runs cmd and returns the first column of the first row, or
// nil when no row is returned.
func (e *Executor) ExecuteScalar(ctx context.Context, cmd Command) (any, error) {
	var v any
	err := e.WithTransaction(ctx, func(ctx context.Context, s Session) error {
		var err error
		v, err = s.ExecuteScalar(ctx, cmd)
		return err
	})
	return v, err
}

// ExecuteQuery runs cmd and drains the result into records.
func (e *Executor) ExecuteQuery(ctx context.Context, cmd Command) ([]record.Record, error) {
	var recs []record.Record
	err := e.WithTransaction(ctx, func(ctx context.Context, s Session) error {
		var err error
		recs, err = s.ExecuteQuery(ctx, cmd)
		return err
	})
	return recs, err
}

// ExecuteBatch runs cmds in order in one transaction and returns the total
// number of affected rows. The first failure rolls back the whole batch.
func (e *Executor) ExecuteBatch(ctx context.Context, cmds ...Command) (int64, error) {
	var total int64
	err := e.WithTransaction(ctx, func(ctx context.Context, s Session) error {
		for _, cmd := range cmds {
			n, err := s.Execute(ctx, cmd)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	return total, err
}

// WithTransaction opens a connection, begins a transaction and calls fn
// with a Session bound to it. The transaction commits when fn returns nil
// and rolls back otherwise; fn's error is returned unchanged.
func (e *Executor) WithTransaction(ctx context.Context, fn func(ctx context.Context, s Session) error) error {
	conn, err := e.connector.Connect(ctx)
	if err != nil {
		kind := errs.ErrKindConnectionFailed
		if isContextErr(err) {
			kind = errs.ErrKindTimeout
		}
		e.log.ErrorWith("connect failed", err, nil)
		return errs.Wrap(kind, "unable to open the connection", err).WithOp("open")
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			e.log.ErrorWith("close failed", cerr, nil)
		}
	}()

	tx, err := conn.BeginTx(ctx, e.opts.Isolation)
	if err != nil {
		kind := errs.ErrKindTransaction
		if isContextErr(err) {
			kind = errs.ErrKindTimeout
		}
		return errs.Wrap(kind, "unable to begin the transaction", err).WithOp("begin")
	}

	if err := fn(ctx, &txSession{tx: tx, exec: e}); err != nil {
		// Roll back even when ctx is already done.
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil {
			e.log.ErrorWith("rollback failed", rerr, map[string]any{"cause": err.Error()})
			return errs.Wrap(errs.ErrKindTransaction, "unable to roll back the transaction", errors.Join(err, rerr)).WithOp("rollback")
		}
		e.log.DebugWith("rolled back", map[string]any{"cause": err.Error()})
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		kind := errs.ErrKindTransaction
		if isContextErr(err) {
			kind = errs.ErrKindTimeout
		}
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil {
			e.log.ErrorWith("rollback after failed commit failed", rerr, map[string]any{"cause": err.Error()})
		}
		return errs.Wrap(kind, "unable to commit the transaction", err).WithOp("commit")
	}
	return nil
}

// Ping checks that the database is reachable, through the driver when it
// implements Pinger and with "SELECT 1" otherwise.
func (e *Executor) Ping(ctx context.Context) error {
	if p, ok := e.connector.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", err).WithOp("ping")
		}
		return nil
	}
	_, err := e.ExecuteScalar(ctx, NewCommand("SELECT 1"))
	return err
}

// Scalar runs cmd and coerces the scalar result to T. A nil result yields
// the zero value of T.
func Scalar[T any](ctx context.Context, s Session, cmd Command) (T, error) {
	var zero T
	v, err := s.ExecuteScalar(ctx, cmd)
	if err != nil || v == nil {
		return zero, err
	}
	rv, err := mapper.Convert(v, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	return rv.Interface().(T), nil
}

// Query runs cmd and materializes every row as a *T.
func Query[T any](ctx context.Context, e *Executor, cmd Command) ([]*T, error) {
	recs, err := e.ExecuteQuery(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return Materialize[T](e.mapper, recs)
}

// Materialize maps records to entities with m.
func Materialize[T any](m *mapper.Mapper, recs []record.Record) ([]*T, error) {
	out := make([]*T, 0, len(recs))
	for _, r := range recs {
		v, err := mapper.FromRecordWith[T](m, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// txSession runs commands inside one transaction.
type txSession struct {
	tx   Tx
	exec *Executor
}

func (s *txSession) Execute(ctx context.Context, cmd Command) (int64, error) {
	ctx, cancel := s.exec.bound(ctx, cmd)
	defer cancel()

	start := time.Now()
	n, err := s.tx.Exec(ctx, cmd.Text, cmd.Args...)
	s.exec.log.Command("execute", cmd.Text, time.Since(start), err)
	if err != nil {
		return 0, commandError("execute", cmd, err)
	}
	return n, nil
}

func (s *txSession) ExecuteScalar(ctx context.Context, cmd Command) (any, error) {
	ctx, cancel := s.exec.bound(ctx, cmd)
	defer cancel()

	start := time.Now()
	v, err := s.query(ctx, cmd, ScanScalar)
	s.exec.log.Command("scalar", cmd.Text, time.Since(start), err)
	if err != nil {
		return nil, commandError("scalar", cmd, err)
	}
	return v, nil
}

func (s *txSession) ExecuteQuery(ctx context.Context, cmd Command) ([]record.Record, error) {
	ctx, cancel := s.exec.bound(ctx, cmd)
	defer cancel()

	start := time.Now()
	v, err := s.query(ctx, cmd, func(r Rows) (any, error) { return ScanRows(r) })
	s.exec.log.Command("query", cmd.Text, time.Since(start), err)
	if err != nil {
		return nil, commandError("query", cmd, err)
	}
	return v.([]record.Record), nil
}

func (s *txSession) query(ctx context.Context, cmd Command, scan func(Rows) (any, error)) (any, error) {
	rows, err := s.tx.Query(ctx, cmd.Text, cmd.Args...)
	if err != nil {
		return nil, err
	}
	return scan(rows)
}

// bound applies the command timeout, falling back to the executor default.
func (e *Executor) bound(ctx context.Context, cmd Command) (context.Context, context.CancelFunc) {
	d := cmd.Timeout
	if d <= 0 {
		d = e.opts.CommandTimeout
	}
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// commandError wraps a failed command. Kinds assigned by the driver are
// kept; anything else is a query failure.
func commandError(op string, cmd Command, err error) error {
	kind := errs.ErrKindQueryFailed
	switch k := errs.KindOf(err); {
	case isContextErr(err):
		kind = errs.ErrKindTimeout
	case k != errs.ErrKindUnknown:
		kind = k
	}
	return errs.Wrap(kind, "command failed", err).WithOp(op).WithCommand(cmd.Text)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
