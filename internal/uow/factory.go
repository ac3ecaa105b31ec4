package uow

import (
	"github.com/koustreak/datastore/internal/command"
	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/logger"
)

type settings struct {
	atomic          bool
	includeChildren bool
	log             *logger.Logger
}

// Option configures a Factory or a single UnitOfWork.
type Option func(*settings)

// WithAtomicSave makes SaveChanges run the whole batch in one transaction.
func WithAtomicSave() Option {
	return func(s *settings) { s.atomic = true }
}

// IncludeChildren makes inserts cascade to child collections.
func IncludeChildren() Option {
	return func(s *settings) { s.includeChildren = true }
}

// WithLogger sets the logger for save batches.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = logger.OrNop(l).Component("uow") }
}

// Factory creates collections and units of work sharing one executor and
// dialect. It is safe for concurrent use; the values it creates are not.
type Factory struct {
	exec     *database.Executor
	builder  *command.Builder
	defaults settings
}

// NewFactory returns a Factory building commands in dialect d. Options set
// the defaults of every UnitOfWork it creates.
func NewFactory(exec *database.Executor, d command.Dialect, opts ...Option) *Factory {
	f := &Factory{
		exec:     exec,
		builder:  command.New(d, exec.Mapper()),
		defaults: settings{log: logger.Nop()},
	}
	for _, o := range opts {
		o(&f.defaults)
	}
	return f
}

// Executor returns the factory's executor.
func (f *Factory) Executor() *database.Executor { return f.exec }

// Builder returns the factory's command builder.
func (f *Factory) Builder() *command.Builder { return f.builder }

// NewCollection returns an empty Collection for T.
func NewCollection[T any](f *Factory) *Collection[T] {
	return &Collection[T]{exec: f.exec, builder: f.builder}
}

// New returns a UnitOfWork for T with an empty collection. opts override
// the factory defaults.
func New[T any](f *Factory, opts ...Option) *UnitOfWork[T] {
	s := f.defaults
	for _, o := range opts {
		o(&s)
	}
	return &UnitOfWork[T]{
		Entities: NewCollection[T](f),
		exec:     f.exec,
		builder:  f.builder,
		settings: s,
	}
}
