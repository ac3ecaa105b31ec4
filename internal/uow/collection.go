package uow

import (
	"context"

	"github.com/koustreak/datastore/internal/command"
	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/expr"
	"github.com/koustreak/datastore/internal/record"
)

// Status is the pending operation of a ChangeEntry.
type Status int

const (
	Inserted Status = iota
	Updated
	Deleted
)

func (s Status) String() string {
	switch s {
	case Inserted:
		return "insert"
	case Updated:
		return "update"
	case Deleted:
		return "delete"
	}
	return "unknown"
}

// ChangeEntry is one recorded operation.
type ChangeEntry[T any] struct {
	Status Status
	Entity *T
}

// Collection records pending changes for one entity type and queries the
// stored rows. Entries are neither validated nor deduplicated: every
// recorded operation is persisted, in order.
//
// A Collection is not safe for concurrent use.
type Collection[T any] struct {
	entries []ChangeEntry[T]
	exec    *database.Executor
	builder *command.Builder
}

// Insert records e for insertion.
func (c *Collection[T]) Insert(e *T) { c.add(Inserted, e) }

// Update records e for update.
func (c *Collection[T]) Update(e *T) { c.add(Updated, e) }

// Delete records e for deletion.
func (c *Collection[T]) Delete(e *T) { c.add(Deleted, e) }

func (c *Collection[T]) add(s Status, e *T) {
	c.entries = append(c.entries, ChangeEntry[T]{Status: s, Entity: e})
}

// Inserted returns the entities pending insertion, in recorded order.
func (c *Collection[T]) Inserted() []*T { return c.with(Inserted) }

// Updated returns the entities pending update, in recorded order.
func (c *Collection[T]) Updated() []*T { return c.with(Updated) }

// Deleted returns the entities pending deletion, in recorded order.
func (c *Collection[T]) Deleted() []*T { return c.with(Deleted) }

func (c *Collection[T]) with(s Status) []*T {
	var out []*T
	for _, e := range c.entries {
		if e.Status == s {
			out = append(out, e.Entity)
		}
	}
	return out
}

// Entries returns a copy of every pending entry in recorded order.
func (c *Collection[T]) Entries() []ChangeEntry[T] {
	return append([]ChangeEntry[T](nil), c.entries...)
}

// Len returns the number of pending entries.
func (c *Collection[T]) Len() int { return len(c.entries) }

// Clear drops every pending entry.
func (c *Collection[T]) Clear() { c.entries = nil }

// pending returns the entries in save order: inserts, then updates, then
// deletes, each group in recorded order.
func (c *Collection[T]) pending() []ChangeEntry[T] {
	out := make([]ChangeEntry[T], 0, len(c.entries))
	for _, s := range []Status{Inserted, Updated, Deleted} {
		for _, e := range c.entries {
			if e.Status == s {
				out = append(out, e)
			}
		}
	}
	return out
}

// QueryOption refines a Query.
type QueryOption func(*command.Query)

// OrderBy sorts ascending by the field selected by sel.
func OrderBy(sel expr.Expr) QueryOption {
	return func(q *command.Query) { q.OrderBy, q.Descending = sel, false }
}

// OrderByDesc sorts descending by the field selected by sel.
func OrderByDesc(sel expr.Expr) QueryOption {
	return func(q *command.Query) { q.OrderBy, q.Descending = sel, true }
}

// Query selects the stored entities matching where. A nil where selects
// every row.
func (c *Collection[T]) Query(ctx context.Context, where expr.Expr, opts ...QueryOption) ([]*T, error) {
	q := command.Query{Where: where}
	for _, o := range opts {
		o(&q)
	}
	cmd, err := command.Select[T](c.builder, q)
	if err != nil {
		return nil, err
	}
	return database.Query[T](ctx, c.exec, cmd)
}

// QueryCommand runs an arbitrary command and returns the raw records.
func (c *Collection[T]) QueryCommand(ctx context.Context, cmd database.Command) ([]record.Record, error) {
	return c.exec.ExecuteQuery(ctx, cmd)
}
