// Package uow tracks pending inserts, updates and deletes for an entity type
// and persists them through a database.Executor.
//
//	u := uow.New[Customer](factory)
//	u.Entities.Insert(&Customer{Name: "Oscar"})
//	n, err := u.SaveChanges(ctx)
package uow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/datastore/internal/command"
	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/logger"
)

// Decision is what a Before hook wants done with an entry.
type Decision int

const (
	Proceed Decision = iota
	Skip
)

// Hook observes every entry SaveChanges persists. Before runs ahead of the
// command and may skip the entry; After runs once the command succeeded,
// or under WithAtomicSave once the whole batch committed.
type Hook[T any] interface {
	Before(ctx context.Context, s Status, e *T) Decision
	After(ctx context.Context, s Status, e *T)
}

// HookFuncs adapts plain functions to Hook. Nil fields are no-ops.
type HookFuncs[T any] struct {
	BeforeFunc func(ctx context.Context, s Status, e *T) Decision
	AfterFunc  func(ctx context.Context, s Status, e *T)
}

func (h HookFuncs[T]) Before(ctx context.Context, s Status, e *T) Decision {
	if h.BeforeFunc == nil {
		return Proceed
	}
	return h.BeforeFunc(ctx, s, e)
}

func (h HookFuncs[T]) After(ctx context.Context, s Status, e *T) {
	if h.AfterFunc != nil {
		h.AfterFunc(ctx, s, e)
	}
}

// UnitOfWork persists the pending changes of its Entities collection.
// It is not safe for concurrent use.
type UnitOfWork[T any] struct {
	Entities *Collection[T]

	exec     *database.Executor
	builder  *command.Builder
	hooks    []Hook[T]
	settings settings
}

// Use registers hooks. Hooks run in registration order; the first Skip
// wins and later Before hooks are not consulted.
func (u *UnitOfWork[T]) Use(hooks ...Hook[T]) *UnitOfWork[T] {
	u.hooks = append(u.hooks, hooks...)
	return u
}

// SaveChanges persists pending inserts, then updates, then deletes, each in
// recorded order, and returns the total number of affected rows.
//
// By default every entry runs in its own transaction, so entries saved
// before a failure stay committed. WithAtomicSave runs the whole batch in
// one transaction instead. On failure the remaining entries are not
// attempted, nothing is cleared and the error has kind ErrKindSaveFailed.
// The pending list is cleared only after every entry succeeded.
func (u *UnitOfWork[T]) SaveChanges(ctx context.Context) (int64, error) {
	pending := u.Entities.pending()
	log := u.settings.log.With().Str("batch", uuid.NewString()).Logger()
	log.DebugWith("saving changes", map[string]any{"pending": len(pending), "atomic": u.settings.atomic})
	start := time.Now()

	var (
		total int64
		err   error
	)
	if u.settings.atomic {
		// After hooks wait for the commit.
		var saved []ChangeEntry[T]
		err = u.exec.WithTransaction(ctx, func(txCtx context.Context, s database.Session) error {
			saved = saved[:0]
			n, err := u.apply(txCtx, s, pending, log, func(e ChangeEntry[T]) { saved = append(saved, e) })
			total = n
			return err
		})
		if err != nil {
			total = 0
		} else {
			for _, e := range saved {
				u.after(ctx, e)
			}
		}
	} else {
		total, err = u.apply(ctx, u.exec, pending, log, func(e ChangeEntry[T]) { u.after(ctx, e) })
	}

	if err != nil {
		log.ErrorWith("save failed", err, map[string]any{"affected": total})
		return total, errs.Wrap(errs.ErrKindSaveFailed, "failed to save the changes in the data store", err)
	}

	u.Entities.Clear()
	log.InfoWith("changes saved", map[string]any{
		"entries":  len(pending),
		"affected": total,
		"elapsed":  time.Since(start).String(),
	})
	return total, nil
}

// apply executes pending through s and calls saved for each entry that
// affected the store.
func (u *UnitOfWork[T]) apply(ctx context.Context, s database.Session, pending []ChangeEntry[T], log *logger.Logger, saved func(ChangeEntry[T])) (int64, error) {
	var total int64
	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return total, errs.Wrap(errs.ErrKindTimeout, "save interrupted", err).WithOp(entry.Status.String())
		}
		if u.before(ctx, entry) == Skip {
			log.DebugWith("entry skipped by hook", map[string]any{"op": entry.Status.String()})
			continue
		}

		cmd, err := u.command(entry)
		if err != nil {
			return total, err
		}
		n, err := s.Execute(ctx, cmd)
		if err != nil {
			return total, err
		}
		total += n
		saved(entry)
	}
	return total, nil
}

func (u *UnitOfWork[T]) after(ctx context.Context, entry ChangeEntry[T]) {
	for _, h := range u.hooks {
		h.After(ctx, entry.Status, entry.Entity)
	}
}

func (u *UnitOfWork[T]) before(ctx context.Context, entry ChangeEntry[T]) Decision {
	for _, h := range u.hooks {
		if h.Before(ctx, entry.Status, entry.Entity) == Skip {
			return Skip
		}
	}
	return Proceed
}

func (u *UnitOfWork[T]) command(entry ChangeEntry[T]) (database.Command, error) {
	if entry.Entity == nil {
		return database.Command{}, errs.Newf(errs.ErrKindInvalidInput, "nil entity recorded for %s", entry.Status).
			WithOp(entry.Status.String())
	}
	switch entry.Status {
	case Inserted:
		return u.builder.Insert(entry.Entity, u.settings.includeChildren)
	case Updated:
		return u.builder.Update(entry.Entity)
	default:
		return u.builder.Delete(entry.Entity)
	}
}
