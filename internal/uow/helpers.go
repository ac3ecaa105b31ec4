package uow

import (
	"context"
	"time"

	"github.com/koustreak/datastore/internal/entity"
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/expr"
)

// Filter selects the stored row an entity corresponds to.
type Filter[T any] func(e *T) expr.Expr

// Now is the clock used to stamp audit fields.
var Now = func() time.Time { return time.Now().UTC() }

// AddAndSave records e for insertion and saves all pending changes.
func AddAndSave[T any](ctx context.Context, u *UnitOfWork[T], e *T) (int64, error) {
	if e == nil {
		return 0, errs.New(errs.ErrKindInvalidInput, "entity is nil").WithOp("insert")
	}
	u.Entities.Insert(e)
	return u.SaveChanges(ctx)
}

// UpdateAndSave records e for update and saves all pending changes.
func UpdateAndSave[T any](ctx context.Context, u *UnitOfWork[T], e *T) (int64, error) {
	if e == nil {
		return 0, errs.New(errs.ErrKindInvalidInput, "entity is nil").WithOp("update")
	}
	u.Entities.Update(e)
	return u.SaveChanges(ctx)
}

// DeleteAndSave records e for deletion and saves all pending changes.
func DeleteAndSave[T any](ctx context.Context, u *UnitOfWork[T], e *T) (int64, error) {
	if e == nil {
		return 0, errs.New(errs.ErrKindInvalidInput, "entity is nil").WithOp("delete")
	}
	u.Entities.Delete(e)
	return u.SaveChanges(ctx)
}

// AddOrUpdate records an update for every entity whose filter matches one
// stored row and an insertion for every entity matching none. More than
// one match is an error and records nothing further.
func AddOrUpdate[T any](ctx context.Context, u *UnitOfWork[T], filter Filter[T], entities ...*T) error {
	return upsert(ctx, u, filter, entities, func(e, stored *T) error { return nil }, func(e *T) {})
}

// AddOrUpdateAndSave is AddOrUpdate followed by SaveChanges.
func AddOrUpdateAndSave[T any](ctx context.Context, u *UnitOfWork[T], filter Filter[T], entities ...*T) (int64, error) {
	if err := AddOrUpdate(ctx, u, filter, entities...); err != nil {
		return 0, err
	}
	return u.SaveChanges(ctx)
}

// AddOrUpdateAudited upserts audited entities and saves. Updates keep the
// stored key and creation stamp and are stamped as updated by userID;
// inserts are stamped as created by userID and get a generated key when
// the entity assigns its own.
func AddOrUpdateAudited[T any](ctx context.Context, u *UnitOfWork[T], userID string, filter Filter[T], entities ...*T) (int64, error) {
	for _, e := range entities {
		if _, ok := any(e).(entity.Auditable); !ok {
			return 0, errs.Newf(errs.ErrKindInvalidInput, "%T does not embed entity.Audit", e).WithOp("upsert")
		}
	}

	now := Now()
	err := upsert(ctx, u, filter, entities,
		func(e, stored *T) error {
			if err := u.exec.Mapper().CopyKeys(e, stored); err != nil {
				return err
			}
			a := any(e).(entity.Auditable).AuditInfo()
			a.KeepCreated(any(stored).(entity.Auditable).AuditInfo())
			a.Updated(userID, now)
			return nil
		},
		func(e *T) {
			if ids, ok := any(e).(entity.IDAssigner); ok {
				ids.EnsureID()
			}
			any(e).(entity.Auditable).AuditInfo().Created(userID, now)
		})
	if err != nil {
		return 0, err
	}
	return u.SaveChanges(ctx)
}

func upsert[T any](ctx context.Context, u *UnitOfWork[T], filter Filter[T], entities []*T, onUpdate func(e, stored *T) error, onInsert func(e *T)) error {
	if filter == nil {
		return errs.New(errs.ErrKindInvalidInput, "upsert filter is nil").WithOp("upsert")
	}
	for _, e := range entities {
		if e == nil {
			return errs.New(errs.ErrKindInvalidInput, "entity is nil").WithOp("upsert")
		}
		found, err := u.Entities.Query(ctx, filter(e))
		if err != nil {
			return err
		}
		switch len(found) {
		case 0:
			onInsert(e)
			u.Entities.Insert(e)
		case 1:
			if err := onUpdate(e, found[0]); err != nil {
				return err
			}
			u.Entities.Update(e)
		default:
			return errs.Newf(errs.ErrKindInvalidInput, "filter matched %d stored rows, expected at most one", len(found)).
				WithOp("upsert")
		}
	}
	return nil
}
