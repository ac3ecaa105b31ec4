// Package command builds INSERT, UPDATE, DELETE and SELECT statements for
// entities. Values are rendered as literals by sqlformat; identifiers are
// quoted by the Dialect.
//
// Statement shapes:
//
//	INSERT INTO <table> (<cols>) VALUES (<vals>);
//	UPDATE <table> SET <col = val, ...> WHERE <pk = val AND ...>;
//	DELETE FROM <table> WHERE <pk = val AND ...>;
//	SELECT <cols> FROM <table>[ WHERE <predicate>][ ORDER BY <col> ASC|DESC]
package command

import (
	"reflect"
	"strings"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/expr"
	"github.com/koustreak/datastore/internal/mapper"
	"github.com/koustreak/datastore/internal/record"
	"github.com/koustreak/datastore/internal/schema"
	"github.com/koustreak/datastore/internal/sqlformat"
)

// Query is the input of a SELECT.
type Query struct {
	Where      expr.Expr // nil selects every row
	OrderBy    expr.Expr // nil leaves the order to the database
	Descending bool
}

// Builder assembles commands for any entity type.
type Builder struct {
	dialect Dialect
	mapper  *mapper.Mapper
}

// New returns a Builder for d. A nil mapper means mapper.Default.
func New(d Dialect, m *mapper.Mapper) *Builder {
	if m == nil {
		m = mapper.Default
	}
	return &Builder{dialect: d, mapper: m}
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// Printer returns a predicate printer for ts quoting with the builder's
// dialect.
func (b *Builder) Printer(ts *schema.TableSchema) *expr.Printer {
	return expr.NewPrinter(ts, b.dialect.Quote)
}

// Insert builds an INSERT over the non-identity columns of entity. With
// includeChildren, every entity in a child collection gets its own INSERT
// after the parent row, carrying the parent's first primary-key value in
// the foreign-key column.
func (b *Builder) Insert(entity any, includeChildren bool) (database.Command, error) {
	ts, err := b.mapper.Catalog().Of(entity)
	if err != nil {
		return database.Command{}, err
	}
	rec, err := b.mapper.ToRecord(entity)
	if err != nil {
		return database.Command{}, err
	}

	var sb strings.Builder
	if err := b.insert(&sb, ts, rec, includeChildren); err != nil {
		return database.Command{}, err
	}
	return database.NewCommand(strings.TrimSuffix(sb.String(), "\n")), nil
}

func (b *Builder) insert(sb *strings.Builder, ts *schema.TableSchema, rec record.Record, includeChildren bool) error {
	cols := ts.Filter(func(c schema.ColumnSchema) bool { return !c.IsIdentity })

	names := make([]string, 0, len(cols)+1)
	values := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		lit, err := literal(rec.Value(c.ColumnName), c.ColumnName)
		if err != nil {
			return err
		}
		names = append(names, b.dialect.Quote(c.ColumnName))
		values = append(values, lit)
	}
	// Foreign keys set by a parent insert that the child schema does not map.
	for _, k := range rec.Keys() {
		if _, mapped := ts.Column(k); mapped || isChildField(ts, k) {
			continue
		}
		lit, err := literal(rec.Value(k), k)
		if err != nil {
			return err
		}
		names = append(names, b.dialect.Quote(k))
		values = append(values, lit)
	}

	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.dialect.Table(ts.Table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(values, ", "))
	sb.WriteString(");\n")

	if !includeChildren {
		return nil
	}
	var parentKey any
	if pks := ts.PrimaryKeys(); len(pks) > 0 {
		parentKey = rec.Value(pks[0].ColumnName)
	}
	for _, ref := range ts.Children() {
		for _, child := range rec.Children(ref.FieldName) {
			child.Set(ref.ForeignKey, parentKey)
			if err := b.insert(sb, ref.Referenced, child, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update builds an UPDATE setting every non-key, non-identity column and
// keyed on all primary-key columns.
func (b *Builder) Update(entity any) (database.Command, error) {
	ts, rec, err := b.resolve(entity)
	if err != nil {
		return database.Command{}, err
	}
	where, err := b.keyWhere(ts, rec, "update")
	if err != nil {
		return database.Command{}, err
	}

	cols := ts.Filter(func(c schema.ColumnSchema) bool { return !c.IsPrimaryKey && !c.IsIdentity })
	sets := make([]string, len(cols))
	for i, c := range cols {
		lit, err := literal(rec.Value(c.ColumnName), c.ColumnName)
		if err != nil {
			return database.Command{}, err
		}
		sets[i] = b.dialect.Quote(c.ColumnName) + " = " + lit
	}
	if len(sets) == 0 {
		return database.Command{}, errs.Newf(errs.ErrKindSchema,
			"%s has no updatable columns", ts.Table.FullName()).WithOp("update")
	}

	text := "UPDATE " + b.dialect.Table(ts.Table) +
		" SET " + strings.Join(sets, ", ") +
		" WHERE " + where + ";"
	return database.NewCommand(text), nil
}

// Delete builds a DELETE keyed on all primary-key columns.
func (b *Builder) Delete(entity any) (database.Command, error) {
	ts, rec, err := b.resolve(entity)
	if err != nil {
		return database.Command{}, err
	}
	where, err := b.keyWhere(ts, rec, "delete")
	if err != nil {
		return database.Command{}, err
	}
	return database.NewCommand("DELETE FROM " + b.dialect.Table(ts.Table) + " WHERE " + where + ";"), nil
}

// Select builds a SELECT over every column of t.
func (b *Builder) Select(t reflect.Type, q Query) (database.Command, error) {
	ts, err := b.mapper.Catalog().Get(t)
	if err != nil {
		return database.Command{}, err
	}
	return b.SelectFrom(ts, q)
}

// SelectFrom builds a SELECT over every column of ts.
func (b *Builder) SelectFrom(ts *schema.TableSchema, q Query) (database.Command, error) {
	cols := make([]string, len(ts.Columns))
	for i, c := range ts.Columns {
		cols[i] = b.dialect.Quote(c.ColumnName)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.Table(ts.Table))

	p := b.Printer(ts)
	if q.Where != nil {
		where, err := p.Where(q.Where)
		if err != nil {
			return database.Command{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if q.OrderBy != nil {
		order, err := p.OrderBy(q.OrderBy, q.Descending)
		if err != nil {
			return database.Command{}, err
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	return database.NewCommand(sb.String()), nil
}

// SelectAll builds an unfiltered SELECT over every column of t.
func (b *Builder) SelectAll(t reflect.Type) (database.Command, error) {
	return b.Select(t, Query{})
}

// Select builds a SELECT for entity type T.
func Select[T any](b *Builder, q Query) (database.Command, error) {
	return b.Select(reflect.TypeFor[T](), q)
}

func (b *Builder) resolve(entity any) (*schema.TableSchema, record.Record, error) {
	ts, err := b.mapper.Catalog().Of(entity)
	if err != nil {
		return nil, record.Record{}, err
	}
	rec, err := b.mapper.ToRecord(entity)
	if err != nil {
		return nil, record.Record{}, err
	}
	return ts, rec, nil
}

// keyWhere renders the primary-key conjunction. A table without a primary
// key has no safe target and fails with errs.ErrKindSchema.
func (b *Builder) keyWhere(ts *schema.TableSchema, rec record.Record, op string) (string, error) {
	pks := ts.PrimaryKeys()
	if len(pks) == 0 {
		return "", errs.Newf(errs.ErrKindSchema,
			"at least one primary key column is required on %s", ts.Table.FullName()).WithOp(op)
	}
	parts := make([]string, len(pks))
	for i, c := range pks {
		v := rec.Value(c.ColumnName)
		if sqlformat.IsNull(v) {
			parts[i] = b.dialect.Quote(c.ColumnName) + " IS NULL"
			continue
		}
		lit, err := literal(v, c.ColumnName)
		if err != nil {
			return "", err
		}
		parts[i] = b.dialect.Quote(c.ColumnName) + " = " + lit
	}
	return strings.Join(parts, " AND "), nil
}

func isChildField(ts *schema.TableSchema, name string) bool {
	for _, ref := range ts.Children() {
		if ref.FieldName == name {
			return true
		}
	}
	return false
}

func literal(v any, column string) (string, error) {
	s, err := sqlformat.Literal(v)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "cannot render value of column "+column, err)
	}
	return s, nil
}
