// Package schema derives table, column and reference metadata from entity
// struct types and memoizes it per type.
//
// Schemas are built once from struct tags (see TagName), fully resolved
// (including the foreign-key columns synthesized for parent references) and
// only then published, so a *TableSchema obtained from a Catalog never
// changes afterwards.
//
// Usage:
//
//	type Customer struct {
//	    Id   int    `db:"Id,pk,identity"`
//	    Name string
//	}
//
//	ts, err := schema.For[Customer]()
package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/go-openapi/inflect"
	"golang.org/x/sync/singleflight"

	"github.com/koustreak/datastore/internal/errs"
)

// Naming derives a default table or column name from a Go identifier.
// Explicit tag names and TableName methods are never passed through it.
type Naming func(string) string

var (
	// AsDeclared keeps Go identifiers unchanged (Customer, FirstName).
	AsDeclared Naming = func(s string) string { return s }

	// SnakeCase converts Go identifiers to snake_case (first_name).
	SnakeCase Naming = inflect.Underscore
)

// Option configures a Catalog.
type Option func(*Catalog)

// WithNaming sets the naming strategy for undeclared table and column names.
func WithNaming(n Naming) Option {
	return func(c *Catalog) { c.naming = n }
}

// Catalog memoizes TableSchemas per entity type. It is safe for concurrent use.
type Catalog struct {
	naming Naming
	cache  sync.Map // reflect.Type -> *TableSchema
	group  singleflight.Group
	mu     sync.Mutex // serializes publish
}

// NewCatalog returns an empty Catalog.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{naming: AsDeclared}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Default is the process-wide catalog used by For.
var Default = NewCatalog()

// For returns the schema of T from the Default catalog.
func For[T any]() (*TableSchema, error) {
	return Default.Get(reflect.TypeFor[T]())
}

// Of returns the schema for the dynamic type of v.
func (c *Catalog) Of(v any) (*TableSchema, error) {
	if v == nil {
		return nil, errs.New(errs.ErrKindSchema, "cannot derive a schema from a nil entity")
	}
	return c.Get(reflect.TypeOf(v))
}

// Get returns the schema of t, building it on first use. Pointer types are
// resolved to their element type.
func (c *Catalog) Get(t reflect.Type) (*TableSchema, error) {
	t = Indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errs.Newf(errs.ErrKindSchema, "entity type %v must be a struct", t)
	}
	if ts, ok := c.cache.Load(t); ok {
		return ts.(*TableSchema), nil
	}

	key := t.PkgPath() + "." + t.String()
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.build(t)
	})
	if err != nil {
		return nil, err
	}
	ts := v.(*TableSchema)
	if ts.EntityType != t {
		// Distinct types with the same name (e.g. declared in different
		// functions) share a singleflight key; build this one directly.
		return c.build(t)
	}
	return ts, nil
}

// Schemas returns every published schema ordered by full table name.
func (c *Catalog) Schemas() []*TableSchema {
	var out []*TableSchema
	c.cache.Range(func(_, v any) bool {
		out = append(out, v.(*TableSchema))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Table.FullName() < out[j].Table.FullName()
	})
	return out
}

// Lookup finds a published schema by table name or full table name.
func (c *Catalog) Lookup(table string) (*TableSchema, bool) {
	for _, ts := range c.Schemas() {
		if ts.Table.Name == table || ts.Table.FullName() == table {
			return ts, true
		}
	}
	return nil, false
}

// build resolves t and every type reachable through its references, then
// publishes them together.
func (c *Catalog) build(t reflect.Type) (*TableSchema, error) {
	if ts, ok := c.cache.Load(t); ok {
		return ts.(*TableSchema), nil
	}
	b := &builder{catalog: c, pending: make(map[reflect.Type]*TableSchema)}
	if _, err := b.schema(t); err != nil {
		return nil, err
	}
	return c.publish(t, b.pending), nil
}

// publish stores the pending schemas and returns the published schema of t.
// Types another builder published first keep that schema, and references
// from the newly stored schemas are pointed at it.
func (c *Catalog) publish(t reflect.Type, pending map[reflect.Type]*TableSchema) *TableSchema {
	c.mu.Lock()
	defer c.mu.Unlock()

	canonical := make(map[reflect.Type]*TableSchema, len(pending))
	for typ, s := range pending {
		if v, ok := c.cache.Load(typ); ok {
			canonical[typ] = v.(*TableSchema)
		} else {
			canonical[typ] = s
		}
	}
	for typ, s := range pending {
		if canonical[typ] != s {
			continue
		}
		for i := range s.References {
			ref := &s.References[i]
			if p, ok := canonical[ref.Referenced.EntityType]; ok {
				ref.Referenced = p
			}
		}
	}
	for typ, s := range pending {
		if canonical[typ] == s {
			c.cache.Store(typ, s)
		}
	}
	return canonical[t]
}

type builder struct {
	catalog *Catalog
	pending map[reflect.Type]*TableSchema
}

func (b *builder) schema(t reflect.Type) (*TableSchema, error) {
	if ts, ok := b.catalog.cache.Load(t); ok {
		return ts.(*TableSchema), nil
	}
	if ts, ok := b.pending[t]; ok {
		return ts, nil
	}

	ts := &TableSchema{
		Table:      tableNameOf(t, b.catalog.naming),
		EntityType: t,
	}
	b.pending[t] = ts

	if err := b.fields(ts, t, nil); err != nil {
		return nil, err
	}

	if !ts.HasPrimaryKey() {
		for i := range ts.Columns {
			if c := ts.Columns[i]; c.PropertyName == "Id" || c.ColumnName == "Id" {
				ts.Columns[i].IsPrimaryKey = true
				break
			}
		}
	}

	for i := range ts.References {
		ref := &ts.References[i]
		if ref.ForeignKey == "" {
			if ref.IsChild {
				ref.ForeignKey = ts.Table.Name + "Id"
			} else {
				ref.ForeignKey = ref.Referenced.Table.Name + "Id"
			}
		}
	}

	ts.index()
	for _, ref := range ts.Parents() {
		if _, ok := ts.Column(ref.ForeignKey); ok {
			continue
		}
		ts.Columns = append(ts.Columns, ColumnSchema{ColumnName: ref.ForeignKey})
		ts.index()
	}
	return ts, nil
}

// fields walks the exported fields of t, flattening embedded structs.
func (b *builder) fields(ts *TableSchema, t reflect.Type, parent []int) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		tag, hasTag := f.Tag.Lookup(TagName)
		ft := parseTag(tag)
		if ft.skip {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && (!hasTag || ft.name == "") && !ft.reference {
			if err := b.fields(ts, f.Type, index); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		if ft.reference {
			target := referencedType(f.Type)
			if target.Kind() != reflect.Struct {
				return errs.Newf(errs.ErrKindSchema,
					"reference field %s.%s must hold a struct or a collection of structs, got %s",
					t.Name(), f.Name, f.Type)
			}
			refSchema, err := b.schema(target)
			if err != nil {
				return fmt.Errorf("reference %s.%s: %w", t.Name(), f.Name, err)
			}
			ts.References = append(ts.References, TableReference{
				IsChild:    isCollection(f.Type),
				Referenced: refSchema,
				ForeignKey: ft.foreignKey,
				FieldName:  f.Name,
				Index:      index,
				Type:       f.Type,
			})
			continue
		}

		name := ft.name
		if name == "" {
			name = b.catalog.naming(f.Name)
		}
		ts.Columns = append(ts.Columns, ColumnSchema{
			ColumnName:   name,
			PropertyName: f.Name,
			IsPrimaryKey: ft.primaryKey,
			IsIdentity:   ft.identity,
			Index:        index,
			Type:         f.Type,
		})
	}
	return nil
}
