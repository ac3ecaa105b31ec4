// Package mapper converts entities to and from record.Record using the
// column metadata of a schema.Catalog.
//
// Usage:
//
//	rec, err := mapper.ToRecord(&customer)
//	c, err := mapper.FromRecord[Customer](rec)
package mapper

import (
	"fmt"
	"reflect"

	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/record"
	"github.com/koustreak/datastore/internal/schema"
)

// Mapper converts entities using the schemas of one catalog.
type Mapper struct {
	catalog *schema.Catalog
}

// New returns a Mapper over c. A nil catalog means schema.Default.
func New(c *schema.Catalog) *Mapper {
	if c == nil {
		c = schema.Default
	}
	return &Mapper{catalog: c}
}

// Default maps with schema.Default.
var Default = New(nil)

// Catalog returns the catalog the mapper reads schemas from.
func (m *Mapper) Catalog() *schema.Catalog {
	return m.catalog
}

// ToRecord converts entity with the Default mapper.
func ToRecord(entity any) (record.Record, error) {
	return Default.ToRecord(entity)
}

// FromRecord materializes a new T from rec with the Default mapper.
func FromRecord[T any](rec record.Record) (*T, error) {
	return FromRecordWith[T](Default, rec)
}

// FromRecordWith materializes a new T from rec with m.
func FromRecordWith[T any](m *Mapper, rec record.Record) (*T, error) {
	out := new(T)
	if err := m.Fill(out, rec); err != nil {
		return nil, err
	}
	return out, nil
}

// ToRecord converts entity (a struct or pointer to struct) into a record of
// its mapped columns in schema order.
//
// A parent reference contributes the referenced entity's first primary-key
// value under the foreign-key column. When the reference is nil, an explicit
// foreign-key field keeps its own value and a synthesized column is nil.
// Child collections are added as []record.Record under the reference field
// name.
func (m *Mapper) ToRecord(entity any) (record.Record, error) {
	v, ts, err := m.resolve(entity)
	if err != nil {
		return record.Record{}, err
	}
	return m.toRecord(v, ts)
}

func (m *Mapper) toRecord(v reflect.Value, ts *schema.TableSchema) (record.Record, error) {
	rec := record.New(len(ts.Columns) + len(ts.Children()))
	for _, c := range ts.Columns {
		if c.Synthesized() {
			rec.Set(c.ColumnName, nil)
			continue
		}
		rec.Set(c.ColumnName, v.FieldByIndex(c.Index).Interface())
	}

	for _, ref := range ts.Parents() {
		pv, ok := deref(v.FieldByIndex(ref.Index))
		if !ok {
			continue
		}
		key, ok := firstKey(pv, ref.Referenced)
		if ok {
			rec.Set(ref.ForeignKey, key)
		}
	}

	for _, ref := range ts.Children() {
		fv := v.FieldByIndex(ref.Index)
		children := make([]record.Record, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			cv, ok := deref(fv.Index(i))
			if !ok {
				continue
			}
			child, err := m.toRecord(cv, ref.Referenced)
			if err != nil {
				return record.Record{}, err
			}
			children = append(children, child)
		}
		rec.Set(ref.FieldName, children)
	}
	return rec, nil
}

// FromRecordType materializes a new value of type t from rec and returns a
// pointer to it.
func (m *Mapper) FromRecordType(rec record.Record, t reflect.Type) (any, error) {
	p := reflect.New(schema.Indirect(t))
	if err := m.Fill(p.Interface(), rec); err != nil {
		return nil, err
	}
	return p.Interface(), nil
}

// Fill assigns the values of rec to the fields of dst, which must be a
// non-nil pointer to a struct. Keys are matched by Go field name first, then
// by column name; unknown keys are skipped and nil values reset the field to
// its zero value.
func (m *Mapper) Fill(dst any, rec record.Record) error {
	pv := reflect.ValueOf(dst)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		return errs.Newf(errs.ErrKindMapping, "destination must be a non-nil pointer, got %T", dst)
	}
	ts, err := m.catalog.Get(pv.Type())
	if err != nil {
		return err
	}
	return m.fill(pv.Elem(), ts, rec)
}

func (m *Mapper) fill(v reflect.Value, ts *schema.TableSchema, rec record.Record) error {
	var err error
	rec.Range(func(name string, val any) bool {
		if c, ok := ts.Lookup(name); ok {
			if c.Synthesized() {
				return true
			}
			err = assign(v.FieldByIndex(c.Index), val, ts, c.PropertyName)
			return err == nil
		}
		for _, ref := range ts.Children() {
			if ref.FieldName == name {
				err = m.fillChildren(v.FieldByIndex(ref.Index), ref, val)
				return err == nil
			}
		}
		return true
	})
	return err
}

func (m *Mapper) fillChildren(field reflect.Value, ref schema.TableReference, val any) error {
	recs, ok := val.([]record.Record)
	if !ok || field.Kind() != reflect.Slice {
		return nil
	}
	elemType := field.Type().Elem()
	out := reflect.MakeSlice(field.Type(), 0, len(recs))
	for _, r := range recs {
		p := reflect.New(schema.Indirect(elemType))
		if err := m.fill(p.Elem(), ref.Referenced, r); err != nil {
			return err
		}
		if elemType.Kind() == reflect.Pointer {
			out = reflect.Append(out, p)
		} else {
			out = reflect.Append(out, p.Elem())
		}
	}
	field.Set(out)
	return nil
}

func assign(field reflect.Value, val any, ts *schema.TableSchema, name string) error {
	cv, err := Convert(val, field.Type())
	if err != nil {
		return errs.Wrap(errs.ErrKindMapping,
			fmt.Sprintf("field %s.%s: cannot assign %T", ts.EntityType.Name(), name, val), err)
	}
	field.Set(cv)
	return nil
}

// KeyValues returns the primary-key columns of entity and their values.
func (m *Mapper) KeyValues(entity any) (record.Record, error) {
	v, ts, err := m.resolve(entity)
	if err != nil {
		return record.Record{}, err
	}
	pks := ts.PrimaryKeys()
	rec := record.New(len(pks))
	for _, c := range pks {
		rec.Set(c.ColumnName, v.FieldByIndex(c.Index).Interface())
	}
	return rec, nil
}

// CopyKeys copies the primary-key fields of src into dst. Both must be of
// the same entity type and dst must be a non-nil pointer.
func (m *Mapper) CopyKeys(dst, src any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return errs.Newf(errs.ErrKindMapping, "destination must be a non-nil pointer, got %T", dst)
	}
	sv, ts, err := m.resolve(src)
	if err != nil {
		return err
	}
	if dv.Elem().Type() != sv.Type() {
		return errs.Newf(errs.ErrKindMapping, "cannot copy keys from %s to %s", sv.Type(), dv.Elem().Type())
	}
	for _, c := range ts.PrimaryKeys() {
		dv.Elem().FieldByIndex(c.Index).Set(sv.FieldByIndex(c.Index))
	}
	return nil
}

// CopyKeys copies primary-key fields with the Default mapper.
func CopyKeys(dst, src any) error {
	return Default.CopyKeys(dst, src)
}

func (m *Mapper) resolve(entity any) (reflect.Value, *schema.TableSchema, error) {
	if entity == nil {
		return reflect.Value{}, nil, errs.New(errs.ErrKindMapping, "entity is nil")
	}
	v, ok := deref(reflect.ValueOf(entity))
	if !ok {
		return reflect.Value{}, nil, errs.Newf(errs.ErrKindMapping, "entity %T is nil", entity)
	}
	ts, err := m.catalog.Get(v.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return v, ts, nil
}

// firstKey returns the value of the first primary-key column of v.
func firstKey(v reflect.Value, ts *schema.TableSchema) (any, bool) {
	pks := ts.PrimaryKeys()
	if len(pks) == 0 || pks[0].Synthesized() {
		return nil, false
	}
	return v.FieldByIndex(pks[0].Index).Interface(), true
}

// FirstKey returns the first primary-key value of entity, or nil when the
// entity type has no primary key.
func (m *Mapper) FirstKey(entity any) (any, error) {
	v, ts, err := m.resolve(entity)
	if err != nil {
		return nil, err
	}
	key, _ := firstKey(v, ts)
	return key, nil
}

func deref(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}
