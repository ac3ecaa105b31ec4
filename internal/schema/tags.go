package schema

import (
	"reflect"
	"strings"
)

// TagName is the struct tag read while building a schema.
//
//	Id       int       `db:"Id,pk,identity"`   // primary key, generated by the database
//	Salary   float64   `db:"SalaryColumn"`     // renamed column
//	Scratch  string    `db:"-"`                // not persisted
//	Customer *Customer `db:",ref"`             // parent reference, FK column CustomerId
//	Lines    []Line    `db:",ref=OrderKey"`    // child reference with an explicit FK column
const TagName = "db"

// Tabler is implemented by entities that declare their table name.
type Tabler interface {
	TableName() string
}

// SchemaNamer is implemented by entities that live in a named database schema.
type SchemaNamer interface {
	TableSchema() string
}

var (
	tablerType      = reflect.TypeFor[Tabler]()
	schemaNamerType = reflect.TypeFor[SchemaNamer]()
)

type fieldTag struct {
	skip       bool
	name       string
	primaryKey bool
	identity   bool
	reference  bool
	foreignKey string
}

func parseTag(tag string) fieldTag {
	if tag == "-" {
		return fieldTag{skip: true}
	}
	parts := strings.Split(tag, ",")
	ft := fieldTag{name: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		key, val, _ := strings.Cut(p, "=")
		switch strings.ToLower(key) {
		case "pk", "primarykey":
			ft.primaryKey = true
		case "identity":
			ft.identity = true
		case "ref":
			ft.reference = true
			ft.foreignKey = val
		}
	}
	return ft
}

// tableNameOf reads the Tabler / SchemaNamer methods when the entity type
// (or a pointer to it) implements them.
func tableNameOf(t reflect.Type, naming Naming) TableName {
	tn := TableName{Name: naming(t.Name())}
	if v, ok := implementer(t, tablerType); ok {
		tn.Name = v.Interface().(Tabler).TableName()
	}
	if v, ok := implementer(t, schemaNamerType); ok {
		tn.Schema = v.Interface().(SchemaNamer).TableSchema()
	}
	return tn
}

func implementer(t, iface reflect.Type) (reflect.Value, bool) {
	switch {
	case t.Implements(iface):
		return reflect.Zero(t), true
	case reflect.PointerTo(t).Implements(iface):
		return reflect.New(t), true
	}
	return reflect.Value{}, false
}

// isCollection reports whether a reference field holds many children.
func isCollection(t reflect.Type) bool {
	return t.Kind() == reflect.Slice || t.Kind() == reflect.Array
}

// referencedType returns the entity type behind a reference field:
// Customer, *Customer, []Line and []*Line all resolve to the struct type.
func referencedType(t reflect.Type) reflect.Type {
	if isCollection(t) {
		t = t.Elem()
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// Indirect strips pointer levels from t.
func Indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
