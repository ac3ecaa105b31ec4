package schema

import (
	"encoding/json"
	"reflect"
)

// TableName is the (optionally schema-qualified) name of a table.
type TableName struct {
	Name   string
	Schema string // empty when the table lives in the default schema
}

// FullName returns "schema.name", or just the name when Schema is empty.
func (t TableName) FullName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnSchema describes one persisted column of an entity.
type ColumnSchema struct {
	ColumnName   string
	PropertyName string // Go field name; empty for synthesized foreign-key columns
	IsPrimaryKey bool
	IsIdentity   bool

	// Index is the field index path used with reflect.Value.FieldByIndex.
	// Nil for synthesized foreign-key columns.
	Index []int
	Type  reflect.Type
}

// Synthesized reports whether the column was added for a parent reference
// and has no backing field on the entity.
func (c ColumnSchema) Synthesized() bool {
	return c.Index == nil
}

// TableReference links an entity field to another table.
//
// A parent reference means this table holds the foreign key (Order.Customer).
// A child reference means the referenced table holds a foreign key back to
// this table (Customer.Orders).
type TableReference struct {
	IsChild    bool
	Referenced *TableSchema
	ForeignKey string // foreign-key column name
	FieldName  string // Go field holding the reference

	Index []int
	Type  reflect.Type
}

// TableSchema is the derived table metadata for one entity type. Schemas
// returned by a Catalog are fully built and must be treated as read-only.
type TableSchema struct {
	Table      TableName
	EntityType reflect.Type
	Columns    []ColumnSchema
	References []TableReference

	byColumn   map[string]int
	byProperty map[string]int
}

// Column returns the column with the given column name.
func (s *TableSchema) Column(name string) (ColumnSchema, bool) {
	i, ok := s.byColumn[name]
	if !ok {
		return ColumnSchema{}, false
	}
	return s.Columns[i], true
}

// Property returns the column backed by the Go field with the given name.
func (s *TableSchema) Property(name string) (ColumnSchema, bool) {
	i, ok := s.byProperty[name]
	if !ok {
		return ColumnSchema{}, false
	}
	return s.Columns[i], true
}

// Lookup resolves a field by Go field name first, then by column name.
func (s *TableSchema) Lookup(name string) (ColumnSchema, bool) {
	if c, ok := s.Property(name); ok {
		return c, true
	}
	return s.Column(name)
}

// ColumnName maps a Go field name to its column name. Names that are not
// mapped fields are returned unchanged.
func (s *TableSchema) ColumnName(property string) string {
	if c, ok := s.Property(property); ok {
		return c.ColumnName
	}
	return property
}

// PrimaryKeys returns the primary-key columns in declaration order.
func (s *TableSchema) PrimaryKeys() []ColumnSchema {
	return s.Filter(func(c ColumnSchema) bool { return c.IsPrimaryKey })
}

// HasPrimaryKey reports whether at least one column is a primary key.
func (s *TableSchema) HasPrimaryKey() bool {
	for _, c := range s.Columns {
		if c.IsPrimaryKey {
			return true
		}
	}
	return false
}

// Filter returns the columns matching keep, in declaration order.
func (s *TableSchema) Filter(keep func(ColumnSchema) bool) []ColumnSchema {
	out := make([]ColumnSchema, 0, len(s.Columns))
	for _, c := range s.Columns {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// ColumnNames returns the names of all columns.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.ColumnName
	}
	return names
}

// Children returns the child references.
func (s *TableSchema) Children() []TableReference {
	return s.references(true)
}

// Parents returns the parent references.
func (s *TableSchema) Parents() []TableReference {
	return s.references(false)
}

func (s *TableSchema) references(child bool) []TableReference {
	var out []TableReference
	for _, r := range s.References {
		if r.IsChild == child {
			out = append(out, r)
		}
	}
	return out
}

func (s *TableSchema) index() {
	s.byColumn = make(map[string]int, len(s.Columns))
	s.byProperty = make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		s.byColumn[c.ColumnName] = i
		if c.PropertyName != "" {
			s.byProperty[c.PropertyName] = i
		}
	}
}

type columnJSON struct {
	Column     string `json:"column"`
	Property   string `json:"property,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Identity   bool   `json:"identity,omitempty"`
}

type referenceJSON struct {
	Child      bool   `json:"child"`
	Table      string `json:"table"`
	ForeignKey string `json:"foreign_key"`
	Field      string `json:"field"`
}

type tableJSON struct {
	Table      string          `json:"table"`
	Schema     string          `json:"schema,omitempty"`
	Entity     string          `json:"entity"`
	Columns    []columnJSON    `json:"columns"`
	References []referenceJSON `json:"references,omitempty"`
}

// MarshalJSON renders the schema for diagnostics. Referenced tables are
// rendered by name only, so cyclic references encode fine.
func (s *TableSchema) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Table:   s.Table.Name,
		Schema:  s.Table.Schema,
		Entity:  s.EntityType.String(),
		Columns: make([]columnJSON, len(s.Columns)),
	}
	for i, c := range s.Columns {
		out.Columns[i] = columnJSON{c.ColumnName, c.PropertyName, c.IsPrimaryKey, c.IsIdentity}
	}
	for _, r := range s.References {
		out.References = append(out.References, referenceJSON{
			Child:      r.IsChild,
			Table:      r.Referenced.Table.FullName(),
			ForeignKey: r.ForeignKey,
			Field:      r.FieldName,
		})
	}
	return json.Marshal(out)
}
