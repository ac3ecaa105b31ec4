package database

import "context"

// ColumnInfo describes a single column in a live table.
type ColumnInfo struct {
	Name         string  `json:"name"`
	DataType     string  `json:"data_type"`
	IsNullable   bool    `json:"nullable"`
	IsPrimaryKey bool    `json:"primary_key"`
	DefaultValue *string `json:"default,omitempty"`
}

// TableInfo describes a live table and its columns.
type TableInfo struct {
	Schema  string       `json:"schema"`
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnNames returns the column names in ordinal order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ForeignKey describes a relationship between two tables.
type ForeignKey struct {
	Name       string `json:"name"`
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// SchemaInfo is the full introspected database schema.
type SchemaInfo struct {
	Tables      []TableInfo  `json:"tables"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Introspector reads the structure of a database (tables, columns, foreign keys).
// Each driver implements the DB-specific queries; InspectSchema is shared.
// An empty schema means the driver's default (public for Postgres, the
// connected database for MySQL).
type Introspector interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
	TableExists(ctx context.Context, schema, table string) (bool, error)
	InspectTable(ctx context.Context, schema, table string) (*TableInfo, error)
	ListForeignKeys(ctx context.Context, schema string) ([]ForeignKey, error)
}

// InspectSchema builds the full SchemaInfo by orchestrating the Introspector.
func InspectSchema(ctx context.Context, i Introspector, schema string) (*SchemaInfo, error) {
	tables, err := i.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{}
	for _, table := range tables {
		ti, err := i.InspectTable(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		info.Tables = append(info.Tables, *ti)
	}

	fks, err := i.ListForeignKeys(ctx, schema)
	if err != nil {
		return nil, err
	}
	info.ForeignKeys = fks
	return info, nil
}
