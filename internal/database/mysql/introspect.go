package mysql

import (
	"context"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
)

// Compile-time check that Connector satisfies database.Introspector.
var _ database.Introspector = (*Connector)(nil)

// An empty schema argument selects the connected database.
const schemaExpr = "COALESCE(NULLIF(?, ''), DATABASE())"

// ListTables returns all user-defined table names in the given database
func (c *Connector) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ` + schemaExpr + `
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := c.DB().QueryContext(ctx, q, schema)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

// TableExists checks whether a specific table exists
func (c *Connector) TableExists(ctx context.Context, schema, table string) (bool, error) {
	const q = `
		SELECT COUNT(*) > 0
		FROM information_schema.tables
		WHERE table_schema = ` + schemaExpr + ` AND table_name = ?`

	var exists bool
	if err := c.DB().QueryRowContext(ctx, q, schema, table).Scan(&exists); err != nil {
		return false, mapError(err, "failed to check table existence")
	}
	return exists, nil
}

// InspectTable returns column details for a single table
func (c *Connector) InspectTable(ctx context.Context, schema, table string) (*database.TableInfo, error) {
	const q = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES'  AS is_nullable,
			c.column_default,
			(c.column_key = 'PRI') AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = ` + schemaExpr + ` AND c.table_name = ?
		ORDER BY c.ordinal_position`

	rows, err := c.DB().QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	info := &database.TableInfo{Schema: schema, Name: table}
	for rows.Next() {
		var col database.ColumnInfo
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.DefaultValue, &col.IsPrimaryKey); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	if len(info.Columns) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s not found or has no columns", table)
	}
	return info, nil
}

// ListForeignKeys returns all FK relationships in the database
func (c *Connector) ListForeignKeys(ctx context.Context, schema string) ([]database.ForeignKey, error) {
	const q = `
		SELECT
			rc.constraint_name,
			kcu.table_name,
			kcu.column_name,
			kcu.referenced_table_name,
			kcu.referenced_column_name
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON rc.constraint_name = kcu.constraint_name
			AND rc.constraint_schema = kcu.table_schema
		WHERE rc.constraint_schema = ` + schemaExpr + `
		ORDER BY rc.constraint_name`

	rows, err := c.DB().QueryContext(ctx, q, schema)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	var fks []database.ForeignKey
	for rows.Next() {
		var fk database.ForeignKey
		if err := rows.Scan(&fk.Name, &fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating foreign keys")
	}
	return fks, nil
}
