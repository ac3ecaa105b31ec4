package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/datastore/internal/database"
)

// Compile-time check that Connector satisfies database.Introspector.
var _ database.Introspector = (*Connector)(nil)

func schemaOrDefault(schema string) string {
	if schema == "" {
		return defaultSchemaName
	}
	return schema
}

// ListTables returns all user-defined table names in schema.
func (c *Connector) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	return c.fetchStringList(ctx, q, "failed to list tables", schemaOrDefault(schema))
}

// TableExists reports whether a table with the given name exists in schema.
func (c *Connector) TableExists(ctx context.Context, schema, table string) (bool, error) {
	const q = `
		SELECT 1
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type   = 'BASE TABLE'
		  AND table_name   = $2`

	var exists int
	err := c.pool.QueryRow(ctx, q, schemaOrDefault(schema), table).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, mapError(err, "failed to check table existence")
	}
	return true, nil
}

// InspectTable fetches the columns of one table, flagging primary-key columns.
func (c *Connector) InspectTable(ctx context.Context, schema, table string) (*database.TableInfo, error) {
	schema = schemaOrDefault(schema)

	const q = `
		SELECT c.column_name,
		       c.data_type,
		       c.is_nullable = 'YES',
		       c.column_default,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema    = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema    = c.table_schema
		             AND tc.table_name      = c.table_name
		             AND kcu.column_name    = c.column_name
		       )
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		  AND c.table_name   = $2
		ORDER BY c.ordinal_position`

	rows, err := c.pool.Query(ctx, q, schema, table)
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
	return info, nil
}

// ListForeignKeys returns every foreign-key column pair in schema.
func (c *Connector) ListForeignKeys(ctx context.Context, schema string) ([]database.ForeignKey, error) {
	const q = `
		SELECT tc.constraint_name,
		       tc.table_name,
		       kcu.column_name,
		       ccu.table_name  AS ref_table,
		       ccu.column_name AS ref_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema    = $1
		ORDER BY tc.table_name, tc.constraint_name`

	rows, err := c.pool.Query(ctx, q, schemaOrDefault(schema))
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

// fetchStringList is a helper for queries that return a single text column.
func (c *Connector) fetchStringList(ctx context.Context, q, errMsg string, args ...any) ([]string, error) {
	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, errMsg)
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, mapError(err, errMsg)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, errMsg)
	}
	return list, nil
}
