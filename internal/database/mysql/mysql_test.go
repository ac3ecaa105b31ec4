package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
)

func TestBuildDSN(t *testing.T) {
	dsn, err := BuildDSN(&database.Config{Host: "db", User: "app", Password: "secret", Database: "shop"})
	require.NoError(t, err)

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:3306", mc.Addr)
	assert.Equal(t, "app", mc.User)
	assert.Equal(t, "shop", mc.DBName)
	assert.True(t, mc.ParseTime)
	assert.True(t, mc.MultiStatements)
	assert.Equal(t, "CONCAT(@@sql_mode, ',NO_BACKSLASH_ESCAPES')", mc.Params["sql_mode"])
}

func TestBuildDSN_DisablesBackslashEscapes(t *testing.T) {
	dsn, err := BuildDSN(&database.Config{DSN: "root:pw@tcp(db:3306)/erp?sql_mode=%27TRADITIONAL%27"})
	require.NoError(t, err)

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "CONCAT('TRADITIONAL', ',NO_BACKSLASH_ESCAPES')", mc.Params["sql_mode"])
}

func TestBuildDSN_KeepsConfiguredDSN(t *testing.T) {
	dsn, err := BuildDSN(&database.Config{DSN: "root:pw@tcp(10.0.0.1:3307)/erp", ConnectTimeout: 2 * time.Second})
	require.NoError(t, err)

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:3307", mc.Addr)
	assert.Equal(t, "erp", mc.DBName)
	assert.Equal(t, 2*time.Second, mc.Timeout)
	assert.True(t, mc.MultiStatements)

	_, err = BuildDSN(&database.Config{DSN: "not a dsn"})
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestPoolSettings(t *testing.T) {
	cfg := poolSettings(&database.Config{MaxConns: 3})
	assert.Equal(t, int32(3), cfg.MaxConns)
	assert.Equal(t, int32(defaultMaxIdleConns), cfg.MinConns)
	assert.Equal(t, defaultConnMaxLifetime, cfg.MaxConnLifetime)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"access denied", &mysql.MySQLError{Number: errAccessDenied, Message: "Access denied"}, errs.ErrKindPermissionDenied},
		{"unknown db", &mysql.MySQLError{Number: errUnknownDatabase}, errs.ErrKindConnectionFailed},
		{"deadlock", &mysql.MySQLError{Number: errDeadlock}, errs.ErrKindTransaction},
		{"lock wait", &mysql.MySQLError{Number: errLockWaitTimeout}, errs.ErrKindTimeout},
		{"syntax", &mysql.MySQLError{Number: 1064}, errs.ErrKindQueryFailed},
		{"invalid conn", mysql.ErrInvalidConn, errs.ErrKindConnectionFailed},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"other", errors.New("boom"), errs.ErrKindQueryFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "exec failed")
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, mapError(nil, "unused"))
}

func TestIntrospection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	c := FromDB(db)
	ctx := context.Background()

	mock.ExpectQuery("FROM information_schema.tables").WithArgs("").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("Customer").AddRow("Order"))
	tables, err := c.ListTables(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer", "Order"}, tables)

	mock.ExpectQuery("FROM information_schema.columns").WithArgs("shop", "Customer").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default", "is_primary_key"}).
			AddRow("Id", "int", false, nil, true).
			AddRow("Name", "varchar", true, "n/a", false))
	info, err := c.InspectTable(ctx, "shop", "Customer")
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Name"}, info.ColumnNames())
	assert.True(t, info.Columns[0].IsPrimaryKey)
	require.NotNil(t, info.Columns[1].DefaultValue)
	assert.Equal(t, "n/a", *info.Columns[1].DefaultValue)

	mock.ExpectQuery("FROM information_schema.columns").WithArgs("shop", "Missing").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default", "is_primary_key"}))
	_, err = c.InspectTable(ctx, "shop", "Missing")
	assert.True(t, errs.IsNotFound(err))

	mock.ExpectQuery("FROM information_schema.tables").WithArgs("shop", "Order").
		WillReturnError(&mysql.MySQLError{Number: errTableAccess, Message: "denied"})
	_, err = c.TableExists(ctx, "shop", "Order")
	assert.True(t, errs.IsPermissionDenied(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}
