package database_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/database/sqldb"
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/logger"
	"github.com/koustreak/datastore/internal/record"
)

func newMock(t *testing.T) (*database.Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewExecutor(sqldb.New(db)), mock
}

type customer struct {
	Id   int `db:",pk,identity"`
	Name string
}

func TestExecute_CommitsAndReturnsRowsAffected(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM Customer WHERE Id = 4;").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := exec.Execute(context.Background(), database.NewCommand("DELETE FROM Customer WHERE Id = 4;"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_FailureRollsBackAndCarriesCommand(t *testing.T) {
	exec, mock := newMock(t)
	boom := errors.New("syntax error")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE x;").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := exec.Execute(context.Background(), database.NewCommand("UPDATE x;"))
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.True(t, errs.IsDatabase(err))
	assert.ErrorIs(t, err, boom)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "UPDATE x;", e.Command)
	assert.Equal(t, "execute", e.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_BeginAndCommitFailures(t *testing.T) {
	t.Run("begin", func(t *testing.T) {
		exec, mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("no tx"))

		_, err := exec.Execute(context.Background(), database.NewCommand("SELECT 1"))
		assert.True(t, errs.IsTransaction(err))
	})
	t.Run("commit", func(t *testing.T) {
		exec, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM t;").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		_, err := exec.Execute(context.Background(), database.NewCommand("DELETE FROM t;"))
		assert.True(t, errs.IsTransaction(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("rollback", func(t *testing.T) {
		exec, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM t;").WillReturnError(errors.New("locked"))
		mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

		_, err := exec.Execute(context.Background(), database.NewCommand("DELETE FROM t;"))
		assert.True(t, errs.IsTransaction(err))
	})
}

func TestExecuteScalar(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT(*) FROM Customer").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))
	mock.ExpectCommit()

	n, err := database.Scalar[int](context.Background(), exec, database.NewCommand("SELECT COUNT(*) FROM Customer"))
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteScalar_NoRows(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT Name FROM Customer").WillReturnRows(sqlmock.NewRows([]string{"Name"}))
	mock.ExpectCommit()

	v, err := exec.ExecuteScalar(context.Background(), database.NewCommand("SELECT Name FROM Customer"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExecuteQuery_RecordsAndEntities(t *testing.T) {
	exec, mock := newMock(t)
	query := "SELECT Id, Name FROM customer"
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(query).WillReturnRows(
			sqlmock.NewRows([]string{"Id", "Name"}).
				AddRow(int64(1), "Oscar").
				AddRow(int64(2), "Maria"))
		mock.ExpectCommit()
	}

	recs, err := exec.ExecuteQuery(context.Background(), database.NewCommand(query))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"Id", "Name"}, recs[0].Keys())
	assert.Equal(t, "Maria", recs[1].Value("Name"))

	customers, err := database.Query[customer](context.Background(), exec, database.NewCommand(query))
	require.NoError(t, err)
	assert.Equal(t, []*customer{{Id: 1, Name: "Oscar"}, {Id: 2, Name: "Maria"}}, customers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteBatch_OneTransaction(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO a VALUES (1);").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO a VALUES (2);").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	_, err := exec.ExecuteBatch(context.Background(),
		database.NewCommand("INSERT INTO a VALUES (1);"),
		database.NewCommand("INSERT INTO a VALUES (2);"),
		database.NewCommand("INSERT INTO a VALUES (3);"),
	)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_SharesTransaction(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE a SET x = 1;").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT x FROM a").WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(int64(1)))
	mock.ExpectCommit()

	err := exec.WithTransaction(context.Background(), func(ctx context.Context, s database.Session) error {
		if _, err := s.Execute(ctx, database.NewCommand("UPDATE a SET x = 1;")); err != nil {
			return err
		}
		recs, err := s.ExecuteQuery(ctx, database.NewCommand("SELECT x FROM a"))
		if err != nil {
			return err
		}
		assert.Len(t, recs, 1)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectFailure(t *testing.T) {
	refused := errors.New("connection refused")
	exec := database.NewExecutor(database.ConnectorFunc(func(context.Context) (database.Conn, error) {
		return nil, refused
	}))

	_, err := exec.Execute(context.Background(), database.NewCommand("SELECT 1"))
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Contains(t, err.Error(), "unable to open the connection")
	assert.ErrorIs(t, err, refused)
}

// blockingConn waits for the context on every command, like a server that
// never answers.
type blockingConn struct {
	closed     bool
	rolledBack bool
	level      database.IsolationLevel
}

func (c *blockingConn) BeginTx(_ context.Context, level database.IsolationLevel) (database.Tx, error) {
	c.level = level
	return c, nil
}
func (c *blockingConn) Close() error { c.closed = true; return nil }

func (c *blockingConn) Exec(ctx context.Context, _ string, _ ...any) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}
func (c *blockingConn) Query(ctx context.Context, _ string, _ ...any) (database.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (c *blockingConn) Commit(context.Context) error   { return nil }
func (c *blockingConn) Rollback(context.Context) error { c.rolledBack = true; return nil }

// commitFailConn accepts every command but cannot commit or roll back.
type commitFailConn struct{ blockingConn }

func (c *commitFailConn) BeginTx(context.Context, database.IsolationLevel) (database.Tx, error) {
	return c, nil
}
func (c *commitFailConn) Exec(context.Context, string, ...any) (int64, error) { return 1, nil }
func (c *commitFailConn) Commit(context.Context) error {
	return errors.New("serialization failure")
}
func (c *commitFailConn) Rollback(context.Context) error {
	c.rolledBack = true
	return errors.New("connection reset")
}

func TestWithTransaction_LogsRollbackAfterFailedCommit(t *testing.T) {
	var buf bytes.Buffer
	conn := &commitFailConn{}
	exec := database.NewExecutor(
		database.ConnectorFunc(func(context.Context) (database.Conn, error) { return conn, nil }),
		database.WithLogger(logger.New(&logger.Config{Level: "error", Format: "json", Output: &buf})),
	)

	_, err := exec.Execute(context.Background(), database.NewCommand("DELETE FROM t;"))
	require.Error(t, err)
	assert.True(t, errs.IsTransaction(err))
	assert.Contains(t, err.Error(), "serialization failure")
	assert.True(t, conn.rolledBack)
	assert.Contains(t, buf.String(), "rollback after failed commit failed")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestCommandTimeout(t *testing.T) {
	conn := &blockingConn{}
	exec := database.NewExecutor(
		database.ConnectorFunc(func(context.Context) (database.Conn, error) { return conn, nil }),
		database.WithCommandTimeout(time.Hour),
		database.WithIsolation(database.LevelSerializable),
	)

	cmd := database.NewCommand("SELECT pg_sleep(10)").WithTimeout(10 * time.Millisecond)
	_, err := exec.ExecuteQuery(context.Background(), cmd)

	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.True(t, conn.rolledBack)
	assert.True(t, conn.closed, "connection is released on failure")
	assert.Equal(t, database.LevelSerializable, conn.level)
}

func TestCancelledContext(t *testing.T) {
	conn := &blockingConn{}
	exec := database.NewExecutor(database.ConnectorFunc(func(context.Context) (database.Conn, error) { return conn, nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exec.Execute(ctx, database.NewCommand("DELETE FROM t;"))

	assert.True(t, errs.IsTimeout(err))
	assert.True(t, conn.rolledBack)
	assert.True(t, conn.closed)
}

func TestDefaults(t *testing.T) {
	exec := database.NewExecutor(nil)
	assert.Equal(t, database.LevelReadCommitted, exec.Options().Isolation)
	assert.Zero(t, exec.Options().CommandTimeout)
}

func TestMaterialize(t *testing.T) {
	recs := []record.Record{record.FromColumns([]string{"Id", "Name"}, []any{int64(9), "x"})}
	out, err := database.Materialize[customer](database.NewExecutor(nil).Mapper(), recs)
	require.NoError(t, err)
	assert.Equal(t, 9, out[0].Id)

	bad := []record.Record{record.FromColumns([]string{"Id"}, []any{"nine"})}
	_, err = database.Materialize[customer](database.NewExecutor(nil).Mapper(), bad)
	assert.True(t, errs.IsMapping(err))
}
