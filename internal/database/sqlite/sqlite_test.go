package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
)

func TestBuildDSN(t *testing.T) {
	assert.Equal(t, "app.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		BuildDSN(&database.Config{Database: "app.db"}))
	assert.Equal(t, "file:app.db?mode=ro&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		BuildDSN(&database.Config{DSN: "file:app.db?mode=ro"}))
	assert.Equal(t, "x.db?_pragma=journal_mode(WAL)",
		BuildDSN(&database.Config{DSN: "x.db?_pragma=journal_mode(WAL)", Database: "ignored.db"}))
}

func open(t *testing.T) *Connector {
	t.Helper()
	cfg := &database.Config{Driver: database.DriverSQLite, Database: filepath.Join(t.TempDir(), "test.db")}
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestExecutorRoundTrip(t *testing.T) {
	ctx := context.Background()
	exec := database.NewExecutor(open(t), database.WithIsolation(database.LevelSerializable))

	_, err := exec.Execute(ctx, database.NewCommand(
		`CREATE TABLE Customer (Id INTEGER PRIMARY KEY AUTOINCREMENT, Name TEXT NOT NULL);`))
	require.NoError(t, err)

	n, err := exec.Execute(ctx, database.NewCommand(
		"INSERT INTO Customer (Name) VALUES ('Oscar');\nINSERT INTO Customer (Name) VALUES ('Maria');"))
	require.NoError(t, err)
	assert.Positive(t, n)

	count, err := database.Scalar[int](ctx, exec, database.NewCommand("SELECT COUNT(*) FROM Customer"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	recs, err := exec.ExecuteQuery(ctx, database.NewCommand("SELECT Id, Name FROM Customer ORDER BY Id"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Maria", recs[1].Value("Name"))
}

func TestErrorKinds(t *testing.T) {
	exec := database.NewExecutor(open(t))

	_, err := exec.Execute(context.Background(), database.NewCommand("INSERT INTO Missing VALUES (1);"))
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.True(t, errs.IsDatabase(err))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, errs.ErrKindTransaction, classify(5))     // SQLITE_BUSY
	assert.Equal(t, errs.ErrKindTransaction, classify(5|256)) // SQLITE_BUSY_RECOVERY
	assert.Equal(t, errs.ErrKindPermissionDenied, classify(8))
	assert.Equal(t, errs.ErrKindConnectionFailed, classify(14))
	assert.Equal(t, errs.ErrKindQueryFailed, classify(1))
}
