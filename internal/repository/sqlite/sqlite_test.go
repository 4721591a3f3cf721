package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestUserRepository(t *testing.T) *UserRepository {
	t.Helper()
	repo := &UserRepository{db: openTestDB(t)}
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func newTestItemRepository(t *testing.T) *ItemRepository {
	t.Helper()
	repo := &ItemRepository{db: openTestDB(t)}
	require.NoError(t, repo.Init(context.Background()))
	return repo
}
