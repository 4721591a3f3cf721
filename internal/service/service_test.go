package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"secondchance/internal/auth"
	"secondchance/internal/repository"
	"secondchance/internal/repository/sqlite"
	"secondchance/internal/storage"
)

const testSecret = "test-secret"

type fixture struct {
	db     *sql.DB
	users  repository.UserRepository
	items  repository.ItemRepository
	fs     afero.Fs
	tokens *auth.TokenIssuer
	hasher *auth.Hasher
	log    *logrus.Logger
	hook   *logtest.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	require.NoError(t, users.Init(ctx))
	items := sqlite.NewItemRepository(db)
	require.NoError(t, items.Init(ctx))

	tokens, err := auth.NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	log, hook := logtest.NewNullLogger()

	return &fixture{
		db:     db,
		users:  users,
		items:  items,
		fs:     afero.NewMemMapFs(),
		tokens: tokens,
		hasher: auth.NewHasher(bcrypt.MinCost),
		log:    log,
		hook:   hook,
	}
}

func (f *fixture) authService() AuthService {
	return NewAuthService(f.users, f.hasher, f.tokens, f.log)
}

func (f *fixture) itemService() ItemService {
	return NewItemService(f.items, storage.NewLocalServiceFs(f.fs, "/images"), f.log)
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	typed, ok := AsError(err)
	require.True(t, ok, "expected service error, got %v", err)
	require.Equal(t, kind, typed.Kind, "error: %v", err)
	return typed
}
