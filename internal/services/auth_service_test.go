package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"expensely/internal/auth"
	"expensely/internal/core"
	"expensely/internal/storage"
)

const testBcryptCost = 4 // minimum cost keeps the suite fast

func newTestStorage(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	tokens := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	return NewAuthService(newTestStorage(t), tokens, testBcryptCost)
}

func TestRegister(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "secret1", user.PasswordHash, "password must be stored hashed")
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"short username", "al", "alice@example.com", "secret1"},
		{"bad email", "alice", "not-an-email", "secret1"},
		{"short password", "alice", "alice@example.com", "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.email, tt.password)
			require.Error(t, err)
			assert.Equal(t, core.KindValidation, core.KindOf(err))
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, core.KindConflict, core.KindOf(err))

	_, err = svc.Register(ctx, "other", "alice@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, core.KindConflict, core.KindOf(err))
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	token, user, err := svc.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", user.Username)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, _, unknownErr := svc.Login(ctx, "nobody@example.com", "secret1")
	require.Error(t, unknownErr)
	assert.Equal(t, core.KindAuth, core.KindOf(unknownErr))

	_, _, wrongPassErr := svc.Login(ctx, "alice@example.com", "wrongpass")
	require.Error(t, wrongPassErr)
	assert.Equal(t, core.KindAuth, core.KindOf(wrongPassErr))

	assert.Equal(t, unknownErr.Error(), wrongPassErr.Error(),
		"unknown email and wrong password must produce the same error")
}

func TestLoginDummyHashIsRealBcrypt(t *testing.T) {
	// a malformed hash would make the unknown-email comparison return
	// early instead of doing a full verification
	cost, err := bcrypt.Cost([]byte(dummyPasswordHash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, bcrypt.DefaultCost)
}

func TestLoginMissingCredentials(t *testing.T) {
	svc := newTestAuthService(t)

	_, _, err := svc.Login(context.Background(), "", "secret1")
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))

	_, _, err = svc.Login(context.Background(), "alice@example.com", "")
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}
