package accounts

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	logx "doggobot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "users.db"), logx.Nop(), WithCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "Ann", " Ann@Example.com ", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.NotZero(t, u.ID)

	got, err := s.Authenticate(ctx, "ANN@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Ann", got.Name)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "Ann", "ann@example.com", "a")
	require.NoError(t, err)
	_, err = s.Register(ctx, "Other", "ann@example.com", "b")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterMissingFields(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Register(context.Background(), "", "x@y.z", "p")
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestRegisterPasswordTooLong(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Register(ctx, "Ann", "ann@example.com", strings.Repeat("x", MaxPasswordLen+8))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = s.Register(ctx, "Ann", "ann@example.com", strings.Repeat("x", MaxPasswordLen))
	require.NoError(t, err)
}

func TestAuthenticateFailures(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Register(ctx, "Ann", "ann@example.com", "right")
	require.NoError(t, err)

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "ann@example.com", "wrong"},
		{"unknown email", "bob@example.com", "right"},
		{"empty password", "ann@example.com", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Authenticate(ctx, tc.email, tc.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestPasswordIsHashed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Register(ctx, "Ann", "ann@example.com", "plain")
	require.NoError(t, err)

	var hash string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT password_hash FROM users`).Scan(&hash))
	assert.NotEqual(t, "plain", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("plain")))
}
