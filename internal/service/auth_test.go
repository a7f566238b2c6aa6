package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/userauth/internal/events"
	"github.com/Skotchmaster/userauth/internal/tokens"
)

func TestAuthService_Register_SuccessAndConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "pw1", user.PasswordHash)

	for _, pw := range []string{"pw1", "pw2"} {
		_, err = env.svc.Register(ctx, "alice", pw)
		assert.ErrorIs(t, err, ErrConflict)
	}

	assert.Equal(t, []string{events.TypeUserRegistered}, env.pub.types())
}

func TestAuthService_Register_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: "", password: "secret"},
		{name: "blank username", username: "   ", password: "secret"},
		{name: "empty password", username: "user", password: ""},
		{name: "long username", username: strings.Repeat("ж", maxUsernameLen+1), password: "secret"},
		{name: "password over bcrypt limit", username: "user", password: strings.Repeat("p", maxPasswordBytes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Register(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAuthService_Register_LimitsAtBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 80 runes, 160 bytes
	username := strings.Repeat("ж", maxUsernameLen)
	password := strings.Repeat("p", maxPasswordBytes)

	_, err := env.svc.Register(ctx, username, password)
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, username, password)
	assert.NoError(t, err)
}

func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	res, err := env.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	access, err := env.tokens.Validate(ctx, res.AccessToken, tokens.KindAccess)
	require.NoError(t, err)
	assert.True(t, access.Fresh)

	refresh, err := env.tokens.Validate(ctx, res.RefreshToken, tokens.KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, access.Subject, refresh.Subject)
	assert.NotEqual(t, access.ID, refresh.ID)

	_, err = env.svc.Login(ctx, "alice", "pw2")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.svc.Login(ctx, "mallory", "pw1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_Refresh_SingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	login, err := env.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	claims, err := env.tokens.Validate(ctx, login.RefreshToken, tokens.KindRefresh)
	require.NoError(t, err)

	res, err := env.svc.Refresh(ctx, claims)
	require.NoError(t, err)

	access, err := env.tokens.Validate(ctx, res.AccessToken, tokens.KindAccess)
	require.NoError(t, err)
	assert.False(t, access.Fresh)
	assert.Equal(t, claims.Subject, access.Subject)

	_, err = env.tokens.Validate(ctx, login.RefreshToken, tokens.KindRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// a caller that validated before the first use still loses
	_, err = env.svc.Refresh(ctx, claims)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Refresh_ConcurrentUseOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	refresh, _, err := env.tokens.IssueRefreshToken(3)
	require.NoError(t, err)
	claims, err := env.tokens.Validate(ctx, refresh, tokens.KindRefresh)
	require.NoError(t, err)

	const callers = 5
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Refresh(ctx, claims)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, 1, ok)
}

func TestAuthService_Logout_RevokesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	login, err := env.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	access, err := env.tokens.Validate(ctx, login.AccessToken, tokens.KindAccess)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, access, ""))

	_, err = env.tokens.Validate(ctx, login.AccessToken, tokens.KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// refresh token was not passed, so it survives
	_, err = env.tokens.Validate(ctx, login.RefreshToken, tokens.KindRefresh)
	assert.NoError(t, err)

	// a racing second logout with the already-validated claims is a no-op
	assert.NoError(t, env.svc.Logout(ctx, access, ""))

	revoked, err := env.repo.IsRevoked(ctx, access.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestAuthService_Logout_WithRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	login, err := env.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	access, err := env.tokens.Validate(ctx, login.AccessToken, tokens.KindAccess)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, access, login.RefreshToken))

	_, err = env.tokens.Validate(ctx, login.RefreshToken, tokens.KindRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Logout_SkipsForeignRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	access, _, err := env.tokens.IssueAccessToken(1, true)
	require.NoError(t, err)
	accessClaims, err := env.tokens.Validate(ctx, access, tokens.KindAccess)
	require.NoError(t, err)
	foreign, _, err := env.tokens.IssueRefreshToken(2)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, accessClaims, foreign))

	_, err = env.tokens.Validate(ctx, access, tokens.KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// another user's session is left alone
	_, err = env.tokens.Validate(ctx, foreign, tokens.KindRefresh)
	assert.NoError(t, err)
}

func TestAuthService_Logout_ConsumedRefreshTokenStillRevokesAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	login, err := env.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	refreshClaims, err := env.tokens.Validate(ctx, login.RefreshToken, tokens.KindRefresh)
	require.NoError(t, err)
	_, err = env.svc.Refresh(ctx, refreshClaims)
	require.NoError(t, err)

	access, err := env.tokens.Validate(ctx, login.AccessToken, tokens.KindAccess)
	require.NoError(t, err)

	for _, raw := range []string{login.RefreshToken, "not-a-jwt"} {
		require.NoError(t, env.svc.Logout(ctx, access, raw))
	}

	_, err = env.tokens.Validate(ctx, login.AccessToken, tokens.KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_GetAndDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	got, err := env.svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	require.NoError(t, env.svc.DeleteUser(ctx, user.ID))

	_, err = env.svc.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteUser(ctx, user.ID), ErrNotFound)

	assert.Contains(t, env.pub.types(), events.TypeUserDeleted)
}
