package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/settlement/internal/identity"
)

func newTestService(t *testing.T) (*Service, identity.Repository, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo)
	user, err := ids.Register(context.Background(), identity.Credentials{Phone: "+237650000100", PIN: "1234"})
	require.NoError(t, err)
	svc := NewService(Settings{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}, repo)
	return svc, repo, user
}

func TestLoginVerifyAndLogout(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	require.NoError(t, err)
	assert.Equal(t, int64(60), pair.ExpiresIn)

	verified, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)

	_, err = svc.Verify(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token must not authenticate requests")

	require.NoError(t, svc.Logout(ctx, user.ID))
	_, err = svc.Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshIssuesAccessToken(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	require.NoError(t, err)

	access, exp, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(60), exp)

	verified, err := svc.Verify(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
}

func TestVerifyRejectsExpiredAndForged(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	svc.now = time.Now

	forged, err := SignHS256(map[string]any{"sub": user.ID, "typ": tokenAccess, "exp": time.Now().Add(time.Hour).Unix()}, []byte("wrong"))
	require.NoError(t, err)
	_, err = svc.Verify(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
