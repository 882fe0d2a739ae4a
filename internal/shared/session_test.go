package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testTokenStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, time.Hour), mr
}

func TestTokenStoreIssueAndResolve(t *testing.T) {
	store, _ := testTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, Session{UserID: 42, Name: "Priya", Role: "admin", BranchID: 7})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sess, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(42), sess.UserID)
	require.Equal(t, "admin", sess.Role)
	require.Equal(t, int64(7), sess.BranchID)
	require.Equal(t, token, sess.Token)
}

func TestTokenStoreResolveUnknownToken(t *testing.T) {
	store, _ := testTokenStore(t)

	_, err := store.Resolve(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = store.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenStoreRevoke(t *testing.T) {
	store, _ := testTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, Session{UserID: 1, Role: "teacher", BranchID: 1})
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))

	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenStoreExpiry(t *testing.T) {
	store, mr := testTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, Session{UserID: 1, Role: "admin", BranchID: 1})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenStoreResolveRefreshesTTL(t *testing.T) {
	store, mr := testTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, Session{UserID: 1, Role: "admin", BranchID: 1})
	require.NoError(t, err)

	mr.FastForward(45 * time.Minute)
	_, err = store.Resolve(ctx, token)
	require.NoError(t, err)

	// The refreshed TTL keeps the token alive past the original hour.
	mr.FastForward(45 * time.Minute)
	_, err = store.Resolve(ctx, token)
	require.NoError(t, err)
}
