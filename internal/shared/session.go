package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session carries the authenticated caller through a request. It is resolved
// from the bearer token by middleware and injected into the request context;
// nothing below the middleware reads global state.
type Session struct {
	Token    string `json:"-"`
	UserID   int64  `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	BranchID int64  `json:"branch_id"`
}

// TokenStore issues and resolves bearer tokens backed by Redis.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a token for the session and persists it with the store TTL.
func (ts *TokenStore) Issue(ctx context.Context, sess Session) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	if err := ts.client.Set(ctx, ts.redisKey(token), payload, ts.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve loads the session for a token, refreshing its TTL on hit.
func (ts *TokenStore) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	payload, err := ts.client.Get(ctx, ts.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	sess.Token = token
	_ = ts.client.Expire(ctx, ts.redisKey(token), ts.ttl).Err()
	return &sess, nil
}

// Revoke deletes a token, ending the session.
func (ts *TokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return ts.client.Del(ctx, ts.redisKey(token)).Err()
}

// TTL exposes the configured token lifetime.
func (ts *TokenStore) TTL() time.Duration {
	return ts.ttl
}

func (ts *TokenStore) redisKey(token string) string {
	return "token:" + token
}
