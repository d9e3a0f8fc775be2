package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// SessionRedisKeyPrefix is the Redis key prefix for session tokens.
	SessionRedisKeyPrefix = "storefront:session:"

	// SessionTTL is the default session lifetime.
	SessionTTL = 24 * time.Hour

	// lookupTimeout bounds the Redis round trip shared by concurrent resolves.
	lookupTimeout = 3 * time.Second
)

// RedisSessionResolver looks session tokens up in Redis.
type RedisSessionResolver struct {
	redis *redis.Client
	log   logrus.FieldLogger
	sfg   singleflight.Group
}

// NewRedisSessionResolver creates a resolver on an existing client.
func NewRedisSessionResolver(client *redis.Client, log logrus.FieldLogger) *RedisSessionResolver {
	return &RedisSessionResolver{
		redis: client,
		log:   log,
	}
}

// CreateSession stores a new session for userID and returns its token.
func (r *RedisSessionResolver) CreateSession(ctx context.Context, userID string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	data := model.SessionData{UserID: userID, CreatedAt: time.Now()}
	data.ExpiresAt = data.CreatedAt.Add(SessionTTL)

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := r.redis.Set(ctx, SessionRedisKeyPrefix+token, jsonData, SessionTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	r.log.WithFields(logrus.Fields{"user_id": userID, "expires_at": data.ExpiresAt}).Debug("Session created")
	return token, nil
}

// Resolve returns the user id of a live session. Concurrent lookups of the
// same token share one Redis round trip.
func (r *RedisSessionResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	// The lookup is shared, so it must not die with whichever caller started it.
	v, err, _ := r.sfg.Do(token, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return r.lookup(lctx, token)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *RedisSessionResolver) lookup(ctx context.Context, token string) (string, error) {
	key := SessionRedisKeyPrefix + token

	jsonData, err := r.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: session not found or expired", ErrInvalidToken)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}

	var data model.SessionData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return "", fmt.Errorf("%w: unreadable session", ErrInvalidToken)
	}

	if !data.ExpiresAt.IsZero() && time.Now().After(data.ExpiresAt) {
		r.redis.Del(ctx, key)
		return "", fmt.Errorf("%w: session expired", ErrInvalidToken)
	}
	if data.UserID == "" {
		return "", fmt.Errorf("%w: session has no user", ErrInvalidToken)
	}
	return data.UserID, nil
}

// Revoke deletes a session.
func (r *RedisSessionResolver) Revoke(ctx context.Context, token string) error {
	return r.redis.Del(ctx, SessionRedisKeyPrefix+token).Err()
}

var _ Resolver = (*RedisSessionResolver)(nil)
