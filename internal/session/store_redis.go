package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-walkthrough/internal/navigator"
	"github.com/p-n-ai/pai-walkthrough/internal/platform/cache"
)

// RedisStore keeps sessions in Redis/Dragonfly as JSON values that expire
// after ttl of inactivity. An index key maps each user to the active session.
type RedisStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(c *cache.Cache, ttl time.Duration) (*RedisStore, error) {
	if c == nil || c.Client == nil {
		return nil, fmt.Errorf("cache client is nil")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	return &RedisStore{cache: c, ttl: ttl}, nil
}

func (s *RedisStore) sessionKey(id string) string {
	return s.cache.Key("session", id)
}

func (s *RedisStore) activeKey(userID string) string {
	return s.cache.Key("active", userID)
}

func (s *RedisStore) CreateSession(sess Session) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if sess.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}

	sess.ID = generateID()
	now := time.Now()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now

	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.cache.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.ID), data, s.ttl)
		pipe.Set(ctx, s.activeKey(sess.UserID), sess.ID, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sess.ID, nil
}

func (s *RedisStore) GetSession(id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	return s.get(ctx, id)
}

func (s *RedisStore) GetActiveSession(userID string) (*Session, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	id, err := s.cache.Client.Get(ctx, s.activeKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Error("failed to read active session", "user_id", userID, "error", err)
		}
		return nil, false
	}
	sess, err := s.get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("failed to read active session", "user_id", userID, "session_id", id, "error", err)
		}
		return nil, false
	}
	if !sess.Active() {
		return nil, false
	}
	return sess, true
}

func (s *RedisStore) SaveState(id string, st navigator.State) error {
	return s.update(id, func(sess *Session) {
		sess.State = cloneState(st)
		sess.UpdatedAt = time.Now()
	})
}

func (s *RedisStore) MarkCompleted(id string) error {
	return s.update(id, func(sess *Session) {
		if sess.CompletedAt == nil {
			now := time.Now()
			sess.CompletedAt = &now
		}
	})
}

func (s *RedisStore) EndSession(id string) error {
	return s.update(id, func(sess *Session) {
		now := time.Now()
		sess.EndedAt = &now
	})
}

func (s *RedisStore) get(ctx context.Context, id string) (*Session, error) {
	data, err := s.cache.Client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// update rewrites a session and refreshes its expiry. Ended sessions are
// removed from the user's active index.
func (s *RedisStore) update(id string, fn func(*Session)) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	sess, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	fn(sess)

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	activeKey := s.activeKey(sess.UserID)
	activeID, err := s.cache.Client.Get(ctx, activeKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get active session: %w", err)
	}

	_, err = s.cache.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(id), data, s.ttl)
		if activeID != id {
			return nil
		}
		if sess.Active() {
			pipe.Expire(ctx, activeKey, s.ttl)
		} else {
			pipe.Del(ctx, activeKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
