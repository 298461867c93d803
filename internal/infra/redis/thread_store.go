package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/ports/repository"
	"magical-academy/internal/infra/metrics"
)

var _ repository.ThreadStore = (*ThreadStore)(nil)

const threadCache = "thread_store"

// ThreadStore keeps the last thread id of each tutoring session.
type ThreadStore struct {
	client RedisClient
	ttl    time.Duration
}

type threadEntry struct {
	ThreadID  string    `json:"thread_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewThreadStore(client RedisClient, ttl time.Duration) *ThreadStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ThreadStore{client: client, ttl: ttl}
}

func (s *ThreadStore) key(sessionID string) string {
	return fmt.Sprintf("tutor_thread:%s", sessionID)
}

func (s *ThreadStore) GetThreadID(ctx context.Context, sessionID string) (string, error) {
	data, err := s.client.Get(ctx, s.key(sessionID))
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest(threadCache, "miss")
		return "", domain.ErrNotFound
	}
	if err != nil {
		metrics.IncCacheRequest(threadCache, "error")
		return "", err
	}

	var e threadEntry
	if err := json.Unmarshal([]byte(data), &e); err != nil || e.ThreadID == "" {
		// Unreadable entries are dropped rather than served.
		metrics.IncCacheRequest(threadCache, "miss")
		_ = s.client.Del(ctx, s.key(sessionID))
		return "", domain.ErrNotFound
	}
	metrics.IncCacheRequest(threadCache, "hit")
	return e.ThreadID, nil
}

// SetThreadID stores threadID and restarts the entry's TTL.
func (s *ThreadStore) SetThreadID(ctx context.Context, sessionID, threadID string) error {
	if sessionID == "" || threadID == "" {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(threadEntry{ThreadID: threadID, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sessionID), data, s.ttl)
}

func (s *ThreadStore) ClearThreadID(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID))
}
