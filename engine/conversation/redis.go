package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/infra/cache"
	"github.com/cloaked-ai/cloak/engine/llm"
	"github.com/cloaked-ai/cloak/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const threadsKey = "convs"

func messagesKey(thread core.ThreadID) string {
	return fmt.Sprintf("conv:%s:messages", thread)
}

// RedisStore keeps each transcript as a Redis list with the most recent
// message at the head, so reads of "the last N messages" are a single
// LRANGE from index zero.
type RedisStore struct {
	client        cache.RedisInterface
	ttl           time.Duration
	refreshOnRead bool
}

// RedisStoreOption customises a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithTTL expires a thread's transcript after the given duration of
// inactivity. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRefreshOnRead re-arms the TTL whenever the transcript is read.
func WithRefreshOnRead(refresh bool) RedisStoreOption {
	return func(s *RedisStore) {
		s.refreshOnRead = refresh
	}
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client cache.RedisInterface, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func storeErr(op string, err error) error {
	return core.NewError(
		fmt.Errorf("conversation store %s: %w", op, err),
		core.ErrCodeStoreUnavailable,
		map[string]any{"op": op},
	)
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, thread core.ThreadID, messages []llm.Message) error {
	if len(messages) == 0 {
		return nil
	}
	// LPUSH in chronological order keeps the newest message at the head.
	encoded := make([]any, 0, len(messages))
	for i := range messages {
		raw, err := json.Marshal(&messages[i])
		if err != nil {
			return storeErr("append", err)
		}
		encoded = append(encoded, raw)
	}
	key := messagesKey(thread)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, encoded...)
		pipe.SAdd(ctx, threadsKey, thread.String())
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return storeErr("append", err)
	}
	logger.FromContext(ctx).Debug("appended conversation messages",
		"thread", thread.String(),
		"count", len(messages),
	)
	return nil
}

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, thread core.ThreadID, limit int) ([]llm.Message, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	key := messagesKey(thread)
	raw, err := s.client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, storeErr("read", err)
	}
	s.touch(ctx, thread)
	// The list is newest-first; reverse while decoding.
	messages := make([]llm.Message, len(raw))
	for i, entry := range raw {
		var msg llm.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, core.NewError(
				fmt.Errorf("corrupt message at position %d: %w", i, err),
				core.ErrCodeIntegrity,
				map[string]any{"thread": thread.String()},
			)
		}
		messages[len(raw)-1-i] = msg
	}
	return messages, nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context, thread core.ThreadID) (int64, error) {
	n, err := s.client.LLen(ctx, messagesKey(thread)).Result()
	if err != nil {
		return 0, storeErr("len", err)
	}
	return n, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, thread core.ThreadID) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, messagesKey(thread))
		pipe.SRem(ctx, threadsKey, thread.String())
		return nil
	})
	if err != nil {
		return storeErr("clear", err)
	}
	return nil
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, thread core.ThreadID) (bool, error) {
	n, err := s.client.Exists(ctx, messagesKey(thread)).Result()
	if err != nil {
		return false, storeErr("exists", err)
	}
	return n > 0, nil
}

// ListThreads implements Store.
func (s *RedisStore) ListThreads(ctx context.Context) ([]string, error) {
	threads, err := s.client.SMembers(ctx, threadsKey).Result()
	if err != nil {
		return nil, storeErr("list_threads", err)
	}
	return threads, nil
}

func (s *RedisStore) touch(ctx context.Context, thread core.ThreadID) {
	if !s.refreshOnRead || s.ttl <= 0 {
		return
	}
	if err := s.client.Expire(ctx, messagesKey(thread), s.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn("failed to refresh transcript TTL", "thread", thread.String(), "error", err)
	}
}
