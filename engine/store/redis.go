package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/infra/cache"
	"github.com/cloaked-ai/cloak/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists placeholder mappings in Redis. Multi-key mutations go
// through MULTI/EXEC pipelines so a thread's forward map, reverse index and
// placeholder set never disagree.
type RedisStore struct {
	client        cache.RedisInterface
	ttl           time.Duration
	refreshOnRead bool
}

// RedisStoreOption customises a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithTTL expires a thread's mapping state after the given duration of
// inactivity. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRefreshOnRead re-arms the TTL whenever a thread's mappings are read,
// so active threads never expire mid-conversation.
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
		fmt.Errorf("entity store %s: %w", op, err),
		core.ErrCodeStoreUnavailable,
		map[string]any{"op": op},
	)
}

// Put implements Store. The write is rejected with INTEGRITY_ERROR when it
// would bind an original to a second placeholder or a placeholder to a
// second original.
func (s *RedisStore) Put(ctx context.Context, thread core.ThreadID, original, label, placeholder string) error {
	if original == "" || placeholder == "" {
		return core.NewError(
			fmt.Errorf("original and placeholder must be non-empty"),
			core.ErrCodeInvalidInput,
			nil,
		)
	}
	if err := s.checkBijection(ctx, thread, original, placeholder); err != nil {
		return err
	}
	payload, err := json.Marshal(Mapping{Text: original, Label: label})
	if err != nil {
		return storeErr("put", err)
	}
	repKey := replacementKey(thread, placeholder)
	setKey := placeholdersKey(thread)
	idxKey := textIndexKey(thread)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, repKey, payload, s.ttl)
		pipe.SAdd(ctx, setKey, placeholder)
		pipe.HSet(ctx, idxKey, original, placeholder)
		pipe.SAdd(ctx, threadsKey, thread.String())
		if s.ttl > 0 {
			pipe.Expire(ctx, setKey, s.ttl)
			pipe.Expire(ctx, idxKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return storeErr("put", err)
	}
	return nil
}

func (s *RedisStore) checkBijection(ctx context.Context, thread core.ThreadID, original, placeholder string) error {
	existing, err := s.client.HGet(ctx, textIndexKey(thread), original).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("put", err)
	}
	if err == nil && existing != placeholder {
		return core.NewError(
			fmt.Errorf("original already mapped to a different placeholder"),
			core.ErrCodeIntegrity,
			map[string]any{"existing": existing, "placeholder": placeholder},
		)
	}
	current, err := s.client.Get(ctx, replacementKey(thread, placeholder)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("put", err)
	}
	if err == nil {
		var mapping Mapping
		if jsonErr := json.Unmarshal([]byte(current), &mapping); jsonErr != nil {
			return storeErr("put", jsonErr)
		}
		if mapping.Text != original {
			return core.NewError(
				fmt.Errorf("placeholder already bound to a different original"),
				core.ErrCodeIntegrity,
				map[string]any{"placeholder": placeholder},
			)
		}
	}
	return nil
}

// GetPlaceholder implements Store.
func (s *RedisStore) GetPlaceholder(ctx context.Context, thread core.ThreadID, original string) (string, bool, error) {
	placeholder, err := s.client.HGet(ctx, textIndexKey(thread), original).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get_placeholder", err)
	}
	s.touch(ctx, thread, replacementKey(thread, placeholder))
	return placeholder, true, nil
}

// GetOriginal implements Store.
func (s *RedisStore) GetOriginal(ctx context.Context, thread core.ThreadID, placeholder string) (Mapping, bool, error) {
	raw, err := s.client.Get(ctx, replacementKey(thread, placeholder)).Result()
	if errors.Is(err, redis.Nil) {
		return Mapping{}, false, nil
	}
	if err != nil {
		return Mapping{}, false, storeErr("get_original", err)
	}
	var mapping Mapping
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return Mapping{}, false, core.NewError(
			fmt.Errorf("corrupt mapping for placeholder: %w", err),
			core.ErrCodeIntegrity,
			map[string]any{"placeholder": placeholder},
		)
	}
	s.touch(ctx, thread, replacementKey(thread, placeholder))
	return mapping, true, nil
}

// IncLabelCounter implements Store.
func (s *RedisStore) IncLabelCounter(ctx context.Context, thread core.ThreadID, label string) (int64, error) {
	key := labelCounterKey(thread, label)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, storeErr("inc_label_counter", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return 0, storeErr("inc_label_counter", err)
		}
	}
	return count, nil
}

// ListPlaceholders implements Store.
func (s *RedisStore) ListPlaceholders(ctx context.Context, thread core.ThreadID) ([]string, error) {
	placeholders, err := s.client.SMembers(ctx, placeholdersKey(thread)).Result()
	if err != nil {
		return nil, storeErr("list_placeholders", err)
	}
	s.touch(ctx, thread)
	return placeholders, nil
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, thread core.ThreadID, placeholder string) (bool, error) {
	n, err := s.client.Exists(ctx, replacementKey(thread, placeholder)).Result()
	if err != nil {
		return false, storeErr("exists", err)
	}
	return n > 0, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, thread core.ThreadID, placeholder string) error {
	mapping, found, err := s.GetOriginal(ctx, thread, placeholder)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, replacementKey(thread, placeholder))
		pipe.SRem(ctx, placeholdersKey(thread), placeholder)
		pipe.HDel(ctx, textIndexKey(thread), mapping.Text)
		return nil
	})
	if err != nil {
		return storeErr("delete", err)
	}
	return nil
}

// Clear implements Store. Label counters are derived from the surviving
// mappings so they are removed alongside them. Counter keys live under the
// normalized label (that is what IncLabelCounter callers pass), while
// mappings keep the raw detector label, so the lookup normalizes.
func (s *RedisStore) Clear(ctx context.Context, thread core.ThreadID) error {
	snapshot, err := s.Snapshot(ctx, thread)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(snapshot)*2+2)
	labels := make(map[string]struct{})
	for placeholder, mapping := range snapshot {
		keys = append(keys, replacementKey(thread, placeholder))
		labels[core.NormalizeLabel(mapping.Label)] = struct{}{}
	}
	for label := range labels {
		keys = append(keys, labelCounterKey(thread, label))
	}
	keys = append(keys, placeholdersKey(thread), textIndexKey(thread))
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, threadsKey, thread.String())
		return nil
	})
	if err != nil {
		return storeErr("clear", err)
	}
	logger.FromContext(ctx).Debug("cleared entity mappings", "thread", thread.String(), "entries", len(snapshot))
	return nil
}

// Snapshot implements Store.
func (s *RedisStore) Snapshot(ctx context.Context, thread core.ThreadID) (map[string]Mapping, error) {
	placeholders, err := s.client.SMembers(ctx, placeholdersKey(thread)).Result()
	if err != nil {
		return nil, storeErr("snapshot", err)
	}
	snapshot := make(map[string]Mapping, len(placeholders))
	if len(placeholders) == 0 {
		return snapshot, nil
	}
	keys := make([]string, len(placeholders))
	for i, placeholder := range placeholders {
		keys[i] = replacementKey(thread, placeholder)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeErr("snapshot", err)
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Mapping expired between SMEMBERS and MGET; skip it.
			continue
		}
		var mapping Mapping
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return nil, core.NewError(
				fmt.Errorf("corrupt mapping for placeholder: %w", err),
				core.ErrCodeIntegrity,
				map[string]any{"placeholder": placeholders[i]},
			)
		}
		snapshot[placeholders[i]] = mapping
	}
	return snapshot, nil
}

// ListThreads returns the ids of every thread with mapping state.
func (s *RedisStore) ListThreads(ctx context.Context) ([]string, error) {
	threads, err := s.client.SMembers(ctx, threadsKey).Result()
	if err != nil {
		return nil, storeErr("list_threads", err)
	}
	return threads, nil
}

// CollectStats counts threads and mapping entries across the whole store.
func (s *RedisStore) CollectStats(ctx context.Context) (Stats, error) {
	threads, err := s.ListThreads(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Threads: len(threads)}
	for _, id := range threads {
		thread := core.ThreadFromKey(id)
		n, err := s.client.SCard(ctx, placeholdersKey(thread)).Result()
		if err != nil {
			return Stats{}, storeErr("stats", err)
		}
		stats.TotalEntries += int(n)
	}
	return stats, nil
}

// touch re-arms the TTL of the thread's shared keys plus any extras.
func (s *RedisStore) touch(ctx context.Context, thread core.ThreadID, extra ...string) {
	if !s.refreshOnRead || s.ttl <= 0 {
		return
	}
	keys := append([]string{placeholdersKey(thread), textIndexKey(thread)}, extra...)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Warn("failed to refresh mapping TTL", "thread", thread.String(), "error", err)
	}
}
