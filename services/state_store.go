package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// StateStore is a key-value blob store for per-user client state.
//
// Update runs fn against the current value and stores its result atomically
// with respect to every other Set or Update on the same key, across processes
// for shared backends. fn may run more than once.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn func(current []byte, ok bool) ([]byte, error)) error
}

// maxStateUpdateAttempts bounds optimistic retries of RedisStateStore.Update.
const maxStateUpdateAttempts = 10

// GetState decodes the value at key into T. A missing key yields T's zero value and false.
func GetState[T any](ctx context.Context, store StateStore, key string) (T, bool, error) {
	var out T
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return out, ok, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode state %q: %w", key, err)
	}
	return out, true, nil
}

func SetState[T any](ctx context.Context, store StateStore, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %q: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}

// CoerceNumber turns a decoded JSON value into a finite float64.
// Strings are parsed; NaN, infinities and anything unparseable become 0.
func CoerceNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

type RedisStateStore struct {
	Client *redis.Client
	Prefix string
}

func NewRedisStateStore(client *redis.Client, prefix string) *RedisStateStore {
	return &RedisStateStore{Client: client, Prefix: prefix}
}

func (s *RedisStateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.Client.Get(ctx, s.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *RedisStateStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Client.Set(ctx, s.Prefix+key, value, 0).Err()
}

// Update is a WATCH/MULTI read-modify-write; a concurrent writer aborts the
// transaction and fn is retried against the new value.
func (s *RedisStateStore) Update(ctx context.Context, key string, fn func(current []byte, ok bool) ([]byte, error)) error {
	k := s.Prefix + key
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		ok := true
		if errors.Is(err, redis.Nil) {
			ok = false
		} else if err != nil {
			return err
		}
		next, err := fn(current, ok)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxStateUpdateAttempts; attempt++ {
		err := s.Client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %q", ErrStateContention, key)
}

// MemoryStateStore keeps state in process; used when Redis is not configured.
type MemoryStateStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string][]byte)}
}

func (s *MemoryStateStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

func (s *MemoryStateStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStateStore) Update(_ context.Context, key string, fn func(current []byte, ok bool) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data[key]
	next, err := fn(append([]byte(nil), current...), ok)
	if err != nil {
		return err
	}
	s.data[key] = append([]byte(nil), next...)
	return nil
}
