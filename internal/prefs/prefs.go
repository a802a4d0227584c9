// Package prefs persists small per-user preferences, currently the data
// source selected during onboarding. Login consults it to decide whether a
// returning user lands in query-ready state directly.
package prefs

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidInput indicates a missing user id or data source name.
var ErrInvalidInput = errors.New("prefs: invalid input")

// Store persists per-user preferences.
type Store interface {
	// DataSource returns the selected data source, if any.
	DataSource(ctx context.Context, userID string) (string, bool, error)
	// SetDataSource records the selection.
	SetDataSource(ctx context.Context, userID, source string) error
	// Clear drops all preferences for the user.
	Clear(ctx context.Context, userID string) error
}

const dataSourceKeyPrefix = "prefs:datasource:"

// RedisStore keeps preferences in Redis so they survive restarts and are
// shared across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) DataSource(ctx context.Context, userID string) (string, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", false, ErrInvalidInput
	}
	val, err := s.client.Get(ctx, dataSourceKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) SetDataSource(ctx context.Context, userID, source string) error {
	userID = strings.TrimSpace(userID)
	source = strings.TrimSpace(source)
	if userID == "" || source == "" {
		return ErrInvalidInput
	}
	return s.client.Set(ctx, dataSourceKeyPrefix+userID, source, 0).Err()
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidInput
	}
	return s.client.Del(ctx, dataSourceKeyPrefix+userID).Err()
}

// MemoryStore is the in-process fallback when no Redis address is
// configured.
type MemoryStore struct {
	mu      sync.RWMutex
	sources map[string]string
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sources: make(map[string]string)}
}

func (s *MemoryStore) DataSource(_ context.Context, userID string) (string, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return "", false, ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.sources[userID]
	return val, ok, nil
}

func (s *MemoryStore) SetDataSource(_ context.Context, userID, source string) error {
	userID = strings.TrimSpace(userID)
	source = strings.TrimSpace(source)
	if userID == "" || source == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[userID] = source
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, userID)
	return nil
}
