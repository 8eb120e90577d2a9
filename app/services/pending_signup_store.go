package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/utils"
	"github.com/redis/go-redis/v9"
)

var ErrPendingSignupNotFound = errors.New("pending signup not found or expired")

// PendingSignupStore keeps registrations awaiting code verification under an
// opaque token handed back to the client.
type PendingSignupStore interface {
	// Put stores signup under a fresh token (assigned to signup.Token) and returns it.
	Put(ctx context.Context, signup *models.PendingSignup, ttl time.Duration) (string, error)
	Get(ctx context.Context, token string) (*models.PendingSignup, error)
	// Touch extends the lifetime of an existing entry.
	Touch(ctx context.Context, token string, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

func newSignupToken() string {
	return uuid.NewString()
}

// RedisPendingSignupStore stores signups as JSON strings with a key TTL.
type RedisPendingSignupStore struct {
	rc     *redis.Client
	prefix string
}

func NewRedisPendingSignupStore(rc *redis.Client, prefix string) *RedisPendingSignupStore {
	return &RedisPendingSignupStore{rc: rc, prefix: prefix + "signup:"}
}

func (s *RedisPendingSignupStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisPendingSignupStore) Put(ctx context.Context, signup *models.PendingSignup, ttl time.Duration) (string, error) {
	token := newSignupToken()
	signup.Token = token

	payload, err := json.Marshal(signup)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pending signup: %w", err)
	}
	if err := s.rc.Set(ctx, s.key(token), payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store pending signup: %w", err)
	}
	return token, nil
}

func (s *RedisPendingSignupStore) Get(ctx context.Context, token string) (*models.PendingSignup, error) {
	if token == "" {
		return nil, ErrPendingSignupNotFound
	}
	raw, err := s.rc.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingSignupNotFound
		}
		return nil, fmt.Errorf("failed to load pending signup: %w", err)
	}

	var signup models.PendingSignup
	if err := json.Unmarshal(raw, &signup); err != nil {
		return nil, fmt.Errorf("failed to decode pending signup: %w", err)
	}
	return &signup, nil
}

func (s *RedisPendingSignupStore) Touch(ctx context.Context, token string, ttl time.Duration) error {
	ok, err := s.rc.Expire(ctx, s.key(token), ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to extend pending signup: %w", err)
	}
	if !ok {
		return ErrPendingSignupNotFound
	}
	return nil
}

func (s *RedisPendingSignupStore) Delete(ctx context.Context, token string) error {
	if err := s.rc.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete pending signup: %w", err)
	}
	return nil
}

type memoryEntry struct {
	signup    models.PendingSignup
	expiresAt time.Time
}

// MemoryPendingSignupStore is the single-process fallback used when Redis is disabled.
type MemoryPendingSignupStore struct {
	clock utils.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryPendingSignupStore(clock utils.Clock) *MemoryPendingSignupStore {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &MemoryPendingSignupStore{clock: clock, entries: make(map[string]memoryEntry)}
}

func (s *MemoryPendingSignupStore) Put(ctx context.Context, signup *models.PendingSignup, ttl time.Duration) (string, error) {
	token := newSignupToken()
	signup.Token = token

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.sweepLocked(now)
	s.entries[token] = memoryEntry{signup: *signup, expiresAt: now.Add(ttl)}
	return token, nil
}

// PurgeExpired drops every lapsed signup and reports how many were removed.
func (s *MemoryPendingSignupStore) PurgeExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.clock.Now()), nil
}

func (s *MemoryPendingSignupStore) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryPendingSignupStore) Get(ctx context.Context, token string) (*models.PendingSignup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return nil, ErrPendingSignupNotFound
	}
	if s.clock.Now().After(e.expiresAt) {
		delete(s.entries, token)
		return nil, ErrPendingSignupNotFound
	}
	signup := e.signup
	return &signup, nil
}

func (s *MemoryPendingSignupStore) Touch(ctx context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	now := s.clock.Now()
	if !ok || now.After(e.expiresAt) {
		delete(s.entries, token)
		return ErrPendingSignupNotFound
	}
	e.expiresAt = now.Add(ttl)
	s.entries[token] = e
	return nil
}

func (s *MemoryPendingSignupStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}
