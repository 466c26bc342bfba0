package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidSession is returned for unknown, revoked or expired tokens.
var ErrInvalidSession = errors.New("invalid or expired session")

// Context is the per-request authentication context derived from a
// validated session token.
type Context struct {
	Token     string    `json:"-"`
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore issues and validates server-side session tokens.
type SessionStore interface {
	Issue(ctx context.Context, subject string) (*Context, error)
	Validate(ctx context.Context, token string) (*Context, error)
	Revoke(ctx context.Context, token string) error
}

type redisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (s *redisSessionStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *redisSessionStore) Issue(ctx context.Context, subject string) (*Context, error) {
	now := time.Now()
	sess := &Context{
		Token:     uuid.NewString(),
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, s.key(sess.Token), raw, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

func (s *redisSessionStore) Validate(ctx context.Context, token string) (*Context, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Context
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, ErrInvalidSession
	}
	sess.Token = token
	return &sess, nil
}

func (s *redisSessionStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Context
	ttl      time.Duration
	nextGC   time.Time
	now      func() time.Time
}

func newMemorySessionStore(ttl time.Duration) *memorySessionStore {
	return &memorySessionStore{
		sessions: make(map[string]Context),
		ttl:      ttl,
		nextGC:   time.Now().Add(ttl),
		now:      time.Now,
	}
}

func (s *memorySessionStore) Issue(_ context.Context, subject string) (*Context, error) {
	now := s.now()
	sess := Context{
		Token:     uuid.NewString(),
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.Token] = sess
	if now.After(s.nextGC) {
		for token, existing := range s.sessions {
			if !existing.ExpiresAt.After(now) {
				delete(s.sessions, token)
			}
		}
		s.nextGC = now.Add(s.ttl)
	}
	return &sess, nil
}

func (s *memorySessionStore) Validate(_ context.Context, token string) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok || !sess.ExpiresAt.After(s.now()) {
		delete(s.sessions, token)
		return nil, ErrInvalidSession
	}
	return &sess, nil
}

func (s *memorySessionStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// NewSessionStore builds a Redis-backed store and falls back to in-memory
// sessions when Redis is not reachable.
func NewSessionStore(client *redis.Client, ttl time.Duration) (SessionStore, error) {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if client == nil {
		return newMemorySessionStore(ttl), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemorySessionStore(ttl), err
	}

	return &redisSessionStore{
		client: client,
		prefix: "session",
		ttl:    ttl,
	}, nil
}
