package orderform

import (
	"sync"

	"github.com/aristath/atelier/internal/querycache"
	"github.com/google/uuid"
)

// Session is the per-user context a controller runs in: the bearer token
// forwarded to the order store and the shared list cache.
type Session struct {
	id    string
	cache *querycache.Cache

	mu    sync.RWMutex
	token string
}

// NewSession creates a session. cache may be nil when nothing is cached.
func NewSession(token string, cache *querycache.Cache) *Session {
	return &Session{
		id:    uuid.NewString(),
		cache: cache,
		token: token,
	}
}

// ID identifies the session in logs and events.
func (s *Session) ID() string {
	return s.id
}

// Token returns the current bearer token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the bearer token.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Cache returns the shared list cache, possibly nil.
func (s *Session) Cache() *querycache.Cache {
	return s.cache
}
