// Package session holds per-browser-session link state. The PKCE verifier
// and the code-exchange flag live only as long as the browser session; losing
// the session before the callback forces a full restart of the link flow.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long an in-flight link attempt stays valid
const DefaultTTL = 30 * time.Minute

// LinkSession is the state of one in-flight link attempt. CodeExchangeDone
// guards the authorization code against a second exchange on the same
// session, regardless of whether the aggregator would still accept the code.
type LinkSession struct {
	UserID           int
	CodeVerifier     string
	CodeExchangeDone bool
}

type entry struct {
	sess      *LinkSession
	expiresAt time.Time
}

// Store is a server-side session store keyed by an opaque session id carried
// in a cookie. Sessions are never persisted to durable storage.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*entry
	now     func() time.Time
}

// NewStore creates a session store with the given TTL
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Create allocates a new session and returns its id
func (s *Store) Create() (string, *LinkSession) {
	id := uuid.NewString()
	sess := &LinkSession{}

	s.mu.Lock()
	s.entries[id] = &entry{sess: sess, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	return id, sess
}

// Get returns the session for id, or nil if it does not exist or has expired
func (s *Store) Get(id string) *LinkSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return nil
	}
	return e.sess
}

// Sweep removes expired sessions and returns how many were dropped
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
