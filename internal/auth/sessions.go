package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/dooseok913/music-front/internal/shared"
)

// DefaultSessionTTL bounds how long a web login may stay pending.
const DefaultSessionTTL = 10 * time.Minute

type loginSession struct {
	verifier string
	created  time.Time
}

// SessionStore holds PKCE verifiers for in-flight web logins.
//
// Each login gets its own entry, so concurrent logins never overwrite one another.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]loginSession
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store whose entries expire after ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{sessions: make(map[string]loginSession), ttl: ttl, now: time.Now}
}

// Begin generates a PKCE pair and stores its verifier under a new session id.
func (s *SessionStore) Begin() (string, PKCE) {
	pkce := GeneratePKCE()
	id := shared.GenerateID()
	s.Put(id, pkce.Verifier)
	return id, pkce
}

// Put stores verifier under id, replacing any previous entry for id.
func (s *SessionStore) Put(id, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.sessions[id] = loginSession{verifier: verifier, created: s.now()}
}

// Take removes and returns the verifier for id.
//
// The entry is gone after Take whatever the caller does with it.
func (s *SessionStore) Take(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	if !ok {
		return "", shared.ErrSessionNotFound
	}
	if s.now().Sub(sess.created) > s.ttl {
		return "", fmt.Errorf("%w: expired", shared.ErrSessionNotFound)
	}
	return sess.verifier, nil
}

// Len reports how many logins are pending.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) prune() {
	now := s.now()
	for id, sess := range s.sessions {
		if now.Sub(sess.created) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
