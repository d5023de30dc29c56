package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-portal/meridian-portal/internal/identity"
)

// Snapshot is a consistent read of the authentication state.
type Snapshot struct {
	User          *identity.User
	Session       Session
	Authenticated bool
}

// Store is the authoritative record of {user, token, isAuthenticated}. It is
// an explicitly constructed, injectable value rather than an ambient
// singleton: tests build isolated instances. Mutations happen only through
// SetAuthenticated (login), ApplyRefresh and Clear (logout); every mutation
// is atomic with respect to readers.
type Store struct {
	mu        sync.RWMutex
	user      *identity.User
	session   Session
	now       func() time.Time
	observers []func(Snapshot)
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// SetNow overrides the clock. Intended for tests.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Subscribe registers an observer notified after every state change. Views
// read the store reactively through this hook.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// SetAuthenticated installs a fresh user and session, replacing any previous
// state wholesale. It returns the new session carrying its instance ID.
func (s *Store) SetAuthenticated(user identity.User, token, refreshToken string, issuedAt, expiresAt time.Time) Session {
	s.mu.Lock()
	sess := Session{
		ID:             uuid.NewString(),
		Token:          token,
		RefreshToken:   refreshToken,
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
		LastActivityAt: issuedAt,
	}
	u := user
	s.user = &u
	s.session = sess
	s.mu.Unlock()

	s.notify()
	return sess
}

// ApplyRefresh atomically swaps token, refresh token and expiry. The swap is
// rejected when the store is no longer authenticated or the session instance
// changed since the refresh began, so a late refresh response can never
// resurrect a cleared session.
func (s *Store) ApplyRefresh(sessionID, token, refreshToken string, expiresAt time.Time) bool {
	s.mu.Lock()
	if s.user == nil || s.session.ID != sessionID {
		s.mu.Unlock()
		return false
	}
	s.session.Token = token
	s.session.RefreshToken = refreshToken
	s.session.ExpiresAt = expiresAt
	s.mu.Unlock()

	s.notify()
	return true
}

// Clear wipes user and session state. It is idempotent: clearing an already
// empty store reports false and notifies nobody.
func (s *Store) Clear() bool {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return false
	}
	s.user = nil
	s.session = Session{}
	s.mu.Unlock()

	s.notify()
	return true
}

// CurrentUser returns a copy of the authenticated user, or nil.
func (s *Store) CurrentUser() *identity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether the store holds a non-empty token whose
// session has not passed its expiry.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.session.Token != "" && s.now().Before(s.session.ExpiresAt)
}

// TimeRemaining returns the duration until the session expiry, zero when
// unauthenticated or already past it.
func (s *Store) TimeRemaining() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || s.session.Token == "" {
		return 0
	}
	remaining := s.session.ExpiresAt.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns a consistent read of the full state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Session: s.session}
	if s.user != nil {
		u := *s.user
		snap.User = &u
		snap.Authenticated = s.session.Token != "" && s.now().Before(s.session.ExpiresAt)
	}
	return snap
}

func (s *Store) notify() {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	snap := s.Snapshot()
	for _, fn := range observers {
		fn(snap)
	}
}
