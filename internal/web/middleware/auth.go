package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore holds opaque session IDs issued after a successful login.
// Sessions live in memory only; a restart logs everyone out.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time // id -> expiry
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store whose sessions expire after ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create issues a new session and returns its ID and expiry.
func (s *SessionStore) Create() (string, time.Time) {
	id := uuid.NewString()
	expires := s.now().Add(s.ttl)

	s.mu.Lock()
	s.sessions[id] = expires
	s.mu.Unlock()

	return id, expires
}

// Valid reports whether id names a live session. Expired sessions are
// removed on lookup.
func (s *SessionStore) Valid(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.sessions[id]
	if !ok {
		return false
	}
	if !s.now().Before(expires) {
		delete(s.sessions, id)
		return false
	}
	return true
}

// Delete ends a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, expires := range s.sessions {
		if !now.Before(expires) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CheckPassword compares a submitted password with the configured one in
// constant time. Both sides are hashed first so the comparison does not
// leak the password length.
func CheckPassword(given, want string) bool {
	if want == "" {
		return false
	}
	g := sha256.Sum256([]byte(given))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}

// PasswordGate returns middleware that admits only requests carrying a live
// session cookie. Paths starting with one of the public prefixes pass
// through. Browsers are redirected to loginPath; API calls get a JSON 401.
func PasswordGate(store *SessionStore, cookieName, loginPath string, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path, public) {
				next.ServeHTTP(w, r)
				return
			}

			if c, err := r.Cookie(cookieName); err == nil && store.Valid(c.Value) {
				next.ServeHTTP(w, r)
				return
			}

			slog.Debug("auth: no valid session",
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
			)

			if strings.HasPrefix(r.URL.Path, "/api/") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"session expired","message":"Your session has expired","action":"Please log in again","code":"AUTH002"}` + "\n"))
				return
			}

			target := loginPath
			if r.Method == http.MethodGet && r.URL.Path != "/" {
				target += "?next=" + url.QueryEscape(r.URL.RequestURI())
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}

func isPublic(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
