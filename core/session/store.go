/*Package session implements the in-memory cookie session store.

A session is created lazily on the first request carrying an absent or
unknown token; the opaque token is bound to an HttpOnly cookie with path
"/" and no client-side expiry. Session lifetime is enforced server-side
only: a background sweeper removes sessions whose last activity is older
than the configured TTL.

The store is shared mutable state across all concurrent request
handlers; every read-modify-write sequence runs under the store mutex.
*/
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// DefaultTTL is the session time-to-live applied when none is configured.
const DefaultTTL = time.Hour

// DefaultCookieName is the cookie name applied when none is configured.
const DefaultCookieName = "tabula-session"

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeySession contextKey = "_session_"

// Options configures a Store.
type Options struct {
	// CookieName is the name of the session cookie. Defaults to DefaultCookieName.
	CookieName string
	// TTL is the inactivity time after which a session is reclaimed. Defaults to DefaultTTL.
	TTL time.Duration
	// Now is the clock. Defaults to time.Now. Tests override it.
	Now func() time.Time
}

type entry struct {
	user         map[string]interface{}
	lastActivity time.Time
}

// Store owns the token-to-session mapping and its lifecycle.
type Store struct {
	mutex      sync.Mutex
	sessions   map[string]*entry
	cookieName string
	ttl        time.Duration
	now        func() time.Time

	sweeperOnce sync.Once
	done        chan struct{}
}

// NewStore creates a session store. Call Start to launch the periodic
// sweeper and Close to stop it.
func NewStore(options Options) *Store {
	if options.CookieName == "" {
		options.CookieName = DefaultCookieName
	}
	if options.TTL <= 0 {
		options.TTL = DefaultTTL
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Store{
		sessions:   make(map[string]*entry),
		cookieName: options.CookieName,
		ttl:        options.TTL,
		now:        options.Now,
		done:       make(chan struct{}),
	}
}

// Session is a handle to one session in the store. All accessors lock
// the store, so handles can be shared freely between goroutines.
type Session struct {
	store *Store
	token string
}

// Token returns the opaque cookie token of the session.
func (s *Session) Token() string {
	return s.token
}

// Identify resolves the request's session cookie to a session. If the
// cookie is absent or unknown, a new session without a profile is
// created and the token is set as a cookie on the response. The
// session's last activity is refreshed either way.
func (s *Store) Identify(w http.ResponseWriter, r *http.Request) *Session {
	var token string
	if cookie, err := r.Cookie(s.cookieName); err == nil {
		token = cookie.Value
	}

	s.mutex.Lock()
	e, ok := s.sessions[token]
	if ok {
		e.lastActivity = s.now()
		s.mutex.Unlock()
		return &Session{store: s, token: token}
	}

	// unknown or absent token: allocate a fresh one. The collision
	// check and the insert happen under the same lock.
	for {
		token = newToken()
		if _, taken := s.sessions[token]; !taken {
			break
		}
	}
	s.sessions[token] = &entry{lastActivity: s.now()}
	s.mutex.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		// no Expires: lifetime is enforced server-side by the sweeper
	})

	return &Session{store: s, token: token}
}

// newToken returns 16 bytes from crypto/rand as hex. The space is large
// enough that the collision retry in Identify is a theoretical concern.
func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Touch refreshes the session's last activity.
func (s *Session) Touch() {
	s.store.mutex.Lock()
	if e, ok := s.store.sessions[s.token]; ok {
		e.lastActivity = s.store.now()
	}
	s.store.mutex.Unlock()
}

// Login sets the session's profile.
func (s *Session) Login(profile map[string]interface{}) {
	s.store.mutex.Lock()
	if e, ok := s.store.sessions[s.token]; ok {
		e.user = copyProfile(profile)
	}
	s.store.mutex.Unlock()
}

// Logout clears the session's profile.
func (s *Session) Logout() {
	s.store.mutex.Lock()
	if e, ok := s.store.sessions[s.token]; ok {
		e.user = nil
	}
	s.store.mutex.Unlock()
}

// User returns a copy of the session's profile, or nil for an anonymous
// session.
func (s *Session) User() map[string]interface{} {
	s.store.mutex.Lock()
	defer s.store.mutex.Unlock()
	if e, ok := s.store.sessions[s.token]; ok {
		return copyProfile(e.user)
	}
	return nil
}

// Role returns the role from the session's profile, or the empty string
// for an anonymous session or a profile without a role.
func (s *Session) Role() string {
	s.store.mutex.Lock()
	defer s.store.mutex.Unlock()
	e, ok := s.store.sessions[s.token]
	if !ok || e.user == nil {
		return ""
	}
	role, _ := e.user["role"].(string)
	return role
}

func copyProfile(profile map[string]interface{}) map[string]interface{} {
	if profile == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(profile))
	for k, v := range profile {
		clone[k] = v
	}
	return clone
}

// Sweep removes all sessions whose last activity is older than the TTL
// and returns the number of sessions removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	s.mutex.Lock()
	for token, e := range s.sessions {
		if now.Sub(e.lastActivity) > s.ttl {
			delete(s.sessions, token)
			removed++
		}
	}
	s.mutex.Unlock()
	return removed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sessions)
}

// Start launches the periodic sweeper. It runs every TTL/10,
// independent of request handling, until Close is called.
func (s *Store) Start() {
	s.sweeperOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(s.ttl / 10)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.Sweep()
				case <-s.done:
					return
				}
			}
		}()
	})
}

// Close stops the periodic sweeper.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Middleware returns a mux middleware that identifies the caller's
// session, refreshes its activity and stores it in the request context.
func (s *Store) Middleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := s.Identify(w, r)
			h.ServeHTTP(w, r.WithContext(sess.ContextWithSession(r.Context())))
		})
	}
}

// ContextWithSession returns a new context with this session added to it
func (s *Session) ContextWithSession(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeySession, s)
}

// FromContext retrieves a session from the context
func FromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(contextKeySession).(*Session)
	if ok {
		return s
	}
	return nil
}
