package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gestionrh/gestionrh-console/internal/authz"
)

// ErrNotAuthenticated is returned when an operation needs a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

type sessionKey struct{}

// ContextWithSession binds sess to ctx for the handlers of one request.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the request session, or nil outside the
// session middleware.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
	now        func() time.Time
	teardown   []func(email string)
}

// Session holds the console state of one browser: the signed-in user, the API
// token issued for them and pending flash messages. It is safe for concurrent use.
type Session struct {
	ID string

	mu          sync.Mutex
	values      map[string]string
	user        *authz.User
	apiToken    string
	tokenExpiry time.Time
	flashes     []FlashMessage
	manager     *SessionManager
	isNew       bool
	dirty       bool
	destroyed   bool
	expired     bool
	previousID  string
}

type sessionPayload struct {
	Values      map[string]string `json:"values"`
	User        *authz.User       `json:"user,omitempty"`
	APIToken    string            `json:"api_token,omitempty"`
	TokenExpiry time.Time         `json:"token_expiry,omitempty"`
	Flashes     []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
		now:        time.Now,
	}
}

// WithClock overrides the time source used for token expiry checks.
func (sm *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		sm.now = now
	}
	return sm
}

// OnTeardown registers fn to run with the user's email whenever a session
// signs out or its API session expires. Register hooks before serving.
func (sm *SessionManager) OnTeardown(fn func(email string)) *SessionManager {
	if fn != nil {
		sm.teardown = append(sm.teardown, fn)
	}
	return sm
}

func (sm *SessionManager) tornDown(email string) {
	if sm == nil || email == "" {
		return
	}
	for _, fn := range sm.teardown {
		fn(email)
	}
}

// Load loads or creates a new session for request. A session whose API token
// has expired is loaded signed out.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}
	return sm.LoadByID(ctx, cookie.Value)
}

// LoadByID loads the session stored under id.
func (sm *SessionManager) LoadByID(ctx context.Context, id string) (*Session, error) {
	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	sess := sm.newSession()
	sess.ID = id
	sess.values = stored.Values
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	sess.user = stored.User
	sess.apiToken = stored.APIToken
	sess.tokenExpiry = stored.TokenExpiry
	sess.flashes = stored.Flashes
	sess.isNew = false
	sess.dirty = false

	if sess.apiToken != "" && !sess.tokenExpiry.IsZero() && !sm.now().Before(sess.tokenExpiry) {
		email := sess.clearIdentity()
		sess.expired = true
		sess.dirty = true
		sm.tornDown(email)
	}
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.previousID != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.previousID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.previousID = ""
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sess.payload())
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  sm.now().Add(sm.ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.destroyed = true
	sess.mu.Unlock()
}

// Revoke deletes a stored session outside of a request.
func (sm *SessionManager) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := sm.client.Del(ctx, sm.redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SignIn binds the user and API token to the session. The session ID is
// rotated so a pre-login identifier cannot be reused.
func (s *Session) SignIn(user *authz.User, token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isNew && s.ID != "" {
		s.previousID = s.ID
	}
	if s.manager != nil {
		s.ID = s.manager.generateSessionID()
	}
	s.user = user
	s.apiToken = token
	s.tokenExpiry = expiresAt
	delete(s.values, CSRFSessionKey)
	s.expired = false
	s.destroyed = false
	s.isNew = true
	s.dirty = true
}

// SignOut clears the identity and marks the session for deletion.
func (s *Session) SignOut() {
	s.mu.Lock()
	email := s.clearIdentity()
	s.destroyed = true
	s.dirty = true
	manager := s.manager
	s.mu.Unlock()
	manager.tornDown(email)
}

// User returns the signed-in user, or nil.
func (s *Session) User() *authz.User {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool {
	return s.User() != nil
}

// APIToken returns the bearer token for GestionRH API calls.
func (s *Session) APIToken() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiToken
}

// TokenExpiry returns when the API token expires.
func (s *Session) TokenExpiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenExpiry
}

// ExpireAPISession is called when the API rejects the token: the identity is
// cleared and the session flagged so the next response sends the user to login.
func (s *Session) ExpireAPISession() {
	s.mu.Lock()
	email := s.clearIdentity()
	s.expired = true
	s.dirty = true
	manager := s.manager
	s.mu.Unlock()
	manager.tornDown(email)
}

// Expired reports whether the API session ended during this request.
func (s *Session) Expired() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Detached returns credentials usable after the request ends. When the API
// rejects them the session is expired in memory and revoked in the store.
func (s *Session) Detached() *DetachedCredentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &DetachedCredentials{token: s.apiToken, sessionID: s.ID, manager: s.manager, session: s}
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

// PopFlashes retrieves and clears every queued flash message.
func (s *Session) PopFlashes() []FlashMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flashes) == 0 {
		return nil
	}
	msgs := s.flashes
	s.flashes = nil
	s.dirty = true
	return msgs
}

// clearIdentity drops the user and token and returns the email that was
// signed in, if any.
func (s *Session) clearIdentity() string {
	email := ""
	if s.user != nil {
		email = s.user.Email
	}
	s.user = nil
	s.apiToken = ""
	s.tokenExpiry = time.Time{}
	return email
}

func (s *Session) payload() sessionPayload {
	return sessionPayload{
		Values:      s.values,
		User:        s.user,
		APIToken:    s.apiToken,
		TokenExpiry: s.tokenExpiry,
		Flashes:     s.flashes,
	}
}

// DetachedCredentials carry a session's API token outside its request.
type DetachedCredentials struct {
	mu        sync.Mutex
	token     string
	sessionID string
	manager   *SessionManager
	session   *Session
}

// APIToken implements hrapi.Credentials.
func (d *DetachedCredentials) APIToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

// ExpireAPISession revokes the stored session.
func (d *DetachedCredentials) ExpireAPISession() {
	d.mu.Lock()
	d.token = ""
	id := d.sessionID
	d.mu.Unlock()
	if d.session != nil {
		d.session.ExpireAPISession()
	}
	if d.manager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.manager.Revoke(ctx, id)
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
