package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"isotope/internal/model"
	"isotope/internal/technitium"
)

const cookieName = "isotope_session"

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// Store persists console sessions. Both the PostgreSQL database and the
// in-memory store implement it. GetSession returns nil for an unknown id.
type Store interface {
	EnsureSessionSecret() (string, error)
	CreateSession(s *model.Session) error
	GetSession(id string) (*model.Session, error)
	TouchSession(id string, verifiedAt time.Time) error
	DeleteSession(id string) error
	DeleteSessionsByToken(apiToken string) (int, error)
	PurgeExpiredSessions() error
}

type Options struct {
	MaxAge         time.Duration
	VerifyInterval time.Duration
	SecureCookies  bool
}

// Identity is what a successful login hands to CreateSession.
type Identity struct {
	Username    string
	DisplayName string
	Role        string
	APIToken    string
}

type SessionManager struct {
	secret string
	store  Store
	client *technitium.Client
	opts   Options
	drafts *Drafts
	stop   func()
	now    func() time.Time
}

// NewSessionManager loads the signing secret and subscribes to the
// client's invalid-token notifications.
func NewSessionManager(store Store, client *technitium.Client, opts Options) (*SessionManager, error) {
	secret, err := store.EnsureSessionSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to load session secret: %w", err)
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	sm := &SessionManager{
		secret: secret,
		store:  store,
		client: client,
		opts:   opts,
		drafts: NewDrafts(),
		now:    time.Now,
	}
	sm.stop = client.Observe(sm)
	return sm, nil
}

// Close unsubscribes from the client.
func (sm *SessionManager) Close() {
	sm.stop()
}

func (sm *SessionManager) Drafts() *Drafts { return sm.drafts }

func (sm *SessionManager) Client() *technitium.Client { return sm.client }

func (sm *SessionManager) CreateSession(w http.ResponseWriter, id Identity) (*model.Session, error) {
	now := sm.now()
	raw := generateToken()
	s := &model.Session{
		ID:          raw,
		CSRFToken:   generateToken(),
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Role:        id.Role,
		APIToken:    id.APIToken,
		VerifiedAt:  now,
		CreatedAt:   now,
		ExpiresAt:   now.Add(sm.opts.MaxAge),
	}
	if s.Role == "" {
		s.Role = RoleAdmin
	}
	if err := sm.store.CreateSession(s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    raw + "." + sm.sign(raw),
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.opts.MaxAge.Seconds()),
	})
	return s, nil
}

func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	if id, ok := sm.cookieID(r); ok {
		sm.forget(id)
	}
	sm.clearCookie(w)
}

// Current returns the live session named by the request cookie.
func (sm *SessionManager) Current(r *http.Request) (*model.Session, bool) {
	id, ok := sm.cookieID(r)
	if !ok {
		return nil, false
	}
	s, err := sm.store.GetSession(id)
	if err != nil {
		log.Printf("[auth] load session: %v", err)
		return nil, false
	}
	if s == nil || sm.now().After(s.ExpiresAt) {
		return nil, false
	}
	return s, true
}

// TokenInvalidated implements technitium.TokenObserver: every console
// session bound to a rejected token is dropped.
func (sm *SessionManager) TokenInvalidated(token string) {
	n, err := sm.store.DeleteSessionsByToken(token)
	if err != nil {
		log.Printf("[auth] drop sessions for rejected token: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[auth] DNS server rejected an API token; ended %d console session(s)", n)
	}
}

func (sm *SessionManager) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sm.Current(r)
		if !ok {
			sm.clearCookie(w)
			RedirectToLogin(w, r)
			return
		}
		if sm.opts.VerifyInterval > 0 && sm.now().Sub(s.VerifiedAt) >= sm.opts.VerifyInterval {
			if !sm.verify(r.Context(), s) {
				sm.clearCookie(w)
				RedirectToLogin(w, r)
				return
			}
		}
		next(w, r.WithContext(WithSession(r.Context(), s)))
	}
}

func (sm *SessionManager) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return sm.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		s, _ := SessionFrom(r.Context())
		if s == nil || s.Role != RoleAdmin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

func (sm *SessionManager) ValidateCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete || r.Method == http.MethodPatch {
			s, ok := SessionFrom(r.Context())
			if !ok {
				s, ok = sm.Current(r)
			}
			if !ok {
				http.Error(w, "Forbidden: No session", http.StatusForbidden)
				return
			}

			submitted := r.FormValue("csrf_token")
			if submitted == "" {
				submitted = r.Header.Get("X-CSRF-Token")
			}

			if submitted == "" || !hmac.Equal([]byte(submitted), []byte(s.CSRFToken)) {
				http.Error(w, "Forbidden: Invalid CSRF token", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

// Run purges expired sessions and orphaned drafts until ctx is done.
func (sm *SessionManager) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		sm.sweep()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (sm *SessionManager) sweep() {
	if err := sm.store.PurgeExpiredSessions(); err != nil {
		log.Printf("[auth] purge sessions: %v", err)
	}
	n := sm.drafts.Sweep(func(id string) bool {
		s, err := sm.store.GetSession(id)
		return err != nil || s != nil
	})
	if n > 0 {
		log.Printf("[auth] dropped drafts of %d ended session(s)", n)
	}
}

// verify re-runs who-am-i for s. Any failure, an unreachable server
// included, ends the session.
func (sm *SessionManager) verify(ctx context.Context, s *model.Session) bool {
	if err := NewHolder(sm.client, s.APIToken).Check(ctx); err != nil {
		log.Printf("[auth] session for %s no longer valid: %v", s.Username, err)
		sm.forget(s.ID)
		return false
	}
	s.VerifiedAt = sm.now()
	if err := sm.store.TouchSession(s.ID, s.VerifiedAt); err != nil {
		log.Printf("[auth] touch session: %v", err)
	}
	return true
}

func (sm *SessionManager) forget(id string) {
	if err := sm.store.DeleteSession(id); err != nil {
		log.Printf("[auth] delete session: %v", err)
	}
	sm.drafts.Drop(id)
}

func (sm *SessionManager) cookieID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	raw, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok || raw == "" || !hmac.Equal([]byte(sig), []byte(sm.sign(raw))) {
		return "", false
	}
	return raw, true
}

func (sm *SessionManager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.opts.SecureCookies,
		MaxAge:   -1,
	})
}

func (sm *SessionManager) sign(token string) string {
	mac := hmac.New(sha256.New, []byte(sm.secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

type sessionKey struct{}

// WithSession stores s in ctx and attaches its API token for client calls.
func WithSession(ctx context.Context, s *model.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey{}, s)
	return technitium.ContextWithToken(ctx, s.APIToken)
}

func SessionFrom(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*model.Session)
	return s, ok && s != nil
}

// RedirectToLogin sends the browser to the login page. GET requests carry
// their path in "next" so login can return there.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login"
	if r.Method == http.MethodGet && r.URL.Path != "/" {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// SafeNext returns next when it is a path on this site, else fallback.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	if u.Path == "/login" || u.Path == "/logout" {
		return fallback
	}
	return next
}
