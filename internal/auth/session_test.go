package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isotope/internal/database"
	"isotope/internal/form"
	"isotope/internal/model"
	"isotope/internal/technitium"
)

func newManager(t *testing.T, client *technitium.Client, opts Options) (*SessionManager, *database.Memory) {
	t.Helper()
	store := database.NewMemory(0)
	sm, err := NewSessionManager(store, client, opts)
	require.NoError(t, err)
	t.Cleanup(sm.Close)
	return sm, store
}

// login creates a session and returns the cookie the browser would send.
func login(t *testing.T, sm *SessionManager, id Identity) (*http.Cookie, *model.Session) {
	t.Helper()
	rec := httptest.NewRecorder()
	s, err := sm.CreateSession(rec, id)
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	return cookies[0], s
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	_, _ = w.Write([]byte(s.Username + " " + technitium.TokenFromContext(r.Context())))
}

func TestRequireAuthRedirectsWithNext(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, _ := newManager(t, client, Options{})

	req := httptest.NewRequest(http.MethodGet, "/settings/cache?tab=ttl", nil)
	rec := httptest.NewRecorder()
	sm.RequireAuth(okHandler)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/settings/cache?tab=ttl", loc.Query().Get("next"))
}

func TestRequireAuthPostHasNoNext(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, _ := newManager(t, client, Options{})

	rec := httptest.NewRecorder()
	sm.RequireAuth(okHandler)(rec, httptest.NewRequest(http.MethodPost, "/cache/flush", nil))
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestSessionCarriesTokenIntoContext(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, _ := newManager(t, client, Options{VerifyInterval: time.Hour})
	cookie, _ := login(t, sm, Identity{Username: "admin", APIToken: "tok"})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	sm.RequireAuth(okHandler)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin tok", rec.Body.String())
}

func TestTamperedCookieRejected(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, _ := newManager(t, client, Options{})
	cookie, _ := login(t, sm, Identity{Username: "admin", APIToken: "tok"})

	raw, _, _ := strings.Cut(cookie.Value, ".")
	for _, v := range []string{raw, raw + ".deadbeef", "." + strings.Repeat("0", 64), ""} {
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: cookieName, Value: v})
		_, ok := sm.Current(req)
		assert.False(t, ok, v)
	}
}

func TestExpiredSessionRedirects(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, _ := newManager(t, client, Options{MaxAge: time.Minute})
	cookie, _ := login(t, sm, Identity{Username: "admin", APIToken: "tok"})
	sm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	sm.RequireAuth(okHandler)(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestPeriodicVerification(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, store := newManager(t, client, Options{VerifyInterval: time.Minute})

	good, goodSession := login(t, sm, Identity{Username: "admin", APIToken: "tok"})
	bad, badSession := login(t, sm, Identity{Username: "ghost", APIToken: "revoked"})
	sm.Drafts().Put(badSession.ID, "cache", form.Overrides{"serveStale": "false"})

	later := time.Now().Add(2 * time.Minute)
	sm.now = func() time.Time { return later }

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(good)
	rec := httptest.NewRecorder()
	sm.RequireAuth(okHandler)(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	s, _ := store.GetSession(goodSession.ID)
	assert.True(t, later.Equal(s.VerifiedAt))

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(bad)
	rec = httptest.NewRecorder()
	sm.RequireAuth(okHandler)(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	gone, _ := store.GetSession(badSession.ID)
	assert.Nil(t, gone)
	assert.Empty(t, sm.Drafts().Get(badSession.ID, "cache"))
}

func TestVerificationFailsWhenServerUnreachable(t *testing.T) {
	client, srv := fakeServer(t, "tok")
	sm, store := newManager(t, client, Options{VerifyInterval: time.Minute})
	cookie, s := login(t, sm, Identity{Username: "admin", APIToken: "tok"})
	sm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	srv.Close()

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	sm.RequireAuth(okHandler)(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login"))
	gone, _ := store.GetSession(s.ID)
	assert.Nil(t, gone)
}

func TestInvalidTokenEndsConsoleSessions(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, store := newManager(t, client, Options{})
	_, a := login(t, sm, Identity{Username: "admin", APIToken: "stale"})
	_, b := login(t, sm, Identity{Username: "ops", APIToken: "stale"})
	_, c := login(t, sm, Identity{Username: "admin", APIToken: "tok"})

	_, err := client.Session(technitium.ContextWithToken(context.Background(), "stale"))
	require.True(t, technitium.IsInvalidToken(err))

	for _, id := range []string{a.ID, b.ID} {
		s, _ := store.GetSession(id)
		assert.Nil(t, s)
	}
	s, _ := store.GetSession(c.ID)
	assert.NotNil(t, s)
}

func TestValidateCSRF(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, _ := newManager(t, client, Options{VerifyInterval: time.Hour})
	cookie, s := login(t, sm, Identity{Username: "admin", APIToken: "tok"})
	h := sm.RequireAuth(sm.ValidateCSRF(okHandler))

	post := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/cache/flush", strings.NewReader(url.Values{"csrf_token": {token}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusForbidden, post(""))
	assert.Equal(t, http.StatusForbidden, post("nope"))
	assert.Equal(t, http.StatusOK, post(s.CSRFToken))

	req := httptest.NewRequest(http.MethodPost, "/cache/flush", nil)
	req.Header.Set("X-CSRF-Token", s.CSRFToken)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, _ := newManager(t, client, Options{VerifyInterval: time.Hour})
	editor, _ := login(t, sm, Identity{Username: "ed", Role: RoleEditor, APIToken: "tok"})
	admin, _ := login(t, sm, Identity{Username: "root", APIToken: "tok"})

	for cookie, want := range map[*http.Cookie]int{editor: http.StatusForbidden, admin: http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		sm.RequireAdmin(okHandler)(rec, req)
		assert.Equal(t, want, rec.Code)
	}
}

func TestDestroySession(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, store := newManager(t, client, Options{})
	cookie, s := login(t, sm, Identity{Username: "admin", APIToken: "tok"})
	sm.Drafts().Put(s.ID, "general", form.Overrides{"dnsServerDomain": "x"})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	sm.DestroySession(rec, req)

	gone, _ := store.GetSession(s.ID)
	assert.Nil(t, gone)
	assert.Empty(t, sm.Drafts().Sections(s.ID))
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestSweepDropsOrphanedDrafts(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	sm, _ := newManager(t, client, Options{})
	_, s := login(t, sm, Identity{Username: "admin", APIToken: "tok"})
	sm.Drafts().Put(s.ID, "cache", form.Overrides{"serveStale": "true"})
	sm.Drafts().Put("ended", "cache", form.Overrides{"serveStale": "true"})

	sm.sweep()
	assert.Equal(t, []string{"cache"}, sm.Drafts().Sections(s.ID))
	assert.Empty(t, sm.Drafts().Sections("ended"))
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/dashboard"},
		{"/zones?q=a", "/zones?q=a"},
		{"//evil.example/x", "/dashboard"},
		{"/\\evil.example", "/dashboard"},
		{"https://evil.example/", "/dashboard"},
		{"zones", "/dashboard"},
		{"/login?next=/x", "/dashboard"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeNext(tt.next, "/dashboard"), tt.next)
	}
}
