package handler

import (
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isotope/internal/auth"
	"isotope/internal/database"
	"isotope/internal/fetch"
	"isotope/internal/model"
	"isotope/internal/technitium"
)

// pageTmpl renders the data keys the tests look at.
var pageTmpl = template.Must(template.New("").Parse(
	`{{define "layout"}}error={{.Error}};{{range .Logs}}log={{.FileName}};{{end}}{{range .Scopes}}scope={{.Name}};{{end}}{{range .Leases}}lease={{.Address}};{{end}}{{range .Sessions}}session={{.Username}};{{end}}{{end}}`))

var confirmTmpl = template.Must(template.New("").Parse(
	`{{define "layout"}}confirm:{{.Message}}{{range .Fields}};{{.Name}}={{.Value}}{{end}}{{end}}`))

func newDeps(t *testing.T, api http.HandlerFunc) (Deps, *database.Memory) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client := technitium.New(srv.URL)
	store := database.NewMemory(0)
	sm, err := auth.NewSessionManager(store, client, auth.Options{})
	require.NoError(t, err)
	t.Cleanup(sm.Close)
	return Deps{Client: client, Sessions: sm, Audit: store, Confirm: confirmTmpl}, store
}

func signedIn(r *http.Request) *http.Request {
	s := &model.Session{ID: "sid", Username: "alice", Role: auth.RoleAdmin, APIToken: "tok", CSRFToken: "csrf"}
	ctx := technitium.ContextWithToken(auth.WithSession(r.Context(), s), s.APIToken)
	return r.WithContext(ctx)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestWithParam(t *testing.T) {
	assert.Equal(t, "/zones?msg=Zone+added", withParam("/zones", "msg", "Zone added"))
	assert.Equal(t, "/blocked?domain=a.example&err=x%26y", withParam("/blocked?domain=a.example", "err", "x&y"))
}

func TestParents(t *testing.T) {
	assert.Nil(t, parents(""))
	assert.Equal(t, []string{"com", "example.com", "ads.example.com"}, parents("ads.example.com"))
}

func TestFilterZones(t *testing.T) {
	zones := []model.Zone{{Name: "example.com"}, {Name: "corp.internal"}, {Name: "Example.net"}}
	assert.Len(t, filterZones(zones, ""), 3)

	got := filterZones(zones, "example")
	require.Len(t, got, 2)
	assert.Equal(t, "example.com", got[0].Name)
	assert.Equal(t, "Example.net", got[1].Name)
}

func TestFilterStore(t *testing.T) {
	apps := []model.StoreApp{
		{Name: "Geo Country", Description: "Returns answers by country"},
		{Name: "Split Horizon", Description: "Different answers per network"},
	}
	assert.Len(t, filterStore(apps, " "), 2)
	got := filterStore(apps, "NETWORK")
	require.Len(t, got, 1)
	assert.Equal(t, "Split Horizon", got[0].Name)
}

func TestFilterInstalled(t *testing.T) {
	apps := []model.App{{Name: "Geo Country"}, {Name: "Query Logs (Sqlite)"}}
	got := filterInstalled(apps, "sqlite")
	require.Len(t, got, 1)
	assert.Equal(t, "Query Logs (Sqlite)", got[0].Name)
	assert.Len(t, filterInstalled(apps, ""), 2)
}

func TestFilterUsersMatchesFieldsSeparately(t *testing.T) {
	users := []model.User{
		{Username: "bob", DisplayName: "Alice Cooper"},
		{Username: "carol", DisplayName: "Bob Alder"},
	}
	got := filterUsers(users, "bob al")
	require.Len(t, got, 1)
	assert.Equal(t, "carol", got[0].Username)

	got = filterUsers(users, "ALICE")
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Username)
}

func TestFilterSessions(t *testing.T) {
	sessions := []model.APISession{
		{Username: "admin", PartialToken: "a1b2c3", LastSeenRemoteAddress: "10.0.0.5"},
		{Username: "ops", TokenName: "Backup Job", PartialToken: "ffee00"},
	}
	assert.Equal(t, "ops", filterSessions(sessions, "backup")[0].Username)
	assert.Equal(t, "admin", filterSessions(sessions, "10.0.0")[0].Username)
	assert.Empty(t, filterSessions(sessions, "nobody"))
}

func TestFilterKeys(t *testing.T) {
	keys := []model.TSIGKey{
		{KeyName: "transfer-key", AlgorithmName: "hmac-sha256"},
		{KeyName: "update-key", AlgorithmName: "hmac-sha512"},
	}
	got := filterKeys(keys, "SHA512")
	require.Len(t, got, 1)
	assert.Equal(t, "update-key", got[0].KeyName)
	assert.Len(t, filterKeys(keys, "key"), 2)
}

func TestSessionListFilters(t *testing.T) {
	d, _ := newDeps(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"ok","response":{"sessions":[{"username":"admin","partialToken":"aa11"},{"username":"ops","partialToken":"bb22"}]}}`)
	})
	h := NewAdminHandler(d, AdminTemplates{Users: pageTmpl, Sessions: pageTmpl})

	rec := httptest.NewRecorder()
	h.ListSessions(rec, signedIn(httptest.NewRequest(http.MethodGet, "/admin/sessions?q=OPS", nil)))
	assert.Equal(t, "error=;session=ops;", rec.Body.String())
}

func TestLimitBodyRunsBeforeFormReaders(t *testing.T) {
	var called bool
	h := limitBody(64, func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = io.WriteString(w, r.FormValue("domains"))
	})
	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/blocked/import", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	rec := send(url.Values{"domains": {strings.Repeat("a.example\n", 20)}}.Encode())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)

	rec = send(url.Values{"domains": {"a.example"}}.Encode())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
	assert.Equal(t, "a.example", rec.Body.String())
}

func TestStatsRange(t *testing.T) {
	assert.Equal(t, "LastDay", statsRange("LastDay"))
	assert.Equal(t, technitium.StatsRanges[0], statsRange("Forever"))
}

func TestFrame(t *testing.T) {
	m := frame("LastDay", fetch.State[statsPayload]{IsLoading: true})
	assert.True(t, m.Loading)
	assert.Nil(t, m.Stats)

	m = frame("LastDay", fetch.State[statsPayload]{Data: &statsPayload{Stats: model.Stats{TotalQueries: 7}}})
	require.NotNil(t, m.Stats)
	assert.EqualValues(t, 7, m.Stats.TotalQueries)
	assert.Equal(t, "LastDay", m.Range)
}

func TestConfirmedRendersHiddenFields(t *testing.T) {
	d, _ := newDeps(t, func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	b := &base{Deps: d}

	form := url.Values{"csrf_token": {"csrf"}, "domain": {"ads.example"}, "parent": {"example"}}
	req := signedIn(httptest.NewRequest(http.MethodPost, "/blocked/delete", strings.NewReader(form.Encode())))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	assert.False(t, b.confirmed(rec, req, "Delete", "Really?", "/blocked"))
	assert.Equal(t, "confirm:Really?;domain=ads.example;parent=example", rec.Body.String())

	form.Set("confirm", "yes")
	req = signedIn(httptest.NewRequest(http.MethodPost, "/blocked/delete", strings.NewReader(form.Encode())))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.True(t, b.confirmed(httptest.NewRecorder(), req, "Delete", "Really?", "/blocked"))
}

func TestLogListFilters(t *testing.T) {
	d, _ := newDeps(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"ok","response":{"logFiles":[{"fileName":"2026-10-17","size":"1 KB"},{"fileName":"2026-09-30","size":"2 KB"}]}}`)
	})
	h := NewLogHandler(d, pageTmpl)

	rec := httptest.NewRecorder()
	h.List(rec, signedIn(httptest.NewRequest(http.MethodGet, "/logs?q=2026-10", nil)))
	assert.Equal(t, "error=;log=2026-10-17;", rec.Body.String())
}

func TestLogDownloadProxiesFile(t *testing.T) {
	d, _ := newDeps(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/logs/download", r.URL.Path)
		assert.Equal(t, "2026-10-17", r.URL.Query().Get("fileName"))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, "query log line\n")
	})
	h := NewLogHandler(d, pageTmpl)

	req := signedIn(httptest.NewRequest(http.MethodGet, "/logs/2026-10-17", nil))
	req.SetPathValue("file", "2026-10-17")
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="2026-10-17.log"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "query log line\n", rec.Body.String())
}

func TestDeleteAllLogsIsAudited(t *testing.T) {
	var called atomic.Bool
	d, store := newDeps(t, func(w http.ResponseWriter, r *http.Request) {
		called.Store(r.URL.Path == "/api/logs/deleteAll")
		writeJSON(w, `{"status":"ok"}`)
	})
	h := NewLogHandler(d, pageTmpl)

	req := signedIn(httptest.NewRequest(http.MethodPost, "/logs/delete-all", strings.NewReader("confirm=yes")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.DeleteAll(rec, req)

	assert.True(t, called.Load())
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	entries, total, err := store.ListAuditLog(10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "delete_all_logs", entries[0].Action)
	assert.Equal(t, "alice", entries[0].Username)
}

func TestDHCPLoadsScopesAndLeases(t *testing.T) {
	d, _ := newDeps(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/dhcp/scopes/list":
			writeJSON(w, `{"status":"ok","response":{"scopes":[{"name":"lan","enabled":true}]}}`)
		case "/api/dhcp/leases/list":
			writeJSON(w, `{"status":"ok","response":{"leases":[{"scope":"lan","address":"192.168.1.20"}]}}`)
		}
	})
	rec := httptest.NewRecorder()
	NewDHCPHandler(d, pageTmpl).List(rec, signedIn(httptest.NewRequest(http.MethodGet, "/dhcp", nil)))
	assert.Equal(t, "error=;scope=lan;lease=192.168.1.20;", rec.Body.String())
}

func TestDHCPFailsWhenEitherCallFails(t *testing.T) {
	d, _ := newDeps(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/dhcp/leases/list" {
			writeJSON(w, `{"status":"error","errorMessage":"DHCP server is not running."}`)
			return
		}
		writeJSON(w, `{"status":"ok","response":{"scopes":[]}}`)
	})
	rec := httptest.NewRecorder()
	NewDHCPHandler(d, pageTmpl).List(rec, signedIn(httptest.NewRequest(http.MethodGet, "/dhcp", nil)))
	assert.Equal(t, "error=Failed to load DHCP: DHCP server is not running.;", rec.Body.String())
}

func TestInvalidTokenRedirectsToLogin(t *testing.T) {
	d, _ := newDeps(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"invalid-token","errorMessage":"Invalid token or session expired."}`)
	})
	rec := httptest.NewRecorder()
	NewClusterHandler(d, pageTmpl).State(rec, signedIn(httptest.NewRequest(http.MethodGet, "/cluster", nil)))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fcluster", rec.Header().Get("Location"))
}
