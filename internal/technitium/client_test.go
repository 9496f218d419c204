package technitium

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer serves handler and returns a Client pointed at it.
func newTestServer(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, opts...)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestLoginSendsCredentialsAndDecodesTopLevelFields(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/user/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "admin", r.PostForm.Get("user"))
		assert.Equal(t, "s3cret", r.PostForm.Get("pass"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, `{"displayName":"Administrator","username":"admin","token":"tok-1","status":"ok"}`)
	})

	info, err := c.Login(context.Background(), "admin", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "admin", info.Username)
	assert.Equal(t, "Administrator", info.DisplayName)
	assert.Equal(t, "tok-1", info.Token)
}

func TestLoginFailure(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"error","errorMessage":"Invalid username or password for user: admin"}`)
	})

	info, err := c.Login(context.Background(), "admin", "wrong")
	assert.Nil(t, info)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid username or password")
}

func TestBearerTokenFromContext(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		writeJSON(w, `{"status":"ok","response":{"zones":[{"name":"example.com","type":"Primary"}]}}`)
	})

	ctx := ContextWithToken(context.Background(), "tok-2")
	zones, err := c.ListZones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "example.com", zones[0].Name)
}

func TestSessionRequiresToken(t *testing.T) {
	c := New("http://127.0.0.1:0")

	_, err := c.Session(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
	assert.ErrorIs(t, c.Logout(context.Background()), ErrNoToken)
}

func TestInvalidTokenNotifiesObservers(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"envelope status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `{"status":"invalid-token","errorMessage":"Invalid token or session expired."}`)
		}},
		{"http 401", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)

			var mu sync.Mutex
			var seen []string
			cancel := c.Observe(TokenObserverFunc(func(token string) {
				mu.Lock()
				seen = append(seen, token)
				mu.Unlock()
			}))

			ctx := ContextWithToken(context.Background(), "stale")
			_, err := c.ListUsers(ctx)
			assert.True(t, IsInvalidToken(err))
			assert.Equal(t, []string{"stale"}, seen)

			cancel()
			_, _ = c.ListUsers(ctx)
			assert.Len(t, seen, 1, "unsubscribed observer is not called")
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(srv.URL)

	_, err := c.ListZones(ContextWithToken(context.Background(), "t"))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestNonJSONReplyIsTransportFailure(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	_, err := c.ListZones(ContextWithToken(context.Background(), "t"))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestImportDomainsSendsSingleBulkCall(t *testing.T) {
	var calls int
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/api/blocked/import":
			assert.Equal(t, "a.com,b.com", r.PostForm.Get("blockedZones"))
		case "/api/allowed/import":
			assert.Equal(t, "c.com", r.PostForm.Get("allowedZones"))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, `{"status":"ok"}`)
	})

	ctx := ContextWithToken(context.Background(), "t")
	require.NoError(t, c.ImportDomains(ctx, Blocked, []string{"a.com", "b.com"}))
	require.NoError(t, c.ImportDomains(ctx, Allowed, []string{"c.com"}))
	assert.Equal(t, 2, calls)
}

func TestSetSettingsReturnsServerState(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/settings/set", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "3600", r.PostForm.Get("defaultRecordTtl"))
		writeJSON(w, `{"status":"ok","response":{"defaultRecordTtl":3600}}`)
	})

	got, err := c.SetSettings(ContextWithToken(context.Background(), "t"), map[string][]string{
		"defaultRecordTtl": {"3600"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"defaultRecordTtl":3600}`, string(got))
}

func TestAppConfigNull(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"ok","response":{"config":null}}`)
	})

	cfg, err := c.AppConfig(ContextWithToken(context.Background(), "t"), "Split Horizon")
	require.NoError(t, err)
	assert.Equal(t, "", cfg)
}

func TestStreamDownload(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fileName") == "missing" {
			writeJSON(w, `{"status":"error","errorMessage":"Log file was not found"}`)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "line1\nline2\n")
	})
	ctx := ContextWithToken(context.Background(), "t")

	resp, err := c.DownloadLog(ctx, "2026-10-18")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "line1\nline2\n", string(body))

	_, err = c.DownloadLog(ctx, "missing")
	assert.EqualError(t, err, "Log file was not found")
}

func TestMetricsRecordCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"ok","response":{}}`)
	}, WithMetrics(m))

	require.NoError(t, c.FlushCache(ContextWithToken(context.Background(), "t")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/cache/flush", "ok")))
	n, err := testutil.GatherAndCount(reg, "isotope_upstream_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricsFoldUnknownStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	var n atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, fmt.Sprintf(`{"status":"weird-%d","response":{}}`, n.Add(1)))
	}, WithMetrics(m))

	ctx := ContextWithToken(context.Background(), "t")
	_ = c.FlushCache(ctx)
	_ = c.FlushCache(ctx)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/cache/flush", "other")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requests))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "ok", statusLabel(StatusOK))
	assert.Equal(t, "error", statusLabel(StatusError))
	assert.Equal(t, "invalid-token", statusLabel(StatusInvalidToken))
	assert.Equal(t, "other", statusLabel("something-new"))
	assert.Equal(t, "other", statusLabel(""))
}

func TestStatsParamsFallback(t *testing.T) {
	assert.Equal(t, "LastDay", StatsParams("LastDay").Get("type"))
	assert.Equal(t, "LastHour", StatsParams("bogus").Get("type"))
}

func TestListKindEndpoints(t *testing.T) {
	assert.True(t, Blocked.Valid())
	assert.False(t, ListKind("cache").Valid())
	assert.True(t, strings.HasSuffix(Allowed.endpoint("flush"), "/allowed/flush"))
}
