package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isotope/internal/technitium"
)

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

// fakeServer answers the user endpoints. validToken is the only token
// accepted by session/get, until a logout revokes it.
func fakeServer(t *testing.T, validToken string) (*technitium.Client, *httptest.Server) {
	t.Helper()
	var revoked atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/user/login":
			_ = r.ParseForm()
			if r.PostForm.Get("user") == "admin" && r.PostForm.Get("pass") == "admin" {
				writeJSON(w, `{"status":"ok","username":"admin","displayName":"Administrator","token":"`+validToken+`"}`)
				return
			}
			writeJSON(w, `{"status":"error","errorMessage":"Invalid username or password for user: `+r.PostForm.Get("user")+`"}`)
		case "/api/user/session/get":
			if revoked.Load() || r.Header.Get("Authorization") != "Bearer "+validToken {
				writeJSON(w, `{"status":"invalid-token","errorMessage":"Invalid token or session expired."}`)
				return
			}
			writeJSON(w, `{"status":"ok","username":"admin","displayName":"Administrator"}`)
		case "/api/user/logout":
			revoked.Store(true)
			writeJSON(w, `{"status":"ok"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return technitium.New(srv.URL), srv
}

func TestHolderLogin(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	h := NewHolder(client, "")
	assert.Equal(t, Unauthenticated, h.State())

	res := h.Login(context.Background(), "admin", "admin")
	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Equal(t, Authenticated, h.State())
	assert.Equal(t, "tok", h.Token())
	assert.Equal(t, "Administrator", h.User().DisplayName)
	assert.Equal(t, "tok", technitium.TokenFromContext(h.Context(context.Background())))
}

func TestHolderLoginFailureIsAResult(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	h := NewHolder(client, "")

	res := h.Login(context.Background(), "admin", "wrong")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid username or password")
	assert.Equal(t, Unauthenticated, h.State())
	assert.Nil(t, h.User())

	res = h.Login(context.Background(), "  ", "x")
	assert.False(t, res.Success)
	assert.Equal(t, "Username and password are required", res.Error)
}

func TestHolderCheck(t *testing.T) {
	client, _ := fakeServer(t, "tok")

	h := NewHolder(client, "tok")
	require.NoError(t, h.Check(context.Background()))
	assert.Equal(t, Authenticated, h.State())
	assert.Equal(t, "admin", h.User().Username)

	stale := NewHolder(client, "expired")
	err := stale.Check(context.Background())
	assert.True(t, technitium.IsInvalidToken(err))
	assert.Equal(t, Unauthenticated, stale.State())
	assert.Empty(t, stale.Token())

	empty := NewHolder(client, "")
	assert.ErrorIs(t, empty.Check(context.Background()), technitium.ErrNoToken)
}

func TestHolderCheckTransportFailureClears(t *testing.T) {
	client, srv := fakeServer(t, "tok")
	srv.Close()

	h := NewHolder(client, "tok")
	err := h.Check(context.Background())
	assert.ErrorIs(t, err, technitium.ErrTransport)
	assert.Equal(t, Unauthenticated, h.State())
}

func TestLogoutClearsEvenWhenRemoteFails(t *testing.T) {
	client, srv := fakeServer(t, "tok")
	h := NewHolder(client, "")
	require.True(t, h.Login(context.Background(), "admin", "admin").Success)

	srv.Close()
	err := h.Logout(context.Background())

	assert.ErrorIs(t, err, technitium.ErrTransport)
	assert.Equal(t, Unauthenticated, h.State())
	assert.Nil(t, h.User())
	assert.Empty(t, h.Token())
}

func TestHolderObservesInvalidToken(t *testing.T) {
	client, _ := fakeServer(t, "tok")
	h := NewHolder(client, "")
	require.True(t, h.Login(context.Background(), "admin", "admin").Success)
	cancel := h.Subscribe()
	defer cancel()

	// Another holder's token being rejected leaves this one alone.
	other := NewHolder(client, "other")
	_ = other.Check(context.Background())
	assert.Equal(t, Authenticated, h.State())

	// The token is revoked elsewhere, then rejected on an unrelated call.
	require.NoError(t, NewHolder(client, "tok").Logout(context.Background()))
	_, err := client.Session(technitium.ContextWithToken(context.Background(), "tok"))
	require.True(t, technitium.IsInvalidToken(err))

	assert.Equal(t, Unauthenticated, h.State())
	select {
	case <-h.Invalidated():
	default:
		t.Fatal("Invalidated channel not closed")
	}
	// A second notification does not panic on the closed channel.
	h.TokenInvalidated("tok")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "checking", Checking.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
}
