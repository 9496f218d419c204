// Package auth owns who is signed in: the per-token Holder state machine,
// console sessions stored behind a signed cookie, and optional LDAP login.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"isotope/internal/model"
	"isotope/internal/technitium"
)

type State int

const (
	Unauthenticated State = iota
	Checking
	Authenticated
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// ErrSuperseded is returned by Check when a login or logout replaced the
// token while the check was in flight.
var ErrSuperseded = errors.New("auth: token changed during check")

// LoginResult reports a login attempt. Bad credentials are a failed result,
// not an error.
type LoginResult struct {
	Success bool
	Error   string
}

// Holder tracks the signed-in user for one bearer token. The token itself
// is only handed to the client through the request context.
type Holder struct {
	client *technitium.Client

	mu          sync.RWMutex
	state       State
	token       string
	user        *model.LoginInfo
	invalidated chan struct{}
}

// NewHolder starts unauthenticated. A non-empty token is a persisted token
// that Check will verify.
func NewHolder(client *technitium.Client, token string) *Holder {
	return &Holder{client: client, token: token, invalidated: make(chan struct{})}
}

func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// User returns a copy of the signed-in user, or nil.
func (h *Holder) User() *model.LoginInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return nil
	}
	u := *h.user
	return &u
}

func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Context attaches the holder's token to ctx.
func (h *Holder) Context(ctx context.Context) context.Context {
	return technitium.ContextWithToken(ctx, h.Token())
}

// Check asks the server who owns the stored token. Any failure clears the
// token and the user.
func (h *Holder) Check(ctx context.Context) error {
	h.mu.Lock()
	token := h.token
	if token == "" {
		h.clear()
		h.mu.Unlock()
		return technitium.ErrNoToken
	}
	h.state = Checking
	h.mu.Unlock()

	info, err := h.client.Session(technitium.ContextWithToken(ctx, token))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token != token {
		if err != nil {
			return err
		}
		return ErrSuperseded
	}
	if err != nil {
		h.clear()
		return err
	}
	info.Token = token
	h.user = info
	h.state = Authenticated
	return nil
}

// Login exchanges credentials for a token.
func (h *Holder) Login(ctx context.Context, username, password string) LoginResult {
	if strings.TrimSpace(username) == "" || password == "" {
		return LoginResult{Error: "Username and password are required"}
	}

	h.mu.Lock()
	h.state = Checking
	h.mu.Unlock()

	info, err := h.client.Login(ctx, username, password)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.clear()
		return LoginResult{Error: technitium.Message(err)}
	}
	if info.Token == "" {
		h.clear()
		return LoginResult{Error: "The DNS server did not return a session token"}
	}
	h.token = info.Token
	h.user = info
	h.state = Authenticated
	return LoginResult{Success: true}
}

// Logout clears local state first and then asks the server to drop the
// token. The returned error is the remote failure, if any; local state is
// cleared regardless.
func (h *Holder) Logout(ctx context.Context) error {
	h.mu.Lock()
	token := h.token
	h.clear()
	h.mu.Unlock()

	if token == "" {
		return nil
	}
	return h.client.Logout(technitium.ContextWithToken(ctx, token))
}

// TokenInvalidated implements technitium.TokenObserver.
func (h *Holder) TokenInvalidated(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if token == "" || token != h.token {
		return
	}
	h.clear()
	select {
	case <-h.invalidated:
	default:
		close(h.invalidated)
	}
}

// Invalidated is closed once the server rejects the holder's token.
func (h *Holder) Invalidated() <-chan struct{} {
	return h.invalidated
}

// Subscribe registers the holder for invalid-token notifications until the
// returned function is called.
func (h *Holder) Subscribe() (cancel func()) {
	return h.client.Observe(h)
}

func (h *Holder) clear() {
	h.state = Unauthenticated
	h.token = ""
	h.user = nil
}
