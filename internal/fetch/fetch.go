// Package fetch wraps an API call that returns an envelope and tracks its
// loading, error and data state.
//
// A Hook owns a cancellation scope. Every run gets a child context; a new
// run cancels the previous one, and a result from a superseded run is
// dropped instead of overwriting newer state. Close ends the scope.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sync"

	"isotope/internal/technitium"
)

// ErrClosed is reported by runs started after Close.
var ErrClosed = errors.New("fetch: hook closed")

// Fetcher performs one remote call.
type Fetcher func(ctx context.Context) (*technitium.Envelope, error)

// State is a snapshot of a Hook.
type State[T any] struct {
	Data      *T
	Err       error
	IsLoading bool
}

// ErrorMessage is the operator-facing text of Err.
func (s State[T]) ErrorMessage() string {
	return technitium.Message(s.Err)
}

// Hook runs a Fetcher and keeps the latest result.
type Hook[T any] struct {
	fetcher Fetcher

	mu     sync.Mutex
	state  State[T]
	gen    uint64
	cancel context.CancelFunc
	deps   []any
	primed bool
	closed bool
	done   chan struct{}
}

func New[T any](fetcher Fetcher) *Hook[T] {
	return &Hook[T]{fetcher: fetcher, done: make(chan struct{})}
}

// State returns the current snapshot.
func (h *Hook[T]) State() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Run fetches and blocks until the result is stored or dropped. Loading is
// set first; data and error from the previous run are not kept around
// while the new one is in flight.
func (h *Hook[T]) Run(ctx context.Context) State[T] {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return State[T]{Err: ErrClosed}
	}
	if h.cancel != nil {
		h.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.gen++
	gen := h.gen
	h.state = State[T]{IsLoading: true}
	h.mu.Unlock()

	// Close cancels the in-flight run as well.
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-runCtx.Done():
		}
	}()

	next := resolve[T](runCtx, h.fetcher)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		// Superseded; the newer run owns the state.
		return h.state
	}
	h.state = next
	return next
}

// Refetch re-runs the fetcher.
func (h *Hook[T]) Refetch(ctx context.Context) State[T] {
	return h.Run(ctx)
}

// Watch runs the fetcher on the first call and afterwards only when deps
// differ from the previous call's deps.
func (h *Hook[T]) Watch(ctx context.Context, deps ...any) State[T] {
	h.mu.Lock()
	same := h.primed && reflect.DeepEqual(h.deps, deps)
	h.deps = deps
	h.primed = true
	state := h.state
	h.mu.Unlock()

	if same {
		return state
	}
	return h.Run(ctx)
}

// Close cancels any in-flight run; later runs return ErrClosed.
func (h *Hook[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	if h.cancel != nil {
		h.cancel()
	}
}

// Once runs fetcher a single time, for page renders that do not keep a hook.
func Once[T any](ctx context.Context, fetcher Fetcher) State[T] {
	return resolve[T](ctx, fetcher)
}

// Call adapts a client call into a Fetcher.
func Call(c *technitium.Client, endpoint string, params url.Values) Fetcher {
	return func(ctx context.Context) (*technitium.Envelope, error) {
		return c.Call(ctx, endpoint, params)
	}
}

func resolve[T any](ctx context.Context, fetcher Fetcher) (out State[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = State[T]{Err: fmt.Errorf("fetch: panic: %v", r)}
		}
	}()

	env, err := fetcher(ctx)
	if err != nil {
		return State[T]{Err: err}
	}
	if env == nil {
		return State[T]{Err: errors.New("fetch: empty reply")}
	}
	payload, err := env.Payload()
	if err != nil {
		return State[T]{Err: err}
	}
	var data T
	if err := json.Unmarshal(payload, &data); err != nil {
		return State[T]{Err: &technitium.DecodeError{Err: err}}
	}
	return State[T]{Data: &data}
}
