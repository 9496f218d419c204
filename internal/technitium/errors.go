package technitium

import (
	"errors"
	"fmt"
)

const defaultErrorMessage = "request failed"

// ErrTransport wraps network failures and replies that are not a JSON
// envelope.
var ErrTransport = errors.New("technitium: transport failure")

// ErrNoToken is returned when an authenticated endpoint is called with a
// context that carries no bearer token.
var ErrNoToken = errors.New("technitium: no API token in context")

// APIError is an application-level failure: the server answered with a
// status other than "ok".
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// DecodeError reports an "ok" payload that did not match the expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("technitium: unexpected response shape: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsInvalidToken reports whether err means the bearer token was rejected.
func IsInvalidToken(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == StatusInvalidToken
}

// Message returns the text shown to the operator for err.
func Message(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrTransport):
		return "Could not reach the DNS server: " + err.Error()
	default:
		return err.Error()
	}
}
