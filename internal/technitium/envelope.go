package technitium

import (
	"bytes"
	"encoding/json"
)

// Status values used by the DNS server in the envelope's status field.
const (
	StatusOK           = "ok"
	StatusError        = "error"
	StatusInvalidToken = "invalid-token"
)

// Envelope is the uniform wrapper around every API reply:
//
//	{"status": "ok", "response": {...}}
//	{"status": "ok", "token": "...", "username": "..."}
//	{"status": "error", "errorMessage": "..."}
//
// Keys other than status, errorMessage and response are kept in Rest.
type Envelope struct {
	Status       string
	ErrorMessage string
	Response     json.RawMessage
	Rest         map[string]json.RawMessage
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Rest = make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		switch k {
		case "status":
			_ = json.Unmarshal(v, &e.Status)
		case "errorMessage":
			_ = json.Unmarshal(v, &e.ErrorMessage)
		case "response":
			e.Response = v
		default:
			e.Rest[k] = v
		}
	}
	return nil
}

// Payload unwraps the envelope. For status ok it returns the response
// member when present, otherwise the envelope itself minus the status,
// errorMessage and response keys. Any other status yields an *APIError.
func (e *Envelope) Payload() (json.RawMessage, error) {
	if e.Status != StatusOK {
		msg := e.ErrorMessage
		if msg == "" {
			msg = defaultErrorMessage
		}
		return nil, &APIError{Status: e.Status, Message: msg}
	}
	if len(e.Response) > 0 && !bytes.Equal(bytes.TrimSpace(e.Response), []byte("null")) {
		return e.Response, nil
	}
	rest := e.Rest
	if rest == nil {
		rest = map[string]json.RawMessage{}
	}
	return json.Marshal(rest)
}

// Decode unwraps the envelope into out. A nil out only checks the status.
func (e *Envelope) Decode(out any) error {
	payload, err := e.Payload()
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
