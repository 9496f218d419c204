package technitium

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, body string) *Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	return &env
}

func TestPayloadUnwrapsResponseMember(t *testing.T) {
	env := decodeEnvelope(t, `{"status":"ok","response":{"a":1}}`)

	payload, err := env.Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(payload))
}

func TestPayloadWithoutResponseStripsEnvelopeKeys(t *testing.T) {
	env := decodeEnvelope(t, `{"status":"ok","a":1}`)

	payload, err := env.Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(payload))
}

func TestPayloadNullResponseFallsBackToRest(t *testing.T) {
	env := decodeEnvelope(t, `{"status":"ok","response":null,"token":"abc","errorMessage":null}`)

	payload, err := env.Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"abc"}`, string(payload))
}

func TestPayloadErrorStatus(t *testing.T) {
	env := decodeEnvelope(t, `{"status":"error","errorMessage":"x"}`)

	payload, err := env.Payload()
	assert.Nil(t, payload)
	require.Error(t, err)
	assert.Equal(t, "x", err.Error())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, StatusError, apiErr.Status)
}

func TestPayloadErrorWithoutMessageUsesGenericText(t *testing.T) {
	env := decodeEnvelope(t, `{"status":"error"}`)

	_, err := env.Payload()
	require.Error(t, err)
	assert.Equal(t, defaultErrorMessage, err.Error())
}

func TestPayloadInvalidToken(t *testing.T) {
	env := decodeEnvelope(t, `{"status":"invalid-token","errorMessage":"Invalid token or session expired."}`)

	_, err := env.Payload()
	assert.True(t, IsInvalidToken(err))
}

func TestDecodeShapeMismatch(t *testing.T) {
	env := decodeEnvelope(t, `{"status":"ok","response":{"apps":"not-a-list"}}`)

	var out struct {
		Apps []string `json:"apps"`
	}
	err := env.Decode(&out)
	var decErr *DecodeError
	assert.ErrorAs(t, err, &decErr)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "zone exists", Message(&APIError{Status: StatusError, Message: "zone exists"}))
	assert.Contains(t, Message(ErrTransport), "Could not reach the DNS server")
}
