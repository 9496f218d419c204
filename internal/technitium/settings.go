package technitium

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// Settings returns the raw settings bundle. The console never decodes it
// into a fixed struct; form schemas pick the fields they edit.
func (c *Client) Settings(ctx context.Context) (json.RawMessage, error) {
	env, err := c.Call(ctx, "/api/settings/get", nil)
	if err != nil {
		return nil, err
	}
	return env.Payload()
}

// SetSettings sends a partial settings update and returns the settings the
// server holds afterwards.
func (c *Client) SetSettings(ctx context.Context, params url.Values) (json.RawMessage, error) {
	env, err := c.Submit(ctx, "/api/settings/set", params)
	if err != nil {
		return nil, err
	}
	return env.Payload()
}

func (c *Client) ForceUpdateBlockLists(ctx context.Context) error {
	return c.Do(ctx, "/api/settings/forceUpdateBlockLists", nil, nil)
}

func (c *Client) TemporaryDisableBlocking(ctx context.Context, minutes int) error {
	return c.Do(ctx, "/api/settings/temporaryDisableBlocking", url.Values{
		"minutes": {strconv.Itoa(minutes)},
	}, nil)
}
