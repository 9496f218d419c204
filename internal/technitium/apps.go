package technitium

import (
	"context"
	"net/url"

	"isotope/internal/model"
)

func (c *Client) ListApps(ctx context.Context) ([]model.App, error) {
	var out struct {
		Apps []model.App `json:"apps"`
	}
	if err := c.Do(ctx, "/api/apps/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Apps, nil
}

func (c *Client) ListStoreApps(ctx context.Context) ([]model.StoreApp, error) {
	var out struct {
		StoreApps []model.StoreApp `json:"storeApps"`
	}
	if err := c.Do(ctx, "/api/apps/listStoreApps", nil, &out); err != nil {
		return nil, err
	}
	return out.StoreApps, nil
}

func (c *Client) InstallApp(ctx context.Context, name, source string) error {
	return c.Do(ctx, "/api/apps/downloadAndInstall", url.Values{"name": {name}, "url": {source}}, nil)
}

func (c *Client) UpdateApp(ctx context.Context, name, source string) error {
	return c.Do(ctx, "/api/apps/downloadAndUpdate", url.Values{"name": {name}, "url": {source}}, nil)
}

func (c *Client) UninstallApp(ctx context.Context, name string) error {
	return c.Do(ctx, "/api/apps/uninstall", url.Values{"name": {name}}, nil)
}

// AppConfig returns the app's configuration text. A nil config from the
// server comes back as "".
func (c *Client) AppConfig(ctx context.Context, name string) (string, error) {
	var out struct {
		Config *string `json:"config"`
	}
	if err := c.Do(ctx, "/api/apps/config/get", url.Values{"name": {name}}, &out); err != nil {
		return "", err
	}
	if out.Config == nil {
		return "", nil
	}
	return *out.Config, nil
}

// SetAppConfig stores config verbatim; the console treats it as opaque text.
func (c *Client) SetAppConfig(ctx context.Context, name, config string) error {
	return c.SubmitDo(ctx, "/api/apps/config/set", url.Values{"name": {name}, "config": {config}}, nil)
}
