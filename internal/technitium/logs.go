package technitium

import (
	"context"
	"net/http"
	"net/url"

	"isotope/internal/model"
)

func (c *Client) ListLogs(ctx context.Context) ([]model.LogFile, error) {
	var out struct {
		LogFiles []model.LogFile `json:"logFiles"`
	}
	if err := c.Do(ctx, "/api/logs/list", nil, &out); err != nil {
		return nil, err
	}
	return out.LogFiles, nil
}

func (c *Client) DownloadLog(ctx context.Context, fileName string) (*http.Response, error) {
	return c.Stream(ctx, "/api/logs/download", url.Values{"fileName": {fileName}})
}

func (c *Client) DeleteLog(ctx context.Context, fileName string) error {
	return c.Do(ctx, "/api/logs/delete", url.Values{"log": {fileName}}, nil)
}

func (c *Client) DeleteAllLogs(ctx context.Context) error {
	return c.Do(ctx, "/api/logs/deleteAll", nil, nil)
}

func (c *Client) ListDHCPScopes(ctx context.Context) ([]model.DHCPScope, error) {
	var out struct {
		Scopes []model.DHCPScope `json:"scopes"`
	}
	if err := c.Do(ctx, "/api/dhcp/scopes/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Scopes, nil
}

func (c *Client) ListDHCPLeases(ctx context.Context) ([]model.DHCPLease, error) {
	var out struct {
		Leases []model.DHCPLease `json:"leases"`
	}
	if err := c.Do(ctx, "/api/dhcp/leases/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Leases, nil
}
