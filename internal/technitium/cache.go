package technitium

import (
	"context"
	"net/url"

	"isotope/internal/model"
)

func (c *Client) ListCache(ctx context.Context, domain string) (*model.DomainTree, error) {
	params := url.Values{}
	if domain != "" {
		params.Set("domain", domain)
	}
	var tree model.DomainTree
	if err := c.Do(ctx, "/api/cache/list", params, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (c *Client) DeleteCached(ctx context.Context, domain string) error {
	return c.Do(ctx, "/api/cache/delete", url.Values{"domain": {domain}}, nil)
}

func (c *Client) FlushCache(ctx context.Context) error {
	return c.Do(ctx, "/api/cache/flush", nil, nil)
}
