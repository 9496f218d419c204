package technitium

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"isotope/internal/model"
)

// ListKind selects the blocked or allowed domain list.
type ListKind string

const (
	Blocked ListKind = "blocked"
	Allowed ListKind = "allowed"
)

// Valid reports whether k names a list the server knows.
func (k ListKind) Valid() bool {
	return k == Blocked || k == Allowed
}

func (k ListKind) endpoint(op string) string {
	return fmt.Sprintf("/api/%s/%s", k, op)
}

// ListDomains browses one level of a domain list. An empty domain lists
// the top level.
func (c *Client) ListDomains(ctx context.Context, kind ListKind, domain string) (*model.DomainTree, error) {
	params := url.Values{}
	if domain != "" {
		params.Set("domain", domain)
	}
	var tree model.DomainTree
	if err := c.Do(ctx, kind.endpoint("list"), params, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (c *Client) AddDomain(ctx context.Context, kind ListKind, domain string) error {
	return c.Do(ctx, kind.endpoint("add"), url.Values{"domain": {domain}}, nil)
}

func (c *Client) DeleteDomain(ctx context.Context, kind ListKind, domain string) error {
	return c.Do(ctx, kind.endpoint("delete"), url.Values{"domain": {domain}}, nil)
}

func (c *Client) FlushDomains(ctx context.Context, kind ListKind) error {
	return c.Do(ctx, kind.endpoint("flush"), nil, nil)
}

// ImportDomains bulk-adds domains in a single call.
func (c *Client) ImportDomains(ctx context.Context, kind ListKind, domains []string) error {
	param := "blockedZones"
	if kind == Allowed {
		param = "allowedZones"
	}
	return c.SubmitDo(ctx, kind.endpoint("import"), url.Values{
		param: {strings.Join(domains, ",")},
	}, nil)
}

// ExportDomains streams the full list as newline-separated text.
func (c *Client) ExportDomains(ctx context.Context, kind ListKind) (*http.Response, error) {
	return c.Stream(ctx, kind.endpoint("export"), nil)
}
