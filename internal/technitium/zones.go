package technitium

import (
	"context"
	"net/url"

	"isotope/internal/model"
)

func (c *Client) ListZones(ctx context.Context) ([]model.Zone, error) {
	var out struct {
		Zones []model.Zone `json:"zones"`
	}
	if err := c.Do(ctx, "/api/zones/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Zones, nil
}

// CreateZone creates a zone of the given type (Primary, Secondary, Stub,
// Forwarder). The server answers with the canonical domain name.
func (c *Client) CreateZone(ctx context.Context, zone, zoneType string) (string, error) {
	var out struct {
		Domain string `json:"domain"`
	}
	if err := c.SubmitDo(ctx, "/api/zones/create", url.Values{"zone": {zone}, "type": {zoneType}}, &out); err != nil {
		return "", err
	}
	return out.Domain, nil
}

func (c *Client) DeleteZone(ctx context.Context, zone string) error {
	return c.Do(ctx, "/api/zones/delete", url.Values{"zone": {zone}}, nil)
}

func (c *Client) EnableZone(ctx context.Context, zone string) error {
	return c.Do(ctx, "/api/zones/enable", url.Values{"zone": {zone}}, nil)
}

func (c *Client) DisableZone(ctx context.Context, zone string) error {
	return c.Do(ctx, "/api/zones/disable", url.Values{"zone": {zone}}, nil)
}

// ZoneRecords lists every record in zone.
func (c *Client) ZoneRecords(ctx context.Context, zone string) ([]model.Record, error) {
	var out struct {
		Records []model.Record `json:"records"`
	}
	err := c.Do(ctx, "/api/zones/records/get", url.Values{
		"domain":   {zone},
		"zone":     {zone},
		"listZone": {"true"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Records, nil
}
