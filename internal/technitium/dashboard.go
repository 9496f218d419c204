package technitium

import (
	"context"
	"net/url"

	"isotope/internal/model"
)

// StatsRanges lists the ranges accepted by the dashboard endpoint.
var StatsRanges = []string{"LastHour", "LastDay", "LastWeek", "LastMonth", "LastYear"}

// StatsParams builds the query for a dashboard stats request. Unknown
// ranges fall back to LastHour.
func StatsParams(rangeType string) url.Values {
	for _, r := range StatsRanges {
		if r == rangeType {
			return url.Values{"type": {r}}
		}
	}
	return url.Values{"type": {"LastHour"}}
}

// StatsEndpoint is the dashboard endpoint, exposed for fetch hooks that
// need the raw envelope.
const StatsEndpoint = "/api/dashboard/stats/get"

func (c *Client) Stats(ctx context.Context, rangeType string) (*model.Stats, error) {
	var out struct {
		Stats model.Stats `json:"stats"`
	}
	if err := c.Do(ctx, StatsEndpoint, StatsParams(rangeType), &out); err != nil {
		return nil, err
	}
	return &out.Stats, nil
}

func (c *Client) ClusterState(ctx context.Context) (*model.ClusterState, error) {
	var out model.ClusterState
	if err := c.Do(ctx, "/api/admin/cluster/state", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
