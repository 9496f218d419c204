package technitium

import (
	"context"
	"net/url"
	"strconv"

	"isotope/internal/model"
)

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var out struct {
		Users []model.User `json:"users"`
	}
	if err := c.Do(ctx, "/api/admin/users/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) CreateUser(ctx context.Context, username, password, displayName string) error {
	params := url.Values{"user": {username}, "pass": {password}}
	if displayName != "" {
		params.Set("displayName", displayName)
	}
	return c.SubmitDo(ctx, "/api/admin/users/create", params, nil)
}

func (c *Client) SetUserDisabled(ctx context.Context, username string, disabled bool) error {
	return c.SubmitDo(ctx, "/api/admin/users/set", url.Values{
		"user":     {username},
		"disabled": {strconv.FormatBool(disabled)},
	}, nil)
}

func (c *Client) DeleteUser(ctx context.Context, username string) error {
	return c.Do(ctx, "/api/admin/users/delete", url.Values{"user": {username}}, nil)
}

func (c *Client) ListSessions(ctx context.Context) ([]model.APISession, error) {
	var out struct {
		Sessions []model.APISession `json:"sessions"`
	}
	if err := c.Do(ctx, "/api/admin/sessions/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) DeleteSession(ctx context.Context, partialToken string) error {
	return c.Do(ctx, "/api/admin/sessions/delete", url.Values{"partialToken": {partialToken}}, nil)
}

func (c *Client) ListGroups(ctx context.Context) ([]model.Group, error) {
	var out struct {
		Groups []model.Group `json:"groups"`
	}
	if err := c.Do(ctx, "/api/admin/groups/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

func (c *Client) CreateGroup(ctx context.Context, name, description string) error {
	return c.SubmitDo(ctx, "/api/admin/groups/create", url.Values{
		"group":       {name},
		"description": {description},
	}, nil)
}

func (c *Client) DeleteGroup(ctx context.Context, name string) error {
	return c.Do(ctx, "/api/admin/groups/delete", url.Values{"group": {name}}, nil)
}

func (c *Client) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	var out struct {
		Permissions []model.Permission `json:"permissions"`
	}
	if err := c.Do(ctx, "/api/admin/permissions/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}
