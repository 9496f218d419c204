package technitium

import (
	"context"
	"net/url"

	"isotope/internal/model"
)

// Login exchanges credentials for a session token. The login endpoint
// replies without a response member; the user fields sit at the top level
// of the envelope.
func (c *Client) Login(ctx context.Context, username, password string) (*model.LoginInfo, error) {
	var info model.LoginInfo
	err := c.SubmitDo(ctx, "/api/user/login", url.Values{
		"user":        {username},
		"pass":        {password},
		"includeInfo": {"false"},
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Logout invalidates the token in ctx on the server.
func (c *Client) Logout(ctx context.Context) error {
	if err := requireToken(ctx); err != nil {
		return err
	}
	return c.Do(ctx, "/api/user/logout", nil, nil)
}

// Session is the "who am I" call for the token in ctx.
func (c *Client) Session(ctx context.Context) (*model.LoginInfo, error) {
	if err := requireToken(ctx); err != nil {
		return nil, err
	}
	var info model.LoginInfo
	if err := c.Do(ctx, "/api/user/session/get", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.SubmitDo(ctx, "/api/user/changePassword", url.Values{
		"currentPass": {current},
		"pass":        {next},
	}, nil)
}
