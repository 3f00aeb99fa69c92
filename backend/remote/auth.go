package remote

import (
	"context"
	"encoding/json"
	"net/http"

	"fieldsync/backend"
)

// Session is a token pair issued by the service
type Session struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshSession exchanges a refresh token for a new session. The request
// carries no bearer token, so the client is normally built without a
// TokenSource.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	const op = "RefreshSession"
	env, err := c.call(ctx, op, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}

	var sess Session
	if raw, ok := env["token"]; ok {
		_ = json.Unmarshal(raw, &sess.Token)
	}
	if raw, ok := env["refreshToken"]; ok {
		_ = json.Unmarshal(raw, &sess.RefreshToken)
	}
	if sess.Token == "" {
		return nil, backend.NewRemoteError(op, http.StatusOK, "response has no token")
	}
	return &sess, nil
}

// Refresher adapts RefreshSession to the shape the token manager expects
func (c *Client) Refresher() func(ctx context.Context, refreshToken string) (string, string, error) {
	return func(ctx context.Context, refreshToken string) (string, string, error) {
		sess, err := c.RefreshSession(ctx, refreshToken)
		if err != nil {
			return "", "", err
		}
		return sess.Token, sess.RefreshToken, nil
	}
}
