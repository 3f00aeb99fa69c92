package credentials

import (
	"context"
	"fmt"
	"log/slog"

	"fieldsync/backend"
	"fieldsync/internal/utils"
)

type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Gate lets a sync cycle start only with a usable token
type Gate struct {
	tokens tokenSource
	log    *slog.Logger
}

// NewGate creates a gate over tokens
func NewGate(tokens tokenSource) *Gate {
	return &Gate{tokens: tokens, log: utils.Component("auth-gate")}
}

// WaitForAuth returns a usable token or an error wrapping
// backend.ErrAuthRequired. No request is sent to the service.
func (g *Gate) WaitForAuth(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := g.tokens.Token(ctx)
	if err != nil {
		g.log.Warn("sync blocked", "error", err)
		return "", fmt.Errorf("%w: %w", backend.ErrAuthRequired, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: token unavailable", backend.ErrAuthRequired)
	}
	g.log.Debug("authentication verified")
	return token, nil
}
