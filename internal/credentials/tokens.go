package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldsync/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshWindow is how close to expiry a token gets refreshed
const RefreshWindow = 5 * time.Minute

// ErrTokenExpired is returned when the cached token expired and could not be renewed
var ErrTokenExpired = errors.New("token expired")

// RefreshFunc exchanges a refresh token for a new token pair
type RefreshFunc func(ctx context.Context, refreshToken string) (token, newRefreshToken string, err error)

// TokenManager caches the bearer token of one profile and renews it before
// it expires
type TokenManager struct {
	mu       sync.Mutex
	resolver *Resolver
	refresh  RefreshFunc
	creds    *Credentials
	now      func() time.Time
	log      *slog.Logger
}

// NewTokenManager creates a manager reading tokens through resolver.
// refresh may be nil; renewal then only re-reads the token sources.
func NewTokenManager(resolver *Resolver, refresh RefreshFunc) *TokenManager {
	return &TokenManager{
		resolver: resolver,
		refresh:  refresh,
		now:      time.Now,
		log:      utils.Component("tokens"),
	}
}

// Token returns a token that is valid for at least RefreshWindow when it can
// be renewed, or the current token while it has not expired
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}
	token := m.creds.Token
	exp, ok := ExpiresAt(token)
	if !ok || m.now().Add(RefreshWindow).Before(exp) {
		return token, nil
	}

	renewed, err := m.renewLocked(ctx)
	if err == nil {
		return renewed, nil
	}
	if m.now().Before(exp) {
		m.log.Debug("token renewal failed, using current token", "expires", exp, "error", err)
		return token, nil
	}
	return "", fmt.Errorf("%w at %s: %v", ErrTokenExpired, exp.Format(time.RFC3339), err)
}

// ForceRefresh renews the token regardless of its expiry. It is called after
// the service rejected the current token.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}
	return m.renewLocked(ctx)
}

// Source reports where the cached token came from
func (m *TokenManager) Source() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return SourceNone
	}
	return m.creds.Source
}

func (m *TokenManager) loadLocked() error {
	if m.creds != nil {
		return nil
	}
	creds, err := m.resolver.Resolve()
	if err != nil {
		return err
	}
	m.creds = creds
	m.log.Debug("token loaded", "source", creds.Source)
	return nil
}

// renewLocked uses the refresh token when there is one, otherwise it re-reads
// the sources and accepts a different unexpired token (a login from another
// process)
func (m *TokenManager) renewLocked(ctx context.Context) (string, error) {
	if m.refresh != nil && m.creds.RefreshToken != "" {
		token, refreshToken, err := m.refresh(ctx, m.creds.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("failed to refresh token: %w", err)
		}
		if refreshToken == "" {
			refreshToken = m.creds.RefreshToken
		}
		m.creds = &Credentials{Token: token, RefreshToken: refreshToken, Source: m.creds.Source}
		if m.creds.Source == SourceKeyring {
			if err := StoreSession(m.resolver.Profile(), token, refreshToken); err != nil {
				m.log.Warn("failed to persist refreshed token", "error", err)
			}
		}
		m.log.Info("token refreshed", "source", m.creds.Source)
		return token, nil
	}

	fresh, err := m.resolver.Resolve()
	if err != nil {
		return "", err
	}
	if fresh.Token == m.creds.Token || IsExpired(fresh.Token, m.now()) {
		return "", errors.New("no newer token available")
	}
	m.creds = fresh
	return fresh.Token, nil
}

func parseClaims(token string) (*jwt.RegisteredClaims, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// ExpiresAt reads the exp claim of a JWT. Opaque tokens report false.
func ExpiresAt(token string) (time.Time, bool) {
	claims, ok := parseClaims(token)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Subject reads the sub claim of a JWT
func Subject(token string) string {
	claims, ok := parseClaims(token)
	if !ok {
		return ""
	}
	return claims.Subject
}

// IsExpired reports whether token carries an exp claim at or before now
func IsExpired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	return ok && !now.Before(exp)
}
