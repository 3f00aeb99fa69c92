package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"fieldsync/internal/utils"
)

// Source indicates where credentials were found
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceConfig  Source = "config"
	SourceNone    Source = "none"
)

// Credentials is a resolved token pair
type Credentials struct {
	Token        string
	RefreshToken string
	Source       Source
}

// Resolver finds the token of one profile.
// Priority order: Keyring > Environment Variables > Config
type Resolver struct {
	profile     string
	configToken string
	keyring     bool
}

// NewResolver creates a resolver for profile. configToken is the token from
// the config file, if any.
func NewResolver(profile, configToken string) *Resolver {
	return &Resolver{
		profile:     profile,
		configToken: configToken,
		keyring:     true,
	}
}

// WithoutKeyring skips the keyring lookup
func (r *Resolver) WithoutKeyring() *Resolver {
	r.keyring = false
	return r
}

// Profile returns the profile the resolver looks up
func (r *Resolver) Profile() string {
	return r.profile
}

// Resolve returns the first token found with Source indicating where
func (r *Resolver) Resolve() (*Credentials, error) {
	if r.profile == "" {
		return nil, fmt.Errorf("profile is required for credential resolution")
	}

	// Priority 1: keyring
	if r.keyring && IsAvailable() {
		token, err := Get(r.profile, AccountAccessToken)
		if err == nil {
			creds := &Credentials{Token: token, Source: SourceKeyring}
			if refresh, err := Get(r.profile, AccountRefreshToken); err == nil {
				creds.RefreshToken = refresh
			}
			return creds, nil
		}
		if !errors.Is(err, ErrNoCredentials) {
			utils.Component("credentials").Warn("keyring lookup failed", "profile", r.profile, "error", err)
		}
	}

	// Priority 2: environment variables
	if token := GetToken(r.profile); token != "" {
		return &Credentials{
			Token:        token,
			RefreshToken: GetRefreshToken(r.profile),
			Source:       SourceEnv,
		}, nil
	}

	// Priority 3: config file
	if r.configToken != "" {
		return &Credentials{Token: r.configToken, Source: SourceConfig}, nil
	}

	return nil, fmt.Errorf("%w for profile %q (tried: keyring, environment variables, config)", ErrNoCredentials, r.profile)
}

// ProfileFor derives the profile name from the service base URL: its host
// and port
func ProfileFor(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.TrimSpace(baseURL)
	}
	return strings.ToLower(u.Host)
}
