package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringServicePrefix is the prefix for all fieldsync keyring entries
	KeyringServicePrefix = "fieldsync"

	// AccountAccessToken holds the bearer token of a profile
	AccountAccessToken = "access-token"
	// AccountRefreshToken holds the token used to obtain a new bearer token
	AccountRefreshToken = "refresh-token"
)

// ErrNoCredentials is returned when no token is stored anywhere
var ErrNoCredentials = errors.New("no credentials found")

// getServiceName returns the keyring service name for a profile
func getServiceName(profile string) string {
	return fmt.Sprintf("%s-%s", KeyringServicePrefix, profile)
}

// Set stores a secret in the OS keyring
func Set(profile, account, secret string) error {
	if profile == "" {
		return fmt.Errorf("profile cannot be empty")
	}
	if account == "" {
		return fmt.Errorf("account cannot be empty")
	}
	if secret == "" {
		return fmt.Errorf("secret cannot be empty")
	}

	if err := keyring.Set(getServiceName(profile), account, secret); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", account, err)
	}
	return nil
}

// Get retrieves a secret from the OS keyring
func Get(profile, account string) (string, error) {
	if profile == "" {
		return "", fmt.Errorf("profile cannot be empty")
	}
	if account == "" {
		return "", fmt.Errorf("account cannot be empty")
	}

	secret, err := keyring.Get(getServiceName(profile), account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: no %s in keyring for profile %q", ErrNoCredentials, account, profile)
		}
		return "", fmt.Errorf("failed to retrieve %s from keyring: %w", account, err)
	}
	return secret, nil
}

// Delete removes a secret from the OS keyring
func Delete(profile, account string) error {
	if profile == "" {
		return fmt.Errorf("profile cannot be empty")
	}
	if account == "" {
		return fmt.Errorf("account cannot be empty")
	}

	if err := keyring.Delete(getServiceName(profile), account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: no %s in keyring for profile %q", ErrNoCredentials, account, profile)
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", account, err)
	}
	return nil
}

// StoreSession saves a token pair. An empty refresh token removes the stored one.
func StoreSession(profile, token, refreshToken string) error {
	if err := Set(profile, AccountAccessToken, token); err != nil {
		return err
	}
	if refreshToken == "" {
		if err := Delete(profile, AccountRefreshToken); err != nil && !errors.Is(err, ErrNoCredentials) {
			return err
		}
		return nil
	}
	return Set(profile, AccountRefreshToken, refreshToken)
}

// DeleteSession removes both tokens of a profile. Missing entries are ignored.
func DeleteSession(profile string) error {
	for _, account := range []string{AccountAccessToken, AccountRefreshToken} {
		if err := Delete(profile, account); err != nil && !errors.Is(err, ErrNoCredentials) {
			return err
		}
	}
	return nil
}

// IsAvailable checks if the keyring is accessible
func IsAvailable() bool {
	// a working keyring answers ErrNotFound for an entry nobody writes
	_, err := keyring.Get(KeyringServicePrefix+"-keyring-test", "test")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
