package credentials

import (
	"os"
	"strings"
)

const (
	// EnvToken is the profile-independent bearer token variable
	EnvToken = "FIELDSYNC_TOKEN"
	// EnvRefreshToken is the profile-independent refresh token variable
	EnvRefreshToken = "FIELDSYNC_REFRESH_TOKEN"
)

// normalizeProfile converts a profile to the format used in environment variables
// Example: "api.example-host.com:8443" becomes "API_EXAMPLE_HOST_COM_8443"
func normalizeProfile(profile string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', ':':
			return '_'
		}
		return r
	}, strings.ToUpper(profile))
}

// getEnvVarName returns the profile-specific variable for a field
func getEnvVarName(profile, field string) string {
	return "FIELDSYNC_" + normalizeProfile(profile) + "_" + strings.ToUpper(field)
}

// lookup prefers FIELDSYNC_<PROFILE>_<FIELD> over the global variable
func lookup(profile, field, global string) string {
	if profile != "" {
		if v := os.Getenv(getEnvVarName(profile, field)); v != "" {
			return v
		}
	}
	return os.Getenv(global)
}

// GetToken retrieves the bearer token from environment variables
func GetToken(profile string) string {
	return lookup(profile, "TOKEN", EnvToken)
}

// GetRefreshToken retrieves the refresh token from environment variables
func GetRefreshToken(profile string) string {
	return lookup(profile, "REFRESH_TOKEN", EnvRefreshToken)
}

// HasToken checks if a token exists in environment variables
func HasToken(profile string) bool {
	return GetToken(profile) != ""
}
