package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldsync/internal/credentials"
	"fieldsync/internal/utils"

	"github.com/spf13/cobra"
)

// newLoginCmd creates the login command
func newLoginCmd(s *session) *cobra.Command {
	var (
		prompt       bool
		token        string
		refreshToken string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token in the system keyring",
		Long: `Store the access token (and optionally a refresh token) for the configured
server in the system keyring. Tokens are looked up in this order:
keyring, FIELDSYNC_<PROFILE>_TOKEN / FIELDSYNC_TOKEN, then remote.token in
the config file.

Examples:
  fieldsync login --prompt                    # Hidden prompt for both tokens
  fieldsync login --token eyJ... --refresh-token eyJ...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !credentials.IsAvailable() {
				return utils.WrapWithSuggestion(
					fmt.Errorf("system keyring is not available"),
					"Set FIELDSYNC_TOKEN or remote.token in the config file instead",
				)
			}

			if prompt {
				var err error
				if token, err = utils.ReadSecret("Access token"); err != nil {
					return err
				}
				refreshToken, err = utils.ReadSecret("Refresh token (optional)")
				if err != nil && !errors.Is(err, utils.ErrNoInput) {
					return err
				}
			}
			token = strings.TrimSpace(token)
			refreshToken = strings.TrimSpace(refreshToken)
			if token == "" {
				return fmt.Errorf("no token given: use --prompt or --token")
			}

			profile := credentials.ProfileFor(s.cfg.Remote.BaseURL)
			if err := credentials.StoreSession(profile, token, refreshToken); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in to %s\n", s.cfg.Remote.BaseURL)
			if exp, ok := credentials.ExpiresAt(token); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "  token expires %s\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&prompt, "prompt", false, "Read tokens from a hidden prompt")
	cmd.Flags().StringVar(&token, "token", "", "Access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token")
	cmd.MarkFlagsMutuallyExclusive("prompt", "token")
	return cmd
}

// newLogoutCmd creates the logout command
func newLogoutCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored tokens from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := credentials.ProfileFor(s.cfg.Remote.BaseURL)
			if err := credentials.DeleteSession(profile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged out of %s\n", s.cfg.Remote.BaseURL)
			if credentials.HasToken(profile) {
				fmt.Fprintln(cmd.OutOrStdout(), "  a token is still set in the environment")
			}
			return nil
		},
	}
}

// whoami is what the whoami command reports
type whoami struct {
	Server    string `json:"server" yaml:"server"`
	Subject   string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Source    string `json:"source" yaml:"source"`
	ExpiresAt string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired   bool   `json:"expired" yaml:"expired"`
}

// newWhoamiCmd creates the whoami command
func newWhoamiCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show which token is used and when it expires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := credentials.NewResolver(credentials.ProfileFor(s.cfg.Remote.BaseURL), s.cfg.Remote.Token)
			if s.noKeyring {
				resolver = resolver.WithoutKeyring()
			}
			creds, err := resolver.Resolve()
			if err != nil {
				return utils.ErrNotLoggedIn(s.cfg.Remote.BaseURL)
			}

			info := whoami{
				Server:  s.cfg.Remote.BaseURL,
				Subject: credentials.Subject(creds.Token),
				Source:  string(creds.Source),
				Expired: credentials.IsExpired(creds.Token, time.Now()),
			}
			if exp, ok := credentials.ExpiresAt(creds.Token); ok {
				info.ExpiresAt = exp.UTC().Format(time.RFC3339)
			}

			out := cmd.OutOrStdout()
			handled, err := utils.Write(out, s.output, info)
			if err != nil || handled {
				return err
			}
			subject := info.Subject
			if subject == "" {
				subject = "(opaque token)"
			}
			fmt.Fprintf(out, "%s on %s (from %s)\n", subject, info.Server, info.Source)
			switch {
			case info.ExpiresAt == "":
				fmt.Fprintln(out, "Token does not expire")
			case info.Expired:
				fmt.Fprintf(out, "Token expired at %s\n", info.ExpiresAt)
			default:
				fmt.Fprintf(out, "Token expires at %s\n", info.ExpiresAt)
			}
			return nil
		},
	}
}
