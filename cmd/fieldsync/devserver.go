package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"fieldsync/internal/cli"
	"fieldsync/internal/config"
	"fieldsync/internal/devserver"
	"fieldsync/internal/utils"

	"github.com/spf13/cobra"
)

// newDevserverCmd creates the devserver command
func newDevserverCmd() *cobra.Command {
	var (
		addr     string
		secret   string
		subject  string
		tokenTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory field-service API for local testing",
		Long: `Serve the field-service REST API from memory. Data is lost on exit.

With --secret every /api route except /api/health requires a bearer token
signed with that secret. A token pair for --subject is printed at start.

Examples:
  fieldsync devserver
  fieldsync devserver --addr :9090 --secret dev`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := devserver.New(devserver.Options{Secret: secret, TokenTTL: tokenTTL})
			out := cmd.OutOrStdout()

			if secret != "" {
				token, err := srv.IssueToken(subject, tokenTTL)
				if err != nil {
					return err
				}
				refresh, err := srv.IssueRefreshToken(subject, 30*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "FIELDSYNC_TOKEN=%s\n", token)
				fmt.Fprintf(out, "FIELDSYNC_REFRESH_TOKEN=%s\n", refresh)
			}
			fmt.Fprintf(out, "Serving on %s (Ctrl+C to stop)\n", addr)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret for bearer tokens (empty disables auth)")
	cmd.Flags().StringVar(&subject, "subject", "dev-user", "Subject of the printed tokens")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", time.Hour, "Lifetime of issued access tokens")
	return cmd
}

// newResetCmd creates the reset command
func newResetCmd(s *session) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all local data",
		Long: `Delete every local record, including changes not yet synced, and the
pull stamps. The next pull downloads everything again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !yes {
				stats, err := a.DB.GetStats(ctx)
				if err != nil {
					return err
				}
				question := "Delete all local data?"
				if n := stats.TotalPending(); n > 0 {
					question = fmt.Sprintf("%d change(s) are not synced yet. Delete all local data?", n)
				}
				ok, err := utils.Confirm(cmd.InOrStdin(), out, question)
				if err != nil && !errors.Is(err, utils.ErrNoInput) {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Cancelled")
					return nil
				}
			}

			if err := a.DB.Reset(ctx); err != nil {
				return err
			}
			if err := a.DB.Vacuum(); err != nil {
				return fmt.Errorf("failed to compact database: %w", err)
			}
			a.Board.BumpVersion()
			fmt.Fprintln(out, "✓ Local data deleted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// newConfigCmd creates the config command with its subcommands
func newConfigCmd(s *session) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the sample config if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			created, err := config.EnsureConfigFile(path, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Wrote", path)
			}
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *s.cfg
			if shown.Remote.Token != "" {
				shown.Remote.Token = "********"
			}
			return utils.WriteYAML(cmd.OutOrStdout(), shown)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			_, statErr := os.Stat(path)
			if errors.Is(statErr, os.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), path, cli.Dim("(not created, defaults in use)"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return configCmd
}
