package main

import (
	"errors"
	"fmt"

	"fieldsync/backend"
	backendsync "fieldsync/backend/sync"
	"fieldsync/internal/app"
	"fieldsync/internal/cache"
	"fieldsync/internal/cli"
	"fieldsync/internal/credentials"
	fsync "fieldsync/internal/sync"
	"fieldsync/internal/utils"

	"github.com/spf13/cobra"
)

// newSyncCmd creates the sync command with all subcommands
func newSyncCmd(s *session) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending changes and pull remote records",
		Long: `Run one sync cycle against the configured server.

The cycle pushes every pending local change in dependency order (customers
before work orders and bills) and then pulls every entity kind. Records
still waiting for a server id are held back and retried on the next cycle.
Transient failures are retried with backoff.

Examples:
  fieldsync sync                  # Perform sync
  fieldsync sync -o json          # Print the result as JSON

  fieldsync sync status           # Show sync status
  fieldsync sync queue            # Show pending records`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			server := a.Config.Remote.BaseURL
			if !a.CheckConnectivity(ctx) {
				return utils.ErrServerOffline(server, "health check failed")
			}

			result, syncErr := a.Sync(ctx)
			handled, err := utils.Write(out, s.output, result)
			if err != nil {
				return err
			}
			if !handled {
				cli.PrintToasts(out, a.Board.Snapshot())
				cli.PrintSyncResult(out, result)
			}
			return explainSyncError(server, result, syncErr)
		},
	}

	syncCmd.AddCommand(newSyncStatusCmd(s))
	syncCmd.AddCommand(newSyncQueueCmd(s))
	return syncCmd
}

// explainSyncError turns a cycle outcome into the error the user sees
func explainSyncError(server string, result *backendsync.SyncResult, err error) error {
	var retryable *backendsync.RetryableFailuresError
	switch {
	case err == nil:
		if result != nil && result.FailedRecords > 0 {
			return utils.ErrSyncFailed(result.FailedRecords)
		}
		return nil
	case errors.Is(err, backend.ErrAuthRequired):
		if errors.Is(err, credentials.ErrTokenExpired) {
			return utils.ErrSessionExpired()
		}
		return utils.ErrNotLoggedIn(server)
	case errors.Is(err, fsync.ErrOffline):
		return utils.ErrServerOffline(server, "connection lost during sync")
	case errors.As(err, &retryable):
		return utils.ErrSyncFailed(len(retryable.Failures))
	}
	return fmt.Errorf("sync failed: %w", err)
}

// newSyncStatusCmd creates the 'sync status' command
func newSyncStatusCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Long: `Display current synchronization status including:
- Online/offline state of the server
- Where the access token comes from
- Pending records per entity kind
- Last pull time per entity kind
- The outcome of the last sync, from any process`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			report, err := buildStatusReport(cmd, a)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			handled, err := utils.Write(out, s.output, report)
			if err != nil || handled {
				return err
			}
			cli.PrintStatus(out, report)
			return nil
		},
	}
}

func buildStatusReport(cmd *cobra.Command, a *app.App) (cli.StatusReport, error) {
	ctx := cmd.Context()
	report := cli.StatusReport{
		Server:   a.Config.Remote.BaseURL,
		Online:   a.CheckConnectivity(ctx),
		Login:    string(credentials.SourceNone),
		Database: a.DB.Path(),
		LastPull: map[backend.Kind]string{},
	}

	if _, err := a.Tokens.Token(ctx); err == nil {
		report.Login = string(a.Tokens.Source())
	}

	pending, err := a.Store.PendingCounts(ctx)
	if err != nil {
		return report, err
	}
	report.Pending = pending

	for _, kind := range backend.SyncedKinds() {
		at, ok, err := a.Engine.LastPulled(ctx, kind)
		if err != nil {
			return report, err
		}
		if ok {
			report.LastPull[kind] = at
		}
	}

	stats, err := a.DB.GetStats(ctx)
	if err != nil {
		return report, err
	}
	report.Stats = &stats

	last, ok, err := cache.LoadLastSync()
	if err != nil {
		utils.Component("cli").Debug("failed to read last sync", "error", err)
	}
	if ok {
		report.LastSync = last
	}
	return report, nil
}

// newSyncQueueCmd creates the 'sync queue' command
func newSyncQueueCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List records waiting to be pushed",
		Long: `List every pending record in push order with its operation and the
error recorded by the last attempt.

Examples:
  fieldsync sync queue
  fieldsync sync queue -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			queue, err := a.Store.Queue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			handled, err := utils.Write(out, s.output, queue)
			if err != nil || handled {
				return err
			}
			cli.PrintQueue(out, queue)
			return nil
		},
	}
}

// newPullCmd creates the pull command
func newPullCmd(s *session) *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download remote records without pushing",
		Long: `Download records from the server into the local database.

Without flags, only entity kinds that were never pulled are fetched. With
--initial, or when the local database is empty, every kind is pulled after
checking for a usable login. Locally pending records are never overwritten.

Examples:
  fieldsync pull              # Fill in kinds never pulled
  fieldsync pull --initial    # Pull everything`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			server := a.Config.Remote.BaseURL

			if !a.CheckConnectivity(ctx) {
				return utils.ErrServerOffline(server, "health check failed")
			}

			full := initial
			if !full {
				if full, err = a.Engine.IsDatabaseEmpty(ctx); err != nil {
					return err
				}
			}
			if full {
				result, err := a.Engine.InitialPullAll(ctx, a.Gate)
				if err != nil {
					return explainSyncError(server, result, err)
				}
				a.Board.BumpVersion()
				handled, err := utils.Write(out, s.output, result)
				if err != nil || handled {
					return err
				}
				cli.PrintSyncResult(out, result)
				return nil
			}

			var pulled []backend.Kind
			for _, kind := range backend.SyncedKinds() {
				ran, err := a.Engine.EnsurePulled(ctx, kind)
				if err != nil {
					return explainSyncError(server, nil, err)
				}
				if ran {
					pulled = append(pulled, kind)
				}
			}
			if len(pulled) > 0 {
				a.Board.BumpVersion()
			}
			handled, err := utils.Write(out, s.output, pulled)
			if err != nil || handled {
				return err
			}
			if len(pulled) == 0 {
				fmt.Fprintln(out, "Every kind has been pulled before. Use --initial to pull again.")
				return nil
			}
			for _, kind := range pulled {
				fmt.Fprintf(out, "✓ pulled %s\n", kind)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&initial, "initial", false, "Pull every entity kind")
	return cmd
}
