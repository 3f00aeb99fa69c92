package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"fieldsync/backend"
	backendsync "fieldsync/backend/sync"
	"fieldsync/internal/app"
	fsync "fieldsync/internal/sync"
	"fieldsync/internal/tui"
	"fieldsync/internal/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runLoops runs the connectivity monitor and the coordinator until ctx is
// done. A first cycle starts right away when the server is reachable.
func runLoops(ctx context.Context, a *app.App) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Monitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.Coordinator.Run(ctx)
		return nil
	})
	if a.CheckConnectivity(ctx) {
		a.Coordinator.TriggerAsync(ctx)
	}
	return g.Wait()
}

// newDaemonCmd creates the daemon command
func newDaemonCmd(s *session) *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep syncing in the foreground until interrupted",
		Long: `Run the connectivity monitor and the sync coordinator until SIGINT or
SIGTERM. A sync starts at launch and every time the server becomes
reachable again.

Logs rotate into the file from log.file in the config, or --log-file.

Examples:
  fieldsync daemon
  fieldsync daemon --log-file ~/.local/state/fieldsync/daemon.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if logFile != "" {
				opts := s.cfg.LogOptions()
				path, err := utils.ExpandPath(logFile)
				if err != nil {
					return err
				}
				opts.File = path
				if err := utils.GetLogger().Configure(opts); err != nil {
					return err
				}
			}
			a, err := s.open()
			if err != nil {
				return err
			}

			log := utils.Component("daemon")
			log.Info("daemon started", "server", a.Config.Remote.BaseURL, "database", a.DB.Path())
			fmt.Fprintln(cmd.OutOrStdout(), "Syncing with", a.Config.Remote.BaseURL, "(Ctrl+C to stop)")

			err = runLoops(cmd.Context(), a)
			log.Info("daemon stopping")
			return err
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Write rotating logs to this file")
	return cmd
}

// newWatchCmd creates the watch command
func newWatchCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live view of sync status",
		Long: `Open a terminal view of toasts, the sync alert, the pending queue, the
data version and the online state. The daemon loop runs in the same
process.

Keys:
  s        sync now
  r        refresh pending counts
  q, esc   quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, s)
		},
	}
}

// runWatch opens the live status view with the sync loops running behind it
func runWatch(cmd *cobra.Command, s *session) error {
	a, err := s.open()
	if err != nil {
		return err
	}
	// keep log lines off the alternate screen
	if s.cfg.Log.File == "" {
		utils.GetLogger().SetOutput(io.Discard)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	loops := make(chan error, 1)
	go func() { loops <- runLoops(ctx, a) }()

	err = tui.Run(ctx, tui.Deps{
		Board: a.Board,
		Sync: func(ctx context.Context) (*backendsync.SyncResult, error) {
			return a.Sync(ctx)
		},
		Pending: func(ctx context.Context) (map[backend.Kind]int, error) {
			return a.Store.PendingCounts(ctx)
		},
	})
	cancel()
	if loopErr := <-loops; err == nil {
		err = loopErr
	}
	return err
}

// newBackgroundSyncCmd creates a hidden command that runs sync in background.
// This is spawned as a separate process to allow the main CLI to exit immediately.
func newBackgroundSyncCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:    fsync.BackgroundCommand,
		Hidden: true,
		Short:  "Internal command for background sync (do not call directly)",
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				utils.Component("background").Warn("failed to open app", "error", err)
				return nil
			}
			// let the parent process finish its output first
			time.Sleep(100 * time.Millisecond)
			return a.RunBackground(cmd.Context())
		},
	}
}
