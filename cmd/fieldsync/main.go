package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fieldsync/internal/app"
	"fieldsync/internal/config"
	"fieldsync/internal/utils"

	"github.com/spf13/cobra"
)

// session carries what the commands share: parsed flags, the loaded config
// and the lazily opened App
type session struct {
	configPath string
	verbose    bool
	output     string
	noKeyring  bool

	cfg *config.Config
	app *app.App
}

// open builds the App on first use. Commands that never touch the database
// or the server do not pay for it.
func (s *session) open() (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	a, err := app.New(s.cfg, app.Options{NoKeyring: s.noKeyring})
	if err != nil {
		return nil, err
	}
	s.app = a
	return a, nil
}

// configArgs are forwarded to the detached background sync process
func (s *session) configArgs() []string {
	if s.configPath == "" {
		return nil
	}
	return []string{"--config", s.configPath}
}

func (s *session) close() {
	if s.app != nil {
		s.app.Shutdown()
		s.app = nil
	}
	if err := utils.GetLogger().Close(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to close log:", err)
	}
}

func (s *session) loadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if s.configPath != "" {
		config.SetCustomConfigPath(s.configPath)
		path, pathErr := config.GetConfigPath()
		if pathErr != nil {
			return pathErr
		}
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.GetConfig()
	}
	if err != nil {
		return err
	}

	logger := utils.GetLogger()
	if err := logger.Configure(cfg.LogOptions()); err != nil {
		return err
	}
	logger.SetVerbose(s.verbose)
	s.cfg = cfg
	return nil
}

func newRootCmd() (*cobra.Command, *session) {
	s := &session{}

	rootCmd := &cobra.Command{
		Use:   "fieldsync",
		Short: "Local-first sync for field-service records",
		Long: `fieldsync keeps customers, work orders, bills, inventory and bank accounts
in a local SQLite database and synchronizes them with the field-service API.

Local writes never wait for the network. Pending changes are pushed and
remote changes pulled whenever the server is reachable.

Examples:
  fieldsync login --prompt          # Store an access token
  fieldsync pull --initial          # First download of all records
  fieldsync customer add --name Asha --phone 98450
  fieldsync sync                    # Push pending changes, then pull
  fieldsync sync status             # Online state and pending counts
  fieldsync watch                   # Live status view`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.cfg.UI == "tui" {
				return runWatch(cmd, s)
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateFormat(s.output); err != nil {
				return err
			}
			return s.loadConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&s.configPath, "config", "", "Config file or directory (default ~/.config/fieldsync/config.yaml)")
	flags.BoolVarP(&s.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVarP(&s.output, "output", "o", utils.FormatText, "Output format: text, json or yaml")
	flags.BoolVar(&s.noKeyring, "no-keyring", false, "Do not read credentials from the system keyring")
	_ = flags.MarkHidden("no-keyring")
	_ = rootCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(
		[]string{utils.FormatText, utils.FormatJSON, utils.FormatYAML}, cobra.ShellCompDirectiveNoFileComp))

	rootCmd.AddCommand(
		newSyncCmd(s),
		newPullCmd(s),
		newDaemonCmd(s),
		newWatchCmd(s),
		newBackgroundSyncCmd(s),
		newLoginCmd(s),
		newLogoutCmd(s),
		newWhoamiCmd(s),
		newDevserverCmd(),
		newResetCmd(s),
		newConfigCmd(s),
		newCustomerCmd(s),
		newWorkOrderCmd(s),
		newBillCmd(s),
		newItemCmd(s),
		newServiceCmd(s),
		newBankCmd(s),
	)
	return rootCmd, s
}

// execute runs the command tree against args and releases everything the
// commands opened
func execute(ctx context.Context, args []string) error {
	rootCmd, s := newRootCmd()
	defer s.close()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
