// Package app wires configuration, storage, the remote client and the sync
// machinery into one value shared by the CLI commands.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fieldsync/backend"
	"fieldsync/backend/dao"
	"fieldsync/backend/remote"
	backendsync "fieldsync/backend/sync"
	"fieldsync/internal/cache"
	"fieldsync/internal/config"
	"fieldsync/internal/credentials"
	fsync "fieldsync/internal/sync"
	"fieldsync/internal/utils"
)

// App holds the application state
type App struct {
	Config      *config.Config
	DB          *backend.Database
	Store       *dao.Store
	Remote      *remote.Client
	Tokens      *credentials.TokenManager
	Gate        *credentials.Gate
	Engine      *backendsync.SyncManager
	Monitor     *fsync.Monitor
	Board       *fsync.StatusBoard
	Coordinator *fsync.SyncCoordinator

	log *slog.Logger
}

// Options adjusts how New builds the App
type Options struct {
	// NoKeyring skips the system keyring when resolving credentials
	NoKeyring bool
}

// New opens the database and builds the sync stack from cfg
func New(cfg *config.Config, opts Options) (*App, error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	db, err := backend.InitDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		DB:     db,
		Store:  dao.NewStore(db),
		log:    utils.Component("app"),
	}

	resolver := credentials.NewResolver(credentials.ProfileFor(cfg.Remote.BaseURL), cfg.Remote.Token)
	if opts.NoKeyring {
		resolver = resolver.WithoutKeyring()
	}
	// The refresh call must not go through the token manager it feeds
	refresher := remote.NewClient(cfg.Remote.BaseURL, nil, cfg.Remote.Timeout.Duration)
	a.Tokens = credentials.NewTokenManager(resolver, refresher.Refresher())
	a.Gate = credentials.NewGate(a.Tokens)
	a.Remote = remote.NewClient(cfg.Remote.BaseURL, a.Tokens, cfg.Remote.Timeout.Duration)
	a.Engine = backendsync.NewSyncManager(a.Store, a.Remote)

	a.Monitor = fsync.NewMonitor(a.Remote, true, fsync.MonitorOptions{
		PollInterval: cfg.Connectivity.PollInterval.Duration,
		ProbeTimeout: cfg.Connectivity.ProbeTimeout.Duration,
	})
	a.Board = fsync.NewStatusBoard()

	a.Coordinator, err = fsync.NewSyncCoordinator(a.Engine, a.Gate, a.Monitor, a.Board, fsync.Options{
		Retries:     cfg.Sync.Retries,
		BackoffBase: cfg.Sync.BackoffBase.Duration,
		LockPath:    dbPath + ".sync.lock",
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// CheckConnectivity probes the health endpoint once and records the result
func (a *App) CheckConnectivity(ctx context.Context) bool {
	online := a.Monitor.Probe(ctx)
	a.Board.SetOnline(online)
	return online
}

// Sync runs one coordinated cycle and stores its summary for later status calls
func (a *App) Sync(ctx context.Context) (*backendsync.SyncResult, error) {
	result, err := a.Coordinator.TriggerSync(ctx)
	a.saveSummary(result, err)
	return result, err
}

// RunBackground runs the cycle used by the hidden background command
func (a *App) RunBackground(ctx context.Context) error {
	timeout := a.Config.Sync.BackgroundTimeout.Duration
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if !a.CheckConnectivity(ctx) {
		a.log.Info("background sync skipped, server unreachable")
		return nil
	}
	err := fsync.RunBackgroundSync(ctx, a.Coordinator, timeout)
	last := a.Coordinator.LastRun()
	if !last.At.IsZero() {
		a.saveSummary(last.Result, last.Err)
	}
	return err
}

// AfterLocalSave reports a local write and, when auto sync is on, starts a
// detached background sync. configArgs are forwarded to the child process.
func (a *App) AfterLocalSave(configArgs ...string) {
	a.Coordinator.NotifyLocalSave()
	if !a.Config.Sync.AutoSync {
		return
	}
	if err := fsync.SpawnBackgroundSync(configArgs...); err != nil {
		a.log.Warn("failed to start background sync", "error", err)
	}
}

func (a *App) saveSummary(result *backendsync.SyncResult, err error) {
	summary := cache.Summarize(result, err, a.Board.Alert(), time.Now())
	if saveErr := cache.SaveLastSync(summary); saveErr != nil {
		a.log.Debug("failed to save sync summary", "error", saveErr)
	}
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() {
	a.ShutdownWithTimeout(5 * time.Second)
}

// ShutdownWithTimeout waits for pending syncs, then closes the database
func (a *App) ShutdownWithTimeout(timeout time.Duration) {
	if a.Coordinator != nil {
		a.Coordinator.Shutdown(timeout)
	}
	if a.Board != nil {
		a.Board.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.log.Warn("failed to close database", "error", err)
		}
	}
}
