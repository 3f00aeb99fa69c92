package sync

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"fieldsync/backend"
	"fieldsync/internal/utils"
)

// BackgroundCommand is the hidden CLI command run by SpawnBackgroundSync
const BackgroundCommand = "_internal_background_sync"

// SpawnBackgroundSync spawns a detached background process to handle sync.
// This allows the CLI to exit immediately while sync continues. args are
// passed before the hidden command (e.g. --config).
func SpawnBackgroundSync(args ...string) error {
	// Get the current executable path
	executable, err := os.Executable()
	if err != nil {
		return err
	}

	// Resolve symlinks
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return err
	}

	cmd := exec.Command(executable, append(args, BackgroundCommand)...)

	// Detach from parent process
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	// Start the process and don't wait for it
	return cmd.Start()
}

// RunBackgroundSync runs one cycle bounded by timeout. Being offline, an
// in-flight cycle or a missing login are logged, not returned.
func RunBackgroundSync(ctx context.Context, sc *SyncCoordinator, timeout time.Duration) error {
	log := utils.Component("background")
	log.Info("background sync started", "pid", os.Getpid())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := sc.TriggerSync(ctx)
	switch {
	case err == nil:
		log.Info("background sync finished", "result", result.String())
		return nil
	case errors.Is(err, ErrOffline), errors.Is(err, backend.ErrSyncInFlight):
		log.Info("background sync skipped", "reason", err)
		return nil
	case errors.Is(err, backend.ErrAuthRequired):
		log.Warn("background sync needs login", "error", err)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("background sync timed out", "timeout", timeout)
		return err
	}
	log.Error("background sync failed", "error", err)
	return err
}
