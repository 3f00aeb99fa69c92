package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fieldsync/backend"
	backendsync "fieldsync/backend/sync"
	"fieldsync/internal/utils"

	"github.com/gofrs/flock"
)

// Status texts shown to the user
const (
	MsgOffline        = "You are offline. Will sync when online."
	MsgLoginRequired  = "Please login to sync data"
	MsgSessionExpired = "Session expired. Please login again."
	MsgAuthAlert      = "Authentication required. Please login."
	MsgSynced         = "All changes synced with cloud."
	MsgSyncFailed     = "Sync failed. Will retry."
	MsgSavedSyncing   = "Saved locally. Syncing…"
	MsgSavedOffline   = "Saved offline. Will sync when online."
)

const (
	// DefaultRetries is the number of whole-cycle attempts per trigger
	DefaultRetries = 3
	// DefaultBackoffBase is multiplied by the attempt number between attempts
	DefaultBackoffBase = 500 * time.Millisecond
)

var (
	// ErrOffline is returned by TriggerSync when the service is known unreachable
	ErrOffline = errors.New("offline")

	// ErrShutdown is returned once the coordinator is shutting down
	ErrShutdown = errors.New("sync coordinator is shut down")
)

// State is the orchestrator's position in a sync cycle
type State int32

const (
	StateIdle State = iota
	StateGating
	StatePushing
	StatePulling
	StateSettled
	StateRetrying
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGating:
		return "gating"
	case StatePushing:
		return "pushing"
	case StatePulling:
		return "pulling"
	case StateSettled:
		return "settled"
	case StateRetrying:
		return "retrying"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Engine runs one push-then-pull pass
type Engine interface {
	Sync(ctx context.Context) (*backendsync.SyncResult, error)
}

// Connectivity reports whether the remote service is reachable
type Connectivity interface {
	IsOnline() bool
	Subscribe() (<-chan bool, func())
}

// Options tunes the retry loop
type Options struct {
	Retries     int
	BackoffBase time.Duration

	// LockPath names a file locked for the whole of a cycle so processes
	// sharing one database never sync at the same time. Empty disables it.
	LockPath string
}

// SyncCoordinator runs sync cycles one at a time, retries them and reports
// progress on a StatusBoard
type SyncCoordinator struct {
	engine  Engine
	gate    backendsync.AuthGate
	monitor Connectivity
	board   *StatusBoard

	retries int
	backoff time.Duration

	// Goroutine management
	wg sync.WaitGroup

	inFlight atomic.Bool
	fileLock *flock.Flock
	shutdown atomic.Bool
	state    atomic.Int32

	mu      sync.Mutex
	lastRun LastRun

	log *slog.Logger
}

// NewSyncCoordinator creates a new sync coordinator
func NewSyncCoordinator(engine Engine, gate backendsync.AuthGate, monitor Connectivity, board *StatusBoard, opts Options) (*SyncCoordinator, error) {
	if engine == nil || gate == nil || monitor == nil || board == nil {
		return nil, fmt.Errorf("engine, auth gate, monitor and status board are required")
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.BackoffBase < 0 {
		opts.BackoffBase = 0
	}

	sc := &SyncCoordinator{
		engine:  engine,
		gate:    gate,
		monitor: monitor,
		board:   board,
		retries: opts.Retries,
		backoff: opts.BackoffBase,
		log:     utils.Component("coordinator"),
	}
	if opts.LockPath != "" {
		sc.fileLock = flock.New(opts.LockPath)
	}
	if phased, ok := engine.(interface{ OnPhase(func(backendsync.Phase)) }); ok {
		phased.OnPhase(func(p backendsync.Phase) {
			switch p {
			case backendsync.PhasePush:
				sc.setState(StatePushing)
			case backendsync.PhasePull:
				sc.setState(StatePulling)
			}
		})
	}
	board.SetOnline(monitor.IsOnline())
	return sc, nil
}

// State returns the current or last reached state
func (sc *SyncCoordinator) State() State {
	return State(sc.state.Load())
}

func (sc *SyncCoordinator) setState(s State) {
	if prev := State(sc.state.Swap(int32(s))); prev != s {
		sc.log.Debug("state", "from", prev, "to", s)
	}
}

// Board returns the status board the coordinator reports on
func (sc *SyncCoordinator) Board() *StatusBoard {
	return sc.board
}

// LastRun is the outcome of a finished trigger
type LastRun struct {
	Result *backendsync.SyncResult
	Err    error
	At     time.Time
}

// LastRun returns the outcome of the last finished trigger. At is zero
// before the first one.
func (sc *SyncCoordinator) LastRun() LastRun {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.lastRun
}

// TriggerSync runs one sync cycle with retries and returns when it settled.
// It returns backend.ErrSyncInFlight without doing anything when a cycle is
// already running here or in another process holding the lock file.
func (sc *SyncCoordinator) TriggerSync(ctx context.Context) (*backendsync.SyncResult, error) {
	if sc.shutdown.Load() {
		return nil, ErrShutdown
	}
	if !sc.inFlight.CompareAndSwap(false, true) {
		return nil, backend.ErrSyncInFlight
	}
	sc.wg.Add(1)
	defer sc.wg.Done()
	defer sc.inFlight.Store(false)

	if sc.fileLock != nil {
		locked, err := sc.fileLock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !locked {
			sc.log.Debug("another process is syncing", "lock", sc.fileLock.Path())
			return nil, backend.ErrSyncInFlight
		}
		defer func() { _ = sc.fileLock.Unlock() }()
	}

	result, err := sc.run(ctx)

	sc.mu.Lock()
	sc.lastRun = LastRun{Result: result, Err: err, At: time.Now()}
	sc.mu.Unlock()
	return result, err
}

// TriggerAsync starts TriggerSync in the background. Triggers arriving while
// a cycle runs are dropped.
func (sc *SyncCoordinator) TriggerAsync(ctx context.Context) {
	if sc.shutdown.Load() || sc.inFlight.Load() {
		return
	}
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		if _, err := sc.TriggerSync(ctx); err != nil && !errors.Is(err, backend.ErrSyncInFlight) {
			sc.log.Debug("background sync ended with error", "error", err)
		}
	}()
}

func (sc *SyncCoordinator) run(ctx context.Context) (*backendsync.SyncResult, error) {
	if !sc.monitor.IsOnline() {
		sc.board.AddToast(MsgOffline, SeverityInfo, 3*time.Second)
		sc.setState(StateIdle)
		return nil, ErrOffline
	}

	sc.setState(StateGating)
	if _, err := sc.gate.WaitForAuth(ctx); err != nil {
		sc.log.Warn("sync blocked: not authenticated", "error", err)
		sc.board.AddToast(MsgLoginRequired, SeverityError, 4*time.Second)
		sc.setState(StateAborted)
		return nil, asAuthRequired(err)
	}

	var (
		result *backendsync.SyncResult
		last   error
	)
	for attempt := 1; attempt <= sc.retries; attempt++ {
		if attempt > 1 {
			sc.setState(StateGating)
			if _, err := sc.gate.WaitForAuth(ctx); err != nil {
				return result, sc.abortAuth(asAuthRequired(err))
			}
		}

		sc.log.Info("sync attempt starting", "attempt", attempt, "of", sc.retries)
		res, err := sc.attempt(ctx)
		if res != nil {
			result = res
		}
		if err == nil {
			if result == nil {
				result = &backendsync.SyncResult{}
			}
			sc.board.ClearAlert()
			sc.board.BumpVersion()
			sc.board.AddToast(MsgSynced, SeveritySuccess, 3*time.Second)
			sc.setState(StateSettled)
			sc.log.Info("sync completed", "attempt", attempt, "result", result.String())
			return result, nil
		}
		if backend.IsAuthError(err) {
			return result, sc.abortAuth(err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			sc.setState(StateIdle)
			return result, ctxErr
		}

		last = err
		sc.log.Warn("sync attempt failed", "attempt", attempt, "error", err)
		if attempt == sc.retries {
			break
		}

		sc.setState(StateRetrying)
		if err := sleepCtx(ctx, sc.backoff*time.Duration(attempt)); err != nil {
			sc.setState(StateIdle)
			return result, err
		}
	}

	sc.board.SetAlert(MsgSyncFailed)
	sc.board.AddToast(MsgSyncFailed, SeverityError, 3*time.Second)
	sc.setState(StateFailed)
	return result, &backend.ExhaustedRetriesError{Attempts: sc.retries, Last: last}
}

// attempt runs one engine pass. A panic fails the attempt like any other error.
func (sc *SyncCoordinator) attempt(ctx context.Context) (result *backendsync.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			sc.log.Error("panic in sync cycle", "panic", r)
			err = fmt.Errorf("panic in sync cycle: %v", r)
		}
	}()
	return sc.engine.Sync(ctx)
}

func (sc *SyncCoordinator) abortAuth(err error) error {
	sc.log.Error("sync aborted: authentication failed", "error", err)
	sc.board.AddToast(MsgSessionExpired, SeverityError, 5*time.Second)
	sc.board.SetAlert(MsgAuthAlert)
	sc.setState(StateAborted)
	return err
}

func asAuthRequired(err error) error {
	if errors.Is(err, backend.ErrAuthRequired) {
		return err
	}
	return fmt.Errorf("%w: %v", backend.ErrAuthRequired, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NotifyLocalSave tells the user a local write landed and whether it will
// sync now or later
func (sc *SyncCoordinator) NotifyLocalSave() {
	if sc.monitor.IsOnline() {
		sc.board.AddToast(MsgSavedSyncing, SeverityInfo, 2500*time.Millisecond)
		return
	}
	sc.board.AddToast(MsgSavedOffline, SeverityInfo, 3*time.Second)
}

// Run follows connectivity transitions until ctx is done and starts a sync
// whenever the service becomes reachable
func (sc *SyncCoordinator) Run(ctx context.Context) {
	transitions, unsubscribe := sc.monitor.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			sc.board.SetOnline(online)
			if online {
				sc.log.Info("back online, starting sync")
				sc.TriggerAsync(ctx)
			}
		}
	}
}

// Shutdown gracefully shuts down the coordinator, waiting for pending syncs.
// It reports whether they finished within timeout.
func (sc *SyncCoordinator) Shutdown(timeout time.Duration) bool {
	sc.shutdown.Store(true)

	// Wait for pending syncs with timeout
	done := make(chan struct{})
	go func() {
		sc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		sc.log.Warn("pending syncs did not complete", "timeout", timeout)
		return false
	}
}
