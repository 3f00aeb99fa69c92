package sync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fieldsync/backend"
	"fieldsync/backend/dao"
	"fieldsync/backend/remote"
	backendsync "fieldsync/backend/sync"
	"fieldsync/internal/devserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticNet struct {
	online atomic.Bool
	ch     chan bool
}

func newStaticNet(online bool) *staticNet {
	n := &staticNet{ch: make(chan bool, 4)}
	n.online.Store(online)
	return n
}

func (n *staticNet) IsOnline() bool                   { return n.online.Load() }
func (n *staticNet) Subscribe() (<-chan bool, func()) { return n.ch, func() {} }

type gateFunc func(ctx context.Context) (string, error)

func (f gateFunc) WaitForAuth(ctx context.Context) (string, error) { return f(ctx) }

func allowAll(context.Context) (string, error) { return "token", nil }

type engineFunc func(ctx context.Context) (*backendsync.SyncResult, error)

func (f engineFunc) Sync(ctx context.Context) (*backendsync.SyncResult, error) { return f(ctx) }

type rejectingTokens struct{}

func (rejectingTokens) Token(context.Context) (string, error) { return "stale", nil }
func (rejectingTokens) ForceRefresh(context.Context) (string, error) {
	return "", errors.New("refresh token revoked")
}

type fixture struct {
	store *dao.Store
	srv   *devserver.Server
	board *StatusBoard
	sc    *SyncCoordinator
}

func newFixture(t *testing.T, opts devserver.Options, tokens remote.TokenSource, gate backendsync.AuthGate, online bool) *fixture {
	t.Helper()
	db, err := backend.InitDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	srv := devserver.New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	store := dao.NewStore(db)
	engine := backendsync.NewSyncManager(store, remote.NewClient(ts.URL, tokens, 5*time.Second))
	board := NewStatusBoard()
	t.Cleanup(board.Close)

	sc, err := NewSyncCoordinator(engine, gate, newStaticNet(online), board, Options{BackoffBase: time.Millisecond})
	require.NoError(t, err)
	return &fixture{store: store, srv: srv, board: board, sc: sc}
}

func (f *fixture) addCustomer(t *testing.T) string {
	t.Helper()
	id, err := f.store.Customers.InsertLocal(context.Background(), &backend.Customer{CustomerName: "Asha", PhoneNumber: "98"})
	require.NoError(t, err)
	return id
}

func messages(b *StatusBoard) []string {
	var out []string
	for _, t := range b.Toasts() {
		out = append(out, t.Message)
	}
	return out
}

func TestTransientFailuresThenSuccess(t *testing.T) {
	f := newFixture(t, devserver.Options{}, nil, gateFunc(allowAll), true)
	f.addCustomer(t)
	f.board.SetAlert(MsgSyncFailed)
	f.srv.FailNext(http.MethodPost, "/api/customer", 2, http.StatusServiceUnavailable)

	result, err := f.sc.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PushedRecords)

	assert.Len(t, f.srv.All("customers"), 1, "exactly one remote create")
	assert.Equal(t, 3, f.srv.Count(http.MethodPost, "/api/customer"))
	assert.Empty(t, f.board.Alert())
	assert.Equal(t, uint64(1), f.board.Version())
	assert.Contains(t, messages(f.board), MsgSynced)
	assert.Equal(t, StateSettled, f.sc.State())

	pending, err := f.store.Customers.GetPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExhaustedRetriesSetsAlert(t *testing.T) {
	f := newFixture(t, devserver.Options{}, nil, gateFunc(allowAll), true)
	f.addCustomer(t)
	f.srv.FailNext(http.MethodPost, "/api/customer", 3, http.StatusBadGateway)

	_, err := f.sc.TriggerSync(context.Background())
	var exhausted *backend.ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	assert.Equal(t, MsgSyncFailed, f.board.Alert())
	assert.Contains(t, messages(f.board), MsgSyncFailed)
	assert.Zero(t, f.board.Version())
	assert.Equal(t, StateFailed, f.sc.State())
	assert.Equal(t, 3, f.srv.Count(http.MethodPost, "/api/customer"))

	// no automatic retry after exhaustion
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, f.srv.Count(http.MethodPost, "/api/customer"))

	last := f.sc.LastRun()
	assert.ErrorAs(t, last.Err, &exhausted)
	assert.False(t, last.At.IsZero())
}

func TestGateRejectionMakesNoRequests(t *testing.T) {
	reject := gateFunc(func(context.Context) (string, error) { return "", errors.New("no session") })
	f := newFixture(t, devserver.Options{}, nil, reject, true)
	f.addCustomer(t)

	_, err := f.sc.TriggerSync(context.Background())
	require.ErrorIs(t, err, backend.ErrAuthRequired)
	assert.Zero(t, f.srv.Requests())
	assert.Equal(t, []string{MsgLoginRequired}, messages(f.board))
	assert.Equal(t, StateAborted, f.sc.State())
}

func TestAuthFailureAbortsWithoutRetry(t *testing.T) {
	f := newFixture(t, devserver.Options{Secret: "k"}, rejectingTokens{}, gateFunc(allowAll), true)
	f.addCustomer(t)

	_, err := f.sc.TriggerSync(context.Background())
	require.ErrorIs(t, err, backend.ErrAuthRequired)
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, "/api/customer"), "auth failures are not retried")
	assert.Equal(t, MsgAuthAlert, f.board.Alert())
	assert.Contains(t, messages(f.board), MsgSessionExpired)
	assert.Equal(t, StateAborted, f.sc.State())
}

func TestOfflineTriggerIsNoop(t *testing.T) {
	f := newFixture(t, devserver.Options{}, nil, gateFunc(allowAll), false)
	f.addCustomer(t)

	_, err := f.sc.TriggerSync(context.Background())
	require.ErrorIs(t, err, ErrOffline)
	assert.Zero(t, f.srv.Requests())
	assert.Equal(t, []string{MsgOffline}, messages(f.board))
}

func TestAuthReverifiedBeforeRetry(t *testing.T) {
	var gateCalls atomic.Int32
	gate := gateFunc(func(context.Context) (string, error) {
		if gateCalls.Add(1) > 1 {
			return "", backend.ErrAuthRequired
		}
		return "token", nil
	})
	engine := engineFunc(func(context.Context) (*backendsync.SyncResult, error) {
		return &backendsync.SyncResult{}, errors.New("boom")
	})
	board := NewStatusBoard()
	defer board.Close()
	sc, err := NewSyncCoordinator(engine, gate, newStaticNet(true), board, Options{BackoffBase: time.Millisecond})
	require.NoError(t, err)

	_, err = sc.TriggerSync(context.Background())
	require.ErrorIs(t, err, backend.ErrAuthRequired)
	assert.Equal(t, int32(2), gateCalls.Load())
	assert.Equal(t, MsgAuthAlert, board.Alert())
}

func TestInFlightGuard(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	engine := engineFunc(func(context.Context) (*backendsync.SyncResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return &backendsync.SyncResult{}, nil
	})
	board := NewStatusBoard()
	defer board.Close()
	sc, err := NewSyncCoordinator(engine, gateFunc(allowAll), newStaticNet(true), board, Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sc.TriggerSync(context.Background())
		done <- err
	}()
	<-started

	_, err = sc.TriggerSync(context.Background())
	assert.ErrorIs(t, err, backend.ErrSyncInFlight)
	sc.TriggerAsync(context.Background())

	close(release)
	require.NoError(t, <-done)
	assert.True(t, sc.Shutdown(time.Second))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPanicFailsOnlyTheAttempt(t *testing.T) {
	var calls atomic.Int32
	engine := engineFunc(func(context.Context) (*backendsync.SyncResult, error) {
		if calls.Add(1) == 1 {
			panic("nil map")
		}
		return &backendsync.SyncResult{PushedRecords: 1}, nil
	})
	board := NewStatusBoard()
	defer board.Close()
	sc, err := NewSyncCoordinator(engine, gateFunc(allowAll), newStaticNet(true), board, Options{BackoffBase: time.Millisecond})
	require.NoError(t, err)

	result, err := sc.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PushedRecords)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := engineFunc(func(context.Context) (*backendsync.SyncResult, error) {
		cancel()
		return nil, backend.NewRemoteError("List customer", 503, "down")
	})
	board := NewStatusBoard()
	defer board.Close()
	sc, err := NewSyncCoordinator(engine, gateFunc(allowAll), newStaticNet(true), board, Options{BackoffBase: time.Hour})
	require.NoError(t, err)

	start := time.Now()
	_, err = sc.TriggerSync(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Empty(t, board.Alert(), "cancellation is not exhaustion")
}

func TestStateFollowsPhases(t *testing.T) {
	f := newFixture(t, devserver.Options{}, nil, gateFunc(allowAll), true)
	assert.Equal(t, StateIdle, f.sc.State())

	_, err := f.sc.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSettled, f.sc.State())
	assert.Equal(t, "settled", f.sc.State().String())
}

func TestNotifyLocalSave(t *testing.T) {
	net := newStaticNet(true)
	board := NewStatusBoard()
	defer board.Close()
	sc, err := NewSyncCoordinator(engineFunc(func(context.Context) (*backendsync.SyncResult, error) {
		return &backendsync.SyncResult{}, nil
	}), gateFunc(allowAll), net, board, Options{})
	require.NoError(t, err)

	sc.NotifyLocalSave()
	net.online.Store(false)
	sc.NotifyLocalSave()

	assert.Equal(t, []string{MsgSavedSyncing, MsgSavedOffline}, messages(board))
}

func TestRunSyncsWhenBackOnline(t *testing.T) {
	var calls atomic.Int32
	engine := engineFunc(func(context.Context) (*backendsync.SyncResult, error) {
		calls.Add(1)
		return &backendsync.SyncResult{}, nil
	})
	net := newStaticNet(false)
	board := NewStatusBoard()
	defer board.Close()
	sc, err := NewSyncCoordinator(engine, gateFunc(allowAll), net, board, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sc.Run(ctx)
		close(done)
	}()

	net.online.Store(true)
	net.ch <- true
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, board.Online())

	net.online.Store(false)
	net.ch <- false
	require.Eventually(t, func() bool { return !board.Online() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "going offline does not trigger")

	cancel()
	<-done
	assert.True(t, sc.Shutdown(time.Second))
	_, err = sc.TriggerSync(context.Background())
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestNewSyncCoordinatorRequiresDependencies(t *testing.T) {
	_, err := NewSyncCoordinator(nil, gateFunc(allowAll), newStaticNet(true), NewStatusBoard(), Options{})
	assert.Error(t, err)
}

func TestRunBackgroundSync(t *testing.T) {
	f := newFixture(t, devserver.Options{}, nil, gateFunc(allowAll), true)
	f.addCustomer(t)
	require.NoError(t, RunBackgroundSync(context.Background(), f.sc, 5*time.Second))
	assert.Len(t, f.srv.All("customers"), 1)

	offline := newFixture(t, devserver.Options{}, nil, gateFunc(allowAll), false)
	assert.NoError(t, RunBackgroundSync(context.Background(), offline.sc, time.Second), "offline is not an error")
}

func TestCoordinatorsSharingDatabaseDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	srv := devserver.New(devserver.Options{})
	handler := srv.Handler()
	entered := make(chan struct{}, 1)
	hold := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-hold
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	release := sync.OnceFunc(func() { close(hold) })
	t.Cleanup(release)

	open := func() (*SyncCoordinator, *dao.Store) {
		db, err := backend.InitDatabase(dbPath)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		store := dao.NewStore(db)
		board := NewStatusBoard()
		t.Cleanup(board.Close)
		sc, err := NewSyncCoordinator(
			backendsync.NewSyncManager(store, remote.NewClient(ts.URL, nil, 5*time.Second)),
			gateFunc(allowAll), newStaticNet(true), board,
			Options{BackoffBase: time.Millisecond, LockPath: dbPath + ".sync.lock"},
		)
		require.NoError(t, err)
		return sc, store
	}
	first, store := open()
	second, _ := open()

	_, err := store.Customers.InsertLocal(ctx, &backend.Customer{CustomerName: "Asha", PhoneNumber: "98450"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := first.TriggerSync(ctx)
		done <- err
	}()
	<-entered

	_, err = second.TriggerSync(ctx)
	assert.ErrorIs(t, err, backend.ErrSyncInFlight)

	release()
	require.NoError(t, <-done)
	assert.Len(t, srv.All("customers"), 1)

	// the lock is free again once the first cycle settled
	_, err = second.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Len(t, srv.All("customers"), 1)

	pending, err := store.Customers.GetPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
