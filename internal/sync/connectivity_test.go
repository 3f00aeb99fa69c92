package sync

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fieldsync/backend/remote"
	"fieldsync/internal/devserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type proberFunc func(ctx context.Context) error

func (f proberFunc) Health(ctx context.Context) error { return f(ctx) }

func TestSignalOfflineIsTrusted(t *testing.T) {
	var probes atomic.Int32
	m := NewMonitor(proberFunc(func(context.Context) error {
		probes.Add(1)
		return nil
	}), true, MonitorOptions{})

	assert.False(t, m.Signal(context.Background(), false))
	assert.False(t, m.IsOnline())
	assert.Zero(t, probes.Load())
}

func TestSignalOnlineNeedsProbe(t *testing.T) {
	healthy := atomic.Bool{}
	m := NewMonitor(proberFunc(func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("unreachable")
	}), false, MonitorOptions{})
	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	assert.False(t, m.Signal(context.Background(), true), "native online without a reachable service")
	assert.False(t, m.IsOnline())

	healthy.Store(true)
	assert.True(t, m.Signal(context.Background(), true))
	select {
	case online := <-events:
		assert.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("no transition published")
	}
}

func TestProbeTimeout(t *testing.T) {
	m := NewMonitor(proberFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), true, MonitorOptions{ProbeTimeout: 10 * time.Millisecond})

	assert.False(t, m.Probe(context.Background()))
}

func TestRunPollsHealthEndpoint(t *testing.T) {
	srv := devserver.New(devserver.Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	m := NewMonitor(remote.NewClient(ts.URL, nil, time.Second), false, MonitorOptions{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, m.IsOnline, 2*time.Second, 5*time.Millisecond)
	srv.SetHealthy(false)
	require.Eventually(t, func() bool { return !m.IsOnline() }, 2*time.Second, 5*time.Millisecond)
	srv.SetHealthy(true)
	require.Eventually(t, m.IsOnline, 2*time.Second, 5*time.Millisecond)
}
