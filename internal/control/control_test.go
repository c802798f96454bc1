package control

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	snapshot    Snapshot
	reloadErr   error
	stopErr     error
	reloadCalls int
	stopCalls   int
}

func (f *fakeHandler) Status(ctx context.Context) (Snapshot, error) { return f.snapshot, nil }
func (f *fakeHandler) Reload(ctx context.Context) error {
	f.reloadCalls++
	return f.reloadErr
}
func (f *fakeHandler) Stop(ctx context.Context) error {
	f.stopCalls++
	return f.stopErr
}

func startServer(t *testing.T, h Handler) (*Client, func()) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	srv := NewServer(socketPath, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	client := NewClient(socketPath, time.Second)
	for time.Now().Before(deadline) {
		if _, err := client.Status(context.Background()); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return client, func() {
		cancel()
		<-done
	}
}

func TestStatusRoundTrip(t *testing.T) {
	h := &fakeHandler{snapshot: Snapshot{UptimeSec: 42, TotalEnqueued: 7, DroppedDupes: 1}}
	client, stop := startServer(t, h)
	defer stop()

	snap, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.UptimeSec)
	assert.Equal(t, int64(7), snap.TotalEnqueued)
	assert.Equal(t, int64(1), snap.DroppedDupes)
}

func TestReloadRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	client, stop := startServer(t, h)
	defer stop()

	require.NoError(t, client.Reload(context.Background()))
	assert.Equal(t, 1, h.reloadCalls)
}

func TestReloadPropagatesHandlerError(t *testing.T) {
	h := &fakeHandler{reloadErr: errors.New("boom")}
	client, stop := startServer(t, h)
	defer stop()

	assert.Error(t, client.Reload(context.Background()))
}

func TestStopRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	client, stop := startServer(t, h)
	defer stop()

	require.NoError(t, client.Stop(context.Background()))
	assert.Equal(t, 1, h.stopCalls)
}

func TestUnknownOpReturnsError(t *testing.T) {
	h := &fakeHandler{}
	client, stop := startServer(t, h)
	defer stop()

	resp, err := client.Call(context.Background(), "bogus")
	require.NoError(t, err)
	assert.False(t, resp.OK)
}
