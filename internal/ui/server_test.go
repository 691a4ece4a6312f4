package ui

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/certdesk/internal/client"
	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/internal/state"
	"github.com/leapstack-labs/certdesk/internal/testutil"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	store, err := state.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "certdesk.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewServer(Config{
		Store:         store,
		Bus:           refresh.New(),
		SessionSecret: "test-secret",
		Logger:        logger,
	})
}

func TestServer_Handler(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := s.Handler(ctx)
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/certificates", http.StatusOK},
		{http.MethodGet, "/static/app.css", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestServer_RefreshPulsesBus(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := s.Handler(ctx)
	require.NoError(t, err)

	before := s.Bus().Ticket()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, client.RefreshPath, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Greater(t, s.Bus().Ticket(), before)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := newTestServer(t)

	ln, err := s.Listen()
	require.NoError(t, err)
	url := fmt.Sprintf("http://127.0.0.1:%d", ln.Addr().(*net.TCPAddr).Port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.NoError(t, client.New(url).Refresh(context.Background()))
	assert.Equal(t, uint64(1), s.Bus().Ticket())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenPortInUse(t *testing.T) {
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()

	s := newTestServer(t)
	s.port = taken.Addr().(*net.TCPAddr).Port

	_, err = s.Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
