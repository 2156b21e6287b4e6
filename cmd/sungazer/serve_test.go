package main

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sungazer/internal/config"
)

func testServeConfig(t *testing.T, addr string) *config.Config {
	t.Helper()
	return &config.Config{
		ListenAddr:     addr,
		DBPath:         filepath.Join(t.TempDir(), "sungazer.db"),
		PollInterval:   time.Hour,
		RequestTimeout: time.Second,
		LogLevel:       slog.LevelError,
	}
}

func TestServe_ReturnsAfterCancel(t *testing.T) {
	cfg := testServeConfig(t, "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	db, err := openDB(context.Background(), cfg)
	require.NoError(t, err, "database is reusable after shutdown")
	assert.NoError(t, db.Close())
}

func TestServe_ListenFailureStopsScheduler(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testServeConfig(t, taken.Addr().String())

	done := make(chan error, 1)
	go func() { done <- serve(context.Background(), cfg) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return after the listener failed")
	}
}
