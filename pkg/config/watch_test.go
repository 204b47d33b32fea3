package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huamanraj/project-management-api/pkg/observability"
)

func baseConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
		Database: DatabaseConfig{URL: "postgres://localhost/billing"},
		Gateway:  GatewayConfig{KeyID: "rzp_old_key", KeySecret: "old-secret"},
		Sweeper:  SweeperConfig{Enabled: true, StaleTTL: time.Hour},
	}
}

func waitForReload(t *testing.T, ch <-chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
		return nil
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  key_secret: old-secret\n"), 0o600))

	reloads := make(chan *Config, 1)
	w, err := NewWatcher(path, baseConfig(), func(cfg *Config) { reloads <- cfg }, testWatchLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watch goroutine a moment before the first write.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  key_id: rzp_new_key\n  key_secret: rotated\n"), 0o600))

	cfg := waitForReload(t, reloads)
	assert.Equal(t, "rzp_new_key", cfg.Gateway.KeyID)
	assert.Equal(t, "rotated", cfg.Gateway.KeySecret)
	// Untouched settings come from the base config.
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestWatcherSurvivesRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  key_secret: old-secret\n"), 0o600))

	reloads := make(chan *Config, 1)
	w, err := NewWatcher(path, baseConfig(), func(cfg *Config) { reloads <- cfg }, testWatchLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)

	// Write to a temp name and rename over the config, the way editors and
	// secret mounts update files.
	tmp := filepath.Join(dir, ".billing.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("gateway:\n  key_secret: replaced\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	cfg := waitForReload(t, reloads)
	assert.Equal(t, "replaced", cfg.Gateway.KeySecret)
}

func TestWatcherKeepsPreviousConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  key_secret: old-secret\n"), 0o600))

	reloads := make(chan *Config, 2)
	w, err := NewWatcher(path, baseConfig(), func(cfg *Config) { reloads <- cfg }, testWatchLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)

	// Clearing the secret fails validation, so no reload is delivered.
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  key_id: \"\"\n  key_secret: \"\"\n"), 0o600))

	select {
	case cfg := <-reloads:
		t.Fatalf("unexpected reload with key id %q", cfg.Gateway.KeyID)
	case <-time.After(1 * time.Second):
	}

	// A subsequent valid write still reloads.
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  key_id: rzp_new_key\n  key_secret: recovered\n"), 0o600))
	cfg := waitForReload(t, reloads)
	assert.Equal(t, "recovered", cfg.Gateway.KeySecret)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  key_secret: old-secret\n"), 0o600))

	reloads := make(chan *Config, 1)
	w, err := NewWatcher(path, baseConfig(), func(cfg *Config) { reloads <- cfg }, testWatchLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("noise: true\n"), 0o600))

	select {
	case <-reloads:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(1 * time.Second):
	}
}

func testWatchLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}
