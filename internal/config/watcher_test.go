package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arcsong/arcsong/internal/config"
)

const watcherConfigV1 = `
server:
  log_level: info
providers:
  llm:
    name: openai
`

const watcherConfigV2 = `
server:
  log_level: debug
providers:
  llm:
    name: openai
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "arcsong.yaml")
	writeConfigFile(t, path, watcherConfigV1)

	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("initial log level = %q, want info", got)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "arcsong.yaml")
	writeConfigFile(t, path, "server:\n  log_level: loud\n")

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config, got nil")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "arcsong.yaml")
	writeConfigFile(t, path, watcherConfigV1)

	var mu sync.Mutex
	var gotDiff *config.ConfigDiff
	changed := make(chan struct{})

	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		d := config.Diff(old, new)
		mu.Lock()
		gotDiff = &d
		mu.Unlock()
		close(changed)
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Backdate the mtime so the rewrite below always looks newer, even on
	// filesystems with coarse timestamp resolution.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}
	writeConfigFile(t, path, watcherConfigV2)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotDiff == nil || !gotDiff.LogLevelChanged || gotDiff.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", gotDiff)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("current log level = %q, want debug", got)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "arcsong.yaml")
	writeConfigFile(t, path, watcherConfigV1)

	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		t.Error("onChange fired for an invalid config")
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeConfigFile(t, path, "server:\n  log_level: loud\n")

	// Give the poller a few cycles to notice the bad file.
	time.Sleep(100 * time.Millisecond)

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("current log level = %q, want the original info", got)
	}
}
