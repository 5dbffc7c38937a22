package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/resonate/internal/config"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "resonate.yaml")
	writeConfigFile(t, path, validNative)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Server.ListenAddr != ":9000" {
		t.Errorf("initial listen_addr = %q; want :9000", w.Current().Server.ListenAddr)
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "resonate.yaml")
	writeConfigFile(t, path, "session:\n  strategy: hybrid\n")

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("invalid initial config must fail construction")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "resonate.yaml")
	writeConfigFile(t, path, validNative)

	var mu sync.Mutex
	var got *config.Config
	onChange := func(_, newCfg *config.Config) {
		mu.Lock()
		got = newCfg
		mu.Unlock()
	}

	w, err := config.NewWatcher(path, onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Mtime granularity on some filesystems is one second; force a distinct
	// timestamp rather than sleeping.
	updated := validNative + "\n# reloaded\n"
	writeConfigFile(t, path, updated)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := got != nil
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("onChange was not called after the file changed")
	}
	if w.Current().Server.ListenAddr != ":9000" {
		t.Error("current config should reflect the reloaded file")
	}
}

func TestWatcher_KeepsOldConfigOnInvalidRewrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "resonate.yaml")
	writeConfigFile(t, path, validNative)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, path, "session:\n  strategy: hybrid\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if w.Current().Session.Strategy != config.StrategyNative {
		t.Error("invalid rewrite must not replace the last good config")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "resonate.yaml")
	writeConfigFile(t, path, validNative)

	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}
