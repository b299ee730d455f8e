package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/geoloc/internal/cache"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geoloc.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Timeout != 30*time.Second || cfg.Cache.PollInterval != time.Second {
		t.Fatalf("timings = %v/%v, want 30s/1s", cfg.Cache.Timeout, cfg.Cache.PollInterval)
	}
	if cfg.BackendKind() != cache.KindFlat {
		t.Fatalf("BackendKind = %q, want memmap", cfg.BackendKind())
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
cache:
  root: /data/static
  dynamic_root: /data/dynamic
  backend: zarr
  chunk_size: 256
  timeout: 45s
autogen:
  disable_dynamic: true
  exceptions: [fire_watch]
logging:
  level: debug
metrics_addr: ":9090"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.DynamicRoot != "/data/dynamic" || cfg.Cache.ChunkSize != 256 {
		t.Fatalf("cache section = %+v", cfg.Cache)
	}
	if cfg.Cache.Timeout != 45*time.Second {
		t.Fatalf("Timeout = %v, want 45s", cfg.Cache.Timeout)
	}
	if cfg.Cache.PollInterval != time.Second {
		t.Fatalf("PollInterval = %v, want default 1s", cfg.Cache.PollInterval)
	}
	if cfg.BackendKind() != cache.KindChunked {
		t.Fatalf("BackendKind = %q, want zarr", cfg.BackendKind())
	}
	if !cfg.AutoGen.DisableDynamic || len(cfg.AutoGen.Exceptions) != 1 {
		t.Fatalf("autogen section = %+v", cfg.AutoGen)
	}
	if got := cfg.LoggingConfig().Level; got != "debug" {
		t.Fatalf("logging level = %q, want debug", got)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeFile(t, "cache:\n  root: x\n  backend: tape\n")
	_, err := Load(path)
	if !errors.Is(err, cache.ErrConfiguration) {
		t.Fatalf("Load error = %v, want ErrConfiguration", err)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeFile(t, "cache:\n  rot: x\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for misspelt key")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEOLOC_CACHE_ROOT", "/env/root")
	t.Setenv("GEOLOC_DISABLE_DYNAMIC", "true")
	t.Setenv("GEOLOC_AUTOGEN_EXCEPTIONS", "a, b,,c")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Root != "/env/root" || !cfg.AutoGen.DisableDynamic {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if got := len(cfg.AutoGen.Exceptions); got != 3 {
		t.Fatalf("exceptions = %v, want 3 entries", cfg.AutoGen.Exceptions)
	}
}

func TestEnvBadDuration(t *testing.T) {
	t.Setenv("GEOLOC_CACHE_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
