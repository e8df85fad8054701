// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader("", "test-version")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if !filepath.IsAbs(cfg.DataDir) {
		t.Errorf("expected absolute DataDir, got %s", cfg.DataDir)
	}
	if filepath.Base(cfg.DataDir) != "data" {
		t.Errorf("expected DataDir to end in data, got %s", cfg.DataDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel=info, got %s", cfg.LogLevel)
	}
	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("expected API.ListenAddr=:8080, got %s", cfg.API.ListenAddr)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddr != ":9090" {
		t.Errorf("expected metrics on :9090, got enabled=%v addr=%s", cfg.Metrics.Enabled, cfg.Metrics.ListenAddr)
	}
	if cfg.Refresh.Interval != 0 {
		t.Errorf("expected Refresh.Interval=0 (disabled), got %v", cfg.Refresh.Interval)
	}
	if cfg.Refresh.Concurrency != 4 {
		t.Errorf("expected Refresh.Concurrency=4, got %d", cfg.Refresh.Concurrency)
	}
	if !cfg.Refresh.OnStart {
		t.Error("expected Refresh.OnStart=true")
	}
	if cfg.Download.Attempts != 10 {
		t.Errorf("expected Download.Attempts=10, got %d", cfg.Download.Attempts)
	}
	if cfg.Download.Timeout != 2*time.Minute {
		t.Errorf("expected Download.Timeout=2m, got %v", cfg.Download.Timeout)
	}
	if cfg.Download.Backoff != 500*time.Millisecond {
		t.Errorf("expected Download.Backoff=500ms, got %v", cfg.Download.Backoff)
	}
	if cfg.Cache.Backend != CacheBackendMemory {
		t.Errorf("expected Cache.Backend=memory, got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 15*time.Minute {
		t.Errorf("expected Cache.TTL=15m, got %v", cfg.Cache.TTL)
	}
	if cfg.Telemetry.Enabled {
		t.Error("expected Telemetry disabled by default")
	}
	if cfg.Telemetry.Protocol != "grpc" {
		t.Errorf("expected Telemetry.Protocol=grpc, got %s", cfg.Telemetry.Protocol)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	customDataDir := filepath.Join(tmpDir, "custom-data")
	manifestDir := filepath.Join(tmpDir, "manifests")

	yamlContent := fmt.Sprintf(`
dataDir: %s
manifestDir: %s
logLevel: debug
api:
  listenAddr: ":8180"
  token: test-token
metrics:
  enabled: false
refresh:
  interval: 30m
  concurrency: 8
  onStart: false
download:
  attempts: 5
  timeout: 45s
  hostRps: 2.5
  allowlist:
    - storage.googleapis.com
    - huggingface.co
cache:
  backend: none
lint:
  disabledRules:
    - config-urls
telemetry:
  enabled: false
`, customDataDir, manifestDir)

	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != customDataDir {
		t.Errorf("expected DataDir=%s, got %s", customDataDir, cfg.DataDir)
	}
	if cfg.ManifestDir != manifestDir {
		t.Errorf("expected ManifestDir=%s, got %s", manifestDir, cfg.ManifestDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %s", cfg.LogLevel)
	}
	if cfg.API.ListenAddr != ":8180" {
		t.Errorf("expected API.ListenAddr=:8180, got %s", cfg.API.ListenAddr)
	}
	if cfg.API.Token != "test-token" {
		t.Errorf("expected API.Token=test-token, got %s", cfg.API.Token)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics disabled from file")
	}
	if cfg.Refresh.Interval != 30*time.Minute {
		t.Errorf("expected Refresh.Interval=30m, got %v", cfg.Refresh.Interval)
	}
	if cfg.Refresh.Concurrency != 8 {
		t.Errorf("expected Refresh.Concurrency=8, got %d", cfg.Refresh.Concurrency)
	}
	if cfg.Refresh.OnStart {
		t.Error("expected Refresh.OnStart=false from file")
	}
	if cfg.Download.Attempts != 5 {
		t.Errorf("expected Download.Attempts=5, got %d", cfg.Download.Attempts)
	}
	if cfg.Download.Timeout != 45*time.Second {
		t.Errorf("expected Download.Timeout=45s, got %v", cfg.Download.Timeout)
	}
	if cfg.Download.HostRPS != 2.5 {
		t.Errorf("expected Download.HostRPS=2.5, got %g", cfg.Download.HostRPS)
	}
	if len(cfg.Download.Allowlist) != 2 || cfg.Download.Allowlist[0] != "storage.googleapis.com" {
		t.Errorf("unexpected allowlist: %v", cfg.Download.Allowlist)
	}
	if cfg.Cache.Backend != CacheBackendNone {
		t.Errorf("expected Cache.Backend=none, got %s", cfg.Cache.Backend)
	}
	if len(cfg.Lint.Disabled) != 1 || cfg.Lint.Disabled[0] != "config-urls" {
		t.Errorf("unexpected disabled lint rules: %v", cfg.Lint.Disabled)
	}
}

func TestENVOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	fileDataDir := filepath.Join(tmpDir, "file-data")
	envDataDir := filepath.Join(tmpDir, "env-data")

	yamlContent := fmt.Sprintf(`
dataDir: %s
api:
  listenAddr: ":8180"
refresh:
  concurrency: 8
`, fileDataDir)

	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv(EnvDataDir, envDataDir)
	t.Setenv(EnvListen, ":8280")
	t.Setenv(EnvRefreshConcurrency, "2")

	loader := NewLoader(configPath, "1.0.0")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != envDataDir {
		t.Errorf("expected ENV to override file: DataDir=%s, got %s", envDataDir, cfg.DataDir)
	}
	if cfg.API.ListenAddr != ":8280" {
		t.Errorf("expected ENV to override file: ListenAddr=:8280, got %s", cfg.API.ListenAddr)
	}
	if cfg.Refresh.Concurrency != 2 {
		t.Errorf("expected ENV to override file: Refresh.Concurrency=2, got %d", cfg.Refresh.Concurrency)
	}
}

func TestPrecedenceOrder(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	fileDataDir := filepath.Join(tmpDir, "file-data")

	yamlContent := fmt.Sprintf(`
dataDir: %s
download:
  attempts: 5
cache:
  ttl: 5m
`, fileDataDir)

	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv(EnvCacheTTL, "1m")

	loader := NewLoader(configPath, "1.0.0")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != fileDataDir {
		t.Errorf("expected DataDir from file: %s, got %s", fileDataDir, cfg.DataDir)
	}
	if cfg.Download.Attempts != 5 {
		t.Errorf("expected Download.Attempts from file: 5, got %d", cfg.Download.Attempts)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("expected Cache.TTL from ENV: 1m, got %v", cfg.Cache.TTL)
	}
	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("expected ListenAddr from default: :8080, got %s", cfg.API.ListenAddr)
	}
}

func TestStrictUnknownFieldRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
dataDir: /tmp/data
refresh:
  intervall: 30m
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected strict parse error for unknown field, got nil")
	} else if !strings.Contains(err.Error(), "intervall") {
		t.Errorf("expected error to name the unknown field, got: %v", err)
	}
}

func TestMultiDocumentRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
dataDir: /tmp/one
---
dataDir: /tmp/two
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for multi-document config, got nil")
	} else if !strings.Contains(err.Error(), "multiple documents") {
		t.Errorf("expected multi-document error, got: %v", err)
	}
}

func TestUnsupportedConfigFormat(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for non-YAML config, got nil")
	} else if !strings.Contains(err.Error(), "unsupported config format") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMissingConfigFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), "1.0.0")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestEmptyFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(""), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("expected defaults for empty file, got ListenAddr=%s", cfg.API.ListenAddr)
	}
}

func TestInvalidDurationInFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
refresh:
  interval: banana
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected duration parse error, got nil")
	} else if !strings.Contains(err.Error(), "refresh.interval") {
		t.Errorf("expected error to name refresh.interval, got: %v", err)
	}
}

func TestExpandEnvInFileValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TFDS_TEST_BASE", tmpDir)
	yamlContent := `
dataDir: ${TFDS_TEST_BASE}/expanded
api:
  token: ${TFDS_TEST_TOKEN}
`
	t.Setenv("TFDS_TEST_TOKEN", "secret-from-env")

	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != filepath.Join(tmpDir, "expanded") {
		t.Errorf("expected expanded DataDir, got %s", cfg.DataDir)
	}
	if cfg.API.Token != "secret-from-env" {
		t.Errorf("expected expanded token, got %s", cfg.API.Token)
	}
}

func TestCommaSeparatedEnvLists(t *testing.T) {
	t.Setenv(EnvDownloadAllowlist, "a.example.com, b.example.com,,")
	t.Setenv(EnvLintDisabled, "config-urls,description-nonempty")

	loader := NewLoader("", "1.0.0")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Download.Allowlist) != 2 || cfg.Download.Allowlist[1] != "b.example.com" {
		t.Errorf("unexpected allowlist: %v", cfg.Download.Allowlist)
	}
	if len(cfg.Lint.Disabled) != 2 {
		t.Errorf("unexpected disabled rules: %v", cfg.Lint.Disabled)
	}
}

func TestValidateBounds(t *testing.T) {
	base := func() AppConfig {
		cfg := AppConfig{}
		setDefaults(&cfg)
		cfg.DataDir = "/tmp/tfds-test"
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*AppConfig)
		shouldErr bool
		errMsg    string
	}{
		{
			name:      "defaults are valid",
			mutate:    func(cfg *AppConfig) {},
			shouldErr: false,
		},
		{
			name:      "empty dataDir",
			mutate:    func(cfg *AppConfig) { cfg.DataDir = "" },
			shouldErr: true,
			errMsg:    "dataDir",
		},
		{
			name:      "bad log level",
			mutate:    func(cfg *AppConfig) { cfg.LogLevel = "verbose" },
			shouldErr: true,
			errMsg:    "log level",
		},
		{
			name:      "empty api listen addr",
			mutate:    func(cfg *AppConfig) { cfg.API.ListenAddr = "" },
			shouldErr: true,
			errMsg:    "api.listenAddr",
		},
		{
			name:      "malformed api listen addr",
			mutate:    func(cfg *AppConfig) { cfg.API.ListenAddr = "no-port" },
			shouldErr: true,
			errMsg:    "api.listenAddr",
		},
		{
			name: "metrics addr collides with api addr",
			mutate: func(cfg *AppConfig) {
				cfg.API.ListenAddr = ":8080"
				cfg.Metrics.ListenAddr = ":8080"
			},
			shouldErr: true,
			errMsg:    "must differ",
		},
		{
			name: "metrics disabled skips addr check",
			mutate: func(cfg *AppConfig) {
				cfg.Metrics.Enabled = false
				cfg.Metrics.ListenAddr = ""
			},
			shouldErr: false,
		},
		{
			name:      "refresh concurrency too low",
			mutate:    func(cfg *AppConfig) { cfg.Refresh.Concurrency = 0 },
			shouldErr: true,
			errMsg:    "refresh.concurrency",
		},
		{
			name:      "refresh concurrency too high",
			mutate:    func(cfg *AppConfig) { cfg.Refresh.Concurrency = 65 },
			shouldErr: true,
			errMsg:    "refresh.concurrency",
		},
		{
			name:      "refresh interval below minimum",
			mutate:    func(cfg *AppConfig) { cfg.Refresh.Interval = 5 * time.Second },
			shouldErr: true,
			errMsg:    "refresh.interval",
		},
		{
			name:      "refresh interval zero is disabled",
			mutate:    func(cfg *AppConfig) { cfg.Refresh.Interval = 0 },
			shouldErr: false,
		},
		{
			name:      "download attempts too high",
			mutate:    func(cfg *AppConfig) { cfg.Download.Attempts = 21 },
			shouldErr: true,
			errMsg:    "download.attempts",
		},
		{
			name:      "download concurrency too high",
			mutate:    func(cfg *AppConfig) { cfg.Download.Concurrency = 17 },
			shouldErr: true,
			errMsg:    "download.concurrency",
		},
		{
			name:      "download timeout not positive",
			mutate:    func(cfg *AppConfig) { cfg.Download.Timeout = 0 },
			shouldErr: true,
			errMsg:    "download.timeout",
		},
		{
			name:      "download host rps not positive",
			mutate:    func(cfg *AppConfig) { cfg.Download.HostRPS = 0 },
			shouldErr: true,
			errMsg:    "download.hostRps",
		},
		{
			name:      "unknown cache backend",
			mutate:    func(cfg *AppConfig) { cfg.Cache.Backend = "banana" },
			shouldErr: true,
			errMsg:    "cache backend",
		},
		{
			name:      "redis backend without addr",
			mutate:    func(cfg *AppConfig) { cfg.Cache.Backend = CacheBackendRedis },
			shouldErr: true,
			errMsg:    "cache.redisAddr",
		},
		{
			name: "redis backend with addr",
			mutate: func(cfg *AppConfig) {
				cfg.Cache.Backend = CacheBackendRedis
				cfg.Cache.RedisAddr = "localhost:6379"
			},
			shouldErr: false,
		},
		{
			name:      "negative cache ttl",
			mutate:    func(cfg *AppConfig) { cfg.Cache.TTL = -time.Minute },
			shouldErr: true,
			errMsg:    "cache.ttl",
		},
		{
			name:      "unknown lint rule",
			mutate:    func(cfg *AppConfig) { cfg.Lint.Disabled = []string{"no-such-rule"} },
			shouldErr: true,
			errMsg:    "lint.disabledRules",
		},
		{
			name:      "bad telemetry protocol",
			mutate:    func(cfg *AppConfig) { cfg.Telemetry.Protocol = "udp" },
			shouldErr: true,
			errMsg:    "telemetry.protocol",
		},
		{
			name:      "sample ratio out of range",
			mutate:    func(cfg *AppConfig) { cfg.Telemetry.SampleRatio = 1.5 },
			shouldErr: true,
			errMsg:    "telemetry.sampleRatio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := Validate(cfg)

			if tt.shouldErr {
				if err == nil {
					t.Error("expected validation error, got nil")
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error to contain %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestStringRedactsToken(t *testing.T) {
	cfg := AppConfig{}
	setDefaults(&cfg)
	cfg.API.Token = "super-secret"

	s := cfg.String()
	if strings.Contains(s, "super-secret") {
		t.Errorf("String() leaked the API token: %s", s)
	}
	if !strings.Contains(s, "token=***") {
		t.Errorf("expected redacted token marker, got: %s", s)
	}

	cfg.API.Token = ""
	if !strings.Contains(cfg.String(), "token=unset") {
		t.Errorf("expected token=unset, got: %s", cfg.String())
	}
}

func TestDirHelpers(t *testing.T) {
	cfg := AppConfig{DataDir: "/var/lib/tfds"}

	if got := cfg.CatalogDir(); got != "/var/lib/tfds/catalog" {
		t.Errorf("CatalogDir() = %s", got)
	}
	if got := cfg.DownloadDir(); got != "/var/lib/tfds/downloads" {
		t.Errorf("DownloadDir() = %s", got)
	}

	cfg.Download.Dir = "/scratch/dl"
	if got := cfg.DownloadDir(); got != "/scratch/dl" {
		t.Errorf("DownloadDir() with override = %s", got)
	}
}
