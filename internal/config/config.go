// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with the precedence
// ENV > file > defaults and validates the result before anything runs on it.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvDataDir     = "TFDS_DATA_DIR"
	EnvManifestDir = "TFDS_MANIFEST_DIR"
	EnvLogLevel    = "TFDS_LOG_LEVEL"

	EnvListen   = "TFDS_LISTEN"
	EnvAPIToken = "TFDS_API_TOKEN"

	EnvMetricsEnabled = "TFDS_METRICS_ENABLED"
	EnvMetricsListen  = "TFDS_METRICS_LISTEN"

	EnvRefreshInterval    = "TFDS_REFRESH_INTERVAL"
	EnvRefreshConcurrency = "TFDS_REFRESH_CONCURRENCY"
	EnvRefreshOnStart     = "TFDS_REFRESH_ON_START"

	EnvDownloadDir         = "TFDS_DOWNLOAD_DIR"
	EnvDownloadAttempts    = "TFDS_DOWNLOAD_ATTEMPTS"
	EnvDownloadTimeout     = "TFDS_DOWNLOAD_TIMEOUT"
	EnvDownloadBackoff     = "TFDS_DOWNLOAD_BACKOFF"
	EnvDownloadConcurrency = "TFDS_DOWNLOAD_CONCURRENCY"
	EnvDownloadHostRPS     = "TFDS_DOWNLOAD_HOST_RPS"
	EnvDownloadAllowlist   = "TFDS_DOWNLOAD_ALLOWLIST"

	EnvCacheBackend = "TFDS_CACHE_BACKEND"
	EnvRedisAddr    = "TFDS_REDIS_ADDR"
	EnvCacheTTL     = "TFDS_CACHE_TTL"

	EnvLintDisabled = "TFDS_LINT_DISABLED"

	EnvOtelEnabled     = "TFDS_OTEL_ENABLED"
	EnvOtelEndpoint    = "TFDS_OTEL_ENDPOINT"
	EnvOtelProtocol    = "TFDS_OTEL_PROTOCOL"
	EnvOtelSampleRatio = "TFDS_OTEL_SAMPLE_RATIO"
	EnvOtelInsecure    = "TFDS_OTEL_INSECURE"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// FileConfig is the YAML shape of the config file. Optional scalars use
// pointers so an explicit zero/false survives merging.
type FileConfig struct {
	DataDir     string `yaml:"dataDir,omitempty"`
	ManifestDir string `yaml:"manifestDir,omitempty"`
	LogLevel    string `yaml:"logLevel,omitempty"`

	API       APIFileConfig       `yaml:"api,omitempty"`
	Metrics   MetricsFileConfig   `yaml:"metrics,omitempty"`
	Refresh   RefreshFileConfig   `yaml:"refresh,omitempty"`
	Download  DownloadFileConfig  `yaml:"download,omitempty"`
	Cache     CacheFileConfig     `yaml:"cache,omitempty"`
	Lint      LintFileConfig      `yaml:"lint,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

type APIFileConfig struct {
	ListenAddr string `yaml:"listenAddr,omitempty"`
	Token      string `yaml:"token,omitempty"`
}

type MetricsFileConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	ListenAddr string `yaml:"listenAddr,omitempty"`
}

type RefreshFileConfig struct {
	Interval    string `yaml:"interval,omitempty"`
	Concurrency *int   `yaml:"concurrency,omitempty"`
	OnStart     *bool  `yaml:"onStart,omitempty"`
}

type DownloadFileConfig struct {
	Dir         string   `yaml:"dir,omitempty"`
	Attempts    *int     `yaml:"attempts,omitempty"`
	Timeout     string   `yaml:"timeout,omitempty"`
	Backoff     string   `yaml:"backoff,omitempty"`
	Concurrency *int     `yaml:"concurrency,omitempty"`
	HostRPS     *float64 `yaml:"hostRps,omitempty"`
	Allowlist   []string `yaml:"allowlist,omitempty"`
}

type CacheFileConfig struct {
	Backend   string `yaml:"backend,omitempty"`
	RedisAddr string `yaml:"redisAddr,omitempty"`
	TTL       string `yaml:"ttl,omitempty"`
}

type LintFileConfig struct {
	Disabled []string `yaml:"disabledRules,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled     *bool    `yaml:"enabled,omitempty"`
	Endpoint    string   `yaml:"endpoint,omitempty"`
	Protocol    string   `yaml:"protocol,omitempty"`
	SampleRatio *float64 `yaml:"sampleRatio,omitempty"`
	Insecure    *bool    `yaml:"insecure,omitempty"`
}

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version string

	DataDir     string
	ManifestDir string
	LogLevel    string

	API       APIConfig
	Metrics   MetricsConfig
	Refresh   RefreshConfig
	Download  DownloadConfig
	Cache     CacheConfig
	Lint      LintConfig
	Telemetry TelemetryConfig
}

type APIConfig struct {
	ListenAddr string
	Token      string
}

type MetricsConfig struct {
	Enabled    bool
	ListenAddr string
}

type RefreshConfig struct {
	// Interval between automatic refreshes; zero disables the timer.
	Interval    time.Duration
	Concurrency int
	OnStart     bool
}

type DownloadConfig struct {
	// Dir defaults to <dataDir>/downloads when empty.
	Dir         string
	Attempts    int
	Timeout     time.Duration
	Backoff     time.Duration
	Concurrency int
	HostRPS     float64
	Allowlist   []string
}

type CacheConfig struct {
	Backend   string
	RedisAddr string
	TTL       time.Duration
}

type LintConfig struct {
	Disabled []string
}

type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	Protocol    string
	SampleRatio float64
	Insecure    bool
}

// CatalogDir is where rendered pages land.
func (c AppConfig) CatalogDir() string {
	return filepath.Join(c.DataDir, "catalog")
}

// DownloadDir resolves the effective download directory.
func (c AppConfig) DownloadDir() string {
	if c.Download.Dir != "" {
		return c.Download.Dir
	}
	return filepath.Join(c.DataDir, "downloads")
}

// ServerConfig tunes the HTTP servers the daemon runs.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// ServerConfig derives the API server settings from the resolved config.
func (c AppConfig) ServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:      c.API.ListenAddr,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// String renders the config for startup logging with the token redacted.
func (c AppConfig) String() string {
	token := "unset"
	if c.API.Token != "" {
		token = "***"
	}
	return fmt.Sprintf(
		"dataDir=%s manifestDir=%s listen=%s metrics=%s token=%s cache=%s refreshInterval=%s downloadConcurrency=%d",
		c.DataDir, c.ManifestDir, c.API.ListenAddr, c.Metrics.ListenAddr, token,
		c.Cache.Backend, c.Refresh.Interval, c.Download.Concurrency,
	)
}

// Loader resolves configuration from defaults, an optional YAML file and the
// environment.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration with precedence ENV > file > defaults and
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}
	setDefaults(&cfg)

	if l.configPath != "" {
		fileCfg, err := loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *AppConfig) {
	cfg.DataDir = "./data"
	cfg.LogLevel = "info"

	cfg.API.ListenAddr = ":8080"
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = ":9090"

	cfg.Refresh.Interval = 0
	cfg.Refresh.Concurrency = 4
	cfg.Refresh.OnStart = true

	cfg.Download.Attempts = 10
	cfg.Download.Timeout = 2 * time.Minute
	cfg.Download.Backoff = 500 * time.Millisecond
	cfg.Download.Concurrency = 4
	cfg.Download.HostRPS = 4

	cfg.Cache.Backend = CacheBackendMemory
	cfg.Cache.TTL = 15 * time.Minute

	cfg.Telemetry.Protocol = "grpc"
	cfg.Telemetry.SampleRatio = 1.0
}

// loadFile parses the YAML file strictly: unknown fields and trailing
// documents are errors, not surprises at runtime.
func loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path comes from the operator via flag/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	if src.DataDir != "" {
		dst.DataDir = expandEnv(src.DataDir)
	}
	if src.ManifestDir != "" {
		dst.ManifestDir = expandEnv(src.ManifestDir)
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.API.ListenAddr != "" {
		dst.API.ListenAddr = src.API.ListenAddr
	}
	if src.API.Token != "" {
		dst.API.Token = expandEnv(src.API.Token)
	}

	if src.Metrics.Enabled != nil {
		dst.Metrics.Enabled = *src.Metrics.Enabled
	}
	if src.Metrics.ListenAddr != "" {
		dst.Metrics.ListenAddr = src.Metrics.ListenAddr
	}

	if err := mergeDuration(&dst.Refresh.Interval, src.Refresh.Interval, "refresh.interval"); err != nil {
		return err
	}
	if src.Refresh.Concurrency != nil {
		dst.Refresh.Concurrency = *src.Refresh.Concurrency
	}
	if src.Refresh.OnStart != nil {
		dst.Refresh.OnStart = *src.Refresh.OnStart
	}

	if src.Download.Dir != "" {
		dst.Download.Dir = expandEnv(src.Download.Dir)
	}
	if src.Download.Attempts != nil {
		dst.Download.Attempts = *src.Download.Attempts
	}
	if err := mergeDuration(&dst.Download.Timeout, src.Download.Timeout, "download.timeout"); err != nil {
		return err
	}
	if err := mergeDuration(&dst.Download.Backoff, src.Download.Backoff, "download.backoff"); err != nil {
		return err
	}
	if src.Download.Concurrency != nil {
		dst.Download.Concurrency = *src.Download.Concurrency
	}
	if src.Download.HostRPS != nil {
		dst.Download.HostRPS = *src.Download.HostRPS
	}
	if len(src.Download.Allowlist) > 0 {
		dst.Download.Allowlist = src.Download.Allowlist
	}

	if src.Cache.Backend != "" {
		dst.Cache.Backend = src.Cache.Backend
	}
	if src.Cache.RedisAddr != "" {
		dst.Cache.RedisAddr = expandEnv(src.Cache.RedisAddr)
	}
	if err := mergeDuration(&dst.Cache.TTL, src.Cache.TTL, "cache.ttl"); err != nil {
		return err
	}

	if len(src.Lint.Disabled) > 0 {
		dst.Lint.Disabled = src.Lint.Disabled
	}

	if src.Telemetry.Enabled != nil {
		dst.Telemetry.Enabled = *src.Telemetry.Enabled
	}
	if src.Telemetry.Endpoint != "" {
		dst.Telemetry.Endpoint = expandEnv(src.Telemetry.Endpoint)
	}
	if src.Telemetry.Protocol != "" {
		dst.Telemetry.Protocol = src.Telemetry.Protocol
	}
	if src.Telemetry.SampleRatio != nil {
		dst.Telemetry.SampleRatio = *src.Telemetry.SampleRatio
	}
	if src.Telemetry.Insecure != nil {
		dst.Telemetry.Insecure = *src.Telemetry.Insecure
	}
	return nil
}

func mergeDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

func mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = ParseString(EnvDataDir, cfg.DataDir)
	cfg.ManifestDir = ParseString(EnvManifestDir, cfg.ManifestDir)
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)

	cfg.API.ListenAddr = ParseString(EnvListen, cfg.API.ListenAddr)
	cfg.API.Token = ParseString(EnvAPIToken, cfg.API.Token)

	cfg.Metrics.Enabled = ParseBool(EnvMetricsEnabled, cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = ParseString(EnvMetricsListen, cfg.Metrics.ListenAddr)

	cfg.Refresh.Interval = ParseDuration(EnvRefreshInterval, cfg.Refresh.Interval)
	cfg.Refresh.Concurrency = ParseInt(EnvRefreshConcurrency, cfg.Refresh.Concurrency)
	cfg.Refresh.OnStart = ParseBool(EnvRefreshOnStart, cfg.Refresh.OnStart)

	cfg.Download.Dir = ParseString(EnvDownloadDir, cfg.Download.Dir)
	cfg.Download.Attempts = ParseInt(EnvDownloadAttempts, cfg.Download.Attempts)
	cfg.Download.Timeout = ParseDuration(EnvDownloadTimeout, cfg.Download.Timeout)
	cfg.Download.Backoff = ParseDuration(EnvDownloadBackoff, cfg.Download.Backoff)
	cfg.Download.Concurrency = ParseInt(EnvDownloadConcurrency, cfg.Download.Concurrency)
	cfg.Download.HostRPS = ParseFloat(EnvDownloadHostRPS, cfg.Download.HostRPS)
	cfg.Download.Allowlist = parseCommaSeparated(os.Getenv(EnvDownloadAllowlist), cfg.Download.Allowlist)

	cfg.Cache.Backend = ParseString(EnvCacheBackend, cfg.Cache.Backend)
	cfg.Cache.RedisAddr = ParseString(EnvRedisAddr, cfg.Cache.RedisAddr)
	cfg.Cache.TTL = ParseDuration(EnvCacheTTL, cfg.Cache.TTL)

	cfg.Lint.Disabled = parseCommaSeparated(os.Getenv(EnvLintDisabled), cfg.Lint.Disabled)

	cfg.Telemetry.Enabled = ParseBool(EnvOtelEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = ParseString(EnvOtelEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.Protocol = ParseString(EnvOtelProtocol, cfg.Telemetry.Protocol)
	cfg.Telemetry.SampleRatio = ParseFloat(EnvOtelSampleRatio, cfg.Telemetry.SampleRatio)
	cfg.Telemetry.Insecure = ParseBool(EnvOtelInsecure, cfg.Telemetry.Insecure)
}

// parseCommaSeparated splits a comma separated env value, trimming blanks.
// An unset or empty value keeps the defaults.
func parseCommaSeparated(envVal string, defaults []string) []string {
	if envVal == "" {
		return defaults
	}
	parts := strings.Split(envVal, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}

// expandEnv expands ${VAR} or $VAR references in file values.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
