// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/irfnrdh/tensorflow-datasets/internal/lint"
)

// Validate checks a resolved configuration and fails fast on anything the
// daemon could not run with.
func Validate(cfg AppConfig) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	if err := validateListenAddr("api.listenAddr", cfg.API.ListenAddr, false); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if err := validateListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr, false); err != nil {
			return err
		}
		if cfg.Metrics.ListenAddr == cfg.API.ListenAddr {
			return fmt.Errorf("metrics.listenAddr must differ from api.listenAddr (%s)", cfg.API.ListenAddr)
		}
	}

	if cfg.Refresh.Concurrency < 1 || cfg.Refresh.Concurrency > 64 {
		return fmt.Errorf("refresh.concurrency must be between 1 and 64, got %d", cfg.Refresh.Concurrency)
	}
	if cfg.Refresh.Interval != 0 && cfg.Refresh.Interval < 10*time.Second {
		return fmt.Errorf("refresh.interval must be at least 10s when set, got %s", cfg.Refresh.Interval)
	}

	if cfg.Download.Attempts < 1 || cfg.Download.Attempts > 20 {
		return fmt.Errorf("download.attempts must be between 1 and 20, got %d", cfg.Download.Attempts)
	}
	if cfg.Download.Concurrency < 1 || cfg.Download.Concurrency > 16 {
		return fmt.Errorf("download.concurrency must be between 1 and 16, got %d", cfg.Download.Concurrency)
	}
	if cfg.Download.Timeout <= 0 {
		return fmt.Errorf("download.timeout must be positive, got %s", cfg.Download.Timeout)
	}
	if cfg.Download.Backoff <= 0 {
		return fmt.Errorf("download.backoff must be positive, got %s", cfg.Download.Backoff)
	}
	if cfg.Download.HostRPS <= 0 {
		return fmt.Errorf("download.hostRps must be positive, got %g", cfg.Download.HostRPS)
	}

	switch cfg.Cache.Backend {
	case CacheBackendMemory, CacheBackendNone:
	case CacheBackendRedis:
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q (want %s, %s or %s)",
			cfg.Cache.Backend, CacheBackendMemory, CacheBackendRedis, CacheBackendNone)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", cfg.Cache.TTL)
	}

	if _, err := lint.New(lint.Options{Disabled: cfg.Lint.Disabled}); err != nil {
		return fmt.Errorf("lint.disabledRules: %w", err)
	}

	switch cfg.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", cfg.Telemetry.Protocol)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sampleRatio must be within [0,1], got %g", cfg.Telemetry.SampleRatio)
	}

	return nil
}

func validateListenAddr(field, addr string, allowEmpty bool) error {
	if addr == "" {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%s must not be empty", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: invalid listen address %q: %w", field, addr, err)
	}
	return nil
}
