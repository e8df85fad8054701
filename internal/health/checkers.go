// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WritableDirChecker verifies a directory exists and accepts writes. The
// catalog directory must be writable or refreshes cannot land pages.
type WritableDirChecker struct {
	name string
	path string
}

// NewWritableDirChecker creates a checker for directory writability.
func NewWritableDirChecker(name, path string) *WritableDirChecker {
	return &WritableDirChecker{name: name, path: path}
}

func (c *WritableDirChecker) Name() string { return c.name }

func (c *WritableDirChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "directory not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory, got file", Message: c.path}
	}

	probe := filepath.Join(c.path, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "directory not writable"}
	}
	_ = os.Remove(probe)

	return CheckResult{Status: StatusHealthy, Message: "directory writable"}
}

// PingChecker wraps a dependency's ping function (catalog store, Redis).
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker creates a checker from a ping function.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.ping(checkCtx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// LastBuildChecker reports on the most recent catalog refresh. A daemon that
// has never built is unhealthy; a stale build degrades readiness without
// failing it.
type LastBuildChecker struct {
	maxAge       time.Duration
	getLastBuild func() (time.Time, string)
}

// NewLastBuildChecker creates a checker for the last refresh outcome.
// getLastBuild returns the time of the last completed refresh and its error
// message, empty when it succeeded.
func NewLastBuildChecker(maxAge time.Duration, getLastBuild func() (time.Time, string)) *LastBuildChecker {
	return &LastBuildChecker{maxAge: maxAge, getLastBuild: getLastBuild}
}

func (c *LastBuildChecker) Name() string { return "last_build" }

func (c *LastBuildChecker) Check(_ context.Context) CheckResult {
	lastBuild, lastError := c.getLastBuild()

	if lastBuild.IsZero() {
		return CheckResult{Status: StatusUnhealthy, Message: "no completed catalog build yet"}
	}
	if lastError != "" {
		return CheckResult{Status: StatusUnhealthy, Error: lastError, Message: "last catalog build failed"}
	}
	if age := time.Since(lastBuild); c.maxAge > 0 && age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last successful build over %s ago", c.maxAge),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "last catalog build successful"}
}
