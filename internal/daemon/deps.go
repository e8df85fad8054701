// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/irfnrdh/tensorflow-datasets/internal/config"
	"github.com/irfnrdh/tensorflow-datasets/internal/jobs"
)

// Refresher triggers a catalog refresh. *jobs.Runner satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, datasets []string) (*jobs.Status, error)
}

// Deps contains the collaborators the daemon Manager needs.
type Deps struct {
	// Logger is the structured logger for the daemon.
	Logger zerolog.Logger

	// Config is the resolved runtime configuration.
	Config config.AppConfig

	// APIHandler serves the catalog API.
	APIHandler http.Handler

	// MetricsHandler serves Prometheus metrics, nil when metrics are disabled.
	MetricsHandler http.Handler

	// Refresher runs catalog refreshes; nil disables the refresh schedule.
	Refresher Refresher
}

// Validate checks that the required dependencies are present.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
