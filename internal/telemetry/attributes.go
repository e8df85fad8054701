// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used across the daemon's spans.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Refresh job attributes
	JobIDKey             = "job.id"
	JobDatasetsTotalKey  = "job.datasets_total"
	JobDatasetsFailedKey = "job.datasets_failed"

	// Dataset build attributes
	DatasetNameKey    = "dataset.name"
	DatasetVersionKey = "dataset.version"
	DatasetConfigsKey = "dataset.configs"

	// Lint attributes
	LintErrorsKey   = "lint.errors"
	LintWarningsKey = "lint.warnings"

	// Download attributes
	DownloadURLKey    = "download.url"
	DownloadBytesKey  = "download.bytes"
	DownloadCachedKey = "download.cached"
)

// Dataset returns the dataset-name span attribute.
func Dataset(name string) attribute.KeyValue {
	return attribute.String(DatasetNameKey, name)
}

// JobID returns the refresh-job-ID span attribute.
func JobID(id string) attribute.KeyValue {
	return attribute.String(JobIDKey, id)
}

// LintCounts returns the lint outcome span attributes.
func LintCounts(errors, warnings int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(LintErrorsKey, errors),
		attribute.Int(LintWarningsKey, warnings),
	}
}
