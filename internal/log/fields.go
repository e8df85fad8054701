// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Catalog fields
	FieldDataset = "dataset"
	FieldConfig  = "config"
	FieldRule    = "rule"

	// Path / URL fields
	FieldPath     = "path"
	FieldURL      = "url"
	FieldPagePath = "page_path"

	// Download fields
	FieldChecksum = "checksum"
	FieldAttempt  = "attempt"
)
