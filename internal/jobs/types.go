// SPDX-License-Identifier: MIT

package jobs

import (
	"time"
)

// Status is the observable state of one catalog refresh.
type Status struct {
	JobID      string    `json:"job_id"`
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	DatasetsTotal     int `json:"datasets_total"`
	DatasetsSucceeded int `json:"datasets_succeeded"`
	DatasetsFailed    int `json:"datasets_failed"`

	LintErrors   int `json:"lint_errors"`
	LintWarnings int `json:"lint_warnings"`

	// Errors maps failed dataset names to their build error.
	Errors map[string]string `json:"errors,omitempty"`

	// Error is set when the refresh failed as a whole.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the refresh completed with failures.
func (s *Status) Failed() bool {
	return s.Error != "" || s.DatasetsFailed > 0
}
