// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh pipeline metrics
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfds_refresh_total",
		Help: "Total number of catalog refreshes by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	refreshDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tfds_refresh_duration_seconds",
		Help:    "Time spent refreshing the whole catalog",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	datasetsRefreshed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tfds_datasets_refreshed",
		Help: "Datasets successfully refreshed in the last run",
	})

	datasetBuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfds_dataset_build_total",
		Help: "Per-dataset build attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	pagesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfds_pages_written_total",
		Help: "Total number of catalog pages written to disk",
	})

	pageWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfds_page_write_errors_total",
		Help: "Total number of catalog page write failures",
	})

	// Lint metrics
	lintFindings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tfds_lint_findings",
		Help: "Lint findings in the last refresh by severity",
	}, []string{"severity"}) // severity=error|warning

	lintFindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfds_lint_findings_total",
		Help: "Total lint findings observed by rule and severity",
	}, []string{"rule", "severity"})

	// Download manager metrics
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfds_downloads_total",
		Help: "Download requests by outcome",
	}, []string{"outcome"}) // outcome=success|failure|cached

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfds_download_bytes_total",
		Help: "Total bytes fetched from remote sources",
	})

	downloadRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfds_download_retries_total",
		Help: "Total download attempts beyond the first",
	})

	downloadDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tfds_download_duration_seconds",
		Help:    "Time spent fetching a single artifact",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	// Page cache metrics
	cacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfds_cache_operations_total",
		Help: "Page cache operations by backend and outcome",
	}, []string{"backend", "outcome"}) // outcome=hit|miss|set|delete|error
)

func IncRefresh(outcome string)           { refreshTotal.WithLabelValues(outcome).Inc() }
func ObserveRefreshDuration(sec float64)  { refreshDurationSeconds.Observe(sec) }
func RecordDatasetsRefreshed(n int)       { datasetsRefreshed.Set(float64(n)) }
func IncDatasetBuild(outcome string)      { datasetBuildTotal.WithLabelValues(outcome).Inc() }
func IncPageWritten()                     { pagesWritten.Inc() }
func IncPageWriteError()                  { pageWriteErrors.Inc() }
func ObserveDownloadDuration(sec float64) { downloadDurationSeconds.Observe(sec) }

func RecordLintTotals(errors, warnings int) {
	lintFindings.WithLabelValues("error").Set(float64(errors))
	lintFindings.WithLabelValues("warning").Set(float64(warnings))
}

func IncLintFinding(rule, severity string) {
	lintFindingsTotal.WithLabelValues(rule, severity).Inc()
}

func IncDownload(outcome string) { downloadsTotal.WithLabelValues(outcome).Inc() }

func AddDownloadBytes(n int64) {
	if n > 0 {
		downloadBytesTotal.Add(float64(n))
	}
}

func IncDownloadRetry() { downloadRetriesTotal.Inc() }

func IncCacheOperation(backend, outcome string) {
	cacheOperations.WithLabelValues(backend, outcome).Inc()
}
