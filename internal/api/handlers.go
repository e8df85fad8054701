// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/irfnrdh/tensorflow-datasets/internal/builder"
	"github.com/irfnrdh/tensorflow-datasets/internal/cache"
	"github.com/irfnrdh/tensorflow-datasets/internal/jobs"
	"github.com/irfnrdh/tensorflow-datasets/internal/lint"
	"github.com/irfnrdh/tensorflow-datasets/internal/log"
	"github.com/irfnrdh/tensorflow-datasets/internal/page"
	"github.com/irfnrdh/tensorflow-datasets/internal/store"
)

// datasetListResponse wraps the catalog list.
type datasetListResponse struct {
	Datasets []store.DatasetRow `json:"datasets"`
}

// handleListDatasets serves GET /api/datasets.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListDatasets(r.Context())
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("list datasets failed")
		writeError(w, http.StatusInternalServerError, "catalog store unavailable")
		return
	}
	if rows == nil {
		rows = []store.DatasetRow{}
	}
	writeJSON(w, http.StatusOK, datasetListResponse{Datasets: rows})
}

// handleGetDataset serves GET /api/datasets/{name}: the full dataset record.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	b, err := s.registry.Get(name)
	if err != nil {
		var notFound *builder.NotFoundError
		if errors.As(err, &notFound) {
			writeNotFound(w, "unknown dataset "+name)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	info, err := b.Info()
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str("dataset", name).Msg("dataset info failed")
		writeError(w, http.StatusInternalServerError, "dataset record unavailable")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleGetDatasetPage serves GET /api/datasets/{name}/page: the rendered
// markdown page, cache first, disk second.
func (s *Server) handleGetDatasetPage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if raw, ok := s.cache.Get(r.Context(), cache.PageKey(name)); ok {
		writeMarkdown(w, raw)
		return
	}

	// CatalogPagePath rejects traversal and non-canonical names.
	path, err := jobs.CatalogPagePath(s.cfg.CatalogDir(), name)
	if err != nil {
		writeNotFound(w, "unknown dataset "+name)
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() > page.MaxPageBytes {
		writeNotFound(w, "no page for dataset "+name)
		return
	}
	raw, err := os.ReadFile(path) // #nosec G304 -- path is confined above
	if err != nil {
		writeNotFound(w, "no page for dataset "+name)
		return
	}

	s.cache.Set(r.Context(), cache.PageKey(name), raw, s.cfg.Cache.TTL)
	writeMarkdown(w, raw)
}

func writeMarkdown(w http.ResponseWriter, raw []byte) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// handleRefresh serves POST /api/refresh. Optional repeated ?dataset=
// parameters restrict the refresh to a subset.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["dataset"]

	status, err := s.runner.Refresh(r.Context(), names)
	if err != nil {
		if errors.Is(err, jobs.ErrRefreshInProgress) {
			writeError(w, http.StatusConflict, "refresh already in progress")
			return
		}
		// The refresh ran but failed as a whole; the status carries the error.
		if status != nil {
			writeJSON(w, http.StatusInternalServerError, status)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleLint serves POST /api/lint: lint a posted markdown document.
func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, page.MaxPageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}
	if len(body) > page.MaxPageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "document exceeds size limit")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty document")
		return
	}

	report, err := s.linter.LintPage(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if report.Findings == nil {
		report.Findings = []lint.Finding{}
	}
	writeJSON(w, http.StatusOK, report)
}

// statusResponse is the GET /api/status body.
type statusResponse struct {
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Datasets      int          `json:"datasets"`
	LastRefresh   *jobs.Status `json:"last_refresh,omitempty"`
}

// handleStatus serves GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Version:       s.cfg.Version,
		UptimeSeconds: int64(time.Since(s.startedAt) / time.Second),
		Datasets:      s.registry.Len(),
		LastRefresh:   s.runner.Last(),
	})
}
