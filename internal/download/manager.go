// SPDX-License-Identifier: MIT

// Package download fetches dataset artifacts into a content-addressed cache.
// Successful downloads are never repeated: a badger index maps each URL to
// the sha256-named file it produced.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/irfnrdh/tensorflow-datasets/internal/log"
	"github.com/irfnrdh/tensorflow-datasets/internal/metrics"
)

// ErrChecksumMismatch marks a download whose content did not hash to the
// expected sha256. Mismatches are never retried.
var ErrChecksumMismatch = errors.New("download: checksum mismatch")

// Request names one artifact to fetch.
type Request struct {
	// Name keys the result map; an empty name defaults to the URL.
	Name string
	URL  string
	// Checksum is an optional expected sha256 (hex). When set, a mismatch
	// fails the request without retrying.
	Checksum string
}

// Result reports one request's outcome. Err is per-request; one failing
// artifact does not fail the batch.
type Result struct {
	Path        string
	Size        int64
	Checksum    string
	ContentType string
	FromCache   bool
	Err         error
}

// Options configures a Manager. Zero fields fall back to defaults.
type Options struct {
	// Dir is the content-addressed cache root. Required.
	Dir string
	// Index maps URLs to cached artifacts. When nil the manager opens a
	// process-local in-memory index.
	Index       *Index
	Client      *http.Client
	Concurrency int           // parallel fetches, clamped to [1,16]
	Attempts    int           // max attempts per request, clamped to [1,20]
	Timeout     time.Duration // per-attempt timeout
	Backoff     time.Duration // base for the quadratic retry backoff
	HostRPS     float64       // per-host request rate
	Policy      *Policy
}

// Manager downloads artifacts with bounded concurrency, per-host rate
// limiting and retry on transient failures.
type Manager struct {
	dir      string
	index    *Index
	ownIndex bool
	client   *http.Client
	conc     int
	attempts int
	timeout  time.Duration
	backoff  time.Duration
	policy   *Policy
	logger   zerolog.Logger

	hostRPS rate.Limit
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewManager creates the cache directory and opens the URL index.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, errors.New("download: cache dir must not be empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	m := &Manager{
		dir:      opts.Dir,
		index:    opts.Index,
		client:   opts.Client,
		conc:     clamp(opts.Concurrency, 4, 1, 16),
		attempts: clamp(opts.Attempts, 10, 1, 20),
		timeout:  opts.Timeout,
		backoff:  opts.Backoff,
		policy:   opts.Policy,
		logger:   log.WithComponent("download"),
		limiters: make(map[string]*rate.Limiter),
	}
	if m.client == nil {
		m.client = &http.Client{}
	}
	if m.timeout <= 0 {
		m.timeout = 2 * time.Minute
	}
	if m.backoff <= 0 {
		m.backoff = 500 * time.Millisecond
	}
	rps := opts.HostRPS
	if rps <= 0 {
		rps = 4
	}
	m.hostRPS = rate.Limit(rps)
	m.burst = int(rps)
	if m.burst < 1 {
		m.burst = 1
	}
	if m.index == nil {
		ix, err := OpenInMemoryIndex()
		if err != nil {
			return nil, err
		}
		m.index = ix
		m.ownIndex = true
	}
	return m, nil
}

// Close releases the index if the manager opened it itself.
func (m *Manager) Close() error {
	if m.ownIndex {
		return m.index.Close()
	}
	return nil
}

// Dir returns the cache root.
func (m *Manager) Dir() string { return m.dir }

// Fetch resolves every request, from cache where possible, and returns one
// result per request name. Requests fail individually; the caller inspects
// each Result.Err.
func (m *Manager) Fetch(ctx context.Context, reqs []Request) map[string]Result {
	results := make(map[string]Result, len(reqs))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.conc)

	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		name := req.Name
		if name == "" {
			name = req.URL
		}
		if _, dup := seen[name]; dup {
			m.logger.Warn().Str("name", name).Msg("skipping duplicate download request")
			continue
		}
		seen[name] = struct{}{}

		req := req
		g.Go(func() error {
			res := m.fetchOne(ctx, req)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FetchOne is the single-request convenience around Fetch.
func (m *Manager) FetchOne(ctx context.Context, req Request) Result {
	return m.fetchOne(ctx, req)
}

func (m *Manager) fetchOne(ctx context.Context, req Request) Result {
	logger := m.logger.With().Str(log.FieldURL, req.URL).Logger()

	if err := m.policy.Check(req.URL); err != nil {
		metrics.IncDownload("failure")
		return Result{Err: err}
	}

	if res, ok := m.fromCache(ctx, req); ok {
		metrics.IncDownload("cached")
		logger.Debug().Str(log.FieldPath, res.Path).Msg("download served from cache")
		return res
	}

	limiter := m.limiterFor(hostOf(req.URL))
	start := time.Now()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= m.attempts; attempt++ {
		attempts = attempt
		if attempt > 1 {
			metrics.IncDownloadRetry()
			wait := m.backoff * time.Duration((attempt-1)*(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				metrics.IncDownload("failure")
				return Result{Err: ctx.Err()}
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			metrics.IncDownload("failure")
			return Result{Err: err}
		}

		res, retryable, err := m.attempt(ctx, req)
		if err == nil {
			metrics.IncDownload("success")
			metrics.AddDownloadBytes(res.Size)
			metrics.ObserveDownloadDuration(time.Since(start).Seconds())
			logger.Info().
				Int64("bytes", res.Size).
				Str(log.FieldChecksum, res.Checksum).
				Int(log.FieldAttempt, attempt).
				Msg("download complete")
			return res
		}
		lastErr = err
		if !retryable {
			break
		}
		logger.Warn().Err(err).Int(log.FieldAttempt, attempt).Msg("download attempt failed")
	}

	metrics.IncDownload("failure")
	return Result{Err: fmt.Errorf("download %s failed after %d attempt(s): %w", req.URL, attempts, lastErr)}
}

// fromCache serves a request from the content store when the index knows the
// URL and the file is still intact.
func (m *Manager) fromCache(ctx context.Context, req Request) (Result, bool) {
	entry, err := m.index.Get(ctx, req.URL)
	if err != nil || entry == nil {
		return Result{}, false
	}
	if req.Checksum != "" && !strings.EqualFold(req.Checksum, entry.Checksum) {
		return Result{}, false
	}
	path := m.pathFor(entry.Checksum)
	st, err := os.Stat(path)
	if err != nil || st.Size() != entry.Size {
		return Result{}, false
	}
	return Result{
		Path:        path,
		Size:        entry.Size,
		Checksum:    entry.Checksum,
		ContentType: entry.ContentType,
		FromCache:   true,
	}, true
}

// attempt performs one HTTP GET. The bool reports whether a failure may be
// retried.
func (m *Manager) attempt(ctx context.Context, req Request) (Result, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return Result{}, false, err
	}
	resp, err := m.client.Do(httpReq)
	if err != nil {
		// transport failures (refused, reset, timeout) are transient
		return Result{}, true, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return Result{}, true, fmt.Errorf("download: unexpected status %d for %s", resp.StatusCode, req.URL)
	default:
		return Result{}, false, fmt.Errorf("download: unexpected status %d for %s", resp.StatusCode, req.URL)
	}

	tmp, err := os.CreateTemp(m.dir, "incoming-*")
	if err != nil {
		return Result{}, false, err
	}
	tmpName := tmp.Name()

	hasher := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		err := copyErr
		if err == nil {
			err = closeErr
		}
		// truncated or failed body read; the next attempt may succeed
		return Result{}, true, err
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if req.Checksum != "" && !strings.EqualFold(req.Checksum, sum) {
		_ = os.Remove(tmpName)
		return Result{}, false, fmt.Errorf("%w for %s: got %s, want %s", ErrChecksumMismatch, req.URL, sum, req.Checksum)
	}

	final := m.pathFor(sum)
	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		_ = os.Remove(tmpName)
		return Result{}, false, err
	}
	if _, err := os.Stat(final); err == nil {
		// identical content already stored
		_ = os.Remove(tmpName)
	} else if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return Result{}, false, err
	}

	contentType := resp.Header.Get("Content-Type")
	entry := &IndexEntry{
		Checksum:    sum,
		Size:        size,
		FetchedAt:   time.Now().UTC(),
		ContentType: contentType,
	}
	if err := m.index.Put(ctx, req.URL, entry); err != nil {
		// the artifact is stored; losing the index entry only costs a
		// future cache hit
		m.logger.Warn().Err(err).Str(log.FieldURL, req.URL).Msg("failed to index download")
	}

	return Result{
		Path:        final,
		Size:        size,
		Checksum:    sum,
		ContentType: contentType,
	}, false, nil
}

func (m *Manager) pathFor(checksum string) string {
	prefix := checksum
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(m.dir, prefix, checksum)
}

func (m *Manager) limiterFor(host string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(m.hostRPS, m.burst)
	m.limiters[host] = lim
	return lim
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func clamp(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
