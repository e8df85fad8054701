// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfnrdh/tensorflow-datasets/internal/builder"
	"github.com/irfnrdh/tensorflow-datasets/internal/cache"
	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
	"github.com/irfnrdh/tensorflow-datasets/internal/download"
	"github.com/irfnrdh/tensorflow-datasets/internal/features"
	"github.com/irfnrdh/tensorflow-datasets/internal/store"
)

type stubBuilder struct {
	name string
	info *catalog.DatasetInfo
	err  error
}

func (b *stubBuilder) Name() string { return b.name }

func (b *stubBuilder) Info() (*catalog.DatasetInfo, error) {
	return b.info, b.err
}

func (b *stubBuilder) Splits(context.Context, *download.Manager) ([]builder.SplitSource, error) {
	return nil, nil
}

func c4Info() *catalog.DatasetInfo {
	return &catalog.DatasetInfo{
		Name:        "c4",
		Description: "A colossal, cleaned version of Common Crawl's web crawl corpus.",
		Homepage:    "https://commoncrawl.org",
		Citation:    "@article{2019t5,\n  title = {Exploring the Limits of Transfer Learning},\n  year = {2019},\n}\n",
		Version:     catalog.MustVersion("3.0.1"),
		Features: features.MustDict(map[string]features.Spec{
			"text": features.Text{},
		}),
		URLs: []string{"https://commoncrawl.org"},
		Configs: []catalog.ConfigInfo{
			{Name: "en", Description: "cleaned English", SizeBytes: 866402277786, URLs: []string{"https://commoncrawl.org"}},
		},
	}
}

func newTestRunner(t *testing.T, builders ...builder.Builder) (*Runner, *store.Store, string) {
	t.Helper()

	reg := builder.NewRegistry()
	for _, b := range builders {
		require.NoError(t, reg.Register(b))
	}

	st, err := store.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	catalogDir := filepath.Join(t.TempDir(), "catalog")
	r, err := NewRunner(RunnerOptions{
		Registry:   reg,
		Store:      st,
		Cache:      cache.NewMemory(0),
		CatalogDir: catalogDir,
	})
	require.NoError(t, err)
	return r, st, catalogDir
}

func TestRefreshBuildsAllDatasets(t *testing.T) {
	r, st, catalogDir := newTestRunner(t, &stubBuilder{name: "c4", info: c4Info()})

	status, err := r.Refresh(context.Background(), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, status.JobID)
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.DatasetsTotal)
	assert.Equal(t, 1, status.DatasetsSucceeded)
	assert.Zero(t, status.DatasetsFailed)
	assert.Empty(t, status.Errors)

	// Page landed on disk.
	raw, err := os.ReadFile(filepath.Join(catalogDir, "c4.md"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# c4")

	// Index rewritten.
	idx, err := os.ReadFile(filepath.Join(catalogDir, IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(idx), "`c4` — `3.0.1` (1 config)")

	// Catalog row recorded.
	row, err := st.GetDataset(context.Background(), "c4")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "3.0.1", row.Version)
	assert.Equal(t, 1, row.ConfigCount)
	assert.Equal(t, pageChecksum(raw), row.PageSHA256)

	// Build history recorded as ok.
	builds, _, err := st.RecentBuilds(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, store.BuildOK, builds[0].Status)
	assert.Equal(t, status.JobID, builds[0].ID)
}

func TestRefreshFailingDatasetDoesNotAbortOthers(t *testing.T) {
	r, st, catalogDir := newTestRunner(t,
		&stubBuilder{name: "c4", info: c4Info()},
		&stubBuilder{name: "broken", err: errors.New("manifest unreadable")},
	)

	status, err := r.Refresh(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, status.DatasetsTotal)
	assert.Equal(t, 1, status.DatasetsSucceeded)
	assert.Equal(t, 1, status.DatasetsFailed)
	assert.Contains(t, status.Errors["broken"], "manifest unreadable")

	// The healthy dataset still landed.
	_, err = os.Stat(filepath.Join(catalogDir, "c4.md"))
	require.NoError(t, err)

	builds, _, err := st.RecentBuilds(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, store.BuildFailed, builds[0].Status)
	assert.Equal(t, 1, builds[0].DatasetsFailed)
}

func TestRefreshSubset(t *testing.T) {
	r, _, catalogDir := newTestRunner(t,
		&stubBuilder{name: "c4", info: c4Info()},
		&stubBuilder{name: "untouched", info: func() *catalog.DatasetInfo {
			info := c4Info()
			info.Name = "untouched"
			return info
		}()},
	)

	status, err := r.Refresh(context.Background(), []string{"c4"})
	require.NoError(t, err)
	assert.Equal(t, 1, status.DatasetsTotal)

	_, err = os.Stat(filepath.Join(catalogDir, "untouched.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestRefreshUnknownDatasetIsPerDatasetError(t *testing.T) {
	r, _, _ := newTestRunner(t, &stubBuilder{name: "c4", info: c4Info()})

	status, err := r.Refresh(context.Background(), []string{"nope"})
	require.NoError(t, err)
	assert.Equal(t, 1, status.DatasetsFailed)
	assert.Contains(t, status.Errors["nope"], "no dataset registered")
}

func TestRefreshRejectsConcurrentRun(t *testing.T) {
	r, _, _ := newTestRunner(t, &stubBuilder{name: "c4", info: c4Info()})

	r.inFlight.Store(true)
	_, err := r.Refresh(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	r.inFlight.Store(false)
	_, err = r.Refresh(context.Background(), nil)
	require.NoError(t, err)
}

func TestRefreshPopulatesPageCache(t *testing.T) {
	c := cache.NewMemory(0)
	reg := builder.NewRegistry()
	require.NoError(t, reg.Register(&stubBuilder{name: "c4", info: c4Info()}))

	st, err := store.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r, err := NewRunner(RunnerOptions{
		Registry:   reg,
		Store:      st,
		Cache:      c,
		CatalogDir: filepath.Join(t.TempDir(), "catalog"),
	})
	require.NoError(t, err)

	_, err = r.Refresh(context.Background(), nil)
	require.NoError(t, err)

	page, ok := c.Get(context.Background(), cache.PageKey("c4"))
	require.True(t, ok)
	assert.Contains(t, string(page), "# c4")
}

func TestLastBuild(t *testing.T) {
	r, _, _ := newTestRunner(t,
		&stubBuilder{name: "c4", info: c4Info()},
		&stubBuilder{name: "broken", err: errors.New("boom")},
	)

	// Before any refresh: zero time, no error.
	at, msg := r.LastBuild()
	assert.True(t, at.IsZero())
	assert.Empty(t, msg)

	_, err := r.Refresh(context.Background(), nil)
	require.NoError(t, err)

	at, msg = r.LastBuild()
	assert.False(t, at.IsZero())
	assert.Contains(t, msg, "1 of 2 datasets failed")
	assert.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestLastReturnsCopy(t *testing.T) {
	r, _, _ := newTestRunner(t, &stubBuilder{name: "broken", err: errors.New("boom")})

	_, err := r.Refresh(context.Background(), nil)
	require.NoError(t, err)

	first := r.Last()
	first.Errors["injected"] = "mutation"

	second := r.Last()
	assert.NotContains(t, second.Errors, "injected")
}

// petsBuilder registers a label-mapped manifest whose sources point at srvURL.
func petsBuilder(t *testing.T, srvURL string) builder.Builder {
	t.Helper()

	doc := fmt.Sprintf(`name: pets
description: Labeled pet photos.
version: 1.0.0
features:
  image: image
  label:
    kind: class_label
    names: [cat, dog]
sources:
  - url: %s/cat.1.jpg
  - url: %s/dog.1.jpg
labelMap:
  split: train
  rules:
    - match: cat
      label: cat
    - match: dog
      label: dog
`, srvURL, srvURL)

	dir := t.TempDir()
	path := filepath.Join(dir, "pets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	m, err := builder.LoadManifest(path)
	require.NoError(t, err)
	mb, err := builder.NewManifestBuilder(m, dir)
	require.NoError(t, err)
	return mb
}

func newFetchingRunner(t *testing.T, b builder.Builder) (*Runner, string) {
	t.Helper()

	reg := builder.NewRegistry()
	require.NoError(t, reg.Register(b))

	st, err := store.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	dm, err := download.NewManager(download.Options{Dir: t.TempDir(), Attempts: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	catalogDir := filepath.Join(t.TempDir(), "catalog")
	r, err := NewRunner(RunnerOptions{
		Registry:   reg,
		Store:      st,
		Downloads:  dm,
		CatalogDir: catalogDir,
	})
	require.NoError(t, err)
	return r, catalogDir
}

func TestRefreshFetchesDeclaredSources(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("bytes of " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	r, catalogDir := newFetchingRunner(t, petsBuilder(t, srv.URL))

	status, err := r.Refresh(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, status.DatasetsSucceeded)
	assert.Empty(t, status.Errors)
	assert.EqualValues(t, 2, hits.Load(), "every declared source is fetched")

	_, err = os.Stat(filepath.Join(catalogDir, "pets.md"))
	require.NoError(t, err)
}

func TestRefreshFailingSourceFailsDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	t.Cleanup(srv.Close)

	r, catalogDir := newFetchingRunner(t, petsBuilder(t, srv.URL))

	status, err := r.Refresh(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, status.DatasetsFailed)
	assert.Contains(t, status.Errors["pets"], "404")

	// No page for a dataset whose sources could not be fetched.
	_, err = os.Stat(filepath.Join(catalogDir, "pets.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestCatalogPagePath(t *testing.T) {
	dir := t.TempDir()

	path, err := CatalogPagePath(dir, "c4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "c4.md"), path)

	_, err = CatalogPagePath(dir, "../etc/passwd")
	require.Error(t, err)

	_, err = CatalogPagePath(dir, "NotNormalized")
	require.Error(t, err)
}
