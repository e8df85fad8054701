// SPDX-License-Identifier: MIT
package download

import (
	"context"
	"testing"
	"time"
)

func TestIndexRoundTrip(t *testing.T) {
	ix, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("OpenIndex() failed: %v", err)
	}
	defer func() { _ = ix.Close() }()

	ctx := context.Background()
	url := "https://storage.googleapis.com/c4/en/train-00000.json.gz"
	entry := &IndexEntry{
		Checksum:    "0f343b0931126a20f133d67c2b018a3b",
		Size:        1 << 20,
		FetchedAt:   time.Now().UTC().Truncate(time.Second),
		ContentType: "application/gzip",
	}

	if err := ix.Put(ctx, url, entry); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := ix.Get(ctx, url)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for stored URL")
	}
	if got.Checksum != entry.Checksum || got.Size != entry.Size || got.ContentType != entry.ContentType {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}
	if !got.FetchedAt.Equal(entry.FetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, entry.FetchedAt)
	}
}

func TestIndexGetUnknownURL(t *testing.T) {
	ix, err := OpenInMemoryIndex()
	if err != nil {
		t.Fatalf("OpenInMemoryIndex() failed: %v", err)
	}
	defer func() { _ = ix.Close() }()

	got, err := ix.Get(context.Background(), "https://example.com/never-fetched")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for unknown URL", got)
	}
}

func TestIndexDelete(t *testing.T) {
	ix, err := OpenInMemoryIndex()
	if err != nil {
		t.Fatalf("OpenInMemoryIndex() failed: %v", err)
	}
	defer func() { _ = ix.Close() }()

	ctx := context.Background()
	url := "https://example.com/file"
	if err := ix.Put(ctx, url, &IndexEntry{Checksum: "ab", Size: 2}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := ix.Delete(ctx, url); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if got, _ := ix.Get(ctx, url); got != nil {
		t.Error("entry survived Delete()")
	}
	// Deleting again is fine.
	if err := ix.Delete(ctx, url); err != nil {
		t.Errorf("repeated Delete() failed: %v", err)
	}
}

func TestIndexEach(t *testing.T) {
	ix, err := OpenInMemoryIndex()
	if err != nil {
		t.Fatalf("OpenInMemoryIndex() failed: %v", err)
	}
	defer func() { _ = ix.Close() }()

	ctx := context.Background()
	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}
	for i, u := range urls {
		if err := ix.Put(ctx, u, &IndexEntry{Checksum: "c", Size: int64(i)}); err != nil {
			t.Fatalf("Put(%s) failed: %v", u, err)
		}
	}

	seen := make(map[string]bool)
	err = ix.Each(ctx, func(rawURL string, entry *IndexEntry) error {
		seen[rawURL] = true
		return nil
	})
	if err != nil {
		t.Fatalf("Each() failed: %v", err)
	}
	for _, u := range urls {
		if !seen[u] {
			t.Errorf("Each() missed %s", u)
		}
	}
}
