// SPDX-License-Identifier: MIT

package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const urlKeyPrefix = "url:"

// IndexEntry records what a previous fetch of a URL produced.
type IndexEntry struct {
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	FetchedAt   time.Time `json:"fetchedAt"`
	ContentType string    `json:"contentType,omitempty"`
}

// Index maps source URLs to their content-addressed artifacts. It backs the
// cache-hit decision: a URL with an index entry whose file is still present
// is never fetched again.
type Index struct {
	db *badger.DB
}

// OpenIndex opens (or creates) the badger-backed index at path.
func OpenIndex(path string) (*Index, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open download index: %w", err)
	}
	return &Index{db: db}, nil
}

// OpenInMemoryIndex opens an index that lives only for the process. Used by
// tests and by managers without a persistent cache directory.
func OpenInMemoryIndex() (*Index, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory download index: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

// Get returns the entry for a URL, or nil when the URL was never fetched.
func (ix *Index) Get(ctx context.Context, rawURL string) (*IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := []byte(urlKeyPrefix + rawURL)
	var entry IndexEntry
	err := ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Put records a fetched URL.
func (ix *Index) Put(ctx context.Context, rawURL string, entry *IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := []byte(urlKeyPrefix + rawURL)
	return ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

// Delete forgets a URL. Deleting an unknown URL is not an error.
func (ix *Index) Delete(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(urlKeyPrefix + rawURL)
	return ix.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Each visits every indexed URL. The callback returning an error stops the
// scan and surfaces that error.
func (ix *Index) Each(ctx context.Context, fn func(rawURL string, entry *IndexEntry) error) error {
	prefix := []byte(urlKeyPrefix)
	return ix.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			item := it.Item()
			rawURL := string(item.Key()[len(prefix):])
			var entry IndexEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if err := fn(rawURL, &entry); err != nil {
				return err
			}
		}
		return nil
	})
}
