// Package cache persists extraction results keyed by a file fingerprint so
// re-ingesting an unchanged file skips the expensive extract/analyze/embed
// path entirely. Entries live in a single bbolt file and expire after a TTL;
// a changed file produces a new fingerprint, which is a natural miss.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultTTL is how long a cache entry stays valid. Seven days matches the
// cadence at which indexed source material tends to be refreshed.
const DefaultTTL = 7 * 24 * time.Hour

// bucketDocuments holds one JSON entry per file fingerprint.
var bucketDocuments = []byte("documents")

// Entry is one cached extraction result.
type Entry struct {
	// Fingerprint identifies the exact file state this entry was built from.
	Fingerprint string `json:"fingerprint"`
	// Source is the origin file path.
	Source string `json:"source"`
	// Kind is the detected file kind ("pdf", "image", ...).
	Kind string `json:"kind"`
	// Text is the extracted document text, or the vision analysis for images.
	Text string `json:"text"`
	// ChunkIDs lists the vector-store point IDs created from this file.
	ChunkIDs []string `json:"chunk_ids"`
	// CreatedAt is when the entry was written; expiry is measured from here.
	CreatedAt time.Time `json:"created_at"`
}

// Cache is a TTL-bounded disk cache over a bbolt file.
// Safe for concurrent use.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
}

// Open opens (or creates) the cache file at path. ttl <= 0 uses DefaultTTL.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create directory %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Fingerprint derives the cache key for a file from its path, modification
// time, and size. Any change to the file contents changes the mtime or size,
// invalidating the old entry without an explicit delete.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cache: stat %s: %w", path, err)
	}
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get looks up an entry by fingerprint. Expired and undecodable entries are
// deleted and reported as a miss — a corrupt record must never poison the
// pipeline.
func (c *Cache) Get(fingerprint string) (*Entry, bool, error) {
	var entry *Entry
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		raw := b.Get([]byte(fingerprint))
		if raw == nil {
			return nil
		}

		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return b.Delete([]byte(fingerprint))
		}
		if time.Since(e.CreatedAt) > c.ttl {
			return b.Delete([]byte(fingerprint))
		}

		entry = &e
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}
	return entry, entry != nil, nil
}

// Put stores an entry keyed by its fingerprint. A zero CreatedAt is set to now.
func (c *Cache) Put(entry *Entry) error {
	if entry.Fingerprint == "" {
		return fmt.Errorf("cache: entry has no fingerprint")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(entry.Fingerprint), raw)
	})
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// Purge removes all expired entries and returns how many were deleted.
func (c *Cache) Purge() (int, error) {
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		cur := b.Cursor()
		var stale [][]byte
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil || time.Since(e.CreatedAt) > c.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cache: purge: %w", err)
	}
	return removed, nil
}

// Len returns the number of entries currently stored, expired or not.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketDocuments).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache: len: %w", err)
	}
	return n, nil
}

// Close closes the underlying bbolt file.
func (c *Cache) Close() error {
	return c.db.Close()
}
