// Package cache is a persistent key-value store for network lookup
// results, so repeated enrichment runs do not re-query the same works.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Cache stores lookup responses keyed by request hash.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) a cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS lookups (
  key TEXT PRIMARY KEY,
  value BLOB,
  created_at INTEGER
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached value for key, with ok=false on a miss.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRow("SELECT value FROM lookups WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return value, true, nil
}

// Set stores a value, replacing any previous entry for the key.
func (c *Cache) Set(key string, value []byte) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO lookups (key, value, created_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key hashes the request parts into a stable cache key. Parts are
// NUL-joined so ("ab","c") and ("a","bc") never collide.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
