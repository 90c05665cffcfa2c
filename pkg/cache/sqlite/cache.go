// Package sqlite provides SQLite storage for the itinerary cache and the
// gateway's prompt cache.
package sqlite

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tripmate-ai/tripmate/pkg/models"
)

// PromptCache is an exact-match cache of gateway replies.
type PromptCache struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const createPromptTable = `
CREATE TABLE IF NOT EXISTS prompt_cache (
	prompt_hash TEXT NOT NULL,
	model TEXT NOT NULL,
	response BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL,
	PRIMARY KEY (prompt_hash, model)
);
`

// NewPromptCache creates a PromptCache with the given database path and TTL.
func NewPromptCache(dbPath string, ttl time.Duration) (*PromptCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open prompt cache db: %w", err)
	}

	if _, err := db.Exec(createPromptTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate prompt cache db: %w", err)
	}

	return &PromptCache{db: db, ttl: ttl}, nil
}

// HashPrompt computes a SHA-256 hash of the model, prompt and day count.
func HashPrompt(model, prompt string, days int) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(days)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get retrieves a cached response. Expired rows are misses.
func (c *PromptCache) Get(promptHash, model string) ([]byte, bool) {
	var response []byte
	var createdAt time.Time
	var ttlSeconds int64

	err := c.db.QueryRow(
		`SELECT response, created_at, ttl_seconds FROM prompt_cache WHERE prompt_hash = ? AND model = ?`,
		promptHash, model,
	).Scan(&response, &createdAt, &ttlSeconds)

	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if time.Since(createdAt) > ttl {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return response, true
}

// Put stores a response.
func (c *PromptCache) Put(promptHash, model string, response []byte) error {
	ttl := int64(c.ttl.Seconds())
	if ttl < 1 {
		ttl = 1
	}
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO prompt_cache (prompt_hash, model, response, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		promptHash, model, response, time.Now().UTC(), ttl,
	)
	if err != nil {
		return fmt.Errorf("prompt cache put: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *PromptCache) Stats() (models.PromptCacheStats, error) {
	var count int64
	err := c.db.QueryRow(`SELECT COUNT(*) FROM prompt_cache`).Scan(&count)
	if err != nil {
		return models.PromptCacheStats{}, fmt.Errorf("prompt cache stats: %w", err)
	}
	return models.PromptCacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes entries. If expiredOnly is true, only expired entries are removed.
func (c *PromptCache) Clear(expiredOnly bool) error {
	query := `DELETE FROM prompt_cache`
	if expiredOnly {
		query = `DELETE FROM prompt_cache WHERE (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`
	}
	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("prompt cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *PromptCache) Close() error {
	return c.db.Close()
}
