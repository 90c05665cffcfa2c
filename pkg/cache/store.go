// Package cache keeps the most recent itinerary with a fixed time to live.
//
// The entry is three keys read and written together: the canonical itinerary,
// the raw reply text and the write time in epoch milliseconds. Expiry is lazy:
// nothing happens until Read notices the entry is too old and clears it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/models"
)

// DefaultTTL is how long an entry stays readable after it was written.
const DefaultTTL = 10 * time.Minute

var entryKeys = []string{models.KeyCanonical, models.KeyRawText, models.KeyWrittenAt}

// Backend is a string key/value store. Replace must apply its sets and
// deletes together.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Replace(ctx context.Context, set map[string]string, del []string) error
	Delete(ctx context.Context, keys ...string) error
}

// Store reads and writes the itinerary cache entry.
type Store struct {
	backend Backend
	ttl     time.Duration
	log     *logger.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for recovered failures.
func WithLogger(log *logger.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New creates a Store over backend. A non-positive ttl selects DefaultTTL.
func New(backend Backend, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{backend: backend, ttl: ttl, log: logger.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured time to live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Read returns the cached entry. An entry older than the TTL, or one that
// cannot be decoded, is cleared and reported absent. Backend failures are
// also reported as absent.
func (s *Store) Read(ctx context.Context) (models.CacheEntry, bool) {
	stamp, ok, err := s.backend.Get(ctx, models.KeyWrittenAt)
	if err != nil {
		s.log.Warn("cache read failed", "key", models.KeyWrittenAt, "error", err)
		return models.CacheEntry{}, false
	}
	if !ok {
		return models.CacheEntry{}, false
	}
	ms, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		s.evict(ctx, "corrupt write time", err)
		return models.CacheEntry{}, false
	}
	writtenAt := time.UnixMilli(ms)
	if s.now().Sub(writtenAt) > s.ttl {
		s.evict(ctx, "expired", nil)
		return models.CacheEntry{}, false
	}

	entry := models.CacheEntry{WrittenAt: writtenAt}
	canonical, ok, err := s.backend.Get(ctx, models.KeyCanonical)
	if err != nil {
		s.log.Warn("cache read failed", "key", models.KeyCanonical, "error", err)
		return models.CacheEntry{}, false
	}
	if ok {
		var it models.Itinerary
		if err := json.Unmarshal([]byte(canonical), &it); err != nil {
			s.evict(ctx, "corrupt itinerary", err)
			return models.CacheEntry{}, false
		}
		entry.Itinerary = &it
	}

	raw, ok, err := s.backend.Get(ctx, models.KeyRawText)
	if err != nil {
		s.log.Warn("cache read failed", "key", models.KeyRawText, "error", err)
		return models.CacheEntry{}, false
	}
	if ok {
		entry.RawFallbackText = &raw
	}

	if entry.Itinerary == nil && entry.RawFallbackText == nil {
		return models.CacheEntry{}, false
	}
	return entry, true
}

// Write replaces the entry with the given slots and stamps it with the
// current time. A nil slot removes any previously stored value.
func (s *Store) Write(ctx context.Context, it *models.Itinerary, rawText *string) (time.Time, error) {
	now := s.now()
	set := map[string]string{
		models.KeyWrittenAt: strconv.FormatInt(now.UnixMilli(), 10),
	}
	var del []string

	if it != nil {
		data, err := json.Marshal(it)
		if err != nil {
			return time.Time{}, fmt.Errorf("encode itinerary: %w", err)
		}
		set[models.KeyCanonical] = string(data)
	} else {
		del = append(del, models.KeyCanonical)
	}
	if rawText != nil {
		set[models.KeyRawText] = *rawText
	} else {
		del = append(del, models.KeyRawText)
	}

	if err := s.backend.Replace(ctx, set, del); err != nil {
		return time.Time{}, fmt.Errorf("cache write: %w", err)
	}
	return time.UnixMilli(now.UnixMilli()), nil
}

// Clear removes the entry.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, entryKeys...); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

func (s *Store) evict(ctx context.Context, reason string, cause error) {
	if cause != nil {
		s.log.Warn("cache entry discarded", "reason", reason, "error", cause)
	} else {
		s.log.Debug("cache entry discarded", "reason", reason)
	}
	if err := s.Clear(ctx); err != nil {
		s.log.Warn("cache evict failed", "error", err)
	}
}
