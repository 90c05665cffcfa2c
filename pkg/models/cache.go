package models

import "time"

// Persisted key names for the itinerary cache entry.
const (
	KeyCanonical = "itinerary.canonical"
	KeyRawText   = "itinerary.rawText"
	KeyWrittenAt = "itinerary.writtenAt"
)

// CacheEntry is the persisted itinerary snapshot.
// Itinerary and RawFallbackText are independent slots; nil means absent.
type CacheEntry struct {
	Itinerary       *Itinerary `json:"itinerary"`
	RawFallbackText *string    `json:"rawFallbackText"`
	WrittenAt       time.Time  `json:"writtenAt"`
}

// PromptCacheStats reports prompt cache performance metrics.
type PromptCacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
