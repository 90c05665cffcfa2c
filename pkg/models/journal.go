package models

import "time"

// JournalEntry records one reply served by the gateway.
type JournalEntry struct {
	RequestID    string    `json:"request_id"`
	Endpoint     string    `json:"endpoint"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	PromptHash   string    `json:"prompt_hash"`
	Shape        Shape     `json:"shape"`
	DayCount     int       `json:"day_count"`
	ExpectedDays int       `json:"expected_days"`
	StatusCode   int       `json:"status_code"`
	CacheHit     bool      `json:"cache_hit"`
	TotalTokens  int       `json:"total_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	Reply        string    `json:"reply,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// JournalQueryOpts specifies filters for querying journal entries.
type JournalQueryOpts struct {
	Shape     Shape
	Endpoint  string
	RequestID string
	Since     time.Time
	Limit     int
}

// JournalStat holds aggregate counts for a shape/day combination.
type JournalStat struct {
	Shape Shape
	Day   string
	Count int
}
