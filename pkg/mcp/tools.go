package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tripmate-ai/tripmate/pkg/models"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"tripmate_itinerary":     handleItinerary,
	"tripmate_day":           handleDay,
	"tripmate_cache_status":  handleCacheStatus,
	"tripmate_prompt_cache":  handlePromptCache,
	"tripmate_journal":       handleJournalSearch,
	"tripmate_journal_stats": handleJournalStats,
}

var noArgs = map[string]any{
	"type":       "object",
	"properties": map[string]any{},
}

var allTools = []ToolDefinition{
	{
		Name:        "tripmate_itinerary",
		Description: "Show the cached travel itinerary, day by day.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"format": map[string]any{
					"type":        "string",
					"enum":        []string{"text", "json"},
					"description": "Output format (default text)",
				},
			},
		},
	},
	{
		Name:        "tripmate_day",
		Description: "Show a single day of the cached itinerary.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"day"},
			"properties": map[string]any{
				"day": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"description": "Day number",
				},
			},
		},
	},
	{
		Name:        "tripmate_cache_status",
		Description: "Show when the itinerary cache was written and what it holds.",
		InputSchema: noArgs,
	},
	{
		Name:        "tripmate_prompt_cache",
		Description: "Show gateway prompt cache statistics (entries, hits, misses, hit rate).",
		InputSchema: noArgs,
	},
	{
		Name:        "tripmate_journal",
		Description: "Search the gateway reply journal with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"shape": map[string]any{
					"type":        "string",
					"description": "Filter by reply shape, e.g. FreeformDayText (optional)",
				},
				"endpoint": map[string]any{
					"type":        "string",
					"description": "Filter by endpoint, /api/ask or /api/itinerary (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum entries to return (default 50)",
				},
			},
		},
	},
	{
		Name:        "tripmate_journal_stats",
		Description: "Show reply counts grouped by shape and day.",
		InputSchema: noArgs,
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

type itineraryArgs struct {
	Format string `json:"format"`
}

func handleItinerary(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args itineraryArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	it, ok := s.itinerary.Current(ctx)
	if !ok {
		return textResult("No itinerary cached.")
	}
	if args.Format == "json" {
		data, err := json.MarshalIndent(it, "", "  ")
		if err != nil {
			return errorResult("Error encoding itinerary: " + err.Error())
		}
		return textResult(string(data))
	}
	return textResult(formatItinerary(it))
}

type dayArgs struct {
	Day int `json:"day"`
}

func handleDay(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args dayArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.Day < 1 {
		return errorResult("day is required and must be positive")
	}
	for d := range s.itinerary.Days(ctx) {
		if d.Day == args.Day {
			return textResult(formatDay(d))
		}
	}
	return textResult(fmt.Sprintf("Day %d is not in the cached itinerary.", args.Day))
}

func handleCacheStatus(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	entry, ok := s.itinerary.Entry(ctx)
	if !ok {
		return textResult("No itinerary cached.")
	}
	return textResult(formatCacheEntry(entry))
}

func handlePromptCache(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.prompts == nil {
		return textResult("Prompt cache is not configured.")
	}
	stats, err := s.prompts.Stats()
	if err != nil {
		return errorResult("Error fetching prompt cache stats: " + err.Error())
	}
	return textResult(formatPromptCacheStats(stats))
}

type journalArgs struct {
	Shape    string `json:"shape"`
	Endpoint string `json:"endpoint"`
	Since    string `json:"since"`
	Limit    int    `json:"limit"`
}

func handleJournalSearch(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.journal == nil {
		return textResult("Reply journal is not configured.")
	}
	var args journalArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}

	opts := models.JournalQueryOpts{
		Shape:    models.Shape(args.Shape),
		Endpoint: args.Endpoint,
		Limit:    args.Limit,
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.journal.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching journal: " + err.Error())
	}
	return textResult(formatJournalEntries(entries))
}

func handleJournalStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.journal == nil {
		return textResult("Reply journal is not configured.")
	}
	stats, err := s.journal.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching journal stats: " + err.Error())
	}
	return textResult(formatJournalStats(stats))
}
