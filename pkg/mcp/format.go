package mcp

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/tripmate-ai/tripmate/pkg/models"
	"github.com/tripmate-ai/tripmate/pkg/segment"
)

var stripEmphasis = strings.NewReplacer(segment.EmphasisOpen, "", segment.EmphasisClose, "")

func formatItinerary(it models.Itinerary) string {
	if len(it.Days) == 0 {
		if it.RawText == "" {
			return "The cached itinerary is empty."
		}
		return it.RawText
	}
	return strings.Join(lo.Map(it.Days, func(d models.DayRecord, _ int) string {
		return formatDay(d)
	}), "\n")
}

func formatDay(d models.DayRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d\n", d.Day)
	for _, slot := range [][2]string{
		{"Morning", d.Morning},
		{"Afternoon", d.Afternoon},
		{"Evening", d.Evening},
		{"Estimated cost", d.EstimatedCost},
	} {
		if slot[1] != "" {
			fmt.Fprintf(&b, "  %s: %s\n", slot[0], stripEmphasis.Replace(slot[1]))
		}
	}
	for _, n := range d.Notes {
		fmt.Fprintf(&b, "  - %s\n", stripEmphasis.Replace(n))
	}
	return b.String()
}

func formatCacheEntry(entry models.CacheEntry) string {
	var b strings.Builder
	b.WriteString("Itinerary Cache\n")
	fmt.Fprintf(&b, "  Written:  %s\n", entry.WrittenAt.Format("2006-01-02 15:04:05"))
	if it := entry.Itinerary; it != nil {
		fmt.Fprintf(&b, "  Shape:    %s\n", it.SourceShape)
		fmt.Fprintf(&b, "  Days:     %d\n", len(it.Days))
	}
	if entry.RawFallbackText != nil {
		fmt.Fprintf(&b, "  Raw text: %d bytes\n", len(*entry.RawFallbackText))
	}
	return b.String()
}

func formatPromptCacheStats(stats models.PromptCacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Prompt Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

func formatJournalEntries(entries []models.JournalEntry) string {
	if len(entries) == 0 {
		return "No journal entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-15s %-18s %6s %6s %8s\n",
		"Time", "Endpoint", "Shape", "Status", "Days", "Latency")
	b.WriteString(strings.Repeat("-", 78) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-20s %-15s %-18s %6d %6d %6dms\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Endpoint, e.Shape, e.StatusCode, e.DayCount, e.LatencyMs)
	}
	return b.String()
}

func formatJournalStats(stats []models.JournalStat) string {
	if len(stats) == 0 {
		return "No journal stats found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-12s %8s\n", "Shape", "Day", "Count")
	b.WriteString(strings.Repeat("-", 42) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-20s %-12s %8d\n", lo.CoalesceOrEmpty(string(s.Shape), "(failed)"), s.Day, s.Count)
	}
	return b.String()
}
