// Package normalize converts a classified reply into the canonical itinerary.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/tripmate-ai/tripmate/pkg/classifier"
	"github.com/tripmate-ai/tripmate/pkg/models"
	"github.com/tripmate-ai/tripmate/pkg/segment"
)

// Result is a normalized itinerary plus soft warnings gathered on the way.
type Result struct {
	Itinerary models.Itinerary
	Warnings  []string
}

// Normalize builds the canonical itinerary for c. It never fails: input it
// cannot use is dropped with a warning.
func Normalize(c classifier.Classification, opts segment.Options) Result {
	var records []models.DayRecord
	var warnings []string

	switch c.Shape {
	case models.ShapeJSONDayArray, models.ShapeJSONWrappedDays, models.ShapeDoubleEncodedJSON:
		for i, raw := range c.Days {
			rec, err := decodeDay(raw)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("element %d skipped: %v", i, err))
				continue
			}
			records = append(records, rec)
		}
	case models.ShapeFreeformDayText:
		records = segment.Parse(c.Text, opts)
	}

	it, more := Canonicalize(models.Itinerary{
		Days:        records,
		RawText:     c.Text,
		SourceShape: c.Shape,
	})
	return Result{Itinerary: it, Warnings: append(warnings, more...)}
}

// Canonicalize enforces the itinerary invariants: every record has a unique
// positive day, empty records are dropped, and days are sorted ascending.
// Records without a usable day take the next unused number in input order;
// for duplicate days the later record wins. Applying it to its own output
// returns an identical itinerary.
func Canonicalize(it models.Itinerary) (models.Itinerary, []string) {
	var warnings []string

	used := make(map[int]bool, len(it.Days))
	for _, rec := range it.Days {
		if rec.Day > 0 {
			used[rec.Day] = true
		}
	}

	next := 1
	byDay := make(map[int]models.DayRecord, len(it.Days))
	for _, rec := range it.Days {
		if rec.Empty() {
			warnings = append(warnings, fmt.Sprintf("day %d dropped: no content", rec.Day))
			continue
		}
		if rec.Day <= 0 {
			for used[next] {
				next++
			}
			rec.Day = next
			used[next] = true
		}
		if _, dup := byDay[rec.Day]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate day %d: later entry wins", rec.Day))
		}
		byDay[rec.Day] = rec
	}

	days := lo.Values(byDay)
	slices.SortFunc(days, func(a, b models.DayRecord) int { return a.Day - b.Day })

	return models.Itinerary{
		Days:        days,
		RawText:     it.RawText,
		SourceShape: it.SourceShape,
	}, warnings
}

var digitsRe = regexp.MustCompile(`\d+`)

// decodeDay reads one structured day element. Keys are matched
// case-insensitively.
func decodeDay(raw json.RawMessage) (models.DayRecord, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return models.DayRecord{}, fmt.Errorf("not an object")
	}
	fields := lo.MapKeys(obj, func(_ json.RawMessage, k string) string { return strings.ToLower(k) })

	rec := models.DayRecord{
		Day:       dayNumber(fields["day"]),
		Morning:   textValue(fields["morning"]),
		Afternoon: textValue(fields["afternoon"]),
		Evening:   textValue(fields["evening"]),
		Notes:     listValue(fields["notes"]),
	}
	for _, key := range []string{"estimatedcost", "estimated_cost", "cost"} {
		if v := textValue(fields[key]); v != "" {
			rec.EstimatedCost = v
			break
		}
	}
	if !rec.Slotted() {
		slotActivities(&rec, fields["activities"])
	}
	return rec, nil
}

// dayNumber accepts 3, "3" and "Day 3". Anything else is 0, meaning missing.
func dayNumber(raw json.RawMessage) int {
	if raw == nil {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f >= 1 && f < 1<<31 && f == float64(int(f)) {
			return int(f)
		}
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if m := digitsRe.FindString(s); m != "" {
			if n, err := strconv.Atoi(m); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// textValue renders a slot value. Lists are joined with "; ".
func textValue(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return segment.CleanLine(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Join(listValue(raw), "; ")
}

func listValue(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if s = segment.CleanLine(s); s != "" {
				return []string{s}
			}
		}
		return nil
	}
	out := lo.FilterMap(items, func(item json.RawMessage, _ int) (string, bool) {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			s = segment.CleanLine(s)
			return s, s != ""
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			return n.String(), true
		}
		return "", false
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

type activity struct {
	Time     string `json:"time"`
	Place    string `json:"place"`
	Activity string `json:"activity"`
	Name     string `json:"name"`
}

// slotActivities assigns {time, place} activities to slots by hour: before
// 12:00 morning, before 17:00 afternoon, otherwise evening. Untimed
// activities go to the morning.
func slotActivities(rec *models.DayRecord, raw json.RawMessage) {
	if raw == nil {
		return
	}
	var acts []activity
	if err := json.Unmarshal(raw, &acts); err != nil {
		return
	}
	for _, a := range acts {
		label := segment.CleanLine(lo.CoalesceOrEmpty(a.Place, a.Activity, a.Name))
		if label == "" {
			continue
		}
		slot := &rec.Morning
		if hour, ok := parseHour(a.Time); ok {
			switch {
			case hour >= 17:
				slot = &rec.Evening
			case hour >= 12:
				slot = &rec.Afternoon
			}
			label = strings.TrimSpace(a.Time) + " " + label
		}
		if *slot == "" {
			*slot = label
		} else {
			*slot += "; " + label
		}
	}
}

func parseHour(t string) (int, bool) {
	h, _, ok := strings.Cut(strings.TrimSpace(t), ":")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(h)
	if err != nil || n < 0 || n > 23 {
		return 0, false
	}
	return n, true
}
