// Package segment splits freeform itinerary text into day-indexed records.
//
// A day header is the word "Day", optional spaces, one or more digits and
// then a colon or a line break. Light markdown around the header ("## Day 1:",
// "**Day 2:**") is consumed with it. By default headers may appear anywhere in
// the text, so prose such as "rest on Day 3: it's a long flight" also splits;
// Anchored restricts headers to the start of a line.
package segment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/tripmate-ai/tripmate/pkg/models"
)

// Emphasis markers replace markdown bold in cleaned lines.
const (
	EmphasisOpen  = "<strong>"
	EmphasisClose = "</strong>"
)

const headerCore = `(?:#{1,6}[ \t]*)?(?:\*\*)?\bDay[ \t]*(\d+)(?:\*\*)?[ \t]*(?::(?:\*\*)?|\r?\n)`

var (
	looseHeader    = regexp.MustCompile(headerCore)
	anchoredHeader = regexp.MustCompile(`(?m)^[ \t]*` + headerCore)

	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	bulletRe = regexp.MustCompile(`^(?:[*\-•][ \t]+)+`)
	labelRe  = regexp.MustCompile(`^(?:\*\*)?(?i:(morning|afternoon|evening|estimated cost|cost))(?:\*\*)?[ \t]*:(?:\*\*)?[ \t]*(.*)$`)
)

// Options tunes header detection.
type Options struct {
	Anchored bool
}

// Segment is one day header and the raw text that follows it.
type Segment struct {
	Day  int
	Body string
}

func pattern(opts Options) *regexp.Regexp {
	if opts.Anchored {
		return anchoredHeader
	}
	return looseHeader
}

// HasHeader reports whether text contains at least one day header.
func HasHeader(text string, opts Options) bool {
	return pattern(opts).MatchString(text)
}

// Split cuts text at every day header. Text before the first header is
// discarded. A header whose digits do not fit an int yields Day 0.
func Split(text string, opts Options) []Segment {
	locs := pattern(opts).FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	segs := make([]Segment, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		day, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			day = 0
		}
		segs = append(segs, Segment{Day: day, Body: text[loc[1]:end]})
	}
	return segs
}

// Parse splits text into day records. Bodies that clean up to nothing,
// including a trailing header cut off by a truncated stream, are dropped.
func Parse(text string, opts Options) []models.DayRecord {
	var records []models.DayRecord
	for _, seg := range Split(text, opts) {
		rec := parseBody(seg.Body)
		if rec.Empty() {
			continue
		}
		rec.Day = seg.Day
		records = append(records, rec)
	}
	return records
}

// parseBody maps labelled lines to their slot. Unlabelled lines before the
// first label, or in a body with no labels at all, stay as notes.
func parseBody(body string) models.DayRecord {
	lines := lo.Filter(strings.Split(body, "\n"), func(l string, _ int) bool {
		return strings.TrimSpace(l) != ""
	})

	var rec models.DayRecord
	var current *string
	for _, raw := range lines {
		line := stripBullet(raw)
		if m := labelRe.FindStringSubmatch(line); m != nil {
			current = slotFor(&rec, m[1])
			appendTo(current, CleanLine(m[2]))
			continue
		}
		cleaned := CleanLine(line)
		if cleaned == "" {
			continue
		}
		if current != nil {
			appendTo(current, cleaned)
			continue
		}
		rec.Notes = append(rec.Notes, cleaned)
	}
	return rec
}

func slotFor(rec *models.DayRecord, label string) *string {
	switch strings.ToLower(label) {
	case "morning":
		return &rec.Morning
	case "afternoon":
		return &rec.Afternoon
	case "evening":
		return &rec.Evening
	default:
		return &rec.EstimatedCost
	}
}

func appendTo(slot *string, text string) {
	if text == "" {
		return
	}
	if *slot == "" {
		*slot = text
		return
	}
	*slot += "; " + text
}

func stripBullet(line string) string {
	return bulletRe.ReplaceAllString(strings.TrimSpace(line), "")
}

// CleanLine strips a leading bullet and converts **bold** to emphasis markers.
func CleanLine(line string) string {
	line = stripBullet(line)
	line = boldRe.ReplaceAllString(line, EmphasisOpen+"$1"+EmphasisClose)
	return strings.TrimSpace(line)
}
