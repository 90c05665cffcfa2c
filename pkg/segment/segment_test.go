package segment

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tripmate-ai/tripmate/pkg/models"
)

func TestParseFreeformWithMarkup(t *testing.T) {
	text := "Day 1: Visit **Senso-ji**\n* walk around\nDay 2: Relax at the park"

	got := Parse(text, Options{})
	want := []models.DayRecord{
		{Day: 1, Notes: []string{"Visit <strong>Senso-ji</strong>", "walk around"}},
		{Day: 2, Notes: []string{"Relax at the park"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLabelledSlots(t *testing.T) {
	text := `Here is your plan!

## Day 1: Arrival
Settle in first.
**Morning:** Tsukiji outer market
- Afternoon: Ginza stroll
* Evening: Sushi dinner
  - try the omakase
Estimated cost: ¥12,000

**Day 2:**
Morning: Meiji Shrine
Evening: Shibuya crossing
`
	got := Parse(text, Options{})
	want := []models.DayRecord{
		{
			Day:           1,
			Morning:       "Tsukiji outer market",
			Afternoon:     "Ginza stroll",
			Evening:       "Sushi dinner; try the omakase",
			EstimatedCost: "¥12,000",
			Notes:         []string{"Arrival", "Settle in first."},
		},
		{Day: 2, Morning: "Meiji Shrine", Evening: "Shibuya crossing"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitDiscardsPreamble(t *testing.T) {
	segs := Split("Sure! Here you go.\nDay 1: A\nDay 2:\nB", Options{})
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Day != 1 || segs[0].Body != " A\n" {
		t.Errorf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Day != 2 || segs[1].Body != "\nB" {
		t.Errorf("unexpected second segment: %+v", segs[1])
	}
}

func TestTrailingHeaderDropped(t *testing.T) {
	got := Parse("Day 1: Temple\nDay 2:", Options{})
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Day != 1 {
		t.Errorf("expected day 1, got %d", got[0].Day)
	}
}

func TestHeaderRequiresColonOrNewline(t *testing.T) {
	if HasHeader("We fly out on Day 3 of the trip", Options{}) {
		t.Error("header without colon or newline should not match")
	}
	if !HasHeader("Day 3\nBeach", Options{}) {
		t.Error("header followed by newline should match")
	}
	if HasHeader("Holiday 3: nope", Options{}) {
		t.Error("word-internal Day should not match")
	}
}

func TestAnchoredHeaders(t *testing.T) {
	text := "Day 1: Rest, then on Day 2: we move on\nDay 2: Kyoto"

	loose := Split(text, Options{})
	if len(loose) != 3 {
		t.Errorf("expected 3 loose segments, got %d", len(loose))
	}

	anchored := Parse(text, Options{Anchored: true})
	if len(anchored) != 2 {
		t.Fatalf("expected 2 anchored records, got %d", len(anchored))
	}
	if anchored[0].Notes[0] != "Rest, then on Day 2: we move on" {
		t.Errorf("inline mention should stay in body, got %q", anchored[0].Notes[0])
	}
}

func TestCleanLine(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"* walk around", "walk around"},
		{"- **Senso-ji** and **Asakusa**", "<strong>Senso-ji</strong> and <strong>Asakusa</strong>"},
		{"  plain  ", "plain"},
		{"*not a bullet*", "*not a bullet*"},
	}
	for _, tt := range tests {
		if got := CleanLine(tt.in); got != tt.want {
			t.Errorf("CleanLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
