package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripmate-ai/tripmate/pkg/models"
	"github.com/tripmate-ai/tripmate/pkg/segment"
)

const jsonCT = "application/json; charset=utf-8"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		ct       string
		want     models.Shape
		wantDays int
		wantText string
	}{
		{
			name:     "top-level array",
			payload:  `[{"day":1,"morning":"Temple"},{"day":2,"morning":"Park"}]`,
			ct:       jsonCT,
			want:     models.ShapeJSONDayArray,
			wantDays: 2,
		},
		{
			name:     "wrapped days",
			payload:  `{"days":[{"day":1,"morning":"Temple"}]}`,
			ct:       jsonCT,
			want:     models.ShapeJSONWrappedDays,
			wantDays: 1,
		},
		{
			name:     "wrapped itinerary keeps reply",
			payload:  `{"reply":"Three tasty days!","itinerary":[{"day":1},{"day":2},{"day":3}]}`,
			ct:       jsonCT,
			want:     models.ShapeJSONWrappedDays,
			wantDays: 3,
			wantText: "Three tasty days!",
		},
		{
			name:     "double encoded array",
			payload:  `{"reply":"[{\"day\":1,\"morning\":\"A\",\"afternoon\":\"B\",\"evening\":\"C\"}]"}`,
			ct:       jsonCT,
			want:     models.ShapeDoubleEncodedJSON,
			wantDays: 1,
		},
		{
			name:     "double encoded object with days",
			payload:  `{"reply":"{\"reply\":\"hi\",\"itinerary\":[{\"day\":1}]}"}`,
			ct:       jsonCT,
			want:     models.ShapeDoubleEncodedJSON,
			wantDays: 1,
			wantText: "hi",
		},
		{
			name:     "reply string with day headers",
			payload:  `{"reply":"Day 1: Temple\nDay 2: Park"}`,
			ct:       jsonCT,
			want:     models.ShapeFreeformDayText,
			wantText: "Day 1: Temple\nDay 2: Park",
		},
		{
			name:     "reply string prose",
			payload:  `{"reply":"Sure, here are some ideas..."}`,
			ct:       jsonCT,
			want:     models.ShapeOpaqueText,
			wantText: "Sure, here are some ideas...",
		},
		{
			name:     "code fenced array",
			payload:  "```json\n[{\"day\":1,\"morning\":\"x\"}]\n```",
			ct:       jsonCT,
			want:     models.ShapeJSONDayArray,
			wantDays: 1,
		},
		{
			name:     "json body on stream path is text",
			payload:  `[{"day":1,"morning":"Temple"}]`,
			ct:       "text/plain",
			want:     models.ShapeOpaqueText,
			wantText: `[{"day":1,"morning":"Temple"}]`,
		},
		{
			name:     "truncated json falls through to text rules",
			payload:  `{"reply":"Day 1: Temple`,
			ct:       jsonCT,
			want:     models.ShapeFreeformDayText,
			wantText: `{"reply":"Day 1: Temple`,
		},
		{
			name:     "truncated json without headers",
			payload:  `[{"day":1,"morn`,
			ct:       jsonCT,
			want:     models.ShapeOpaqueText,
			wantText: `[{"day":1,"morn`,
		},
		{
			name:     "freeform stream",
			payload:  "Day 1: Visit **Senso-ji**\n* walk around\nDay 2: Relax at the park",
			want:     models.ShapeFreeformDayText,
			wantText: "Day 1: Visit **Senso-ji**\n* walk around\nDay 2: Relax at the park",
		},
		{
			name:    "empty",
			payload: "   \n",
			ct:      jsonCT,
			want:    models.ShapeOpaqueText,
		},
		{
			name:     "object without usable fields",
			payload:  `{"foo":1}`,
			ct:       jsonCT,
			want:     models.ShapeOpaqueText,
			wantText: `{"foo":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.payload, tt.ct, segment.Options{})
			assert.Equal(t, tt.want, got.Shape)
			assert.Len(t, got.Days, tt.wantDays)
			assert.Equal(t, tt.wantText, got.Text)
		})
	}
}

func TestDoubleEncodedDecodesInnerRecord(t *testing.T) {
	got := Classify(`{"reply":"[{\"day\":1,\"morning\":\"A\",\"afternoon\":\"B\",\"evening\":\"C\"}]"}`, jsonCT, segment.Options{})
	require.Equal(t, models.ShapeDoubleEncodedJSON, got.Shape)
	require.Len(t, got.Days, 1)
	assert.JSONEq(t, `{"day":1,"morning":"A","afternoon":"B","evening":"C"}`, string(got.Days[0]))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `[1]`, StripCodeFence("```[1]```"))
	assert.Equal(t, "plain", StripCodeFence("  plain  "))
}

var shapes = map[models.Shape]bool{
	models.ShapeJSONDayArray:      true,
	models.ShapeJSONWrappedDays:   true,
	models.ShapeDoubleEncodedJSON: true,
	models.ShapeFreeformDayText:   true,
	models.ShapeOpaqueText:        true,
}

func FuzzClassify(f *testing.F) {
	for _, seed := range []string{
		"", "null", "[]", "{", `{"reply":`, `{"days":null}`, "\xff\xfe\x00Day 1:",
		`{"reply":"[{\"day\":"}`, "Day 99999999999999999999999: x", "```", "```json\n",
	} {
		f.Add(seed, jsonCT)
		f.Add(seed, "")
	}
	f.Fuzz(func(t *testing.T, payload, ct string) {
		for _, anchored := range []bool{false, true} {
			got := Classify(payload, ct, segment.Options{Anchored: anchored})
			if !shapes[got.Shape] {
				t.Fatalf("unknown shape %q for %q", got.Shape, payload)
			}
			if got.Shape.Structured() != (got.Days != nil) {
				t.Fatalf("shape %s with days=%v", got.Shape, got.Days)
			}
		}
	})
}
