package completeness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tripmate-ai/tripmate/pkg/models"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		returned int
		expected int
		raw      string
		want     *models.CompletenessWarning
	}{
		{name: "no expectation", returned: 1, expected: 0},
		{name: "exact", returned: 2, expected: 2},
		{name: "more than asked", returned: 4, expected: 3},
		{name: "partial", returned: 2, expected: 5, want: &models.CompletenessWarning{Returned: 2, Expected: 5}},
		{name: "partial with raw text", returned: 2, expected: 5, raw: "Day 1:...", want: &models.CompletenessWarning{Returned: 2, Expected: 5}},
		{name: "opaque text is not partial", returned: 0, expected: 3, raw: "Sure, here are some ideas..."},
		{name: "empty response", returned: 0, expected: 3, want: &models.CompletenessWarning{Returned: 0, Expected: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.returned, tt.expected, tt.raw))
		})
	}
}

func TestCheckItineraryPartialFreeform(t *testing.T) {
	it := models.Itinerary{
		SourceShape: models.ShapeFreeformDayText,
		RawText:     "Day 1: Temple\nDay 2: Park",
		Days: []models.DayRecord{
			{Day: 1, Notes: []string{"Temple"}},
			{Day: 2, Notes: []string{"Park"}},
		},
	}
	w := CheckItinerary(it, 5)
	if assert.NotNil(t, w) {
		assert.Equal(t, models.CompletenessWarning{Returned: 2, Expected: 5}, *w)
	}
}
