// Package completeness compares the number of returned days with the number
// the caller asked for.
package completeness

import "github.com/tripmate-ai/tripmate/pkg/models"

// Check returns a warning when fewer than expected days came back. expected
// of zero or less means no expectation was given. A reply with no days but
// some raw text is unstructured rather than partial and never warns.
func Check(returned, expected int, rawText string) *models.CompletenessWarning {
	if expected <= 0 || returned >= expected {
		return nil
	}
	if returned == 0 && rawText != "" {
		return nil
	}
	return &models.CompletenessWarning{Returned: returned, Expected: expected}
}

// CheckItinerary is Check applied to a normalized itinerary.
func CheckItinerary(it models.Itinerary, expected int) *models.CompletenessWarning {
	return Check(len(it.Days), expected, it.RawText)
}
