package models

// Shape tags the structural form of a raw assistant reply.
type Shape string

const (
	// ShapeJSONDayArray is a top-level JSON array of day objects.
	ShapeJSONDayArray Shape = "JsonDayArray"
	// ShapeJSONWrappedDays is a JSON object carrying a days array.
	ShapeJSONWrappedDays Shape = "JsonWrappedDays"
	// ShapeDoubleEncodedJSON is a JSON object whose reply field holds JSON text.
	ShapeDoubleEncodedJSON Shape = "DoubleEncodedJson"
	// ShapeFreeformDayText is plain text with one or more "Day N" headers.
	ShapeFreeformDayText Shape = "FreeformDayText"
	// ShapeOpaqueText is anything else, including empty input.
	ShapeOpaqueText Shape = "OpaqueText"
)

// Structured reports whether the shape came from a JSON branch.
func (s Shape) Structured() bool {
	switch s {
	case ShapeJSONDayArray, ShapeJSONWrappedDays, ShapeDoubleEncodedJSON:
		return true
	}
	return false
}

// DayRecord is the canonical representation of one itinerary day.
// Notes holds cleaned prose lines that carried no slot label.
type DayRecord struct {
	Day           int      `json:"day"`
	Morning       string   `json:"morning"`
	Afternoon     string   `json:"afternoon"`
	Evening       string   `json:"evening"`
	EstimatedCost string   `json:"estimatedCost,omitempty"`
	Notes         []string `json:"notes,omitempty"`
}

// Empty reports whether the record carries no renderable content.
func (d DayRecord) Empty() bool {
	return d.Morning == "" && d.Afternoon == "" && d.Evening == "" && len(d.Notes) == 0
}

// Slotted reports whether any time-slot field is set.
func (d DayRecord) Slotted() bool {
	return d.Morning != "" || d.Afternoon != "" || d.Evening != ""
}

// Itinerary is the normalized result of one assistant reply.
type Itinerary struct {
	Days        []DayRecord `json:"days"`
	RawText     string      `json:"rawText,omitempty"`
	SourceShape Shape       `json:"sourceShape"`
}

// Empty reports whether there is nothing to render.
func (it Itinerary) Empty() bool {
	return len(it.Days) == 0 && it.RawText == ""
}

// CompletenessWarning signals that fewer days came back than were asked for.
type CompletenessWarning struct {
	Returned int `json:"returned"`
	Expected int `json:"expected"`
}
