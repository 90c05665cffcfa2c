// Package classifier tags a complete reply payload with its structural shape.
//
// The rules run in a fixed order and every input lands on exactly one shape.
// JSON that fails to parse is never an error; the payload simply moves on to
// the text rules.
package classifier

import (
	"encoding/json"
	"strings"

	"github.com/tripmate-ai/tripmate/pkg/models"
	"github.com/tripmate-ai/tripmate/pkg/segment"
)

// ReplyField is the designated text field of a JSON reply object.
const ReplyField = "reply"

// dayArrayFields are the object keys that may carry a list of days.
// "itinerary" is what the gateway's model is instructed to emit.
var dayArrayFields = []string{"days", "itinerary"}

// Classification is the classifier's verdict on one payload.
type Classification struct {
	Shape models.Shape
	// Text is the prose to segment or display: the reply field when one was
	// found, otherwise the payload itself. Empty for unusable input.
	Text string
	// Days holds the raw day elements for structured shapes.
	Days []json.RawMessage
}

// Classify inspects payload. contentType is the transport's declared content
// type; only a JSON content type enables the structured rules.
func Classify(payload, contentType string, opts segment.Options) Classification {
	text := payload
	if IsJSONContentType(contentType) {
		if c, ok := classifyJSON(payload); ok {
			return c
		} else if c.Text != "" {
			text = c.Text
		}
	}
	return classifyText(text, opts)
}

// IsJSONContentType reports whether a content type declares structured data.
func IsJSONContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == string(models.ContentJSON) || strings.Contains(ct, "json")
}

func classifyText(text string, opts segment.Options) Classification {
	if strings.TrimSpace(text) == "" {
		return Classification{Shape: models.ShapeOpaqueText}
	}
	if segment.HasHeader(text, opts) {
		return Classification{Shape: models.ShapeFreeformDayText, Text: text}
	}
	return Classification{Shape: models.ShapeOpaqueText, Text: text}
}

// classifyJSON applies the structured rules. When it returns false, a
// non-empty Text in the result is the reply string to classify as prose.
func classifyJSON(payload string) (Classification, bool) {
	body := []byte(StripCodeFence(payload))

	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil && arr != nil {
		return Classification{Shape: models.ShapeJSONDayArray, Days: arr}, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		var s string
		if json.Unmarshal(body, &s) == nil {
			return Classification{Text: s}, false
		}
		return Classification{}, false
	}

	reply := stringField(obj, ReplyField)
	if days, ok := dayArray(obj); ok {
		return Classification{Shape: models.ShapeJSONWrappedDays, Text: reply, Days: days}, true
	}

	if reply == "" {
		return Classification{}, false
	}
	inner := []byte(StripCodeFence(reply))
	var innerArr []json.RawMessage
	if err := json.Unmarshal(inner, &innerArr); err == nil && innerArr != nil {
		return Classification{Shape: models.ShapeDoubleEncodedJSON, Days: innerArr}, true
	}
	var innerObj map[string]json.RawMessage
	if err := json.Unmarshal(inner, &innerObj); err == nil {
		if days, ok := dayArray(innerObj); ok {
			return Classification{
				Shape: models.ShapeDoubleEncodedJSON,
				Text:  stringField(innerObj, ReplyField),
				Days:  days,
			}, true
		}
	}
	return Classification{Text: reply}, false
}

func dayArray(obj map[string]json.RawMessage) ([]json.RawMessage, bool) {
	for _, key := range dayArrayFields {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var days []json.RawMessage
		if err := json.Unmarshal(raw, &days); err == nil && days != nil {
			return days, true
		}
	}
	return nil, false
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// StripCodeFence removes a surrounding markdown code fence such as ```json.
func StripCodeFence(s string) string {
	cleaned := strings.TrimSpace(s)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(cleaned[:nl], "[{") {
		cleaned = cleaned[nl+1:]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}
