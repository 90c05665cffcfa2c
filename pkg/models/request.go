package models

// AskRequest is the body of POST /api/ask and POST /api/itinerary.
type AskRequest struct {
	Prompt string `json:"prompt"`
	Days   int    `json:"days,omitempty"`
}

// ReplyEnvelope is the JSON object the gateway returns when the model
// did not produce a parseable object of its own.
type ReplyEnvelope struct {
	Reply string `json:"reply"`
}

// ContentKind distinguishes the two ways a reply can be delivered.
type ContentKind string

const (
	ContentJSON   ContentKind = "json"
	ContentStream ContentKind = "stream"
)

// Completion is the text produced by an upstream model plus metadata.
type Completion struct {
	Text     string `json:"text"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Usage    Usage  `json:"usage"`
}

// Usage holds token counts reported by the upstream provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
