// Package upstream talks to OpenAI-compatible chat completion providers,
// falling back through them in configured order.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"

	"github.com/tripmate-ai/tripmate/pkg/config"
	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/models"
)

// ErrNoProviders is returned when no provider is configured.
var ErrNoProviders = errors.New("no providers configured")

// SystemPrompt instructs the model to answer with the itinerary object the
// client knows how to normalize.
const SystemPrompt = `You are TripMate, an upbeat, detail-oriented travel-planning assistant.

Always respond with exactly one valid JSON object and nothing else. Do not wrap it in markdown or code fences.

Keys:
- "reply" (string): 3-4 vivid sentences on the trip's highlights. This is what the chat shows.
- "itinerary" (array): only when the user wants a day-by-day plan. Each element:
  {"day": <integer starting at 1>, "morning": "...", "afternoon": "...", "evening": "...", "estimatedCost": "<amount with local currency symbol>"}

If the user is not asking for a trip plan, reply with {"reply": "<helpful answer>"} and omit "itinerary".`

// StreamPrompt is used for streamed replies, which are shown as text.
const StreamPrompt = `You are TripMate, an upbeat, detail-oriented travel-planning assistant.

Answer in plain text. When the user wants a day-by-day plan, start each day on its own line with "Day N:" and give "Morning:", "Afternoon:" and "Evening:" lines under it.`

type provider struct {
	name   string
	model  string
	client *openai.Client
}

// Client sends prompts to the first provider that answers.
type Client struct {
	providers []provider
	log       *logger.Logger
}

// New builds a Client from provider configs. timeout bounds each attempt.
func New(cfgs []config.ProviderConfig, timeout time.Duration, log *logger.Logger) (*Client, error) {
	if len(cfgs) == 0 {
		return nil, ErrNoProviders
	}
	if log == nil {
		log = logger.NewNop()
	}
	c := &Client{log: log.With("component", "upstream")}
	for _, p := range cfgs {
		oc := openai.DefaultConfig(p.APIKey)
		if p.URL != "" {
			oc.BaseURL = strings.TrimRight(p.URL, "/")
		}
		oc.HTTPClient = &http.Client{Timeout: timeout}
		c.providers = append(c.providers, provider{
			name:   p.Name,
			model:  p.Model,
			client: openai.NewClientWithConfig(oc),
		})
	}
	return c, nil
}

// Model returns the model of the preferred provider.
func (c *Client) Model() string {
	return c.providers[0].model
}

func messages(system, prompt string, days int) []openai.ChatCompletionMessage {
	if days > 0 {
		prompt = fmt.Sprintf("%s\n\nPlan exactly %d days.", prompt, days)
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
}

// Complete returns the full reply to prompt.
func (c *Client) Complete(ctx context.Context, prompt string, days int) (models.Completion, error) {
	var lastErr error
	for _, p := range c.providers {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       p.model,
			Messages:    messages(SystemPrompt, prompt, days),
			Temperature: 0.2,
		})
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", p.name, err)
			if retryable(ctx, err) {
				c.log.Warn("upstream failed, trying next", "provider", p.name, "error", err)
				continue
			}
			return models.Completion{}, lastErr
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("%s: no choices returned", p.name)
			c.log.Warn("upstream returned no choices, trying next", "provider", p.name)
			continue
		}
		return models.Completion{
			Text:     resp.Choices[0].Message.Content,
			Model:    lo.CoalesceOrEmpty(resp.Model, p.model),
			Provider: p.name,
			Usage: models.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}, nil
	}
	return models.Completion{}, fmt.Errorf("all upstream providers failed: %w", lastErr)
}

// Stream sends prompt and calls onDelta with each piece of text as it
// arrives. Fallback only happens before the first delta; after that a
// failure is returned with the text received so far in the Completion.
func (c *Client) Stream(ctx context.Context, prompt string, days int, onDelta func(string) error) (models.Completion, error) {
	var lastErr error
	for _, p := range c.providers {
		stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: messages(StreamPrompt, prompt, days),
			Stream:   true,
		})
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", p.name, err)
			if retryable(ctx, err) {
				c.log.Warn("upstream stream failed, trying next", "provider", p.name, "error", err)
				continue
			}
			return models.Completion{}, lastErr
		}
		comp, err := drain(stream, onDelta)
		comp.Provider = p.name
		comp.Model = lo.CoalesceOrEmpty(comp.Model, p.model)
		if err != nil {
			return comp, fmt.Errorf("%s: %w", p.name, err)
		}
		return comp, nil
	}
	return models.Completion{}, fmt.Errorf("all upstream providers failed: %w", lastErr)
}

func drain(stream *openai.ChatCompletionStream, onDelta func(string) error) (models.Completion, error) {
	defer stream.Close()
	var comp models.Completion
	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			comp.Text = sb.String()
			return comp, err
		}
		if comp.Model == "" {
			comp.Model = resp.Model
		}
		if resp.Usage != nil {
			comp.Usage = models.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				comp.Text = sb.String()
				return comp, err
			}
		}
	}
	comp.Text = sb.String()
	return comp, nil
}

// retryable reports whether err warrants trying the next provider: network
// failures and 5xx responses do, 4xx responses and cancellation do not.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500
	}
	return true
}

// StatusCode extracts the upstream HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
