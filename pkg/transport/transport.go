// Package transport sends prompts to the gateway and hands back either a
// complete JSON body or a lazily read text stream.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tripmate-ai/tripmate/pkg/models"
)

const (
	// RequestIDHeader carries the correlation id between client and gateway.
	RequestIDHeader = "X-Request-ID"

	readSize     = 4096
	maxErrorBody = 4096
)

// Error is a transport failure: a non-success status or a network error.
// Partial holds whatever reply text arrived before a stream broke.
type Error struct {
	StatusCode int
	Err        error
	Partial    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Response is one reply. For ContentJSON Body holds the whole payload; for
// ContentStream Chunks yields text as it arrives and must be drained or the
// response closed.
type Response struct {
	Kind        models.ContentKind
	ContentType string
	RequestID   string
	Body        string
	Chunks      iter.Seq2[string, error]

	body io.Closer
}

// Close releases the underlying connection. It is safe to call more than once.
func (r *Response) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}

// Client posts prompts to a single endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a Client. A zero timeout leaves requests unbounded.
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts the prompt. expectedDays of zero is omitted from the request.
func (c *Client) Send(ctx context.Context, prompt string, expectedDays int) (*Response, error) {
	body, err := json.Marshal(models.AskRequest{Prompt: prompt, Days: expectedDays})
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("create request: %w", err)}
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Err: err}
	}
	if id := resp.Header.Get(RequestIDHeader); id != "" {
		requestID = id
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &Error{StatusCode: resp.StatusCode, Err: errors.New(errorMessage(resp))}
	}

	ct := resp.Header.Get("Content-Type")
	if isJSON(ct) {
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err), Partial: string(data)}
		}
		return &Response{Kind: models.ContentJSON, ContentType: ct, RequestID: requestID, Body: string(data)}, nil
	}

	return &Response{
		Kind:        models.ContentStream,
		ContentType: ct,
		RequestID:   requestID,
		Chunks:      readChunks(resp.Body),
		body:        resp.Body,
	}, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// errorMessage pulls a readable message out of an error response.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}

// readChunks yields the body as text in arrival order. A multi-byte
// character split across reads is held back until it is complete.
func readChunks(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		buf := make([]byte, readSize)
		var carry []byte
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := append(carry, buf[:n]...)
				cut := completePrefix(data)
				carry = append([]byte(nil), data[cut:]...)
				if cut > 0 && !yield(string(data[:cut]), nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				if len(carry) > 0 {
					yield(string(carry), nil)
				}
				return
			}
			if err != nil {
				// Bytes of an unfinished character still count as received.
				if len(carry) > 0 && !yield(string(carry), nil) {
					return
				}
				yield("", &Error{Err: err})
				return
			}
		}
	}
}

// completePrefix returns the length of the longest prefix of data that does
// not end inside a multi-byte character.
func completePrefix(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if utf8.FullRune(data[i:]) {
				return len(data)
			}
			return i
		}
	}
	return len(data)
}
