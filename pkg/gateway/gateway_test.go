package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tripmate-ai/tripmate/pkg/cache/sqlite"
	"github.com/tripmate-ai/tripmate/pkg/config"
	"github.com/tripmate-ai/tripmate/pkg/journal"
	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/models"
)

type fakeLLM struct {
	text    string
	deltas  []string
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeLLM) Model() string { return "test-model" }

func (f *fakeLLM) Complete(ctx context.Context, prompt string, days int) (models.Completion, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return models.Completion{}, f.err
	}
	return models.Completion{Text: f.text, Model: "test-model", Provider: "fake"}, nil
}

func (f *fakeLLM) Stream(ctx context.Context, prompt string, days int, onDelta func(string) error) (models.Completion, error) {
	f.calls.Add(1)
	if f.err != nil {
		return models.Completion{}, f.err
	}
	var sb strings.Builder
	for _, d := range f.deltas {
		sb.WriteString(d)
		if err := onDelta(d); err != nil {
			return models.Completion{Text: sb.String()}, err
		}
	}
	return models.Completion{Text: sb.String(), Model: "test-model", Provider: "fake"}, nil
}

func setupGateway(t *testing.T, llm *fakeLLM, rateLimit int) (*Server, *journal.Journal) {
	t.Helper()
	return setupGatewayWithLogger(t, llm, rateLimit, nil)
}

func setupGatewayWithLogger(t *testing.T, llm *fakeLLM, rateLimit int, log *logger.Logger) (*Server, *journal.Journal) {
	t.Helper()
	dir := t.TempDir()

	c, err := sqlite.NewPromptCache(filepath.Join(dir, "cache.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	j, err := journal.New(filepath.Join(dir, "journal.db"), config.JournalConfig{Enabled: true, RetentionDays: 30})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Gateway.RateLimit = rateLimit
	srv := New(cfg, llm, c, j, log)
	t.Cleanup(func() {
		srv.Wait()
		j.Close()
	})
	return srv, j
}

func post(srv http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestItinerary(t *testing.T) {
	llm := &fakeLLM{text: "Sure!\n```json\n{\"reply\":\"Two days\",\"itinerary\":[{\"day\":1,\"morning\":\"A\"},{\"day\":2,\"morning\":\"B\"}]}\n```"}
	srv, j := setupGateway(t, llm, 0)

	w := post(srv, "/api/itinerary", `{"prompt":"2 days in Rome","days":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "miss", w.Header().Get(CacheHeader))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.JSONEq(t, `{"reply":"Two days","itinerary":[{"day":1,"morning":"A"},{"day":2,"morning":"B"}]}`, w.Body.String())

	w2 := post(srv, "/api/itinerary", `{"prompt":"2 days in Rome","days":2}`)
	assert.Equal(t, "hit", w2.Header().Get(CacheHeader))
	assert.Equal(t, w.Body.String(), w2.Body.String())
	assert.EqualValues(t, 1, llm.calls.Load())

	srv.Wait()
	entries, err := j.Query(context.Background(), models.JournalQueryOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, models.ShapeJSONWrappedDays, e.Shape)
		assert.Equal(t, 2, e.DayCount)
		assert.Equal(t, 2, e.ExpectedDays)
	}
}

func TestItineraryWrapsProse(t *testing.T) {
	srv, _ := setupGateway(t, &fakeLLM{text: "  Rome is lovely in spring.  "}, 0)

	w := post(srv, "/api/itinerary", `{"prompt":"Rome?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reply":"Rome is lovely in spring."}`, w.Body.String())
}

func TestItineraryUpstreamFailure(t *testing.T) {
	srv, _ := setupGateway(t, &fakeLLM{err: errors.New("all upstream providers failed")}, 0)

	w := post(srv, "/api/itinerary", `{"prompt":"Rome"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"tripmate_error"`)
}

func TestUpstreamFailureLogsProviderStatus(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	llm := &fakeLLM{err: &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}}
	srv, _ := setupGatewayWithLogger(t, llm, 0, log)

	for path, msg := range map[string]string{
		"/api/itinerary": "upstream request failed",
		"/api/ask":       "upstream stream failed",
	} {
		w := post(srv, path, `{"prompt":"Lisbon"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)

		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, path)
		assert.EqualValues(t, http.StatusServiceUnavailable, entries[0].ContextMap()["upstream_status"])
	}
}

func TestItineraryCoalescesIdenticalPrompts(t *testing.T) {
	llm := &fakeLLM{text: `{"reply":"ok"}`, release: make(chan struct{})}
	srv, _ := setupGateway(t, llm, 0)

	var wg sync.WaitGroup
	codes := make([]int, 3)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = post(srv, "/api/itinerary", `{"prompt":"same"}`).Code
		}()
	}
	require.Eventually(t, func() bool { return llm.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(llm.release)
	wg.Wait()

	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}
	assert.LessOrEqual(t, llm.calls.Load(), int32(3))
}

func TestAskStreams(t *testing.T) {
	srv, j := setupGateway(t, &fakeLLM{deltas: []string{"Day 1: ", "Temple\n", "Day 2: Park"}}, 0)

	w := post(srv, "/api/ask", `{"prompt":"Kyoto"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Day 1: Temple\nDay 2: Park", w.Body.String())
	assert.True(t, w.Flushed)

	srv.Wait()
	entries, err := j.Query(context.Background(), models.JournalQueryOpts{Endpoint: "/api/ask"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ShapeFreeformDayText, entries[0].Shape)
	assert.Equal(t, 2, entries[0].DayCount)
}

func TestAskUpstreamFailure(t *testing.T) {
	srv, _ := setupGateway(t, &fakeLLM{err: errors.New("boom")}, 0)

	w := post(srv, "/api/ask", `{"prompt":"Kyoto"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestBadRequests(t *testing.T) {
	srv, _ := setupGateway(t, &fakeLLM{text: "x"}, 0)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"empty prompt", http.MethodPost, `{"prompt":"   "}`, http.StatusBadRequest},
		{"invalid json", http.MethodPost, `{"prompt":`, http.StatusBadRequest},
		{"negative days", http.MethodPost, `{"prompt":"x","days":-1}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/api/ask", "/api/itinerary"} {
				req := httptest.NewRequest(tt.method, path, strings.NewReader(tt.body))
				w := httptest.NewRecorder()
				srv.ServeHTTP(w, req)
				assert.Equal(t, tt.want, w.Code, path)
			}
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv, _ := setupGateway(t, &fakeLLM{text: `{"reply":"x"}`}, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/itinerary", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	srv, _ := setupGateway(t, &fakeLLM{text: `{"reply":"x"}`}, 2)

	assert.Equal(t, http.StatusOK, post(srv, "/api/itinerary", `{"prompt":"a"}`).Code)
	assert.Equal(t, http.StatusOK, post(srv, "/api/itinerary", `{"prompt":"b"}`).Code)
	w := post(srv, "/api/itinerary", `{"prompt":"c"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"object", `{"reply":"hi"}`, `{"reply":"hi"}`},
		{"array", `[{"day":1}]`, `[{"day":1}]`},
		{"fenced", "```json\n{\"reply\":\"hi\"}\n```", `{"reply":"hi"}`},
		{"surrounded", `Here you go: {"reply":"hi"} enjoy!`, `{"reply":"hi"}`},
		{"two objects", `{"a":1} and {"b":2}`, `{"a":1}`},
		{"brace in string", `note {"reply":"use } carefully"} end }`, `{"reply":"use } carefully"}`},
		{"prose", "Rome is lovely", `{"reply":"Rome is lovely"}`},
		{"json string is prose", `"just a string"`, `{"reply":"\"just a string\""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, string(ExtractJSON(tt.in)))
		})
	}
}
