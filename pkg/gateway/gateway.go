// Package gateway is the HTTP front of the travel assistant. It forwards
// prompts to the upstream model and serves replies either streamed as text
// or all at once as JSON.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tripmate-ai/tripmate/pkg/cache/sqlite"
	"github.com/tripmate-ai/tripmate/pkg/classifier"
	"github.com/tripmate-ai/tripmate/pkg/config"
	"github.com/tripmate-ai/tripmate/pkg/journal"
	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/models"
	"github.com/tripmate-ai/tripmate/pkg/normalize"
	"github.com/tripmate-ai/tripmate/pkg/segment"
	"github.com/tripmate-ai/tripmate/pkg/upstream"
)

const (
	// RequestIDHeader is echoed back, or generated when the client sent none.
	RequestIDHeader = "X-Request-ID"
	// CacheHeader reports whether an itinerary reply came from the prompt cache.
	CacheHeader = "X-Tripmate-Cache"

	maxRequestBody = 64 << 10
)

// Completer produces model replies.
type Completer interface {
	Complete(ctx context.Context, prompt string, days int) (models.Completion, error)
	Stream(ctx context.Context, prompt string, days int, onDelta func(string) error) (models.Completion, error)
	Model() string
}

// Server is the tripmate gateway.
type Server struct {
	cfg      *config.Config
	llm      Completer
	cache    *sqlite.PromptCache
	journal  *journal.Journal
	log      *logger.Logger
	limiter  *ipLimiter
	group    singleflight.Group
	parse    segment.Options
	mux      *http.ServeMux
	inflight sync.WaitGroup
}

// New creates a gateway Server. cache and j may be nil.
func New(cfg *config.Config, llm Completer, cache *sqlite.PromptCache, j *journal.Journal, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		llm:     llm,
		cache:   cache,
		journal: j,
		log:     log.With("component", "gateway"),
		limiter: newIPLimiter(cfg.Gateway.RateLimit),
		parse:   segment.Options{Anchored: cfg.Parser.AnchorHeaders},
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/ask", s.handleAsk)
	s.mux.HandleFunc("/api/itinerary", s.handleItinerary)
	return s
}

// ServeHTTP assigns a request id, applies the rate limit and dispatches.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		r.Header.Set(RequestIDHeader, id)
	}
	w.Header().Set(RequestIDHeader, id)

	if !s.limiter.allow(clientIP(r)) {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the gateway with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("tripmate gateway listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		s.Wait()
		return err
	case err := <-errCh:
		return err
	}
}

// Wait blocks until background journal writes have finished.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) readAsk(w http.ResponseWriter, r *http.Request) (models.AskRequest, bool) {
	var req models.AskRequest
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return req, false
	}
	r.Body.Close()
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		writeJSONError(w, http.StatusBadRequest, "empty prompt")
		return req, false
	}
	if req.Days < 0 {
		writeJSONError(w, http.StatusBadRequest, "days must not be negative")
		return req, false
	}
	return req, true
}

func (s *Server) handleItinerary(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readAsk(w, r)
	if !ok {
		return
	}
	start := time.Now()
	model := s.llm.Model()
	hash := sqlite.HashPrompt(model, req.Prompt, req.Days)
	entry := models.JournalEntry{
		RequestID:    r.Header.Get(RequestIDHeader),
		Endpoint:     r.URL.Path,
		Model:        model,
		PromptHash:   hash,
		ExpectedDays: req.Days,
	}

	if s.cache != nil && s.cfg.Gateway.PromptCache {
		if cached, ok := s.cache.Get(hash, model); ok {
			entry.CacheHit = true
			s.writeItinerary(w, cached, "hit")
			s.record(entry, cached, http.StatusOK, start)
			return
		}
	}

	v, err, shared := s.group.Do(hash, func() (any, error) {
		ctx, cancel := s.upstreamContext(r.Context())
		defer cancel()
		return s.llm.Complete(ctx, req.Prompt, req.Days)
	})
	if err != nil {
		s.log.Warn("upstream request failed", "request_id", entry.RequestID, "upstream_status", upstream.StatusCode(err), "error", err)
		writeJSONError(w, http.StatusBadGateway, "upstream request failed")
		s.record(entry, nil, http.StatusBadGateway, start)
		return
	}
	comp := v.(models.Completion)
	if shared {
		s.log.Debug("coalesced itinerary request", "request_id", entry.RequestID)
	}
	entry.Model = comp.Model
	entry.Provider = comp.Provider
	entry.TotalTokens = comp.Usage.TotalTokens

	body := ExtractJSON(comp.Text)
	if s.cache != nil && s.cfg.Gateway.PromptCache {
		if err := s.cache.Put(hash, model, body); err != nil {
			s.log.Warn("prompt cache put failed", "error", err)
		}
	}
	s.writeItinerary(w, body, "miss")
	s.record(entry, body, http.StatusOK, start)
}

func (s *Server) writeItinerary(w http.ResponseWriter, body []byte, cacheStatus string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set(CacheHeader, cacheStatus)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readAsk(w, r)
	if !ok {
		return
	}
	start := time.Now()
	entry := models.JournalEntry{
		RequestID:    r.Header.Get(RequestIDHeader),
		Endpoint:     r.URL.Path,
		Model:        s.llm.Model(),
		ExpectedDays: req.Days,
	}

	flusher, _ := w.(http.Flusher)
	wrote := false
	ctx, cancel := withTimeout(r.Context(), s.cfg.Gateway.UpstreamTimeout)
	defer cancel()

	comp, err := s.llm.Stream(ctx, req.Prompt, req.Days, func(delta string) error {
		if !wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if _, err := io.WriteString(w, delta); err != nil {
			return fmt.Errorf("write to client: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	entry.Provider = comp.Provider
	entry.TotalTokens = comp.Usage.TotalTokens
	if comp.Model != "" {
		entry.Model = comp.Model
	}

	switch {
	case err != nil && !wrote:
		s.log.Warn("upstream stream failed", "request_id", entry.RequestID, "upstream_status", upstream.StatusCode(err), "error", err)
		writeJSONError(w, http.StatusBadGateway, "upstream request failed")
		s.record(entry, nil, http.StatusBadGateway, start)
		return
	case err != nil:
		// Headers are gone; the client sees a short body.
		s.log.Warn("stream interrupted", "request_id", entry.RequestID, "received", len(comp.Text), "error", err)
	case !wrote:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
	s.record(entry, []byte(comp.Text), http.StatusOK, start)
}

// upstreamContext detaches from the client request so that one caller
// leaving does not cancel a call other coalesced callers are waiting on.
func (s *Server) upstreamContext(parent context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(context.WithoutCancel(parent), s.cfg.Gateway.UpstreamTimeout)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// record classifies the reply and journals it in the background.
func (s *Server) record(entry models.JournalEntry, reply []byte, status int, start time.Time) {
	if s.journal == nil {
		return
	}
	entry.StatusCode = status
	entry.LatencyMs = time.Since(start).Milliseconds()
	entry.Reply = string(reply)
	if reply != nil {
		ct := "text/plain"
		if entry.Endpoint == "/api/itinerary" {
			ct = "application/json"
		}
		res := normalize.Normalize(classifier.Classify(entry.Reply, ct, s.parse), s.parse)
		entry.Shape = res.Itinerary.SourceShape
		entry.DayCount = len(res.Itinerary.Days)
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.journal.Record(context.Background(), entry); err != nil {
			s.log.Warn("journal record failed", "request_id", entry.RequestID, "error", err)
		}
	}()
}

// ExtractJSON returns the JSON object or array in a model reply. It tries
// the whole text, then the text without a code fence, then the span from
// the first "{" to the last "}", then each balanced {...} block in turn.
// When nothing parses the text is wrapped as {"reply": text}.
func ExtractJSON(text string) []byte {
	trimmed := strings.TrimSpace(text)
	candidates := []string{trimmed, classifier.StripCodeFence(trimmed)}
	if i, j := strings.IndexByte(trimmed, '{'), strings.LastIndexByte(trimmed, '}'); i >= 0 && j > i {
		candidates = append(candidates, trimmed[i:j+1])
	}
	for _, c := range candidates {
		if isContainer(c) {
			return []byte(c)
		}
	}
	for _, c := range balancedObjects(trimmed) {
		if isContainer(c) {
			return []byte(c)
		}
	}
	out, _ := json.Marshal(models.ReplyEnvelope{Reply: trimmed})
	return out
}

func isContainer(s string) bool {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}

// balancedObjects returns every top-level {...} span in s, skipping braces
// inside JSON strings.
func balancedObjects(s string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, s[start:i+1])
			}
		}
	}
	return out
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipLimiter keeps one token bucket per client IP.
type ipLimiter struct {
	mu      sync.Mutex
	perMin  int
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const maxBuckets = 4096

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{perMin: perMinute, buckets: make(map[string]*bucket)}
}

func (l *ipLimiter) allow(ip string) bool {
	if l.perMin <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= maxBuckets {
			l.prune(now)
		}
		b = &bucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// prune drops buckets idle for long enough to have refilled completely.
func (l *ipLimiter) prune(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > time.Minute {
			delete(l.buckets, ip)
		}
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"tripmate_error","code":%d}}`, message, code)
}
