// Package pipeline turns one assistant reply into a cached, renderable
// itinerary and reads it back for display.
//
// Submit runs the stages in order: acquire the payload (accumulating a
// stream if needed), classify its shape, normalize it, check completeness
// and write the cache. Only one submission runs at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/tripmate-ai/tripmate/pkg/accumulator"
	"github.com/tripmate-ai/tripmate/pkg/cache"
	"github.com/tripmate-ai/tripmate/pkg/classifier"
	"github.com/tripmate-ai/tripmate/pkg/completeness"
	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/models"
	"github.com/tripmate-ai/tripmate/pkg/normalize"
	"github.com/tripmate-ai/tripmate/pkg/segment"
	"github.com/tripmate-ai/tripmate/pkg/transport"
)

// ErrBusy is returned by Submit while another submission is in flight.
var ErrBusy = errors.New("pipeline: a request is already in flight")

// Transport delivers the reply to a prompt.
type Transport interface {
	Send(ctx context.Context, prompt string, expectedDays int) (*transport.Response, error)
}

// Handlers are the renderer's callbacks. Any of them may be nil. They run
// on the goroutine that called Submit.
type Handlers struct {
	// OnPartialUpdate receives the concatenation of all chunks so far after
	// every streamed chunk.
	OnPartialUpdate func(text string)
	// OnCompletenessWarning fires when fewer days came back than expected.
	OnCompletenessWarning func(models.CompletenessWarning)
	// OnComplete receives every successful result.
	OnComplete func(Result)
}

// Result is the outcome of one submission.
type Result struct {
	RequestID string
	Itinerary models.Itinerary
	// Warning is set for a partial generation.
	Warning *models.CompletenessWarning
	// Warnings are soft normalization notes such as duplicate days.
	Warnings []string
	// Empty reports a reply with nothing to render. Empty results are not
	// cached.
	Empty bool
	// Cached reports whether the result was written to the cache store.
	Cached bool
}

// Pipeline sequences the stages for one conversation.
type Pipeline struct {
	transport Transport
	store     *cache.Store
	log       *logger.Logger
	parse     segment.Options

	busy     atomic.Bool
	mu       sync.RWMutex
	handlers Handlers
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithParserOptions tunes day segmentation.
func WithParserOptions(opts segment.Options) Option {
	return func(p *Pipeline) { p.parse = opts }
}

// New creates a Pipeline.
func New(t Transport, store *cache.Store, opts ...Option) *Pipeline {
	p := &Pipeline{transport: t, store: store, log: logger.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe replaces the renderer callbacks.
func (p *Pipeline) Subscribe(h Handlers) {
	p.mu.Lock()
	p.handlers = h
	p.mu.Unlock()
}

// Busy reports whether a submission is in flight.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Submit sends prompt and runs the reply through every stage. expectedDays
// of zero means no expectation. A transport failure is returned as a
// *transport.Error; if a stream broke midway its Partial field holds the
// text received, which is neither normalized nor cached.
func (p *Pipeline) Submit(ctx context.Context, prompt string, expectedDays int) (*Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.busy.Store(false)

	p.mu.RLock()
	h := p.handlers
	p.mu.RUnlock()

	resp, err := p.transport.Send(ctx, prompt, expectedDays)
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) {
			return nil, err
		}
		return nil, &transport.Error{Err: err}
	}
	defer resp.Close()

	payload, contentType, err := p.acquire(resp, h.OnPartialUpdate)
	if err != nil {
		return nil, err
	}
	log := p.log.With("request_id", resp.RequestID)

	c := classifier.Classify(payload, contentType, p.parse)
	norm := normalize.Normalize(c, p.parse)
	for _, w := range norm.Warnings {
		log.Warn("normalize", "warning", w)
	}

	res := Result{
		RequestID: resp.RequestID,
		Itinerary: norm.Itinerary,
		Warnings:  norm.Warnings,
		Warning:   completeness.CheckItinerary(norm.Itinerary, expectedDays),
		Empty:     norm.Itinerary.Empty(),
	}
	log.Debug("reply normalized",
		"shape", c.Shape,
		"days", len(res.Itinerary.Days),
		"expected", expectedDays,
		"bytes", len(payload),
	)

	if !res.Empty {
		if _, err := p.store.Write(ctx, &res.Itinerary, &payload); err != nil {
			log.Warn("cache write failed", "error", err)
		} else {
			res.Cached = true
		}
	}

	if res.Warning != nil && h.OnCompletenessWarning != nil {
		h.OnCompletenessWarning(*res.Warning)
	}
	if h.OnComplete != nil {
		h.OnComplete(res)
	}
	return &res, nil
}

// acquire returns the complete payload and the content type hint for the
// classifier. Streams never carry a structured hint.
func (p *Pipeline) acquire(resp *transport.Response, onPartial func(string)) (string, string, error) {
	switch resp.Kind {
	case models.ContentJSON:
		return resp.Body, resp.ContentType, nil
	case models.ContentStream:
		pl := accumulator.Drain(resp.Chunks, onPartial)
		if pl.Incomplete {
			terr := &transport.Error{Err: pl.Err, Partial: pl.Text}
			var inner *transport.Error
			if errors.As(pl.Err, &inner) {
				terr.StatusCode = inner.StatusCode
				terr.Err = inner.Err
			}
			p.log.Warn("stream interrupted", "request_id", resp.RequestID, "received", len(pl.Text), "error", pl.Err)
			return "", "", terr
		}
		return pl.Text, "", nil
	default:
		return "", "", &transport.Error{Err: fmt.Errorf("unknown content kind %q", resp.Kind)}
	}
}

// Current returns the cached itinerary, re-normalized. When only raw text
// is cached it is classified again as text: the content type it arrived
// with is not persisted, so no structured rule is applied.
func (p *Pipeline) Current(ctx context.Context) (models.Itinerary, bool) {
	entry, ok := p.store.Read(ctx)
	if !ok {
		return models.Itinerary{}, false
	}
	if entry.Itinerary != nil {
		it, warnings := normalize.Canonicalize(*entry.Itinerary)
		for _, w := range warnings {
			p.log.Warn("cached itinerary re-normalized", "warning", w)
		}
		return it, true
	}
	if entry.RawFallbackText == nil {
		return models.Itinerary{}, false
	}
	c := classifier.Classify(*entry.RawFallbackText, "", p.parse)
	res := normalize.Normalize(c, p.parse)
	if res.Itinerary.Empty() {
		return models.Itinerary{}, false
	}
	return res.Itinerary, true
}

// Entry returns the raw cache entry, including its write time.
func (p *Pipeline) Entry(ctx context.Context) (models.CacheEntry, bool) {
	return p.store.Read(ctx)
}

// Days yields the cached days in order. The cache is read when the
// sequence is ranged over, so every range sees the current entry.
func (p *Pipeline) Days(ctx context.Context) iter.Seq[models.DayRecord] {
	return func(yield func(models.DayRecord) bool) {
		it, ok := p.Current(ctx)
		if !ok {
			return
		}
		for _, d := range it.Days {
			if !yield(d) {
				return
			}
		}
	}
}
