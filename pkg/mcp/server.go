// Package mcp exposes the cached itinerary and the reply journal to MCP
// clients over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/models"
)

// ItineraryReader reads the cached itinerary. *pipeline.Pipeline satisfies it.
type ItineraryReader interface {
	Current(ctx context.Context) (models.Itinerary, bool)
	Entry(ctx context.Context) (models.CacheEntry, bool)
	Days(ctx context.Context) iter.Seq[models.DayRecord]
}

// JournalReader queries gateway replies. *journal.Journal satisfies it.
type JournalReader interface {
	Query(ctx context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, error)
	Stats(ctx context.Context) ([]models.JournalStat, error)
}

// PromptCacheStatter reports prompt cache statistics.
type PromptCacheStatter interface {
	Stats() (models.PromptCacheStats, error)
}

// Server is a line-delimited JSON-RPC 2.0 MCP server.
type Server struct {
	itinerary ItineraryReader
	journal   JournalReader
	prompts   PromptCacheStatter
	log       *logger.Logger
	version   string
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithJournal enables the journal tools.
func WithJournal(j JournalReader) Option {
	return func(s *Server) { s.journal = j }
}

// WithPromptCache enables the prompt cache tool.
func WithPromptCache(c PromptCacheStatter) Option {
	return func(s *Server) { s.prompts = c }
}

// WithLogger sets the logger. Logs must not go to the protocol's stdout.
func WithLogger(log *logger.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a Server reading itineraries from r.
func New(r ItineraryReader, version string, opts ...Option) *Server {
	s := &Server{itinerary: r, version: version, log: logger.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run reads requests from r one per line and writes responses to w.
// It returns when r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, Response{
				JSONRPC: jsonrpcVersion,
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	s.log.Debug("mcp request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return reply(req, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "tripmate", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return reply(req, map[string]any{})
	case "tools/list":
		return reply(req, ToolsListResult{Tools: allTools})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return &Response{
				JSONRPC: jsonrpcVersion,
				ID:      req.ID,
				Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid params"},
			}
		}
		handler, ok := toolHandlers[params.Name]
		if !ok {
			return reply(req, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
		}
		return reply(req, handler(ctx, s, params.Arguments))
	}

	if len(req.ID) == 0 {
		return nil
	}
	return &Response{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
	}
}

func reply(req *Request, result any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("mcp marshal failed", "error", err)
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.log.Error("mcp write failed", "error", err)
	}
}
