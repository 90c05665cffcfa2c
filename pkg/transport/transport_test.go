package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripmate-ai/tripmate/pkg/models"
)

func TestSendJSON(t *testing.T) {
	var got models.AskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("expected request id header")
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set(RequestIDHeader, "req-1")
		w.Write([]byte(`[{"day":1}]`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Send(context.Background(), "Rome", 3)
	require.NoError(t, err)
	defer resp.Close()

	assert.Equal(t, models.ContentJSON, resp.Kind)
	assert.Equal(t, `[{"day":1}]`, resp.Body)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, models.AskRequest{Prompt: "Rome", Days: 3}, got)
}

func TestSendStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher := w.(http.Flusher)
		for _, part := range []string{"Day 1: ", "Temple\n", "Day 2: Park"} {
			w.Write([]byte(part))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Send(context.Background(), "Kyoto", 0)
	require.NoError(t, err)
	defer resp.Close()
	require.Equal(t, models.ContentStream, resp.Kind)

	var sb strings.Builder
	for chunk, err := range resp.Chunks {
		require.NoError(t, err)
		sb.WriteString(chunk)
	}
	assert.Equal(t, "Day 1: Temple\nDay 2: Park", sb.String())
}

func TestSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"tripmate_error","code":429}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Send(context.Background(), "x", 0)
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusTooManyRequests, terr.StatusCode)
	assert.Contains(t, terr.Error(), "rate limit exceeded")
}

func TestSendNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Send(context.Background(), "x", 0)
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Zero(t, terr.StatusCode)
}

func TestReadChunksKeepsRunesWhole(t *testing.T) {
	text := "Día 1: café ☕ y 寿司"
	r := iotest.OneByteReader(strings.NewReader(text))

	var chunks []string
	for chunk, err := range readChunks(r) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.True(t, strings.ToValidUTF8(c, "?") == c, "chunk %q split a character", c)
	}
}

func TestReadChunksReportsError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("Day 1: Temple"), iotest.ErrReader(boom))

	var got string
	var gotErr error
	for chunk, err := range readChunks(r) {
		if err != nil {
			gotErr = err
			break
		}
		got += chunk
	}
	assert.Equal(t, "Day 1: Temple", got)
	assert.ErrorIs(t, gotErr, boom)
}

func TestReadChunksKeepsSplitRuneOnError(t *testing.T) {
	boom := errors.New("connection reset")
	euro := []byte("€")
	r := io.MultiReader(
		strings.NewReader("Day 1: 5"),
		bytes.NewReader(euro[:2]),
		iotest.ErrReader(boom),
	)

	var got []byte
	var gotErr error
	for chunk, err := range readChunks(r) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, chunk...)
	}
	assert.Equal(t, append([]byte("Day 1: 5"), euro[:2]...), got)
	assert.ErrorIs(t, gotErr, boom)
}

func TestCompletePrefix(t *testing.T) {
	euro := []byte("€") // 3 bytes
	assert.Equal(t, 0, completePrefix(euro[:1]))
	assert.Equal(t, 0, completePrefix(euro[:2]))
	assert.Equal(t, 3, completePrefix(euro))
	assert.Equal(t, 2, completePrefix(append([]byte("ab"), euro[:2]...)))
	assert.Equal(t, 2, completePrefix([]byte("ab")))
}
