// Package accumulator assembles a streamed reply into one payload while
// exposing the live concatenation after every chunk.
package accumulator

import (
	"errors"
	"iter"
	"strings"
)

// ErrClosed is returned when a chunk arrives after the stream was finished.
var ErrClosed = errors.New("accumulator: stream already finished")

// Payload is the result of a finished stream.
type Payload struct {
	Text       string
	Chunks     int
	Incomplete bool
	Err        error
}

// Accumulator buffers chunks of a single logical response in arrival order.
// It is not safe for concurrent use; the producer drives it.
type Accumulator struct {
	buf      strings.Builder
	chunks   int
	done     bool
	err      error
	onUpdate func(partial string)
}

// New returns an Accumulator. onUpdate, if non-nil, is called after every
// chunk with the concatenation of everything received so far.
func New(onUpdate func(partial string)) *Accumulator {
	return &Accumulator{onUpdate: onUpdate}
}

// Append adds a chunk and returns the current partial payload.
func (a *Accumulator) Append(chunk string) (string, error) {
	if a.done {
		return a.buf.String(), ErrClosed
	}
	a.buf.WriteString(chunk)
	a.chunks++
	partial := a.buf.String()
	if a.onUpdate != nil {
		a.onUpdate(partial)
	}
	return partial, nil
}

// Finish marks end-of-response and returns the complete payload.
func (a *Accumulator) Finish() Payload {
	a.done = true
	return a.payload()
}

// Fail marks the stream as broken by the transport. Bytes already received
// are kept and reported with Incomplete set.
func (a *Accumulator) Fail(err error) Payload {
	a.done = true
	a.err = err
	return a.payload()
}

func (a *Accumulator) payload() Payload {
	return Payload{
		Text:       a.buf.String(),
		Chunks:     a.chunks,
		Incomplete: a.err != nil,
		Err:        a.err,
	}
}

// Drain consumes a chunk sequence until it ends or yields an error.
// It is the usual way to drive an Accumulator from a transport iterator.
func Drain(seq iter.Seq2[string, error], onUpdate func(partial string)) Payload {
	acc := New(onUpdate)
	var streamErr error
	for chunk, err := range seq {
		if err != nil {
			streamErr = err
			break
		}
		_, _ = acc.Append(chunk)
	}
	if streamErr != nil {
		return acc.Fail(streamErr)
	}
	return acc.Finish()
}
