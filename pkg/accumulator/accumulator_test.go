package accumulator

import (
	"errors"
	"iter"
	"testing"
)

func chunks(parts []string, failAfter int, failErr error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, p := range parts {
			if failAfter >= 0 && i == failAfter {
				yield("", failErr)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	var seen []string
	acc := New(func(partial string) { seen = append(seen, partial) })

	for _, c := range []string{"Day 1:", " Temple", "\nDay 2:", " Park"} {
		if _, err := acc.Append(c); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"Day 1:", "Day 1: Temple", "Day 1: Temple\nDay 2:", "Day 1: Temple\nDay 2: Park"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d updates, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("update %d: expected %q, got %q", i, want[i], seen[i])
		}
	}

	p := acc.Finish()
	if p.Text != want[3] || p.Chunks != 4 || p.Incomplete {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestDuplicateChunksAreKept(t *testing.T) {
	p := Drain(chunks([]string{"ab", "ab", ""}, -1, nil), nil)
	if p.Text != "abab" {
		t.Errorf("expected abab, got %q", p.Text)
	}
	if p.Chunks != 3 {
		t.Errorf("expected 3 chunks, got %d", p.Chunks)
	}
}

func TestDrainReportsIncomplete(t *testing.T) {
	boom := errors.New("connection reset")
	var last string
	p := Drain(chunks([]string{"Day 1: ", "Temple", "never"}, 2, boom), func(s string) { last = s })

	if !p.Incomplete {
		t.Fatal("expected incomplete payload")
	}
	if !errors.Is(p.Err, boom) {
		t.Errorf("expected transport error, got %v", p.Err)
	}
	if p.Text != "Day 1: Temple" {
		t.Errorf("expected received bytes kept, got %q", p.Text)
	}
	if last != p.Text {
		t.Errorf("last partial %q should equal payload %q", last, p.Text)
	}
}

func TestAppendAfterFinish(t *testing.T) {
	acc := New(nil)
	_, _ = acc.Append("x")
	acc.Finish()
	got, err := acc.Append("y")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if got != "x" {
		t.Errorf("expected payload unchanged, got %q", got)
	}
}
