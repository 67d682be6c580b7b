package normalize

import (
	"strings"
	"unicode/utf8"
)

type streamMode int

const (
	modeAccumulating streamMode = iota
	modePassthrough
)

// StreamState applies the normalizer to the early portion of one streamed
// reply. Content fragments are buffered until the accumulated text reaches a
// threshold; the buffer is then cleaned once, emitted as a single fragment,
// and every later fragment passes through untouched. The transition to
// passthrough happens exactly once per stream and never reverses.
//
// A StreamState is owned by exactly one in-flight stream and must not be
// shared.
type StreamState struct {
	n         *Normalizer
	threshold int
	mode      streamMode
	buf       strings.Builder
	chars     int
}

// NewStreamState creates per-stream normalizer state. threshold is the
// character count buffered before the single cleaning pass.
func NewStreamState(n *Normalizer, threshold int) *StreamState {
	return &StreamState{n: n, threshold: threshold}
}

// Accumulating reports whether the state is still buffering the reply head.
func (s *StreamState) Accumulating() bool {
	return s.mode == modeAccumulating
}

// Push consumes one content fragment. While accumulating it returns
// ("", false) and holds the fragment; once the buffer reaches the threshold
// it returns the cleaned buffer with emit=true and flips to passthrough.
// In passthrough mode fragments are echoed unmodified with no inspection.
func (s *StreamState) Push(fragment string) (out string, emit bool) {
	if s.mode == modePassthrough {
		return fragment, true
	}
	s.buf.WriteString(fragment)
	s.chars += utf8.RuneCountInString(fragment)
	if s.chars < s.threshold {
		return "", false
	}
	s.mode = modePassthrough
	return s.n.Clean(s.buf.String()), true
}

// FlushFinal drains the buffer when the stream ends while still
// accumulating: the held text is cleaned once and returned as the final
// fragment. Returns ("", false) when nothing was held back.
func (s *StreamState) FlushFinal() (out string, emit bool) {
	if s.mode == modePassthrough {
		return "", false
	}
	s.mode = modePassthrough
	if s.buf.Len() == 0 {
		return "", false
	}
	return s.n.Clean(s.buf.String()), true
}
