// Event-stream reframing for the transcoding gateway.
//
// DESIGN: The upstream transport delivers bytes in arbitrary chunks that may
// split a line, an event, or a UTF-8 sequence anywhere. EventScanner is
// byte-oriented at that boundary: it accumulates chunks, splits on newlines,
// and carries the unterminated tail forward, so the emitted event sequence
// depends only on the concatenated bytes and never on how they were chunked.
package gateway

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// Event is one decoded frame of an upstream event stream.
type Event struct {
	// Terminal marks the stream-end sentinel. Emitted at most once.
	Terminal bool

	// Data is the payload after the "data:" prefix. For undecodable lines
	// it is the raw payload verbatim.
	Data []byte

	// Decoded is false when the payload failed JSON validation; such
	// events are forwarded untouched rather than dropped.
	Decoded bool
}

// EventScanner turns an arbitrary byte stream into well-formed protocol
// events. One scanner is owned by exactly one in-flight stream; its pending
// buffer holds at most one partial line at any time.
type EventScanner struct {
	pending        []byte
	stripReasoning bool
	done           bool
}

// NewEventScanner creates a scanner. When stripReasoning is set, the
// reasoning side channel is removed from every decoded payload before
// emission.
func NewEventScanner(stripReasoning bool) *EventScanner {
	return &EventScanner{stripReasoning: stripReasoning}
}

// Feed appends a transport chunk and returns the complete events it
// unlocked, in decode order. After the terminal sentinel the scanner ignores
// all further input.
func (s *EventScanner) Feed(chunk []byte) []Event {
	if s.done {
		return nil
	}
	s.pending = append(s.pending, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(s.pending, '\n')
		if idx < 0 {
			break
		}
		line := s.pending[:idx]
		s.pending = s.pending[idx+1:]

		ev, ok := s.scanLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Terminal {
			s.done = true
			s.pending = nil
			break
		}
	}
	return events
}

// Close discards any pending partial line. A trailing fragment without a
// newline was never a complete event and carries nothing decodable.
func (s *EventScanner) Close() {
	s.pending = nil
	s.done = true
}

func (s *EventScanner) scanLine(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, dataPrefix) {
		// Blank separators, comments and "event:" lines carry no payload.
		return Event{}, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return Event{}, false
	}
	if bytes.Equal(payload, doneSentinel) {
		return Event{Terminal: true}, true
	}
	if !gjson.ValidBytes(payload) {
		return Event{Data: append([]byte(nil), payload...)}, true
	}

	out := append([]byte(nil), payload...)
	if s.stripReasoning {
		out = stripReasoningFields(out)
	}
	return Event{Data: out, Decoded: true}, true
}

// stripReasoningFields removes reasoning_content from every choice, in both
// streaming (delta) and complete (message) shapes.
func stripReasoningFields(payload []byte) []byte {
	choices := gjson.GetBytes(payload, "choices")
	if !choices.IsArray() {
		return payload
	}
	for i := range choices.Array() {
		for _, part := range [2]string{"delta", "message"} {
			path := fmt.Sprintf("choices.%d.%s.reasoning_content", i, part)
			if gjson.GetBytes(payload, path).Exists() {
				if stripped, err := sjson.DeleteBytes(payload, path); err == nil {
					payload = stripped
				}
			}
		}
	}
	return payload
}
