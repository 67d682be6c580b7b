package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(s *EventScanner, chunks []string) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, s.Feed([]byte(c))...)
	}
	return events
}

func TestEventScanner_SplitMidEvent(t *testing.T) {
	// A chunk boundary inside the JSON payload must still yield exactly one
	// event with the full content.
	chunks := []string{
		`data: {"choices":[{"delta":{"content":"Hel`,
		"lo\"}}]}\n\n",
	}
	events := collectEvents(NewEventScanner(false), chunks)

	require.Len(t, events, 1)
	assert.True(t, events[0].Decoded)
	assert.JSONEq(t, `{"choices":[{"delta":{"content":"Hello"}}]}`, string(events[0].Data))
}

func TestEventScanner_ChunkBoundaryInvariance(t *testing.T) {
	full := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n" +
		": keep-alive comment\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n" +
		"data: [DONE]\n\n"

	reference := collectEvents(NewEventScanner(false), []string{full})

	// Re-split the same bytes at every possible single boundary.
	for cut := 1; cut < len(full); cut++ {
		got := collectEvents(NewEventScanner(false), []string{full[:cut], full[cut:]})
		require.Len(t, got, len(reference), "cut at %d", cut)
		for i := range got {
			assert.Equal(t, reference[i].Terminal, got[i].Terminal, "cut at %d event %d", cut, i)
			assert.Equal(t, string(reference[i].Data), string(got[i].Data), "cut at %d event %d", cut, i)
		}
	}

	// One byte at a time.
	var oneByOne []string
	for i := range full {
		oneByOne = append(oneByOne, full[i:i+1])
	}
	got := collectEvents(NewEventScanner(false), oneByOne)
	require.Len(t, got, len(reference))
}

func TestEventScanner_DoneSentinel(t *testing.T) {
	s := NewEventScanner(false)
	events := s.Feed([]byte("data: {\"a\":1}\n\ndata: [DONE]\n\ndata: {\"b\":2}\n\n"))

	require.Len(t, events, 2)
	assert.True(t, events[1].Terminal)

	// After termination further input is ignored.
	assert.Empty(t, s.Feed([]byte("data: {\"c\":3}\n\n")))
}

func TestEventScanner_MalformedLinePassthrough(t *testing.T) {
	s := NewEventScanner(false)
	events := s.Feed([]byte("data: {not json at all\n"))

	require.Len(t, events, 1)
	assert.False(t, events[0].Decoded)
	assert.Equal(t, "{not json at all", string(events[0].Data))
}

func TestEventScanner_IgnoresNonDataLines(t *testing.T) {
	s := NewEventScanner(false)
	events := s.Feed([]byte("event: message\nretry: 100\n\ndata: {\"ok\":true}\n"))

	require.Len(t, events, 1)
	assert.True(t, events[0].Decoded)
}

func TestEventScanner_TrailingPartialLineDiscarded(t *testing.T) {
	s := NewEventScanner(false)
	events := s.Feed([]byte("data: {\"a\":1}\ndata: {\"trunca"))

	require.Len(t, events, 1)
	s.Close()
	assert.Empty(t, s.Feed([]byte("ted\"}\n")))
}

func TestEventScanner_StripsReasoning(t *testing.T) {
	s := NewEventScanner(true)
	events := s.Feed([]byte(`data: {"choices":[{"delta":{"content":"hi","reasoning_content":"thinking..."}}]}` + "\n"))

	require.Len(t, events, 1)
	assert.JSONEq(t, `{"choices":[{"delta":{"content":"hi"}}]}`, string(events[0].Data))
}

func TestEventScanner_KeepsReasoningWhenExposed(t *testing.T) {
	s := NewEventScanner(false)
	payload := `{"choices":[{"delta":{"content":"hi","reasoning_content":"thinking..."}}]}`
	events := s.Feed([]byte("data: " + payload + "\n"))

	require.Len(t, events, 1)
	assert.JSONEq(t, payload, string(events[0].Data))
}

func TestEventScanner_CRLFLines(t *testing.T) {
	s := NewEventScanner(false)
	events := s.Feed([]byte("data: {\"a\":1}\r\n\r\ndata: [DONE]\r\n"))

	require.Len(t, events, 2)
	assert.True(t, events[0].Decoded)
	assert.True(t, events[1].Terminal)
}
