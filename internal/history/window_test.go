package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/protocol"
)

func msg(role, content string) protocol.ChatMessage {
	raw, _ := json.Marshal(content)
	return protocol.ChatMessage{Role: role, Content: raw}
}

// fixedEstimator charges one token per character of decoded content, which
// keeps the arithmetic in tests readable.
type fixedEstimator struct{}

func (fixedEstimator) Estimate(m protocol.ChatMessage) int {
	return len(m.ContentText())
}

func TestSelectWindow_EmptyHistory(t *testing.T) {
	if got := SelectWindow(nil, 100, fixedEstimator{}); len(got) != 0 {
		t.Fatalf("expected empty window, got %d messages", len(got))
	}
}

func TestSelectWindow_AllFit(t *testing.T) {
	h := []protocol.ChatMessage{msg("user", "hi"), msg("assistant", "hello"), msg("user", "bye")}
	got := SelectWindow(h, 100, fixedEstimator{})
	if len(got) != 3 {
		t.Fatalf("expected all 3 messages, got %d", len(got))
	}
	if got[0].Role != "user" || got[0].ContentText() != "hi" {
		t.Errorf("chronological order not preserved: first = %q", got[0].ContentText())
	}
}

func TestSelectWindow_StopsAtFirstOverflow(t *testing.T) {
	// costs: 10, 50, 5, 5 with budget 12: scan picks 5, 5 then stops at 50
	// even though the oldest (10) would still fit numerically.
	h := []protocol.ChatMessage{
		msg("user", strings.Repeat("a", 10)),
		msg("assistant", strings.Repeat("b", 50)),
		msg("user", strings.Repeat("c", 5)),
		msg("assistant", strings.Repeat("d", 5)),
	}
	got := SelectWindow(h, 12, fixedEstimator{})
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ContentText() != strings.Repeat("c", 5) {
		t.Errorf("window is not the contiguous suffix: first = %q", got[0].ContentText())
	}
}

func TestSelectWindow_CliffEdge(t *testing.T) {
	// The most recent message alone exceeds the budget: the window is empty,
	// even though older, smaller messages exist.
	h := []protocol.ChatMessage{
		msg("user", "hi"),
		msg("assistant", "hello"),
		msg("user", "tell me a long story"),
	}
	got := SelectWindow(h, 5, fixedEstimator{})
	if len(got) != 0 {
		t.Fatalf("expected empty window (cliff edge), got %d messages", len(got))
	}
}

func TestSelectWindow_BudgetProperty(t *testing.T) {
	est := fixedEstimator{}
	var h []protocol.ChatMessage
	for i := 0; i < 40; i++ {
		h = append(h, msg("user", strings.Repeat("x", (i*7)%23+1)))
	}

	for _, budget := range []int{0, 1, 10, 50, 100, 1000} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			got := SelectWindow(h, budget, est)
			if len(got) == 0 {
				return // cliff edge or zero budget
			}
			if sum := WindowCost(got, est); sum > budget {
				t.Errorf("window cost %d exceeds budget %d", sum, budget)
			}
			// Output must be a contiguous suffix of the input.
			offset := len(h) - len(got)
			for i := range got {
				if got[i].ContentText() != h[offset+i].ContentText() {
					t.Fatalf("message %d does not match input suffix", i)
				}
			}
		})
	}
}

func TestHeuristicEstimator_RoundsUp(t *testing.T) {
	m := msg("user", "hi")
	data, _ := json.Marshal(m)
	want := (len(data) + 3) / 4
	if got := (HeuristicEstimator{}).Estimate(m); got != want {
		t.Errorf("Estimate = %d, want %d", got, want)
	}
}

func TestHeuristicEstimator_Deterministic(t *testing.T) {
	m := msg("assistant", "a longer reply with some content in it")
	first := (HeuristicEstimator{}).Estimate(m)
	for i := 0; i < 5; i++ {
		if got := (HeuristicEstimator{}).Estimate(m); got != first {
			t.Fatalf("estimate changed between calls: %d vs %d", got, first)
		}
	}
}
