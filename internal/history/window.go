package history

import "github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/protocol"

// SelectWindow returns the suffix of history whose summed estimated cost fits
// within budget. The scan runs newest to oldest and stops at the first
// message that would exceed the budget; older, possibly cheaper messages are
// not considered past that point, so the result is always a contiguous
// suffix in original chronological order.
//
// When even the most recent message alone exceeds the budget the window is
// empty. That cliff edge is deliberate observed behavior and must not be
// "fixed" by falling back to older messages.
func SelectWindow(history []protocol.ChatMessage, budget int, est Estimator) []protocol.ChatMessage {
	if len(history) == 0 || budget <= 0 {
		return nil
	}

	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := est.Estimate(history[i])
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}
	return history[start:]
}

// WindowCost sums the estimated cost of the selected window. Used for
// telemetry, not for selection.
func WindowCost(window []protocol.ChatMessage, est Estimator) int {
	total := 0
	for _, msg := range window {
		total += est.Estimate(msg)
	}
	return total
}
