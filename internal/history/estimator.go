// Package history trims conversation histories to a token budget before they
// are forwarded upstream.
package history

import (
	"encoding/json"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/config"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/protocol"
)

// messageOverheadTokens accounts for chat framing around each message
// (role markers and separators) when counting content tokens exactly.
const messageOverheadTokens = 4

// Estimator approximates the token cost of a single message. Implementations
// must be deterministic and pure; accuracy is a budget-shaping concern, not a
// correctness one.
type Estimator interface {
	Estimate(msg protocol.ChatMessage) int
}

// HeuristicEstimator divides the byte length of the message's canonical JSON
// serialization by the character-per-token ratio, rounding up.
type HeuristicEstimator struct{}

// Estimate implements Estimator.
func (HeuristicEstimator) Estimate(msg protocol.ChatMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		// Marshal of a ChatMessage cannot fail in practice; keep the
		// estimator total and cheap rather than plumbing an error.
		return 1
	}
	return (len(data) + config.TokenEstimateRatio - 1) / config.TokenEstimateRatio
}

// TiktokenEstimator counts content tokens with the cl100k_base encoding.
// Structured (non-string) content falls back to the heuristic.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator builds an exact estimator. Encoder initialization can
// fail (the BPE table may be unavailable offline); callers should fall back
// to the heuristic in that case.
func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate implements Estimator.
func (e *TiktokenEstimator) Estimate(msg protocol.ChatMessage) int {
	text := msg.ContentText()
	if text == "" {
		return HeuristicEstimator{}.Estimate(msg)
	}
	return len(e.enc.Encode(text, nil, nil)) + messageOverheadTokens
}

// NewEstimator returns the estimator named by kind ("heuristic" or
// "tiktoken"). An unavailable tiktoken encoder degrades to the heuristic
// with a warning rather than failing startup.
func NewEstimator(kind string) Estimator {
	if kind == "tiktoken" {
		est, err := NewTiktokenEstimator()
		if err == nil {
			return est
		}
		log.Warn().Err(err).Msg("tiktoken encoder unavailable, using heuristic estimator")
	}
	return HeuristicEstimator{}
}
