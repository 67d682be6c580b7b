// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used by the heuristic estimator; exact tokenization is opt-in via tiktoken.
const TokenEstimateRatio = 4

// DefaultTokenBudget is the history window budget in estimated tokens.
const DefaultTokenBudget = 4096

// =============================================================================
// NORMALIZER DEFAULTS
// =============================================================================

// DefaultMinAccumulate is how many characters of a streamed reply are buffered
// before the lead-in stripper runs once and the stream flips to passthrough.
// Lead-in boilerplate is assumed to live in the first few dozen characters;
// this is an empirical value and tunable via config, not an invariant.
const DefaultMinAccumulate = 64

// DefaultLeadInPhrases is the stock phrase catalog stripped from the start of
// replies. Patterns are matched case-insensitively and anchored to the start;
// the catalog is re-applied until no pattern matches (handles chained
// lead-ins like "Sure, of course! Here's ...").
var DefaultLeadInPhrases = []string{
	`(sure|okay|ok|alright|certainly|absolutely|definitely|of course|great)[,.!:]*\s+`,
	`here(?:'s| is)\s+`,
	`i(?:'d| would) be happy to\s+`,
	`(no problem|got it|understood)[,.!:]*\s+`,
}

// =============================================================================
// UPSTREAM DEFAULTS
// =============================================================================

// DefaultUpstreamBaseURL is the NIM-compatible endpoint used when none is configured.
const DefaultUpstreamBaseURL = "https://integrate.api.nvidia.com"

// DefaultUpstreamTimeout bounds a single upstream call. Reasoning models can
// take minutes before the first byte, so this is deliberately generous.
const DefaultUpstreamTimeout = 5 * time.Minute

// DefaultMaxOutputTokens is sent upstream when the client omits max_tokens.
const DefaultMaxOutputTokens = 1024

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultBufferSize is the standard I/O buffer size for stream reads.
const DefaultBufferSize = 4096

// MaxRequestBodySize is the maximum allowed request body (10MB).
const MaxRequestBodySize = 10 * 1024 * 1024

// MaxErrorBodyLogLen limits upstream error bodies in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// DefaultServerPort is the listen port when none is configured.
const DefaultServerPort = 8080

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 1 * time.Minute

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// =============================================================================
// MODEL TABLE DEFAULTS
// =============================================================================

// DefaultUpstreamModel is used when a public model name has no alias entry.
const DefaultUpstreamModel = "meta/llama-3.1-8b-instruct"

// DefaultModelAliases maps public OpenAI-style identifiers to upstream
// NIM identifiers. Pure configuration data; overridable per instance.
var DefaultModelAliases = map[string]string{
	"gpt-3.5-turbo":     "meta/llama-3.1-8b-instruct",
	"gpt-4":             "meta/llama-3.1-70b-instruct",
	"gpt-4-turbo":       "meta/llama-3.1-70b-instruct",
	"gpt-4o":            "meta/llama-3.1-405b-instruct",
	"gpt-4o-mini":       "meta/llama-3.1-8b-instruct",
	"deepseek-chat":     "deepseek-ai/deepseek-v3",
	"deepseek-reasoner": "deepseek-ai/deepseek-r1",
}
