// Package protocol defines the chat-completion wire types shared by the
// gateway and the history windower.
//
// Types are defined here to avoid circular imports and provide clear contracts.
// The inbound shape is the OpenAI chat-completions format; the outbound shape
// is the NIM-compatible variant with its extension fields.
package protocol

import "encoding/json"

// ChatMessage is one conversation turn. Content may be a plain JSON string or
// a structured block array; it is carried as raw JSON so the proxy never
// re-shapes what it does not need to inspect. Messages are immutable once
// placed in a history; order is chronological.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`
}

// ContentText returns the content when it is a plain JSON string, else "".
func (m ChatMessage) ContentText() string {
	if len(m.Content) == 0 || m.Content[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err != nil {
		return ""
	}
	return s
}

// ChatRequest is the inbound client request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// UpstreamRequest is the transcoded request sent to the NIM backend.
// MaxTokens is always set (the upstream rejects omission for some models) and
// ChatTemplateKwargs carries provider extensions such as the deep-thinking
// toggle.
type UpstreamRequest struct {
	Model              string         `json:"model"`
	Messages           []ChatMessage  `json:"messages"`
	Temperature        *float64       `json:"temperature,omitempty"`
	TopP               *float64       `json:"top_p,omitempty"`
	MaxTokens          int            `json:"max_tokens"`
	Stream             bool           `json:"stream"`
	ChatTemplateKwargs map[string]any `json:"chat_template_kwargs,omitempty"`
}

// ModelInfo is one entry of the /v1/models listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the /v1/models response envelope.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}
