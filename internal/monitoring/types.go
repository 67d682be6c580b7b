// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
package monitoring

import "time"

// TelemetryConfig controls JSONL event recording.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string
	LogToStdout bool
}

// RequestEvent is the telemetry record for one transcoded request.
type RequestEvent struct {
	RequestID         string    `json:"request_id"`
	Timestamp         time.Time `json:"timestamp"`
	Method            string    `json:"method"`
	Path              string    `json:"path"`
	Model             string    `json:"model"`
	UpstreamModel     string    `json:"upstream_model"`
	Stream            bool      `json:"stream"`
	StatusCode        int       `json:"status_code"`
	RequestBodySize   int       `json:"request_body_size"`
	ResponseBodySize  int       `json:"response_body_size,omitempty"`
	MessagesIn        int       `json:"messages_in"`
	MessagesForwarded int       `json:"messages_forwarded"`
	WindowTokens      int       `json:"window_tokens"`
	UpstreamLatencyMs int64     `json:"upstream_latency_ms"`
	TotalLatencyMs    int64     `json:"total_latency_ms"`
	Success           bool      `json:"success"`
	Error             string    `json:"error,omitempty"`
}

// InitEvent records the effective configuration at startup.
type InitEvent struct {
	Timestamp         time.Time `json:"timestamp"`
	Event             string    `json:"event"`
	ServerPort        int       `json:"server_port"`
	UpstreamBaseURL   string    `json:"upstream_base_url"`
	UpstreamTimeoutMs int64     `json:"upstream_timeout_ms"`
	HasAPIKey         bool      `json:"has_api_key"`
	TokenBudget       int       `json:"token_budget"`
	Estimator         string    `json:"estimator"`
	NormalizerEnabled bool      `json:"normalizer_enabled"`
	MinAccumulate     int       `json:"min_accumulate"`
	PhraseCount       int       `json:"phrase_count"`
	ReasoningExpose   bool      `json:"reasoning_expose"`
	DeepThinking      bool      `json:"deep_thinking"`
	TelemetryPath     string    `json:"telemetry_path,omitempty"`
	DBPath            string    `json:"db_path,omitempty"`
}

// StoreStats are aggregates over the persisted request events.
type StoreStats struct {
	TotalRequests    int64   `json:"total_requests"`
	Successes        int64   `json:"successes"`
	StreamedRequests int64   `json:"streamed_requests"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	TotalWindowToken int64   `json:"total_window_tokens"`
}
