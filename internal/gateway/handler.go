// Chat-completion transcoding: request windowing, upstream call, response
// rewrite (streaming and whole-document).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/config"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/history"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/monitoring"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/normalize"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/protocol"
)

// handleChatCompletions transcodes one chat-completion request.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := g.getRequestID(r)

	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", "invalid_request_error", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, g.config.Server.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			g.writeError(w, fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
				"invalid_request_error", http.StatusRequestEntityTooLarge)
			return
		}
		g.writeError(w, "failed to read request", "invalid_request_error", http.StatusBadRequest)
		return
	}

	var req protocol.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.writeError(w, "invalid JSON body: "+err.Error(), "invalid_request_error", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		g.writeError(w, "messages must not be empty", "invalid_request_error", http.StatusBadRequest)
		return
	}

	windowed := history.SelectWindow(req.Messages, g.config.Window.TokenBudget, g.est)
	upstreamReq := g.buildUpstreamRequest(&req, windowed)

	ev := &monitoring.RequestEvent{
		RequestID:         requestID,
		Timestamp:         startTime,
		Method:            r.Method,
		Path:              r.URL.Path,
		Model:             req.Model,
		UpstreamModel:     upstreamReq.Model,
		Stream:            req.Stream,
		RequestBodySize:   len(body),
		MessagesIn:        len(req.Messages),
		MessagesForwarded: len(windowed),
		WindowTokens:      history.WindowCost(windowed, g.est),
	}

	log.Debug().
		Str("request_id", requestID).
		Str("model", req.Model).
		Str("upstream_model", upstreamReq.Model).
		Int("messages_in", ev.MessagesIn).
		Int("messages_forwarded", ev.MessagesForwarded).
		Bool("stream", req.Stream).
		Msg("transcoding request")

	upstreamStart := time.Now()
	resp, err := g.callUpstream(r.Context(), upstreamReq)
	ev.UpstreamLatencyMs = time.Since(upstreamStart).Milliseconds()
	if err != nil {
		g.metrics.RecordUpstreamError()
		status, msg := mapUpstreamError(err, r.Context())
		if status != 0 {
			g.writeError(w, msg, "upstream_error", status)
		}
		ev.StatusCode = status
		ev.Error = msg
		g.finishTelemetry(ev, startTime)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		g.metrics.RecordUpstreamError()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, config.MaxErrorBodyLogLen))
		msg := gjson.GetBytes(errBody, "error.message").String()
		if msg == "" {
			msg = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
		}
		log.Error().
			Int("status", resp.StatusCode).
			Str("request_id", requestID).
			Str("response", string(errBody)).
			Msg("upstream error response")
		g.writeError(w, msg, "upstream_error", resp.StatusCode)
		ev.StatusCode = resp.StatusCode
		ev.Error = msg
		g.finishTelemetry(ev, startTime)
		return
	}

	g.metrics.RecordRequest(req.Stream)
	ev.StatusCode = http.StatusOK

	// Success is what actually reached the client, so it is decided after
	// the response ran: an interrupted stream is not a served request.
	if req.Stream {
		ev.Success = g.streamCompletion(w, resp.Body, requestID)
		if !ev.Success {
			ev.Error = "stream interrupted"
		}
	} else {
		ev.ResponseBodySize, ev.Success = g.completeOnce(w, resp)
	}
	g.finishTelemetry(ev, startTime)
}

// buildUpstreamRequest assembles the outbound NIM request from the windowed
// history plus policy-controlled extension fields.
func (g *Gateway) buildUpstreamRequest(req *protocol.ChatRequest, windowed []protocol.ChatMessage) *protocol.UpstreamRequest {
	maxTokens := config.DefaultMaxOutputTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	up := &protocol.UpstreamRequest{
		Model:       g.models.Resolve(req.Model),
		Messages:    windowed,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   maxTokens,
		Stream:      req.Stream,
	}
	if g.config.Reasoning.DeepThinking {
		up.ChatTemplateKwargs = map[string]any{"thinking": true}
	}
	return up
}

// callUpstream issues the transcoded request with a bounded wait. Reasoning
// models can take minutes before the first byte, so the bound comes from
// config, not from the HTTP client.
func (g *Gateway) callUpstream(ctx context.Context, req *protocol.UpstreamRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.Upstream.Timeout)
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		g.config.Upstream.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.config.Upstream.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.config.Upstream.APIKey)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}
	// The deadline must keep covering the body: responses stream for a while.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelReadCloser releases the call context when the body is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// mapUpstreamError converts a transport failure into a terminal status. A
// zero status means the client is already gone and no response is written.
func mapUpstreamError(err error, clientCtx context.Context) (int, string) {
	if clientCtx.Err() != nil {
		// Client disconnect: there is no caller left to report to.
		return 0, "client disconnected"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "upstream request timed out"
	}
	return http.StatusBadGateway, "upstream request failed: " + err.Error()
}

// streamCompletion pipes the upstream event stream through the reframer and
// the streaming normalizer into the client sink, flushing per event. Once
// streaming has begun, failures terminate the stream silently: the client is
// already consuming partial data and a trailing error frame would not be
// distinguishable from it. Returns false when the stream did not reach a
// clean end (client gone, upstream truncated).
func (g *Gateway) streamCompletion(w http.ResponseWriter, upstream io.Reader, requestID string) bool {
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Warn().Msg("streaming not supported by sink, falling back to buffered copy")
		_, err := io.Copy(w, upstream)
		return err == nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	scanner := NewEventScanner(!g.config.Reasoning.Expose)
	defer scanner.Close()

	sw := &streamWriter{w: w, flusher: flusher}
	if g.norm != nil {
		sw.state = normalize.NewStreamState(g.norm, g.config.Normalizer.MinAccumulate)
	}

	buf := make([]byte, config.DefaultBufferSize)
	for {
		n, readErr := upstream.Read(buf)
		if n > 0 {
			for _, ev := range scanner.Feed(buf[:n]) {
				if !sw.writeEvent(ev) {
					log.Debug().Str("request_id", requestID).Msg("client disconnected mid-stream")
					return false
				}
				if ev.Terminal {
					return true
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				log.Debug().Err(readErr).Str("request_id", requestID).Msg("upstream stream ended early")
				// Truncation: deliver what is held, report the stream failed.
				sw.finish()
				return false
			}
			// Stream end without a sentinel still forces the final flush
			// and a clean termination of the sink.
			return sw.finish()
		}
	}
}

// streamWriter owns the per-stream output state: the normalizer state and
// the last content-bearing payload, reused as the frame for flushes.
type streamWriter struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	state    *normalize.StreamState
	template []byte
	closed   bool
}

// writeEvent forwards one event to the sink. Returns false once the sink
// stops accepting writes.
func (sw *streamWriter) writeEvent(ev Event) bool {
	if ev.Terminal {
		if !sw.flushPending() {
			return false
		}
		sw.closed = true
		return sw.writeFrame(doneSentinel)
	}
	if !ev.Decoded || sw.state == nil || !sw.state.Accumulating() {
		return sw.writeFrame(ev.Data)
	}

	content := gjson.GetBytes(ev.Data, "choices.0.delta.content")
	if !content.Exists() || content.String() == "" {
		// Role and finish frames pass through; a final choice forces the
		// flush first so held content precedes the finish marker.
		if finish := gjson.GetBytes(ev.Data, "choices.0.finish_reason"); finish.Exists() && finish.Type != gjson.Null {
			if !sw.flushPending() {
				return false
			}
		}
		return sw.writeFrame(ev.Data)
	}

	sw.template = ev.Data
	out, emit := sw.state.Push(content.String())
	if !emit {
		return true // held in the accumulation buffer
	}
	return sw.writeContentFrame(out)
}

// finish force-flushes held content and terminates the sink. Returns false
// when the sink stopped accepting writes.
func (sw *streamWriter) finish() bool {
	if sw.closed {
		return true
	}
	if !sw.flushPending() {
		return false
	}
	sw.closed = true
	return sw.writeFrame(doneSentinel)
}

// flushPending emits the normalizer's held text, if any, as one fragment.
func (sw *streamWriter) flushPending() bool {
	if sw.state == nil {
		return true
	}
	text, emit := sw.state.FlushFinal()
	if !emit {
		return true
	}
	return sw.writeContentFrame(text)
}

// writeContentFrame frames text as a delta event, reusing the shape of the
// last content-bearing payload so IDs and indexes stay consistent.
func (sw *streamWriter) writeContentFrame(text string) bool {
	frame := sw.template
	if frame == nil {
		frame = []byte(`{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{}}]}`)
	}
	patched, err := sjson.SetBytes(frame, "choices.0.delta.content", text)
	if err != nil {
		patched = frame
	}
	return sw.writeFrame(patched)
}

// writeFrame writes one "data:" line with the blank-line event terminator.
func (sw *streamWriter) writeFrame(payload []byte) bool {
	if _, err := sw.w.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := sw.w.Write(payload); err != nil {
		return false
	}
	if _, err := sw.w.Write([]byte("\n\n")); err != nil {
		return false
	}
	sw.flusher.Flush()
	return true
}

// completeOnce forwards a non-streaming reply, applying whole-document
// normalization to every returned choice. Returns the bytes written and
// whether the reply was delivered intact.
func (g *Gateway) completeOnce(w http.ResponseWriter, resp *http.Response) (int, bool) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Debug().Err(err).Msg("reading upstream response failed")
		g.writeError(w, "upstream response truncated", "upstream_error", http.StatusBadGateway)
		return 0, false
	}

	body = g.normalizeResponseBody(body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	n, err := w.Write(body)
	return n, err == nil
}

// normalizeResponseBody cleans each choice's content and applies the
// reasoning-visibility policy.
func (g *Gateway) normalizeResponseBody(body []byte) []byte {
	choices := gjson.GetBytes(body, "choices")
	if !choices.IsArray() {
		return body
	}
	for i := range choices.Array() {
		contentPath := fmt.Sprintf("choices.%d.message.content", i)
		if c := gjson.GetBytes(body, contentPath); c.Type == gjson.String && g.norm != nil {
			if cleaned := g.norm.Clean(c.String()); cleaned != c.String() {
				if patched, err := sjson.SetBytes(body, contentPath, cleaned); err == nil {
					body = patched
					g.metrics.RecordNormalized()
				}
			}
		}
		if !g.config.Reasoning.Expose {
			reasoningPath := fmt.Sprintf("choices.%d.message.reasoning_content", i)
			if gjson.GetBytes(body, reasoningPath).Exists() {
				if patched, err := sjson.DeleteBytes(body, reasoningPath); err == nil {
					body = patched
				}
			}
		}
	}
	return body
}

// finishTelemetry completes and records the request event.
func (g *Gateway) finishTelemetry(ev *monitoring.RequestEvent, startTime time.Time) {
	ev.TotalLatencyMs = time.Since(startTime).Milliseconds()
	g.tracker.RecordRequest(ev)
	if g.store != nil {
		if err := g.store.Insert(ev); err != nil {
			log.Error().Err(err).Msg("telemetry: store insert failed")
		}
	}
}
