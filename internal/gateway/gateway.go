// Package gateway is the transcoding proxy core: it rewrites OpenAI-style
// chat-completion requests into the upstream NIM shape and rewrites the
// upstream's reply stream back while it is still arriving.
//
// DESIGN: Request flow:
//   - handleChatCompletions(): entry point, windowing + transcoding
//   - streamCompletion():      SSE reframe + normalize, byte by byte
//   - completeOnce():          non-streaming normalize-and-forward
//
// Also includes health check, model listing, stats, and CORS glue.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/config"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/history"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/monitoring"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/normalize"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/utils"
)

// HeaderRequestID lets clients supply their own correlation ID.
const HeaderRequestID = "X-Request-ID"

// Gateway holds per-instance state. All request-scoped state (scanner
// buffers, normalizer state) is allocated per stream; nothing here is
// mutated during request handling except the monitoring sinks, which
// synchronize internally.
type Gateway struct {
	config  *config.Config
	client  *http.Client
	models  *ModelTable
	est     history.Estimator
	norm    *normalize.Normalizer
	tracker *monitoring.Tracker
	store   *monitoring.Store
	metrics *monitoring.Metrics
}

// New constructs a gateway from an explicit config value.
func New(cfg *config.Config) (*Gateway, error) {
	var norm *normalize.Normalizer
	if cfg.Normalizer.Enabled {
		n, err := normalize.New(cfg.Normalizer.Phrases)
		if err != nil {
			return nil, err
		}
		norm = n
	}

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.Enabled,
		LogPath:     cfg.Monitoring.LogPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
	})
	if err != nil {
		return nil, err
	}

	var store *monitoring.Store
	if cfg.Monitoring.Enabled && cfg.Monitoring.DBPath != "" {
		store, err = monitoring.OpenStore(cfg.Monitoring.DBPath)
		if err != nil {
			return nil, err
		}
	}

	g := &Gateway{
		config: cfg,
		client: &http.Client{
			// Per-request deadlines come from the request context; the
			// client itself must not cap long streaming reads.
			Timeout: 0,
		},
		models:  NewModelTable(cfg.Models),
		est:     history.NewEstimator(cfg.Window.Estimator),
		norm:    norm,
		tracker: tracker,
		store:   store,
		metrics: monitoring.NewMetrics(),
	}

	g.logUpstreamCredential()
	tracker.RecordInit(buildInitEvent(cfg))
	return g, nil
}

// Close releases the monitoring sinks.
func (g *Gateway) Close() error {
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			return err
		}
	}
	return g.tracker.Close()
}

// Handler returns the routed HTTP handler with CORS applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", g.handleChatCompletions)
	mux.HandleFunc("/v1/models", g.handleModels)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	return withCORS(mux)
}

// withCORS applies permissive CORS headers and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError writes a structured JSON error response in the client's format.
func (g *Gateway) writeError(w http.ResponseWriter, msg, errType string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"message": msg, "type": errType, "code": status},
	})
}

// handleHealth returns proxy health status, probing the telemetry store when
// one is configured.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if g.store != nil {
		if err := g.store.Ping(); err != nil {
			health["status"] = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if health["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}

// handleModels lists the public model names this proxy accepts.
func (g *Gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", "invalid_request_error", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.models.List())
}

// handleStats reports in-memory counters plus persisted aggregates.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{
		"counters": g.metrics.Snapshot(),
	}
	if g.store != nil {
		stats, err := g.store.Stats()
		if err != nil {
			log.Error().Err(err).Msg("stats: store query failed")
		} else {
			out["persisted"] = stats
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// getRequestID gets or generates a request ID.
func (g *Gateway) getRequestID(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

// buildInitEvent snapshots the effective configuration for the init log.
func buildInitEvent(cfg *config.Config) *monitoring.InitEvent {
	return &monitoring.InitEvent{
		Timestamp:         time.Now(),
		Event:             "proxy_init",
		ServerPort:        cfg.Server.Port,
		UpstreamBaseURL:   cfg.Upstream.BaseURL,
		UpstreamTimeoutMs: cfg.Upstream.Timeout.Milliseconds(),
		HasAPIKey:         cfg.Upstream.APIKey != "",
		TokenBudget:       cfg.Window.TokenBudget,
		Estimator:         cfg.Window.Estimator,
		NormalizerEnabled: cfg.Normalizer.Enabled,
		MinAccumulate:     cfg.Normalizer.MinAccumulate,
		PhraseCount:       len(cfg.Normalizer.Phrases),
		ReasoningExpose:   cfg.Reasoning.Expose,
		DeepThinking:      cfg.Reasoning.DeepThinking,
		TelemetryPath:     cfg.Monitoring.LogPath,
		DBPath:            cfg.Monitoring.DBPath,
	}
}

// logUpstreamCredential logs the masked credential once at debug level so
// misconfigured keys are diagnosable without leaking them.
func (g *Gateway) logUpstreamCredential() {
	log.Debug().
		Str("api_key", utils.MaskKey(g.config.Upstream.APIKey)).
		Str("base_url", g.config.Upstream.BaseURL).
		Msg("upstream configured")
}
