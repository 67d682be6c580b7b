// nim-proxy serves an OpenAI-compatible chat-completions API backed by an
// NVIDIA NIM endpoint, trimming history to a token budget on the way in and
// normalizing reply lead-ins on the way out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/config"
	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/gateway"
)

func main() {
	var (
		configFlag string
		portFlag   int
		debugFlag  bool
	)
	flag.StringVar(&configFlag, "config", "", "path to YAML config file")
	flag.IntVar(&portFlag, "port", 0, "listen port (overrides config)")
	flag.BoolVar(&debugFlag, "debug", false, "enable debug logging")
	flag.Parse()

	// .env is optional; environment always wins for ${VAR} expansion.
	_ = godotenv.Load()

	setupLogging(debugFlag)

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}
	if debugFlag {
		cfg.Server.Debug = true
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway init failed")
	}
	defer func() { _ = gw.Close() }()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     gw.Handler(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout must outlast the longest upstream stream; the
		// upstream timeout already bounds each request.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("upstream", cfg.Upstream.BaseURL).
			Msg("proxy listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}
}

// setupLogging configures the global zerolog logger.
func setupLogging(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
