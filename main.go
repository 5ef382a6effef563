package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pongarena/engine/internal/auth"
	"pongarena/engine/internal/config"
	"pongarena/engine/internal/logging"
	"pongarena/engine/internal/results"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		//1.- The structured logger needs the config, so bootstrap failures
		// go straight to stderr.
		fmt.Fprintln(os.Stderr, "configuration invalid:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger construction failed:", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer func() { _ = logger.Sync() }()

	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		logger.Fatal("authenticator construction failed", logging.Error(err))
	}
	recorder := buildRecorder(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := NewBroker(cfg,
		WithBrokerLogger(logger),
		WithWebsocketAuthenticator(authenticator),
		WithResultRecorder(recorder),
		WithBaseContext(ctx))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", broker.serveWS)
	mux.Handle("/api/stats", statsHandler(broker))
	server := &http.Server{Addr: cfg.Address, Handler: mux}

	go func() {
		//1.- Translate the shutdown signal into a bounded server drain.
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(drainCtx)
	}()

	logger.Info("engine listening",
		logging.String("addr", cfg.Address),
		logging.Float64("tick_rate_hz", cfg.TickRateHz),
		logging.Int("winning_score", cfg.WinningScore),
		logging.Bool("tls", cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""))
	if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
		err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", logging.Error(err))
	}
}

// buildAuthenticator picks the credential verification mode: local HMAC
// tokens when a shared secret is configured, otherwise the remote identity
// service.
func buildAuthenticator(cfg *config.Config) (websocketAuthenticator, error) {
	if cfg.AuthSecret != "" {
		verifier, err := auth.NewHMACVerifier(cfg.AuthSecret, handshakeLeeway)
		if err != nil {
			return nil, err
		}
		return newVerifierAuthenticator(verifier)
	}
	verifier, err := auth.NewRemoteVerifier(cfg.AuthServiceURL)
	if err != nil {
		return nil, err
	}
	return newVerifierAuthenticator(verifier)
}

// buildRecorder wires the result sink, falling back to a no-op when no
// persistence endpoint is configured.
func buildRecorder(cfg *config.Config, logger *logging.Logger) results.Recorder {
	if cfg.ResultsURL == "" {
		logger.Warn("no results endpoint configured, final scores will not be persisted")
		return results.NopRecorder{}
	}
	recorder, err := results.NewHTTPRecorder(cfg.ResultsURL, results.WithRecorderLogger(logger))
	if err != nil {
		logger.Warn("results recorder unavailable, falling back to no-op", logging.Error(err))
		return results.NopRecorder{}
	}
	return recorder
}
