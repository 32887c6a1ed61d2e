package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/live-translator/internal/captions"
	"github.com/lexiqai/live-translator/internal/config"
	"github.com/lexiqai/live-translator/internal/observability"
	"github.com/lexiqai/live-translator/internal/stt"
	"github.com/lexiqai/live-translator/internal/translation"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_health_port", cfg.GRPCHealthPort).
		Str("language", cfg.DeepgramLanguage).
		Str("translate", cfg.TranslateSourceLang+">"+cfg.TranslateTargetLang).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Live translator starting")

	translator := translation.NewFromConfig(cfg, observability.WithComponent(logger, "translator"))

	// One breaker for every connection's engine, so readiness sees provider failures
	deepgramBreaker := stt.NewCircuitBreaker(cfg)
	captionHandler := captions.NewHandler(cfg, captions.DeepgramFactory(cfg, deepgramBreaker), translator)

	mux := http.NewServeMux()
	mux.Handle("/streams/captions", captionHandler)
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(
		observability.DependencyCheck{Name: "deepgram", Check: stt.ReadinessCheck(deepgramBreaker)},
		observability.DependencyCheck{Name: "translator", Check: translator.Ping},
	))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. WriteTimeout stays unset: caption
	// connections are long-lived and set their own write deadlines.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer, healthServer := observability.NewGRPCHealthServer()
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to listen for gRPC health checks")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/captions", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("port", cfg.GRPCHealthPort).Msg("gRPC health server listening")
		observability.SetServing(healthServer, true)
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		observability.SetServing(healthServer, false)
		captionHandler.Close()

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Health Watch streams never finish on their own
		defer grpcServer.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Server exited with error")
	}

	logger.Info().Msg("Server exited gracefully")
}
