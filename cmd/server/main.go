package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiorelay/speech-gateway/internal/codec"
	"github.com/audiorelay/speech-gateway/internal/completion"
	"github.com/audiorelay/speech-gateway/internal/config"
	"github.com/audiorelay/speech-gateway/internal/metrics"
	"github.com/audiorelay/speech-gateway/internal/recognizer"
	"github.com/audiorelay/speech-gateway/internal/server"
	"github.com/audiorelay/speech-gateway/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "speech-gateway"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("ws_port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.String("ws_path", cfg.Server.Path),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_timeout", cfg.Session.ChunkTimeout),
		slog.String("recognition_mode", cfg.Recognition.Mode),
		slog.String("recognition_endpoint", cfg.Recognition.Endpoint),
		slog.Bool("completion_enabled", cfg.Completion.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Select the recognition backend. An unreachable backend downgrades
	// to simulated recognition rather than failing startup.
	var rec recognizer.Recognizer
	if cfg.Recognition.Mode == "simulated" {
		rec = recognizer.NewSimulated()
		logger.Info("Using simulated recognition backend")
	} else {
		rec = recognizer.New(recognizer.Config{
			Mode:           cfg.Recognition.Mode,
			Endpoint:       cfg.Recognition.Endpoint,
			StreamEndpoint: cfg.Recognition.StreamEndpoint,
			APIKey:         cfg.Recognition.APIKey,
			Language:       cfg.Recognition.Language,
			Timeout:        cfg.Recognition.GetTimeoutDuration(),
			MaxConcurrent:  cfg.Recognition.MaxConcurrent,
		}, logger)
	}

	// Initialize the completion client if forwarding is enabled
	var completer session.Completer
	if cfg.Completion.Enabled {
		client, err := completion.NewClient(completion.Config{
			Enabled:      cfg.Completion.Enabled,
			Endpoint:     cfg.Completion.Endpoint,
			APIKey:       cfg.Completion.APIKey,
			Model:        cfg.Completion.Model,
			SystemPrompt: cfg.Completion.SystemPrompt,
			Timeout:      cfg.Completion.GetTimeoutDuration(),
		}, logger)
		if err != nil {
			logger.Error("Failed to create completion client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		completer = client
		logger.Info("Completion client initialized", slog.String("model", cfg.Completion.Model))
	}

	// Initialize the outbound event dispatcher and session manager
	dispatcher := session.NewDispatcher(logger, appMetrics)

	sessionMgr := session.NewManager(session.Config{
		Mode: cfg.Recognition.Mode,
		Format: codec.Format{
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			BitsPerSample: cfg.Audio.BitDepth,
		},
		MaxChunkBytes:    cfg.Audio.MaxChunkBytes,
		ChunkTimeout:     cfg.Session.GetChunkTimeoutDuration(),
		WatchdogInterval: cfg.Session.GetWatchdogIntervalDuration(),
		IdleTimeout:      cfg.Session.GetIdleTimeoutDuration(),
		CompletionWait:   cfg.Completion.GetTimeoutDuration(),
	}, rec, dispatcher, completer, logger, appMetrics)

	logger.Info("Session manager initialized",
		slog.Duration("chunk_timeout", cfg.Session.GetChunkTimeoutDuration()),
		slog.Duration("idle_timeout", cfg.Session.GetIdleTimeoutDuration()),
		slog.String("recognition_backend", rec.Name()),
	)

	// Initialize WebSocket server
	wsServer := server.NewWSServer(&cfg.Server, logger, sessionMgr, dispatcher)
	logger.Info("WebSocket server initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sessionMgr, wsServer, appMetrics, rec.Name())
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start WebSocket server
	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start WebSocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d%s", cfg.Server.BindAddress, cfg.Server.Port, cfg.Server.Path)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop WebSocket server (stop accepting new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping WebSocket server", slog.String("error", err.Error()))
	}

	// Stop session manager (tear down sessions and background routines)
	sessionMgr.Stop()

	// Get final statistics
	stats := wsServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("connections_accepted", stats.ConnectionsAccepted),
		slog.Uint64("messages_received", stats.MessagesReceived),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
