package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiorelay/speech-gateway/internal/config"
	"github.com/audiorelay/speech-gateway/internal/metrics"
	"github.com/audiorelay/speech-gateway/internal/session"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	wsServer   *WSServer
	metrics    *metrics.Metrics
	recognizer string // active backend name, for health reporting

	// Server state
	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, sessionMgr *session.Manager, wsServer *WSServer, m *metrics.Metrics, recognizerName string) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessionMgr: sessionMgr,
		wsServer:   wsServer,
		metrics:    m,
		recognizer: recognizerName,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	wsStats := h.wsServer.GetStatistics()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "speech-gateway",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"websocket_server": map[string]interface{}{
				"status":               "running",
				"connections_accepted": wsStats.ConnectionsAccepted,
				"messages_received":    wsStats.MessagesReceived,
				"parse_errors":         wsStats.ParseErrors,
			},
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.sessionMgr.GetActiveSessionCount(),
			},
			"recognition": map[string]interface{}{
				"status":  "running",
				"backend": h.recognizer,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.sessionMgr.GetAllSessions()

	response := map[string]interface{}{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{client_id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := r.URL.Path[len("/sessions/"):]
	if clientID == "" {
		http.Error(w, "Client ID required", http.StatusBadRequest)
		return
	}

	snapshot, exists := h.sessionMgr.GetSessionInfo(clientID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":             h.config.Server.Port,
			"bind_address":     h.config.Server.BindAddress,
			"path":             h.config.Server.Path,
			"max_message_size": h.config.Server.MaxMessageSize,
			"write_timeout":    h.config.Server.WriteTimeout,
		},
		"audio": map[string]interface{}{
			"sample_rate":     h.config.Audio.SampleRate,
			"channels":        h.config.Audio.Channels,
			"bit_depth":       h.config.Audio.BitDepth,
			"max_chunk_bytes": h.config.Audio.MaxChunkBytes,
		},
		"session": map[string]interface{}{
			"chunk_timeout":     h.config.Session.ChunkTimeout,
			"watchdog_interval": h.config.Session.WatchdogInterval,
			"idle_timeout":      h.config.Session.IdleTimeout,
		},
		"recognition": map[string]interface{}{
			"mode":            h.config.Recognition.Mode,
			"endpoint":        h.config.Recognition.Endpoint,
			"stream_endpoint": h.config.Recognition.StreamEndpoint,
			"language":        h.config.Recognition.Language,
			"timeout":         h.config.Recognition.Timeout,
			"max_concurrent":  h.config.Recognition.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"completion": map[string]interface{}{
			"enabled": h.config.Completion.Enabled,
			"model":   h.config.Completion.Model,
			"timeout": h.config.Completion.Timeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wsStats := h.wsServer.GetStatistics()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"websocket": wsStats,
		"sessions": map[string]interface{}{
			"active_count": h.sessionMgr.GetActiveSessionCount(),
			"snapshot":     h.sessionMgr.GetSessionSnapshot(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Speech Gateway",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                      "API documentation",
			"GET /health":                "Service health check",
			"GET /sessions":              "List all active sessions",
			"GET /sessions/{client_id}":  "Get detailed session information",
			"GET /config":                "Get service configuration",
			"GET /stats":                 "Get service statistics",
			"GET /metrics":               "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
