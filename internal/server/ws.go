package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/audiorelay/speech-gateway/internal/config"
	"github.com/audiorelay/speech-gateway/internal/event"
	"github.com/audiorelay/speech-gateway/internal/session"
)

const (
	// pongWait is how long to wait for a pong before dropping the client
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait
	pingPeriod = 30 * time.Second
)

// WSServer accepts WebSocket clients and bridges them to the session
// manager: inbound JSON messages become client events, outbound events
// from the dispatcher are written back on the same connection.
type WSServer struct {
	server     *http.Server
	config     *config.ServerConfig
	logger     *slog.Logger
	sessionMgr *session.Manager
	dispatcher *session.Dispatcher
	upgrader   websocket.Upgrader

	// Connection tracking
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connectionsAccepted uint64
	messagesReceived    uint64
	parseErrors         uint64
	mu                  sync.RWMutex
}

// NewWSServer creates a new WebSocket server instance
func NewWSServer(cfg *config.ServerConfig, logger *slog.Logger, sessionMgr *session.Manager, dispatcher *session.Dispatcher) *WSServer {
	ctx, cancel := context.WithCancel(context.Background())

	s := &WSServer{
		config:     cfg,
		logger:     logger,
		sessionMgr: sessionMgr,
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleUpgrade)

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:     mux,
		ReadTimeout: 0, // long-lived connections
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// Start begins accepting WebSocket connections
func (s *WSServer) Start() error {
	s.logger.Info("WebSocket server started",
		slog.String("address", s.server.Addr),
		slog.String("path", s.config.Path),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the WebSocket server and waits for connection
// goroutines to drain
func (s *WSServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping WebSocket server...")

	s.cancel()

	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for connection goroutines")
	}

	s.mu.RLock()
	accepted := s.connectionsAccepted
	received := s.messagesReceived
	parseErrors := s.parseErrors
	s.mu.RUnlock()

	s.logger.Info("WebSocket server stopped",
		slog.Uint64("connections_accepted", accepted),
		slog.Uint64("messages_received", received),
		slog.Uint64("parse_errors", parseErrors),
	)

	return err
}

// handleUpgrade upgrades the HTTP request and runs the connection
func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	clientID := uuid.NewString()

	s.mu.Lock()
	s.connectionsAccepted++
	s.mu.Unlock()

	s.logger.Info("Client connected",
		slog.String("client_id", clientID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// Register the outbound queue before the session exists so no early
	// event is lost.
	outCh := s.dispatcher.Open(clientID)

	if err := s.sessionMgr.HandleEvent(&event.Inbound{Type: event.TypeConnection, ClientID: clientID}); err != nil {
		s.logger.Error("Failed to create session",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		s.dispatcher.Close(clientID)
		conn.Close()
		return
	}

	s.dispatcher.Publish(clientID, event.Connected(clientID))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeLoop(conn, clientID, outCh)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(conn, clientID)
	}()
}

// readLoop consumes client messages until the connection drops, then
// tears the session down
func (s *WSServer) readLoop(conn *websocket.Conn, clientID string) {
	defer func() {
		s.sessionMgr.HandleEvent(&event.Inbound{Type: event.TypeDisconnect, ClientID: clientID})
		conn.Close()
	}()

	conn.SetReadLimit(s.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Client connection lost",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
			} else {
				s.logger.Info("Client disconnected", slog.String("client_id", clientID))
			}
			return
		}

		if msgType != websocket.TextMessage {
			s.logger.Debug("Ignoring non-text frame",
				slog.String("client_id", clientID),
				slog.Int("message_type", msgType),
			)
			continue
		}

		s.mu.Lock()
		s.messagesReceived++
		s.mu.Unlock()

		ev, err := event.Parse(data)
		if err != nil {
			s.mu.Lock()
			s.parseErrors++
			s.mu.Unlock()

			s.logger.Warn("Failed to parse client message",
				slog.String("client_id", clientID),
				slog.Int("size", len(data)),
				slog.String("error", err.Error()),
			)
			s.dispatcher.Publish(clientID, event.Error("", "malformed message: "+err.Error()))
			continue
		}

		// The connection owns its identity; a client cannot speak for
		// another client id.
		ev.ClientID = clientID

		if ev.Type == event.TypeDisconnect {
			return
		}

		if err := s.sessionMgr.HandleEvent(ev); err != nil {
			s.logger.Warn("Event rejected",
				slog.String("client_id", clientID),
				slog.String("type", ev.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

// writeLoop forwards dispatcher events to the client and keeps the
// connection alive with pings. It exits when the dispatcher output is
// closed during session teardown.
func (s *WSServer) writeLoop(conn *websocket.Conn, clientID string, outCh <-chan event.Outbound) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	writeTimeout := s.config.GetWriteTimeoutDuration()

	for {
		select {
		case ev, ok := <-outCh:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Warn("Failed to write event to client",
					slog.String("client_id", clientID),
					slog.String("type", ev.Type),
					slog.String("error", err.Error()),
				)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// GetStatistics returns current server statistics
func (s *WSServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		ConnectionsAccepted: s.connectionsAccepted,
		MessagesReceived:    s.messagesReceived,
		ParseErrors:         s.parseErrors,
		ActiveSessions:      uint64(s.sessionMgr.GetActiveSessionCount()),
	}
}

// ServerStatistics represents transport-level counters
type ServerStatistics struct {
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	MessagesReceived    uint64 `json:"messages_received"`
	ParseErrors         uint64 `json:"parse_errors"`
	ActiveSessions      uint64 `json:"active_sessions"`
}
