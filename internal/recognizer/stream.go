package recognizer

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiorelay/speech-gateway/internal/codec"
)

// StreamClient performs incremental recognition over a WebSocket channel
type StreamClient struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer
}

// configFrame is the first message on every stream, declaring the audio
// format and recognition options before any audio is sent
type configFrame struct {
	Type           string `json:"type"`
	APIKey         string `json:"api_key,omitempty"`
	SessionID      string `json:"session_id"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
	Encoding       string `json:"encoding"`
	Language       string `json:"language,omitempty"`
	InterimResults bool   `json:"interim_results"`
}

// streamResponse is a single asynchronous message from the backend
type streamResponse struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error,omitempty"`
}

// NewStreamClient creates the streaming recognition variant
func NewStreamClient(cfg Config, logger *slog.Logger) *StreamClient {
	return &StreamClient{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Name identifies the streaming variant
func (c *StreamClient) Name() string {
	return "stream"
}

// Probe checks that the streaming endpoint accepts a WebSocket handshake
func (c *StreamClient) Probe(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.StreamEndpoint, c.authHeader())
	if err != nil {
		return NewErrorWithCause(StatusBackendUnavailable, "stream endpoint unreachable", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

// RecognizeBatch is not supported by the streaming variant
func (c *StreamClient) RecognizeBatch(ctx context.Context, audio []byte, format codec.Format) (string, error) {
	return "", NewError(StatusUnsupported, "streaming backend does not support batch recognition")
}

// OpenStream dials the backend, sends the configuration frame, and starts
// the read loop delivering results on the registered callbacks. The
// callbacks fire on the read goroutine; callers must marshal back onto the
// owning session's context before touching session state.
func (c *StreamClient) OpenStream(ctx context.Context, sessionID string, format codec.Format, onResult ResultFunc, onError ErrorFunc) (StreamHandle, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.StreamEndpoint, c.authHeader())
	if err != nil {
		return nil, NewErrorWithCause(StatusRecognitionError, "failed to open recognition stream", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	frame := configFrame{
		Type:           "config",
		APIKey:         c.cfg.APIKey,
		SessionID:      sessionID,
		SampleRate:     format.SampleRate,
		Channels:       format.Channels,
		Encoding:       "linear16",
		Language:       c.cfg.Language,
		InterimResults: true,
	}

	if err := conn.WriteJSON(frame); err != nil {
		conn.Close()
		return nil, NewErrorWithCause(StatusRecognitionError, "failed to send configuration frame", err)
	}

	stream := &wsStream{
		sessionID: sessionID,
		conn:      conn,
		logger:    c.logger,
		done:      make(chan struct{}),
	}

	go stream.readLoop(onResult, onError)

	c.logger.Debug("Recognition stream opened",
		slog.String("session_id", sessionID),
		slog.Int("sample_rate", format.SampleRate),
	)

	return stream, nil
}

func (c *StreamClient) authHeader() http.Header {
	if c.cfg.APIKey == "" {
		return nil
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return header
}

// wsStream is one open recognition stream, exclusively owned by a session
type wsStream struct {
	sessionID string
	conn      *websocket.Conn
	logger    *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// SessionID returns the recognition session id minted for this stream
func (s *wsStream) SessionID() string {
	return s.sessionID
}

// Send pushes a raw PCM frame as a binary message
func (s *wsStream) Send(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return NewError(StatusRecognitionError, "stream is closed")
	default:
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return NewErrorWithCause(StatusRecognitionError, "failed to send audio frame", err)
	}

	return nil
}

// Close finishes the stream exactly once. An end frame tells the backend to
// flush pending results; the read loop keeps draining them until the close
// handshake or the deadline below, then releases the socket.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		s.conn.WriteJSON(map[string]string{"type": "end"})
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	})
	return nil
}

// readLoop delivers asynchronous results until the stream ends
func (s *wsStream) readLoop(onResult ResultFunc, onError ErrorFunc) {
	defer s.conn.Close()

	for {
		var resp streamResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			select {
			case <-s.done:
				// closed locally, expected
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					onError(s.sessionID, NewErrorWithCause(StatusRecognitionError, "recognition stream failed", err))
				}
			}
			return
		}

		if resp.Error != "" {
			onError(s.sessionID, NewError(StatusRecognitionError, resp.Error))
			continue
		}

		if resp.Text == "" {
			continue
		}

		onResult(s.sessionID, resp.Text, resp.IsFinal)
	}
}
