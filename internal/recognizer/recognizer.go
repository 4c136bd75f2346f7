package recognizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/audiorelay/speech-gateway/internal/codec"
)

// ResultFunc delivers an asynchronous streaming transcript. Results are
// tagged with the owning session id so late results for a closed session
// can be dropped instead of dispatched.
type ResultFunc func(sessionID, text string, isFinal bool)

// ErrorFunc delivers an asynchronous streaming failure
type ErrorFunc func(sessionID string, err error)

// StreamHandle is an open bidirectional recognition channel. It is
// exclusively owned by one session and closed exactly once.
type StreamHandle interface {
	// SessionID returns the recognition session id minted for this stream
	SessionID() string

	// Send pushes a raw PCM frame; no response is expected inline
	Send(pcm []byte) error

	// Close finishes the stream. Pending results may still arrive on the
	// callbacks registered at open time.
	Close() error
}

// Recognizer is the polymorphic interface over the recognition strategies
type Recognizer interface {
	// Name identifies the active variant
	Name() string

	// Probe checks backend reachability. Called once at construction time;
	// a failure downgrades the gateway to the simulated variant.
	Probe(ctx context.Context) error

	// RecognizeBatch submits a complete utterance and blocks until a
	// transcript or the configured timeout. Multiple results across the
	// response are concatenated in order with a single separating space.
	RecognizeBatch(ctx context.Context, audio []byte, format codec.Format) (string, error)

	// OpenStream establishes a long-lived channel and sends the
	// configuration frame. Results arrive on the callbacks.
	OpenStream(ctx context.Context, sessionID string, format codec.Format, onResult ResultFunc, onError ErrorFunc) (StreamHandle, error)
}

// Config selects and configures the recognition backend
type Config struct {
	Mode           string // "batch" or "stream"
	Endpoint       string // HTTP endpoint for batch recognition
	StreamEndpoint string // WebSocket endpoint for streaming recognition
	APIKey         string
	Language       string
	Timeout        time.Duration // batch recognition bound
	MaxConcurrent  int           // concurrent batch requests
	ProbeTimeout   time.Duration
}

const (
	// ModeBatch selects one-shot request/response recognition
	ModeBatch = "batch"

	// ModeStream selects incremental bidirectional recognition
	ModeStream = "stream"

	defaultProbeTimeout = 3 * time.Second
)

// New selects the recognition backend once at startup. If the configured
// backend is unreachable the simulated variant is returned instead; the
// downgrade is logged, not surfaced.
func New(cfg Config, logger *slog.Logger) Recognizer {
	var rec Recognizer
	switch cfg.Mode {
	case ModeStream:
		rec = NewStreamClient(cfg, logger)
	default:
		rec = NewBatchClient(cfg, logger)
	}

	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	if err := rec.Probe(ctx); err != nil {
		logger.Warn("Recognition backend unreachable, falling back to simulated recognition",
			slog.String("backend", rec.Name()),
			slog.String("error", err.Error()),
		)
		return NewSimulated()
	}

	logger.Info("Recognition backend selected",
		slog.String("backend", rec.Name()),
		slog.String("mode", cfg.Mode),
	)

	return rec
}
