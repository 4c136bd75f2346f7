package recognizer

import (
	"context"
	"sync"
	"time"

	"github.com/audiorelay/speech-gateway/internal/codec"
)

// SimulatedText is the canned transcript returned by the fallback variant
const SimulatedText = "This is a simulated speech recognition result for testing purposes."

// DefaultSimulatedDelay is the artificial recognition latency
const DefaultSimulatedDelay = 1 * time.Second

// Simulated is the degraded fallback used when no real backend is reachable
// at startup. It keeps the rest of the pipeline exercisable without any
// external network dependency.
type Simulated struct {
	delay time.Duration
	text  string
}

// NewSimulated creates the simulated variant with default delay and text
func NewSimulated() *Simulated {
	return &Simulated{
		delay: DefaultSimulatedDelay,
		text:  SimulatedText,
	}
}

// NewSimulatedWith creates a simulated variant with explicit delay and
// transcript, used by tests
func NewSimulatedWith(delay time.Duration, text string) *Simulated {
	return &Simulated{delay: delay, text: text}
}

// Name identifies the simulated variant
func (s *Simulated) Name() string {
	return "simulated"
}

// Probe always succeeds; there is nothing to reach
func (s *Simulated) Probe(ctx context.Context) error {
	return nil
}

// RecognizeBatch returns the canned transcript after the artificial delay
func (s *Simulated) RecognizeBatch(ctx context.Context, audio []byte, format codec.Format) (string, error) {
	select {
	case <-time.After(s.delay):
		return s.text, nil
	case <-ctx.Done():
		return "", NewErrorWithCause(StatusTimeout, "simulated recognition canceled", ctx.Err())
	}
}

// OpenStream returns a stream that emits one canned final result when closed
func (s *Simulated) OpenStream(ctx context.Context, sessionID string, format codec.Format, onResult ResultFunc, onError ErrorFunc) (StreamHandle, error) {
	return &simulatedStream{
		sessionID: sessionID,
		delay:     s.delay,
		text:      s.text,
		onResult:  onResult,
	}, nil
}

type simulatedStream struct {
	sessionID string
	delay     time.Duration
	text      string
	onResult  ResultFunc

	mu       sync.Mutex
	received int
	closed   bool
}

func (s *simulatedStream) SessionID() string {
	return s.sessionID
}

func (s *simulatedStream) Send(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewError(StatusRecognitionError, "stream is closed")
	}

	s.received += len(pcm)
	return nil
}

func (s *simulatedStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	gotAudio := s.received > 0
	s.mu.Unlock()

	// Every closed stream answers with exactly one final result; a silent
	// stream reports an empty transcript so the owning session can finish
	// its utterance.
	go func() {
		if gotAudio {
			time.Sleep(s.delay)
			s.onResult(s.sessionID, s.text, true)
			return
		}
		s.onResult(s.sessionID, "", true)
	}()

	return nil
}
