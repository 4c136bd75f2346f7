package segment

import (
	"fmt"
	"time"
)

// State represents the segmentation state of a session
type State string

const (
	// StateConnected is the initial state before the session starts listening.
	StateConnected State = "Connected"

	// StateListening awaits an explicit speech_start or the next audio chunk.
	StateListening State = "Listening"

	// StateSpeaking accumulates decoded frames into the utterance buffer.
	StateSpeaking State = "Speaking"

	// StateFlushing hands the accumulated utterance to the recognition backend.
	StateFlushing State = "Flushing"

	// StateClosed is terminal; no further events are accepted.
	StateClosed State = "Closed"
)

// Accepting returns true if the state accepts incoming audio
func (s State) Accepting() bool {
	return s == StateListening || s == StateSpeaking
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// ChunkTimeout is the silence watchdog threshold: a speaking session that
// receives no chunk for this long is flushed as if speech_end had arrived.
const ChunkTimeout = 1000 * time.Millisecond

// Segmenter is the per-session utterance boundary state machine. It is not
// safe for concurrent use; all calls must come from the session's single
// owner goroutine.
type Segmenter struct {
	state State
	buf   []byte

	lastChunkAt     time.Time
	speechStartedAt time.Time
	flushStartedAt  time.Time

	chunkTimeout time.Duration
	now          func() time.Time
}

// Option configures a Segmenter
type Option func(*Segmenter)

// WithChunkTimeout overrides the silence watchdog threshold
func WithChunkTimeout(d time.Duration) Option {
	return func(s *Segmenter) {
		s.chunkTimeout = d
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) {
		s.now = now
	}
}

// New creates a segmenter in the Connected state
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		state:        StateConnected,
		chunkTimeout: ChunkTimeout,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Listen transitions the segmenter into the Listening state. Valid from
// Connected (session creation) and Flushing (utterance completed).
func (s *Segmenter) Listen() error {
	switch s.state {
	case StateConnected, StateFlushing, StateListening:
		s.state = StateListening
		s.buf = nil
		return nil
	default:
		return fmt.Errorf("cannot listen from state %s", s.state)
	}
}

// StartSpeech begins accumulating a new utterance. A speech_start while
// already speaking is a no-op so clients may resend the marker.
func (s *Segmenter) StartSpeech() error {
	switch s.state {
	case StateListening:
		now := s.now()
		s.state = StateSpeaking
		s.speechStartedAt = now
		s.lastChunkAt = now
		s.buf = s.buf[:0]
		return nil
	case StateSpeaking:
		return nil
	default:
		return fmt.Errorf("cannot start speech from state %s", s.state)
	}
}

// Feed appends a decoded frame to the current utterance buffer. A frame
// arriving while Listening implicitly starts a new utterance; the caller
// detects the transition via started.
func (s *Segmenter) Feed(frame []byte) (started bool, err error) {
	switch s.state {
	case StateListening:
		if err := s.StartSpeech(); err != nil {
			return false, err
		}
		started = true
	case StateSpeaking:
		// accumulating
	default:
		return false, fmt.Errorf("cannot accept audio in state %s", s.state)
	}

	s.buf = append(s.buf, frame...)
	s.lastChunkAt = s.now()
	return started, nil
}

// TimedOut reports whether the silence watchdog should flush the current
// utterance. Only meaningful while Speaking.
func (s *Segmenter) TimedOut() bool {
	return s.state == StateSpeaking && s.now().Sub(s.lastChunkAt) >= s.chunkTimeout
}

// EndSpeech closes the current utterance and transitions to Flushing.
// It returns the accumulated bytes; ok is false if nothing was speaking.
// Explicit speech_end and the silence timeout both arrive here, so the
// segmenter behaves the same whether the client sends markers or just
// stops sending chunks.
func (s *Segmenter) EndSpeech() (utterance []byte, ok bool) {
	if s.state != StateSpeaking {
		return nil, false
	}

	s.state = StateFlushing
	s.flushStartedAt = s.now()
	utterance = make([]byte, len(s.buf))
	copy(utterance, s.buf)
	return utterance, true
}

// FlushingFor reports how long the segmenter has been waiting in the
// Flushing state, or zero when not flushing.
func (s *Segmenter) FlushingFor() time.Duration {
	if s.state != StateFlushing {
		return 0
	}
	return s.now().Sub(s.flushStartedAt)
}

// Complete finishes the Flushing state and returns to Listening with an
// empty buffer. Called after recognition completes, on success or failure.
func (s *Segmenter) Complete() {
	if s.state != StateFlushing {
		return
	}

	s.buf = nil
	s.state = StateListening
}

// Close releases the buffer and moves to the terminal state
func (s *Segmenter) Close() {
	s.state = StateClosed
	s.buf = nil
}

// State returns the current segmentation state
func (s *Segmenter) State() State {
	return s.state
}

// BufferedBytes returns the size of the current utterance buffer
func (s *Segmenter) BufferedBytes() int {
	return len(s.buf)
}

// LastChunkAt returns the arrival time of the most recent chunk
func (s *Segmenter) LastChunkAt() time.Time {
	return s.lastChunkAt
}

// SpeechStartedAt returns when the current utterance began accumulating
func (s *Segmenter) SpeechStartedAt() time.Time {
	return s.speechStartedAt
}
