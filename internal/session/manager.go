package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiorelay/speech-gateway/internal/codec"
	"github.com/audiorelay/speech-gateway/internal/event"
	"github.com/audiorelay/speech-gateway/internal/metrics"
	"github.com/audiorelay/speech-gateway/internal/recognizer"
	"github.com/audiorelay/speech-gateway/internal/segment"
)

// ErrSessionNotFound is returned for events referencing a client that
// never connected or was already removed
var ErrSessionNotFound = errors.New("session not found")

// Completer generates an answer for a forwarded final transcript
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config contains session manager tuning knobs. Zero values fall back
// to the defaults below.
type Config struct {
	Mode             string        // recognition mode, "batch" or "stream"
	Format           codec.Format  // assumed PCM format for undeclared audio
	MaxChunkBytes    int           // oversized chunks are truncated to this
	ChunkTimeout     time.Duration // silence gap that ends an utterance
	WatchdogInterval time.Duration // how often the silence watchdog scans
	IdleTimeout      time.Duration // inactive session eviction threshold
	CompletionWait   time.Duration // bound on completion service calls
	FlushTimeout     time.Duration // bound on waiting for a recognition result
}

const (
	DefaultMaxChunkBytes    = 1 << 20
	DefaultWatchdogInterval = 250 * time.Millisecond
	DefaultIdleTimeout      = 60 * time.Second
	DefaultCompletionWait   = 30 * time.Second

	// DefaultFlushTimeout exceeds the batch recognition bound so the
	// backend timeout path fires first when the backend is merely slow.
	DefaultFlushTimeout = 15 * time.Second
)

// Manager owns all active sessions and routes client events to them
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	cfg        Config
	recognizer recognizer.Recognizer
	dispatcher *Dispatcher
	completer  Completer
	logger     *slog.Logger
	metrics    *metrics.Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	routines sync.WaitGroup
}

// NewManager creates a session manager and starts its watchdog and
// cleanup routines. completer may be nil to disable forwarding.
func NewManager(cfg Config, rec recognizer.Recognizer, disp *Dispatcher, completer Completer, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if cfg.Format == (codec.Format{}) {
		cfg.Format = codec.DefaultFormat
	}
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = DefaultMaxChunkBytes
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = segment.ChunkTimeout
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = DefaultWatchdogInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.CompletionWait <= 0 {
		cfg.CompletionWait = DefaultCompletionWait
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions:   make(map[string]*Session),
		cfg:        cfg,
		recognizer: rec,
		dispatcher: disp,
		completer:  completer,
		logger:     logger,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
	}

	mgr.routines.Add(2)
	go mgr.watchdogRoutine()
	go mgr.cleanupRoutine()

	return mgr
}

// HandleEvent routes one inbound client event. Connection and disconnect
// events manage the session registry; everything else is queued onto the
// session's processing goroutine, which serializes handling per client.
func (m *Manager) HandleEvent(ev *event.Inbound) error {
	m.metrics.RecordEventReceived(ev.Type)

	if ev.ClientID == "" {
		return fmt.Errorf("event %q missing client id", ev.Type)
	}

	switch ev.Type {
	case event.TypeConnection:
		m.connect(ev.ClientID)
		return nil
	case event.TypeDisconnect:
		m.disconnect(ev.ClientID)
		return nil
	}

	s, exists := m.getSession(ev.ClientID)
	if !exists {
		m.metrics.RecordEventDropped()
		m.logger.Warn("Dropping event for unknown session",
			slog.String("client_id", ev.ClientID),
			slog.String("type", ev.Type),
		)
		return fmt.Errorf("client %s: %w", ev.ClientID, ErrSessionNotFound)
	}

	s.touch()

	switch ev.Type {
	case event.TypeSpeechStart:
		s.enqueue(func() { m.startSpeech(s) })

	case event.TypeSpeech:
		payload, err := ev.DecodeAudio()
		declared := declaredFormat(ev.Format)
		s.enqueue(func() {
			if err != nil {
				m.audioError(s, err)
				return
			}
			m.feedAudio(s, payload, declared)
		})

	case event.TypeSpeechEnd:
		s.enqueue(func() { m.endSpeech(s, false) })

	case event.TypeSetForward:
		if ev.Forward == nil {
			return fmt.Errorf("set_forward event missing forward field")
		}
		forward := *ev.Forward
		s.enqueue(func() {
			s.forward = forward
			m.logger.Info("Forwarding preference updated",
				slog.String("client_id", s.ClientID),
				slog.Bool("forward", forward),
			)
		})

	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	return nil
}

// declaredFormat converts the optional wire format declaration into a
// codec format, or nil when absent
func declaredFormat(f *event.Format) *codec.Format {
	if f == nil {
		return nil
	}

	declared := codec.DefaultFormat
	if f.SampleRateHertz > 0 {
		declared.SampleRate = f.SampleRateHertz
	}
	if f.Channels > 0 {
		declared.Channels = f.Channels
	}

	return &declared
}

// connect registers the client and moves its session to listening
func (m *Manager) connect(clientID string) {
	s, created := m.getOrCreate(clientID)
	if !created {
		m.logger.Warn("Duplicate connection for client", slog.String("client_id", clientID))
		s.touch()
		return
	}

	s.enqueue(func() {
		if err := s.seg.Listen(); err != nil {
			m.logger.Error("Failed to start listening",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// disconnect removes the client's session and tears it down
func (m *Manager) disconnect(clientID string) {
	s := m.remove(clientID)
	if s == nil {
		m.metrics.RecordEventDropped()
		m.logger.Debug("Disconnect for unknown client", slog.String("client_id", clientID))
		return
	}

	m.teardown(s, "disconnect")
}

// teardown runs final cleanup on the session goroutine, stops it, and
// closes the client's dispatcher output. The recognition stream handle
// is closed exactly once here if the session still holds it.
func (m *Manager) teardown(s *Session, reason string) {
	s.enqueue(func() {
		if s.stream != nil {
			if err := s.stream.Close(); err != nil {
				m.logger.Warn("Error closing recognition stream",
					slog.String("client_id", s.ClientID),
					slog.String("error", err.Error()),
				)
			}
			s.stream = nil
		}

		if s.id != "" {
			m.dispatcher.Publish(s.ClientID, event.Stopped(s.id))
		}

		s.seg.Close()
	})
	s.stop()

	m.dispatcher.Close(s.ClientID)
	m.metrics.RecordSessionDestroyed(time.Since(s.StartTime))

	m.logger.Info("Session removed",
		slog.String("client_id", s.ClientID),
		slog.String("reason", reason),
		slog.Duration("duration", time.Since(s.StartTime)),
	)
}

// startSpeech handles an explicit speech_start marker. Runs on the
// session goroutine.
func (m *Manager) startSpeech(s *Session) {
	if s.seg.State() == segment.StateFlushing {
		m.logger.Debug("Ignoring speech_start while flushing",
			slog.String("client_id", s.ClientID),
		)
		return
	}

	already := s.seg.State() == segment.StateSpeaking

	if err := s.seg.StartSpeech(); err != nil {
		m.logger.Warn("Cannot start speech",
			slog.String("client_id", s.ClientID),
			slog.String("state", s.seg.State().String()),
			slog.String("error", err.Error()),
		)
		m.dispatcher.Publish(s.ClientID, event.Error(s.id, err.Error()))
		return
	}

	// Duplicate marker while already speaking changes nothing
	if already {
		return
	}

	m.beginUtterance(s)
}

// beginUtterance assigns the recognition session id for a new utterance
// and, in streaming mode, opens the backend stream. The batch path keys
// recognition by the client id; streaming mints a fresh id per stream so
// late results from an abandoned stream are identifiable.
func (m *Manager) beginUtterance(s *Session) {
	s.format = m.cfg.Format

	if m.cfg.Mode == recognizer.ModeStream {
		sessionID := uuid.NewString()

		handle, err := m.recognizer.OpenStream(m.ctx, sessionID, s.format, m.onStreamResult(s), m.onStreamError(s))
		if err != nil {
			m.logger.Error("Failed to open recognition stream",
				slog.String("client_id", s.ClientID),
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
			m.dispatcher.Publish(s.ClientID, event.Error(sessionID, "recognition backend unavailable"))

			// Nothing to accumulate for; return to listening
			s.seg.EndSpeech()
			s.seg.Complete()
			return
		}

		s.id = sessionID
		s.stream = handle
	} else {
		s.id = s.ClientID
	}

	m.dispatcher.Publish(s.ClientID, event.Started(s.id))

	m.logger.Debug("Utterance started",
		slog.String("client_id", s.ClientID),
		slog.String("session_id", s.id),
		slog.Bool("streaming", s.stream != nil),
	)
}

// feedAudio decodes and buffers one audio chunk. Runs on the session
// goroutine.
func (m *Manager) feedAudio(s *Session, payload []byte, declared *codec.Format) {
	if !s.seg.State().Accepting() {
		m.logger.Debug("Dropping audio chunk in non-accepting state",
			slog.String("client_id", s.ClientID),
			slog.String("state", s.seg.State().String()),
		)
		return
	}

	if len(payload) > m.cfg.MaxChunkBytes {
		m.logger.Warn("Oversized audio chunk truncated",
			slog.String("client_id", s.ClientID),
			slog.Int("size", len(payload)),
			slog.Int("limit", m.cfg.MaxChunkBytes),
		)
		payload = payload[:m.cfg.MaxChunkBytes]
	}

	frame, err := codec.Decode(payload, declared)
	if err != nil {
		m.audioError(s, err)
		return
	}

	started, err := s.seg.Feed(frame.Samples)
	if err != nil {
		m.logger.Warn("Segmenter rejected audio chunk",
			slog.String("client_id", s.ClientID),
			slog.String("error", err.Error()),
		)
		return
	}

	// A chunk while listening implicitly starts the utterance
	if started {
		m.beginUtterance(s)
	}

	s.format = frame.Format

	if s.stream != nil {
		if err := s.stream.Send(frame.Samples); err != nil {
			m.logger.Warn("Failed to forward frame to recognition stream",
				slog.String("client_id", s.ClientID),
				slog.String("session_id", s.id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// audioError surfaces a malformed payload without disturbing the
// segmentation state
func (m *Manager) audioError(s *Session, err error) {
	m.metrics.RecordDecodeError()
	m.logger.Warn("Rejected audio payload",
		slog.String("client_id", s.ClientID),
		slog.String("error", err.Error()),
	)
	m.dispatcher.Publish(s.ClientID, event.Error(s.id, fmt.Sprintf("invalid audio payload: %v", err)))
}

// endSpeech closes the current utterance and hands it to recognition.
// byTimeout marks flushes forced by the silence watchdog. Runs on the
// session goroutine.
func (m *Manager) endSpeech(s *Session, byTimeout bool) {
	utterance, ok := s.seg.EndSpeech()
	if !ok {
		m.logger.Debug("speech_end without active utterance",
			slog.String("client_id", s.ClientID),
			slog.String("state", s.seg.State().String()),
		)
		return
	}

	m.metrics.RecordUtteranceFlushed(len(utterance), byTimeout)

	m.logger.Info("Utterance flushed",
		slog.String("client_id", s.ClientID),
		slog.String("session_id", s.id),
		slog.Int("bytes", len(utterance)),
		slog.Bool("by_timeout", byTimeout),
	)

	if s.stream != nil {
		// Closing the stream asks the backend for the final transcript,
		// which arrives on the result callback.
		if err := s.stream.Close(); err != nil {
			m.logger.Warn("Error closing recognition stream",
				slog.String("client_id", s.ClientID),
				slog.String("session_id", s.id),
				slog.String("error", err.Error()),
			)
		}
		s.stream = nil
		return
	}

	if len(utterance) == 0 {
		m.dispatcher.Publish(s.ClientID, event.Transcription(s.id, "", true))
		s.seg.Complete()
		return
	}

	m.recognizeBatch(s, s.id, utterance, s.format)
}

// recognizeBatch submits the utterance off the session goroutine and
// queues the outcome back for ordered dispatch
func (m *Manager) recognizeBatch(s *Session, sessionID string, utterance []byte, format codec.Format) {
	m.routines.Add(1)
	go func() {
		defer m.routines.Done()

		start := time.Now()
		text, err := m.recognizer.RecognizeBatch(m.ctx, utterance, format)
		elapsed := time.Since(start)

		s.enqueue(func() {
			if s.id != sessionID || s.seg.State() != segment.StateFlushing {
				m.logger.Debug("Dropping stale recognition result",
					slog.String("client_id", s.ClientID),
					slog.String("session_id", sessionID),
				)
				return
			}

			switch {
			case err == nil:
				m.metrics.RecordRecognition(elapsed, "success")
				m.dispatcher.Publish(s.ClientID, event.Transcription(sessionID, text, true))
				s.seg.Complete()
				m.maybeForward(s, sessionID, text)

			case recognizer.IsTimeout(err):
				// A timed-out recognition is reported as silence: an
				// empty final transcript, not an error event.
				m.metrics.RecordRecognition(elapsed, "timeout")
				m.logger.Warn("Recognition timed out",
					slog.String("client_id", s.ClientID),
					slog.String("session_id", sessionID),
					slog.Float64("elapsed", elapsed.Seconds()),
				)
				m.dispatcher.Publish(s.ClientID, event.Transcription(sessionID, "", true))
				s.seg.Complete()

			default:
				m.metrics.RecordRecognition(elapsed, "error")
				m.logger.Error("Recognition failed",
					slog.String("client_id", s.ClientID),
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
				m.dispatcher.Publish(s.ClientID, event.Error(sessionID, "recognition failed: "+err.Error()))
				s.seg.Complete()
			}
		})
	}()
}

// onStreamResult builds the callback that marshals asynchronous stream
// results back onto the session goroutine
func (m *Manager) onStreamResult(s *Session) recognizer.ResultFunc {
	return func(sessionID, text string, isFinal bool) {
		m.metrics.RecordStreamResult(isFinal)

		s.enqueue(func() {
			if s.id != sessionID {
				m.logger.Debug("Dropping result for stale recognition session",
					slog.String("client_id", s.ClientID),
					slog.String("session_id", sessionID),
				)
				return
			}

			// Results are only meaningful while the utterance is live
			switch s.seg.State() {
			case segment.StateSpeaking, segment.StateFlushing:
			default:
				return
			}

			m.dispatcher.Publish(s.ClientID, event.Transcription(sessionID, text, isFinal))

			// A final result while flushing completes the utterance. A
			// final mid-utterance is a backend phrase boundary; the
			// session keeps speaking.
			if isFinal && s.seg.State() == segment.StateFlushing {
				m.finishUtterance(s, sessionID, text)
			}
		})
	}
}

// onStreamError builds the callback that recovers the session after a
// stream failure
func (m *Manager) onStreamError(s *Session) recognizer.ErrorFunc {
	return func(sessionID string, err error) {
		s.enqueue(func() {
			if s.id != sessionID {
				return
			}

			m.logger.Error("Recognition stream failed",
				slog.String("client_id", s.ClientID),
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
			m.dispatcher.Publish(s.ClientID, event.Error(sessionID, "recognition error: "+err.Error()))

			if s.stream != nil {
				_ = s.stream.Close()
				s.stream = nil
			}

			if s.seg.State() == segment.StateSpeaking {
				s.seg.EndSpeech()
			}
			s.seg.Complete()
		})
	}
}

// finishUtterance returns the session to listening after the final
// streaming transcript. Runs on the session goroutine.
func (m *Manager) finishUtterance(s *Session, sessionID, transcript string) {
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}

	s.seg.Complete()
	m.maybeForward(s, sessionID, transcript)
}

// maybeForward hands a final transcript to the completion service when
// the client opted in. The call runs asynchronously; the answer is
// dispatched as a completion event.
func (m *Manager) maybeForward(s *Session, sessionID, transcript string) {
	if !s.forward || transcript == "" || m.completer == nil {
		return
	}

	m.metrics.RecordCompletionRequest()

	m.routines.Add(1)
	go func() {
		defer m.routines.Done()

		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.CompletionWait)
		defer cancel()

		answer, err := m.completer.Complete(ctx, transcript)
		if err != nil {
			m.logger.Error("Completion request failed",
				slog.String("client_id", s.ClientID),
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
			return
		}

		m.dispatcher.Publish(s.ClientID, event.Completion(sessionID, answer))
	}()
}

// watchdogRoutine periodically flushes speaking sessions whose chunk
// flow stopped for longer than the chunk timeout
func (m *Manager) watchdogRoutine() {
	defer m.routines.Done()

	ticker := time.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()

	m.logger.Info("Silence watchdog started",
		slog.Duration("chunk_timeout", m.cfg.ChunkTimeout),
		slog.Duration("interval", m.cfg.WatchdogInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Silence watchdog stopping")
			return

		case <-ticker.C:
			for _, s := range m.listSessions() {
				s := s
				s.enqueue(func() {
					if s.seg.TimedOut() {
						m.logger.Info("Silence timeout, flushing utterance",
							slog.String("client_id", s.ClientID),
							slog.Int("buffered_bytes", s.seg.BufferedBytes()),
						)
						m.endSpeech(s, true)
						return
					}

					// A flush with no recognition outcome must not wedge
					// the session; it resolves as silence.
					if s.seg.FlushingFor() >= m.cfg.FlushTimeout {
						m.logger.Warn("No recognition result for flushed utterance, completing as silence",
							slog.String("client_id", s.ClientID),
							slog.String("session_id", s.id),
						)
						if s.stream != nil {
							_ = s.stream.Close()
							s.stream = nil
						}
						m.dispatcher.Publish(s.ClientID, event.Transcription(s.id, "", true))
						s.seg.Complete()
					}
				})
			}
		}
	}
}

// Stop gracefully tears down all sessions and background routines
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.teardown(s, "shutdown")
	}

	m.cancel()
	m.routines.Wait()

	m.logger.Info("Session manager stopped", slog.Int("sessions_closed", len(sessions)))
}
