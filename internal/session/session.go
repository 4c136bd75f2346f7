package session

import (
	"sync"
	"time"

	"github.com/audiorelay/speech-gateway/internal/codec"
	"github.com/audiorelay/speech-gateway/internal/recognizer"
	"github.com/audiorelay/speech-gateway/internal/segment"
)

// inboxDepth bounds the per-session work queue. Producers block when the
// session goroutine falls this far behind.
const inboxDepth = 64

// Session represents one connected client and its recognition state.
// The seg, id, format, forward and stream fields are owned by the
// session's single processing goroutine; all mutation goes through
// enqueue, which serializes access.
type Session struct {
	ClientID  string
	StartTime time.Time

	seg     *segment.Segmenter
	id      string // recognition session id of the current or last utterance
	format  codec.Format
	forward bool
	stream  recognizer.StreamHandle

	inbox    chan func()
	done     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}

	mu           sync.RWMutex
	lastActivity time.Time
}

// newSession creates a session and starts its processing goroutine
func newSession(clientID string, format codec.Format, segOpts ...segment.Option) *Session {
	now := time.Now()
	s := &Session{
		ClientID:     clientID,
		StartTime:    now,
		lastActivity: now,
		seg:          segment.New(segOpts...),
		format:       format,
		forward:      true,
		inbox:        make(chan func(), inboxDepth),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	go s.run()

	return s
}

// run executes queued work one item at a time. After stop is requested
// it drains whatever was already queued, so teardown work enqueued just
// before the stop still runs.
func (s *Session) run() {
	defer close(s.loopDone)

	for {
		select {
		case <-s.done:
			for {
				select {
				case fn := <-s.inbox:
					fn()
				default:
					return
				}
			}
		case fn := <-s.inbox:
			fn()
		}
	}
}

// enqueue schedules fn on the session goroutine. It returns false if the
// session has already stopped; the work is silently dropped in that case.
func (s *Session) enqueue(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

// stop terminates the processing goroutine after draining queued work.
// Must not be called from the session goroutine itself.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.loopDone
}

// touch records client activity for idle eviction
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the most recent client event
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Snapshot is a point-in-time view of a session for monitoring APIs
type Snapshot struct {
	ClientID      string        `json:"client_id"`
	SessionID     string        `json:"session_id,omitempty"`
	State         string        `json:"state"`
	Forward       bool          `json:"forward"`
	Streaming     bool          `json:"streaming"`
	BufferedBytes int           `json:"buffered_bytes"`
	StartTime     time.Time     `json:"start_time"`
	LastActivity  time.Time     `json:"last_activity"`
	Duration      time.Duration `json:"duration"`
}

// Snapshot captures a consistent view of the session by reading its
// state from the session goroutine. ok is false if the session stopped
// before the snapshot could run.
func (s *Session) Snapshot() (Snapshot, bool) {
	reply := make(chan Snapshot, 1)

	queued := s.enqueue(func() {
		reply <- Snapshot{
			ClientID:      s.ClientID,
			SessionID:     s.id,
			State:         s.seg.State().String(),
			Forward:       s.forward,
			Streaming:     s.stream != nil,
			BufferedBytes: s.seg.BufferedBytes(),
			StartTime:     s.StartTime,
			LastActivity:  s.LastActivity(),
			Duration:      time.Since(s.StartTime),
		}
	})
	if !queued {
		return Snapshot{}, false
	}

	select {
	case snap := <-reply:
		return snap, true
	case <-s.loopDone:
		// The stop drain may still have run the snapshot closure.
		select {
		case snap := <-reply:
			return snap, true
		default:
			return Snapshot{}, false
		}
	}
}
