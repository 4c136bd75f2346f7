package session

import (
	"log/slog"
	"time"

	"github.com/audiorelay/speech-gateway/internal/segment"
)

// cleanupInterval is how often the idle eviction routine scans sessions
const cleanupInterval = 30 * time.Second

// getOrCreate returns the session for a client, creating it if needed.
// created reports whether this call constructed the session.
func (m *Manager) getOrCreate(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.sessions[clientID]; exists {
		return existing, false
	}

	s := newSession(clientID, m.cfg.Format, segment.WithChunkTimeout(m.cfg.ChunkTimeout))
	m.sessions[clientID] = s

	m.metrics.RecordSessionCreated()
	m.logger.Info("Created new session",
		slog.String("client_id", clientID),
		slog.Int("active_sessions", len(m.sessions)),
	)

	return s, true
}

// getSession retrieves an existing session
func (m *Manager) getSession(clientID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[clientID]
	return s, exists
}

// remove deletes the session from the registry and returns it for
// teardown, or nil if it was not registered.
func (m *Manager) remove(clientID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[clientID]
	if !exists {
		return nil
	}

	delete(m.sessions, clientID)
	return s
}

// listSessions returns a snapshot of all registered sessions
func (m *Manager) listSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}

	return sessions
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetSessionSnapshot returns the client id to recognition session id
// mapping for all active sessions. Clients with no utterance yet map to
// an empty id.
func (m *Manager) GetSessionSnapshot() map[string]string {
	snapshot := make(map[string]string)
	for _, s := range m.listSessions() {
		if snap, ok := s.Snapshot(); ok {
			snapshot[snap.ClientID] = snap.SessionID
		}
	}

	return snapshot
}

// GetAllSessions returns detailed snapshots of all sessions (for
// monitoring APIs)
func (m *Manager) GetAllSessions() []Snapshot {
	sessions := m.listSessions()

	snapshots := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		if snap, ok := s.Snapshot(); ok {
			snapshots = append(snapshots, snap)
		}
	}

	return snapshots
}

// GetSessionInfo returns the snapshot of a single session
func (m *Manager) GetSessionInfo(clientID string) (Snapshot, bool) {
	s, exists := m.getSession(clientID)
	if !exists {
		return Snapshot{}, false
	}

	return s.Snapshot()
}

// cleanupRoutine runs in a separate goroutine to evict idle sessions
func (m *Manager) cleanupRoutine() {
	defer m.routines.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("idle_timeout", m.cfg.IdleTimeout),
		slog.Duration("check_interval", cleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.evictIdleSessions()
		}
	}
}

// evictIdleSessions removes sessions with no client activity for longer
// than the idle timeout
func (m *Manager) evictIdleSessions() {
	now := time.Now()

	var expired []string
	for _, s := range m.listSessions() {
		if now.Sub(s.LastActivity()) > m.cfg.IdleTimeout {
			expired = append(expired, s.ClientID)
		}
	}

	if len(expired) == 0 {
		return
	}

	m.logger.Info("Evicting idle sessions", slog.Int("expired_count", len(expired)))

	for _, clientID := range expired {
		if s := m.remove(clientID); s != nil {
			m.teardown(s, "idle timeout")
		}
	}
}
