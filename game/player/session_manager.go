package player

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager tracks the WebSocket sessions connected to this node,
// at most one per character.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]*PlayerSession
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*PlayerSession),
		logger:   logger,
	}
}

// Register makes s the character's session. A session it replaces is
// closed, which covers reconnects and double logins.
func (sm *SessionManager) Register(s *PlayerSession) {
	sm.mu.Lock()
	old := sm.sessions[s.CharID]
	sm.sessions[s.CharID] = s
	sm.mu.Unlock()

	if old != nil && old != s {
		old.Close()
		sm.logger.Info("session displaced", zap.Int64("char_id", s.CharID))
	}
	sm.logger.Debug("session registered", zap.Int64("char_id", s.CharID))
}

// Unregister removes s if it is still the registered session for its
// character. A displaced session never removes its replacement.
func (sm *SessionManager) Unregister(s *PlayerSession) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.sessions[s.CharID] != s {
		return false
	}
	delete(sm.sessions, s.CharID)
	return true
}

// Get returns the session for a charID, or nil if not found.
func (sm *SessionManager) Get(charID int64) *PlayerSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[charID]
}

func (sm *SessionManager) IsOnline(charID int64) bool {
	return sm.Get(charID) != nil
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Kick closes charID's session. The read loop unregisters it.
func (sm *SessionManager) Kick(charID int64) bool {
	s := sm.Get(charID)
	if s == nil {
		return false
	}
	s.Close()
	return true
}

// DroppedFrames sums the frames dropped by the connected sessions.
func (sm *SessionManager) DroppedFrames() int64 {
	var n int64
	for _, s := range sm.snapshot() {
		n += s.Dropped()
	}
	return n
}

func (sm *SessionManager) snapshot() []*PlayerSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*PlayerSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAllSessions closes every session and waits up to maxWait for their
// read loops to unregister them.
func (sm *SessionManager) CloseAllSessions(maxWait time.Duration) {
	sessions := sm.snapshot()
	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for sm.Count() > 0 {
		select {
		case <-deadline.C:
			sm.logger.Warn("sessions still open after shutdown wait", zap.Int("count", sm.Count()))
			return
		case <-tick.C:
		}
	}
}
