package statesync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a sync session.
type SessionState string

const (
	// SessionComparing means the peers are comparing digests (Merkle root
	// or key list) to find diverging keys.
	SessionComparing SessionState = "comparing"
	// SessionTransferring means diverging deltas are being exchanged.
	SessionTransferring SessionState = "transferring"
	// SessionCompleted means the session finished.
	SessionCompleted SessionState = "completed"
	// SessionExpired means the session was reaped after inactivity.
	SessionExpired SessionState = "expired"
)

// Session is an ephemeral per-peer reconciliation context.
type Session struct {
	ID     string       `json:"id"`
	PeerID string       `json:"peer_id"`
	State  SessionState `json:"state"`

	// PendingKeys are the diverging keys still to reconcile.
	PendingKeys []string `json:"pending_keys"`

	OutboundDeltas int `json:"outbound_deltas"`
	InboundDeltas  int `json:"inbound_deltas"`

	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

// sessionSet tracks the active sync sessions, bounded by a maximum
// count.
type sessionSet struct {
	sessions map[string]*Session

	capacity int

	// mu protects the above fields.
	mu sync.Mutex
}

func newSessionSet(capacity int) *sessionSet {
	return &sessionSet{
		sessions: make(map[string]*Session),
		capacity: capacity,
	}
}

// Start creates a session for the peer, or false if the session limit
// is reached.
func (s *sessionSet) Start(peerID string, pendingKeys []string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.capacity {
		return nil, false
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.New().String(),
		PeerID:       peerID,
		State:        SessionComparing,
		PendingKeys:  pendingKeys,
		StartedAt:    now,
		LastActivity: now,
	}
	s.sessions[session.ID] = session
	return session.copy(), true
}

// SetPending records the diverging keys on the session and moves it to
// the transferring state. Returns false if the session is unknown.
func (s *sessionSet) SetPending(id string, keys []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return false
	}
	session.PendingKeys = append([]string(nil), keys...)
	session.State = SessionTransferring
	session.LastActivity = time.Now()
	return true
}

// Touch records activity and delta counts on the session. Returns false
// if the session is unknown.
func (s *sessionSet) Touch(id string, outbound int, inbound int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return false
	}
	session.LastActivity = time.Now()
	session.OutboundDeltas += outbound
	session.InboundDeltas += inbound
	if session.State == SessionComparing && outbound+inbound > 0 {
		session.State = SessionTransferring
	}
	return true
}

// Complete finishes and removes the session. Returns the final session,
// or false if unknown.
func (s *sessionSet) Complete(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	delete(s.sessions, id)

	session.State = SessionCompleted
	session.LastActivity = time.Now()
	return session, true
}

// Expire removes sessions inactive for longer than timeout and returns
// them.
func (s *sessionSet) Expire(timeout time.Duration) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*Session
	now := time.Now()
	for id, session := range s.sessions {
		if now.Sub(session.LastActivity) > timeout {
			delete(s.sessions, id)
			session.State = SessionExpired
			expired = append(expired, session)
		}
	}
	return expired
}

func (s *sessionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// List returns a snapshot of the active sessions.
func (s *sessionSet) List() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, *session.copy())
	}
	return sessions
}

func (s *Session) copy() *Session {
	c := *s
	c.PendingKeys = append([]string(nil), s.PendingKeys...)
	return &c
}
