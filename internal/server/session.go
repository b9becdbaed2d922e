package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/devicelink/internal/protocol"
)

const writeTimeout = 10 * time.Second

// State is the lifecycle state of a session.
type State int

// Session states.
const (
	StateAwaitingIdentity State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingIdentity:
		return "AWAITING_IDENTITY"
	case StateIdentified:
		return "IDENTIFIED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is one accepted connection and the device it speaks for.
type Session struct {
	ID         string
	RemoteAddr string
	CreatedAt  time.Time

	conn    net.Conn
	writeMu sync.Mutex

	mu    sync.RWMutex
	state State
	name  string
}

func newSession(conn net.Conn) *Session {
	return &Session{
		ID:         uuid.NewString(),
		RemoteAddr: conn.RemoteAddr().String(),
		CreatedAt:  time.Now(),
		conn:       conn,
		state:      StateAwaitingIdentity,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Name returns the bound device name, or "" before identification.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// resolve returns name, or the bound name when name is empty.
func (s *Session) resolve(name string) string {
	if name != "" {
		return name
	}
	return s.Name()
}

// bind identifies the session as name. It returns the previous name.
func (s *Session) bind(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.name
	if s.state != StateClosed {
		s.state = StateIdentified
	}
	s.name = name
	return prev
}

// Write sends one message. Concurrent writers are serialized so messages
// never interleave on the wire.
func (s *Session) Write(b []byte) error {
	if s.State() == StateClosed {
		return protocol.ErrTransportClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrTransportClosed, err)
	}
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrTransportClosed, err)
	}
	return nil
}

// close marks the session closed and closes the connection.
func (s *Session) close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.conn.Close() //nolint:errcheck // Best effort, may already be closed
}

// SessionManager tracks live sessions and which session speaks for which device.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byName   map[string]*Session
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		byName:   make(map[string]*Session),
	}
}

// Add tracks a new session.
func (m *SessionManager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

// Remove forgets s and any device binding that points at it.
func (m *SessionManager) Remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.ID)
	if name := s.Name(); name != "" && m.byName[name] == s {
		delete(m.byName, name)
	}
}

// Bind makes s the session for device name, replacing any earlier one.
func (m *SessionManager) Bind(name string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev := s.bind(name); prev != "" && prev != name && m.byName[prev] == s {
		delete(m.byName, prev)
	}
	m.byName[name] = s
}

// Unbind removes the device binding for name if it points at s.
func (m *SessionManager) Unbind(name string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byName[name] == s {
		delete(m.byName, name)
	}
}

// Get returns the live session for device name, or nil.
func (m *SessionManager) Get(name string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byName[name]
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every live session.
func (m *SessionManager) CloseAll() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.close()
	}
}
