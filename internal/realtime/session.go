package realtime

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Session is one live client connection. A user may hold several.
type Session struct {
	ID     string
	UserID snowflake.ID

	mu     sync.Mutex
	closed bool
	send   chan Event
	done   chan struct{}

	// rooms is guarded by Manager.mu.
	rooms map[string]struct{}
}

func newSession(id string, userID snowflake.ID, buffer int) *Session {
	return &Session{
		ID:     id,
		UserID: userID,
		send:   make(chan Event, buffer),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
}

// Events is closed once the session is unregistered.
func (s *Session) Events() <-chan Event {
	return s.send
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// offer queues ev without blocking and reports the drop reason when it could not.
func (s *Session) offer(ev Event) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, dropSessionClosed
	}
	select {
	case s.send <- ev:
		return true, ""
	default:
		return false, dropBufferFull
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
	close(s.done)
}
