// Package realtime tracks live client sessions, the rooms they joined and
// fans events out to them.
package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/clock"
	"github.com/smallbiznis/researchhub/internal/config"
	"github.com/smallbiznis/researchhub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultUserRoomPrefix    = "user-"
	DefaultProjectRoomPrefix = "project-"
	DefaultSendBuffer        = 32

	dropBufferFull    = metrics.DropReasonBufferFull
	dropSessionClosed = metrics.DropReasonSessionClosed
)

var (
	ErrInvalidSession = errors.New("invalid_session")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidRoom    = errors.New("invalid_room")
	ErrSessionExists  = errors.New("session_exists")
	ErrUnknownSession = errors.New("unknown_session")
	ErrPersonalRoom   = errors.New("personal_room")
)

type ManagerParam struct {
	fx.In

	Config  config.Config
	Policy  *config.RealtimeConfigHolder `optional:"true"`
	Clock   clock.Clock
	Metrics *metrics.RealtimeMetrics `optional:"true"`
	Log     *zap.Logger
}

// Manager is the registry of sessions and room memberships. All methods are
// safe for concurrent use; Publish never blocks on a slow session.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session

	userPrefix    string
	projectPrefix string
	policy        *config.RealtimeConfigHolder
	clock         clock.Clock
	metrics       *metrics.RealtimeMetrics
	log           *zap.Logger
}

func NewManager(p ManagerParam) *Manager {
	userPrefix := strings.TrimSpace(p.Config.Realtime.UserRoomPrefix)
	if userPrefix == "" {
		userPrefix = DefaultUserRoomPrefix
	}
	projectPrefix := strings.TrimSpace(p.Config.Realtime.ProjectRoomPrefix)
	if projectPrefix == "" {
		projectPrefix = DefaultProjectRoomPrefix
	}
	clk := p.Clock
	if clk == nil {
		clk = &clock.SystemClock{}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		sessions:      make(map[string]*Session),
		rooms:         make(map[string]map[string]*Session),
		userPrefix:    userPrefix,
		projectPrefix: projectPrefix,
		policy:        p.Policy,
		clock:         clk,
		metrics:       p.Metrics,
		log:           log.Named("realtime"),
	}
}

func (m *Manager) UserRoom(userID snowflake.ID) string {
	return m.userPrefix + userID.String()
}

func (m *Manager) ProjectRoom(projectID snowflake.ID) string {
	return m.projectPrefix + projectID.String()
}

// Register records a new session and joins it to its user's personal room.
func (m *Manager) Register(sessionID string, userID snowflake.ID) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	if userID == 0 {
		return nil, ErrInvalidUser
	}

	session := newSession(sessionID, userID, m.sendBuffer())

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	m.sessions[sessionID] = session
	m.joinLocked(session, m.UserRoom(userID))
	sessions, rooms := len(m.sessions), len(m.rooms)
	m.mu.Unlock()

	m.metrics.SetSessions(sessions)
	m.metrics.SetRooms(rooms)
	m.log.Debug("session registered",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID.String()),
	)
	return session, nil
}

// JoinRoom is idempotent.
func (m *Manager) JoinRoom(sessionID, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return ErrInvalidRoom
	}

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownSession
	}
	m.joinLocked(session, room)
	rooms := len(m.rooms)
	m.mu.Unlock()

	m.metrics.SetRooms(rooms)
	return nil
}

// LeaveRoom is idempotent. The personal room cannot be left while the
// session is registered.
func (m *Manager) LeaveRoom(sessionID, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return ErrInvalidRoom
	}

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownSession
	}
	if room == m.UserRoom(session.UserID) {
		m.mu.Unlock()
		return ErrPersonalRoom
	}
	m.leaveLocked(session, room)
	rooms := len(m.rooms)
	m.mu.Unlock()

	m.metrics.SetRooms(rooms)
	return nil
}

// Unregister removes the session from every room and closes its event
// channel. Unknown or already removed sessions are ignored.
func (m *Manager) Unregister(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	for room := range session.rooms {
		m.leaveLocked(session, room)
	}
	delete(m.sessions, sessionID)
	sessions, rooms := len(m.sessions), len(m.rooms)
	m.mu.Unlock()

	session.close()

	m.metrics.SetSessions(sessions)
	m.metrics.SetRooms(rooms)
	m.log.Debug("session unregistered",
		zap.String("session_id", sessionID),
		zap.String("user_id", session.UserID.String()),
	)
}

// Publish delivers the event to the sessions in room at call time and returns
// how many accepted it. Sessions with a full buffer miss the event.
func (m *Manager) Publish(room, eventType string, payload any) int {
	room = strings.TrimSpace(room)
	if room == "" {
		return 0
	}

	m.mu.RLock()
	members := m.rooms[room]
	targets := make([]*Session, 0, len(members))
	for _, session := range members {
		targets = append(targets, session)
	}
	m.mu.RUnlock()

	m.metrics.RecordPublished(eventType)
	if len(targets) == 0 {
		return 0
	}

	ev := Event{Type: eventType, Data: payload, CreatedAt: m.clock.Now()}
	delivered := 0
	for _, session := range targets {
		ok, reason := session.offer(ev)
		if ok {
			delivered++
			continue
		}
		m.metrics.RecordDropped(reason)
		if reason == dropBufferFull {
			m.log.Warn("realtime event dropped",
				zap.String("session_id", session.ID),
				zap.String("room", room),
				zap.String("event_type", eventType),
			)
		}
	}
	m.metrics.RecordDelivered(delivered)
	return delivered
}

func (m *Manager) PublishToUser(userID snowflake.ID, eventType string, payload any) int {
	return m.Publish(m.UserRoom(userID), eventType, payload)
}

// Send queues an event for a single session, used for replies such as errors.
func (m *Manager) Send(sessionID, eventType string, payload any) bool {
	m.mu.RLock()
	session, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	delivered, reason := session.offer(Event{Type: eventType, Data: payload, CreatedAt: m.clock.Now()})
	if !delivered {
		m.metrics.RecordDropped(reason)
	}
	return delivered
}

// RoomSize returns the number of sessions currently in room.
func (m *Manager) RoomSize(room string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room])
}

// SessionRooms lists the rooms a session has joined.
func (m *Manager) SessionRooms(sessionID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(session.rooms))
	for room := range session.rooms {
		out = append(out, room)
	}
	return out
}

func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown unregisters every live session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.Unregister(id)
	}
	return nil
}

func (m *Manager) joinLocked(session *Session, room string) {
	members := m.rooms[room]
	if members == nil {
		members = make(map[string]*Session)
		m.rooms[room] = members
	}
	members[session.ID] = session
	session.rooms[room] = struct{}{}
}

func (m *Manager) leaveLocked(session *Session, room string) {
	delete(session.rooms, room)
	members := m.rooms[room]
	if members == nil {
		return
	}
	delete(members, session.ID)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
}

func (m *Manager) sendBuffer() int {
	if m.policy == nil {
		return DefaultSendBuffer
	}
	if size := m.policy.Get().SendBuffer; size > 0 {
		return size
	}
	return DefaultSendBuffer
}
