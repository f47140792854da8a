package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/researchhub/internal/config"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"go.uber.org/zap"
)

const (
	clientEventJoinChatRoom  = "joinChatRoom"
	clientEventLeaveChatRoom = "leaveChatRoom"
	clientEventSendMessage   = "sendMessage"
)

type clientEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type roomEventData struct {
	ProjectID json.RawMessage `json:"projectId"`
}

type sendMessageEventData struct {
	ProjectID json.RawMessage `json:"projectId"`
	Content   string          `json:"content"`
}

type errorEventData struct {
	Event   string `json:"event,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServeRealtime upgrades the request to a websocket bound to the caller's
// identity and relays room events until either side closes.
func (s *Server) ServeRealtime(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	policy := s.realtimePolicy()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return policy.OriginAllowed(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade rejected", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	session, err := s.realtime.Register(sessionID, userID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "register failed"),
			time.Now().Add(policy.WriteWait()))
		_ = conn.Close()
		return
	}
	defer s.realtime.Unregister(sessionID)

	log := s.log.With(zap.String("session_id", sessionID), zap.String("user_id", userID.String()))
	log.Debug("realtime session opened")

	go s.writeLoop(conn, session, policy)
	s.readLoop(c.Request.Context(), conn, session, policy, log)

	log.Debug("realtime session closed")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, session *realtime.Session, policy config.RealtimePolicy, log *zap.Logger) {
	defer conn.Close()

	readWait := 2 * policy.Heartbeat()
	conn.SetReadLimit(policy.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		var ev clientEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("realtime read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		if err := s.handleClientEvent(ctx, session, ev); err != nil {
			_, payload := mapError(err)
			s.realtime.Send(session.ID, realtime.EventError, errorEventData{
				Event:   ev.Type,
				Type:    payload.Type,
				Message: payload.Message,
			})
		}
	}
}

// writeLoop is the only writer on conn. It stops when the session is
// unregistered or a write fails.
func (s *Server) writeLoop(conn *websocket.Conn, session *realtime.Session, policy config.RealtimePolicy) {
	heartbeat := time.NewTicker(policy.Heartbeat())
	defer func() {
		heartbeat.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-session.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(policy.WriteWait()))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.realtime.Unregister(session.ID)
				return
			}
		case <-heartbeat.C:
			_ = conn.SetWriteDeadline(time.Now().Add(policy.WriteWait()))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.realtime.Unregister(session.ID)
				return
			}
		}
	}
}

func (s *Server) handleClientEvent(ctx context.Context, session *realtime.Session, ev clientEvent) error {
	switch ev.Type {
	case clientEventJoinChatRoom:
		projectID, err := decodeRoomEvent(ev.Data)
		if err != nil {
			return err
		}
		if err := s.chatSvc.Authorize(ctx, projectID, session.UserID); err != nil {
			return err
		}
		return s.realtime.JoinRoom(session.ID, s.realtime.ProjectRoom(projectID))
	case clientEventLeaveChatRoom:
		projectID, err := decodeRoomEvent(ev.Data)
		if err != nil {
			return err
		}
		return s.realtime.LeaveRoom(session.ID, s.realtime.ProjectRoom(projectID))
	case clientEventSendMessage:
		var data sendMessageEventData
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return invalidRequestError()
		}
		projectID, err := parseSnowflakeID(string(data.ProjectID))
		if err != nil {
			return realtime.ErrInvalidRoom
		}
		_, err = s.chatSvc.SendMessage(ctx, projectID, session.UserID, data.Content)
		return err
	default:
		return newValidationError("type", "unknown_event", "unknown event")
	}
}

func decodeRoomEvent(raw json.RawMessage) (snowflake.ID, error) {
	var data roomEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0, invalidRequestError()
	}
	projectID, err := parseSnowflakeID(string(data.ProjectID))
	if err != nil {
		return 0, realtime.ErrInvalidRoom
	}
	return projectID, nil
}

func (s *Server) realtimePolicy() config.RealtimePolicy {
	defaults := config.DefaultRealtimePolicy(s.cfg)
	if s.policy == nil {
		return defaults
	}
	policy := s.policy.Get()
	if policy.HeartbeatSeconds <= 0 {
		policy.HeartbeatSeconds = defaults.HeartbeatSeconds
	}
	if policy.WriteWaitSeconds <= 0 {
		policy.WriteWaitSeconds = defaults.WriteWaitSeconds
	}
	if policy.MaxMessageBytes <= 0 {
		policy.MaxMessageBytes = defaults.MaxMessageBytes
	}
	return policy
}
