package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/researchhub/internal/activation"
	"github.com/smallbiznis/researchhub/internal/authorization"
	chatrepository "github.com/smallbiznis/researchhub/internal/chat/repository"
	chatservice "github.com/smallbiznis/researchhub/internal/chat/service"
	"github.com/smallbiznis/researchhub/internal/clock"
	collabservice "github.com/smallbiznis/researchhub/internal/collaboration/service"
	"github.com/smallbiznis/researchhub/internal/config"
	membershiprepository "github.com/smallbiznis/researchhub/internal/membership/repository"
	"github.com/smallbiznis/researchhub/internal/migration"
	notificationrepository "github.com/smallbiznis/researchhub/internal/notification/repository"
	notificationservice "github.com/smallbiznis/researchhub/internal/notification/service"
	"github.com/smallbiznis/researchhub/internal/observability"
	projectrepository "github.com/smallbiznis/researchhub/internal/project/repository"
	projectservice "github.com/smallbiznis/researchhub/internal/project/service"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"github.com/smallbiznis/researchhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	engine  *gin.Engine
	manager *realtime.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, migration.Migrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &clock.SystemClock{}
	log := zaptest.NewLogger(t)
	cfg := config.Config{Realtime: config.RealtimeConfig{AllowedOrigins: []string{"http://portal.test"}}}

	policy := config.DefaultRealtimePolicy(cfg)
	holder := config.NewStaticRealtimeConfigHolder(policy)
	manager := realtime.NewManager(realtime.ManagerParam{Config: cfg, Policy: holder, Clock: clk, Log: log})

	projects := projectrepository.NewRepository(conn)
	members := membershiprepository.NewRepository(conn, node, clk)
	notifier := notificationservice.NewService(notificationservice.ServiceParam{
		Repo:      notificationrepository.NewRepository(conn),
		Publisher: manager,
		GenID:     node,
		Clock:     clk,
		Log:       log,
	})
	activator := activation.NewService(activation.ServiceParam{
		DB:       conn,
		Projects: projects,
		Members:  members,
		Notifier: notifier,
		Realtime: manager,
		GenID:    node,
		Clock:    clk,
		Log:      log,
	})

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{DB: conn, Log: log, Enforcer: enforcer})

	engine := NewEngine(observability.Config{})
	NewServer(ServerParams{
		Gin: engine,
		Cfg: cfg,
		ProjectSvc: projectservice.NewService(projectservice.ServiceParam{
			Repo:  projects,
			Authz: authz,
			GenID: node,
			Clock: clk,
			Log:   log,
		}),
		CollaborationSvc: collabservice.NewService(collabservice.ServiceParam{
			DB:         conn,
			Members:    members,
			Projects:   projects,
			Authz:      authz,
			Activation: activator,
			Notifier:   notifier,
			Realtime:   manager,
			Clock:      clk,
			Log:        log,
		}),
		ChatSvc: chatservice.NewService(chatservice.ServiceParam{
			Repo:     chatrepository.NewRepository(conn),
			Projects: projects,
			Authz:    authz,
			Realtime: manager,
			GenID:    node,
			Clock:    clk,
			Log:      log,
		}),
		NotificationSvc: notifier,
		Realtime:        manager,
		Policy:          holder,
		Log:             log,
	})

	return &testServer{engine: engine, manager: manager}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func (s *testServer) createProject(t *testing.T, ownerID string, required int) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/projects", ownerID, gin.H{"title": "Arctic Ice Cores", "required_collaborators": required})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData(t, rec)["id"].(string)
}

func (s *testServer) submit(t *testing.T, projectID, userID string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/projects/"+projectID+"/join-requests", userID, gin.H{"message": "count me in"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData(t, rec)["id"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresIdentity(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/notifications", "not-a-number", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJoinRequestLifecycleActivatesChat(t *testing.T) {
	s := newTestServer(t)
	projectID := s.createProject(t, "1", 1)
	requestID := s.submit(t, projectID, "2")

	rec := s.do(t, http.MethodPost, "/api/join-requests/"+requestID+"/respond", "1", gin.H{"decision": "approve", "response_message": "welcome"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, true, data["chat_activated"])
	assert.Equal(t, "approved", data["request"].(map[string]any)["status"])

	rec = s.do(t, http.MethodGet, "/api/projects/"+projectID, "2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, "Active", data["project"].(map[string]any)["status"])
	assert.Equal(t, "arctic-ice-cores-"+projectID, data["chat_room"].(map[string]any)["name"])

	rec = s.do(t, http.MethodPost, "/api/projects/"+projectID+"/messages", "2", gin.H{"content": "hello team"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/projects/"+projectID+"/messages?limit=10", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Data, 1)
	assert.Equal(t, "hello team", history.Data[0]["content"])

	rec = s.do(t, http.MethodPatch, "/api/projects/"+projectID+"/quorum", "1", gin.H{"required_collaborators": 4})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJoinRequestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	projectID := s.createProject(t, "1", 3)
	requestID := s.submit(t, projectID, "2")

	rec := s.do(t, http.MethodPost, "/api/projects/"+projectID+"/join-requests", "2", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "pending_request_exists", decodeError(t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/projects/"+projectID+"/join-requests", "1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "self_request", decodeError(t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/projects/123456/join-requests", "2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/join-requests/"+requestID+"/respond", "3", gin.H{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/join-requests/"+requestID+"/respond", "1", gin.H{"decision": "later"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "decision", decodeError(t, rec).Errors[0].Field)

	rec = s.do(t, http.MethodPost, "/api/join-requests/987654/respond", "1", gin.H{"decision": "approve"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/join-requests/"+requestID+"/respond", "1", gin.H{"decision": "reject"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/join-requests/"+requestID+"/respond", "1", gin.H{"decision": "approve"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decodeError(t, rec).Type)

	rec = s.do(t, http.MethodPost, "/api/projects/"+projectID+"/messages", "1", gin.H{"content": "anyone?"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestNotificationsReadPath(t *testing.T) {
	s := newTestServer(t)
	projectID := s.createProject(t, "1", 2)
	s.submit(t, projectID, "2")

	rec := s.do(t, http.MethodGet, "/api/notifications?unread=true", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "JOIN_REQUEST", list.Data[0]["type"])
	notificationID := list.Data[0]["id"].(string)

	rec = s.do(t, http.MethodPost, "/api/notifications/"+notificationID+"/read", "2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/notifications/"+notificationID+"/read", "1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/notifications?unread=true", "1", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Data)
}

func dialRealtime(t *testing.T, srv *httptest.Server, userID, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	header.Set(HeaderUserID, userID)
	if origin != "" {
		header.Set("Origin", origin)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func TestRealtimeChatFlow(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	projectID := s.createProject(t, "1", 1)
	requestID := s.submit(t, projectID, "2")
	rec := s.do(t, http.MethodPost, "/api/join-requests/"+requestID+"/respond", "1", gin.H{"decision": "approve"})
	require.Equal(t, http.StatusOK, rec.Code)

	owner, _, err := dialRealtime(t, srv, "1", "http://portal.test")
	require.NoError(t, err)
	defer owner.Close()

	require.NoError(t, owner.WriteJSON(gin.H{"type": "joinChatRoom", "data": gin.H{"projectId": projectID}}))
	room := "project-" + projectID
	require.Eventually(t, func() bool { return s.manager.RoomSize(room) == 1 }, 2*time.Second, 10*time.Millisecond)

	rec = s.do(t, http.MethodPost, "/api/projects/"+projectID+"/messages", "2", gin.H{"content": "samples shipped"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, owner.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, owner.ReadJSON(&ev))
	assert.Equal(t, realtime.EventNewMessage, ev.Type)
	assert.Equal(t, "samples shipped", ev.Data["content"])
}

func TestRealtimeRejectsStrangersAndOrigins(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	_, resp, err := dialRealtime(t, srv, "9", "http://evil.test")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	projectID := s.createProject(t, "1", 1)
	stranger, _, err := dialRealtime(t, srv, "9", "")
	require.NoError(t, err)
	defer stranger.Close()

	require.NoError(t, stranger.WriteJSON(gin.H{"type": "joinChatRoom", "data": gin.H{"projectId": projectID}}))
	require.NoError(t, stranger.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, stranger.ReadJSON(&ev))
	assert.Equal(t, realtime.EventError, ev.Type)
	assert.Equal(t, "forbidden", ev.Data["type"])
	assert.Equal(t, "joinChatRoom", ev.Data["event"])
	assert.Equal(t, 0, s.manager.RoomSize("project-"+projectID))
}
