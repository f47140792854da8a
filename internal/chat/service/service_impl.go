package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/authorization"
	"github.com/smallbiznis/researchhub/internal/chat/domain"
	"github.com/smallbiznis/researchhub/internal/clock"
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type ServiceParam struct {
	fx.In

	Repo     domain.Repository
	Projects projectdomain.Repository
	Authz    authorization.Service
	Realtime *realtime.Manager
	GenID    *snowflake.Node
	Clock    clock.Clock
	Log      *zap.Logger
}

type service struct {
	repo     domain.Repository
	projects projectdomain.Repository
	authz    authorization.Service
	realtime *realtime.Manager
	genID    *snowflake.Node
	clock    clock.Clock
	log      *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		repo:     p.Repo,
		projects: p.Projects,
		authz:    p.Authz,
		realtime: p.Realtime,
		genID:    p.GenID,
		clock:    p.Clock,
		log:      p.Log.Named("chat.service"),
	}
}

func (s *service) SendMessage(ctx context.Context, projectID, senderID snowflake.ID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return nil, domain.ErrMessageTooLong
	}

	room, err := s.activeRoom(ctx, projectID, senderID, authorization.ActionChatSend)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:        s.genID.Generate(),
		ProjectID: projectID,
		RoomID:    room.ID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	if s.realtime != nil {
		delivered := s.realtime.Publish(s.realtime.ProjectRoom(projectID), realtime.EventNewMessage, msg)
		s.log.Debug("chat message published",
			zap.String("project_id", projectID.String()),
			zap.String("message_id", msg.ID.String()),
			zap.Int("sessions", delivered),
		)
	}
	return msg, nil
}

func (s *service) ListMessages(ctx context.Context, projectID, userID snowflake.ID, limit int) ([]*domain.Message, error) {
	if _, err := s.activeRoom(ctx, projectID, userID, authorization.ActionChatRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.ListRecent(ctx, projectID, limit)
}

func (s *service) Authorize(ctx context.Context, projectID, userID snowflake.ID) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return domain.ErrProjectNotFound
	}
	return s.checkParticipant(ctx, *project, userID, authorization.ActionChatJoin)
}

func (s *service) activeRoom(ctx context.Context, projectID, userID snowflake.ID, action string) (*projectdomain.ChatRoom, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domain.ErrProjectNotFound
	}
	if err := s.checkParticipant(ctx, *project, userID, action); err != nil {
		return nil, err
	}
	if project.Status != projectdomain.StatusActive {
		return nil, domain.ErrChatNotActive
	}

	room, err := s.projects.GetChatRoom(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrChatNotActive
	}
	return room, nil
}

func (s *service) checkParticipant(ctx context.Context, project projectdomain.Project, userID snowflake.ID, action string) error {
	err := s.authz.Authorize(ctx, userID, project.ID, authorization.ObjectChat, action)
	if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
		return domain.ErrForbidden
	}
	return err
}
