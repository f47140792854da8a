package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/authorization"
	"github.com/smallbiznis/researchhub/internal/clock"
	"github.com/smallbiznis/researchhub/internal/project/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Repo  domain.Repository
	Authz authorization.Service
	GenID *snowflake.Node
	Clock clock.Clock
	Log   *zap.Logger
}

type service struct {
	repo  domain.Repository
	authz authorization.Service
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		repo:  p.Repo,
		authz: p.Authz,
		genID: p.GenID,
		clock: p.Clock,
		log:   p.Log.Named("project.service"),
	}
}

func (s *service) Create(ctx context.Context, ownerID snowflake.ID, req domain.CreateProjectRequest) (*domain.Project, error) {
	if ownerID == 0 {
		return nil, domain.ErrInvalidOwner
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}
	if req.RequiredCollaborators < 0 {
		return nil, domain.ErrInvalidRequiredCollaborators
	}

	now := s.clock.Now()
	project := domain.Project{
		ID:                    s.genID.Generate(),
		OwnerID:               ownerID,
		Title:                 title,
		Description:           strings.TrimSpace(req.Description),
		RequiredCollaborators: req.RequiredCollaborators,
		Status:                domain.StatusPlanning,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}

	s.log.Info("project created",
		zap.String("project_id", project.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.Int("required_collaborators", project.RequiredCollaborators),
	)
	return &project, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domain.ErrNotFound
	}
	return project, nil
}

// UpdateRequiredCollaborators changes the quorum of a Planning project. The new
// value is not evaluated until the next approval.
func (s *service) UpdateRequiredCollaborators(ctx context.Context, ownerID, projectID snowflake.ID, required int) (*domain.Project, error) {
	if required < 0 {
		return nil, domain.ErrInvalidRequiredCollaborators
	}

	project, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, ownerID, projectID, authorization.ObjectProject, authorization.ActionProjectUpdateQuorum); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return nil, domain.ErrForbidden
		}
		return nil, err
	}
	if project.Status != domain.StatusPlanning {
		return nil, domain.ErrQuorumLocked
	}

	updated, err := s.repo.UpdateRequiredCollaborators(ctx, projectID, required, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrQuorumLocked
	}
	return s.Get(ctx, projectID)
}

func (s *service) ChatRoom(ctx context.Context, projectID snowflake.ID) (*domain.ChatRoom, error) {
	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, err
	}
	room, err := s.repo.GetChatRoom(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrNotFound
	}
	return room, nil
}
