package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/activation"
	"github.com/smallbiznis/researchhub/internal/authorization"
	"github.com/smallbiznis/researchhub/internal/clock"
	"github.com/smallbiznis/researchhub/internal/collaboration/domain"
	membershipdomain "github.com/smallbiznis/researchhub/internal/membership/domain"
	notificationdomain "github.com/smallbiznis/researchhub/internal/notification/domain"
	"github.com/smallbiznis/researchhub/internal/observability/logger"
	"github.com/smallbiznis/researchhub/internal/observability/metrics"
	"github.com/smallbiznis/researchhub/internal/observability/tracing"
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
	"github.com/smallbiznis/researchhub/internal/ratelimit"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// postCommitTimeout bounds activation and announcements once a decision has
// been committed; they no longer depend on the caller staying connected.
const postCommitTimeout = 30 * time.Second

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Members    membershipdomain.Repository
	Projects   projectdomain.Repository
	Authz      authorization.Service
	Activation *activation.Service
	Notifier   notificationdomain.Dispatcher
	Realtime   *realtime.Manager
	Limiter    *ratelimit.SubmissionLimiter `optional:"true"`
	Clock      clock.Clock
	Metrics    *metrics.Metrics `optional:"true"`
	Log        *zap.Logger
}

type service struct {
	db         *gorm.DB
	members    membershipdomain.Repository
	projects   projectdomain.Repository
	authz      authorization.Service
	activation *activation.Service
	notifier   notificationdomain.Dispatcher
	realtime   *realtime.Manager
	limiter    *ratelimit.SubmissionLimiter
	clock      clock.Clock
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:         p.DB,
		members:    p.Members,
		projects:   p.Projects,
		authz:      p.Authz,
		activation: p.Activation,
		notifier:   p.Notifier,
		realtime:   p.Realtime,
		limiter:    p.Limiter,
		clock:      p.Clock,
		metrics:    p.Metrics,
		log:        p.Log.Named("collaboration.service"),
	}
}

func (s *service) SubmitRequest(ctx context.Context, projectID, requesterID snowflake.ID, message string) (_ *membershipdomain.JoinRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "collaboration", "collaboration.submit_request",
		attribute.String("project_id", projectID.String()),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if requesterID == 0 {
		return nil, domain.ErrInvalidRequester
	}
	if err := s.allowSubmit(ctx, requesterID); err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domain.ErrProjectNotFound
	}
	if project.OwnerID == requesterID {
		return nil, domain.ErrSelfRequest
	}
	if project.Status == projectdomain.StatusCompleted {
		return nil, domain.ErrProjectClosed
	}

	member, err := s.members.HasApprovedMembership(ctx, projectID, requesterID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, domain.ErrAlreadyMember
	}

	pending, err := s.members.FindPendingRequest(ctx, projectID, requesterID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, domain.ErrPendingRequestExists
	}

	req, err := s.members.CreateJoinRequest(ctx, projectID, requesterID, strings.TrimSpace(message))
	if errors.Is(err, membershipdomain.ErrDuplicatePendingRequest) {
		return nil, domain.ErrPendingRequestExists
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRequestSubmitted(ctx)
	logger.WithContext(ctx, s.log).Info("join request submitted",
		zap.String("request_id", req.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("requester_id", requesterID.String()),
	)

	s.notify(ctx, project.OwnerID, notificationdomain.TypeJoinRequest,
		fmt.Sprintf("New request to join %q", project.Title),
		map[string]any{
			"projectId":   projectID.String(),
			"requestId":   req.ID.String(),
			"requesterId": requesterID.String(),
		},
	)
	return req, nil
}

func (s *service) RespondToRequest(ctx context.Context, in domain.RespondRequest) (_ *domain.RespondResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "collaboration", "collaboration.respond_to_request",
		attribute.String("request_id", in.RequestID.String()),
		attribute.String("decision", string(in.Decision)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	decision, err := domain.ParseDecision(string(in.Decision))
	if err != nil {
		return nil, err
	}

	req, err := s.members.GetJoinRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrRequestNotFound
	}
	if req.Status.IsTerminal() {
		return nil, domain.ErrRequestResolved
	}

	project, err := s.projects.GetByID(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domain.ErrProjectNotFound
	}
	if err := s.authz.Authorize(ctx, in.ResponderID, project.ID, authorization.ObjectJoinRequest, authorization.ActionJoinRequestRespond); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return nil, domain.ErrNotProjectOwner
		}
		return nil, err
	}

	now := s.clock.Now()
	responseMessage := strings.TrimSpace(in.ResponseMessage)
	var membership *membershipdomain.Membership

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.members.WithTx(tx)

		moved, err := repo.TransitionJoinRequest(ctx, req.ID, decision.Status(), responseMessage, in.ResponderID, now)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrRequestResolved
		}

		if decision != domain.DecisionApprove {
			return nil
		}
		membership, err = repo.CreateMembership(ctx, req.ProjectID, req.RequesterID, membershipdomain.RoleCollaborator)
		if errors.Is(err, membershipdomain.ErrDuplicateMembership) {
			return domain.ErrAlreadyMember
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	req.Status = decision.Status()
	req.ResponseMessage = responseMessage
	req.RespondedAt = &now
	req.RespondedBy = &in.ResponderID
	req.PendingKey = nil
	req.UpdatedAt = now

	s.metrics.RecordRequestResponded(ctx, string(decision))
	log := logger.WithContext(ctx, s.log)
	log.Info("join request responded",
		zap.String("request_id", req.ID.String()),
		zap.String("project_id", req.ProjectID.String()),
		zap.String("decision", string(decision)),
	)

	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
	defer cancel()

	result := &domain.RespondResult{Request: req, Membership: membership}
	if decision == domain.DecisionApprove && s.activation != nil {
		activated, err := s.activation.OnMembershipApproved(postCtx, req.ProjectID)
		if err != nil {
			log.Warn("chat activation check failed",
				zap.String("project_id", req.ProjectID.String()),
				zap.Error(err),
			)
		}
		result.ChatActivated = activated.Activated
	}

	s.announce(postCtx, *project, *req, decision)
	return result, nil
}

func (s *service) allowSubmit(ctx context.Context, requesterID snowflake.ID) error {
	if !s.limiter.Enabled() {
		return nil
	}
	res, err := s.limiter.Allow(ctx, requesterID)
	if err != nil {
		s.log.Warn("join request rate limit unavailable", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return domain.ErrRateLimited
	}
	return nil
}

// announce tells the requester about the outcome, durably and live.
func (s *service) announce(ctx context.Context, project projectdomain.Project, req membershipdomain.JoinRequest, decision domain.Decision) {
	data := map[string]any{
		"projectId":       project.ID.String(),
		"requestId":       req.ID.String(),
		"status":          string(req.Status),
		"responseMessage": req.ResponseMessage,
	}

	notificationType := notificationdomain.TypeRequestRejected
	message := fmt.Sprintf("Your request to join %q was declined", project.Title)
	if decision == domain.DecisionApprove {
		notificationType = notificationdomain.TypeRequestApproved
		message = fmt.Sprintf("Your request to join %q was approved", project.Title)
	}
	s.notify(ctx, req.RequesterID, notificationType, message, data)

	if s.realtime != nil {
		s.realtime.PublishToUser(req.RequesterID, realtime.EventRequestResponded, data)
	}
}

func (s *service) notify(ctx context.Context, userID snowflake.ID, notificationType notificationdomain.Type, message string, data map[string]any) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, userID, notificationType, message, data); err != nil {
		s.log.Warn("notification dispatch failed",
			zap.String("user_id", userID.String()),
			zap.String("type", string(notificationType)),
			zap.Error(err),
		)
	}
}
