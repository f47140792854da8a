// Package activation promotes a project into its Active, chat enabled state
// once its collaborator quorum is reached.
package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/researchhub/internal/clock"
	membershipdomain "github.com/smallbiznis/researchhub/internal/membership/domain"
	notificationdomain "github.com/smallbiznis/researchhub/internal/notification/domain"
	"github.com/smallbiznis/researchhub/internal/observability/metrics"
	"github.com/smallbiznis/researchhub/internal/observability/tracing"
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
	"github.com/smallbiznis/researchhub/internal/quorum"
	"github.com/smallbiznis/researchhub/internal/ratelimit"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"github.com/smallbiznis/researchhub/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// activationTimeout bounds a single evaluation, lock wait included.
const activationTimeout = 30 * time.Second

const (
	skipBelowQuorum = "below_quorum"
	skipLostRace    = "lost_race"
)

var (
	ErrProjectNotFound = errors.New("project_not_found")

	errLostRace = errors.New("activation_lost_race")
)

// Result reports whether this call performed the activation.
type Result struct {
	Activated bool
	Room      *projectdomain.ChatRoom
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Projects projectdomain.Repository
	Members  membershipdomain.Repository
	Notifier notificationdomain.Dispatcher
	Realtime *realtime.Manager
	Locker   ratelimit.ProjectLocker
	GenID    *snowflake.Node
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
	Log      *zap.Logger
}

type Service struct {
	db       *gorm.DB
	projects projectdomain.Repository
	members  membershipdomain.Repository
	notifier notificationdomain.Dispatcher
	realtime *realtime.Manager
	locker   ratelimit.ProjectLocker
	genID    *snowflake.Node
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewService(p ServiceParam) *Service {
	locker := p.Locker
	if locker == nil {
		locker = ratelimit.NewLocalProjectLocker()
	}
	return &Service{
		db:       p.DB,
		projects: p.Projects,
		members:  p.Members,
		notifier: p.Notifier,
		realtime: p.Realtime,
		locker:   locker,
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
		log:      p.Log.Named("activation.service"),
	}
}

// OnMembershipApproved re-evaluates the project's quorum. Of any number of
// concurrent calls for the same project at most one returns Activated.
// Callers that lose the race get a zero Result and a nil error.
//
// The evaluation ignores cancellation of ctx: once an approval is committed a
// met quorum must be acted on even if the triggering request has gone away.
func (s *Service) OnMembershipApproved(ctx context.Context, projectID snowflake.ID) (_ Result, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activationTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "activation", "activation.on_membership_approved",
		attribute.String("project_id", projectID.String()),
	)
	defer func() { tracing.EndSpan(span, err) }()

	unlock, err := s.locker.Lock(ctx, projectID)
	if err != nil {
		return Result{}, fmt.Errorf("lock project %s: %w", projectID, err)
	}
	defer unlock()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	if project == nil {
		return Result{}, ErrProjectNotFound
	}

	approved, err := s.members.CountApproved(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	if !quorum.ShouldActivate(*project, approved) {
		s.metrics.RecordActivationSkipped(ctx, skipBelowQuorum)
		return Result{}, nil
	}

	now := s.clock.Now()
	room := projectdomain.ChatRoom{
		ID:        s.genID.Generate(),
		ProjectID: projectID,
		Name:      roomName(*project),
		CreatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.projects.WithTx(tx)

		activated, err := repo.ActivateIfPlanning(ctx, projectID, now)
		if err != nil {
			return err
		}
		if !activated {
			return errLostRace
		}

		if err := repo.CreateChatRoom(ctx, room); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errLostRace
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		s.metrics.RecordActivationSkipped(ctx, skipLostRace)
		s.log.Debug("activation already performed", zap.String("project_id", projectID.String()))
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	s.metrics.RecordRoomActivated(ctx)
	s.log.Info("chat room activated",
		zap.String("project_id", projectID.String()),
		zap.String("room_id", room.ID.String()),
		zap.Int64("approved", approved),
		zap.Int("required", project.RequiredCollaborators),
	)

	s.announce(ctx, *project, room)
	return Result{Activated: true, Room: &room}, nil
}

// announce runs after commit; failures are logged and do not undo the activation.
func (s *Service) announce(ctx context.Context, project projectdomain.Project, room projectdomain.ChatRoom) {
	data := map[string]any{
		"projectId": project.ID.String(),
		"roomId":    room.ID.String(),
		"room":      room.Name,
	}

	members, err := s.members.ListApprovedMembers(ctx, project.ID)
	if err != nil {
		s.log.Warn("list members for chat activation", zap.String("project_id", project.ID.String()), zap.Error(err))
	}
	message := fmt.Sprintf("The chat room for %q is now open", project.Title)
	for _, member := range members {
		if s.notifier == nil {
			break
		}
		if _, err := s.notifier.Notify(ctx, member.UserID, notificationdomain.TypeChatCreated, message, data); err != nil {
			s.log.Warn("notify chat activation",
				zap.String("project_id", project.ID.String()),
				zap.String("user_id", member.UserID.String()),
				zap.Error(err),
			)
		}
	}

	if s.realtime != nil {
		s.realtime.Publish(s.realtime.ProjectRoom(project.ID), realtime.EventRoomActivated, map[string]any{
			"projectId": project.ID.String(),
			"roomId":    room.ID.String(),
			"room":      room.Name,
			"status":    string(projectdomain.StatusActive),
		})
	}
}

// roomName is unique per project: titles may repeat, ids do not.
func roomName(project projectdomain.Project) string {
	if name := slug.Make(project.Title); name != "" {
		return name + "-" + project.ID.String()
	}
	return "project-" + project.ID.String()
}
