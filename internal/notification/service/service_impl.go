package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/clock"
	"github.com/smallbiznis/researchhub/internal/notification/domain"
	"github.com/smallbiznis/researchhub/internal/observability/metrics"
	"github.com/smallbiznis/researchhub/internal/observability/tracing"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	outcomeDelivered = "delivered"
	outcomeOffline   = "offline"
	outcomeFailed    = "store_failed"
)

type ServiceParam struct {
	fx.In

	Repo      domain.Repository
	Publisher domain.Publisher
	GenID     *snowflake.Node
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
	Log       *zap.Logger
}

type service struct {
	repo      domain.Repository
	publisher domain.Publisher
	genID     *snowflake.Node
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewService(p ServiceParam) domain.Dispatcher {
	return &service{
		repo:      p.Repo,
		publisher: p.Publisher,
		genID:     p.GenID,
		clock:     p.Clock,
		metrics:   p.Metrics,
		log:       p.Log.Named("notification.service"),
	}
}

// Notify stores the notification and only then pushes it. A push that reaches
// no session is not an error; the row stays available to ListForUser.
func (s *service) Notify(ctx context.Context, userID snowflake.ID, notificationType domain.Type, message string, data map[string]any) (_ *domain.Notification, err error) {
	ctx, span := tracing.StartSpan(ctx, "notification", "notification.notify",
		attribute.String("event_type", string(notificationType)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if strings.TrimSpace(string(notificationType)) == "" {
		return nil, domain.ErrInvalidType
	}
	if data == nil {
		data = map[string]any{}
	}

	notification := &domain.Notification{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Type:      notificationType,
		Message:   message,
		Data:      datatypes.JSONMap(data),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, notification); err != nil {
		s.metrics.RecordNotification(ctx, string(notificationType), outcomeFailed)
		return nil, err
	}

	delivered := 0
	if s.publisher != nil {
		delivered = s.publisher.PublishToUser(userID, realtime.EventNotification, notification)
	}

	outcome := outcomeDelivered
	if delivered == 0 {
		outcome = outcomeOffline
	}
	s.metrics.RecordNotification(ctx, string(notificationType), outcome)
	s.log.Debug("notification dispatched",
		zap.String("notification_id", notification.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("type", string(notificationType)),
		zap.Int("sessions", delivered),
	)
	return notification, nil
}

func (s *service) ListForUser(ctx context.Context, userID snowflake.ID, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *service) MarkRead(ctx context.Context, userID, id snowflake.ID) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	ok, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}
