package notification

import (
	"github.com/smallbiznis/researchhub/internal/notification/domain"
	"github.com/smallbiznis/researchhub/internal/notification/repository"
	"github.com/smallbiznis/researchhub/internal/notification/service"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(m *realtime.Manager) domain.Publisher { return m }),
	fx.Provide(service.NewService),
)
