package chat

import (
	"github.com/smallbiznis/researchhub/internal/chat/repository"
	"github.com/smallbiznis/researchhub/internal/chat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chat.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
