package project

import (
	"github.com/smallbiznis/researchhub/internal/project/repository"
	"github.com/smallbiznis/researchhub/internal/project/service"
	"go.uber.org/fx"
)

var Module = fx.Module("project.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
