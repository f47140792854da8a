package collaboration

import (
	"github.com/smallbiznis/researchhub/internal/collaboration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("collaboration.service",
	fx.Provide(service.NewService),
)
