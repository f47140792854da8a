package realtime

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("realtime",
	fx.Provide(NewManager),
	fx.Invoke(registerShutdown),
)

func registerShutdown(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return m.Shutdown(ctx)
		},
	})
}
