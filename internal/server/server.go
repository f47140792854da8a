package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/researchhub/internal/activation"
	"github.com/smallbiznis/researchhub/internal/authorization"
	"github.com/smallbiznis/researchhub/internal/chat"
	chatdomain "github.com/smallbiznis/researchhub/internal/chat/domain"
	"github.com/smallbiznis/researchhub/internal/collaboration"
	collabdomain "github.com/smallbiznis/researchhub/internal/collaboration/domain"
	"github.com/smallbiznis/researchhub/internal/config"
	"github.com/smallbiznis/researchhub/internal/membership"
	"github.com/smallbiznis/researchhub/internal/notification"
	notificationdomain "github.com/smallbiznis/researchhub/internal/notification/domain"
	"github.com/smallbiznis/researchhub/internal/observability"
	obslogger "github.com/smallbiznis/researchhub/internal/observability/logger"
	obstracing "github.com/smallbiznis/researchhub/internal/observability/tracing"
	"github.com/smallbiznis/researchhub/internal/project"
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
	"github.com/smallbiznis/researchhub/internal/ratelimit"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	ratelimit.Module,
	authorization.Module,
	realtime.Module,
	project.Module,
	membership.Module,
	notification.Module,
	activation.Module,
	collaboration.Module,
	chat.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	projectSvc       projectdomain.Service
	collaborationSvc collabdomain.Service
	chatSvc          chatdomain.Service
	notificationSvc  notificationdomain.Dispatcher
	realtime         *realtime.Manager
	policy           *config.RealtimeConfigHolder
	log              *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	ProjectSvc       projectdomain.Service
	CollaborationSvc collabdomain.Service
	ChatSvc          chatdomain.Service
	NotificationSvc  notificationdomain.Dispatcher
	Realtime         *realtime.Manager
	Policy           *config.RealtimeConfigHolder
	Log              *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		projectSvc:       p.ProjectSvc,
		collaborationSvc: p.CollaborationSvc,
		chatSvc:          p.ChatSvc,
		notificationSvc:  p.NotificationSvc,
		realtime:         p.Realtime,
		policy:           p.Policy,
		log:              p.Log.Named("http.server"),
	}

	svc.RegisterRoutes()
	return svc
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api", IdentityRequired())

	api.POST("/projects", s.CreateProject)
	api.GET("/projects/:id", s.GetProject)
	api.PATCH("/projects/:id/quorum", s.UpdateProjectQuorum)
	api.POST("/projects/:id/join-requests", s.SubmitJoinRequest)
	api.POST("/projects/:id/messages", s.SendMessage)
	api.GET("/projects/:id/messages", s.ListMessages)

	api.POST("/join-requests/:id/respond", s.RespondJoinRequest)

	api.GET("/notifications", s.ListNotifications)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)

	s.engine.GET("/ws", IdentityRequired(), s.ServeRealtime)
}
