package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/directory/internal/apikey"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"github.com/smallbiznis/directory/internal/authorization"
	"github.com/smallbiznis/directory/internal/config"
	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
	"github.com/smallbiznis/directory/internal/observability"
	obsmiddleware "github.com/smallbiznis/directory/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	obstracing "github.com/smallbiznis/directory/internal/observability/tracing"
	"github.com/smallbiznis/directory/internal/providers"
	"github.com/smallbiznis/directory/internal/providers/pdf"
	"github.com/smallbiznis/directory/internal/ratelimit"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the HTTP surface. Domain services (scarcity, waitlist,
// inbox) and the Redis client are provided by the entrypoint so the
// scheduler can share them.
var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	apikey.Module,
	providers.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
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
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	scarcitySvc   scarcitydomain.Service
	waitlistSvc   waitlistdomain.Service
	inboxSvc      inboxdomain.Service
	apiKeySvc     apikeydomain.Service
	authzSvc      authorization.Service
	reports       pdf.Provider
	publicLimiter *ratelimit.PublicLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	ScarcitySvc scarcitydomain.Service
	WaitlistSvc waitlistdomain.Service
	InboxSvc    inboxdomain.Service
	APIKeySvc   apikeydomain.Service
	AuthzSvc    authorization.Service
	Reports     pdf.Provider

	PublicLimiter *ratelimit.PublicLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           log.Named("http.server"),
		scarcitySvc:   p.ScarcitySvc,
		waitlistSvc:   p.WaitlistSvc,
		inboxSvc:      p.InboxSvc,
		apiKeySvc:     p.APIKeySvc,
		authzSvc:      p.AuthzSvc,
		reports:       p.Reports,
		publicLimiter: p.PublicLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerPublicRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.PublicRateLimit())

	// -------- Scarcity --------
	api.GET("/scarcity", s.GetScarcity)
	api.GET("/scarcity/metrics", s.GetScarcityMetrics)

	// -------- Waitlist --------
	api.POST("/waitlist", s.JoinWaitlist)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.APIKeyRequired())

	// -------- Operations Inbox --------
	admin.GET("/inbox", s.requireCapability(authorization.ObjectInbox, authorization.ActionInboxView), s.GetInbox)
	admin.GET("/inbox/export.pdf", s.requireCapability(authorization.ObjectInbox, authorization.ActionInboxExport), s.ExportInboxPDF)
	// Capability depends on the body; checked in the handler.
	admin.POST("/inbox-action", s.ApplyInboxAction)

	// -------- Waitlist --------
	admin.GET("/waitlist", s.requireCapability(authorization.ObjectWaitlist, authorization.ActionWaitlistView), s.ListWaitlist)

	// -------- API Keys --------
	admin.GET("/api-keys", s.requireCapability(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	admin.POST("/api-keys", s.requireCapability(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	admin.POST("/api-keys/:key_id/revoke", s.requireCapability(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
