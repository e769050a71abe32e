package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/config"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/handler"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/middleware"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/ratelimit"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/repository"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/service"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/storage"
)

type Server struct {
	router           *gin.Engine
	config           *config.Config
	log              *zap.Logger
	redis            *storage.RedisClient
	postgres         *storage.Postgres
	limiter          *ratelimit.FailOpenLimiter
	presets          map[string]ratelimit.Config
	apiKeyService    *service.APIKeyService
	apiKeyHandler    *handler.APIKeyHandler
	rateLimitHandler *handler.RateLimitHandler
	httpServer       *http.Server
}

func New(cfg *config.Config, log *zap.Logger, redis *storage.RedisClient, postgres *storage.Postgres, engine *ratelimit.Engine) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	presets, err := buildPresets(cfg)
	if err != nil {
		return nil, err
	}

	router := gin.New()

	apiKeyRepo := repository.NewAPIKeyRepository(postgres)
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, redis)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeyService, presetNames(presets))
	rateLimitHandler := handler.NewRateLimitHandler(engine, presets)

	s := &Server{
		router:           router,
		config:           cfg,
		log:              log,
		redis:            redis,
		postgres:         postgres,
		limiter:          ratelimit.NewFailOpen(engine, log),
		presets:          presets,
		apiKeyService:    apiKeyService,
		apiKeyHandler:    apiKeyHandler,
		rateLimitHandler: rateLimitHandler,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Preset names the route groups are wired to. A config that omits one of
// these would hand the middleware a zero-value limit, so their absence is a
// deployment bug caught before any request is served.
var routeDefaultPresets = []string{"strict", "relaxed"}

// buildPresets converts configured presets into engine configs. Invalid
// presets abort startup; a bad limit is a deployment bug, not a runtime
// condition.
func buildPresets(cfg *config.Config) (map[string]ratelimit.Config, error) {
	presets := make(map[string]ratelimit.Config, len(cfg.RateLimit.Presets))
	for name, preset := range cfg.RateLimit.Presets {
		rlCfg, err := ratelimit.NewConfig(preset.Limit, preset.Window(), name)
		if err != nil {
			return nil, fmt.Errorf("rate limit preset %q: %w", name, err)
		}
		presets[name] = rlCfg
	}
	for _, name := range routeDefaultPresets {
		if _, ok := presets[name]; !ok {
			return nil, fmt.Errorf("rate limit preset %q is required by the router but not configured", name)
		}
	}
	return presets, nil
}

func presetNames(presets map[string]ratelimit.Config) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(middleware.APIKeyValidator(s.apiKeyService))
	s.router.Use(middleware.Identify(s.config.Auth.JWTSecret))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api")
	api.Use(middleware.RateLimit(s.limiter, s.presets, "strict", s.log))
	{
		api.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong"})
		})
	}

	admin := s.router.Group("/admin")
	admin.Use(middleware.RateLimit(s.limiter, s.presets, "relaxed", s.log))
	{
		admin.GET("/status", s.adminStatus)
		admin.POST("/keys", s.apiKeyHandler.Create)
		admin.GET("/keys", s.apiKeyHandler.List)
		admin.GET("/keys/:id", s.apiKeyHandler.Get)
		admin.PATCH("/keys/:id", s.apiKeyHandler.Update)
		admin.DELETE("/keys/:id", s.apiKeyHandler.Delete)
		admin.GET("/ratelimit/:preset/status", s.rateLimitHandler.Status)
		admin.POST("/ratelimit/:preset/reset", s.rateLimitHandler.Reset)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true
	if err := s.redis.Ping(c.Request.Context()); err != nil {
		redisHealthy = false
		s.log.Warn("redis health check failed", zap.Error(err))
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		s.log.Warn("database health check failed", zap.Error(err))
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "rate-limit-gateway",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":    redisHealthy,
			"database": dbHealthy,
		},
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	ctx := c.Request.Context()
	keys, _ := s.apiKeyService.List(ctx)
	c.JSON(http.StatusOK, gin.H{
		"gateway":   "running",
		"backend":   s.config.RateLimit.Backend,
		"presets":   len(s.presets),
		"api_keys":  len(keys),
		"uptime":    time.Since(startTime).Seconds(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.log.Info("starting gateway",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment),
		zap.String("rate_limit_backend", s.config.RateLimit.Backend),
	)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
