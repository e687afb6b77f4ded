package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"media-dispatcher/internal/auth"
	"media-dispatcher/internal/monitor"
	"media-dispatcher/internal/ratelimit"
	"media-dispatcher/internal/registry"
	"media-dispatcher/pkg/models"
)

// Dispatcher takes a message to a terminal outcome
type Dispatcher interface {
	Handle(ctx context.Context, msg models.Message) models.Outcome
}

// PlatformLister describes the registered strategies
type PlatformLister interface {
	GetPlatformInfo() []registry.PlatformInfo
}

// Dependencies are the collaborators the server is built from
type Dependencies struct {
	Dispatcher Dispatcher
	Storage    models.Storage
	Platforms  PlatformLister
	Monitor    *monitor.Monitor
	Gatherer   prometheus.Gatherer
}

// Server represents the API server
type Server struct {
	config       *models.Config
	deps         Dependencies
	limits       Limits
	authService  *auth.Service
	rateLimitMgr *ratelimit.Manager
	httpServer   *http.Server
	cancel       context.CancelFunc
	logger       zerolog.Logger
}

// NewServer creates a new API server
func NewServer(cfg *models.Config, deps Dependencies) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	rateLimitMgr := ratelimit.NewManager(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		MaxConcurrent:     cfg.RateLimit.MaxConcurrent,
		WhitelistedIPs:    cfg.RateLimit.WhitelistedIPs,
	})

	return &Server{
		config:       cfg,
		deps:         deps,
		limits:       LimitsFromConfig(cfg),
		authService:  auth.NewService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenExpiry)*time.Hour),
		rateLimitMgr: rateLimitMgr,
		logger:       zerolog.New(os.Stdout).With().Timestamp().Str("component", "server").Logger(),
	}
}

// Router builds the HTTP handler
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(s.requestMiddleware())
	router.Use(s.corsMiddleware())

	s.setupRoutes(router)
	return router
}

// Start starts the API server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.rateLimitMgr.RateLimiter().RunCleanup(ctx, time.Hour)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	go func() {
		s.logger.Info().Str("address", s.httpServer.Addr).Msg("Starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("Error starting server")
		}
	}()

	return nil
}

// Stop stops the API server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.cancel != nil {
		s.cancel()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Error shutting down server")
			return err
		}
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

// Run runs the server with signal handling
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan

	return s.Stop()
}

// setupRoutes sets up the API routes
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.Use(s.rateLimitMgr.Middleware())

	v1 := api.Group("/v1")
	v1.GET("/platforms", s.listPlatforms)

	client := v1.Group("")
	admin := v1.Group("")
	if s.config.Auth.Enabled {
		authMiddleware := auth.NewMiddleware(s.authService)
		client.Use(authMiddleware.Required())
		admin.Use(authMiddleware.RoleRequired("admin"))
	}

	client.POST("/messages", s.handleMessage)
	client.POST("/users", s.registerUser)

	admin.GET("/users", s.listUsers)
	admin.GET("/users/:id", s.getUser)
	admin.GET("/stats", s.getStats)
	admin.GET("/requests", s.listRequests)
}

// requestMiddleware logs each request and records HTTP metrics
func (s *Server) requestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)

		if s.deps.Monitor != nil {
			s.deps.Monitor.RecordHTTPRequest(c.Request.Method, path, fmt.Sprintf("%d", status), duration)
		}

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// CORS middleware
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
