package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/database"
	"papertrade/internal/monitoring"
	"papertrade/internal/notify"
	"papertrade/internal/paper"
)

// Server is the HTTP API server
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server
	db         *database.DB
	log        *logrus.Entry
}

// NewServer creates a fully routed API server
func NewServer(
	cfg *config.Config,
	logger *logrus.Logger,
	db *database.DB,
	jwtManager *auth.JWTManager,
	processor *paper.Processor,
	hub notify.Bus,
	metrics *monitoring.Metrics,
) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(cfg.CORS))
	router.Use(metrics.MetricsMiddleware())
	if cfg.RateLimit.Enabled {
		router.Use(rateLimitMiddleware(cfg.RateLimit))
	}

	s := &Server{
		cfg:    cfg,
		router: router,
		db:     db,
		log:    logger.WithField("component", "api"),
	}

	authHandler := NewAuthHandler(db, jwtManager, cfg.JWT.RefreshDuration, logger)
	accountHandler := NewAccountHandler(processor, cfg.Paper, logger)
	tradingHandler := NewTradingHandler(processor, accountHandler, logger)
	wsHandler := NewWSHandler(hub, accountHandler, metrics, logger)

	router.GET("/health", s.healthCheck)
	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.PrometheusPath, gin.WrapH(metrics.Handler()))
	}
	if cfg.App.Env == "development" {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := router.Group("/api/v1")
	{
		// Standalone simulation mode runs without a database; there are no
		// user records to register or log in, so it issues tokens for
		// ephemeral local identities instead.
		if db != nil {
			authGroup := v1.Group("/auth")
			{
				authGroup.POST("/register", authHandler.Register)
				authGroup.POST("/login", authHandler.Login)
				authGroup.POST("/refresh", authHandler.Refresh)
			}
		} else {
			v1.POST("/auth/token", LocalToken(jwtManager))
		}

		protected := v1.Group("")
		protected.Use(jwtManager.AuthMiddleware())
		{
			protected.POST("/accounts", accountHandler.Create)
			protected.GET("/accounts", accountHandler.List)
			protected.GET("/accounts/:id", accountHandler.Get)
			protected.DELETE("/accounts/:id", accountHandler.Delete)
			protected.GET("/accounts/:id/orders", tradingHandler.ListOrders)
			protected.GET("/accounts/:id/positions", tradingHandler.ListPositions)
			protected.GET("/accounts/:id/trades", tradingHandler.ListTrades)
			protected.GET("/accounts/:id/stream", wsHandler.Stream)

			protected.POST("/orders", tradingHandler.SubmitOrder)
			protected.GET("/orders/:id", tradingHandler.GetOrder)
			protected.POST("/orders/:id/cancel", tradingHandler.CancelOrder)
		}
	}

	return s
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving HTTP requests and blocks until the server stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
	}

	s.log.WithField("addr", addr).Info("API server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck handles GET /health
func (s *Server) healthCheck(c *gin.Context) {
	status := gin.H{
		"status":  "ok",
		"app":     s.cfg.App.Name,
		"version": s.cfg.App.Version,
		"time":    time.Now().UTC(),
	}

	if s.db != nil {
		if err := s.db.HealthCheck(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}

	c.JSON(http.StatusOK, status)
}

// requestLogger returns a gin middleware logging each request via logrus
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("Request failed")
		} else {
			entry.Debug("Request handled")
		}
	}
}
