// Package api exposes the matchmaking operations over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Aidin1998/teammatch/common/apiutil"
	"github.com/Aidin1998/teammatch/common/auth"
	"github.com/Aidin1998/teammatch/internal/matching"
	"github.com/Aidin1998/teammatch/internal/ws"
	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Options configures the server's middleware and health probes
type Options struct {
	AllowedOrigins []string
	Auth           auth.AuthorizationConfig
	Checks         map[string]HealthCheck
}

// Server represents the API server
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	matches   matching.MatchService
	hub       *ws.Hub
	validator *apiutil.Validator
	checks    map[string]HealthCheck
}

// NewServer creates a new API server. hub may be nil when websocket delivery is disabled.
func NewServer(logger *zap.Logger, opts Options, matches matching.MatchService, hub *ws.Hub) *Server {
	server := &Server{
		logger:    logger,
		matches:   matches,
		hub:       hub,
		validator: apiutil.NewValidator(),
		checks:    opts.Checks,
	}

	router := gin.New()

	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("teammatch-api"))
	router.Use(apiutil.MetricsMiddleware())

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !wildcard,
		MaxAge:           12 * time.Hour,
	}))

	server.router = router
	server.registerRoutes(auth.Middleware(logger, opts.Auth))
	return server
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes(authenticated gin.HandlerFunc) {
	public := s.router.Group("/api/v1")
	{
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
		public.GET("/health", s.healthCheck)
	}

	protected := s.router.Group("/api/v1", authenticated)
	{
		matchings := protected.Group("/matchings")
		{
			matchings.POST("", s.createMatch)
			matchings.GET("", s.listMatches)
			matchings.GET("/state/:state", s.listByState)
			matchings.GET("/me/next", s.nextMatch)
			matchings.GET("/:id", s.getMatch)

			matchings.POST("/:id/challenges", s.applyChallenge)
			matchings.GET("/:id/challenges", s.getChallengers)
			matchings.DELETE("/:id/challenges/:teamId", s.withdrawChallenge)
			matchings.PATCH("/:id/accept/:teamId", s.acceptChallenge)
			matchings.DELETE("/:id/decline/:teamId", s.declineChallenge)
			matchings.PATCH("/:id/cancel", s.cancelMatch)
			matchings.PATCH("/:id/result", s.registerResult)

			matchings.POST("/auto", s.requestAutoMatch)
			matchings.POST("/auto/:id/respond", s.respondAutoMatch)
			matchings.GET("/auto/:id/status", s.autoMatchStatus)
		}

		protected.GET("/teams/:teamId/matchings", s.listTeamMatches)

		if s.hub != nil {
			protected.GET("/ws", s.serveWS)
		}
	}
}

// healthCheck runs every dependency probe; any failure turns the response into a 503
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := gin.H{
		"status": status,
		"time":   time.Now(),
	}
	if len(results) > 0 {
		body["checks"] = results
	}
	c.JSON(code, body)
}

// serveWS upgrades to the caller's notification socket. since resumes after a sequence number.
func (s *Server) serveWS(c *gin.Context) {
	var since uint64
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.fail(c, apperrors.Validation.Explain("invalid since %q", raw).WithField("since", "expected unsigned integer"))
			return
		}
		since = v
	}
	s.hub.ServeWS(c.Writer, c.Request, auth.UserID(c), since)
}
