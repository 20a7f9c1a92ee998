// Package transport exposes the webhook receiver and the review
// administration routes over HTTP.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	entrycredits "github.com/goliatone/go-entry-credits"
	"github.com/goliatone/go-entry-credits/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	WebhookPath = "/webhooks/orders"
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"

	defaultMaxBodyBytes int64 = 1 << 20
)

type HealthCheck func(ctx context.Context) error

type Server struct {
	processor    *webhooks.Processor
	facade       *entrycredits.Facade
	metrics      http.Handler
	health       HealthCheck
	logger       glog.Logger
	maxBodyBytes int64
}

type Option func(*Server)

// WithFacade enables the /admin routes.
func WithFacade(facade *entrycredits.Facade) Option {
	return func(s *Server) {
		s.facade = facade
	}
}

func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

func WithHealthCheck(check HealthCheck) Option {
	return func(s *Server) {
		s.health = check
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMaxBodyBytes(limit int64) Option {
	return func(s *Server) {
		if limit > 0 {
			s.maxBodyBytes = limit
		}
	}
}

func NewServer(processor *webhooks.Processor, opts ...Option) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("transport: webhook processor is required")
	}
	server := &Server{
		processor:    processor,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	server.logger = glog.Ensure(server.logger)
	return server, nil
}

// Handler builds the gin engine with every configured route.
func (s *Server) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.accessLog())

	engine.POST(WebhookPath, s.receiveWebhook)
	engine.GET(HealthPath, s.healthz)
	if s.metrics != nil {
		engine.GET(MetricsPath, gin.WrapH(s.metrics))
	}
	if s.facade != nil {
		admin := engine.Group("/admin")
		admin.GET("/pending-orders", s.listPendingOrders)
		admin.GET("/pending-orders/:id", s.getPendingOrder)
		admin.POST("/pending-orders/:id/resolve", s.resolvePendingOrder)
		admin.POST("/pending-orders/:id/cancel", s.cancelPendingOrder)
		admin.GET("/entrants/:id/credits", s.entrantCredits)
	}
	return engine
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == HealthPath || c.FullPath() == MetricsPath {
			return
		}
		s.logger.WithContext(c.Request.Context()).Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
