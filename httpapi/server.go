// Package httpapi exposes the orchestrator over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/martinemde/taskrouter/agentloop"
	"github.com/martinemde/taskrouter/logs"
	"github.com/martinemde/taskrouter/store"
)

// SessionReader is the read side of the session store.
type SessionReader interface {
	Load(ctx context.Context, id string) (*agentloop.Snapshot, error)
	ListSessions(ctx context.Context, limit int) ([]store.SessionSummary, error)
}

// Server serves the task API.
type Server struct {
	orch     *agentloop.Orchestrator
	sessions SessionReader
	logger   *slog.Logger
	events   *hub

	allowedOrigins []string
	runTimeout     time.Duration

	// runMu serializes runs: token statistics are process-wide and reset at
	// the start of every run.
	runMu sync.Mutex

	engine *gin.Engine
	server *http.Server
}

type Option func(*Server)

// WithSessions enables the /v1/sessions routes.
func WithSessions(sessions SessionReader) Option {
	return func(s *Server) { s.sessions = sessions }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithAllowedOrigins restricts CORS. Empty or "*" allows every origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithRunTimeout bounds each POST /v1/tasks run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) { s.runTimeout = d }
}

// WithEvents streams run events from events to /v1/events subscribers until
// the channel closes.
func WithEvents(events <-chan agentloop.RunEvent) Option {
	return func(s *Server) {
		s.events = newHub()
		go s.events.pump(events)
	}
}

func NewServer(orch *agentloop.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:   orch,
		logger: logs.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger(), cors.New(s.corsConfig()))
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.events != nil {
		s.events.close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)

	v1 := s.engine.Group("/v1")
	v1.POST("/tasks", s.handleRunTask)
	v1.POST("/classify", s.handleClassify)
	v1.GET("/tools", s.handleListTools)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.GET("/events", s.handleEvents)
}

func (s *Server) corsConfig() cors.Config {
	config := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 || (len(s.allowedOrigins) == 1 && s.allowedOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.allowedOrigins
	}
	config.AllowHeaders = append(config.AllowHeaders, "X-Request-ID")
	config.ExposeHeaders = append(config.ExposeHeaders, "X-Request-ID")
	return config
}

// requestLogger tags the request context with a request id and logs one line
// per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		ctx := logs.WithAttrs(c.Request.Context(), slog.String("request_id", id))
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
