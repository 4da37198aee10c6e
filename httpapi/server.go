// Package httpapi exposes the routine engine over HTTP for presentation clients.
package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cyp0633/libroutine/availability"
	"github.com/cyp0633/libroutine/careblock"
	"github.com/cyp0633/libroutine/eventlog"
	"github.com/cyp0633/libroutine/household"
	hhmemory "github.com/cyp0633/libroutine/household/memory"
	"github.com/cyp0633/libroutine/internal/clock"
	"github.com/cyp0633/libroutine/transition"
)

// Household is the registry plus the settings operations the API offers on it
type Household interface {
	household.Registry
	PutChild(c household.Child) household.Child
	RemoveChild(id string) error
	PutNapSchedule(n household.NapSchedule) household.NapSchedule
	RemoveNapSchedule(id string) error
}

// Deps are the components served by the API
type Deps struct {
	Household    Household
	Blocks       *careblock.Registry
	Sleep        *eventlog.Log
	Away         *eventlog.Log
	Availability *availability.Engine
	Detector     *transition.Detector
	// Scanner runs on-demand scans; the Detector is used when nil
	Scanner transition.Scanner
	Clock   clock.Clock
}

// Server holds the HTTP handlers
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// Option represents a configuration option for the Server
type Option func(*Server)

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server
func New(deps Deps, opts ...Option) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Scanner == nil {
		deps.Scanner = deps.Detector
	}
	s := &Server{
		deps:   deps,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/availability", s.getAvailability)
	r.GET("/availability/at", s.getAvailabilityAt)

	blocks := r.Group("/care-blocks")
	{
		blocks.GET("", s.listBlocks)
		blocks.POST("", s.createBlock)
		blocks.GET("/active", s.activeBlocks)
		blocks.GET("/:id", s.getBlock)
		blocks.PUT("/:id", s.updateBlock)
		blocks.DELETE("/:id", s.deleteBlock)
		blocks.GET("/:id/next", s.nextBlockOccurrence)
	}
	r.GET("/calendar.ics", s.calendar)

	r.GET("/children", s.listChildren)
	r.POST("/children", s.putChild)
	r.DELETE("/nap-schedules/:id", s.deleteNapSchedule)

	children := r.Group("/children/:id")
	{
		children.PUT("", s.putChild)
		children.DELETE("", s.deleteChild)
		children.GET("/naps", s.listNapSchedules)
		children.POST("/naps", s.addNapSchedule)
		children.GET("/status", s.childStatus)
		children.POST("/sleep/start", s.startSleep)
		children.POST("/sleep/end", s.endEvent(s.deps.Sleep))
		children.POST("/away/start", s.startAway)
		children.POST("/away/end", s.endEvent(s.deps.Away))
	}

	r.PATCH("/sleep/:id", s.updateEvent(s.deps.Sleep))
	r.DELETE("/sleep/:id", s.deleteEvent(s.deps.Sleep))
	r.PATCH("/away/:id", s.updateEvent(s.deps.Away))
	r.DELETE("/away/:id", s.deleteEvent(s.deps.Away))

	transitions := r.Group("/transitions")
	{
		transitions.GET("", s.listTransitions)
		transitions.POST("/scan", s.scan)
		transitions.POST("/:id/confirm", s.confirmTransition)
		transitions.POST("/:id/dismiss", s.dismissTransition)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request handled",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, careblock.ErrNotFound),
		errors.Is(err, eventlog.ErrNotFound),
		errors.Is(err, transition.ErrNotFound),
		errors.Is(err, errChildNotFound),
		errors.Is(err, hhmemory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, careblock.ErrInvalidBlock),
		errors.Is(err, eventlog.ErrInvalidRange),
		errors.Is(err, eventlog.ErrInvalidDetails):
		return http.StatusBadRequest
	case errors.Is(err, eventlog.ErrNotOpen),
		errors.Is(err, eventlog.ErrAlreadyOpen),
		errors.Is(err, transition.ErrNotPending):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "route", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
