package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/oshokin/frigate-notifier/internal/domain/alarm"
	"github.com/oshokin/frigate-notifier/internal/logger"
	"github.com/oshokin/frigate-notifier/internal/repository/events"
	"github.com/oshokin/frigate-notifier/internal/service/snooze"
)

// SnoozeService is the part of the snooze gate the API uses.
type SnoozeService interface {
	HandleAction(ctx context.Context, action string, actor *domain.Actor) (bool, error)
	Status(ctx context.Context) (*snooze.Status, error)
}

// EventLister lists pending events.
type EventLister interface {
	List() []events.Record
}

const (
	// readHeaderTimeout bounds slow clients.
	readHeaderTimeout = 5 * time.Second
	// shutdownTimeout bounds the graceful shutdown.
	shutdownTimeout = 5 * time.Second
	// httpActorUsername marks actions received through the webhook.
	httpActorUsername = "http"
)

func init() { //nolint:gochecknoinits // gin's mode is global and must be set before any engine is built.
	gin.SetMode(gin.ReleaseMode)
}

// Server serves the HTTP API.
type Server struct {
	// address is the listen address.
	address string
	// router holds the routes.
	router *gin.Engine
	// snooze handles actions and reports status.
	snooze SnoozeService
	// events lists pending records.
	events EventLister
	// token is the bearer token required on /api routes; empty disables the check.
	token string
}

// Option configures the server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every /api route.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// NewServer builds the router. Run starts listening.
func NewServer(
	ctx context.Context,
	address string,
	snoozeService SnoozeService,
	eventLister EventLister,
	opts ...Option,
) *Server {
	s := &Server{
		address: address,
		router:  gin.New(),
		snooze:  snoozeService,
		events:  eventLister,
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx = logger.WithName(ctx, "http")

	s.router.Use(requestLogger(ctx), recovery(ctx))

	s.router.GET("/healthz", s.health)

	api := s.router.Group("/api")
	if s.token != "" {
		api.Use(bearerAuth(s.token))
	}

	api.GET("/events", s.listEvents)
	api.GET("/snooze", s.snoozeStatus)
	api.POST("/actions", s.handleAction)

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "http")

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.WarnKV(ctx, "HTTP shutdown failed", "error", shutdownErr)
		}
	}()

	logger.InfoKV(ctx, "HTTP API is listening", "address", listener.Addr().String())

	if err = server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server stopped with error: %w", err)
	}

	return nil
}
