// Package api is the worker's HTTP surface: it intercepts every request
// for the active worker and exposes the /__worker control endpoints.
package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/estoca-ai/estoca-worker/internal/clients"
	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/notification"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
	"github.com/estoca-ai/estoca-worker/internal/syncqueue"
	"github.com/estoca-ai/estoca-worker/internal/worker"
)

// ControlPrefix is the path prefix of the control endpoints. Requests under
// it are never intercepted.
const ControlPrefix = "/__worker"

const (
	// maxBodySize bounds intercepted and control request bodies.
	maxBodySize      = 10 << 20
	rateLimitWindow  = 1 * time.Minute
	shutdownDeadline = 10 * time.Second
)

// Config holds the server dependencies.
type Config struct {
	Settings      conf.WebServerSettings
	Base          *url.URL
	Registration  *worker.Registration
	Fetcher       strategy.Fetcher // used while no worker is active
	Clients       *clients.Registry
	Notifications *notification.Service
	Sync          *syncqueue.Queue
	Metrics       *metrics.Metrics
	Log           logger.Logger
}

// Server is the echo server in front of the worker.
type Server struct {
	cfg  Config
	echo *echo.Echo
	log  logger.Logger
}

// New creates the server and registers every route.
func New(cfg Config) (*Server, error) {
	if cfg.Registration == nil || cfg.Fetcher == nil || cfg.Clients == nil || cfg.Base == nil {
		return nil, errors.Newf("api server requires a registration, a fetcher, a client registry and a base url").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Log == nil {
		cfg.Log = logger.Global()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if cfg.Settings.Debug {
		e.Debug = true
		e.Logger.SetLevel(log.DEBUG)
	} else {
		e.Logger.SetLevel(log.ERROR)
	}
	e.Use(middleware.Recover())

	s := &Server{cfg: cfg, echo: e, log: cfg.Log.Module("api")}
	s.registerRoutes()
	return s, nil
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	ctrl := s.echo.Group(ControlPrefix, middleware.BodyLimit("10M"))
	if s.cfg.Settings.ControlRate > 0 {
		ctrl.Use(middleware.RateLimiterWithConfig(s.rateLimiterConfig()))
	}

	ctrl.GET("/status", s.handleStatus)
	ctrl.POST("/message", s.handleMessage)
	ctrl.GET("/ws", s.handleWebSocket)
	ctrl.POST("/push", s.handlePush)
	ctrl.GET("/notifications", s.handleListNotifications)
	ctrl.GET("/notifications/stream", s.handleNotificationStream)
	ctrl.POST("/notifications/:id/click", s.handleNotificationClick)
	ctrl.POST("/sync", s.handleSync)
	ctrl.POST("/sync/tasks", s.handleEnqueueSync)

	if s.cfg.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.cfg.Metrics.Handler()))
	}

	s.echo.Any("/*", s.handleIntercept)
}

func (s *Server) rateLimiterConfig() middleware.RateLimiterConfig {
	burst := s.cfg.Settings.ControlBurst
	if burst <= 0 {
		burst = max(1, int(s.cfg.Settings.ControlRate))
	}
	return middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			// Pages reconnect their channel after every drop.
			return c.Path() == ControlPrefix+"/ws"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.cfg.Settings.ControlRate),
				Burst:     burst,
				ExpiresIn: rateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, errorBody("unable to identify client"))
		},
		DenyHandler: func(ctx echo.Context, _ string, _ error) error {
			return ctx.JSON(http.StatusTooManyRequests, errorBody("too many requests, please wait before trying again"))
		},
	}
}

// Start serves on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("listening", logger.String("addr", addr), logger.String("origin", s.cfg.Base.String()))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("operation", "listen").
			Context("addr", addr).
			Build()
	}
	return nil
}

// Shutdown stops accepting requests, closes every page channel and waits
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cfg.Clients.CloseAll()
	ctx, cancel := context.WithTimeout(ctx, shutdownDeadline)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, worker.ErrNoActiveWorker) {
		return http.StatusServiceUnavailable
	}
	switch errors.CategoryOf(err) {
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNetwork, errors.CategorySync:
		return http.StatusBadGateway
	case errors.CategoryConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
