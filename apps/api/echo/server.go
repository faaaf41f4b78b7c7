package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/graph-gophers/graphql-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/prsonline/core"
	metricsvc "github.com/trezcool/prsonline/services/metrics"
)

type (
	// HealthCheck reports whether a dependency of the API is reachable.
	HealthCheck struct {
		Name  string
		Check func(ctx context.Context) error
	}

	ServerDeps struct {
		Conf         *core.Config
		Logger       core.Logger
		Schema       *graphql.Schema
		Metrics      *metricsvc.Metrics
		HealthChecks []HealthCheck
	}

	Server struct {
		ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		auth:       newAuthenticator(deps.Conf),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.Conf
	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.SignalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if s.Metrics != nil {
		s.app.Use(metricsMiddleware(s.Metrics))
	}
	if !conf.TestMode {
		s.app.Use(requestLogger(s.Logger))
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{conf.FrontendBaseURL},
		AllowCredentials: true,
	}))

	s.app.GET("/", s.home)
	s.app.GET("/healthz", s.health)
	if s.Metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	gql := s.app.Group("/graphql", bearerAuth(s.auth))
	gql.POST("", s.graphql)
}

func (s *Server) Start() {
	s.Logger.Info("API listening on " + s.Conf.Server.Address())
	if err := s.app.Start(s.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks main to gracefully shut the Server down.
func (s *Server) SignalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.Conf.AppName+" API!")
}

func (s *Server) health(ctx echo.Context) error {
	status := make(map[string]string, len(s.HealthChecks))
	code := http.StatusOK
	for _, hc := range s.HealthChecks {
		if err := hc.Check(ctx.Request().Context()); err != nil {
			s.Logger.Warn("health check failed: "+hc.Name, err)
			status[hc.Name] = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		status[hc.Name] = "ok"
	}
	return ctx.JSON(code, echo.Map{"build": s.Conf.Build, "checks": status})
}
