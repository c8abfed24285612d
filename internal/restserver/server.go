// Package restserver implements Kiwibes' authenticated HTTPS control
// surface: job and data-store management routed through
// github.com/labstack/echo/v4, with its middleware stack (request IDs,
// request logging, panic recovery, rate limiting) and a
// go-playground/validator-backed request Validator assembled on top.
// No CORS middleware is installed.
package restserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kiwibes/kiwibesd/internal/authguard"
	"github.com/kiwibes/kiwibesd/internal/catalog"
	"github.com/kiwibes/kiwibesd/internal/datastore"
	"github.com/kiwibes/kiwibesd/internal/executor"
)

// TLSConfig carries the certificate material the server listens with.
// Loading certificates from disk is an external collaborator's
// concern (out of scope, per §1); the server only consumes the
// resulting *tls.Config.
type TLSConfig = tls.Config

// Server is Kiwibes' REST control surface.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger

	catalog   *catalog.Catalog
	datastore *datastore.DataStore
	executor  *executor.Executor
	auth      *authguard.AuthGuard

	port       int
	tlsConfig  *TLSConfig
	httpServer *http.Server
}

// New wires the REST server to its collaborators.
func New(cat *catalog.Catalog, ds *datastore.DataStore, exec *executor.Executor, auth *authguard.AuthGuard, port int, tlsConfig *TLSConfig, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newValidator()
	e.HTTPErrorHandler = httpErrorHandler

	s := &Server{
		echo:      e,
		logger:    logger.With().Str("component", "restserver").Logger(),
		catalog:   cat,
		datastore: ds,
		executor:  exec,
		auth:      auth,
		port:      port,
		tlsConfig: tlsConfig,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(50),
				Burst:     100,
				ExpiresIn: 0,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	}))
}

func (s *Server) setupRoutes() {
	rest := s.echo.Group("/rest")

	rest.GET("/ping", s.authenticated(s.handlePing))

	rest.GET("/jobs/list", s.handleJobsList)
	rest.GET("/jobs/scheduled", s.handleJobsScheduled)

	rest.GET("/job/details/:name", s.authenticated(s.handleJobDetails))
	rest.POST("/job/create/:name", s.authenticated(s.handleJobCreate))
	rest.POST("/job/edit/:name", s.authenticated(s.handleJobEdit))
	rest.POST("/job/start/:name", s.authenticated(s.handleJobStart))
	rest.POST("/job/stop/:name", s.authenticated(s.handleJobStop))
	rest.POST("/job/delete/:name", s.authenticated(s.handleJobDelete))
	rest.POST("/job/clear_pending/:name", s.authenticated(s.handleJobClearPending))

	rest.GET("/data/read/:key", s.authenticated(s.handleDataRead))
	rest.POST("/data/write/:key", s.authenticated(s.handleDataWrite))
	rest.POST("/data/clear/:key", s.authenticated(s.handleDataClear))
	rest.POST("/data/clear_all", s.authenticated(s.handleDataClearAll))
	rest.GET("/data/keys", s.authenticated(s.handleDataKeys))

	// Any unrecognized route is a bare "<p>ERROR</p>" 404.
	s.echo.RouteNotFound("/*", func(c echo.Context) error {
		return c.HTML(http.StatusNotFound, "<p>ERROR</p>")
	})
}

// Handler exposes the underlying request router, letting tests drive
// the server over a plain httptest.Server without a TLS handshake.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving HTTPS on the configured port; no plaintext
// listener is bound. A bare HTTP request on this port fails the TLS
// handshake: net/http writes its own plain-text 400 reply and closes
// the connection, so no JSON response is produced.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpServer = &http.Server{
		Addr:      addr,
		Handler:   s.echo,
		TLSConfig: s.tlsConfig,
	}
	s.logger.Info().Str("addr", addr).Msg("REST server starting")

	err := s.httpServer.ListenAndServeTLS("", "")
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops accepting new requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(shutdownCtx)
	}
	return s.echo.Shutdown(shutdownCtx)
}
