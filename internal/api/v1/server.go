package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server runs the echo instance hosting the API.
type Server struct {
	Echo       *echo.Echo
	Controller *Controller
	log        logger.Logger
}

// NewServer creates an echo instance with recovery middleware and the API
// routes registered.
func NewServer(deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Server.ReadHeaderTimeout = readHeaderTimeout

	log := deps.Log
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Server{
		Echo:       e,
		Controller: New(e, deps),
		log:        log.Module("http"),
	}
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("http server listening", logger.String("addr", addr))
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.Echo.Shutdown(ctx)
}
