// Package web serves the HTTP status surface: a health check, a JSON
// status snapshot and the Prometheus metrics endpoint.
package web

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/presbrey/voiced/bot"
)

// Server wraps the Echo instance serving status endpoints.
type Server struct {
	echo *echo.Echo
	bot  *bot.Bot
}

// New builds a Server exposing b's state.
func New(b *bot.Bot) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, bot: b}

	e.GET("/healthz", s.healthz)
	e.GET("/api/status", s.status)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		bot.Registry, promhttp.HandlerOpts{})))

	return s
}

func (s *Server) healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.bot.CurrentStatus())
}

// Handler exposes the routed handler for testing.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
