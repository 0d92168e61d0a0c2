// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/inverter"
	"github.com/jmcp/jfy-monitor/pkg/sink"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusServer serves health, metrics and the address table over HTTP
type StatusServer struct {
	echo  *echo.Echo
	table *inverter.AddressTable
}

// NewStatusServer creates the routes; Start serves them
func NewStatusServer(table *inverter.AddressTable, metrics *sink.Metrics) *StatusServer {
	s := &StatusServer{echo: echo.New(), table: table}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())

	s.echo.GET("/healthcheck", s.HealthCheckHandler)
	s.echo.GET("/inverters", s.InvertersHandler)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	return s
}

// Handler returns the routes for use with httptest
func (s *StatusServer) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown
func (s *StatusServer) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting briefly for open requests
func (s *StatusServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// HealthCheckHandler reports OK while at least one inverter is registered
func (s *StatusServer) HealthCheckHandler(c echo.Context) error {
	if len(s.table.Registered()) == 0 {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	return c.String(http.StatusOK, "health_check: OK")
}

// InvertersHandler lists the registered inverters
func (s *StatusServer) InvertersHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.table.Registered())
}
