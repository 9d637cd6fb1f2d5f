// Package server exposes the OEDR engine over HTTP: run submission,
// status polling, and a Prometheus metrics endpoint, behind a single
// shared-secret JWT bearer token. It is an operator surface, not a
// multi-tenant API -- there is one token, not per-user accounts.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/orchestrator"
	"github.com/oedrhq/engine/internal/runtime"
	"github.com/oedrhq/engine/internal/store"
)

// Deps bundles the collaborators the HTTP surface needs. Store may be
// nil -- run submission and listing require it, but /healthz and
// /metrics do not. Redis may be nil -- without it, GET /runs/:id falls
// back to Store's summary fields alone, without per-event progress.
type Deps struct {
	Orch  *orchestrator.Orchestrator
	Store *store.Store
	Redis *redis.Client
}

// Run starts the HTTP server and blocks until it exits.
func Run(cfg config.ServerConfig, deps Deps) error {
	secret, err := runtime.LoadJWTSecret(cfg.JWTSecret)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	rh := &RunsHandler{Orch: deps.Orch, Store: deps.Store, Redis: deps.Redis, logger: log.New(log.Writer(), "[RUNS] ", log.LstdFlags)}
	runs := e.Group("/runs")
	runs.Use(runtime.EchoAuthMiddleware(secret))
	rh.Register(runs)

	addr := cfg.Address
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("oedr server listening on %s", addr)
	return e.Start(addr)
}
