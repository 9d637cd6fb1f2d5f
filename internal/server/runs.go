package server

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/oedrhq/engine/internal/journal"
	"github.com/oedrhq/engine/internal/orchestrator"
	"github.com/oedrhq/engine/internal/store"
)

// RunsHandler exposes run submission, status polling, and listing. It
// requires Store to be configured: the HTTP surface is a queryable view
// over the run index, not a replacement for the journal-based CLI. Redis
// is optional: when set, GET /runs/:id also returns the run's mirrored
// journal events (internal/journal.RedisMirror), which Store itself does
// not carry -- Store only ever sees the summary fields written at submit
// and completion time, not per-step progress.
type RunsHandler struct {
	Orch   *orchestrator.Orchestrator
	Store  *store.Store
	Redis  *redis.Client
	logger *log.Logger
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("", h.submit)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

type submitRequest struct {
	Query string `json:"query"`
}

type submitResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// submit starts a new run in the background and returns immediately with
// the run_id the caller can poll; the run itself may take minutes.
func (h *RunsHandler) submit(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run index not configured; submit via the CLI instead")
	}
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	runID := orchestrator.NewRunID()
	go func() {
		outcome := h.Orch.RunWithID(context.Background(), runID, req.Query)
		if outcome.Err != nil {
			h.logger.Printf("run %s finished with error: %v", outcome.RunID, outcome.Err)
		}
	}()

	return c.JSON(http.StatusAccepted, submitResponse{RunID: runID, Status: store.StatusInProgress})
}

type runView struct {
	RunID        string          `json:"run_id"`
	Query        string          `json:"query"`
	Status       string          `json:"status"`
	ArtifactsDir string          `json:"artifacts_dir"`
	Events       []journal.Event `json:"events,omitempty"`
}

func (h *RunsHandler) get(c echo.Context) error {
	r, err := h.Store.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	view := runView{RunID: r.RunID, Query: r.Query, Status: r.Status, ArtifactsDir: r.ArtifactsDir}
	if h.Redis != nil {
		mirror := journal.NewRedisMirror(h.Redis, r.RunID, 0)
		events, err := mirror.Events(c.Request().Context())
		if err != nil {
			h.logger.Printf("run %s: read redis event mirror: %v", r.RunID, err)
		} else {
			view.Events = events
		}
	}
	return c.JSON(http.StatusOK, view)
}

func (h *RunsHandler) list(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	rows, err := h.Store.ListRuns(c.Request().Context(), c.QueryParam("status"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]runView, 0, len(rows))
	for _, r := range rows {
		out = append(out, runView{RunID: r.RunID, Query: r.Query, Status: r.Status, ArtifactsDir: r.ArtifactsDir})
	}
	return c.JSON(http.StatusOK, out)
}
