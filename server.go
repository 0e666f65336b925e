package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// Response is the envelope for every JSON reply.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func successResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func errorResponse(c echo.Context, status int, msg string) error {
	return c.JSON(status, Response{Success: false, Error: msg})
}

type apiHandler struct {
	// ctx outlives requests; manual cycles run on it so a client disconnect
	// does not cancel fetches or roll back the merge.
	ctx    context.Context
	views  *viewBuilder
	cache  SnapshotCache
	poller *poller
	hub    *wsHub
	log    logrus.FieldLogger
}

type statusView struct {
	LastCycle *refreshResult `json:"last_cycle,omitempty"`
	WSClients int            `json:"ws_clients"`
}

type refreshResult struct {
	CycleID  string `json:"cycle_id"`
	Fetched  int    `json:"fetched"`
	Kept     int    `json:"kept"`
	Inserted int64  `json:"inserted"`
	Failed   bool   `json:"failed"`
	Duration string `json:"duration"`
}

func newServer(h *apiHandler, log logrus.FieldLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(withLogging(log))

	e.GET("/api/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/live", h.live)
	e.GET("/api/history", h.history)
	e.GET("/api/analytics", h.analytics)
	e.GET("/api/status", h.status)
	e.POST("/api/refresh", h.refresh)
	if h.hub != nil {
		e.GET("/ws", echo.WrapHandler(http.HandlerFunc(h.hub.handleWebSocket)))
	}
	return e
}

func withLogging(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.WithFields(logrus.Fields{
				"method":  c.Request().Method,
				"path":    c.Request().URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
			}).Debug("request")
			return nil
		}
	}
}

func (h *apiHandler) live(c echo.Context) error {
	ctx := c.Request().Context()
	region := c.QueryParam("region")

	if region == "" && h.cache != nil {
		view, err := h.cache.GetLive(ctx)
		if err != nil {
			h.log.WithError(err).Warn("live view cache unavailable")
		} else if view != nil {
			return successResponse(c, view)
		}
	}

	view, err := h.views.Live(ctx, region)
	if err != nil {
		h.log.WithError(err).Error("failed to read live snapshot")
		return errorResponse(c, http.StatusInternalServerError, "failed to read live snapshot")
	}
	return successResponse(c, view)
}

func (h *apiHandler) history(c echo.Context) error {
	regions := c.QueryParams()["region"]
	view, err := h.views.History(c.Request().Context(), regions)
	if err != nil {
		h.log.WithError(err).Error("failed to read history")
		return errorResponse(c, http.StatusInternalServerError, "failed to read history")
	}
	return successResponse(c, view)
}

func (h *apiHandler) analytics(c echo.Context) error {
	view, err := h.views.Analytics(c.Request().Context())
	if err != nil {
		h.log.WithError(err).Error("failed to build analytics")
		return errorResponse(c, http.StatusInternalServerError, "failed to build analytics")
	}
	return successResponse(c, view)
}

func (h *apiHandler) status(c echo.Context) error {
	var v statusView
	if res, ok := h.poller.lastResult(); ok {
		v.LastCycle = toRefreshResult(res)
	}
	if h.hub != nil {
		v.WSClients = h.hub.clientCount()
	}
	return successResponse(c, v)
}

func (h *apiHandler) refresh(c echo.Context) error {
	ctx := h.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := h.poller.trigger(ctx)
	if errors.Is(err, ErrCycleInFlight) {
		return errorResponse(c, http.StatusConflict, err.Error())
	}
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return successResponse(c, toRefreshResult(res))
}

func toRefreshResult(res CycleResult) *refreshResult {
	return &refreshResult{
		CycleID:  res.ID,
		Fetched:  res.Fetched,
		Kept:     res.Kept,
		Inserted: res.Inserted,
		Failed:   res.Failed,
		Duration: res.Duration.String(),
	}
}
