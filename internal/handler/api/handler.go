// Package api serves the alert, status and stream endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/service/dispatcher"
	"SignalPulse/internal/usecase"
	xhttp "SignalPulse/pkg/http"
	xlogger "SignalPulse/pkg/logger"
	"SignalPulse/pkg/util"
)

// Handler wires engine state and the dispatcher to HTTP.
type Handler struct {
	engine  *usecase.SignalEngine
	alerts  *usecase.AlertMonitor
	weights *usecase.AdaptiveWeights
	journal drepo.Journal
	hub     *dispatcher.Hub
	log     *xlogger.Logger

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeWait    time.Duration
}

type Option func(*Handler)

// WithAllowedOrigins limits websocket upgrades to origins; "*" or none
// accepts any.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || allowed["*"] || allowed[o]
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) { h.pingInterval = d }
}

func NewHandler(engine *usecase.SignalEngine, alerts *usecase.AlertMonitor, weights *usecase.AdaptiveWeights,
	journal drepo.Journal, hub *dispatcher.Hub, log *xlogger.Logger, opts ...Option) *Handler {
	h := &Handler{
		engine:  engine,
		alerts:  alerts,
		weights: weights,
		journal: journal,
		hub:     hub,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: 30 * time.Second,
		writeWait:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/ws", h.Stream)

	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/weights", h.Weights)
	g.GET("/outcomes", h.Outcomes)

	g.POST("/alerts", h.CreateAlert)
	g.GET("/alerts", h.ListAlerts)
	g.DELETE("/alerts/:id", h.DeleteAlert)
	g.PATCH("/alerts/:id", h.ToggleAlert)
}

func (h *Handler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Status())
}

func (h *Handler) Weights(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.weights.Snapshot())
}

func (h *Handler) Outcomes(c echo.Context) error {
	req := &models.OutcomesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since, ok := time.Time{}, true
	if req.Since != "" {
		since, ok = util.ParseTime(req.Since)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("since: unrecognised time %q", req.Since))
		}
	}
	rows, err := h.journal.RecentOutcomes(c.Request().Context(), req.Instrument, since, req.Limit)
	if err != nil {
		h.log.Error("outcomes query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableErrorf("journal unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type healthBody struct {
	Mode        models.SystemMode `json:"mode"`
	Journal     string            `json:"journal"`
	Subscribers int               `json:"subscribers"`
}

// Health answers 503 when the journal is unreachable or every source is down.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	body := healthBody{Mode: h.engine.Status().Mode, Journal: "ok", Subscribers: h.hub.Count()}
	status := http.StatusOK
	if err := h.journal.Health(ctx); err != nil {
		body.Journal = err.Error()
		status = http.StatusServiceUnavailable
	}
	if body.Mode == models.ModeOffline {
		status = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, status, body)
}

// appError maps domain errors onto HTTP errors.
func appError(err error) error {
	switch {
	case errors.Is(err, models.ErrAlertNotFound):
		return xhttp.NotFoundErrorf("alert subscription not found").WithError(err)
	case errors.Is(err, models.ErrUnknownInstrument):
		return xhttp.UnprocessableErrorf("instrument_id", "unknown instrument").WithError(err)
	default:
		return xhttp.InternalErrorf("unexpected error").WithError(err)
	}
}
