// Package cron exposes the externally-triggered maintenance jobs. There is
// no in-process scheduler: the platform scheduler (or an operator with the
// shared secret) calls these endpoints, and each invocation runs the job
// once, synchronously.
package cron

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/cleanup"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
	"github.com/clinicdesk/clinicdesk/internal/domain/reminder"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// response is the envelope every cron endpoint returns.
type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type Handler struct {
	closer     *cleanup.Closer
	dispatcher *reminder.Dispatcher
	logger     zerolog.Logger
}

func NewHandler(closer *cleanup.Closer, dispatcher *reminder.Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{closer: closer, dispatcher: dispatcher, logger: logger}
}

// RegisterRoutes mounts the job endpoints. The group must already carry the
// scheduler auth middleware; nothing here re-checks credentials.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/end-of-day-cleanup", h.EndOfDayCleanup)
	g.GET("/appointment-reminders", h.AppointmentReminders)
}

// scopeFromQuery selects the partition a job runs against. An explicit
// tenant narrows to that clinic; absence means the job sweeps every
// partition, legacy rows included.
func scopeFromQuery(c echo.Context) db.Scope {
	if tenant := c.QueryParam("tenant"); tenant != "" {
		return db.TenantScope(tenant)
	}
	return db.AnyScope()
}

func (h *Handler) EndOfDayCleanup(c echo.Context) error {
	opts := cleanup.Options{
		Scope:      scopeFromQuery(c),
		TargetDate: time.Now(),
	}

	if d := c.QueryParam("date"); d != "" {
		day, err := time.ParseInLocation("2006-01-02", d, time.Local)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
		opts.TargetDate = day
	}
	if s := c.QueryParam("queueStatus"); s != "" {
		if s != queue.StatusCompleted && s != queue.StatusCancelled {
			return echo.NewHTTPError(http.StatusBadRequest, "queueStatus must be completed or cancelled")
		}
		opts.QueueClosedAs = s
	}
	if s := c.QueryParam("appointmentStatus"); s != "" {
		if s != appointment.StatusCompleted && s != appointment.StatusCancelled {
			return echo.NewHTTPError(http.StatusBadRequest, "appointmentStatus must be completed or cancelled")
		}
		opts.AppointmentClosedAs = s
	}

	res := h.closer.Run(c.Request().Context(), opts)

	if len(res.Errors) > 0 {
		return c.JSON(http.StatusMultiStatus, response{
			Success: false,
			Message: "end-of-day cleanup finished with errors",
			Data:    res,
		})
	}
	return c.JSON(http.StatusOK, response{
		Success: true,
		Message: "end-of-day cleanup complete",
		Data:    res,
	})
}

func (h *Handler) AppointmentReminders(c echo.Context) error {
	res := h.dispatcher.Run(c.Request().Context(), scopeFromQuery(c))

	if len(res.Errors) > 0 {
		return c.JSON(http.StatusMultiStatus, response{
			Success: false,
			Message: "reminder run finished with errors",
			Data:    res,
		})
	}
	return c.JSON(http.StatusOK, response{
		Success: true,
		Message: "reminder run complete",
		Data:    res,
	})
}
