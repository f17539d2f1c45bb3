package reminder

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medremind/medremind/internal/platform/auth"
	"github.com/medremind/medremind/pkg/pagination"
)

type Handler struct {
	svc     *Service
	scanner *Scanner
}

func NewHandler(svc *Service, scanner *Scanner) *Handler {
	return &Handler{svc: svc, scanner: scanner}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleCaregiver))
	g.GET("/reminders/today", h.Today)
	g.GET("/reminders/today/summary", h.Summary)
	g.GET("/reminders/upcoming", h.Upcoming)
	g.GET("/reminders/range", h.Range)
	g.GET("/reminders/history", h.History)
	g.GET("/reminders/adherence", h.Adherence)
	g.GET("/reminders/:id", h.Get)
	g.POST("/reminders/:id/taken", h.MarkTaken)
	g.POST("/reminders/:id/missed", h.MarkMissed)
	g.POST("/reminders/:id/snooze", h.Snooze)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/admin/reminders/scan", h.RunScan)
}

// patientID resolves the target patient: an explicit patient_id query
// parameter wins, otherwise the patient bound to the caller's token.
func patientID(c echo.Context) (uuid.UUID, error) {
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		return id, nil
	}
	if raw := auth.PatientIDFromContext(c.Request().Context()); raw != "" {
		id, err := uuid.Parse(raw)
		if err == nil {
			return id, nil
		}
	}
	return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reminder id")
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Today(c echo.Context) error {
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	reminders, err := h.svc.Today(c.Request().Context(), pid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  reminders,
		"count": len(reminders),
	})
}

func (h *Handler) Range(c echo.Context) error {
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from: want RFC3339")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to: want RFC3339")
	}

	reminders, err := h.svc.Range(c.Request().Context(), pid, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  reminders,
		"count": len(reminders),
	})
}

type actionRequest struct {
	Note      string   `json:"note"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *Handler) MarkTaken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reminder id")
	}
	var req actionRequest
	// Body is optional for these actions.
	_ = c.Bind(&req)

	var loc *Location
	if req.Latitude != nil && req.Longitude != nil {
		loc = &Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	r, err := h.svc.MarkTaken(c.Request().Context(), id, req.Note, loc)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) MarkMissed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reminder id")
	}
	var req actionRequest
	_ = c.Bind(&req)

	r, err := h.svc.MarkMissed(c.Request().Context(), id, req.Note)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

type snoozeRequest struct {
	Minutes int `json:"minutes"`
}

func (h *Handler) Snooze(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reminder id")
	}
	var req snoozeRequest
	_ = c.Bind(&req)

	r, err := h.svc.Snooze(c.Request().Context(), id, req.Minutes)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Summary(c echo.Context) error {
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.Summary(c.Request().Context(), pid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Upcoming(c echo.Context) error {
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	hours, _ := strconv.Atoi(c.QueryParam("hours"))
	reminders, err := h.svc.Upcoming(c.Request().Context(), pid, hours)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  reminders,
		"count": len(reminders),
	})
}

func (h *Handler) History(c echo.Context) error {
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	var filter LogFilter
	if raw := c.QueryParam("action"); raw != "" {
		filter.Action = Action(raw)
	}
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from: want RFC3339")
		}
		filter.From = &t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to: want RFC3339")
		}
		filter.To = &t
	}
	page := pagination.FromContext(c)
	logs, total, err := h.svc.History(c.Request().Context(), pid, filter, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(logs, total, page.Limit, page.Offset))
}

func (h *Handler) Adherence(c echo.Context) error {
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	period := Period(c.QueryParam("period"))
	if period == "" {
		period = PeriodWeek
	}

	report, err := h.svc.Adherence(c.Request().Context(), pid, period)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) RunScan(c echo.Context) error {
	report, err := h.scanner.RunNow(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrScanInProgress) {
			return echo.NewHTTPError(http.StatusConflict, "scan already in progress")
		}
		if errors.Is(err, ErrDeliveryTransport) {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "reminder not found")
	case errors.Is(err, ErrAlreadyCompleted):
		return echo.NewHTTPError(http.StatusConflict, "reminder already completed")
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, "reminder is not in an actionable state")
	case errors.Is(err, ErrSnoozeLimitExceeded):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "snooze limit exceeded")
	default:
		return err
	}
}
