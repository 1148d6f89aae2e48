package appointment

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/calendar"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the booking, lifecycle and dashboard endpoints on the
// authenticated api group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Create, auth.RequireRole(auth.RolePatient))
	api.GET("/appointments/availability", h.Availability)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/confirm", h.Confirm, auth.RequireRole(auth.RoleDoctor))
	api.POST("/appointments/:id/reschedule", h.Reschedule)
	api.POST("/appointments/:id/cancel", h.Cancel)
	api.POST("/appointments/:id/complete", h.Complete, auth.RequireRole(auth.RoleDoctor))

	patient := api.Group("/patients/me", auth.RequireRole(auth.RolePatient))
	patient.GET("/appointments", h.ListMineAsPatient)
	patient.GET("/stats", h.PatientStats)

	doctor := api.Group("/doctors/me", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/appointments", h.ListMineAsDoctor)
	doctor.GET("/stats", h.DoctorStats)
}

// statusCode maps service errors onto HTTP statuses.
func statusCode(err error) int {
	var te *TransitionError
	switch {
	case errors.As(err, &te), errors.Is(err, ErrStale), errors.Is(err, ErrSlotTaken):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDoctorNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrPatientOnly):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalid), isCalendarError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Result{Message: "invalid request body"})
	}
	a, err := h.svc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return c.JSON(statusCode(err), Failure(ActionCreate, err))
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":       true,
		"message":       "Appointment created. Waiting for doctor response.",
		"appointmentId": a.ID,
		"status":        a.Status,
		"appointment":   a,
	})
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return echo.NewHTTPError(statusCode(err), Failure("get", err).Message)
	}
	return c.JSON(http.StatusOK, a)
}

type lifecycleOp func(ctx context.Context, actor auth.Actor, id uuid.UUID) (Result, error)

// transition runs one of the id-only lifecycle operations.
func (h *Handler) transition(c echo.Context, op lifecycleOp) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := op(c.Request().Context(), actor, id)
	if err != nil {
		return c.JSON(statusCode(err), res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Confirm(c echo.Context) error  { return h.transition(c, h.svc.Confirm) }
func (h *Handler) Cancel(c echo.Context) error   { return h.transition(c, h.svc.Cancel) }
func (h *Handler) Complete(c echo.Context) error { return h.transition(c, h.svc.Complete) }

func (h *Handler) Reschedule(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Result{Message: "invalid request body"})
	}
	res, err := h.svc.Reschedule(c.Request().Context(), actor, id, calendar.Slot{Date: req.Date, Time: req.Time})
	if err != nil {
		return c.JSON(statusCode(err), res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Availability(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	ok, err := h.svc.IsSlotAvailable(c.Request().Context(), doctorID,
		calendar.Slot{Date: c.QueryParam("date"), Time: c.QueryParam("time")})
	if err != nil {
		return echo.NewHTTPError(statusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"available": ok})
}

func (h *Handler) ListMineAsPatient(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	var (
		items []*Appointment
		total int
	)
	switch c.QueryParam("scope") {
	case "", "all":
		items, total, err = h.svc.ListForPatient(c.Request().Context(), actor.ID, pg.Limit, pg.Offset)
	case "upcoming":
		items, total, err = h.svc.UpcomingForPatient(c.Request().Context(), actor.ID, pg.Limit, pg.Offset)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "scope must be all or upcoming")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Path()))
}

func (h *Handler) ListMineAsDoctor(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	switch c.QueryParam("scope") {
	case "", "all":
		items, total, err := h.svc.ListForDoctor(c.Request().Context(), actor.ID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Path()))
	case "today":
		items, err := h.svc.TodayForDoctor(c.Request().Context(), actor.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, items)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "scope must be all or today")
	}
}

func (h *Handler) PatientStats(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	st, err := h.svc.PatientStats(c.Request().Context(), actor.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) DoctorStats(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	st, err := h.svc.DoctorStats(c.Request().Context(), actor.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}
