package calendar

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Occupancy lists the times of day a doctor is already booked on a date.
type Occupancy interface {
	BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
}

// Handler serves the clinic calendar to booking clients.
type Handler struct {
	policy    Policy
	occupancy Occupancy
	now       func() time.Time
}

// NewHandler returns a calendar handler. occupancy may be nil, in which case
// doctor_id is ignored.
func NewHandler(policy Policy, occupancy Occupancy, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{policy: policy, occupancy: occupancy, now: now}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/calendar/day", h.GetDay)
	g.GET("/calendar/month", h.GetMonth)
}

// GetDay lists the time grid of ?date=. With ?doctor_id= the doctor's booked
// times are marked unselectable.
func (h *Handler) GetDay(c echo.Context) error {
	now := h.now()
	date := c.QueryParam("date")
	if date == "" {
		date = h.policy.Today(now).Format(DateLayout)
	}
	day, err := h.policy.Day(now, date)
	if errors.Is(err, ErrInvalidDate) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if raw := c.QueryParam("doctor_id"); raw != "" && h.occupancy != nil && day.Selectable {
		doctorID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		booked, err := h.occupancy.BookedTimes(c.Request().Context(), doctorID, date)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		taken := make(map[string]bool, len(booked))
		for _, t := range booked {
			taken[t] = true
		}
		for i := range day.Times {
			if taken[day.Times[i].Time] {
				day.Times[i].Selectable = false
			}
		}
	}
	return c.JSON(http.StatusOK, day)
}

// GetMonth returns the view of ?month= (default: the current month) moved by
// ?step= months, never before the current month.
func (h *Handler) GetMonth(c echo.Context) error {
	now := h.now()
	current := h.policy.CurrentMonth(now)
	if v := c.QueryParam("month"); v != "" {
		m, err := ParseMonth(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		current = m
	}
	step := 0
	if v := c.QueryParam("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "step must be an integer")
		}
		step = n
	}
	return c.JSON(http.StatusOK, h.policy.View(now, h.policy.Step(now, current, step)))
}
