package directory

import (
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

// RegisterRoutes mounts the browse endpoints on public and the doctor's own
// profile endpoints on api.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.GET("/wilayas", h.ListWilayas)
	public.GET("/cities", h.ListCities)
	public.GET("/specialties", h.ListSpecialties)
	public.GET("/doctors", h.ListDoctors)
	public.GET("/doctors/search", h.SearchDoctors)
	public.GET("/doctors/:id", h.GetDoctor)

	me := api.Group("/doctors/me", auth.RequireRole(auth.RoleDoctor))
	me.GET("", h.GetMe)
	me.PUT("", h.UpdateMe)
}

func (h *Handler) ListWilayas(c echo.Context) error {
	items, err := h.svc.ListWilayas(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListCities(c echo.Context) error {
	items, err := h.svc.ListCities(c.Request().Context(), c.QueryParam("wilaya"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListSpecialties(c echo.Context) error {
	items, err := h.svc.ListSpecialties(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := DoctorFilter{
		Wilaya:    c.QueryParam("wilaya"),
		City:      c.QueryParam("city"),
		Specialty: c.QueryParam("specialty"),
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Path()))
}

func (h *Handler) SearchDoctors(c echo.Context) error {
	items, err := h.svc.Search(c.Request().Context(), SearchType(c.QueryParam("type")), c.QueryParam("criteria"))
	switch {
	case errors.Is(err, ErrUnknownSearchType),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, calendar.ErrInvalidTime):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return h.respondDoctor(c, id)
}

func (h *Handler) GetMe(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	return h.respondDoctor(c, actor.ID)
}

func (h *Handler) respondDoctor(c echo.Context, id uuid.UUID) error {
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Doctor not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var patch DoctorPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), actor.ID, patch)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Doctor not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Profile updated successfully",
		"doctor":  d,
	})
}
