package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
)

type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.POST("/notifications/:id/read", h.HandleMarkRead)
}

// HandleList handles GET /notifications?limit=N for the caller.
func (h *Handler) HandleList(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}
	items, unread := h.manager.List(actor, limit)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   items,
		"unread": unread,
	})
}

// HandleMarkRead handles POST /notifications/:id/read.
func (h *Handler) HandleMarkRead(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.manager.MarkRead(actor, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
