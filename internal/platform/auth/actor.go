package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Role is the kind of user making a request.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

func ParseRole(v string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(v)))
	if !r.Valid() {
		return "", errors.New("role must be patient or doctor")
	}
	return r, nil
}

// Actor is the authenticated caller. It is resolved once per request and
// passed explicitly to every operation.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func (a Actor) IsPatient() bool { return a.Role == RolePatient }
func (a Actor) IsDoctor() bool  { return a.Role == RoleDoctor }

// Topic is the websocket topic the actor receives its own events on.
func (a Actor) Topic() string {
	return string(a.Role) + ":" + a.ID.String()
}

// ActorFromContext builds the Actor from identity set by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	role := RoleFromContext(ctx)
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil || !role.Valid() {
		return Actor{}, false
	}
	return Actor{ID: id, Role: role}, true
}

// RequireActor reads the Actor for a handler, answering 401 when the request
// carries no usable identity.
func RequireActor(c echo.Context) (Actor, error) {
	a, ok := ActorFromContext(c.Request().Context())
	if !ok {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return a, nil
}
