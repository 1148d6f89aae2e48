package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

// Dev headers are honoured by DevAuthMiddleware only.
const (
	DevUserHeader = "X-Dev-User-ID"
	DevRoleHeader = "X-Dev-Role"
)

type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

// JWTMiddleware validates HS256 bearer tokens. The websocket endpoint cannot
// send headers from a browser, so an access_token query parameter is accepted
// when no Authorization header is present.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := c.QueryParam("access_token")
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
				}
				tokenStr = parts[1]
			}
			if tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid || !claims.Role.Valid() {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			setIdentity(c, claims.Subject, claims.Role)
			return next(c)
		}
	}
}

// DevAuthMiddleware lets requests without a token pick their identity through
// the X-Dev-User-ID and X-Dev-Role headers. Requests carrying a token are
// handed to jwtMW.
func DevAuthMiddleware(jwtMW echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withJWT := jwtMW(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" || c.QueryParam("access_token") != "" {
				return withJWT(c)
			}
			role := Role(strings.ToLower(c.Request().Header.Get(DevRoleHeader)))
			uid := c.Request().Header.Get(DevUserHeader)
			if uid == "" || !role.Valid() {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			setIdentity(c, uid, role)
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, subject string, role Role) {
	c.Set(string(UserIDKey), subject)
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, subject)
	ctx = context.WithValue(ctx, UserRoleKey, role)
	c.SetRequest(c.Request().WithContext(ctx))
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) Role {
	role, _ := ctx.Value(UserRoleKey).(Role)
	return role
}
