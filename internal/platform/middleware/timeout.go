package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestTimeout bounds each request with a context deadline. The handler runs
// on the request goroutine, so nothing writes to the response after the
// middleware returns; a handler that gives up with context.DeadlineExceeded is
// answered with 504. The websocket endpoint and anything below it are exempt.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: timeout,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/ws" || strings.HasPrefix(p, "/ws/")
		},
		ErrorHandler: func(err error, c echo.Context) error {
			if errors.Is(err, context.DeadlineExceeded) {
				return gatewayTimeout(c)
			}
			return err
		},
	})
}

func gatewayTimeout(c echo.Context) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusGatewayTimeout, map[string]interface{}{
		"success": false,
		"message": "Request processing exceeded the allowed time limit",
	})
}
