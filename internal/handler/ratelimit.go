package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/config"
	"github.com/gigexecs/gigexecs-api/internal/middleware"
)

// RateLimitStatus handles GET /rate-limit-status?clientId=&type=.  The
// client defaults to the caller and the type to general.
func RateLimitStatus(l *middleware.Limiter) echo.HandlerFunc {
	return func(c echo.Context) error {
		client := c.QueryParam("clientId")
		if client == "" {
			client = middleware.ClientID(c)
		}
		t := config.LimitType(c.QueryParam("type"))
		if t == "" {
			t = config.LimitGeneral
		}
		ctx := c.Request().Context()
		st, err := l.Status(ctx, client, t)
		switch {
		case errors.Is(err, middleware.ErrLimiterOff):
			return c.JSON(http.StatusServiceUnavailable, errorBody("Rate limiting is not available"))
		case errors.Is(err, middleware.ErrUnknownLimit):
			return bad(c, "Invalid limit type. Available types: "+strings.Join(l.Types(), ", "))
		case err != nil:
			return fail(c, err)
		}
		total, err := l.Clients(ctx, t)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{
			"clientId":        client,
			"limitType":       t,
			"status":          st,
			"availableLimits": l.Types(),
			"totalClients":    total,
			"timestamp":       now(),
		})
	}
}
