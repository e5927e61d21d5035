package middleware

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestLog tags each request with an X-Request-ID and writes one access
// line when it completes.
func RequestLog(logger *log.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			caller := "-"
			if u, ok := CurrentUser(c); ok {
				caller = u.ID
			}
			logger.Printf("http: %s %s %s %d %s user=%s id=%s",
				c.RealIP(), c.Request().Method, c.Request().URL.Path,
				c.Response().Status, time.Since(start).Round(time.Millisecond), caller, id)
			return nil
		}
	}
}
