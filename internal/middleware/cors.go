package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AllowedOrigins are the front ends permitted to call the API.  The first
// entry is echoed back when the request origin is not on the list.
var AllowedOrigins = []string{
	"https://gigexecs.com",
	"https://www.gigexecs.com",
	"https://develop--gigexecs.netlify.app",
	"https://gigexecs.netlify.app",
}

const corsHeaders = "authorization, x-client-info, apikey, content-type"

// CORS sets the allow-list headers on every response and answers
// preflight requests with 204 before any other middleware runs.
func CORS(origins []string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if !allowed[origin] {
				origin = origins[0]
			}
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
			h.Set(echo.HeaderAccessControlAllowMethods, strings.Join([]string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			}, ", "))
			h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
