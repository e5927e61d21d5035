package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/service"
)

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// errorBody is the JSON shape of every error response.
func errorBody(msg string) echo.Map {
	return echo.Map{"error": msg, "timestamp": now()}
}

func bad(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody(msg))
}

// statusOf maps a service error onto an HTTP status.
func statusOf(err error) int {
	var (
		in *service.InputError
		nf service.NotFoundError
		fb service.ForbiddenError
		cf service.ConflictError
		ua service.UnauthorizedError
		he *echo.HTTPError
	)
	switch {
	case errors.As(err, &in):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &fb):
		return http.StatusForbidden
	case errors.As(err, &cf):
		return http.StatusConflict
	case errors.As(err, &ua):
		return http.StatusUnauthorized
	case errors.As(err, &he):
		return he.Code
	}
	return http.StatusInternalServerError
}

// fail renders err with the status its type implies.  Messages of
// unexpected errors are passed through so upstream failures are visible to
// the caller.
func fail(c echo.Context, err error) error {
	status := statusOf(err)
	body := errorBody(err.Error())

	var in *service.InputError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &in):
		body["error"] = in.Msg
		if len(in.Details) > 0 {
			body["details"] = in.Details
		}
		for k, v := range in.Extra {
			body[k] = v
		}
	case errors.As(err, &he):
		body["error"] = fmt.Sprint(he.Message)
	}
	if status >= http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	return c.JSON(status, body)
}

// ErrorHandler replaces Echo's default so router level errors (unknown
// route, body too large, panics) share the JSON error shape.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(statusOf(err))
		return
	}
	_ = fail(c, err)
}

// bind decodes the JSON body; a malformed body is a 400.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return &service.InputError{Msg: "Invalid JSON in request body"}
	}
	return nil
}
