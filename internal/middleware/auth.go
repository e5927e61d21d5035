package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/auth"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// Context keys set by the auth middlewares.
const (
	ctxUser  = "auth_user"
	ctxStaff = "staff_user"
)

// TokenVerifier turns an Authorization header into a caller.
type TokenVerifier interface {
	Verify(ctx context.Context, header string) (auth.User, error)
}

func deny(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// Auth rejects requests without a valid bearer token and stores the caller
// in the context.  Preflight requests pass straight through.
func Auth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}
			u, err := v.Verify(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				var f auth.Failure
				if !errors.As(err, &f) {
					c.Logger().Errorf("auth: verify: %v", err)
					return deny(c, http.StatusUnauthorized, "Authentication failed")
				}
				return deny(c, http.StatusUnauthorized, f.Error())
			}
			c.Set(ctxUser, u)
			return next(c)
		}
	}
}

// CurrentUser returns the caller stored by Auth.
func CurrentUser(c echo.Context) (auth.User, bool) {
	u, ok := c.Get(ctxUser).(auth.User)
	return u, ok
}

// StaffLookup finds the active staff row for an auth subject.
type StaffLookup interface {
	GetActiveByUserID(ctx context.Context, userID string) (model.StaffUser, error)
}

// RequireStaff admits callers whose active staff role ranks at least min.
// Impersonated callers are never staff.  It must run after Auth.
func RequireStaff(store StaffLookup, min model.StaffRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return deny(c, http.StatusUnauthorized, string(auth.ErrMissingHeader))
			}
			if u.ImpersonatedBy != "" {
				return deny(c, http.StatusForbidden, "Not authorized as staff")
			}
			st, err := store.GetActiveByUserID(c.Request().Context(), u.ID)
			if errors.Is(err, repository.ErrNotFound) {
				return deny(c, http.StatusForbidden, "Not authorized as staff")
			}
			if err != nil {
				return deny(c, http.StatusInternalServerError, err.Error())
			}
			if !st.Role.AtLeast(min) {
				return deny(c, http.StatusForbidden, "Insufficient permissions. Required: "+string(min)+", User: "+string(st.Role))
			}
			c.Set(ctxStaff, st)
			return next(c)
		}
	}
}

// CurrentStaff returns the staff member stored by RequireStaff.
func CurrentStaff(c echo.Context) (model.StaffUser, bool) {
	st, ok := c.Get(ctxStaff).(model.StaffUser)
	return st, ok
}

// ServiceKey admits only requests bearing the service-role key.
func ServiceKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(echo.HeaderAuthorization)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte("Bearer "+key)) != 1 {
				return deny(c, http.StatusUnauthorized, "Unauthorized")
			}
			return next(c)
		}
	}
}
