package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/auth"
	"github.com/gigexecs/gigexecs-api/internal/config"
	"github.com/gigexecs/gigexecs-api/internal/handler"
	"github.com/gigexecs/gigexecs-api/internal/middleware"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

const secret = "router-test-secret"

type noStaff struct{}

func (noStaff) GetActiveByUserID(context.Context, string) (model.StaffUser, error) {
	return model.StaffUser{}, repository.ErrNotFound
}

type okDB struct{}

func (okDB) PingContext(context.Context) error { return nil }

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	Register(e, Deps{
		Verifier:       &auth.Verifier{Secret: secret},
		Staff:          noStaff{},
		Limiter:        middleware.NewLimiter(config.LoadRateLimitConfig(), nil),
		Cache:          passThrough,
		ServiceRoleKey: "svc-key",
		DB:             okDB{},
		Accounts:       &handler.AccountHandler{},
		Console:        &handler.StaffHandler{},
		Gigs:           &handler.GigHandler{},
		Emails:         &handler.EmailHandler{},
		Profile:        &handler.ProfileHandler{},
		Files:          &handler.FileHandler{},
		Feedback:       &handler.FeedbackHandler{},
	})
	return e
}

func TestRegister_Routes(t *testing.T) {
	e := newTestEcho()
	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /skills",
		"POST /register-user",
		"POST /send-email",
		"GET /email-history",
		"POST /email-reminders",
		"POST /profile-cv-upload",
		"GET /profile-parse-cv-status",
		"POST /profile-parse-cv-status",
		"POST /profile-ai-publish",
		"PATCH /staff-external-gigs-update",
		"DELETE /staff-external-gigs-delete",
		"POST /staff-update-vetting",
		"POST /staff-create-user",
		"PUT /staff-update-user",
		"GET /staff-manage-users",
		"POST /submit-feedback",
		"GET /files/*",
	} {
		assert.True(t, got[want], want)
	}
}

func do(e *echo.Echo, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegister_Gates(t *testing.T) {
	e := newTestEcho()

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/send-email", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/email-reminders", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/email-reminders", "wrong").Code)

	tok, err := auth.NewStaffToken(secret, "", "user-1", "jane@example.com", time.Hour)
	require.NoError(t, err)
	rec := do(e, http.MethodPost, "/staff-update-vetting", tok.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not authorized as staff")

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/staff-create-user"},
		{http.MethodPut, "/staff-update-user"},
		{http.MethodGet, "/staff-manage-users"},
	} {
		assert.Equal(t, http.StatusUnauthorized, do(e, r.method, r.path, "").Code, r.path)
		assert.Equal(t, http.StatusForbidden, do(e, r.method, r.path, tok.Token).Code, r.path)
	}
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/submit-feedback", "").Code)
}
