package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/auth"
	"github.com/gigexecs/gigexecs-api/internal/middleware"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/service"
)

const impersonationCookie = "impersonation_token"

func staffOf(c echo.Context) model.StaffUser {
	st, _ := middleware.CurrentStaff(c)
	return st
}

// StaffHandler serves the staff console: sign in, impersonation and the
// vetting queue.
type StaffHandler struct {
	Staff   *service.StaffService
	Vetting *service.VettingService
	Review  *service.ReviewService
}

func NewStaffHandler(staff *service.StaffService, vetting *service.VettingService, review *service.ReviewService) *StaffHandler {
	if staff == nil || vetting == nil || review == nil {
		panic("nil service passed to NewStaffHandler")
	}
	return &StaffHandler{Staff: staff, Vetting: vetting, Review: review}
}

// Login handles POST /staff-login.
func (h *StaffHandler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Staff.Login(c.Request().Context(), body.Email, body.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Logout handles POST /staff-logout.
func (h *StaffHandler) Logout(c echo.Context) error {
	if err := h.Staff.Logout(c.Request().Context(), staffOf(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     impersonationCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// StartImpersonation handles POST /staff-impersonate-start.  The token is
// returned in the body and in an HttpOnly cookie.
func (h *StaffHandler) StartImpersonation(c echo.Context) error {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Staff.StartImpersonation(c.Request().Context(), staffOf(c), body.UserID)
	if err != nil {
		return fail(c, err)
	}
	c.SetCookie(sessionCookie(res.Token, int(auth.ImpersonationTTL.Seconds())))
	return c.JSON(http.StatusOK, res)
}

// EndImpersonation handles POST /staff-impersonate-end.  The token comes
// from the cookie or the bearer header; the cookie is cleared either way.
func (h *StaffHandler) EndImpersonation(c echo.Context) error {
	raw := ""
	if ck, err := c.Cookie(impersonationCookie); err == nil {
		raw = ck.Value
	}
	if raw == "" {
		raw = strings.TrimSpace(strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer "))
	}
	c.SetCookie(sessionCookie("", -1))
	if err := h.Staff.EndImpersonation(c.Request().Context(), raw); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Impersonation session ended"})
}

// CreateStaff handles POST /staff-create-user.
func (h *StaffHandler) CreateStaff(c echo.Context) error {
	var in service.CreateStaffInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	st, err := h.Staff.CreateStaff(c.Request().Context(), staffOf(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "staff_user": st})
}

// UpdateStaff handles PUT /staff-update-user.
func (h *StaffHandler) UpdateStaff(c echo.Context) error {
	var in service.UpdateStaffInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	st, err := h.Staff.UpdateStaff(c.Request().Context(), staffOf(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"staff": st})
}

// ListStaff handles GET /staff-manage-users.
func (h *StaffHandler) ListStaff(c echo.Context) error {
	list, err := h.Staff.ListStaff(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"staff": list})
}

// UpdateVetting handles POST /staff-update-vetting.
func (h *StaffHandler) UpdateVetting(c echo.Context) error {
	var body struct {
		UserID            string `json:"userId"`
		VettingStatus     string `json:"vettingStatus"`
		Note              string `json:"note"`
		Notes             string `json:"notes"`
		RequestedInfoText string `json:"requestedInfoText"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	note := body.Note
	if note == "" {
		note = body.Notes
	}
	res, err := h.Vetting.SetStatus(c.Request().Context(), service.SetStatusInput{
		UserID:            body.UserID,
		Status:            model.VettingStatus(body.VettingStatus),
		Staff:             staffOf(c),
		Note:              note,
		RequestedInfoText: body.RequestedInfoText,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":        true,
		"previousStatus": res.PreviousStatus,
		"newStatus":      res.NewStatus,
		"emailSent":      res.EmailSent,
		"emailResults":   res.EmailResults,
	})
}

// PendingVetting handles GET /staff-pending-vetting?status=.
func (h *StaffHandler) PendingVetting(c echo.Context) error {
	users, err := h.Review.Pending(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "users": users, "count": len(users)})
}

// ProfileForVetting handles GET /staff-profile-for-vetting?userId=.
func (h *StaffHandler) ProfileForVetting(c echo.Context) error {
	p, err := h.Review.Profile(c.Request().Context(), c.QueryParam("userId"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
