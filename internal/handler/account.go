package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/auth"
	"github.com/gigexecs/gigexecs-api/internal/middleware"
	"github.com/gigexecs/gigexecs-api/internal/repository"
	"github.com/gigexecs/gigexecs-api/internal/service"
)

func caller(c echo.Context) auth.User {
	u, _ := middleware.CurrentUser(c)
	return u
}

// SkillCatalog lists the selectable skills.
type SkillCatalog interface {
	Skills(ctx context.Context) ([]repository.NamedID, error)
}

// AccountHandler serves sign-up and the small account lookups the web app
// makes.
type AccountHandler struct {
	Accounts *service.RegistrationService
	Skills   SkillCatalog
}

func NewAccountHandler(accounts *service.RegistrationService, skills SkillCatalog) *AccountHandler {
	if accounts == nil || skills == nil {
		panic("nil dependency passed to NewAccountHandler")
	}
	return &AccountHandler{Accounts: accounts, Skills: skills}
}

// Register handles POST /register-user.
func (h *AccountHandler) Register(c echo.Context) error {
	var in service.RegisterInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	res, err := h.Accounts.Register(c.Request().Context(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ClientData handles POST /get-client-data.
func (h *AccountHandler) ClientData(c echo.Context) error {
	var body struct {
		CreatorIDs []string `json:"creatorIds"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Accounts.ClientData(c.Request().Context(), body.CreatorIDs)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// UserSkills handles POST /get-user-skills.  The body userId defaults to
// the caller.
func (h *AccountHandler) UserSkills(c echo.Context) error {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	if body.UserID == "" {
		body.UserID = caller(c).ID
	}
	res, err := h.Accounts.UserSkills(c.Request().Context(), body.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListSkills handles GET /skills.
func (h *AccountHandler) ListSkills(c echo.Context) error {
	skills, err := h.Skills.Skills(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	if skills == nil {
		skills = []repository.NamedID{}
	}
	return c.JSON(http.StatusOK, echo.Map{"skills": skills})
}
