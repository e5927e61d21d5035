package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/service"
)

// GigHandler serves the external gig board: staff curation, click
// reports and click tracking by professionals.
type GigHandler struct {
	Gigs *service.ExternalGigService
}

func NewGigHandler(gigs *service.ExternalGigService) *GigHandler {
	if gigs == nil {
		panic("nil service passed to NewGigHandler")
	}
	return &GigHandler{Gigs: gigs}
}

// payload reads the body as a JSON object of raw fields.  An empty body
// yields an empty map.
func payload(c echo.Context) (map[string]json.RawMessage, error) {
	b, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	if strings.TrimSpace(string(b)) == "" {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, &service.InputError{Msg: "Invalid JSON in request body"}
	}
	return out, nil
}

// List handles GET /staff-external-gigs-list.
func (h *GigHandler) List(c echo.Context) error {
	gigs, err := h.Gigs.List(c.Request().Context(), staffOf(c), service.ListGigsInput{
		Status: c.QueryParam("status"),
		Expiry: c.QueryParam("expiry"),
		Search: c.QueryParam("search"),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"projects": gigs})
}

// Create handles POST /staff-external-gigs-create.
func (h *GigHandler) Create(c echo.Context) error {
	var in service.GigInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	p, err := h.Gigs.Create(c.Request().Context(), staffOf(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"project": p})
}

// Update handles PATCH /staff-external-gigs-update.  Only the fields
// present in the body change.
func (h *GigHandler) Update(c echo.Context) error {
	body, err := payload(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Gigs.Update(c.Request().Context(), staffOf(c), body)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"project": p})
}

// Delete handles DELETE /staff-external-gigs-delete.  The id comes from
// the body or the id query parameter.
func (h *GigHandler) Delete(c echo.Context) error {
	body, err := payload(c)
	if err != nil {
		return fail(c, err)
	}
	id := body["id"]
	if len(id) == 0 {
		if q := c.QueryParam("id"); q != "" {
			id = json.RawMessage(strconv.Quote(q))
		}
	}
	res, err := h.Gigs.Delete(c.Request().Context(), staffOf(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Clicks handles GET /staff-external-gig-clicks.  With project_id it
// drills into one gig, otherwise it summarises every gig.
func (h *GigHandler) Clicks(c echo.Context) error {
	cr, err := service.ClickRangeFrom(c.QueryParam("start_date"), c.QueryParam("end_date"))
	if err != nil {
		return fail(c, err)
	}
	ctx := c.Request().Context()
	if raw := c.QueryParam("project_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return bad(c, "Invalid project_id")
		}
		rep, err := h.Gigs.ProjectClicks(ctx, id, cr)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, rep)
	}
	rep, err := h.Gigs.ClickSummary(ctx, cr)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// TrackClick handles POST /track-external-gig-click.
func (h *GigHandler) TrackClick(c echo.Context) error {
	var in service.TrackClickInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	res, err := h.Gigs.TrackClick(c.Request().Context(), caller(c).ID, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
