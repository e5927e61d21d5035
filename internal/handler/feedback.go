package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/service"
)

type FeedbackHandler struct {
	Feedback *service.FeedbackService
}

func NewFeedbackHandler(feedback *service.FeedbackService) *FeedbackHandler {
	if feedback == nil {
		panic("nil service passed to NewFeedbackHandler")
	}
	return &FeedbackHandler{Feedback: feedback}
}

// Submit handles POST /submit-feedback.
func (h *FeedbackHandler) Submit(c echo.Context) error {
	var in service.FeedbackInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	u := caller(c)
	res, err := h.Feedback.Submit(c.Request().Context(), u.ID, u.Email, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
