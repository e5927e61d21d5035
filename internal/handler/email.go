package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/middleware"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
	"github.com/gigexecs/gigexecs-api/internal/service"
)

// EmailHandler serves the send-email multiplexer, delivery history and
// the manual reminder run.
type EmailHandler struct {
	Emails    *service.EmailService
	Reminders *service.ReminderEngine
	Staff     middleware.StaffLookup
}

func NewEmailHandler(emails *service.EmailService, reminders *service.ReminderEngine, staff middleware.StaffLookup) *EmailHandler {
	if emails == nil || reminders == nil || staff == nil {
		panic("nil dependency passed to NewEmailHandler")
	}
	return &EmailHandler{Emails: emails, Reminders: reminders, Staff: staff}
}

// Send handles POST /send-email.  The action field picks the operation;
// the rest of the body is decoded per action.
func (h *EmailHandler) Send(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, err)
	}
	var head struct {
		Action string `json:"action"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &head); err != nil {
			return bad(c, "Invalid JSON in request body")
		}
	}
	action, err := service.ParseSendAction(head.Action)
	if err != nil {
		return fail(c, err)
	}
	if !h.Emails.Configured() {
		return c.JSON(http.StatusInternalServerError, errorBody("Email service not configured"))
	}
	decode := func(v any) error {
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, v)
	}

	ctx := c.Request().Context()
	switch action {
	case service.ActionSend:
		var in service.SendInput
		if err := decode(&in); err != nil {
			return bad(c, "Invalid JSON in request body")
		}
		res, err := h.Emails.Send(ctx, caller(c).ID, in)
		if err != nil {
			return fail(c, err)
		}
		switch {
		case res.Skipped:
			return c.JSON(http.StatusOK, echo.Map{
				"success": true, "skipped": true, "message": "Email already sent (idempotency check)",
			})
		case !res.Success:
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": res.Error})
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "messageId": res.MessageID})

	case service.ActionTrigger:
		var in service.TriggerInput
		if err := decode(&in); err != nil {
			return bad(c, "Invalid JSON in request body")
		}
		res, err := h.Emails.Trigger(ctx, caller(c).ID, in)
		if err != nil {
			return fail(c, err)
		}
		status := http.StatusOK
		if !res.Success {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, res)

	case service.ActionStaff:
		st, err := h.Staff.GetActiveByUserID(ctx, caller(c).ID)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusForbidden, errorBody("Not authorized as staff"))
		}
		if err != nil {
			return fail(c, err)
		}
		if !st.Role.AtLeast(model.StaffSupport) {
			return c.JSON(http.StatusForbidden, errorBody("Insufficient permissions. Required: support, User: "+string(st.Role)))
		}
		var in service.StaffEmailInput
		if err := decode(&in); err != nil {
			return bad(c, "Invalid JSON in request body")
		}
		res, err := h.Emails.StaffTrigger(ctx, st, in)
		if err != nil {
			return fail(c, err)
		}
		status := http.StatusOK
		if !res.Success {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, res)

	case service.ActionListTemplates:
		return c.JSON(http.StatusOK, h.Emails.Templates())
	}
	return bad(c, "Unknown action: "+string(action))
}

// History handles GET /email-history?userId=.
func (h *EmailHandler) History(c echo.Context) error {
	rows, err := h.Emails.History(c.Request().Context(), c.QueryParam("userId"))
	if err != nil {
		return fail(c, err)
	}
	if rows == nil {
		rows = []model.EmailDelivery{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "deliveries": rows})
}

// RunReminders handles POST /email-reminders, called by the scheduler
// with the service-role key.
func (h *EmailHandler) RunReminders(c echo.Context) error {
	res, err := h.Reminders.Run(c.Request().Context())
	if errors.Is(err, service.ErrRunInProgress) {
		return c.JSON(http.StatusConflict, errorBody(err.Error()))
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
