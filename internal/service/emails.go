package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gigexecs/gigexecs-api/internal/email"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// SendAction selects what POST /send-email does.
type SendAction string

const (
	ActionSend          SendAction = "send"
	ActionTrigger       SendAction = "trigger"
	ActionStaff         SendAction = "staff"
	ActionListTemplates SendAction = "list-templates"
)

// ParseSendAction maps the body's action field; empty means send.
func ParseSendAction(s string) (SendAction, error) {
	switch a := SendAction(s); a {
	case "":
		return ActionSend, nil
	case ActionSend, ActionTrigger, ActionStaff, ActionListTemplates:
		return a, nil
	}
	return "", invalid("Unknown action: " + s)
}

// Mailer is the notification dispatcher.
type Mailer interface {
	Configured() bool
	Send(ctx context.Context, req email.SendRequest) email.Result
	SendTrigger(ctx context.Context, req email.TriggerRequest) email.TriggerResult
}

// StaffLookup finds the active staff row behind an auth subject.
type StaffLookup interface {
	GetActiveByUserID(ctx context.Context, userID string) (model.StaffUser, error)
}

type DeliveryHistory interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.EmailDelivery, error)
}

// userTriggers may be fired by any signed-in caller; staffTriggers only
// by staff.
var (
	userTriggers = []email.Trigger{
		email.TriggerEmailVerified, email.TriggerProfileComplete, email.TriggerApproved,
		email.TriggerReminder, email.TriggerActivationNudge,
	}
	staffTriggers = []email.Trigger{email.TriggerNeedsInfo, email.TriggerDeclined}
)

const historyLimit = 100

// EmailService backs the send-email multiplexer and delivery history.
type EmailService struct {
	mailer  Mailer
	users   UserLookup
	history DeliveryHistory
	staff   StaffLookup
	logger  *log.Logger
}

func NewEmailService(mailer Mailer, users UserLookup, history DeliveryHistory, staff StaffLookup, logger *log.Logger) *EmailService {
	if logger == nil {
		logger = log.Default()
	}
	return &EmailService{mailer: mailer, users: users, history: history, staff: staff, logger: logger}
}

// Configured reports whether an email provider is set up.
func (s *EmailService) Configured() bool { return s.mailer != nil && s.mailer.Configured() }

func (s *EmailService) target(ctx context.Context, userID string) (model.User, string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return u, "", errUserNotFound
	}
	if err != nil {
		return u, "", err
	}
	if u.Email == nil || *u.Email == "" {
		return u, "", invalid("User has no email address")
	}
	return u, *u.Email, nil
}

// recipient resolves the user an email goes to.  Callers address
// themselves; only active staff may name another user.
func (s *EmailService) recipient(ctx context.Context, callerID, userID string) (string, error) {
	if userID == "" || userID == callerID {
		return callerID, nil
	}
	if s.staff != nil {
		_, err := s.staff.GetActiveByUserID(ctx, callerID)
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
	}
	s.logger.Printf("email: %s denied sending to %s", callerID, userID)
	return "", ForbiddenError("Only staff can send email to another user")
}

// SendInput is the body of the send action.
type SendInput struct {
	TemplateID   string         `json:"templateId"`
	Variables    map[string]any `json:"variables"`
	LifecycleKey string         `json:"lifecycleKey"`
	UserID       string         `json:"userId"`
}

// Send delivers one template to the given user or the caller.  Provider
// and delivery log failures come back in the Result, not as an error.
func (s *EmailService) Send(ctx context.Context, callerID string, in SendInput) (email.Result, error) {
	if !s.Configured() {
		return email.Result{}, errEmailUnavailable
	}
	if in.TemplateID == "" {
		return email.Result{}, invalid("templateId is required")
	}
	id, ok := email.ParseTemplateID(in.TemplateID)
	if !ok {
		return email.Result{}, &InputError{
			Msg:   "Invalid templateId: " + in.TemplateID,
			Extra: map[string]any{"availableTemplates": email.TemplateIDs},
		}
	}
	to, err := s.recipient(ctx, callerID, in.UserID)
	if err != nil {
		return email.Result{}, err
	}
	u, addr, err := s.target(ctx, to)
	if err != nil {
		return email.Result{}, err
	}

	vars := map[string]string{"first_name": u.FirstNameOr("there"), "email": addr}
	for k, v := range in.Variables {
		if v == nil {
			continue
		}
		vars[k] = fmt.Sprint(v)
	}
	return s.mailer.Send(ctx, email.SendRequest{
		UserID:       u.ID,
		Email:        addr,
		TemplateID:   id,
		Variables:    vars,
		LifecycleKey: in.LifecycleKey,
	}), nil
}

func joinTriggers(ts []email.Trigger) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func allowed(t email.Trigger, ts []email.Trigger) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}

// TriggerInput is the body of the trigger action.
type TriggerInput struct {
	Trigger        string            `json:"trigger"`
	UserID         string            `json:"userId"`
	ExtraVariables map[string]string `json:"extraVariables"`
}

// Trigger fans a user-facing lifecycle trigger out to its templates.
func (s *EmailService) Trigger(ctx context.Context, callerID string, in TriggerInput) (email.TriggerResult, error) {
	if !s.Configured() {
		return email.TriggerResult{}, errEmailUnavailable
	}
	t := email.Trigger(in.Trigger)
	if !allowed(t, userTriggers) {
		return email.TriggerResult{}, invalid("Invalid trigger. Must be one of: " + joinTriggers(userTriggers))
	}
	to, err := s.recipient(ctx, callerID, in.UserID)
	if err != nil {
		return email.TriggerResult{}, err
	}
	u, addr, err := s.target(ctx, to)
	if err != nil {
		return email.TriggerResult{}, err
	}
	return s.mailer.SendTrigger(ctx, email.TriggerRequest{
		Trigger:   t,
		UserID:    u.ID,
		Email:     addr,
		UserType:  u.UserType,
		FirstName: u.FirstNameOr(""),
		Extra:     in.ExtraVariables,
	}), nil
}

// StaffEmailInput is the body of the staff action.
type StaffEmailInput struct {
	Trigger     string `json:"trigger"`
	UserID      string `json:"userId"`
	MissingItem string `json:"missingItem"`
}

type StaffAction struct {
	Trigger      email.Trigger `json:"trigger"`
	TargetUserID string        `json:"targetUserId"`
	StaffID      string        `json:"staffId"`
}

type StaffEmailResult struct {
	email.TriggerResult
	StaffAction StaffAction `json:"staffAction"`
}

// StaffTrigger sends a needs_info or declined notice on behalf of staff.
func (s *EmailService) StaffTrigger(ctx context.Context, staff model.StaffUser, in StaffEmailInput) (StaffEmailResult, error) {
	if !s.Configured() {
		return StaffEmailResult{}, errEmailUnavailable
	}
	t := email.Trigger(in.Trigger)
	if !allowed(t, staffTriggers) {
		return StaffEmailResult{}, invalid("Invalid staff trigger. Must be one of: " + joinTriggers(staffTriggers))
	}
	if strings.TrimSpace(in.UserID) == "" {
		return StaffEmailResult{}, invalid("userId is required for staff actions")
	}
	u, addr, err := s.target(ctx, in.UserID)
	if err != nil {
		return StaffEmailResult{}, err
	}
	res := s.mailer.SendTrigger(ctx, email.TriggerRequest{
		Trigger:   t,
		UserID:    u.ID,
		Email:     addr,
		UserType:  u.UserType,
		FirstName: u.FirstNameOr(""),
		Extra:     map[string]string{"missing_item": firstNonEmpty(in.MissingItem, "[Please contact us for details]")},
	})
	s.logger.Printf("email: staff action %s for user %s by staff %s", t, u.ID, staff.ID)
	return StaffEmailResult{
		TriggerResult: res,
		StaffAction:   StaffAction{Trigger: t, TargetUserID: u.ID, StaffID: staff.ID},
	}, nil
}

type TemplateList struct {
	Templates []email.TemplateID `json:"templates"`
	Triggers  []email.Trigger    `json:"triggers"`
}

// Templates lists every template id and trigger.
func (s *EmailService) Templates() TemplateList {
	return TemplateList{Templates: email.TemplateIDs, Triggers: email.Triggers}
}

// History returns the newest delivery log rows for a user.
func (s *EmailService) History(ctx context.Context, userID string) ([]model.EmailDelivery, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId query parameter required")
	}
	return s.history.ListByUser(ctx, userID, historyLimit)
}
