package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/gigexecs/gigexecs-api/internal/email"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// VettingUsers is the part of the user store the state machine needs.
type VettingUsers interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	UpdateVettingStatus(ctx context.Context, id string, status model.VettingStatus) error
}

// DecisionLog appends vetting decisions.
type DecisionLog interface {
	InsertDecision(ctx context.Context, d model.VettingDecision) error
}

// AuditLog appends staff audit rows.
type AuditLog interface {
	InsertAudit(ctx context.Context, e repository.AuditEntry) error
}

// TriggerSender fans a lifecycle trigger out to templated emails.
type TriggerSender interface {
	SendTrigger(ctx context.Context, req email.TriggerRequest) email.TriggerResult
}

// emailTriggerFor maps a new vetting status to the notification it sends.
func emailTriggerFor(s model.VettingStatus) (email.Trigger, bool) {
	switch s {
	case model.VettingVerified, model.VettingVetted:
		return email.TriggerApproved, true
	case model.VettingRejected:
		return email.TriggerDeclined, true
	case model.VettingNeedsInfo:
		return email.TriggerNeedsInfo, true
	}
	return "", false
}

// VettingService moves users through the review workflow.
type VettingService struct {
	users     VettingUsers
	decisions DecisionLog
	audit     AuditLog
	emails    TriggerSender
	logger    *log.Logger
}

func NewVettingService(users VettingUsers, decisions DecisionLog, audit AuditLog, emails TriggerSender, logger *log.Logger) *VettingService {
	if logger == nil {
		logger = log.Default()
	}
	return &VettingService{users: users, decisions: decisions, audit: audit, emails: emails, logger: logger}
}

// SetStatusInput is one staff decision.  Note is the free-text staff note;
// RequestedInfoText describes what a needs_info user must supply.
type SetStatusInput struct {
	UserID            string
	Status            model.VettingStatus
	Staff             model.StaffUser
	Note              string
	RequestedInfoText string
}

type SetStatusResult struct {
	PreviousStatus *model.VettingStatus    `json:"previousStatus"`
	NewStatus      model.VettingStatus     `json:"newStatus"`
	EmailSent      bool                    `json:"emailSent"`
	EmailResults   map[string]email.Result `json:"emailResults"`
}

var invalidVettingStatus = "Invalid vettingStatus. Must be one of: " + joinStatuses(model.VettingStatuses)

func joinStatuses(ss []model.VettingStatus) string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}

// SetStatus applies a vetting transition.  Only the status write is fatal;
// audit, decision and email failures are logged and reported in the
// result.
func (s *VettingService) SetStatus(ctx context.Context, in SetStatusInput) (SetStatusResult, error) {
	res := SetStatusResult{NewStatus: in.Status, EmailResults: map[string]email.Result{}}
	if in.UserID == "" {
		return res, invalid("userId is required")
	}
	if in.Status == "" {
		return res, invalid("vettingStatus is required")
	}
	if !in.Status.Valid() {
		return res, invalid(invalidVettingStatus)
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return res, errUserNotFound
	}
	if err != nil {
		return res, err
	}
	res.PreviousStatus = user.VettingStatus

	if err := s.users.UpdateVettingStatus(ctx, in.UserID, in.Status); err != nil {
		s.logger.Printf("vetting: update %s failed: %v", in.UserID, err)
		return res, errors.New("Failed to update vetting status")
	}
	s.logger.Printf("vetting: %s -> %s for user %s by staff %s", user.CurrentVetting(), in.Status, in.UserID, in.Staff.ID)

	var prev any
	if user.VettingStatus != nil {
		prev = string(*user.VettingStatus)
	}
	err = s.audit.InsertAudit(ctx, repository.AuditEntry{
		StaffID:     in.Staff.ID,
		ActionType:  "vetting_status_updated",
		TargetTable: "users",
		TargetID:    in.UserID,
		Details: map[string]any{
			"previous_status": prev,
			"new_status":      string(in.Status),
			"note":            nilIfEmpty(in.Note),
		},
	})
	if err != nil {
		s.logger.Printf("vetting: audit log failed for %s: %v", in.UserID, err)
	}

	if action, ok := model.DecisionFor(in.Status); ok {
		d := model.VettingDecision{
			UserID:    in.UserID,
			StaffID:   in.Staff.ID,
			StaffName: in.Staff.FullName(),
			Action:    action,
			Notes:     strPtr(in.Note),
		}
		if in.Status == model.VettingNeedsInfo {
			d.RequestedInfoText = strPtr(in.RequestedInfoText)
		}
		if err := s.decisions.InsertDecision(ctx, d); err != nil {
			s.logger.Printf("vetting: decision log failed for %s: %v", in.UserID, err)
		}
	}

	trigger, ok := emailTriggerFor(in.Status)
	if !ok {
		return res, nil
	}
	if user.Email == nil || *user.Email == "" {
		s.logger.Printf("vetting: user %s has no email, %s notification not sent", in.UserID, trigger)
		return res, nil
	}
	extra := map[string]string{}
	if item := firstNonEmpty(in.RequestedInfoText, in.Note); item != "" {
		extra["missing_item"] = item
	}
	tr := s.emails.SendTrigger(ctx, email.TriggerRequest{
		Trigger:   trigger,
		UserID:    in.UserID,
		Email:     *user.Email,
		UserType:  user.UserType,
		FirstName: user.FirstNameOr(""),
		Extra:     extra,
	})
	res.EmailSent = tr.Success
	res.EmailResults = tr.Results
	return res, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
