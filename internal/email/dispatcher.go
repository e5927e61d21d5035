package email

import (
	"context"
	"log"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// DeliveryLog is the reservation store behind idempotent sends.
type DeliveryLog interface {
	Reserve(ctx context.Context, d model.EmailDelivery, inflight time.Duration) (string, bool, error)
	MarkCalling(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id, messageID string) error
	Release(ctx context.Context, id string) error
}

// Trigger is a lifecycle event that maps to one or more templates.
type Trigger string

const (
	TriggerEmailVerified   Trigger = "email_verified"
	TriggerProfileComplete Trigger = "profile_complete"
	TriggerApproved        Trigger = "approved"
	TriggerDeclined        Trigger = "declined"
	TriggerNeedsInfo       Trigger = "needs_info"
	TriggerReminder        Trigger = "reminder"
	TriggerActivationNudge Trigger = "activation_nudge"
)

// Triggers lists every trigger.
var Triggers = []Trigger{
	TriggerEmailVerified, TriggerProfileComplete, TriggerApproved, TriggerDeclined,
	TriggerNeedsInfo, TriggerReminder, TriggerActivationNudge,
}

// TemplatesFor returns the templates sent for trigger t to a user of the
// given type.  Anyone who is not a consultant gets the client variant.
func TemplatesFor(t Trigger, userType model.UserType) []TemplateID {
	pro := userType == model.UserTypeConsultant
	pick := func(p, c TemplateID) []TemplateID {
		if pro {
			return []TemplateID{p}
		}
		return []TemplateID{c}
	}
	switch t {
	case TriggerEmailVerified:
		if pro {
			return []TemplateID{EmailVerified, WelcomeProfessional}
		}
		return []TemplateID{EmailVerified, WelcomeClient}
	case TriggerProfileComplete:
		return pick(VettingStartedProfessional, ReviewStartedClient)
	case TriggerApproved:
		return pick(ApprovedProfessional, ApprovedClient)
	case TriggerDeclined:
		return pick(DeclinedProfessional, DeclinedClient)
	case TriggerNeedsInfo:
		return pick(NeedsInfoProfessional, NeedsInfoClient)
	case TriggerReminder:
		return pick(ReminderProfessional, ReminderClient)
	case TriggerActivationNudge:
		return pick(ActivationNudgeProfessional, ActivationNudgeClient)
	}
	return nil
}

// Result is the outcome of one templated send.
type Result struct {
	Success   bool   `json:"success"`
	Skipped   bool   `json:"skipped,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendRequest describes one templated send.  An empty LifecycleKey
// defaults to "default_<template>".
type SendRequest struct {
	UserID       string
	Email        string
	TemplateID   TemplateID
	Variables    map[string]string
	LifecycleKey string
}

// TriggerRequest describes a trigger fan-out.
type TriggerRequest struct {
	Trigger   Trigger
	UserID    string
	Email     string
	UserType  model.UserType
	FirstName string
	Extra     map[string]string
}

// TriggerResult aggregates the per-template results of a trigger.
type TriggerResult struct {
	Success bool              `json:"success"`
	Results map[string]Result `json:"results"`
}

// Dispatcher sends catalog emails at most once per (user, lifecycle key).
type Dispatcher struct {
	catalog  *Catalog
	log      DeliveryLog
	provider Provider
	logger   *log.Logger

	// Inflight is how long a pending reservation blocks other senders.
	Inflight time.Duration
	// Pause separates consecutive sends of one trigger.
	Pause time.Duration
	// MarkBackoff is the first delay between MarkSent attempts; it doubles.
	MarkBackoff time.Duration
}

const markAttempts = 3

// NewDispatcher wires a dispatcher.  provider may be nil when no provider
// key is configured; Configured then reports false.
func NewDispatcher(c *Catalog, dl DeliveryLog, p Provider, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		catalog:     c,
		log:         dl,
		provider:    p,
		logger:      logger,
		Inflight:    10 * time.Minute,
		Pause:       100 * time.Millisecond,
		MarkBackoff: 200 * time.Millisecond,
	}
}

// Configured reports whether a provider is available.
func (d *Dispatcher) Configured() bool { return d != nil && d.provider != nil }

// Catalog exposes the template catalog.
func (d *Dispatcher) Catalog() *Catalog { return d.catalog }

// Send renders and delivers one template unless the (user, lifecycle key)
// pair was already sent or is being sent.  A failed provider call releases
// the reservation so a later attempt can retry.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) Result {
	if !d.catalog.Has(req.TemplateID) {
		return Result{Error: "Template not found: " + string(req.TemplateID)}
	}
	if d.provider == nil {
		return Result{Error: "Email service not configured"}
	}
	key := req.LifecycleKey
	if key == "" {
		key = "default_" + string(req.TemplateID)
	}

	rendered, err := d.catalog.Render(req.TemplateID, req.Variables)
	if err != nil {
		d.logger.Printf("email: render %s: %v", req.TemplateID, err)
		return Result{Error: "Template render failed: " + err.Error()}
	}

	subject := rendered.Subject
	rowID, ok, err := d.log.Reserve(ctx, model.EmailDelivery{
		UserID:       req.UserID,
		EmailTo:      req.Email,
		TemplateID:   string(req.TemplateID),
		LifecycleKey: key,
		Subject:      &subject,
	}, d.Inflight)
	if err != nil {
		d.logger.Printf("email: reserve %s/%s for user %s: %v", req.TemplateID, key, req.UserID, err)
		return Result{Error: "Failed to record email delivery: " + err.Error()}
	}
	if !ok {
		d.logger.Printf("email: skipping duplicate %s for user %s (lifecycle: %s)", req.TemplateID, req.UserID, key)
		return Result{Success: true, Skipped: true}
	}

	if err := d.log.MarkCalling(ctx, rowID); err != nil {
		d.logger.Printf("email: stamp reservation %s: %v", rowID, err)
		if rerr := d.log.Release(context.WithoutCancel(ctx), rowID); rerr != nil {
			d.logger.Printf("email: release reservation %s: %v", rowID, rerr)
		}
		return Result{Error: "Failed to record email delivery: " + err.Error()}
	}

	msgID, err := d.provider.Send(ctx, Message{
		To:      req.Email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if err != nil {
		d.logger.Printf("email: provider error for %s to user %s: %v", req.TemplateID, req.UserID, err)
		// context may be cancelled already; the release must still land
		if rerr := d.log.Release(context.WithoutCancel(ctx), rowID); rerr != nil {
			d.logger.Printf("email: release reservation %s: %v", rowID, rerr)
		}
		return Result{Error: err.Error()}
	}
	d.markSent(context.WithoutCancel(ctx), rowID, msgID)
	d.logger.Printf("email: sent %s to %s (message %s)", req.TemplateID, req.Email, msgID)
	return Result{Success: true, MessageID: msgID}
}

// markSent retries the sent stamp.  If every attempt fails the row stays
// pending with provider_called_at set, which Reserve already treats as sent.
func (d *Dispatcher) markSent(ctx context.Context, rowID, msgID string) {
	wait := d.MarkBackoff
	for attempt := 1; ; attempt++ {
		err := d.log.MarkSent(ctx, rowID, msgID)
		if err == nil {
			return
		}
		d.logger.Printf("email: mark sent %s (message %s) attempt %d: %v", rowID, msgID, attempt, err)
		if attempt == markAttempts {
			return
		}
		time.Sleep(wait)
		wait *= 2
	}
}

// SendTrigger sends every template mapped to the trigger, each under the
// lifecycle key "<trigger>_<template>".  Success requires every template
// to succeed or be skipped.
func (d *Dispatcher) SendTrigger(ctx context.Context, req TriggerRequest) TriggerResult {
	ids := TemplatesFor(req.Trigger, req.UserType)
	out := TriggerResult{Success: true, Results: map[string]Result{}}
	if len(ids) == 0 {
		d.logger.Printf("email: no templates for trigger %s (userType: %s)", req.Trigger, req.UserType)
		return out
	}

	first := req.FirstName
	if first == "" {
		first = "there"
	}
	vars := map[string]string{"first_name": first, "email": req.Email}
	for k, v := range req.Extra {
		vars[k] = v
	}

	for i, id := range ids {
		if i > 0 && d.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(d.Pause):
			}
		}
		r := d.Send(ctx, SendRequest{
			UserID:       req.UserID,
			Email:        req.Email,
			TemplateID:   id,
			Variables:    vars,
			LifecycleKey: string(req.Trigger) + "_" + string(id),
		})
		out.Results[string(id)] = r
		if !r.Success {
			out.Success = false
		}
	}
	return out
}
