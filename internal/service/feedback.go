package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/email"
)

// FeedbackService forwards in-app feedback to the support inbox.  It goes
// straight to the provider: feedback has no lifecycle key and every
// submission is delivered.
type FeedbackService struct {
	provider email.Provider
	users    UserLookup
	logger   *log.Logger
	now      func() time.Time
}

func NewFeedbackService(provider email.Provider, users UserLookup, logger *log.Logger) *FeedbackService {
	if logger == nil {
		logger = log.Default()
	}
	return &FeedbackService{provider: provider, users: users, logger: logger, now: time.Now}
}

type FeedbackInput struct {
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Feedback string `json:"feedback"`
}

type FeedbackResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// Submit sends one feedback message with the caller as reply-to.  The
// profile lookup is best effort; a missing row falls back to the token
// email.
func (s *FeedbackService) Submit(ctx context.Context, callerID, callerEmail string, in FeedbackInput) (FeedbackResult, error) {
	if s.provider == nil {
		return FeedbackResult{}, errEmailUnavailable
	}
	if strings.TrimSpace(in.Category) == "" {
		return FeedbackResult{}, invalid("Category is required")
	}
	if strings.TrimSpace(in.Feedback) == "" {
		return FeedbackResult{}, invalid("Feedback message is required")
	}

	f := email.Feedback{
		UserID:      callerID,
		UserName:    "Unknown",
		UserEmail:   callerEmail,
		UserType:    "unknown",
		Category:    in.Category,
		Subject:     strings.TrimSpace(in.Subject),
		Body:        strings.TrimSpace(in.Feedback),
		SubmittedAt: s.now(),
	}
	if u, err := s.users.GetByID(ctx, callerID); err == nil {
		if name := u.DisplayName(); name != "" {
			f.UserName = name
		}
		if u.Email != nil && *u.Email != "" {
			f.UserEmail = *u.Email
		}
		f.UserType = string(u.UserType)
	} else {
		s.logger.Printf("feedback: profile lookup for %s: %v", callerID, err)
	}

	r, err := email.RenderFeedback(f)
	if err != nil {
		return FeedbackResult{}, err
	}
	id, err := s.provider.Send(ctx, email.Message{
		To:      email.FeedbackInbox,
		Subject: r.Subject,
		HTML:    r.HTML,
		Text:    r.Text,
		ReplyTo: f.UserEmail,
	})
	if err != nil {
		s.logger.Printf("feedback: send for %s: %v", callerID, err)
		return FeedbackResult{}, feedbackSendError{err}
	}
	s.logger.Printf("feedback: %s submitted %s feedback (message %s)", callerID, in.Category, id)
	return FeedbackResult{Success: true, Message: "Feedback submitted successfully", MessageID: id}, nil
}

// feedbackSendError hides the provider error behind a fixed message.
type feedbackSendError struct{ err error }

func (e feedbackSendError) Error() string { return "Failed to send feedback email" }
func (e feedbackSendError) Unwrap() error { return e.err }
