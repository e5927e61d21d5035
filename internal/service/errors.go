// Package service holds the GigExecs workflows that sit between the HTTP
// handlers and the repositories: vetting, reminders, the AI profile
// pipeline, registration, staff sessions and external gigs.
package service

import "strings"

// InputError is a request the caller must fix.  Details lists the
// individual validation failures when there are several; Extra carries
// additional response fields such as the list of valid choices.
type InputError struct {
	Msg     string
	Details []string
	Extra   map[string]any
}

func (e *InputError) Error() string {
	if len(e.Details) == 0 {
		return e.Msg
	}
	return e.Msg + ": " + strings.Join(e.Details, "; ")
}

func invalid(msg string, details ...string) error {
	return &InputError{Msg: msg, Details: details}
}

// NotFoundError names a missing resource ("User not found").
type NotFoundError string

func (e NotFoundError) Error() string { return string(e) }

// ForbiddenError is an ownership or role failure.
type ForbiddenError string

func (e ForbiddenError) Error() string { return string(e) }

// ConflictError reports a uniqueness violation.
type ConflictError string

func (e ConflictError) Error() string { return string(e) }

// UnavailableError reports a dependency that is not configured.
type UnavailableError string

func (e UnavailableError) Error() string { return string(e) }

// UnauthorizedError is a credential failure outside the bearer gate
// (staff login, ended impersonation sessions).
type UnauthorizedError string

func (e UnauthorizedError) Error() string { return string(e) }

const (
	errAIUnavailable    = UnavailableError("AI service not configured. Please contact support.")
	errEmailUnavailable = UnavailableError("Email service not configured")
	errUserNotFound     = NotFoundError("User not found")
)
