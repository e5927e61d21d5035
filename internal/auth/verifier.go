package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// User is the authenticated caller attached to a request.
type User struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	Aud            string         `json:"aud"`
	Role           string         `json:"role"`
	AppMetadata    map[string]any `json:"app_metadata"`
	UserMetadata   map[string]any `json:"user_metadata"`
	ImpersonatedBy string         `json:"impersonated_by,omitempty"`
	SessionToken   string         `json:"-"`
}

// Failure is a verification error whose message is safe to return to the
// caller as is.
type Failure string

func (f Failure) Error() string { return string(f) }

const (
	ErrMissingHeader = Failure("Missing Authorization header")
	ErrBadHeader     = Failure("Invalid Authorization header format")
	ErrBadStructure  = Failure("Invalid token structure")
	ErrSessionEnded  = Failure("Impersonation session has ended")
)

// SessionLookup resolves impersonation sessions by token hash.
type SessionLookup interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (model.ImpersonationSession, error)
}

// Verifier checks bearer tokens against the shared secret.  Sessions is
// optional; without it impersonation tokens are trusted until they expire.
type Verifier struct {
	Secret   string
	Issuer   string
	Sessions SessionLookup
	Now      func() time.Time
}

// Verify parses an Authorization header value and returns the caller.
// Every error it returns is a Failure.
func (v *Verifier) Verify(ctx context.Context, header string) (User, error) {
	if header == "" {
		return User{}, ErrMissingHeader
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return User{}, ErrBadHeader
	}
	c, err := ParseToken(v.Secret, v.Issuer, raw)
	if errors.Is(err, ErrInvalidStructure) {
		return User{}, ErrBadStructure
	}
	if err != nil {
		return User{}, Failure(fmt.Sprintf("JWT verification failed: %v", err))
	}

	if c.Impersonating() && v.Sessions != nil {
		s, err := v.Sessions.GetByTokenHash(ctx, HashToken(c.SessionToken))
		now := time.Now()
		if v.Now != nil {
			now = v.Now()
		}
		if err != nil || !s.Live(now) || s.ImpersonatedUserID != c.Subject {
			return User{}, ErrSessionEnded
		}
	}

	u := User{
		ID:             c.Subject,
		Email:          c.Email,
		Aud:            c.Audience[0],
		Role:           c.Role,
		AppMetadata:    c.AppMetadata,
		UserMetadata:   c.UserMetadata,
		ImpersonatedBy: c.ImpersonatedBy,
		SessionToken:   c.SessionToken,
	}
	if u.Role == "" {
		u.Role = "authenticated"
	}
	if u.AppMetadata == nil {
		u.AppMetadata = map[string]any{}
	}
	if u.UserMetadata == nil {
		u.UserMetadata = map[string]any{}
	}
	return u, nil
}
