package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/auth"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// StaffStore is the staff registry plus its audit trail.
type StaffStore interface {
	GetByEmail(ctx context.Context, email string) (model.StaffUser, error)
	GetByID(ctx context.Context, id string) (model.StaffUser, error)
	GetActiveByUserID(ctx context.Context, userID string) (model.StaffUser, error)
	List(ctx context.Context) ([]model.StaffUser, error)
	Create(ctx context.Context, u model.StaffUser) (model.StaffUser, error)
	Update(ctx context.Context, id string, p repository.StaffPatch) (model.StaffUser, error)
	SetPasswordHash(ctx context.Context, staffID, hash string) error
	InsertAudit(ctx context.Context, e repository.AuditEntry) error
}

// SessionStore persists impersonation sessions.
type SessionStore interface {
	Create(ctx context.Context, staffID, userID, tokenHash string, exp time.Time) (model.ImpersonationSession, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (model.ImpersonationSession, error)
	End(ctx context.Context, id string) error
	EndAllForStaff(ctx context.Context, staffID string) error
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

const errBadCredentials = UnauthorizedError("Invalid login credentials")

// StaffService signs staff in and manages impersonation sessions.
type StaffService struct {
	staff    StaffStore
	sessions SessionStore
	users    UserLookup
	secret   string
	issuer   string
	ttl      time.Duration
	cost     int
	logger   *log.Logger
}

func NewStaffService(staff StaffStore, sessions SessionStore, users UserLookup, secret, issuer string, ttl time.Duration, cost int, logger *log.Logger) *StaffService {
	if logger == nil {
		logger = log.Default()
	}
	return &StaffService{staff: staff, sessions: sessions, users: users, secret: secret, issuer: issuer, ttl: ttl, cost: cost, logger: logger}
}

func (s *StaffService) audit(ctx context.Context, e repository.AuditEntry) {
	if err := s.staff.InsertAudit(ctx, e); err != nil {
		s.logger.Printf("staff: audit %s failed: %v", e.ActionType, err)
	}
}

// Session is the bearer token handed to a signed-in staff member.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
}

type LoginResult struct {
	Session Session         `json:"session"`
	Staff   model.StaffUser `json:"staff"`
}

// Login checks the bcrypt password of an active staff member and returns
// a signed session token.
func (s *StaffService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResult{}, invalid("Email and password are required")
	}
	st, err := s.staff.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return LoginResult{}, errBadCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	ok, rehash := auth.CheckPassword(st.PasswordHash, password, s.cost)
	if !ok {
		s.logger.Printf("staff: failed login for %s", st.Email)
		return LoginResult{}, errBadCredentials
	}
	if !st.IsActive {
		return LoginResult{}, ForbiddenError("Not authorized as staff")
	}
	if rehash {
		if h, err := auth.HashPassword(password, s.cost); err == nil {
			if err := s.staff.SetPasswordHash(ctx, st.ID, h); err != nil {
				s.logger.Printf("staff: rehash %s: %v", st.ID, err)
			}
		}
	}

	tok, err := auth.NewStaffToken(s.secret, s.issuer, st.UserID, st.Email, s.ttl)
	if err != nil {
		return LoginResult{}, err
	}
	s.audit(ctx, repository.AuditEntry{
		StaffID:    st.ID,
		ActionType: "staff_login",
		Details:    map[string]any{"email": st.Email, "login_time": time.Now().UTC().Format(time.RFC3339)},
	})
	s.logger.Printf("staff: %s (%s) signed in", st.ID, st.Role)
	return LoginResult{
		Session: Session{
			AccessToken: tok.Token,
			TokenType:   "bearer",
			ExpiresIn:   int(s.ttl / time.Second),
			ExpiresAt:   tok.Exp.Unix(),
		},
		Staff: st,
	}, nil
}

// ImpersonatedUser is the public identity of the impersonation target.
type ImpersonatedUser struct {
	ID        string  `json:"id"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type ImpersonationResult struct {
	Success          bool             `json:"success"`
	Token            string           `json:"token"`
	SessionID        string           `json:"sessionId"`
	ExpiresAt        time.Time        `json:"expiresAt"`
	ExpiresIn        string           `json:"expiresIn"`
	ImpersonatedUser ImpersonatedUser `json:"impersonatedUser"`
}

// StartImpersonation opens a 15 minute session in which staff acts as
// userID.  Only the hash of the session secret is stored.  Staff accounts
// cannot be impersonated.
func (s *StaffService) StartImpersonation(ctx context.Context, staff model.StaffUser, userID string) (ImpersonationResult, error) {
	if strings.TrimSpace(userID) == "" {
		return ImpersonationResult{}, invalid("userId is required")
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ImpersonationResult{}, errUserNotFound
	}
	if err != nil {
		return ImpersonationResult{}, err
	}
	if _, err := s.staff.GetActiveByUserID(ctx, u.ID); err == nil {
		return ImpersonationResult{}, ForbiddenError("Cannot impersonate a staff user")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return ImpersonationResult{}, err
	}

	raw, err := auth.NewSessionToken()
	if err != nil {
		return ImpersonationResult{}, err
	}
	email := ""
	if u.Email != nil {
		email = *u.Email
	}
	tok, err := auth.NewImpersonationToken(s.secret, s.issuer, u.ID, email, staff.ID, raw)
	if err != nil {
		return ImpersonationResult{}, err
	}
	sess, err := s.sessions.Create(ctx, staff.ID, u.ID, auth.HashToken(raw), tok.Exp)
	if err != nil {
		s.logger.Printf("staff: create impersonation session: %v", err)
		return ImpersonationResult{}, fmt.Errorf("Failed to create impersonation session: %w", err)
	}

	s.audit(ctx, repository.AuditEntry{
		StaffID:     staff.ID,
		ActionType:  "impersonation_start",
		TargetTable: "users",
		TargetID:    u.ID,
		Details: map[string]any{
			"session_id":        sess.ID,
			"target_user_email": email,
			"target_user_name":  u.DisplayName(),
		},
	})
	s.logger.Printf("staff: %s impersonating %s (session %s)", staff.ID, u.ID, sess.ID)
	return ImpersonationResult{
		Success:   true,
		Token:     tok.Token,
		SessionID: sess.ID,
		ExpiresAt: tok.Exp,
		ExpiresIn: "15 minutes",
		ImpersonatedUser: ImpersonatedUser{
			ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
		},
	}, nil
}

// EndImpersonation closes the session behind an impersonation token.  A
// session that already ended is not an error; the audit row is still
// written.
func (s *StaffService) EndImpersonation(ctx context.Context, raw string) error {
	if raw == "" {
		return invalid("No active impersonation session")
	}
	c, err := auth.ParseToken(s.secret, s.issuer, raw)
	if err != nil || !c.Impersonating() {
		return invalid("Invalid or expired impersonation token")
	}

	sessionID := ""
	sess, err := s.sessions.GetByTokenHash(ctx, auth.HashToken(c.SessionToken))
	switch {
	case err == nil:
		sessionID = sess.ID
		if err := s.sessions.End(ctx, sess.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Printf("staff: end session %s: %v", sess.ID, err)
		}
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Printf("staff: no session row for impersonation of %s", c.Subject)
	default:
		s.logger.Printf("staff: session lookup: %v", err)
	}

	s.audit(ctx, repository.AuditEntry{
		StaffID:     c.ImpersonatedBy,
		ActionType:  "impersonation_end",
		TargetTable: "users",
		TargetID:    c.Subject,
		Details:     map[string]any{"session_id": sessionID, "ended_at": time.Now().UTC().Format(time.RFC3339)},
	})
	return nil
}

// Logout ends every live impersonation session the staff member holds.
// Staff tokens are stateless and simply expire.
func (s *StaffService) Logout(ctx context.Context, staff model.StaffUser) error {
	if err := s.sessions.EndAllForStaff(ctx, staff.ID); err != nil {
		return err
	}
	s.audit(ctx, repository.AuditEntry{
		StaffID:    staff.ID,
		ActionType: "staff_logout",
		Details:    map[string]any{"logout_time": time.Now().UTC().Format(time.RFC3339)},
	})
	return nil
}
