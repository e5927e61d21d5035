package model

import "time"

// StaffRole is an internal operator role.  Roles form a strict hierarchy
// and permission checks compare rank, never identity.
type StaffRole string

const (
	StaffSupport   StaffRole = "support"
	StaffAdmin     StaffRole = "admin"
	StaffSuperUser StaffRole = "super_user"
)

// Rank returns the hierarchy level of the role, 0 for unknown roles.
func (r StaffRole) Rank() int {
	switch r {
	case StaffSupport:
		return 1
	case StaffAdmin:
		return 2
	case StaffSuperUser:
		return 3
	}
	return 0
}

// AtLeast reports whether r ranks at or above min.  Unknown roles never
// satisfy a requirement.
func (r StaffRole) AtLeast(min StaffRole) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// StaffUser represents an active or deactivated operator in `staff_users`.
// UserID is the auth subject the operator signs in as.
type StaffUser struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         StaffRole `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName is used as staff_name on vetting decisions.
func (s StaffUser) FullName() string {
	switch {
	case s.FirstName == "" && s.LastName == "":
		return s.Email
	case s.LastName == "":
		return s.FirstName
	case s.FirstName == "":
		return s.LastName
	}
	return s.FirstName + " " + s.LastName
}

// ImpersonationSession mirrors `impersonation_sessions`.  Only the SHA-256
// of the session token is stored.
type ImpersonationSession struct {
	ID                 string     `json:"id"`
	StaffID            string     `json:"staff_id"`
	ImpersonatedUserID string     `json:"impersonated_user_id"`
	SessionTokenHash   string     `json:"-"`
	IsActive           bool       `json:"is_active"`
	ExpiresAt          time.Time  `json:"expires_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Live reports whether the session can still authorize requests at now.
func (s ImpersonationSession) Live(now time.Time) bool {
	return s.IsActive && s.EndedAt == nil && now.Before(s.ExpiresAt)
}

// AuditLog is an append-only record of a staff action.
type AuditLog struct {
	ID          uint64    `json:"id"`
	StaffID     string    `json:"staff_id"`
	ActionType  string    `json:"action_type"`
	TargetTable *string   `json:"target_table,omitempty"`
	TargetID    *string   `json:"target_id,omitempty"`
	Details     RawJSON   `json:"details"`
	CreatedAt   time.Time `json:"created_at"`
}
