package model

import "time"

// UserType distinguishes the two sides of the marketplace.
type UserType string

const (
	UserTypeConsultant UserType = "consultant"
	UserTypeClient     UserType = "client"
)

func (t UserType) Valid() bool {
	return t == UserTypeConsultant || t == UserTypeClient
}

// VettingStatus is the review state of a user.  NULL in the database is
// treated the same as pending by the reminder scan.
type VettingStatus string

const (
	VettingPending    VettingStatus = "pending"
	VettingInProgress VettingStatus = "in_progress"
	VettingVerified   VettingStatus = "verified"
	VettingVetted     VettingStatus = "vetted"
	VettingRejected   VettingStatus = "rejected"
	VettingNeedsInfo  VettingStatus = "needs_info"
)

// VettingStatuses lists every accepted status in display order.
var VettingStatuses = []VettingStatus{
	VettingPending, VettingInProgress, VettingVerified,
	VettingVetted, VettingRejected, VettingNeedsInfo,
}

func (s VettingStatus) Valid() bool {
	for _, v := range VettingStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Approved reports whether the status grants full access to the platform.
func (s VettingStatus) Approved() bool {
	return s == VettingVerified || s == VettingVetted
}

// User represents a row in the `users` table.  The ID is the subject of
// the external auth provider's tokens, so rows are created by
// registration with a caller-supplied UUID rather than generated here.
//
// Fields:
//
//	ID                 – auth subject (UUID).
//	Email              – contact address, nullable for legacy rows.
//	FirstName/LastName – display name parts.
//	Headline           – short professional title.
//	UserType           – consultant or client.
//	VettingStatus      – review state, nil when never set.
//	ProfileCompletePct – cached completeness percentage.
type User struct {
	ID                 string         `json:"id"`
	Email              *string        `json:"email"`
	FirstName          *string        `json:"first_name"`
	LastName           *string        `json:"last_name"`
	Headline           *string        `json:"headline,omitempty"`
	ProfilePhotoURL    *string        `json:"profile_photo_url,omitempty"`
	UserType           UserType       `json:"user_type"`
	Role               string         `json:"role"`
	Status             string         `json:"status"`
	VettingStatus      *VettingStatus `json:"vetting_status"`
	ProfileCompletePct int            `json:"profile_complete_pct"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CurrentVetting returns the vetting status with NULL mapped to pending.
func (u User) CurrentVetting() VettingStatus {
	if u.VettingStatus == nil {
		return VettingPending
	}
	return *u.VettingStatus
}

// FirstNameOr returns the first name or def when empty.
func (u User) FirstNameOr(def string) string {
	if u.FirstName == nil || *u.FirstName == "" {
		return def
	}
	return *u.FirstName
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	name := ""
	if u.FirstName != nil {
		name = *u.FirstName
	}
	if u.LastName != nil && *u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += *u.LastName
	}
	return name
}

// ConsultantProfile mirrors `consultant_profiles`.
type ConsultantProfile struct {
	UserID        string    `json:"user_id"`
	JobTitle      *string   `json:"job_title"`
	Bio           *string   `json:"bio"`
	Address1      *string   `json:"address1"`
	Country       *string   `json:"country"`
	HourlyRateMin *float64  `json:"hourly_rate_min"`
	HourlyRateMax *float64  `json:"hourly_rate_max"`
	Phone         *string   `json:"phone"`
	LinkedInURL   *string   `json:"linkedin_url"`
	Industries    IntList   `json:"industries"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ClientProfile mirrors `client_profiles`.  CompanyName is never NULL;
// registration stores "" when the client gave no company.
type ClientProfile struct {
	UserID      string    `json:"user_id"`
	CompanyName string    `json:"company_name"`
	LogoURL     *string   `json:"logo_url"`
	Description *string   `json:"description,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	LinkedInURL *string   `json:"linkedin_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
