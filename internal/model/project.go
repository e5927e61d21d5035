package model

import "time"

// ProjectStatus is the status of a gig.
type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectOpen       ProjectStatus = "open"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectDraft, ProjectOpen, ProjectInProgress, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

const (
	OriginInternal = "internal"
	OriginExternal = "external"
)

// Project mirrors `projects`.  External gigs are curated by staff, link
// out to ExternalURL and have no creator.  SkillsRequired and Industries
// hold catalog ids.
type Project struct {
	ID              uint64        `json:"id"`
	CreatorID       *string       `json:"creator_id"`
	Title           string        `json:"title"`
	Description     *string       `json:"description"`
	Status          ProjectStatus `json:"status"`
	ProjectOrigin   string        `json:"project_origin"`
	ExternalURL     *string       `json:"external_url"`
	ExpiresAt       *time.Time    `json:"expires_at"`
	SourceName      *string       `json:"source_name"`
	Currency        *string       `json:"currency"`
	BudgetMin       *float64      `json:"budget_min"`
	BudgetMax       *float64      `json:"budget_max"`
	DeliveryTimeMin *int          `json:"delivery_time_min"`
	DeliveryTimeMax *int          `json:"delivery_time_max"`
	SkillsRequired  IntList       `json:"skills_required"`
	Industries      IntList       `json:"industries"`
	DeletedAt       *time.Time    `json:"deleted_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Expired reports whether the gig has an expiry at or before now.
func (p Project) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

type ClickSource string

const (
	ClickListing ClickSource = "listing"
	ClickDetail  ClickSource = "detail"
)

// ExternalGigClick records a consultant following an external gig link.
type ExternalGigClick struct {
	ID          uint64      `json:"id"`
	ProjectID   uint64      `json:"project_id"`
	UserID      string      `json:"user_id"`
	ClickSource ClickSource `json:"click_source"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Skill is a catalog entry.
type Skill struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
