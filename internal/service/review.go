package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// ReviewUsers is what the staff review screens read from the user store.
type ReviewUsers interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	ListByVettingStatus(ctx context.Context, statuses []model.VettingStatus) ([]model.User, error)
	GetConsultantProfile(ctx context.Context, userID string) (model.ConsultantProfile, error)
	GetClientProfile(ctx context.Context, userID string) (model.ClientProfile, error)
}

// ReviewProfiles reads the normalized profile sections.
type ReviewProfiles interface {
	WorkExperience(ctx context.Context, userID string) ([]repository.WorkExperienceRecord, error)
	Education(ctx context.Context, userID string) ([]repository.EducationRecord, error)
	Certifications(ctx context.Context, userID string) ([]repository.CertificationRecord, error)
	UserSkills(ctx context.Context, userID string) ([]model.Skill, error)
	UserLanguages(ctx context.Context, userID string) ([]repository.UserLanguageRecord, error)
}

type DecisionHistory interface {
	ListByUser(ctx context.Context, userID string) ([]model.VettingDecision, error)
}

// ReviewService backs the read side of the staff vetting queue.
type ReviewService struct {
	users     ReviewUsers
	profiles  ReviewProfiles
	decisions DecisionHistory
}

func NewReviewService(users ReviewUsers, profiles ReviewProfiles, decisions DecisionHistory) *ReviewService {
	return &ReviewService{users: users, profiles: profiles, decisions: decisions}
}

// Pending lists users awaiting review, newest update first.  An empty
// status means pending plus needs_info.
func (s *ReviewService) Pending(ctx context.Context, status string) ([]model.User, error) {
	statuses := []model.VettingStatus{model.VettingPending, model.VettingNeedsInfo}
	if status != "" {
		vs := model.VettingStatus(status)
		if !vs.Valid() {
			return nil, invalid("Invalid status. Must be one of: " + joinStatuses(model.VettingStatuses))
		}
		statuses = []model.VettingStatus{vs}
	}
	users, err := s.users.ListByVettingStatus(ctx, statuses)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// ReviewProfile is everything staff sees when deciding on a user.
type ReviewProfile struct {
	User             model.User                        `json:"user"`
	Profile          any                               `json:"profile"`
	ClientProfile    *model.ClientProfile              `json:"clientProfile"`
	WorkExperience   []repository.WorkExperienceRecord `json:"workExperience"`
	Education        []repository.EducationRecord      `json:"education"`
	Certifications   []repository.CertificationRecord  `json:"certifications"`
	Skills           []model.Skill                     `json:"skills"`
	Languages        []repository.UserLanguageRecord   `json:"languages"`
	VettingDecisions []model.VettingDecision           `json:"vettingDecisions"`
}

// Profile assembles the full review view of userID.
func (s *ReviewService) Profile(ctx context.Context, userID string) (ReviewProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return ReviewProfile{}, invalid("userId query parameter required")
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ReviewProfile{}, errUserNotFound
	}
	if err != nil {
		return ReviewProfile{}, err
	}
	out := ReviewProfile{User: u}

	cp, err := s.users.GetClientProfile(ctx, userID)
	switch {
	case err == nil:
		out.ClientProfile = &cp
	case !errors.Is(err, repository.ErrNotFound):
		return ReviewProfile{}, err
	}
	if u.UserType == model.UserTypeConsultant {
		p, err := s.users.GetConsultantProfile(ctx, userID)
		switch {
		case err == nil:
			out.Profile = p
		case !errors.Is(err, repository.ErrNotFound):
			return ReviewProfile{}, err
		}
	} else if out.ClientProfile != nil {
		out.Profile = *out.ClientProfile
	}

	if out.WorkExperience, err = s.profiles.WorkExperience(ctx, userID); err != nil {
		return ReviewProfile{}, err
	}
	if out.Education, err = s.profiles.Education(ctx, userID); err != nil {
		return ReviewProfile{}, err
	}
	if out.Certifications, err = s.profiles.Certifications(ctx, userID); err != nil {
		return ReviewProfile{}, err
	}
	if out.Skills, err = s.profiles.UserSkills(ctx, userID); err != nil {
		return ReviewProfile{}, err
	}
	if out.Languages, err = s.profiles.UserLanguages(ctx, userID); err != nil {
		return ReviewProfile{}, err
	}
	if out.VettingDecisions, err = s.decisions.ListByUser(ctx, userID); err != nil {
		return ReviewProfile{}, err
	}
	return out, nil
}
