package service

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// MaxCreatorIDs caps the ids accepted by ClientData.
const MaxCreatorIDs = 50

// AccountStore is the slice of the user repository the registration and
// lookup endpoints need.
type AccountStore interface {
	Register(ctx context.Context, reg repository.Registration) (model.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.User, error)
	ClientProfilesByUserIDs(ctx context.Context, ids []string) ([]model.ClientProfile, error)
	SkillIDs(ctx context.Context, userID string) ([]int64, error)
	GetConsultantProfile(ctx context.Context, userID string) (model.ConsultantProfile, error)
}

type RegistrationService struct {
	users  AccountStore
	logger *log.Logger
}

func NewRegistrationService(users AccountStore, logger *log.Logger) *RegistrationService {
	if logger == nil {
		logger = log.Default()
	}
	return &RegistrationService{users: users, logger: logger}
}

// RegisterInput is the body of POST /register-user.
type RegisterInput struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	UserType    string `json:"userType"`
	CompanyName string `json:"companyName"`
}

type RegisterResult struct {
	Success bool       `json:"success"`
	User    model.User `json:"user"`
	Profile any        `json:"profile"`
}

// Register creates the user row and its type specific profile.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	var details []string
	if strings.TrimSpace(in.ID) == "" {
		details = append(details, "id is required")
	} else if _, err := uuid.Parse(in.ID); err != nil {
		details = append(details, "id must be a UUID")
	}
	if strings.TrimSpace(in.Email) == "" {
		details = append(details, "email is required")
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		details = append(details, "email is invalid")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		details = append(details, "firstName is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		details = append(details, "lastName is required")
	}
	ut := model.UserType(in.UserType)
	if in.UserType == "" {
		details = append(details, "userType is required")
	} else if !ut.Valid() {
		details = append(details, "userType must be consultant or client")
	}
	if len(details) > 0 {
		return RegisterResult{}, invalid("Missing required fields", details...)
	}

	u, err := s.users.Register(ctx, repository.Registration{
		ID:          in.ID,
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		UserType:    ut,
		CompanyName: in.CompanyName,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return RegisterResult{}, ConflictError("User already registered")
	}
	if err != nil {
		s.logger.Printf("registration: insert %s: %v", in.ID, err)
		return RegisterResult{}, err
	}

	res := RegisterResult{Success: true, User: u}
	if ut == model.UserTypeClient {
		res.Profile = model.ClientProfile{UserID: u.ID, CompanyName: strings.TrimSpace(in.CompanyName), CreatedAt: u.CreatedAt, UpdatedAt: u.CreatedAt}
	} else {
		res.Profile = model.ConsultantProfile{UserID: u.ID, Industries: model.IntList{}, CreatedAt: u.CreatedAt, UpdatedAt: u.CreatedAt}
	}
	s.logger.Printf("registration: %s registered as %s", u.ID, ut)
	return res, nil
}

// ClientDataResult is the public summary of gig creators.
type ClientDataResult struct {
	Users          []model.User          `json:"users"`
	ClientProfiles []model.ClientProfile `json:"clientProfiles"`
}

// ClientData loads users and client profiles for up to MaxCreatorIDs ids.
func (s *RegistrationService) ClientData(ctx context.Context, creatorIDs []string) (ClientDataResult, error) {
	if len(creatorIDs) == 0 {
		return ClientDataResult{}, invalid("Missing required field: creatorIds")
	}
	if len(creatorIDs) > MaxCreatorIDs {
		return ClientDataResult{}, invalid("Too many creatorIds", "at most 50 ids per request")
	}
	var bad []string
	for _, id := range creatorIDs {
		if _, err := uuid.Parse(id); err != nil {
			bad = append(bad, "invalid id: "+id)
		}
	}
	if len(bad) > 0 {
		return ClientDataResult{}, invalid("Invalid creatorIds", bad...)
	}

	users, err := s.users.ListByIDs(ctx, creatorIDs)
	if err != nil {
		return ClientDataResult{}, err
	}
	profiles, err := s.users.ClientProfilesByUserIDs(ctx, creatorIDs)
	if err != nil {
		return ClientDataResult{}, err
	}
	if users == nil {
		users = []model.User{}
	}
	if profiles == nil {
		profiles = []model.ClientProfile{}
	}
	return ClientDataResult{Users: users, ClientProfiles: profiles}, nil
}

type UserSkillsResult struct {
	UserSkills     []int64       `json:"userSkills"`
	UserIndustries model.IntList `json:"userIndustries"`
}

// UserSkills returns the skill ids and consultant industries of a user.
// A user without a consultant profile has no industries.
func (s *RegistrationService) UserSkills(ctx context.Context, userID string) (UserSkillsResult, error) {
	if strings.TrimSpace(userID) == "" {
		return UserSkillsResult{}, invalid("Missing required field: userId")
	}
	ids, err := s.users.SkillIDs(ctx, userID)
	if err != nil {
		return UserSkillsResult{}, err
	}
	res := UserSkillsResult{UserSkills: ids, UserIndustries: model.IntList{}}
	if res.UserSkills == nil {
		res.UserSkills = []int64{}
	}
	p, err := s.users.GetConsultantProfile(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return UserSkillsResult{}, err
	case p.Industries != nil:
		res.UserIndustries = p.Industries
	}
	return res, nil
}
