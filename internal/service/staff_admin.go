package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gigexecs/gigexecs-api/internal/auth"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

const minStaffPassword = 6

type CreateStaffInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	IsActive  *bool  `json:"is_active"`
}

// StaffSummary is the public view of a staff row.
type StaffSummary struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Role      model.StaffRole `json:"role"`
	IsActive  bool            `json:"is_active"`
}

func validRole(r string) bool { return model.StaffRole(r).Rank() > 0 }

// CreateStaff registers a new operator.  New accounts are active unless
// is_active is explicitly false.
func (s *StaffService) CreateStaff(ctx context.Context, by model.StaffUser, in CreateStaffInput) (StaffSummary, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" || strings.TrimSpace(in.FirstName) == "" ||
		strings.TrimSpace(in.LastName) == "" || in.Role == "" {
		return StaffSummary{}, invalid("Missing required fields")
	}
	if !validRole(in.Role) {
		return StaffSummary{}, invalid("Invalid role")
	}
	if len(in.Password) < minStaffPassword {
		return StaffSummary{}, invalid("Password must be at least 6 characters")
	}
	hash, err := auth.HashPassword(in.Password, s.cost)
	if err != nil {
		return StaffSummary{}, err
	}
	st, err := s.staff.Create(ctx, model.StaffUser{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         model.StaffRole(in.Role),
		IsActive:     in.IsActive == nil || *in.IsActive,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return StaffSummary{}, ConflictError("User with this email already exists")
	}
	if err != nil {
		s.logger.Printf("staff: create staff user: %v", err)
		return StaffSummary{}, err
	}

	s.audit(ctx, repository.AuditEntry{
		StaffID:     by.ID,
		ActionType:  "staff_user_created",
		TargetTable: "staff_users",
		TargetID:    st.ID,
		Details:     map[string]any{"email": st.Email, "role": st.Role, "created_by": by.ID},
	})
	s.logger.Printf("staff: %s created staff user %s (%s)", by.ID, st.ID, st.Role)
	return StaffSummary{
		ID: st.ID, UserID: st.UserID, FirstName: st.FirstName, LastName: st.LastName,
		Role: st.Role, IsActive: st.IsActive,
	}, nil
}

type UpdateStaffInput struct {
	ID        string  `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

// UpdateStaff changes the given fields of a staff row.  The audit row
// records the previous value of every changed field.
func (s *StaffService) UpdateStaff(ctx context.Context, by model.StaffUser, in UpdateStaffInput) (model.StaffUser, error) {
	if strings.TrimSpace(in.ID) == "" {
		return model.StaffUser{}, invalid("Staff user ID is required")
	}
	if in.Role != nil && !validRole(*in.Role) {
		return model.StaffUser{}, invalid("Invalid role")
	}
	old, err := s.staff.GetByID(ctx, in.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.StaffUser{}, NotFoundError("Staff user not found")
	}
	if err != nil {
		return model.StaffUser{}, err
	}

	var p repository.StaffPatch
	fields := []string{}
	oldVals, newVals := map[string]any{}, map[string]any{}
	if in.FirstName != nil {
		p.FirstName = in.FirstName
		fields = append(fields, "first_name")
		oldVals["first_name"], newVals["first_name"] = old.FirstName, *in.FirstName
	}
	if in.LastName != nil {
		p.LastName = in.LastName
		fields = append(fields, "last_name")
		oldVals["last_name"], newVals["last_name"] = old.LastName, *in.LastName
	}
	if in.Role != nil {
		r := model.StaffRole(*in.Role)
		p.Role = &r
		fields = append(fields, "role")
		oldVals["role"], newVals["role"] = old.Role, r
	}
	if in.IsActive != nil {
		p.IsActive = in.IsActive
		fields = append(fields, "is_active")
		oldVals["is_active"], newVals["is_active"] = old.IsActive, *in.IsActive
	}

	st, err := s.staff.Update(ctx, in.ID, p)
	if errors.Is(err, repository.ErrNotFound) {
		return model.StaffUser{}, NotFoundError("Staff user not found")
	}
	if err != nil {
		s.logger.Printf("staff: update staff user %s: %v", in.ID, err)
		return model.StaffUser{}, err
	}

	s.audit(ctx, repository.AuditEntry{
		StaffID:     by.ID,
		ActionType:  "staff_user_updated",
		TargetTable: "staff_users",
		TargetID:    st.ID,
		Details:     map[string]any{"updated_fields": fields, "old_values": oldVals, "new_values": newVals},
	})
	return st, nil
}

// ListStaff returns every staff row, newest first.
func (s *StaffService) ListStaff(ctx context.Context) ([]model.StaffUser, error) {
	return s.staff.List(ctx)
}
