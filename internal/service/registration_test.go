package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

type fakeAccounts struct {
	registered []repository.Registration
	regErr     error
	users      []model.User
	clients    []model.ClientProfile
	skills     map[string][]int64
	consultant map[string]model.ConsultantProfile
	listed     []string
}

func (f *fakeAccounts) Register(_ context.Context, reg repository.Registration) (model.User, error) {
	if f.regErr != nil {
		return model.User{}, f.regErr
	}
	f.registered = append(f.registered, reg)
	return model.User{ID: reg.ID, Email: sp(reg.Email), UserType: reg.UserType}, nil
}

func (f *fakeAccounts) ListByIDs(_ context.Context, ids []string) ([]model.User, error) {
	f.listed = ids
	return f.users, nil
}

func (f *fakeAccounts) ClientProfilesByUserIDs(context.Context, []string) ([]model.ClientProfile, error) {
	return f.clients, nil
}

func (f *fakeAccounts) SkillIDs(_ context.Context, id string) ([]int64, error) {
	return f.skills[id], nil
}

func (f *fakeAccounts) GetConsultantProfile(_ context.Context, id string) (model.ConsultantProfile, error) {
	p, ok := f.consultant[id]
	if !ok {
		return p, repository.ErrNotFound
	}
	return p, nil
}

const (
	uid1 = "6f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f"
	uid2 = "7a2b3c4d-5e6f-4a7b-9c8d-1e2f3a4b5c6d"
)

func TestRegister_ClientWithoutCompany(t *testing.T) {
	f := &fakeAccounts{}
	svc := NewRegistrationService(f, quiet)

	res, err := svc.Register(context.Background(), RegisterInput{
		ID: uid1, Email: "ann@example.com", FirstName: "Ann", LastName: "Lee", UserType: "client",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, f.registered, 1)
	assert.Equal(t, "", f.registered[0].CompanyName)
	cp, ok := res.Profile.(model.ClientProfile)
	require.True(t, ok)
	assert.Equal(t, "", cp.CompanyName)
}

func TestRegister_Consultant(t *testing.T) {
	svc := NewRegistrationService(&fakeAccounts{}, quiet)
	res, err := svc.Register(context.Background(), RegisterInput{
		ID: uid1, Email: "c@example.com", FirstName: "Cy", LastName: "Do", UserType: "consultant",
	})
	require.NoError(t, err)
	_, ok := res.Profile.(model.ConsultantProfile)
	assert.True(t, ok)
}

func TestRegister_ValidationDetails(t *testing.T) {
	svc := NewRegistrationService(&fakeAccounts{}, quiet)
	_, err := svc.Register(context.Background(), RegisterInput{ID: "nope", Email: "x", UserType: "admin"})

	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "Missing required fields", ie.Msg)
	assert.Equal(t, []string{
		"id must be a UUID",
		"email is invalid",
		"firstName is required",
		"lastName is required",
		"userType must be consultant or client",
	}, ie.Details)
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	svc := NewRegistrationService(&fakeAccounts{regErr: repository.ErrDuplicate}, quiet)
	_, err := svc.Register(context.Background(), RegisterInput{
		ID: uid1, Email: "ann@example.com", FirstName: "Ann", LastName: "Lee", UserType: "client",
	})
	var ce ConflictError
	assert.ErrorAs(t, err, &ce)
}

func TestRegister_StoreErrorPassesThrough(t *testing.T) {
	boom := errors.New("db down")
	svc := NewRegistrationService(&fakeAccounts{regErr: boom}, quiet)
	_, err := svc.Register(context.Background(), RegisterInput{
		ID: uid1, Email: "ann@example.com", FirstName: "Ann", LastName: "Lee", UserType: "client",
	})
	assert.ErrorIs(t, err, boom)
}

func TestClientData(t *testing.T) {
	f := &fakeAccounts{
		users:   []model.User{{ID: uid1, UserType: model.UserTypeClient}},
		clients: []model.ClientProfile{{UserID: uid1, CompanyName: "Acme"}},
	}
	svc := NewRegistrationService(f, quiet)

	res, err := svc.ClientData(context.Background(), []string{uid1, uid2})
	require.NoError(t, err)
	assert.Len(t, res.Users, 1)
	assert.Equal(t, "Acme", res.ClientProfiles[0].CompanyName)
	assert.Equal(t, []string{uid1, uid2}, f.listed)
}

func TestClientData_Limits(t *testing.T) {
	svc := NewRegistrationService(&fakeAccounts{}, quiet)
	ctx := context.Background()

	_, err := svc.ClientData(ctx, nil)
	assert.EqualError(t, err, "Missing required field: creatorIds")

	many := make([]string, MaxCreatorIDs+1)
	for i := range many {
		many[i] = fmt.Sprintf("00000000-0000-4000-8000-%012d", i)
	}
	_, err = svc.ClientData(ctx, many)
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "Too many creatorIds", ie.Msg)

	_, err = svc.ClientData(ctx, []string{uid1, "'; DROP TABLE users"})
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "Invalid creatorIds", ie.Msg)
}

func TestClientData_EmptyListsNotNull(t *testing.T) {
	svc := NewRegistrationService(&fakeAccounts{}, quiet)
	res, err := svc.ClientData(context.Background(), []string{uid1})
	require.NoError(t, err)
	assert.NotNil(t, res.Users)
	assert.NotNil(t, res.ClientProfiles)
}

func TestUserSkills(t *testing.T) {
	f := &fakeAccounts{
		skills:     map[string][]int64{uid1: {3, 7}},
		consultant: map[string]model.ConsultantProfile{uid1: {UserID: uid1, Industries: model.IntList{2}}},
	}
	svc := NewRegistrationService(f, quiet)

	res, err := svc.UserSkills(context.Background(), uid1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, res.UserSkills)
	assert.Equal(t, model.IntList{2}, res.UserIndustries)

	res, err = svc.UserSkills(context.Background(), uid2)
	require.NoError(t, err)
	assert.Empty(t, res.UserSkills)
	assert.NotNil(t, res.UserIndustries)

	_, err = svc.UserSkills(context.Background(), " ")
	assert.EqualError(t, err, "Missing required field: userId")
}
