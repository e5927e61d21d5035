package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

type fakeProfiles struct {
	basics      []string
	consultant  *repository.ProfileUpdate
	client      *repository.ProfileUpdate
	work        []repository.WorkExperienceRecord
	edu         []repository.EducationRecord
	certs       []repository.CertificationRecord
	skills      []int64
	langs       []repository.UserLanguageRecord
	events      []string
	eventMeta   []any
	counts      repository.SectionCounts
	pct         int
	pctSet      bool
	failSection string
}

func newFakeProfiles() *fakeProfiles { return &fakeProfiles{pct: -1} }

var errSection = errors.New("section write failed")

func (f *fakeProfiles) UpdateUserBasics(_ context.Context, _ string, first, last, headline string) (bool, error) {
	if first == "" && last == "" && headline == "" {
		return false, nil
	}
	f.basics = []string{first, last, headline}
	return true, nil
}

func (f *fakeProfiles) UpdateConsultantProfile(_ context.Context, _ string, u repository.ProfileUpdate) error {
	f.consultant = &u
	return nil
}

func (f *fakeProfiles) UpdateClientProfile(_ context.Context, _ string, u repository.ProfileUpdate) error {
	f.client = &u
	return nil
}

func (f *fakeProfiles) ReplaceWorkExperience(_ context.Context, _ string, rows []repository.WorkExperienceRecord) (int, error) {
	if f.failSection == "work" {
		return 0, errSection
	}
	f.work = rows
	return len(rows), nil
}

func (f *fakeProfiles) ReplaceEducation(_ context.Context, _ string, rows []repository.EducationRecord) (int, error) {
	f.edu = rows
	return len(rows), nil
}

func (f *fakeProfiles) ReplaceCertifications(_ context.Context, _ string, rows []repository.CertificationRecord) (int, error) {
	f.certs = rows
	return len(rows), nil
}

func (f *fakeProfiles) ReplaceUserSkills(_ context.Context, _ string, ids []int64) (int, error) {
	f.skills = ids
	return len(ids), nil
}

func (f *fakeProfiles) ReplaceUserLanguages(_ context.Context, _ string, l []repository.UserLanguageRecord) (int, error) {
	f.langs = l
	return len(l), nil
}

func (f *fakeProfiles) Skills(context.Context) ([]repository.NamedID, error) {
	return []repository.NamedID{{ID: 1, Name: "Go"}, {ID: 2, Name: "Strategy"}, {ID: 3, Name: "M&A"}}, nil
}

func (f *fakeProfiles) Languages(context.Context) ([]repository.NamedID, error) {
	return []repository.NamedID{{ID: 10, Name: "English"}, {ID: 11, Name: "German"}}, nil
}

func (f *fakeProfiles) Countries(context.Context) ([]repository.NamedID, error) {
	return []repository.NamedID{{ID: 44, Name: "United Kingdom"}, {ID: 49, Name: "Germany"}}, nil
}

func (f *fakeProfiles) InsertCreationEvent(_ context.Context, _ string, method string, meta any) error {
	f.events = append(f.events, method)
	f.eventMeta = append(f.eventMeta, meta)
	return nil
}

func (f *fakeProfiles) Counts(context.Context, string) (repository.SectionCounts, error) {
	return f.counts, nil
}

func (f *fakeProfiles) SetCompleteness(_ context.Context, _ string, pct int) error {
	f.pct, f.pctSet = pct, true
	return nil
}

type fakeProfileUsers struct {
	*fakeUsers
	consultant map[string]model.ConsultantProfile
}

func (f *fakeProfileUsers) GetConsultantProfile(_ context.Context, id string) (model.ConsultantProfile, error) {
	p, ok := f.consultant[id]
	if !ok {
		return p, repository.ErrNotFound
	}
	return p, nil
}

func ip(n int) *int { return &n }

func TestNormalizeProficiency(t *testing.T) {
	cases := map[string]string{
		"":                  "Professional",
		"Native speaker":    "Native",
		"mother tongue":     "Native",
		"Fluent":            "Fluent",
		"bilingual":         "Fluent",
		"Full professional": "Professional",
		"working knowledge": "Professional",
		"Elementary":        "Basic",
		"beginner":          "Basic",
		"basic":             "Basic",
		"conversational":    "Professional",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeProficiency(in), in)
	}
}

func TestParseMonth(t *testing.T) {
	assert.Equal(t, 3, *parseMonth("March"))
	assert.Equal(t, 3, *parseMonth("mar"))
	assert.Equal(t, 9, *parseMonth("09"))
	assert.Equal(t, 12, *parseMonth(" 12 "))
	assert.Nil(t, parseMonth(""))
	assert.Nil(t, parseMonth("13"))
	assert.Nil(t, parseMonth("Spring"))
}

func TestProfileMapper_Map(t *testing.T) {
	store := newFakeProfiles()
	m := NewProfileMapper(store, nil, quiet)

	p := model.ParsedProfile{
		BasicInfo: model.BasicInfo{FirstName: "Jane", LastName: "Doe", Phone: "+44 1", Location: "London"},
		Summary:   "Operator and advisor.",
		WorkExperience: []model.WorkExperience{
			{Company: "Acme", JobTitle: "CFO", StartDateMonth: "Jan", StartDateYear: ip(2010), EndDateMonth: "6", EndDateYear: ip(2015), Country: "united kingdom"},
			{JobTitle: "", StartDateYear: ip(2015), EndDateYear: ip(2020), CurrentlyWorking: true, Country: "Atlantis"},
		},
		Education:      []model.Education{{InstitutionName: "LSE", FieldOfStudy: "Economics"}},
		Certifications: []model.Certification{{}},
		Skills:         []string{"go", "Strategy", "Basket Weaving", "GO"},
		Languages:      []model.LanguageEntry{{Language: "english", Proficiency: "native"}, {Language: "Klingon"}},
	}
	res := m.Map(context.Background(), p, "u1", model.UserTypeConsultant)
	require.NoError(t, res.Err())

	assert.True(t, res.User.Success)
	assert.Equal(t, []string{"Jane", "Doe", ""}, store.basics)
	require.NotNil(t, store.consultant)
	assert.Equal(t, "London", store.consultant.Address1)
	assert.Equal(t, "Operator and advisor.", store.consultant.Bio)
	assert.Nil(t, store.client)

	require.Len(t, store.work, 2)
	w := store.work[0]
	assert.Equal(t, 1, *w.StartDateMonth)
	assert.Equal(t, 6, *w.EndDateMonth)
	assert.Equal(t, 44, *w.CountryID)
	w = store.work[1]
	assert.Equal(t, "Unknown Company", w.Company)
	assert.Equal(t, "Unknown Role", w.JobTitle)
	assert.Nil(t, w.EndDateYear, "currently working drops end date")
	assert.Nil(t, w.CountryID)

	assert.Equal(t, 1, res.Education.Saved)
	assert.Equal(t, "Unknown", store.edu[0].DegreeLevel)
	assert.Equal(t, "Economics", *store.edu[0].Description)

	assert.Equal(t, "Unknown Certification", store.certs[0].Name)
	assert.Equal(t, "Unknown", store.certs[0].AwardingBody)

	assert.Equal(t, []int64{1, 2}, store.skills)
	assert.Equal(t, 2, res.Skills.Matched)
	assert.Equal(t, []string{"Basket Weaving"}, res.Skills.Unmatched)

	require.Len(t, store.langs, 1)
	assert.Equal(t, "Native", store.langs[0].Proficiency)
	assert.Equal(t, 1, res.Languages.Matched)
}

func TestProfileMapper_ClientAndEmptySections(t *testing.T) {
	store := newFakeProfiles()
	m := NewProfileMapper(store, nil, quiet)
	res := m.Map(context.Background(), model.ParsedProfile{Summary: "We build bridges."}, "c1", model.UserTypeClient)
	require.NoError(t, res.Err())
	assert.True(t, res.User.Skipped)
	require.NotNil(t, store.client)
	assert.Equal(t, "We build bridges.", store.client.Description)
	assert.Nil(t, store.work, "empty sections leave existing rows alone")
	assert.Nil(t, store.skills)
	assert.Equal(t, []string{}, res.Skills.Unmatched)
}

func TestProfileMapper_SectionFailure(t *testing.T) {
	store := newFakeProfiles()
	store.failSection = "work"
	m := NewProfileMapper(store, nil, quiet)
	res := m.Map(context.Background(), model.ParsedProfile{
		BasicInfo:      model.BasicInfo{FirstName: "A", LastName: "B"},
		WorkExperience: []model.WorkExperience{{Company: "X"}},
		Skills:         []string{"Go"},
	}, "u1", model.UserTypeConsultant)
	assert.EqualError(t, res.Err(), "Failed to save profile: work experience: section write failed")
	assert.Equal(t, 1, res.Skills.Matched, "other sections still written")
}

func TestProfileMapper_Completeness(t *testing.T) {
	rate := 150.0
	users := &fakeProfileUsers{
		fakeUsers: newFakeUsers(model.User{ID: "u1", FirstName: sp("Jane"), LastName: sp("Doe"), Email: sp("j@d.io")}),
		consultant: map[string]model.ConsultantProfile{
			"u1": {JobTitle: sp("CFO"), Bio: sp("  "), HourlyRateMin: &rate, Phone: sp("1")},
		},
	}
	store := newFakeProfiles()
	store.counts = repository.SectionCounts{WorkExperience: 2, Skills: 0, Languages: 1}
	m := NewProfileMapper(store, users, quiet)

	// 3 user fields + 3 profile fields + 2 sections = 8 of 16
	pct, err := m.UpdateCompleteness(context.Background(), "u1", model.UserTypeConsultant)
	require.NoError(t, err)
	assert.Equal(t, 50, pct)
	assert.Equal(t, 50, store.pct)

	// clients are scored on the five user fields only
	pct, err = m.UpdateCompleteness(context.Background(), "u1", model.UserTypeClient)
	require.NoError(t, err)
	assert.Equal(t, 60, pct)

	_, err = m.UpdateCompleteness(context.Background(), "ghost", model.UserTypeClient)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
