package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

type fakeGigs struct {
	projects map[uint64]model.Project
	filter   repository.ExternalFilter
	fields   map[string]any
	clicks   []repository.ClickerRecord
	summary  []repository.ClickSummary
	inserted []model.ClickSource
	nextID   uint64
}

func newFakeGigs(ps ...model.Project) *fakeGigs {
	f := &fakeGigs{projects: map[uint64]model.Project{}, nextID: 100}
	for _, p := range ps {
		f.projects[p.ID] = p
	}
	return f
}

func (f *fakeGigs) ListExternal(_ context.Context, flt repository.ExternalFilter) ([]model.Project, error) {
	f.filter = flt
	out := []model.Project{}
	for _, p := range f.projects {
		if p.ProjectOrigin == model.OriginExternal && p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeGigs) GetByID(_ context.Context, id uint64) (model.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return p, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeGigs) CreateExternal(_ context.Context, p *model.Project) error {
	f.nextID++
	p.ID = f.nextID
	p.ProjectOrigin = model.OriginExternal
	f.projects[p.ID] = *p
	return nil
}

func (f *fakeGigs) UpdateExternal(_ context.Context, id uint64, fields map[string]any, _ []string) (model.Project, error) {
	p, ok := f.projects[id]
	if !ok || p.ProjectOrigin != model.OriginExternal {
		return p, repository.ErrNotFound
	}
	f.fields = fields
	if c, ok := fields["currency"].(string); ok {
		p.Currency = &c
	}
	if t, ok := fields["title"].(string); ok {
		p.Title = t
	}
	f.projects[id] = p
	return p, nil
}

func (f *fakeGigs) SoftDelete(_ context.Context, id uint64) (time.Time, error) {
	p, ok := f.projects[id]
	if !ok || p.ProjectOrigin != model.OriginExternal {
		return time.Time{}, repository.ErrNotFound
	}
	now := time.Now().UTC()
	p.Status, p.DeletedAt = model.ProjectCancelled, &now
	f.projects[id] = p
	return now, nil
}

func (f *fakeGigs) InsertClick(_ context.Context, _ uint64, _ string, src model.ClickSource) (uint64, error) {
	f.inserted = append(f.inserted, src)
	return uint64(len(f.inserted)), nil
}

func (f *fakeGigs) ClicksForProject(context.Context, uint64, repository.ClickRange) ([]repository.ClickerRecord, error) {
	return f.clicks, nil
}

func (f *fakeGigs) ClickSummaries(context.Context, repository.ClickRange) ([]repository.ClickSummary, error) {
	return f.summary, nil
}

var gigAdmin = model.StaffUser{ID: "staff-1", Role: model.StaffAdmin}

func newGigFixture(ps ...model.Project) (*ExternalGigService, *fakeGigs, *fakeAudit) {
	gigs := newFakeGigs(ps...)
	audit := &fakeAudit{}
	users := newFakeUsers(
		model.User{ID: "c1", UserType: model.UserTypeConsultant},
		model.User{ID: "k1", UserType: model.UserTypeClient},
	)
	return NewExternalGigService(gigs, audit, users, quiet), gigs, audit
}

func external(id uint64) model.Project {
	return model.Project{ID: id, Title: "Interim CFO", ProjectOrigin: model.OriginExternal,
		Status: model.ProjectOpen, ExternalURL: sp("https://jobs.example.com/1")}
}

func TestListGigs_FiltersAndExpiry(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	p := external(1)
	p.ExpiresAt = &past
	svc, gigs, audit := newGigFixture(p)

	out, err := svc.List(context.Background(), gigAdmin, ListGigsInput{Status: "Open, bogus ,draft", Expiry: "EXPIRED", Search: ` <b>"cfo"</b> `})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsExpired)
	assert.Equal(t, []model.ProjectStatus{model.ProjectOpen, model.ProjectDraft}, gigs.filter.Statuses)
	assert.Equal(t, "expired", gigs.filter.Expiry)
	assert.Equal(t, "bcfo/b", gigs.filter.Search)
	require.Len(t, audit.rows, 1)
	assert.Equal(t, "external_projects_list_view", audit.rows[0].ActionType)

	_, err = svc.List(context.Background(), gigAdmin, ListGigsInput{Status: "open,all"})
	require.NoError(t, err)
	assert.Nil(t, gigs.filter.Statuses)
}

func TestCreateGig(t *testing.T) {
	svc, gigs, audit := newGigFixture()
	exp := "2030-01-31"
	p, err := svc.Create(context.Background(), gigAdmin, GigInput{
		Title:          " Fractional <CFO> ",
		ExternalURL:    " https://jobs.example.com/cfo ",
		ExpiresAt:      &exp,
		SkillsRequired: []int64{3, 7},
	})
	require.NoError(t, err)
	assert.Equal(t, "Fractional CFO", p.Title)
	assert.Equal(t, model.ProjectOpen, p.Status)
	assert.Equal(t, "https://jobs.example.com/cfo", *p.ExternalURL)
	assert.Equal(t, model.IntList{3, 7}, gigs.projects[p.ID].SkillsRequired)
	assert.Equal(t, 2030, p.ExpiresAt.Year())
	assert.Equal(t, "external_project_created", audit.rows[0].ActionType)
}

func TestCreateGig_Validation(t *testing.T) {
	svc, _, _ := newGigFixture()
	lo, hi := 500.0, 100.0
	bad := "soon"
	_, err := svc.Create(context.Background(), gigAdmin, GigInput{
		ExternalURL: "ftp://x", Status: "live", ExpiresAt: &bad,
		BudgetMin: &lo, BudgetMax: &hi, SkillsRequired: []int64{0},
	})
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "Invalid input data", ie.Msg)
	assert.Equal(t, []string{
		"title is required",
		"external_url must be a valid http(s) URL",
		"status must be one of: draft, open, in_progress, completed, cancelled",
		"expires_at must be an ISO 8601 date",
		"budget_min must not exceed budget_max",
		"skills_required must contain positive ids",
	}, ie.Details)
}

func payload(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestUpdateGig_PartialAndCurrency(t *testing.T) {
	svc, gigs, audit := newGigFixture(external(5))

	p, err := svc.Update(context.Background(), gigAdmin, payload(t,
		`{"id":"5","title":"New title","currency":"EUR","budget_max":null,"skills_required":[1,2],"industries":null}`))
	require.NoError(t, err)
	assert.Equal(t, "USD", *p.Currency)
	assert.Equal(t, "New title", p.Title)

	assert.Equal(t, "USD", gigs.fields["currency"])
	assert.Nil(t, gigs.fields["budget_max"])
	assert.Equal(t, model.IntList{1, 2}, gigs.fields["skills_required"])
	assert.Equal(t, model.IntList{}, gigs.fields["industries"])
	_, touched := gigs.fields["description"]
	assert.False(t, touched)

	details := audit.rows[0].Details.(map[string]any)
	assert.Equal(t, []string{"title", "currency", "budget_max", "skills_required", "industries"}, details["updated_fields"])
}

func TestUpdateGig_Errors(t *testing.T) {
	internal := external(6)
	internal.ProjectOrigin = model.OriginInternal
	svc, _, _ := newGigFixture(external(5), internal)
	ctx := context.Background()

	_, err := svc.Update(ctx, gigAdmin, payload(t, `{"title":"x"}`))
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, []string{"id is required"}, ie.Details)

	_, err = svc.Update(ctx, gigAdmin, payload(t, `{"id":5,"status":"live","delivery_time_min":9,"delivery_time_max":3}`))
	require.ErrorAs(t, err, &ie)
	assert.Len(t, ie.Details, 2)

	_, err = svc.Update(ctx, gigAdmin, payload(t, `{"id":6,"title":"x"}`))
	assert.Equal(t, errGigMissing, err)
}

func TestDeleteGig(t *testing.T) {
	svc, gigs, audit := newGigFixture(external(5))
	res, err := svc.Delete(context.Background(), gigAdmin, json.RawMessage(`5`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.ProjectCancelled, gigs.projects[5].Status)
	assert.NotNil(t, gigs.projects[5].DeletedAt)
	assert.Equal(t, "external_project_deleted", audit.rows[0].ActionType)

	_, err = svc.Delete(context.Background(), gigAdmin, json.RawMessage(`"99"`))
	assert.Equal(t, errGigMissing, err)
	_, err = svc.Delete(context.Background(), gigAdmin, nil)
	var ie *InputError
	assert.ErrorAs(t, err, &ie)
}

func TestParseProjectID(t *testing.T) {
	for raw, want := range map[string]uint64{`5`: 5, `"12"`: 12, `" 7 "`: 7} {
		id, ok := ParseProjectID(json.RawMessage(raw))
		assert.True(t, ok, raw)
		assert.Equal(t, want, id)
	}
	for _, raw := range []string{``, `null`, `0`, `"abc"`, `-1`, `1.5`} {
		_, ok := ParseProjectID(json.RawMessage(raw))
		assert.False(t, ok, raw)
	}
}

func TestProjectClicks_FirstClickPerUser(t *testing.T) {
	svc, gigs, _ := newGigFixture(external(5))
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	gigs.clicks = []repository.ClickerRecord{
		{UserID: "a", FirstName: sp("Ann"), ClickSource: model.ClickListing, CreatedAt: t0},
		{UserID: "b", ClickSource: model.ClickDetail, CreatedAt: t0.Add(time.Hour)},
		{UserID: "a", ClickSource: model.ClickDetail, CreatedAt: t0.Add(2 * time.Hour)},
	}

	rep, err := svc.ProjectClicks(context.Background(), 5, repository.ClickRange{})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalUniqueClicks)
	require.Len(t, rep.Clicks, 2)
	assert.Equal(t, "b", rep.Clicks[0].UserID)
	assert.Equal(t, "Unknown", rep.Clicks[0].FirstName)
	assert.Equal(t, model.ClickListing, rep.Clicks[1].ClickSource)
	assert.Equal(t, t0, rep.Clicks[1].FirstClickedAt)

	_, err = svc.ProjectClicks(context.Background(), 404, repository.ClickRange{})
	assert.Equal(t, errProjectMissing, err)
}

func TestClickSummary(t *testing.T) {
	svc, gigs, _ := newGigFixture()
	gigs.summary = []repository.ClickSummary{
		{ProjectID: 1, ProjectTitle: "A", UniqueClickCount: 3, TotalClicks: 5},
		{ProjectID: 2, UniqueClickCount: 1, TotalClicks: 1},
	}
	rep, err := svc.ClickSummary(context.Background(), repository.ClickRange{})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalProjects)
	assert.Equal(t, 4, rep.TotalUniqueClicks)
	assert.Equal(t, "Unknown", rep.Summary[1].ProjectTitle)
}

func TestClickRangeFrom(t *testing.T) {
	cr, err := ClickRangeFrom("2026-03-01", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), cr.From)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC), cr.To)

	_, err = ClickRangeFrom("03/01/2026", "")
	assert.Error(t, err)
}

func TestTrackClick(t *testing.T) {
	internal := external(6)
	internal.ProjectOrigin = model.OriginInternal
	noURL := external(7)
	noURL.ExternalURL = nil
	svc, gigs, _ := newGigFixture(external(5), internal, noURL)
	ctx := context.Background()

	res, err := svc.TrackClick(ctx, "c1", TrackClickInput{ProjectID: json.RawMessage(`5`), ClickSource: "detail"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []model.ClickSource{model.ClickDetail}, gigs.inserted)

	cases := []struct {
		user string
		in   TrackClickInput
		want string
	}{
		{"k1", TrackClickInput{ProjectID: json.RawMessage(`5`), ClickSource: "detail"}, "Only professionals can track external gig clicks"},
		{"zz", TrackClickInput{ProjectID: json.RawMessage(`5`), ClickSource: "detail"}, "User not found"},
		{"c1", TrackClickInput{ClickSource: "detail"}, "Missing required fields: project_id and click_source"},
		{"c1", TrackClickInput{ProjectID: json.RawMessage(`5`), ClickSource: "email"}, `click_source must be "listing" or "detail"`},
		{"c1", TrackClickInput{ProjectID: json.RawMessage(`99`), ClickSource: "listing"}, "Project not found"},
		{"c1", TrackClickInput{ProjectID: json.RawMessage(`6`), ClickSource: "listing"}, "Project is not an external gig"},
		{"c1", TrackClickInput{ProjectID: json.RawMessage(`7`), ClickSource: "listing"}, "External project has no external_url"},
	}
	for _, tc := range cases {
		_, err := svc.TrackClick(ctx, tc.user, tc.in)
		assert.EqualError(t, err, tc.want)
	}
	assert.Len(t, gigs.inserted, 1)
}
