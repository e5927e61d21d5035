package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// GigStore is the project repository as seen by the external gig screens.
type GigStore interface {
	ListExternal(ctx context.Context, f repository.ExternalFilter) ([]model.Project, error)
	GetByID(ctx context.Context, id uint64) (model.Project, error)
	CreateExternal(ctx context.Context, p *model.Project) error
	UpdateExternal(ctx context.Context, id uint64, fields map[string]any, order []string) (model.Project, error)
	SoftDelete(ctx context.Context, id uint64) (time.Time, error)
	InsertClick(ctx context.Context, projectID uint64, userID string, src model.ClickSource) (uint64, error)
	ClicksForProject(ctx context.Context, projectID uint64, cr repository.ClickRange) ([]repository.ClickerRecord, error)
	ClickSummaries(ctx context.Context, cr repository.ClickRange) ([]repository.ClickSummary, error)
}

const (
	maxGigTitle       = 255
	errGigMissing     = NotFoundError("External project not found")
	errProjectMissing = NotFoundError("Project not found")
)

// ExternalGigService lets staff curate gigs hosted elsewhere and lets
// consultants report clicks on them.
type ExternalGigService struct {
	gigs   GigStore
	audit  AuditLog
	users  UserLookup
	logger *log.Logger
	Now    func() time.Time
}

func NewExternalGigService(gigs GigStore, audit AuditLog, users UserLookup, logger *log.Logger) *ExternalGigService {
	if logger == nil {
		logger = log.Default()
	}
	return &ExternalGigService{gigs: gigs, audit: audit, users: users, logger: logger, Now: time.Now}
}

func (s *ExternalGigService) record(ctx context.Context, e repository.AuditEntry) {
	if err := s.audit.InsertAudit(ctx, e); err != nil {
		s.logger.Printf("external-gigs: audit %s failed: %v", e.ActionType, err)
	}
}

// sanitize strips markup and quote characters from free text used in
// titles, source names and search terms.
func sanitize(s string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "", "'", "", `"`, "").Replace(s))
}

// ListedGig is a project annotated with its expiry state.
type ListedGig struct {
	model.Project
	IsExpired bool `json:"is_expired"`
}

type ListGigsInput struct {
	Status string
	Expiry string
	Search string
}

// List returns live external gigs.  Status is a comma separated list;
// unknown values are ignored and "all" disables the filter.
func (s *ExternalGigService) List(ctx context.Context, staff model.StaffUser, in ListGigsInput) ([]ListedGig, error) {
	var statuses []model.ProjectStatus
	all := false
	for _, part := range strings.Split(strings.ToLower(in.Status), ",") {
		part = strings.TrimSpace(part)
		if part == "all" {
			all = true
		} else if ps := model.ProjectStatus(part); ps.Valid() {
			statuses = append(statuses, ps)
		}
	}
	if all {
		statuses = nil
	}
	expiry := strings.ToLower(strings.TrimSpace(in.Expiry))
	search := sanitize(in.Search)
	now := s.Now().UTC()

	projects, err := s.gigs.ListExternal(ctx, repository.ExternalFilter{
		Statuses: statuses, Expiry: expiry, Search: search, Now: now,
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to load external projects: %w", err)
	}
	out := make([]ListedGig, 0, len(projects))
	for _, p := range projects {
		out = append(out, ListedGig{Project: p, IsExpired: p.Expired(now)})
	}

	s.record(ctx, repository.AuditEntry{
		StaffID:     staff.ID,
		ActionType:  "external_projects_list_view",
		TargetTable: "projects",
		Details: map[string]any{"filters": map[string]any{
			"status": statuses, "expiry": nilIfEmpty(expiry), "search": nilIfEmpty(search),
		}},
	})
	return out, nil
}

// GigInput is the create payload.
type GigInput struct {
	Title           string   `json:"title"`
	Description     *string  `json:"description"`
	Status          string   `json:"status"`
	ExternalURL     string   `json:"external_url"`
	ExpiresAt       *string  `json:"expires_at"`
	SourceName      *string  `json:"source_name"`
	Currency        *string  `json:"currency"`
	BudgetMin       *float64 `json:"budget_min"`
	BudgetMax       *float64 `json:"budget_max"`
	DeliveryTimeMin *int     `json:"delivery_time_min"`
	DeliveryTimeMax *int     `json:"delivery_time_max"`
	SkillsRequired  []int64  `json:"skills_required"`
	Industries      []int64  `json:"industries"`
}

func checkTitle(t string) string {
	switch t = sanitize(t); {
	case t == "":
		return "title is required"
	case len(t) > maxGigTitle:
		return fmt.Sprintf("title must be at most %d characters", maxGigTitle)
	}
	return ""
}

func checkURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "external_url is required"
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "external_url must be a valid http(s) URL"
	}
	return ""
}

// parseExpiry accepts RFC 3339 timestamps or plain dates.
func parseExpiry(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func checkRange[T int | float64](name string, lo, hi *T) []string {
	var out []string
	if lo != nil && *lo < 0 {
		out = append(out, name+"_min must not be negative")
	}
	if hi != nil && *hi < 0 {
		out = append(out, name+"_max must not be negative")
	}
	if lo != nil && hi != nil && *lo > *hi {
		out = append(out, name+"_min must not exceed "+name+"_max")
	}
	return out
}

func checkIDs(name string, ids []int64) string {
	for _, id := range ids {
		if id <= 0 {
			return name + " must contain positive ids"
		}
	}
	return ""
}

func appendIf(details []string, msg string) []string {
	if msg != "" {
		return append(details, msg)
	}
	return details
}

// Create inserts a new external gig.
func (s *ExternalGigService) Create(ctx context.Context, staff model.StaffUser, in GigInput) (model.Project, error) {
	var details []string
	details = appendIf(details, checkTitle(in.Title))
	details = appendIf(details, checkURL(in.ExternalURL))
	status := model.ProjectStatus(in.Status)
	if in.Status == "" {
		status = model.ProjectOpen
	} else if !status.Valid() {
		details = append(details, "status must be one of: draft, open, in_progress, completed, cancelled")
	}
	var expires *time.Time
	if in.ExpiresAt != nil && *in.ExpiresAt != "" {
		t, ok := parseExpiry(*in.ExpiresAt)
		if !ok {
			details = append(details, "expires_at must be an ISO 8601 date")
		}
		expires = &t
	}
	details = append(details, checkRange("budget", in.BudgetMin, in.BudgetMax)...)
	details = append(details, checkRange("delivery_time", in.DeliveryTimeMin, in.DeliveryTimeMax)...)
	details = appendIf(details, checkIDs("skills_required", in.SkillsRequired))
	details = appendIf(details, checkIDs("industries", in.Industries))
	if len(details) > 0 {
		return model.Project{}, invalid("Invalid input data", details...)
	}

	p := model.Project{
		Title:           sanitize(in.Title),
		Description:     in.Description,
		Status:          status,
		ExternalURL:     strPtr(strings.TrimSpace(in.ExternalURL)),
		ExpiresAt:       expires,
		Currency:        in.Currency,
		BudgetMin:       in.BudgetMin,
		BudgetMax:       in.BudgetMax,
		DeliveryTimeMin: in.DeliveryTimeMin,
		DeliveryTimeMax: in.DeliveryTimeMax,
		SkillsRequired:  model.IntList(in.SkillsRequired),
		Industries:      model.IntList(in.Industries),
	}
	if in.SourceName != nil {
		p.SourceName = strPtr(sanitize(*in.SourceName))
	}
	if err := s.gigs.CreateExternal(ctx, &p); err != nil {
		return model.Project{}, fmt.Errorf("Failed to create external project: %w", err)
	}
	s.record(ctx, repository.AuditEntry{
		StaffID:     staff.ID,
		ActionType:  "external_project_created",
		TargetTable: "projects",
		TargetID:    strconv.FormatUint(p.ID, 10),
		Details:     map[string]any{"status": p.Status, "expires_at": p.ExpiresAt, "source_name": p.SourceName},
	})
	return p, nil
}

// ParseProjectID accepts a JSON number or a numeric string.
func ParseProjectID(raw json.RawMessage) (uint64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return id, err == nil && id > 0
}

// gigColumns lists the updatable columns in the order they are written.
var gigColumns = []string{
	"title", "description", "status", "external_url", "expires_at", "source_name", "currency",
	"budget_min", "budget_max", "delivery_time_min", "delivery_time_max", "skills_required", "industries",
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Update applies a partial update.  Only keys present in the payload are
// written; an explicit null clears the column.  Any currency in the
// payload is stored as USD.
func (s *ExternalGigService) Update(ctx context.Context, staff model.StaffUser, payload map[string]json.RawMessage) (model.Project, error) {
	id, ok := ParseProjectID(payload["id"])
	if !ok {
		return model.Project{}, invalid("Invalid input data", "id is required")
	}

	fields := map[string]any{}
	var details []string
	str := func(key string) (*string, bool) {
		raw, present := payload[key]
		if !present {
			return nil, false
		}
		if isNull(raw) {
			return nil, true
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			details = append(details, key+" must be a string")
			return nil, true
		}
		return &v, true
	}

	if v, ok := str("title"); ok {
		if v == nil {
			details = append(details, "title is required")
		} else {
			details = appendIf(details, checkTitle(*v))
			fields["title"] = sanitize(*v)
		}
	}
	if v, ok := str("description"); ok {
		fields["description"] = ptrValue(v)
	}
	if v, ok := str("status"); ok {
		if v == nil || !model.ProjectStatus(*v).Valid() {
			details = append(details, "status must be one of: draft, open, in_progress, completed, cancelled")
		} else {
			fields["status"] = *v
		}
	}
	if v, ok := str("external_url"); ok {
		if v == nil || strings.TrimSpace(*v) == "" {
			fields["external_url"] = nil
		} else {
			details = appendIf(details, checkURL(*v))
			fields["external_url"] = strings.TrimSpace(*v)
		}
	}
	if v, ok := str("expires_at"); ok {
		if v == nil || *v == "" {
			fields["expires_at"] = nil
		} else if t, ok := parseExpiry(*v); ok {
			fields["expires_at"] = t
		} else {
			details = append(details, "expires_at must be an ISO 8601 date")
		}
	}
	if v, ok := str("source_name"); ok {
		if v == nil || sanitize(*v) == "" {
			fields["source_name"] = nil
		} else {
			fields["source_name"] = sanitize(*v)
		}
	}
	if _, ok := payload["currency"]; ok {
		fields["currency"] = "USD"
	}

	budgetMin, budgetMax := decodeNum[float64](payload, "budget_min", fields, &details)
	details = append(details, checkRange("budget", budgetMin, budgetMax)...)
	timeMin, timeMax := decodeNum[int](payload, "delivery_time_min", fields, &details)
	details = append(details, checkRange("delivery_time", timeMin, timeMax)...)

	for _, key := range []string{"skills_required", "industries"} {
		raw, present := payload[key]
		if !present {
			continue
		}
		if isNull(raw) {
			if key == "industries" {
				fields[key] = model.IntList{}
			} else {
				fields[key] = model.IntList(nil)
			}
			continue
		}
		var ids []int64
		if err := json.Unmarshal(raw, &ids); err != nil {
			details = append(details, key+" must be a list of ids")
			continue
		}
		details = appendIf(details, checkIDs(key, ids))
		fields[key] = model.IntList(append([]int64{}, ids...))
	}

	if len(details) > 0 {
		return model.Project{}, invalid("Invalid input data", details...)
	}

	p, err := s.gigs.UpdateExternal(ctx, id, fields, gigColumns)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Project{}, errGigMissing
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("Failed to update external project: %w", err)
	}
	updated := make([]string, 0, len(fields))
	for _, c := range gigColumns {
		if _, ok := fields[c]; ok {
			updated = append(updated, c)
		}
	}
	s.record(ctx, repository.AuditEntry{
		StaffID:     staff.ID,
		ActionType:  "external_project_updated",
		TargetTable: "projects",
		TargetID:    strconv.FormatUint(p.ID, 10),
		Details:     map[string]any{"updated_fields": updated, "status": p.Status, "expires_at": p.ExpiresAt},
	})
	return p, nil
}

func ptrValue(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// decodeNum reads the <base>_min and <base>_max pair named by minKey into
// fields and returns the decoded values for range checks.
func decodeNum[T int | float64](payload map[string]json.RawMessage, minKey string, fields map[string]any, details *[]string) (*T, *T) {
	base := strings.TrimSuffix(minKey, "_min")
	var out [2]*T
	for i, key := range []string{base + "_min", base + "_max"} {
		raw, present := payload[key]
		if !present {
			continue
		}
		if isNull(raw) {
			fields[key] = nil
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			*details = append(*details, key+" must be a number")
			continue
		}
		fields[key] = v
		out[i] = &v
	}
	return out[0], out[1]
}

type DeleteGigResult struct {
	Success   bool      `json:"success"`
	ProjectID uint64    `json:"project_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Delete soft-deletes an external gig: status cancelled plus deleted_at.
func (s *ExternalGigService) Delete(ctx context.Context, staff model.StaffUser, rawID json.RawMessage) (DeleteGigResult, error) {
	id, ok := ParseProjectID(rawID)
	if !ok {
		return DeleteGigResult{}, invalid("Invalid input data", "id is required")
	}
	at, err := s.gigs.SoftDelete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return DeleteGigResult{}, errGigMissing
	}
	if err != nil {
		return DeleteGigResult{}, fmt.Errorf("Failed to delete external project: %w", err)
	}
	s.record(ctx, repository.AuditEntry{
		StaffID:     staff.ID,
		ActionType:  "external_project_deleted",
		TargetTable: "projects",
		TargetID:    strconv.FormatUint(id, 10),
		Details:     map[string]any{"deleted_at": at},
	})
	return DeleteGigResult{Success: true, ProjectID: id, DeletedAt: at}, nil
}

// ClickRangeFrom turns YYYY-MM-DD bounds into a whole-day UTC range.
func ClickRangeFrom(start, end string) (repository.ClickRange, error) {
	var cr repository.ClickRange
	if start != "" {
		t, err := time.Parse(time.DateOnly, start)
		if err != nil {
			return cr, invalid("Invalid start_date, expected YYYY-MM-DD")
		}
		cr.From = t.UTC()
	}
	if end != "" {
		t, err := time.Parse(time.DateOnly, end)
		if err != nil {
			return cr, invalid("Invalid end_date, expected YYYY-MM-DD")
		}
		cr.To = t.UTC().Add(24*time.Hour - time.Second)
	}
	return cr, nil
}

type ClickSummaryReport struct {
	Summary           []repository.ClickSummary `json:"summary"`
	TotalProjects     int                       `json:"total_projects"`
	TotalUniqueClicks int                       `json:"total_unique_clicks"`
}

// ClickSummary aggregates clicks per project within cr.
func (s *ExternalGigService) ClickSummary(ctx context.Context, cr repository.ClickRange) (ClickSummaryReport, error) {
	rows, err := s.gigs.ClickSummaries(ctx, cr)
	if err != nil {
		return ClickSummaryReport{}, fmt.Errorf("Failed to fetch clicks: %w", err)
	}
	rep := ClickSummaryReport{Summary: make([]repository.ClickSummary, 0, len(rows))}
	for _, r := range rows {
		if r.ProjectTitle == "" {
			r.ProjectTitle = "Unknown"
		}
		rep.Summary = append(rep.Summary, r)
		rep.TotalUniqueClicks += r.UniqueClickCount
	}
	rep.TotalProjects = len(rep.Summary)
	return rep, nil
}

// Clicker is the first click of one user on a project.
type Clicker struct {
	UserID         string            `json:"user_id"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Email          string            `json:"email"`
	FirstClickedAt time.Time         `json:"first_clicked_at"`
	ClickSource    model.ClickSource `json:"click_source"`
}

type ProjectRef struct {
	ID    uint64 `json:"id"`
	Title string `json:"title"`
}

type ProjectClickReport struct {
	Project           ProjectRef `json:"project"`
	TotalUniqueClicks int        `json:"total_unique_clicks"`
	Clicks            []Clicker  `json:"clicks"`
}

func orUnknown(p *string) string {
	if p == nil || *p == "" {
		return "Unknown"
	}
	return *p
}

// ProjectClicks lists each user's first click on a project, most recent
// first.
func (s *ExternalGigService) ProjectClicks(ctx context.Context, projectID uint64, cr repository.ClickRange) (ProjectClickReport, error) {
	p, err := s.gigs.GetByID(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		return ProjectClickReport{}, errProjectMissing
	}
	if err != nil {
		return ProjectClickReport{}, err
	}
	rows, err := s.gigs.ClicksForProject(ctx, projectID, cr)
	if err != nil {
		return ProjectClickReport{}, fmt.Errorf("Failed to fetch click details: %w", err)
	}

	seen := map[string]bool{}
	clicks := []Clicker{}
	for _, r := range rows {
		if seen[r.UserID] {
			continue
		}
		seen[r.UserID] = true
		clicks = append(clicks, Clicker{
			UserID:         r.UserID,
			FirstName:      orUnknown(r.FirstName),
			LastName:       orUnknown(r.LastName),
			Email:          orUnknown(r.Email),
			FirstClickedAt: r.CreatedAt,
			ClickSource:    r.ClickSource,
		})
	}
	sort.SliceStable(clicks, func(i, j int) bool { return clicks[i].FirstClickedAt.After(clicks[j].FirstClickedAt) })
	return ProjectClickReport{
		Project:           ProjectRef{ID: p.ID, Title: p.Title},
		TotalUniqueClicks: len(clicks),
		Clicks:            clicks,
	}, nil
}

// TrackClickInput is the body of POST /track-external-gig-click.
type TrackClickInput struct {
	ProjectID   json.RawMessage `json:"project_id"`
	ClickSource string          `json:"click_source"`
}

type TrackClickResult struct {
	Success bool   `json:"success"`
	ClickID uint64 `json:"click_id"`
}

// TrackClick logs a consultant following an external gig link.
func (s *ExternalGigService) TrackClick(ctx context.Context, userID string, in TrackClickInput) (TrackClickResult, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return TrackClickResult{}, errUserNotFound
	}
	if err != nil {
		return TrackClickResult{}, err
	}
	if u.UserType != model.UserTypeConsultant {
		return TrackClickResult{}, ForbiddenError("Only professionals can track external gig clicks")
	}

	id, ok := ParseProjectID(in.ProjectID)
	if !ok || in.ClickSource == "" {
		return TrackClickResult{}, invalid("Missing required fields: project_id and click_source")
	}
	src := model.ClickSource(in.ClickSource)
	if src != model.ClickListing && src != model.ClickDetail {
		return TrackClickResult{}, invalid(`click_source must be "listing" or "detail"`)
	}

	p, err := s.gigs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return TrackClickResult{}, errProjectMissing
	}
	if err != nil {
		return TrackClickResult{}, err
	}
	if p.ProjectOrigin != model.OriginExternal {
		return TrackClickResult{}, invalid("Project is not an external gig")
	}
	if p.ExternalURL == nil || *p.ExternalURL == "" {
		return TrackClickResult{}, invalid("External project has no external_url")
	}

	clickID, err := s.gigs.InsertClick(ctx, id, userID, src)
	if err != nil {
		return TrackClickResult{}, fmt.Errorf("Failed to track click: %w", err)
	}
	s.logger.Printf("external-gigs: click %d project=%d user=%s source=%s", clickID, id, userID, src)
	return TrackClickResult{Success: true, ClickID: clickID}, nil
}
