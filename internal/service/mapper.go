package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// ProfileStore writes the normalized profile tables.
type ProfileStore interface {
	UpdateUserBasics(ctx context.Context, userID, first, last, headline string) (bool, error)
	UpdateConsultantProfile(ctx context.Context, userID string, u repository.ProfileUpdate) error
	UpdateClientProfile(ctx context.Context, userID string, u repository.ProfileUpdate) error
	ReplaceWorkExperience(ctx context.Context, userID string, rows []repository.WorkExperienceRecord) (int, error)
	ReplaceEducation(ctx context.Context, userID string, rows []repository.EducationRecord) (int, error)
	ReplaceCertifications(ctx context.Context, userID string, rows []repository.CertificationRecord) (int, error)
	ReplaceUserSkills(ctx context.Context, userID string, skillIDs []int64) (int, error)
	ReplaceUserLanguages(ctx context.Context, userID string, langs []repository.UserLanguageRecord) (int, error)
	Skills(ctx context.Context) ([]repository.NamedID, error)
	Languages(ctx context.Context) ([]repository.NamedID, error)
	Countries(ctx context.Context) ([]repository.NamedID, error)
	InsertCreationEvent(ctx context.Context, userID, method string, metadata any) error
	Counts(ctx context.Context, userID string) (repository.SectionCounts, error)
	SetCompleteness(ctx context.Context, userID string, pct int) error
}

// ProfileUsers reads the rows completeness is computed from.
type ProfileUsers interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	GetConsultantProfile(ctx context.Context, userID string) (model.ConsultantProfile, error)
}

// Creation methods recorded in profile_creation_events.
const (
	MethodCVUpload       = "cv_upload"
	MethodAIConversation = "ai_conversational"
)

// SectionStatus reports one table write.
type SectionStatus struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type savedCount struct {
	Saved int `json:"saved"`
}

type skillsOutcome struct {
	Matched   int      `json:"matched"`
	Unmatched []string `json:"unmatched"`
}

type languagesOutcome struct {
	Matched int `json:"matched"`
}

// MapResults is the per-table outcome of mapping a profile.
type MapResults struct {
	User           SectionStatus    `json:"user"`
	Profile        SectionStatus    `json:"profile"`
	WorkExperience savedCount       `json:"workExperience"`
	Education      savedCount       `json:"education"`
	Certifications savedCount       `json:"certifications"`
	Skills         skillsOutcome    `json:"skills"`
	Languages      languagesOutcome `json:"languages"`

	errs []string
}

// Err returns the first section failure, if any.
func (r MapResults) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("Failed to save profile: %s", strings.Join(r.errs, "; "))
}

func (r *MapResults) fail(section string, err error) {
	r.errs = append(r.errs, section+": "+err.Error())
}

// ProfileMapper writes an accepted profile into the relational tables.
type ProfileMapper struct {
	store  ProfileStore
	users  ProfileUsers
	logger *log.Logger
}

func NewProfileMapper(store ProfileStore, users ProfileUsers, logger *log.Logger) *ProfileMapper {
	if logger == nil {
		logger = log.Default()
	}
	return &ProfileMapper{store: store, users: users, logger: logger}
}

// fold normalizes a catalog name for matching.  A Caser is stateful, so
// each call gets its own.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func catalogIndex(items []repository.NamedID) map[string]int64 {
	idx := make(map[string]int64, len(items))
	for _, it := range items {
		idx[fold(it.Name)] = it.ID
	}
	return idx
}

// NormalizeProficiency maps free text onto Native, Fluent, Professional or
// Basic.  Unknown and empty values become Professional.
func NormalizeProficiency(p string) string {
	l := strings.ToLower(p)
	switch {
	case l == "":
		return "Professional"
	case strings.Contains(l, "native"), strings.Contains(l, "mother"):
		return "Native"
	case strings.Contains(l, "fluent"), strings.Contains(l, "bilingual"):
		return "Fluent"
	case strings.Contains(l, "professional"), strings.Contains(l, "working"):
		return "Professional"
	case strings.Contains(l, "basic"), strings.Contains(l, "elementary"), strings.Contains(l, "beginner"):
		return "Basic"
	}
	return "Professional"
}

var monthNames = []string{"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december"}

// parseMonth accepts "March", "Mar", "3" or "03".
func parseMonth(s string) *int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= 12 {
			return &n
		}
		return nil
	}
	for i, m := range monthNames {
		if s == m || (len(s) >= 3 && strings.HasPrefix(m, s)) {
			n := i + 1
			return &n
		}
	}
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func positive(p *int) *int {
	if p == nil || *p <= 0 {
		return nil
	}
	return p
}

// Map writes p for the user.  Sections absent from p are left untouched;
// present sections replace what the user had.  Failures are collected per
// section and reported by MapResults.Err.
func (m *ProfileMapper) Map(ctx context.Context, p model.ParsedProfile, userID string, userType model.UserType) MapResults {
	res := MapResults{Skills: skillsOutcome{Unmatched: []string{}}}
	b := p.BasicInfo

	wrote, err := m.store.UpdateUserBasics(ctx, userID, b.FirstName, b.LastName, b.Headline)
	switch {
	case err != nil:
		res.User = SectionStatus{Error: err.Error()}
		res.fail("user", err)
	case !wrote:
		res.User = SectionStatus{Success: true, Skipped: true}
	default:
		res.User = SectionStatus{Success: true}
	}

	upd := repository.ProfileUpdate{Phone: b.Phone, LinkedInURL: b.LinkedInURL}
	switch userType {
	case model.UserTypeConsultant:
		upd.Address1, upd.Bio = b.Location, p.Summary
		err = m.store.UpdateConsultantProfile(ctx, userID, upd)
	case model.UserTypeClient:
		upd.Description = p.Summary
		err = m.store.UpdateClientProfile(ctx, userID, upd)
	default:
		err = nil
	}
	if err != nil {
		res.Profile = SectionStatus{Error: err.Error()}
		res.fail("profile", err)
	} else {
		res.Profile = SectionStatus{Success: true}
	}

	if len(p.WorkExperience) > 0 {
		n, err := m.saveWorkExperience(ctx, userID, p.WorkExperience)
		if err != nil {
			res.fail("work experience", err)
		}
		res.WorkExperience.Saved = n
	}
	if len(p.Education) > 0 {
		rows := make([]repository.EducationRecord, 0, len(p.Education))
		for _, e := range p.Education {
			desc := e.Description
			if desc == "" {
				desc = e.FieldOfStudy
			}
			rows = append(rows, repository.EducationRecord{
				InstitutionName: orDefault(e.InstitutionName, "Unknown Institution"),
				DegreeLevel:     orDefault(e.DegreeLevel, "Unknown"),
				Grade:           strPtr(e.Grade),
				StartDate:       strPtr(e.StartDate),
				EndDate:         strPtr(e.EndDate),
				Description:     strPtr(desc),
			})
		}
		n, err := m.store.ReplaceEducation(ctx, userID, rows)
		if err != nil {
			res.fail("education", err)
		}
		res.Education.Saved = n
	}
	if len(p.Certifications) > 0 {
		rows := make([]repository.CertificationRecord, 0, len(p.Certifications))
		for _, c := range p.Certifications {
			rows = append(rows, repository.CertificationRecord{
				Name:          orDefault(c.Name, "Unknown Certification"),
				AwardingBody:  orDefault(c.AwardingBody, "Unknown"),
				IssueDate:     strPtr(c.IssueDate),
				ExpiryDate:    strPtr(c.ExpiryDate),
				CredentialID:  strPtr(c.CredentialID),
				CredentialURL: strPtr(c.CredentialURL),
			})
		}
		n, err := m.store.ReplaceCertifications(ctx, userID, rows)
		if err != nil {
			res.fail("certifications", err)
		}
		res.Certifications.Saved = n
	}
	if len(p.Skills) > 0 {
		out, err := m.matchSkills(ctx, userID, p.Skills)
		if err != nil {
			res.fail("skills", err)
			out.Unmatched = p.Skills
		}
		res.Skills = out
	}
	if len(p.Languages) > 0 {
		n, err := m.matchLanguages(ctx, userID, p.Languages)
		if err != nil {
			res.fail("languages", err)
		}
		res.Languages.Matched = n
	}
	return res
}

func (m *ProfileMapper) saveWorkExperience(ctx context.Context, userID string, exps []model.WorkExperience) (int, error) {
	var countries map[string]int64
	if list, err := m.store.Countries(ctx); err != nil {
		m.logger.Printf("profile-mapper: loading countries: %v", err)
	} else {
		countries = catalogIndex(list)
	}
	rows := make([]repository.WorkExperienceRecord, 0, len(exps))
	for _, w := range exps {
		r := repository.WorkExperienceRecord{
			Company:          orDefault(w.Company, "Unknown Company"),
			JobTitle:         orDefault(w.JobTitle, "Unknown Role"),
			Description:      strPtr(w.Description),
			City:             strPtr(w.City),
			StartDateMonth:   parseMonth(w.StartDateMonth),
			StartDateYear:    positive(w.StartDateYear),
			CurrentlyWorking: w.CurrentlyWorking,
		}
		if !w.CurrentlyWorking {
			r.EndDateMonth = parseMonth(w.EndDateMonth)
			r.EndDateYear = positive(w.EndDateYear)
		}
		if id, ok := countries[fold(w.Country)]; ok && w.Country != "" {
			cid := int(id)
			r.CountryID = &cid
		}
		rows = append(rows, r)
	}
	return m.store.ReplaceWorkExperience(ctx, userID, rows)
}

// matchSkills links the catalog skills whose names fold-equal the given
// names and reports the rest, in their original spelling, as unmatched.
func (m *ProfileMapper) matchSkills(ctx context.Context, userID string, names []string) (skillsOutcome, error) {
	out := skillsOutcome{Unmatched: []string{}}
	catalog, err := m.store.Skills(ctx)
	if err != nil {
		return out, err
	}
	idx := catalogIndex(catalog)
	seen := map[int64]bool{}
	var ids []int64
	for _, n := range names {
		id, ok := idx[fold(n)]
		if !ok {
			out.Unmatched = append(out.Unmatched, n)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	n, err := m.store.ReplaceUserSkills(ctx, userID, ids)
	if err != nil {
		return skillsOutcome{Unmatched: []string{}}, err
	}
	out.Matched = n
	return out, nil
}

func (m *ProfileMapper) matchLanguages(ctx context.Context, userID string, langs []model.LanguageEntry) (int, error) {
	catalog, err := m.store.Languages(ctx)
	if err != nil {
		return 0, err
	}
	idx := catalogIndex(catalog)
	seen := map[int64]bool{}
	var rows []repository.UserLanguageRecord
	for _, l := range langs {
		id, ok := idx[fold(l.Language)]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, repository.UserLanguageRecord{LanguageID: id, Proficiency: NormalizeProficiency(l.Proficiency)})
	}
	return m.store.ReplaceUserLanguages(ctx, userID, rows)
}

// RecordCreation appends a profile_creation_events row.  Failures are
// logged only.
func (m *ProfileMapper) RecordCreation(ctx context.Context, userID, method string, metadata map[string]any) {
	if err := m.store.InsertCreationEvent(ctx, userID, method, metadata); err != nil {
		m.logger.Printf("profile-mapper: recording creation event for %s: %v", userID, err)
	}
}

func filled(s *string) bool { return s != nil && strings.TrimSpace(*s) != "" }

// UpdateCompleteness recomputes and stores profile_complete_pct.  Every
// user is scored on five user fields; consultants additionally on eight
// profile fields plus having work experience, skills and languages.
func (m *ProfileMapper) UpdateCompleteness(ctx context.Context, userID string, userType model.UserType) (int, error) {
	done, total := 0, 0
	count := func(ok bool) {
		total++
		if ok {
			done++
		}
	}

	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	count(filled(u.FirstName))
	count(filled(u.LastName))
	count(filled(u.Email))
	count(filled(u.ProfilePhotoURL))
	count(filled(u.Headline))

	if userType == model.UserTypeConsultant {
		p, err := m.users.GetConsultantProfile(ctx, userID)
		if err != nil && err != repository.ErrNotFound {
			return 0, err
		}
		count(filled(p.JobTitle))
		count(filled(p.Bio))
		count(filled(p.Address1))
		count(filled(p.Country))
		count(p.HourlyRateMin != nil && *p.HourlyRateMin != 0)
		count(p.HourlyRateMax != nil && *p.HourlyRateMax != 0)
		count(filled(p.Phone))
		count(filled(p.LinkedInURL))

		c, err := m.store.Counts(ctx, userID)
		if err != nil {
			return 0, err
		}
		count(c.WorkExperience > 0)
		count(c.Skills > 0)
		count(c.Languages > 0)
	}

	pct := int(math.Round(float64(done) / float64(total) * 100))
	if err := m.store.SetCompleteness(ctx, userID, pct); err != nil {
		return 0, err
	}
	return pct, nil
}
