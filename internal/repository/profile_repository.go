package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// ProfileRepo writes the normalized profile tables that a published draft
// or a saved CV parse is mapped into, and reads them back for staff review.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

// WorkExperienceRecord mirrors the work_experience table.
type WorkExperienceRecord struct {
	ID               uint64    `json:"id"`
	UserID           string    `json:"user_id"`
	Company          string    `json:"company"`
	JobTitle         string    `json:"job_title"`
	Description      *string   `json:"description"`
	City             *string   `json:"city"`
	CountryID        *int      `json:"country_id"`
	StartDateMonth   *int      `json:"start_date_month"`
	StartDateYear    *int      `json:"start_date_year"`
	EndDateMonth     *int      `json:"end_date_month"`
	EndDateYear      *int      `json:"end_date_year"`
	CurrentlyWorking bool      `json:"currently_working"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EducationRecord mirrors the education table.
type EducationRecord struct {
	ID              uint64  `json:"id"`
	UserID          string  `json:"user_id"`
	InstitutionName string  `json:"institution_name"`
	DegreeLevel     string  `json:"degree_level"`
	Grade           *string `json:"grade"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
	Description     *string `json:"description"`
}

// CertificationRecord mirrors the certifications table.
type CertificationRecord struct {
	ID            uint64  `json:"id"`
	UserID        string  `json:"user_id"`
	Name          string  `json:"name"`
	AwardingBody  string  `json:"awarding_body"`
	IssueDate     *string `json:"issue_date"`
	ExpiryDate    *string `json:"expiry_date"`
	CredentialID  *string `json:"credential_id"`
	CredentialURL *string `json:"credential_url"`
}

// UserLanguageRecord links a user to a catalog language.
type UserLanguageRecord struct {
	LanguageID  int64  `json:"language_id"`
	Name        string `json:"name,omitempty"`
	Proficiency string `json:"proficiency"`
}

// NamedID is a catalog entry (skills, languages, countries).
type NamedID struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UserBasics updates the non-empty name and headline fields.  It reports
// false when there was nothing to write.
func (r *ProfileRepo) UpdateUserBasics(ctx context.Context, userID, first, last, headline string) (bool, error) {
	sets, args := "", []any{}
	add := func(col, v string) {
		if v == "" {
			return
		}
		sets += col + "=?, "
		args = append(args, v)
	}
	add("first_name", first)
	add("last_name", last)
	add("headline", headline)
	if sets == "" {
		return false, nil
	}
	args = append(args, time.Now().UTC(), userID)
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET "+sets+"updated_at=? WHERE id=?", args...)
	return err == nil, err
}

// ProfileUpdate lists the profile columns to overwrite; empty values are
// left untouched.
type ProfileUpdate struct {
	Phone       string
	LinkedInURL string
	Address1    string
	Bio         string
	Description string
}

// UpdateConsultantProfile writes contact, location and bio fields.
func (r *ProfileRepo) UpdateConsultantProfile(ctx context.Context, userID string, u ProfileUpdate) error {
	return r.updateProfile(ctx, "consultant_profiles", userID, map[string]string{
		"phone": u.Phone, "linkedin_url": u.LinkedInURL, "address1": u.Address1, "bio": u.Bio,
	})
}

// UpdateClientProfile writes contact fields and the company description.
func (r *ProfileRepo) UpdateClientProfile(ctx context.Context, userID string, u ProfileUpdate) error {
	return r.updateProfile(ctx, "client_profiles", userID, map[string]string{
		"phone": u.Phone, "linkedin_url": u.LinkedInURL, "description": u.Description,
	})
}

func (r *ProfileRepo) updateProfile(ctx context.Context, table, userID string, cols map[string]string) error {
	sets, args := "", []any{}
	// fixed order keeps statements stable for tests
	for _, c := range []string{"phone", "linkedin_url", "address1", "bio", "description"} {
		v, ok := cols[c]
		if !ok || v == "" {
			continue
		}
		sets += c + "=?, "
		args = append(args, v)
	}
	args = append(args, time.Now().UTC(), userID)
	_, err := r.DB.ExecContext(ctx, "UPDATE "+table+" SET "+sets+"updated_at=? WHERE user_id=?", args...)
	return err
}

// ReplaceWorkExperience deletes the user's entries and inserts rows in one
// transaction.  It returns the number of inserted rows.
func (r *ProfileRepo) ReplaceWorkExperience(ctx context.Context, userID string, rows []WorkExperienceRecord) (int, error) {
	return r.replace(ctx, "work_experience", userID, len(rows), func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, w := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO work_experience (user_id, company, job_title, description, city, country_id,
				 start_date_month, start_date_year, end_date_month, end_date_year, currently_working, created_at, updated_at)
				 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				userID, w.Company, w.JobTitle, ptrOrNil(w.Description), ptrOrNil(w.City), ptrOrNil(w.CountryID),
				ptrOrNil(w.StartDateMonth), ptrOrNil(w.StartDateYear), ptrOrNil(w.EndDateMonth), ptrOrNil(w.EndDateYear),
				w.CurrentlyWorking, now, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceEducation replaces the user's education entries.
func (r *ProfileRepo) ReplaceEducation(ctx context.Context, userID string, rows []EducationRecord) (int, error) {
	return r.replace(ctx, "education", userID, len(rows), func(tx *sql.Tx) error {
		for _, e := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO education (user_id, institution_name, degree_level, grade, start_date, end_date, description)
				 VALUES (?,?,?,?,?,?,?)`,
				userID, e.InstitutionName, e.DegreeLevel, ptrOrNil(e.Grade), ptrOrNil(e.StartDate), ptrOrNil(e.EndDate), ptrOrNil(e.Description))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceCertifications replaces the user's certifications.
func (r *ProfileRepo) ReplaceCertifications(ctx context.Context, userID string, rows []CertificationRecord) (int, error) {
	return r.replace(ctx, "certifications", userID, len(rows), func(tx *sql.Tx) error {
		for _, c := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO certifications (user_id, name, awarding_body, issue_date, expiry_date, credential_id, credential_url)
				 VALUES (?,?,?,?,?,?,?)`,
				userID, c.Name, c.AwardingBody, ptrOrNil(c.IssueDate), ptrOrNil(c.ExpiryDate), ptrOrNil(c.CredentialID), ptrOrNil(c.CredentialURL))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceUserSkills replaces the user's skill links.
func (r *ProfileRepo) ReplaceUserSkills(ctx context.Context, userID string, skillIDs []int64) (int, error) {
	return r.replace(ctx, "user_skills", userID, len(skillIDs), func(tx *sql.Tx) error {
		for _, id := range skillIDs {
			if _, err := tx.ExecContext(ctx, "INSERT IGNORE INTO user_skills (user_id, skill_id) VALUES (?,?)", userID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceUserLanguages replaces the user's language links.
func (r *ProfileRepo) ReplaceUserLanguages(ctx context.Context, userID string, langs []UserLanguageRecord) (int, error) {
	return r.replace(ctx, "user_languages", userID, len(langs), func(tx *sql.Tx) error {
		for _, l := range langs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO user_languages (user_id, language_id, proficiency) VALUES (?,?,?)
				 ON DUPLICATE KEY UPDATE proficiency=VALUES(proficiency)`,
				userID, l.LanguageID, l.Proficiency)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ProfileRepo) replace(ctx context.Context, table, userID string, n int, insert func(*sql.Tx) error) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id=?", userID); err != nil {
		return 0, err
	}
	if err := insert(tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// Skills, Languages and Countries return the whole catalog.  The tables
// are small reference lists.
func (r *ProfileRepo) Skills(ctx context.Context) ([]NamedID, error) {
	return r.catalog(ctx, "SELECT id, name FROM skills ORDER BY name")
}

func (r *ProfileRepo) Languages(ctx context.Context) ([]NamedID, error) {
	return r.catalog(ctx, "SELECT id, name FROM languages ORDER BY name")
}

func (r *ProfileRepo) Countries(ctx context.Context) ([]NamedID, error) {
	return r.catalog(ctx, "SELECT id, name FROM countries ORDER BY name")
}

func (r *ProfileRepo) catalog(ctx context.Context, q string) ([]NamedID, error) {
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []NamedID{}
	for rows.Next() {
		var n NamedID
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// InsertCreationEvent records how a profile was created (ai_conversational,
// cv_upload) for analytics.
func (r *ProfileRepo) InsertCreationEvent(ctx context.Context, userID, method string, metadata any) error {
	b, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO profile_creation_events (user_id, method, metadata, created_at) VALUES (?,?,?,?)",
		userID, method, string(b), time.Now().UTC())
	return err
}

// SectionCounts holds the number of rows in the list sections of a profile.
type SectionCounts struct {
	WorkExperience int
	Skills         int
	Languages      int
}

func (r *ProfileRepo) Counts(ctx context.Context, userID string) (SectionCounts, error) {
	var c SectionCounts
	err := r.DB.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM work_experience WHERE user_id=?),
		        (SELECT COUNT(*) FROM user_skills WHERE user_id=?),
		        (SELECT COUNT(*) FROM user_languages WHERE user_id=?)`,
		userID, userID, userID).Scan(&c.WorkExperience, &c.Skills, &c.Languages)
	return c, err
}

// SetCompleteness stores the computed completeness percentage.
func (r *ProfileRepo) SetCompleteness(ctx context.Context, userID string, pct int) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET profile_complete_pct=?, updated_at=? WHERE id=?", pct, time.Now().UTC(), userID)
	return err
}

// WorkExperience lists entries, most recent start first.
func (r *ProfileRepo) WorkExperience(ctx context.Context, userID string) ([]WorkExperienceRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, company, job_title, description, city, country_id, start_date_month, start_date_year,
		        end_date_month, end_date_year, currently_working, created_at, updated_at
		 FROM work_experience WHERE user_id=? ORDER BY start_date_year DESC, start_date_month DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WorkExperienceRecord{}
	for rows.Next() {
		var w WorkExperienceRecord
		var desc, city sql.NullString
		var country, sm, sy, em, ey sql.NullInt64
		if err := rows.Scan(&w.ID, &w.UserID, &w.Company, &w.JobTitle, &desc, &city, &country, &sm, &sy, &em, &ey,
			&w.CurrentlyWorking, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		w.Description, w.City = nullStr(desc), nullStr(city)
		w.CountryID, w.StartDateMonth, w.StartDateYear = nullInt(country), nullInt(sm), nullInt(sy)
		w.EndDateMonth, w.EndDateYear = nullInt(em), nullInt(ey)
		out = append(out, w)
	}
	return out, rows.Err()
}

// Education lists entries, most recent start first.
func (r *ProfileRepo) Education(ctx context.Context, userID string) ([]EducationRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, institution_name, degree_level, grade, start_date, end_date, description
		 FROM education WHERE user_id=? ORDER BY start_date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []EducationRecord{}
	for rows.Next() {
		var e EducationRecord
		var grade, start, end, desc sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.InstitutionName, &e.DegreeLevel, &grade, &start, &end, &desc); err != nil {
			return nil, err
		}
		e.Grade, e.StartDate, e.EndDate, e.Description = nullStr(grade), nullStr(start), nullStr(end), nullStr(desc)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Certifications lists entries, most recent issue first.
func (r *ProfileRepo) Certifications(ctx context.Context, userID string) ([]CertificationRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, name, awarding_body, issue_date, expiry_date, credential_id, credential_url
		 FROM certifications WHERE user_id=? ORDER BY issue_date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CertificationRecord{}
	for rows.Next() {
		var c CertificationRecord
		var issue, expiry, credID, credURL sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.AwardingBody, &issue, &expiry, &credID, &credURL); err != nil {
			return nil, err
		}
		c.IssueDate, c.ExpiryDate, c.CredentialID, c.CredentialURL = nullStr(issue), nullStr(expiry), nullStr(credID), nullStr(credURL)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UserSkills returns the names of the user's skills.
func (r *ProfileRepo) UserSkills(ctx context.Context, userID string) ([]model.Skill, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT s.id, s.name FROM user_skills us JOIN skills s ON s.id = us.skill_id
		 WHERE us.user_id=? ORDER BY s.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Skill{}
	for rows.Next() {
		var s model.Skill
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UserLanguages returns the user's languages with names.
func (r *ProfileRepo) UserLanguages(ctx context.Context, userID string) ([]UserLanguageRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT l.id, l.name, ul.proficiency FROM user_languages ul JOIN languages l ON l.id = ul.language_id
		 WHERE ul.user_id=? ORDER BY l.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []UserLanguageRecord{}
	for rows.Next() {
		var l UserLanguageRecord
		if err := rows.Scan(&l.LanguageID, &l.Name, &l.Proficiency); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertAIUsage records token usage and estimated cost of one LLM call.
func (r *ProfileRepo) InsertAIUsage(ctx context.Context, userID, feature, model string, prompt, completion, total int, cost float64, metadata any) error {
	b, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO ai_usage_events (user_id, feature, model, prompt_tokens, completion_tokens, total_tokens, cost_estimate_usd, metadata, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		userID, feature, model, prompt, completion, total, cost, string(b), time.Now().UTC())
	return err
}
