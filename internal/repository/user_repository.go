package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,first_name,last_name,headline,profile_photo_url,user_type,role,status,vetting_status,profile_complete_pct,created_at,updated_at"

func scanUser(s rowScanner) (model.User, error) {
	var u model.User
	var email, first, last, headline, photo, vetting sql.NullString
	var userType string
	err := s.Scan(&u.ID, &email, &first, &last, &headline, &photo, &userType,
		&u.Role, &u.Status, &vetting, &u.ProfileCompletePct, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	u.Email = nullStr(email)
	u.FirstName = nullStr(first)
	u.LastName = nullStr(last)
	u.Headline = nullStr(headline)
	u.ProfilePhotoURL = nullStr(photo)
	u.UserType = model.UserType(userType)
	if vetting.Valid {
		vs := model.VettingStatus(vetting.String)
		u.VettingStatus = &vs
	}
	return u, nil
}

// GetByID fetches a user by id.  Missing rows yield ErrNotFound.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// ListByIDs returns the users among ids that exist, in no particular order.
func (r *UserRepo) ListByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Registration carries the validated fields of a new account.
type Registration struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	UserType    model.UserType
	CompanyName string
}

// Register inserts the user and its type-specific profile in one
// transaction.  Consultants get a consultant_profiles row, clients a
// client_profiles row whose company_name is CompanyName or "".  A second
// registration for the same id or email returns ErrDuplicate.
func (r *UserRepo) Register(ctx context.Context, reg Registration) (model.User, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, user_type, role, status, vetting_status, created_at, updated_at)
		 VALUES (?,?,?,?,?,'authenticated','registered','pending',?,?)`,
		reg.ID, strings.ToLower(strings.TrimSpace(reg.Email)), strings.TrimSpace(reg.FirstName),
		strings.TrimSpace(reg.LastName), string(reg.UserType), now, now)
	if err != nil {
		if isDuplicateKey(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, err
	}

	switch reg.UserType {
	case model.UserTypeConsultant:
		_, err = tx.ExecContext(ctx,
			"INSERT INTO consultant_profiles (user_id, created_at, updated_at) VALUES (?,?,?)",
			reg.ID, now, now)
	case model.UserTypeClient:
		_, err = tx.ExecContext(ctx,
			"INSERT INTO client_profiles (user_id, company_name, created_at, updated_at) VALUES (?,?,?,?)",
			reg.ID, strings.TrimSpace(reg.CompanyName), now, now)
	}
	if err != nil {
		if isDuplicateKey(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, err
	}

	u, err := scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=?", reg.ID))
	if err != nil {
		return model.User{}, err
	}
	return u, tx.Commit()
}

// UpdateVettingStatus writes the new status and bumps updated_at.
func (r *UserRepo) UpdateVettingStatus(ctx context.Context, id string, status model.VettingStatus) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET vetting_status=?, updated_at=? WHERE id=?",
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReminderCandidates returns users never reviewed (vetting status NULL
// or pending) that have an email, oldest first.
func (r *UserRepo) ListReminderCandidates(ctx context.Context, limit int) ([]model.User, error) {
	return r.list(ctx,
		"SELECT "+userColumns+` FROM users
		 WHERE (vetting_status IS NULL OR vetting_status='pending') AND email IS NOT NULL
		 ORDER BY created_at ASC LIMIT ?`, limit)
}

// ListNudgeCandidates returns approved users whose last update is at or
// before cutoff.
func (r *UserRepo) ListNudgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.User, error) {
	return r.list(ctx,
		"SELECT "+userColumns+` FROM users
		 WHERE vetting_status IN ('verified','vetted') AND updated_at <= ? AND email IS NOT NULL
		 ORDER BY updated_at ASC LIMIT ?`, cutoff, limit)
}

// ListByVettingStatus returns users in any of statuses, newest update first.
func (r *UserRepo) ListByVettingStatus(ctx context.Context, statuses []model.VettingStatus) ([]model.User, error) {
	if len(statuses) == 0 {
		return []model.User{}, nil
	}
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return r.list(ctx,
		"SELECT "+userColumns+" FROM users WHERE vetting_status IN ("+placeholders(len(statuses))+
			") ORDER BY updated_at DESC", args...)
}

func (r *UserRepo) list(ctx context.Context, q string, args ...any) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// HasActivity reports whether the user has done anything since approval:
// any bid for consultants, any created project for clients.
func (r *UserRepo) HasActivity(ctx context.Context, id string, t model.UserType) (bool, error) {
	q := "SELECT COUNT(*) FROM projects WHERE creator_id=?"
	if t == model.UserTypeConsultant {
		q = "SELECT COUNT(*) FROM bids WHERE consultant_id=?"
	}
	var n int
	if err := r.DB.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetConsultantProfile returns ErrNotFound when the user has no row.
func (r *UserRepo) GetConsultantProfile(ctx context.Context, userID string) (model.ConsultantProfile, error) {
	var p model.ConsultantProfile
	var job, bio, addr, country, phone, linkedin sql.NullString
	var rmin, rmax sql.NullFloat64
	err := r.DB.QueryRowContext(ctx,
		`SELECT user_id, job_title, bio, address1, country, hourly_rate_min, hourly_rate_max, phone, linkedin_url, industries, created_at, updated_at
		 FROM consultant_profiles WHERE user_id=?`, userID).
		Scan(&p.UserID, &job, &bio, &addr, &country, &rmin, &rmax, &phone, &linkedin, &p.Industries, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.JobTitle, p.Bio, p.Address1, p.Country = nullStr(job), nullStr(bio), nullStr(addr), nullStr(country)
	p.Phone, p.LinkedInURL = nullStr(phone), nullStr(linkedin)
	p.HourlyRateMin, p.HourlyRateMax = nullFloat(rmin), nullFloat(rmax)
	return p, nil
}

// GetClientProfile returns ErrNotFound when the user has no row.
func (r *UserRepo) GetClientProfile(ctx context.Context, userID string) (model.ClientProfile, error) {
	ps, err := r.ClientProfilesByUserIDs(ctx, []string{userID})
	if err != nil {
		return model.ClientProfile{}, err
	}
	if len(ps) == 0 {
		return model.ClientProfile{}, ErrNotFound
	}
	return ps[0], nil
}

// ClientProfilesByUserIDs loads the client profiles of the given users.
func (r *UserRepo) ClientProfilesByUserIDs(ctx context.Context, ids []string) ([]model.ClientProfile, error) {
	if len(ids) == 0 {
		return []model.ClientProfile{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT user_id, company_name, logo_url, description, phone, linkedin_url, created_at, updated_at
		 FROM client_profiles WHERE user_id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ClientProfile{}
	for rows.Next() {
		var p model.ClientProfile
		var logo, desc, phone, linkedin sql.NullString
		if err := rows.Scan(&p.UserID, &p.CompanyName, &logo, &desc, &phone, &linkedin, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.LogoURL, p.Description, p.Phone, p.LinkedInURL = nullStr(logo), nullStr(desc), nullStr(phone), nullStr(linkedin)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SkillIDs returns the catalog ids attached to the user.
func (r *UserRepo) SkillIDs(ctx context.Context, userID string) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT skill_id FROM user_skills WHERE user_id=? ORDER BY skill_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
