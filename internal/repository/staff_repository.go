package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// StaffRepo reads the staff registry and writes the staff audit trail.
type StaffRepo struct{ DB *sql.DB }

func NewStaffRepo(db *sql.DB) *StaffRepo { return &StaffRepo{DB: db} }

const staffColumns = "id,user_id,email,password_hash,first_name,last_name,role,is_active,created_at,updated_at"

func scanStaff(s rowScanner) (model.StaffUser, error) {
	var u model.StaffUser
	var role string
	err := s.Scan(&u.ID, &u.UserID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	u.Role = model.StaffRole(role)
	return u, err
}

// GetActiveByUserID returns the active staff row for an auth subject or
// ErrNotFound.
func (r *StaffRepo) GetActiveByUserID(ctx context.Context, userID string) (model.StaffUser, error) {
	u, err := scanStaff(r.DB.QueryRowContext(ctx,
		"SELECT "+staffColumns+" FROM staff_users WHERE user_id=? AND is_active=TRUE LIMIT 1", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// GetByEmail returns the staff row for a normalized email, active or not.
func (r *StaffRepo) GetByEmail(ctx context.Context, email string) (model.StaffUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanStaff(r.DB.QueryRowContext(ctx,
		"SELECT "+staffColumns+" FROM staff_users WHERE email=? LIMIT 1", email))
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (r *StaffRepo) SetPasswordHash(ctx context.Context, staffID, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE staff_users SET password_hash=?, updated_at=? WHERE id=?", hash, time.Now().UTC(), staffID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a staff row, active or not.
func (r *StaffRepo) GetByID(ctx context.Context, id string) (model.StaffUser, error) {
	u, err := scanStaff(r.DB.QueryRowContext(ctx,
		"SELECT "+staffColumns+" FROM staff_users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// List returns every staff row, newest first.
func (r *StaffRepo) List(ctx context.Context) ([]model.StaffUser, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+staffColumns+" FROM staff_users ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.StaffUser{}
	for rows.Next() {
		u, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Create inserts a staff member under fresh row and auth subject ids.  A
// taken email returns ErrDuplicate.
func (r *StaffRepo) Create(ctx context.Context, u model.StaffUser) (model.StaffUser, error) {
	now := time.Now().UTC()
	u.ID, u.UserID = uuid.NewString(), uuid.NewString()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO staff_users ("+staffColumns+") VALUES (?,?,?,?,?,?,?,?,?,?)",
		u.ID, u.UserID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if isDuplicateKey(err) {
		return model.StaffUser{}, ErrDuplicate
	}
	if err != nil {
		return model.StaffUser{}, err
	}
	return u, nil
}

// StaffPatch holds the staff fields an update may change.  Nil fields are
// left alone.
type StaffPatch struct {
	FirstName *string
	LastName  *string
	Role      *model.StaffRole
	IsActive  *bool
}

// Update applies p to staff row id and returns the stored row.  Rows
// affected is not checked because an update that changes nothing within
// the same second reports zero rows; the reload returns ErrNotFound instead.
func (r *StaffRepo) Update(ctx context.Context, id string, p StaffPatch) (model.StaffUser, error) {
	sets := []string{"updated_at=?"}
	args := []any{time.Now().UTC()}
	if p.FirstName != nil {
		sets, args = append(sets, "first_name=?"), append(args, *p.FirstName)
	}
	if p.LastName != nil {
		sets, args = append(sets, "last_name=?"), append(args, *p.LastName)
	}
	if p.Role != nil {
		sets, args = append(sets, "role=?"), append(args, string(*p.Role))
	}
	if p.IsActive != nil {
		sets, args = append(sets, "is_active=?"), append(args, *p.IsActive)
	}
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE staff_users SET "+strings.Join(sets, ", ")+" WHERE id=?", append(args, id)...); err != nil {
		return model.StaffUser{}, err
	}
	return r.GetByID(ctx, id)
}

// AuditEntry is one row for audit_logs.  Details is marshalled to JSON.
type AuditEntry struct {
	StaffID     string
	ActionType  string
	TargetTable string
	TargetID    string
	Details     any
}

// InsertAudit appends an audit row.
func (r *StaffRepo) InsertAudit(ctx context.Context, e AuditEntry) error {
	var details any
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = string(b)
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_logs (staff_id, action_type, target_table, target_id, details, created_at) VALUES (?,?,?,?,?,?)",
		e.StaffID, e.ActionType, strOrNil(e.TargetTable), strOrNil(e.TargetID), details, time.Now().UTC())
	return err
}
