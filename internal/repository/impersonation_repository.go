package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// ImpersonationRepo persists impersonation sessions.  Like refresh tokens,
// only the SHA-256 of the session token is stored.
type ImpersonationRepo struct{ DB *sql.DB }

func NewImpersonationRepo(db *sql.DB) *ImpersonationRepo { return &ImpersonationRepo{DB: db} }

// Create inserts an active session and returns it.
func (r *ImpersonationRepo) Create(ctx context.Context, staffID, userID, tokenHash string, exp time.Time) (model.ImpersonationSession, error) {
	s := model.ImpersonationSession{
		ID:                 uuid.NewString(),
		StaffID:            staffID,
		ImpersonatedUserID: userID,
		SessionTokenHash:   tokenHash,
		IsActive:           true,
		ExpiresAt:          exp.UTC(),
		CreatedAt:          time.Now().UTC(),
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO impersonation_sessions (id, staff_id, impersonated_user_id, session_token_hash, is_active, expires_at, created_at)
		 VALUES (?,?,?,?,TRUE,?,?)`,
		s.ID, s.StaffID, s.ImpersonatedUserID, s.SessionTokenHash, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return model.ImpersonationSession{}, err
	}
	return s, nil
}

// GetByTokenHash returns the session for a token hash or ErrNotFound.
func (r *ImpersonationRepo) GetByTokenHash(ctx context.Context, tokenHash string) (model.ImpersonationSession, error) {
	var s model.ImpersonationSession
	var ended sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, staff_id, impersonated_user_id, session_token_hash, is_active, expires_at, ended_at, created_at
		 FROM impersonation_sessions WHERE session_token_hash=? LIMIT 1`, tokenHash).
		Scan(&s.ID, &s.StaffID, &s.ImpersonatedUserID, &s.SessionTokenHash, &s.IsActive, &s.ExpiresAt, &ended, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.EndedAt = nullTime(ended)
	return s, nil
}

// End marks the session inactive.  Ending an already ended session
// returns ErrNotFound.
func (r *ImpersonationRepo) End(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE impersonation_sessions SET is_active=FALSE, ended_at=? WHERE id=? AND is_active=TRUE",
		time.Now().UTC(), id)
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

// EndAllForStaff ends every live session a staff member opened.
func (r *ImpersonationRepo) EndAllForStaff(ctx context.Context, staffID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE impersonation_sessions SET is_active=FALSE, ended_at=? WHERE staff_id=? AND is_active=TRUE",
		time.Now().UTC(), staffID)
	return err
}
