package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// VettingRepo appends and lists vetting decisions.
type VettingRepo struct{ DB *sql.DB }

func NewVettingRepo(db *sql.DB) *VettingRepo { return &VettingRepo{DB: db} }

// InsertDecision appends a decision row.  Decisions are never updated.
func (r *VettingRepo) InsertDecision(ctx context.Context, d model.VettingDecision) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO vetting_decisions (user_id, staff_id, staff_name, action, notes, requested_info_text, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		d.UserID, d.StaffID, d.StaffName, string(d.Action), ptrOrNil(d.Notes), ptrOrNil(d.RequestedInfoText), d.CreatedAt)
	return err
}

// ListByUser returns the decision history for a user, newest first.
func (r *VettingRepo) ListByUser(ctx context.Context, userID string) ([]model.VettingDecision, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, staff_id, staff_name, action, notes, requested_info_text, created_at
		 FROM vetting_decisions WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.VettingDecision{}
	for rows.Next() {
		var d model.VettingDecision
		var action string
		var notes, info sql.NullString
		if err := rows.Scan(&d.ID, &d.UserID, &d.StaffID, &d.StaffName, &action, &notes, &info, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Action = model.DecisionAction(action)
		d.Notes, d.RequestedInfoText = nullStr(notes), nullStr(info)
		out = append(out, d)
	}
	return out, rows.Err()
}
