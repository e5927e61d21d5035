package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// DraftRepo manages profile_drafts.
type DraftRepo struct{ DB *sql.DB }

func NewDraftRepo(db *sql.DB) *DraftRepo { return &DraftRepo{DB: db} }

const draftColumns = "id,user_id,draft_json,status,last_step,source_file_ids,eligibility,completed_at,created_at,updated_at"

func scanDraft(s rowScanner) (model.ProfileDraft, error) {
	var d model.ProfileDraft
	var doc []byte
	var status, step string
	var completed sql.NullTime
	err := s.Scan(&d.ID, &d.UserID, &doc, &status, &step, &d.SourceFileIDs, &d.Eligibility, &completed, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &d.Document); err != nil {
			return d, fmt.Errorf("draft %s: malformed draft_json: %w", d.ID, err)
		}
	}
	d.Status = model.DraftStatus(status)
	d.LastStep = model.Step(step)
	d.CompletedAt = nullTime(completed)
	return d, nil
}

// Create inserts a new in_progress draft and fills ID and timestamps.
func (r *DraftRepo) Create(ctx context.Context, d *model.ProfileDraft) error {
	doc, err := json.Marshal(d.Document)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = model.DraftInProgress
	}
	if d.LastStep == "" {
		d.LastStep = model.StepBasicInfo
	}
	if d.SourceFileIDs == nil {
		d.SourceFileIDs = model.StringList{}
	}
	d.CreatedAt, d.UpdatedAt = now, now
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO profile_drafts (id, user_id, draft_json, status, last_step, source_file_ids, eligibility, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		d.ID, d.UserID, string(doc), string(d.Status), string(d.LastStep), d.SourceFileIDs, d.Eligibility, now, now)
	return err
}

// GetByID returns the draft or ErrNotFound.
func (r *DraftRepo) GetByID(ctx context.Context, id string) (model.ProfileDraft, error) {
	d, err := scanDraft(r.DB.QueryRowContext(ctx,
		"SELECT "+draftColumns+" FROM profile_drafts WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	return d, err
}

// GetOwned returns the draft when it belongs to userID, ErrForbidden when
// it belongs to someone else.
func (r *DraftRepo) GetOwned(ctx context.Context, id, userID string) (model.ProfileDraft, error) {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return d, err
	}
	if d.UserID != userID {
		return model.ProfileDraft{}, ErrForbidden
	}
	return d, nil
}

// LatestInProgress returns the most recently updated in_progress draft of
// the user or ErrNotFound.
func (r *DraftRepo) LatestInProgress(ctx context.Context, userID string) (model.ProfileDraft, error) {
	d, err := scanDraft(r.DB.QueryRowContext(ctx,
		"SELECT "+draftColumns+` FROM profile_drafts WHERE user_id=? AND status='in_progress'
		 ORDER BY updated_at DESC LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	return d, err
}

// Update writes the mutable columns of a draft that is neither completed
// nor abandoned.  A draft finalized concurrently yields ErrConflict.
func (r *DraftRepo) Update(ctx context.Context, d *model.ProfileDraft) error {
	doc, err := json.Marshal(d.Document)
	if err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE profile_drafts SET draft_json=?, status=?, last_step=?, source_file_ids=?, eligibility=?, updated_at=?
		 WHERE id=? AND status IN ('in_progress','ready_for_review')`,
		string(doc), string(d.Status), string(d.LastStep), d.SourceFileIDs, d.Eligibility, d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// MarkCompleted finalizes a draft after publish.
func (r *DraftRepo) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		"UPDATE profile_drafts SET status='completed', completed_at=?, updated_at=? WHERE id=?",
		now, now, id)
	return err
}
