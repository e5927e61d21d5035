package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// SourceFileRepo manages profile_source_files.  Parsing state changes go
// through conditional updates so that the status column itself decides
// which caller wins a race.
type SourceFileRepo struct{ DB *sql.DB }

func NewSourceFileRepo(db *sql.DB) *SourceFileRepo { return &SourceFileRepo{DB: db} }

const sourceFileColumns = `id,user_id,file_type,file_path,file_name,file_size,mime_type,extraction_status,extraction_error,
extracted_text,parsing_status,parsed_data,parsing_error,eligibility,parsing_started_at,parsing_claimed_at,created_at,updated_at`

func scanSourceFile(s rowScanner) (model.SourceFile, error) {
	var f model.SourceFile
	var fileType, extraction, parsing string
	var extErr, text, parseErr sql.NullString
	var started, claimed sql.NullTime
	err := s.Scan(&f.ID, &f.UserID, &fileType, &f.FilePath, &f.FileName, &f.FileSize, &f.MimeType,
		&extraction, &extErr, &text, &parsing, &f.ParsedData, &parseErr, &f.Eligibility,
		&started, &claimed, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return f, err
	}
	f.FileType = model.FileType(fileType)
	f.ExtractionStatus = model.ExtractionStatus(extraction)
	f.ParsingStatus = model.ParsingStatus(parsing)
	f.ExtractionError, f.ExtractedText, f.ParsingError = nullStr(extErr), nullStr(text), nullStr(parseErr)
	f.ParsingStartedAt, f.ParsingClaimedAt = nullTime(started), nullTime(claimed)
	return f, nil
}

// Create inserts a new source file row.  ID must be set by the caller.
func (r *SourceFileRepo) Create(ctx context.Context, f *model.SourceFile) error {
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	if f.ParsingStatus == "" {
		f.ParsingStatus = model.ParsingPending
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO profile_source_files
		 (id, user_id, file_type, file_path, file_name, file_size, mime_type, extraction_status, extraction_error, extracted_text, parsing_status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.UserID, string(f.FileType), f.FilePath, f.FileName, f.FileSize, f.MimeType,
		string(f.ExtractionStatus), ptrOrNil(f.ExtractionError), ptrOrNil(f.ExtractedText),
		string(f.ParsingStatus), now, now)
	return err
}

// GetByID returns the row or ErrNotFound.
func (r *SourceFileRepo) GetByID(ctx context.Context, id string) (model.SourceFile, error) {
	f, err := scanSourceFile(r.DB.QueryRowContext(ctx,
		"SELECT "+sourceFileColumns+" FROM profile_source_files WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	return f, err
}

// GetOwned returns the row when it belongs to userID, ErrForbidden when it
// belongs to someone else and ErrNotFound when it does not exist.
func (r *SourceFileRepo) GetOwned(ctx context.Context, id, userID string) (model.SourceFile, error) {
	f, err := r.GetByID(ctx, id)
	if err != nil {
		return f, err
	}
	if f.UserID != userID {
		return model.SourceFile{}, ErrForbidden
	}
	return f, nil
}

// MarkProcessing moves a pending file, or one stuck in processing since
// before staleBefore, to processing.  It returns true only for the caller
// whose update changed the row.
func (r *SourceFileRepo) MarkProcessing(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE profile_source_files
		 SET parsing_status='processing', parsing_started_at=?, parsing_claimed_at=NULL, parsing_error=NULL, updated_at=?
		 WHERE id=? AND extraction_status='completed'
		   AND (parsing_status='pending'
		        OR (parsing_status='processing' AND (parsing_started_at IS NULL OR parsing_started_at<?)))`,
		now, now, id, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Claim marks a processing file as taken by a background runner.  A claim
// older than staleBefore can be taken again.
func (r *SourceFileRepo) Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE profile_source_files SET parsing_claimed_at=?, updated_at=?
		 WHERE id=? AND parsing_status='processing' AND (parsing_claimed_at IS NULL OR parsing_claimed_at<?)`,
		now, now, id, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Complete stores a successful parse.  Only processing rows are updated.
func (r *SourceFileRepo) Complete(ctx context.Context, id string, parsed, eligibility model.RawJSON) error {
	return r.finish(ctx,
		`UPDATE profile_source_files SET parsing_status='completed', parsed_data=?, eligibility=?, parsing_error=NULL, updated_at=?
		 WHERE id=? AND parsing_status='processing'`,
		parsed, eligibility, time.Now().UTC(), id)
}

// Fail stores a parse error.  Only processing rows are updated.
func (r *SourceFileRepo) Fail(ctx context.Context, id, msg string) error {
	return r.finish(ctx,
		`UPDATE profile_source_files SET parsing_status='failed', parsing_error=?, updated_at=?
		 WHERE id=? AND parsing_status='processing'`,
		msg, time.Now().UTC(), id)
}

func (r *SourceFileRepo) finish(ctx context.Context, q string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, q, args...)
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

// ListCompletedByUser returns the user's files with completed extraction.
// When ids is non-empty only those files are considered.
func (r *SourceFileRepo) ListCompletedByUser(ctx context.Context, userID string, ids []string) ([]model.SourceFile, error) {
	q := "SELECT " + sourceFileColumns + " FROM profile_source_files WHERE user_id=? AND extraction_status='completed'"
	args := []any{userID}
	if len(ids) > 0 {
		q += " AND id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	q += " ORDER BY created_at ASC"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SourceFile{}
	for rows.Next() {
		f, err := scanSourceFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
