package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gigexecs/gigexecs-api/internal/ai"
	"github.com/gigexecs/gigexecs-api/internal/extract"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/queue"
	"github.com/gigexecs/gigexecs-api/internal/repository"
	"github.com/gigexecs/gigexecs-api/internal/storage"
)

const (
	// MaxUploadBytes is the decoded size limit of an uploaded document.
	MaxUploadBytes = 10 << 20
	// MaxCVTokens bounds the text sent to the model for one parse.
	MaxCVTokens = 4500

	minPastedChars = 100
	maxPastedChars = 30000
)

// SourceFiles is the source file store used by the parse pipeline.
type SourceFiles interface {
	Create(ctx context.Context, f *model.SourceFile) error
	GetByID(ctx context.Context, id string) (model.SourceFile, error)
	GetOwned(ctx context.Context, id, userID string) (model.SourceFile, error)
	MarkProcessing(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	Complete(ctx context.Context, id string, parsed, eligibility model.RawJSON) error
	Fail(ctx context.Context, id, msg string) error
	ListCompletedByUser(ctx context.Context, userID string, ids []string) ([]model.SourceFile, error)
}

// Blobs stores uploaded documents.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// ProfileAI is the language model client.
type ProfileAI interface {
	Configured() bool
	ParseCV(ctx context.Context, userID, text, sourceFileID string) (model.RawJSON, ai.Usage, error)
	AssessEligibility(ctx context.Context, userID string, profile any, draftID string) (model.Eligibility, ai.Usage, error)
	StartConversation(ctx context.Context, userID string, in ai.StartInput) (ai.Reply, ai.Usage, error)
	ContinueConversation(ctx context.Context, userID string, in ai.ContinueInput) (ai.Reply, ai.Usage, error)
}

// JobPublisher hands parse jobs to background workers.
type JobPublisher interface {
	PublishParseJob(ctx context.Context, job queue.ParseCVJob) error
}

// ParseService runs the CV upload and parse flow.
type ParseService struct {
	files  SourceFiles
	blobs  Blobs
	ai     ProfileAI
	jobs   JobPublisher
	logger *log.Logger

	Now        func() time.Time
	StaleAfter time.Duration
}

// NewParseService wires the pipeline.  jobs may be nil, in which case the
// client drives the background step itself.
func NewParseService(files SourceFiles, blobs Blobs, client ProfileAI, jobs JobPublisher, staleAfter time.Duration, logger *log.Logger) *ParseService {
	if logger == nil {
		logger = log.Default()
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &ParseService{files: files, blobs: blobs, ai: client, jobs: jobs, logger: logger, Now: time.Now, StaleAfter: staleAfter}
}

var allowedUploadMimes = []string{extract.MimePDF, extract.MimeDOC, extract.MimeDOCX}

// UploadInput is the body of an upload request.
type UploadInput struct {
	UserID   string
	FileData string
	FileName string
	MimeType string
	FileType string
}

// UploadResult describes a stored upload.  Error is set when extraction
// failed; the record is still persisted in that case.
type UploadResult struct {
	Success          bool                   `json:"success"`
	Error            string                 `json:"error,omitempty"`
	SourceFileID     string                 `json:"sourceFileId"`
	FilePath         string                 `json:"filePath"`
	FileName         string                 `json:"fileName"`
	FileSize         int64                  `json:"fileSize"`
	MimeType         string                 `json:"mimeType"`
	FileType         model.FileType         `json:"fileType"`
	ExtractionStatus model.ExtractionStatus `json:"extractionStatus"`
	TextLength       int                    `json:"textLength"`
	Warnings         []string               `json:"warnings"`
}

var dataURLPrefix = regexp.MustCompile(`^data:[^;]+;base64,`)

func decodeBase64(s string) ([]byte, error) {
	s = dataURLPrefix.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Upload validates, stores and extracts a document.
func (s *ParseService) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	switch {
	case in.FileData == "":
		return UploadResult{}, invalid("Missing required field: fileData (base64 encoded file)")
	case in.FileName == "":
		return UploadResult{}, invalid("Missing required field: fileName")
	case in.MimeType == "":
		return UploadResult{}, invalid("Missing required field: mimeType")
	}
	allowed := false
	for _, m := range allowedUploadMimes {
		allowed = allowed || m == in.MimeType
	}
	if !allowed {
		return UploadResult{}, invalid(fmt.Sprintf("Invalid file type: %s. Allowed types: PDF, DOC, DOCX", in.MimeType))
	}
	ft := model.FileType(in.FileType)
	if ft == "" {
		ft = model.FileTypeCV
	}
	if !ft.Valid() {
		return UploadResult{}, invalid("Invalid fileType. Allowed: cv, portfolio, certification, other")
	}
	data, err := decodeBase64(in.FileData)
	if err != nil || len(data) == 0 {
		return UploadResult{}, invalid("Invalid base64 file data")
	}
	if len(data) > MaxUploadBytes {
		return UploadResult{}, invalid("File too large. Maximum size is 10MB")
	}

	key := storage.CVKey(in.UserID, s.Now(), in.FileName)
	if err := s.blobs.Put(ctx, key, data); err != nil {
		return UploadResult{}, fmt.Errorf("Upload failed: %w", err)
	}

	f := model.SourceFile{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		FileType:         ft,
		FilePath:         key,
		FileName:         in.FileName,
		FileSize:         int64(len(data)),
		MimeType:         in.MimeType,
		ExtractionStatus: model.ExtractionCompleted,
		ParsingStatus:    model.ParsingPending,
	}
	var warnings []string
	res, xerr := extract.Extract(data, in.MimeType)
	if xerr == nil {
		if v := extract.Validate(res.Text); !v.Valid {
			xerr = errors.New(v.Reason)
		} else if v.Reason != "" {
			warnings = append(warnings, v.Reason)
		}
	}
	if xerr != nil {
		msg := xerr.Error()
		f.ExtractionStatus = model.ExtractionFailed
		f.ExtractionError = &msg
	} else {
		f.ExtractedText = &res.Text
	}

	if err := s.files.Create(ctx, &f); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Printf("parse: cleaning up %s: %v", key, derr)
		}
		return UploadResult{}, fmt.Errorf("Failed to save file record: %w", err)
	}
	s.logger.Printf("parse: stored %s for user %s (%d bytes, extraction %s)", f.ID, in.UserID, f.FileSize, f.ExtractionStatus)

	out := UploadResult{
		Success:          xerr == nil,
		SourceFileID:     f.ID,
		FilePath:         f.FilePath,
		FileName:         f.FileName,
		FileSize:         f.FileSize,
		MimeType:         f.MimeType,
		FileType:         f.FileType,
		ExtractionStatus: f.ExtractionStatus,
		TextLength:       utf8.RuneCountInString(f.Text()),
		Warnings:         warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	if xerr != nil {
		out.Error = xerr.Error()
	}
	return out, nil
}

func (s *ParseService) owned(ctx context.Context, id, userID string) (model.SourceFile, error) {
	f, err := s.files.GetOwned(ctx, id, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return f, NotFoundError("Source file not found")
	case errors.Is(err, repository.ErrForbidden):
		return f, ForbiddenError("Access denied: You do not own this file")
	}
	return f, err
}

// TriggerResult is the answer to a parse request.  Accepted is true when
// the parse is running and the client should poll.
type TriggerResult struct {
	Accepted bool `json:"-"`

	Success            bool                `json:"success"`
	Status             model.ParsingStatus `json:"status"`
	SourceFileID       string              `json:"sourceFileId"`
	UserID             string              `json:"userId,omitempty"`
	Message            string              `json:"message,omitempty"`
	PollEndpoint       string              `json:"pollEndpoint,omitempty"`
	BackgroundEndpoint string              `json:"backgroundEndpoint,omitempty"`
	Queued             bool                `json:"queued"`
	ParsedData         model.RawJSON       `json:"parsedData,omitempty"`
	Eligibility        model.RawJSON       `json:"eligibility,omitempty"`
	ExtractedText      *string             `json:"extractedText,omitempty"`
	ParsingError       *string             `json:"parsingError,omitempty"`
}

const (
	pollEndpoint       = "/profile-parse-cv-status"
	backgroundEndpoint = "/profile-parse-cv-background"
)

func (s *ParseService) staleBefore() time.Time { return s.Now().Add(-s.StaleAfter) }

// Trigger starts parsing a file.  Finished parses are returned as they
// are and never re-run; a running parse is reported as accepted.  Only the
// caller that moves the row to processing enqueues a job.
func (s *ParseService) Trigger(ctx context.Context, userID, sourceFileID string) (TriggerResult, error) {
	if sourceFileID == "" {
		return TriggerResult{}, invalid("Missing required field: sourceFileId")
	}
	f, err := s.owned(ctx, sourceFileID, userID)
	if err != nil {
		return TriggerResult{}, err
	}
	if f.ExtractionStatus != model.ExtractionCompleted || f.Text() == "" {
		msg := "Text extraction not completed"
		if f.ExtractionError != nil && *f.ExtractionError != "" {
			msg = *f.ExtractionError
		}
		return TriggerResult{}, invalid(msg)
	}

	res := TriggerResult{Success: true, SourceFileID: f.ID, Status: f.ParsingStatus}
	switch f.ParsingStatus {
	case model.ParsingCompleted:
		res.ParsedData, res.Eligibility, res.ExtractedText = f.ParsedData, f.Eligibility, f.ExtractedText
		return res, nil
	case model.ParsingFailed:
		res.ParsingError = f.ParsingError
		return res, nil
	}

	processing := TriggerResult{
		Accepted:           true,
		Success:            true,
		Status:             model.ParsingProcessing,
		SourceFileID:       f.ID,
		UserID:             userID,
		Message:            "CV parsing started. Poll the status endpoint for results.",
		PollEndpoint:       pollEndpoint + "?sourceFileId=" + f.ID,
		BackgroundEndpoint: backgroundEndpoint,
	}
	if f.ParsingStatus == model.ParsingProcessing && f.ParsingStartedAt != nil && f.ParsingStartedAt.After(s.staleBefore()) {
		return processing, nil
	}

	won, err := s.files.MarkProcessing(ctx, f.ID, s.staleBefore())
	if err != nil {
		return TriggerResult{}, fmt.Errorf("Failed to start parsing: %w", err)
	}
	if !won || s.jobs == nil {
		return processing, nil
	}
	if err := s.jobs.PublishParseJob(ctx, queue.ParseCVJob{SourceFileID: f.ID, UserID: userID, EnqueuedAt: s.Now().UTC()}); err != nil {
		s.logger.Printf("parse: enqueue %s: %v", f.ID, err)
		return processing, nil
	}
	processing.Queued = true
	return processing, nil
}

// ErrNotClaimed is returned by RunBackground when the file is not in
// processing or another runner holds a fresh claim.
var ErrNotClaimed = errors.New("parse not claimed")

// RunBackground performs the parse of a file moved to processing by
// Trigger.  The processing state is the authorization: the caller is not
// re-verified.
func (s *ParseService) RunBackground(ctx context.Context, sourceFileID, userID string) error {
	if sourceFileID == "" || userID == "" {
		return invalid("Missing sourceFileId or userId")
	}
	ok, err := s.files.Claim(ctx, sourceFileID, s.staleBefore())
	if err != nil {
		return fmt.Errorf("claiming %s: %w", sourceFileID, err)
	}
	if !ok {
		s.logger.Printf("parse: %s not claimable, skipping", sourceFileID)
		return ErrNotClaimed
	}

	f, err := s.files.GetByID(ctx, sourceFileID)
	if err != nil {
		return s.fail(ctx, sourceFileID, err)
	}
	if f.ExtractionStatus != model.ExtractionCompleted || f.Text() == "" {
		msg := "Text extraction not completed"
		if f.ExtractionError != nil && *f.ExtractionError != "" {
			msg = *f.ExtractionError
		}
		return s.fail(ctx, f.ID, errors.New(msg))
	}
	if !s.ai.Configured() {
		return s.fail(ctx, f.ID, ai.ErrNotConfigured)
	}

	start := s.Now()
	text := extract.TruncateToTokens(f.Text(), MaxCVTokens)
	parsed, _, err := s.ai.ParseCV(ctx, f.UserID, text, f.ID)
	if err != nil {
		return s.fail(ctx, f.ID, err)
	}

	var elig model.RawJSON
	if e, _, err := s.ai.AssessEligibility(ctx, f.UserID, parsed, ""); err != nil {
		s.logger.Printf("parse: eligibility for %s skipped: %v", f.ID, err)
	} else if elig, err = model.ToRawJSON(e); err != nil {
		elig = nil
	}

	if err := s.files.Complete(ctx, f.ID, parsed, elig); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Printf("parse: %s left processing before completion", f.ID)
			return nil
		}
		return fmt.Errorf("Failed to store results: %w", err)
	}
	s.logger.Printf("parse: completed %s in %s", f.ID, s.Now().Sub(start).Round(time.Millisecond))
	return nil
}

func (s *ParseService) fail(ctx context.Context, id string, cause error) error {
	if err := s.files.Fail(ctx, id, cause.Error()); err != nil && !errors.Is(err, repository.ErrConflict) {
		s.logger.Printf("parse: recording failure of %s: %v", id, err)
	}
	s.logger.Printf("parse: %s failed: %v", id, cause)
	return cause
}

// StatusResult is the pollable state of a file.
type StatusResult struct {
	Success          bool                   `json:"success"`
	SourceFileID     string                 `json:"sourceFileId"`
	FileName         string                 `json:"fileName"`
	ExtractionStatus model.ExtractionStatus `json:"extractionStatus"`
	ParsingStatus    model.ParsingStatus    `json:"parsingStatus"`
	ParsedData       model.RawJSON          `json:"parsedData"`
	ParsingError     *string                `json:"parsingError"`
	Eligibility      model.RawJSON          `json:"eligibility"`
	ExtractedText    *string                `json:"extractedText"`
}

// Status reports the parse state of one of the user's files.
func (s *ParseService) Status(ctx context.Context, userID, sourceFileID string) (StatusResult, error) {
	if sourceFileID == "" {
		return StatusResult{}, invalid("Missing required parameter: sourceFileId")
	}
	f, err := s.owned(ctx, sourceFileID, userID)
	if err != nil {
		return StatusResult{}, err
	}
	ps := f.ParsingStatus
	if ps == "" {
		ps = model.ParsingPending
	}
	return StatusResult{
		Success:          true,
		SourceFileID:     f.ID,
		FileName:         f.FileName,
		ExtractionStatus: f.ExtractionStatus,
		ParsingStatus:    ps,
		ParsedData:       f.ParsedData,
		ParsingError:     f.ParsingError,
		Eligibility:      f.Eligibility,
		ExtractedText:    f.ExtractedText,
	}, nil
}

// TextResult is the answer to a pasted text parse.
type TextResult struct {
	Success     bool          `json:"success"`
	ParsedData  model.RawJSON `json:"parsedData"`
	Eligibility model.RawJSON `json:"eligibility"`
	Usage       ai.Usage      `json:"usage"`
	Warnings    []string      `json:"warnings"`
}

// ParseText parses pasted CV text synchronously.
func (s *ParseService) ParseText(ctx context.Context, userID, text string) (TextResult, error) {
	if !s.ai.Configured() {
		return TextResult{}, errAIUnavailable
	}
	if text == "" {
		return TextResult{}, invalid("Missing required field: text")
	}
	t := strings.TrimSpace(text)
	n := utf8.RuneCountInString(t)
	if n < minPastedChars {
		return TextResult{}, invalid(fmt.Sprintf("Text too short. Please provide at least %d characters of CV content.", minPastedChars))
	}
	if n > maxPastedChars {
		return TextResult{}, invalid("Text too long. Maximum 30,000 characters allowed.")
	}
	cleaned := extract.CleanText(t)
	v := extract.Validate(cleaned)
	if !v.Valid {
		return TextResult{}, invalid(v.Reason)
	}
	warnings := []string{}
	if v.Reason != "" {
		warnings = append(warnings, v.Reason)
	}
	parsed, usage, err := s.ai.ParseCV(ctx, userID, extract.TruncateToTokens(cleaned, MaxCVTokens), "")
	if err != nil {
		return TextResult{}, err
	}
	return TextResult{Success: true, ParsedData: parsed, Usage: usage, Warnings: warnings}, nil
}

// AssessResult is the answer to an eligibility request.
type AssessResult struct {
	Success     bool              `json:"success"`
	Eligibility model.Eligibility `json:"eligibility"`
	Usage       ai.Usage          `json:"usage"`
}

// Assess scores a profile against the experience bar.
func (s *ParseService) Assess(ctx context.Context, userID string, profile model.RawJSON, draftID string) (AssessResult, error) {
	if !s.ai.Configured() {
		return AssessResult{}, errAIUnavailable
	}
	if profile.IsNull() {
		return AssessResult{}, invalid("Missing required field: profileData")
	}
	e, usage, err := s.ai.AssessEligibility(ctx, userID, profile, draftID)
	if err != nil {
		return AssessResult{}, err
	}
	return AssessResult{Success: true, Eligibility: e, Usage: usage}, nil
}
