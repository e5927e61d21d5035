package model

import "time"

type FileType string

const (
	FileTypeCV            FileType = "cv"
	FileTypePortfolio     FileType = "portfolio"
	FileTypeCertification FileType = "certification"
	FileTypeOther         FileType = "other"
)

func (t FileType) Valid() bool {
	switch t {
	case FileTypeCV, FileTypePortfolio, FileTypeCertification, FileTypeOther:
		return true
	}
	return false
}

type ExtractionStatus string

const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionCompleted ExtractionStatus = "completed"
	ExtractionFailed    ExtractionStatus = "failed"
)

// ParsingStatus moves pending → processing → completed|failed and never
// goes backwards, except that a processing row older than the staleness
// window may be claimed again.
type ParsingStatus string

const (
	ParsingPending    ParsingStatus = "pending"
	ParsingProcessing ParsingStatus = "processing"
	ParsingCompleted  ParsingStatus = "completed"
	ParsingFailed     ParsingStatus = "failed"
)

// Terminal reports whether no further parse will run.
func (s ParsingStatus) Terminal() bool {
	return s == ParsingCompleted || s == ParsingFailed
}

// SourceFile mirrors `profile_source_files`: an uploaded document with its
// synchronously extracted text and asynchronously parsed profile.
type SourceFile struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	FileType         FileType         `json:"file_type"`
	FilePath         string           `json:"file_path"`
	FileName         string           `json:"file_name"`
	FileSize         int64            `json:"file_size"`
	MimeType         string           `json:"mime_type"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	ExtractionError  *string          `json:"extraction_error"`
	ExtractedText    *string          `json:"extracted_text"`
	ParsingStatus    ParsingStatus    `json:"parsing_status"`
	ParsedData       RawJSON          `json:"parsed_data"`
	ParsingError     *string          `json:"parsing_error"`
	Eligibility      RawJSON          `json:"eligibility"`
	ParsingStartedAt *time.Time       `json:"parsing_started_at"`
	ParsingClaimedAt *time.Time       `json:"parsing_claimed_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Text returns the extracted text or "".
func (f SourceFile) Text() string {
	if f.ExtractedText == nil {
		return ""
	}
	return *f.ExtractedText
}
