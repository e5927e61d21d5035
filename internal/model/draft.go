package model

import "time"

// DraftStatus is the lifecycle of a profile draft:
// in_progress → ready_for_review → completed, or abandoned.
type DraftStatus string

const (
	DraftInProgress     DraftStatus = "in_progress"
	DraftReadyForReview DraftStatus = "ready_for_review"
	DraftCompleted      DraftStatus = "completed"
	DraftAbandoned      DraftStatus = "abandoned"
)

// Step is the conversation marker the assistant returns each turn.
type Step string

const (
	StepBasicInfo         Step = "basic_info"
	StepExperience        Step = "experience"
	StepEducation         Step = "education"
	StepSkills            Step = "skills"
	StepCertifications    Step = "certifications"
	StepLanguages         Step = "languages"
	StepSummary           Step = "summary"
	StepEligibilityReview Step = "eligibility_review"
	StepComplete          Step = "complete"
)

// ChatMessage is one entry of a conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DraftDocument is the JSON stored in profile_drafts.draft_json.
type DraftDocument struct {
	Profile              RawJSON       `json:"profile"`
	ConversationHistory  []ChatMessage `json:"conversationHistory"`
	LastAssistantMessage string        `json:"lastAssistantMessage,omitempty"`
	QuestionsAsked       []string      `json:"questionsAsked,omitempty"`
}

// ProfileDraft mirrors `profile_drafts`.  A user is expected to have at
// most one in_progress draft; resume picks the most recently updated.
type ProfileDraft struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Document      DraftDocument `json:"draft_json"`
	Status        DraftStatus   `json:"status"`
	LastStep      Step          `json:"last_step"`
	SourceFileIDs StringList    `json:"source_file_ids"`
	Eligibility   RawJSON       `json:"eligibility"`
	CompletedAt   *time.Time    `json:"completed_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
