package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/gigexecs/gigexecs-api/internal/ai"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// DraftStore persists conversation drafts.
type DraftStore interface {
	Create(ctx context.Context, d *model.ProfileDraft) error
	GetOwned(ctx context.Context, id, userID string) (model.ProfileDraft, error)
	LatestInProgress(ctx context.Context, userID string) (model.ProfileDraft, error)
	Update(ctx context.Context, d *model.ProfileDraft) error
	MarkCompleted(ctx context.Context, id string) error
}

// ProfileHistory reads the sections a new conversation is seeded with.
type ProfileHistory interface {
	WorkExperience(ctx context.Context, userID string) ([]repository.WorkExperienceRecord, error)
	Education(ctx context.Context, userID string) ([]repository.EducationRecord, error)
}

const (
	maxHistory      = 20
	newFileChars    = 3000
	fileSeparator   = "\n\n---\n\n"
	welcomeBack     = "Welcome back! Let's continue building your profile. Where did we leave off?"
	errDraftMissing = NotFoundError("Draft not found")
	errDraftForeign = ForbiddenError("Access denied: You do not own this draft")
)

// DraftService runs the conversational profile builder and the two ways a
// reviewed profile is published.
type DraftService struct {
	drafts  DraftStore
	files   SourceFiles
	users   ProfileUsers
	history ProfileHistory
	ai      ProfileAI
	mapper  *ProfileMapper
	logger  *log.Logger
}

func NewDraftService(drafts DraftStore, files SourceFiles, users ProfileUsers, history ProfileHistory, client ProfileAI, mapper *ProfileMapper, logger *log.Logger) *DraftService {
	if logger == nil {
		logger = log.Default()
	}
	return &DraftService{drafts: drafts, files: files, users: users, history: history, ai: client, mapper: mapper, logger: logger}
}

func orEmptyObject(r model.RawJSON) model.RawJSON {
	if r.IsNull() {
		return model.RawJSON("{}")
	}
	return r
}

func (s *DraftService) owned(ctx context.Context, id, userID string) (model.ProfileDraft, error) {
	d, err := s.drafts.GetOwned(ctx, id, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return d, errDraftMissing
	case errors.Is(err, repository.ErrForbidden):
		return d, errDraftForeign
	}
	return d, err
}

// filesText joins the extracted text of the user's completed files.
func (s *DraftService) filesText(ctx context.Context, userID string, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	files, err := s.files.ListCompletedByUser(ctx, userID, ids)
	if err != nil {
		s.logger.Printf("drafts: loading source files for %s: %v", userID, err)
		return ""
	}
	var parts []string
	for _, f := range files {
		if t := f.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, fileSeparator)
}

// StartInput is the body of a start request.
type StartInput struct {
	UserID        string
	SourceFileIDs []string
	ResumeDraftID string
}

// StartResult is the first (or resumed) turn of a conversation.
type StartResult struct {
	Success             bool                `json:"success"`
	DraftID             string              `json:"draftId"`
	IsResume            bool                `json:"isResume"`
	AssistantMessage    string              `json:"assistantMessage"`
	DraftProfile        model.RawJSON       `json:"draftProfile"`
	ConversationHistory []model.ChatMessage `json:"conversationHistory"`
	NextStep            model.Step          `json:"nextStep"`
	Eligibility         model.RawJSON       `json:"eligibility,omitempty"`
	Usage               *ai.Usage           `json:"usage,omitempty"`
}

// Start resumes the named draft, or the user's latest in-progress draft,
// or opens a new conversation seeded with uploaded CV text and whatever
// profile data the user already has.
func (s *DraftService) Start(ctx context.Context, in StartInput) (StartResult, error) {
	if !s.ai.Configured() {
		return StartResult{}, errAIUnavailable
	}

	var existing *model.ProfileDraft
	if in.ResumeDraftID != "" {
		d, err := s.owned(ctx, in.ResumeDraftID, in.UserID)
		if err != nil {
			return StartResult{}, err
		}
		existing = &d
	} else if d, err := s.drafts.LatestInProgress(ctx, in.UserID); err == nil {
		existing = &d
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Printf("drafts: looking up in-progress draft for %s: %v", in.UserID, err)
	}

	if existing != nil {
		msg := existing.Document.LastAssistantMessage
		if msg == "" {
			msg = welcomeBack
		}
		step := existing.LastStep
		if step == "" {
			step = model.StepBasicInfo
		}
		hist := existing.Document.ConversationHistory
		if hist == nil {
			hist = []model.ChatMessage{}
		}
		return StartResult{
			Success:             true,
			DraftID:             existing.ID,
			IsResume:            true,
			AssistantMessage:    msg,
			DraftProfile:        orEmptyObject(existing.Document.Profile),
			ConversationHistory: hist,
			NextStep:            step,
			Eligibility:         existing.Eligibility,
		}, nil
	}

	reply, usage, err := s.ai.StartConversation(ctx, in.UserID, ai.StartInput{
		CVText:          s.filesText(ctx, in.UserID, in.SourceFileIDs),
		ExistingProfile: s.existingProfile(ctx, in.UserID),
	})
	if err != nil {
		return StartResult{}, err
	}

	step := reply.NextStep
	if step == "" {
		step = model.StepBasicInfo
	}
	d := model.ProfileDraft{
		UserID: in.UserID,
		Document: model.DraftDocument{
			Profile:              orEmptyObject(reply.DraftProfile),
			ConversationHistory:  []model.ChatMessage{{Role: "assistant", Content: reply.AssistantMessage}},
			LastAssistantMessage: reply.AssistantMessage,
		},
		Status:        model.DraftInProgress,
		LastStep:      step,
		SourceFileIDs: model.StringList{}.Merge(in.SourceFileIDs...),
	}
	if err := s.drafts.Create(ctx, &d); err != nil {
		s.logger.Printf("drafts: creating draft for %s: %v", in.UserID, err)
		return StartResult{}, errors.New("Failed to create profile draft")
	}
	return StartResult{
		Success:             true,
		DraftID:             d.ID,
		AssistantMessage:    reply.AssistantMessage,
		DraftProfile:        d.Document.Profile,
		ConversationHistory: d.Document.ConversationHistory,
		NextStep:            step,
		Usage:               &usage,
	}, nil
}

// existingProfile gathers what the platform already knows about the user.
// It returns nil when there is nothing.
func (s *DraftService) existingProfile(ctx context.Context, userID string) map[string]any {
	u, uerr := s.users.GetByID(ctx, userID)
	p, perr := s.users.GetConsultantProfile(ctx, userID)
	work, err := s.history.WorkExperience(ctx, userID)
	if err != nil {
		work = nil
	}
	edu, err := s.history.Education(ctx, userID)
	if err != nil || edu == nil {
		edu = []repository.EducationRecord{}
	}
	if uerr != nil && perr != nil && len(work) == 0 {
		return nil
	}
	if work == nil {
		work = []repository.WorkExperienceRecord{}
	}
	return map[string]any{
		"basicInfo": map[string]any{
			"firstName":   u.FirstName,
			"lastName":    u.LastName,
			"email":       u.Email,
			"headline":    u.Headline,
			"phone":       p.Phone,
			"linkedinUrl": p.LinkedInURL,
			"location":    p.Address1,
		},
		"summary":        p.Bio,
		"workExperience": work,
		"education":      edu,
	}
}

// ContinueInput is one user turn.
type ContinueInput struct {
	UserID        string
	DraftID       string
	UserMessage   string
	SourceFileIDs []string
}

// ContinueResult is the assistant's answer to a turn.
type ContinueResult struct {
	Success          bool          `json:"success"`
	AssistantMessage string        `json:"assistantMessage"`
	DraftProfile     model.RawJSON `json:"draftProfile"`
	NextStep         model.Step    `json:"nextStep"`
	IsComplete       bool          `json:"isComplete"`
	Eligibility      model.RawJSON `json:"eligibility"`
	QuestionsAsked   []string      `json:"questionsAsked"`
	Usage            ai.Usage      `json:"usage"`
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Continue sends a user message on a draft.  Text of files not yet attached
// to the draft is added as system context.  Eligibility is assessed once,
// the first time the assistant reaches the eligibility review step.
func (s *DraftService) Continue(ctx context.Context, in ContinueInput) (ContinueResult, error) {
	if !s.ai.Configured() {
		return ContinueResult{}, errAIUnavailable
	}
	if in.DraftID == "" {
		return ContinueResult{}, invalid("Missing required field: draftId")
	}
	if strings.TrimSpace(in.UserMessage) == "" {
		return ContinueResult{}, invalid("Missing required field: userMessage")
	}
	d, err := s.owned(ctx, in.DraftID, in.UserID)
	if err != nil {
		return ContinueResult{}, err
	}
	switch d.Status {
	case model.DraftCompleted:
		return ContinueResult{}, invalid("This draft has already been completed")
	case model.DraftAbandoned:
		return ContinueResult{}, invalid("This draft has been abandoned")
	}

	var newIDs []string
	for _, id := range in.SourceFileIDs {
		if !d.SourceFileIDs.Contains(id) {
			newIDs = append(newIDs, id)
		}
	}
	var fileContext *model.ChatMessage
	if text := s.filesText(ctx, in.UserID, newIDs); text != "" {
		fileContext = &model.ChatMessage{
			Role:    "system",
			Content: "The user has uploaded new documents with the following content:\n\n" + truncateRunes(text, newFileChars) + "...",
		}
	}

	prior := d.Document.ConversationHistory
	sent := append([]model.ChatMessage{}, prior...)
	if fileContext != nil {
		sent = append(sent, *fileContext)
	}
	current := orEmptyObject(d.Document.Profile)
	reply, usage, err := s.ai.ContinueConversation(ctx, in.UserID, ai.ContinueInput{
		History:     sent,
		Draft:       current,
		UserMessage: in.UserMessage,
		DraftID:     d.ID,
	})
	if err != nil {
		return ContinueResult{}, err
	}

	hist := append(append([]model.ChatMessage{}, prior...), model.ChatMessage{Role: "user", Content: in.UserMessage})
	if fileContext != nil {
		hist = append(hist, *fileContext)
	}
	hist = append(hist, model.ChatMessage{Role: "assistant", Content: reply.AssistantMessage})
	if len(hist) > maxHistory {
		hist = hist[len(hist)-maxHistory:]
	}

	profile := current
	if !reply.DraftProfile.IsNull() {
		profile = reply.DraftProfile
	}
	if reply.NextStep == model.StepEligibilityReview && d.Eligibility.IsNull() {
		if e, _, err := s.ai.AssessEligibility(ctx, in.UserID, profile, d.ID); err != nil {
			s.logger.Printf("drafts: eligibility for %s skipped: %v", d.ID, err)
		} else if raw, err := model.ToRawJSON(e); err == nil {
			d.Eligibility = raw
		}
	}
	if reply.IsComplete {
		d.Status = model.DraftReadyForReview
	}
	questions := reply.QuestionsAsked
	if questions == nil {
		questions = []string{}
	}
	d.Document = model.DraftDocument{
		Profile:              profile,
		ConversationHistory:  hist,
		LastAssistantMessage: reply.AssistantMessage,
		QuestionsAsked:       questions,
	}
	if reply.NextStep != "" {
		d.LastStep = reply.NextStep
	}
	d.SourceFileIDs = d.SourceFileIDs.Merge(in.SourceFileIDs...)

	if err := s.drafts.Update(ctx, &d); err != nil {
		s.logger.Printf("drafts: updating %s: %v", d.ID, err)
		return ContinueResult{}, errors.New("Failed to update draft")
	}
	return ContinueResult{
		Success:          true,
		AssistantMessage: reply.AssistantMessage,
		DraftProfile:     profile,
		NextStep:         reply.NextStep,
		IsComplete:       reply.IsComplete,
		Eligibility:      d.Eligibility,
		QuestionsAsked:   questions,
		Usage:            usage,
	}, nil
}

// PublishResult reports a profile written to the relational tables.
type PublishResult struct {
	Success             bool          `json:"success"`
	Message             string        `json:"message"`
	Results             MapResults    `json:"results"`
	ProfileCompleteness int           `json:"profileCompleteness"`
	UnmatchedSkills     []string      `json:"unmatchedSkills"`
	Eligibility         model.RawJSON `json:"eligibility,omitempty"`
}

func sectionMetadata(p model.ParsedProfile, res MapResults) map[string]any {
	return map[string]any{
		"work_experience_count": len(p.WorkExperience),
		"education_count":       len(p.Education),
		"skills_count":          len(p.Skills),
		"certifications_count":  len(p.Certifications),
		"languages_count":       len(p.Languages),
		"skills_matched":        res.Skills.Matched,
		"skills_unmatched":      len(res.Skills.Unmatched),
	}
}

// publish maps p for the user, records the creation event and refreshes
// completeness.
func (s *DraftService) publish(ctx context.Context, userID, method string, p model.ParsedProfile, meta map[string]any) (PublishResult, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return PublishResult{}, errUserNotFound
	}
	if err != nil {
		return PublishResult{}, err
	}
	res := s.mapper.Map(ctx, p, userID, u.UserType)
	if err := res.Err(); err != nil {
		s.logger.Printf("drafts: mapping profile of %s: %v", userID, err)
		return PublishResult{}, err
	}
	for k, v := range sectionMetadata(p, res) {
		meta[k] = v
	}
	s.mapper.RecordCreation(ctx, userID, method, meta)

	pct, err := s.mapper.UpdateCompleteness(ctx, userID, u.UserType)
	if err != nil {
		s.logger.Printf("drafts: completeness of %s: %v", userID, err)
	}
	return PublishResult{
		Success:             true,
		Results:             res,
		ProfileCompleteness: pct,
		UnmatchedSkills:     res.Skills.Unmatched,
	}, nil
}

func decodeProfile(raw model.RawJSON) (model.ParsedProfile, error) {
	var p model.ParsedProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, invalid("Invalid profile data", err.Error())
	}
	return p, nil
}

// Publish writes a draft's profile, or the user's edited version of it, to
// the profile tables and completes the draft.
func (s *DraftService) Publish(ctx context.Context, userID, draftID string, edited model.RawJSON) (PublishResult, error) {
	if draftID == "" {
		return PublishResult{}, invalid("Missing required field: draftId")
	}
	d, err := s.owned(ctx, draftID, userID)
	if err != nil {
		return PublishResult{}, err
	}
	switch d.Status {
	case model.DraftCompleted:
		return PublishResult{}, invalid("This draft has already been published")
	case model.DraftAbandoned:
		return PublishResult{}, invalid("This draft has been abandoned")
	}

	raw := edited
	if raw.IsNull() {
		raw = orEmptyObject(d.Document.Profile)
	}
	p, err := decodeProfile(raw)
	if err != nil {
		return PublishResult{}, err
	}
	if strings.TrimSpace(p.BasicInfo.FirstName) == "" || strings.TrimSpace(p.BasicInfo.LastName) == "" {
		return PublishResult{}, invalid("Profile must have at least first name and last name")
	}

	assistant := 0
	for _, m := range d.Document.ConversationHistory {
		if m.Role == "assistant" {
			assistant++
		}
	}
	sources := d.SourceFileIDs
	if sources == nil {
		sources = model.StringList{}
	}
	res, err := s.publish(ctx, userID, MethodAIConversation, p, map[string]any{
		"draft_id":           d.ID,
		"source_file_ids":    sources,
		"ai_call_count":      assistant,
		"conversation_turns": len(d.Document.ConversationHistory),
		"eligibility":        d.Eligibility,
	})
	if err != nil {
		return PublishResult{}, err
	}
	if err := s.drafts.MarkCompleted(ctx, d.ID); err != nil {
		// the profile is saved; a stale draft status is tolerable
		s.logger.Printf("drafts: marking %s completed: %v", d.ID, err)
	}
	res.Message = "Profile published successfully"
	res.Eligibility = d.Eligibility
	return res, nil
}

// ValidateParsedData checks the shape of a parsed profile before it is
// decoded, so that wrong types get a readable message.
func ValidateParsedData(raw model.RawJSON) []string {
	if raw.IsNull() {
		return []string{"Missing parsedData"}
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []string{"Missing parsedData"}
	}
	var errs []string
	if b, ok := doc["basicInfo"]; !ok || model.RawJSON(b).IsNull() {
		errs = append(errs, "Missing basicInfo section")
	} else {
		var names struct {
			FirstName any `json:"firstName"`
			LastName  any `json:"lastName"`
		}
		_ = json.Unmarshal(b, &names)
		if s, _ := names.FirstName.(string); s == "" {
			errs = append(errs, "First name is required")
		}
		if s, _ := names.LastName.(string); s == "" {
			errs = append(errs, "Last name is required")
		}
	}
	for _, section := range []string{"workExperience", "education", "skills", "certifications", "languages"} {
		v, ok := doc[section]
		if !ok || model.RawJSON(v).IsNull() {
			continue
		}
		if t := strings.TrimSpace(string(v)); !strings.HasPrefix(t, "[") {
			errs = append(errs, section+" must be an array")
		}
	}
	return errs
}

// SaveParsedInput is a reviewed CV parse.
type SaveParsedInput struct {
	UserID       string
	SourceFileID string
	ParsedData   model.RawJSON
	Eligibility  model.RawJSON
}

// SaveParsed writes a reviewed CV parse to the profile tables.
func (s *DraftService) SaveParsed(ctx context.Context, in SaveParsedInput) (PublishResult, error) {
	if errs := ValidateParsedData(in.ParsedData); len(errs) > 0 {
		return PublishResult{}, invalid("Invalid parsed data", errs...)
	}
	if in.SourceFileID != "" {
		_, err := s.files.GetOwned(ctx, in.SourceFileID, in.UserID)
		switch {
		case errors.Is(err, repository.ErrForbidden):
			return PublishResult{}, ForbiddenError("Access denied: You do not own this source file")
		case err != nil:
			// the file is optional context for analytics
			s.logger.Printf("drafts: source file %s not found: %v", in.SourceFileID, err)
		}
	}
	p, err := decodeProfile(in.ParsedData)
	if err != nil {
		return PublishResult{}, err
	}
	res, err := s.publish(ctx, in.UserID, MethodCVUpload, p, map[string]any{
		"source_file_id": nilIfEmpty(in.SourceFileID),
		"eligibility":    in.Eligibility,
	})
	if err != nil {
		return PublishResult{}, err
	}
	res.Message = "Profile saved successfully"
	return res, nil
}
