package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

type fakeDrafts struct {
	drafts    map[string]model.ProfileDraft
	seq       int
	completed []string
}

func newFakeDrafts(ds ...model.ProfileDraft) *fakeDrafts {
	f := &fakeDrafts{drafts: map[string]model.ProfileDraft{}}
	for _, d := range ds {
		f.drafts[d.ID] = d
	}
	return f
}

func (f *fakeDrafts) Create(_ context.Context, d *model.ProfileDraft) error {
	f.seq++
	d.ID = fmt.Sprintf("draft-%d", f.seq)
	f.drafts[d.ID] = *d
	return nil
}

func (f *fakeDrafts) GetOwned(_ context.Context, id, userID string) (model.ProfileDraft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return d, repository.ErrNotFound
	}
	if d.UserID != userID {
		return model.ProfileDraft{}, repository.ErrForbidden
	}
	return d, nil
}

func (f *fakeDrafts) LatestInProgress(_ context.Context, userID string) (model.ProfileDraft, error) {
	for _, d := range f.drafts {
		if d.UserID == userID && d.Status == model.DraftInProgress {
			return d, nil
		}
	}
	return model.ProfileDraft{}, repository.ErrNotFound
}

func (f *fakeDrafts) Update(_ context.Context, d *model.ProfileDraft) error {
	cur := f.drafts[d.ID]
	if cur.Status == model.DraftCompleted || cur.Status == model.DraftAbandoned {
		return repository.ErrConflict
	}
	f.drafts[d.ID] = *d
	return nil
}

func (f *fakeDrafts) MarkCompleted(_ context.Context, id string) error {
	d := f.drafts[id]
	d.Status = model.DraftCompleted
	f.drafts[id] = d
	f.completed = append(f.completed, id)
	return nil
}

type fakeHistory struct {
	work []repository.WorkExperienceRecord
}

func (h fakeHistory) WorkExperience(context.Context, string) ([]repository.WorkExperienceRecord, error) {
	return h.work, nil
}

func (h fakeHistory) Education(context.Context, string) ([]repository.EducationRecord, error) {
	return nil, nil
}

type draftFixture struct {
	svc      *DraftService
	drafts   *fakeDrafts
	files    *fakeFiles
	ai       *fakeAI
	profiles *fakeProfiles
}

func newDraftFixture(drafts []model.ProfileDraft, files ...model.SourceFile) draftFixture {
	users := &fakeProfileUsers{
		fakeUsers: newFakeUsers(
			model.User{ID: "u1", FirstName: sp("Jane"), Email: sp("jane@x.io"), UserType: model.UserTypeConsultant},
			model.User{ID: "u2", UserType: model.UserTypeClient},
		),
		consultant: map[string]model.ConsultantProfile{"u1": {Phone: sp("+44"), Bio: sp("CFO")}},
	}
	fx := draftFixture{drafts: newFakeDrafts(drafts...), files: newFakeFiles(files...), ai: newFakeAI(), profiles: newFakeProfiles()}
	mapper := NewProfileMapper(fx.profiles, users, quiet)
	fx.svc = NewDraftService(fx.drafts, fx.files, users, fakeHistory{}, fx.ai, mapper, quiet)
	return fx
}

func TestStart_NewConversation(t *testing.T) {
	f1, f2 := extracted("f1", "u1"), extracted("f2", "u1")
	other := "second document"
	f2.ExtractedText = &other
	fx := newDraftFixture(nil, f1, f2, extracted("f3", "u2"))

	res, err := fx.svc.Start(context.Background(), StartInput{UserID: "u1", SourceFileIDs: []string{"f1", "f2", "f3"}})
	require.NoError(t, err)
	assert.False(t, res.IsResume)
	assert.Equal(t, "draft-1", res.DraftID)
	assert.Equal(t, model.StepExperience, res.NextStep)
	require.NotNil(t, res.Usage)
	assert.Equal(t, []model.ChatMessage{{Role: "assistant", Content: fx.ai.reply.AssistantMessage}}, res.ConversationHistory)

	require.Len(t, fx.ai.starts, 1)
	in := fx.ai.starts[0]
	assert.Contains(t, in.CVText, cvText)
	assert.Contains(t, in.CVText, "\n\n---\n\nsecond document")
	assert.NotContains(t, in.CVText, "f3")
	require.NotNil(t, in.ExistingProfile)
	assert.Equal(t, sp("CFO"), in.ExistingProfile["summary"])

	d := fx.drafts.drafts["draft-1"]
	assert.Equal(t, model.DraftInProgress, d.Status)
	assert.Equal(t, model.StringList{"f1", "f2", "f3"}, d.SourceFileIDs)
	assert.Equal(t, fx.ai.reply.AssistantMessage, d.Document.LastAssistantMessage)
}

func TestStart_ResumesInProgressDraft(t *testing.T) {
	fx := newDraftFixture([]model.ProfileDraft{{
		ID: "d1", UserID: "u1", Status: model.DraftInProgress, LastStep: model.StepSkills,
		Document: model.DraftDocument{ConversationHistory: []model.ChatMessage{{Role: "assistant", Content: "hi"}}},
	}})
	res, err := fx.svc.Start(context.Background(), StartInput{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, res.IsResume)
	assert.Equal(t, "d1", res.DraftID)
	assert.Equal(t, welcomeBack, res.AssistantMessage)
	assert.Equal(t, model.StepSkills, res.NextStep)
	assert.JSONEq(t, `{}`, string(res.DraftProfile))
	assert.Nil(t, res.Usage)
	assert.Empty(t, fx.ai.starts)
}

func TestStart_ResumeOwnership(t *testing.T) {
	fx := newDraftFixture([]model.ProfileDraft{{ID: "d1", UserID: "u2", Status: model.DraftInProgress}})
	_, err := fx.svc.Start(context.Background(), StartInput{UserID: "u1", ResumeDraftID: "d1"})
	assert.Equal(t, errDraftForeign, err)
	_, err = fx.svc.Start(context.Background(), StartInput{UserID: "u1", ResumeDraftID: "nope"})
	assert.Equal(t, errDraftMissing, err)

	fx.ai.off = true
	_, err = fx.svc.Start(context.Background(), StartInput{UserID: "u1"})
	assert.Equal(t, errAIUnavailable, err)
}

func longHistory(n int) []model.ChatMessage {
	out := make([]model.ChatMessage, n)
	for i := range out {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out[i] = model.ChatMessage{Role: role, Content: fmt.Sprintf("m%d", i)}
	}
	return out
}

func TestContinue_HistoryAndFiles(t *testing.T) {
	fx := newDraftFixture([]model.ProfileDraft{{
		ID: "d1", UserID: "u1", Status: model.DraftInProgress, SourceFileIDs: model.StringList{"f1"},
		Document: model.DraftDocument{ConversationHistory: longHistory(19)},
	}}, extracted("f1", "u1"), extracted("f2", "u1"))
	long := strings.Repeat("y", 5000)
	f2 := fx.files.files["f2"]
	f2.ExtractedText = &long
	fx.files.files["f2"] = f2

	res, err := fx.svc.Continue(context.Background(), ContinueInput{
		UserID: "u1", DraftID: "d1", UserMessage: "I worked at Acme", SourceFileIDs: []string{"f1", "f2"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, fx.ai.continues, 1)
	sent := fx.ai.continues[0]
	assert.Equal(t, "I worked at Acme", sent.UserMessage)
	require.Len(t, sent.History, 20)
	ctxMsg := sent.History[19]
	assert.Equal(t, "system", ctxMsg.Role)
	assert.True(t, strings.HasPrefix(ctxMsg.Content, "The user has uploaded new documents with the following content:\n\n"))
	assert.True(t, strings.HasSuffix(ctxMsg.Content, strings.Repeat("y", 3000)+"..."))

	d := fx.drafts.drafts["d1"]
	hist := d.Document.ConversationHistory
	require.Len(t, hist, maxHistory)
	assert.Equal(t, "assistant", hist[19].Role)
	assert.Equal(t, "system", hist[18].Role)
	assert.Equal(t, "I worked at Acme", hist[17].Content)
	assert.Equal(t, model.StringList{"f1", "f2"}, d.SourceFileIDs)
	assert.Equal(t, model.StepExperience, d.LastStep)
}

func TestContinue_EligibilityOnceAndCompletion(t *testing.T) {
	fx := newDraftFixture([]model.ProfileDraft{{ID: "d1", UserID: "u1", Status: model.DraftInProgress}})
	fx.ai.reply.NextStep = model.StepEligibilityReview
	ctx := context.Background()

	res, err := fx.svc.Continue(ctx, ContinueInput{UserID: "u1", DraftID: "d1", UserMessage: "done"})
	require.NoError(t, err)
	assert.Contains(t, string(res.Eligibility), `"meetsThreshold":true`)
	_, err = fx.svc.Continue(ctx, ContinueInput{UserID: "u1", DraftID: "d1", UserMessage: "again"})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.ai.eligCalls)

	fx.ai.reply.IsComplete = true
	fx.ai.reply.NextStep = model.StepComplete
	res, err = fx.svc.Continue(ctx, ContinueInput{UserID: "u1", DraftID: "d1", UserMessage: "yes"})
	require.NoError(t, err)
	assert.True(t, res.IsComplete)
	assert.Equal(t, model.DraftReadyForReview, fx.drafts.drafts["d1"].Status)
	assert.Equal(t, []string{}, res.QuestionsAsked)
}

func TestContinue_Errors(t *testing.T) {
	fx := newDraftFixture([]model.ProfileDraft{
		{ID: "done", UserID: "u1", Status: model.DraftCompleted},
		{ID: "gone", UserID: "u1", Status: model.DraftAbandoned},
	})
	ctx := context.Background()
	cases := map[string]ContinueInput{
		"Missing required field: draftId":         {UserID: "u1", UserMessage: "x"},
		"Missing required field: userMessage":     {UserID: "u1", DraftID: "done", UserMessage: "  "},
		"This draft has already been completed":   {UserID: "u1", DraftID: "done", UserMessage: "x"},
		"This draft has been abandoned":           {UserID: "u1", DraftID: "gone", UserMessage: "x"},
		"Access denied: You do not own this draft": {UserID: "u2", DraftID: "done", UserMessage: "x"},
		"Draft not found":                         {UserID: "u1", DraftID: "missing", UserMessage: "x"},
	}
	for want, in := range cases {
		_, err := fx.svc.Continue(ctx, in)
		assert.EqualError(t, err, want)
	}
}

func TestPublish(t *testing.T) {
	profile := model.RawJSON(`{"basicInfo":{"firstName":"Jane","lastName":"Doe"},"skills":["Go","Knitting"],"workExperience":[{"company":"Acme","jobTitle":"CFO"}]}`)
	fx := newDraftFixture([]model.ProfileDraft{{
		ID: "d1", UserID: "u1", Status: model.DraftReadyForReview, SourceFileIDs: model.StringList{"f1"},
		Eligibility: model.RawJSON(`{"meetsThreshold":true}`),
		Document:    model.DraftDocument{Profile: profile, ConversationHistory: longHistory(6)},
	}})
	ctx := context.Background()

	res, err := fx.svc.Publish(ctx, "u1", "d1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Profile published successfully", res.Message)
	assert.Equal(t, 1, res.Results.WorkExperience.Saved)
	assert.Equal(t, 1, res.Results.Skills.Matched)
	assert.Equal(t, []string{"Knitting"}, res.UnmatchedSkills)
	assert.JSONEq(t, `{"meetsThreshold":true}`, string(res.Eligibility))
	assert.True(t, fx.profiles.pctSet)

	require.Equal(t, []string{MethodAIConversation}, fx.profiles.events)
	meta := fx.profiles.eventMeta[0].(map[string]any)
	assert.Equal(t, 3, meta["ai_call_count"])
	assert.Equal(t, 6, meta["conversation_turns"])
	assert.Equal(t, 1, meta["skills_unmatched"])
	assert.Equal(t, "d1", meta["draft_id"])

	assert.Equal(t, []string{"d1"}, fx.drafts.completed)
	_, err = fx.svc.Publish(ctx, "u1", "d1", nil)
	assert.EqualError(t, err, "This draft has already been published")
}

func TestPublish_EditedProfileNeedsNames(t *testing.T) {
	fx := newDraftFixture([]model.ProfileDraft{{ID: "d1", UserID: "u1", Status: model.DraftInProgress}})
	_, err := fx.svc.Publish(context.Background(), "u1", "d1", model.RawJSON(`{"basicInfo":{"firstName":"Jane"}}`))
	assert.EqualError(t, err, "Profile must have at least first name and last name")
	_, err = fx.svc.Publish(context.Background(), "u1", "d1", nil)
	assert.EqualError(t, err, "Profile must have at least first name and last name")
	assert.Empty(t, fx.drafts.completed)
}

func TestValidateParsedData(t *testing.T) {
	assert.Equal(t, []string{"Missing parsedData"}, ValidateParsedData(nil))
	assert.Equal(t, []string{"Missing basicInfo section", "skills must be an array"},
		ValidateParsedData(model.RawJSON(`{"skills":"Go"}`)))
	assert.Equal(t, []string{"First name is required", "Last name is required", "languages must be an array"},
		ValidateParsedData(model.RawJSON(`{"basicInfo":{"firstName":""},"languages":{"x":1}}`)))
	assert.Empty(t, ValidateParsedData(model.RawJSON(`{"basicInfo":{"firstName":"A","lastName":"B"},"education":null}`)))
}

func TestSaveParsed(t *testing.T) {
	fx := newDraftFixture(nil, extracted("mine", "u1"), extracted("theirs", "u2"))
	ctx := context.Background()
	data := model.RawJSON(`{"basicInfo":{"firstName":"Jane","lastName":"Doe"},"languages":[{"language":"English","proficiency":"fluent"}]}`)

	_, err := fx.svc.SaveParsed(ctx, SaveParsedInput{UserID: "u1", ParsedData: model.RawJSON(`{"basicInfo":{}}`)})
	var in *InputError
	require.ErrorAs(t, err, &in)
	assert.Equal(t, "Invalid parsed data", in.Msg)
	assert.Equal(t, []string{"First name is required", "Last name is required"}, in.Details)

	_, err = fx.svc.SaveParsed(ctx, SaveParsedInput{UserID: "u1", SourceFileID: "theirs", ParsedData: data})
	assert.Equal(t, ForbiddenError("Access denied: You do not own this source file"), err)

	res, err := fx.svc.SaveParsed(ctx, SaveParsedInput{UserID: "u1", SourceFileID: "mine", ParsedData: data})
	require.NoError(t, err)
	assert.Equal(t, "Profile saved successfully", res.Message)
	assert.Equal(t, 1, res.Results.Languages.Matched)
	assert.Equal(t, []string{MethodCVUpload}, fx.profiles.events)
	assert.Equal(t, "mine", fx.profiles.eventMeta[0].(map[string]any)["source_file_id"])

	// a missing source file is tolerated
	_, err = fx.svc.SaveParsed(ctx, SaveParsedInput{UserID: "u1", SourceFileID: "ghost", ParsedData: data})
	assert.NoError(t, err)

	_, err = fx.svc.SaveParsed(ctx, SaveParsedInput{UserID: "nobody", ParsedData: data})
	assert.Equal(t, errUserNotFound, err)
}
