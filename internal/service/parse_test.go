package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/ai"
	"github.com/gigexecs/gigexecs-api/internal/extract"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/queue"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

// fakeFiles keeps source files in memory with the same conditional
// transitions the SQL store applies.
type fakeFiles struct {
	mu        sync.Mutex
	files     map[string]model.SourceFile
	createErr error
}

func newFakeFiles(fs ...model.SourceFile) *fakeFiles {
	f := &fakeFiles{files: map[string]model.SourceFile{}}
	for _, x := range fs {
		f.files[x.ID] = x
	}
	return f
}

func (f *fakeFiles) Create(_ context.Context, x *model.SourceFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.files[x.ID] = *x
	return nil
}

func (f *fakeFiles) GetByID(_ context.Context, id string) (model.SourceFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	x, ok := f.files[id]
	if !ok {
		return x, repository.ErrNotFound
	}
	return x, nil
}

func (f *fakeFiles) GetOwned(ctx context.Context, id, userID string) (model.SourceFile, error) {
	x, err := f.GetByID(ctx, id)
	if err != nil {
		return x, err
	}
	if x.UserID != userID {
		return model.SourceFile{}, repository.ErrForbidden
	}
	return x, nil
}

func (f *fakeFiles) MarkProcessing(_ context.Context, id string, staleBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	x := f.files[id]
	stale := x.ParsingStatus == model.ParsingProcessing && (x.ParsingStartedAt == nil || x.ParsingStartedAt.Before(staleBefore))
	if x.ExtractionStatus != model.ExtractionCompleted || !(x.ParsingStatus == model.ParsingPending || stale) {
		return false, nil
	}
	now := time.Now()
	x.ParsingStatus, x.ParsingStartedAt, x.ParsingClaimedAt = model.ParsingProcessing, &now, nil
	f.files[id] = x
	return true, nil
}

func (f *fakeFiles) Claim(_ context.Context, id string, staleBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	x := f.files[id]
	if x.ParsingStatus != model.ParsingProcessing || (x.ParsingClaimedAt != nil && !x.ParsingClaimedAt.Before(staleBefore)) {
		return false, nil
	}
	now := time.Now()
	x.ParsingClaimedAt = &now
	f.files[id] = x
	return true, nil
}

func (f *fakeFiles) Complete(_ context.Context, id string, parsed, elig model.RawJSON) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	x := f.files[id]
	if x.ParsingStatus != model.ParsingProcessing {
		return repository.ErrConflict
	}
	x.ParsingStatus, x.ParsedData, x.Eligibility = model.ParsingCompleted, parsed, elig
	f.files[id] = x
	return nil
}

func (f *fakeFiles) Fail(_ context.Context, id, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	x := f.files[id]
	if x.ParsingStatus != model.ParsingProcessing {
		return repository.ErrConflict
	}
	x.ParsingStatus, x.ParsingError = model.ParsingFailed, &msg
	f.files[id] = x
	return nil
}

func (f *fakeFiles) ListCompletedByUser(_ context.Context, userID string, ids []string) ([]model.SourceFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.SourceFile{}
	for _, x := range f.files {
		if x.UserID != userID || x.ExtractionStatus != model.ExtractionCompleted {
			continue
		}
		if len(ids) > 0 && !model.StringList(ids).Contains(x.ID) {
			continue
		}
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeBlobs struct {
	data    map[string][]byte
	deleted []string
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{data: map[string][]byte{}} }

func (b *fakeBlobs) Put(_ context.Context, key string, d []byte) error {
	b.data[key] = d
	return nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	delete(b.data, key)
	b.deleted = append(b.deleted, key)
	return nil
}

// fakeAI answers every call with canned output.
type fakeAI struct {
	mu         sync.Mutex
	off        bool
	parsed     model.RawJSON
	parseErr   error
	elig       model.Eligibility
	eligErr    error
	reply      ai.Reply
	replyErr   error
	parseCalls int
	eligCalls  int
	starts     []ai.StartInput
	continues  []ai.ContinueInput
}

func newFakeAI() *fakeAI {
	return &fakeAI{
		parsed: model.RawJSON(`{"basicInfo":{"firstName":"Jane","lastName":"Doe"},"workExperience":[],"education":[],"skills":["Go"]}`),
		elig:   model.Eligibility{YearsOfExperienceEstimate: 18, MeetsThreshold: true, Confidence: model.ConfidenceHigh, Reasons: []string{"long career"}},
		reply: ai.Reply{
			AssistantMessage: "Hi! Let's start with your name.",
			DraftProfile:     model.RawJSON(`{"basicInfo":{"firstName":"Jane","lastName":"Doe"}}`),
			NextStep:         model.StepExperience,
		},
	}
}

var testUsage = ai.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, CostEstimate: 0.0001}

func (a *fakeAI) Configured() bool { return !a.off }

func (a *fakeAI) ParseCV(_ context.Context, _, text, _ string) (model.RawJSON, ai.Usage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.parseCalls++
	return a.parsed, testUsage, a.parseErr
}

func (a *fakeAI) AssessEligibility(context.Context, string, any, string) (model.Eligibility, ai.Usage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eligCalls++
	return a.elig, testUsage, a.eligErr
}

func (a *fakeAI) StartConversation(_ context.Context, _ string, in ai.StartInput) (ai.Reply, ai.Usage, error) {
	a.starts = append(a.starts, in)
	return a.reply, testUsage, a.replyErr
}

func (a *fakeAI) ContinueConversation(_ context.Context, _ string, in ai.ContinueInput) (ai.Reply, ai.Usage, error) {
	a.continues = append(a.continues, in)
	return a.reply, testUsage, a.replyErr
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []queue.ParseCVJob
}

func (j *fakeJobs) PublishParseJob(_ context.Context, job queue.ParseCVJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs = append(j.jobs, job)
	return nil
}

const cvText = "Jane Doe. Chief Financial Officer with twenty years of professional experience in finance, " +
	"mergers and acquisitions and corporate strategy. Work history: Acme Corp 2004-2024. " +
	"Education: London School of Economics. Skills: treasury, audit, capital markets."

func docx(t *testing.T, text string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newParseFixture(files ...model.SourceFile) (*ParseService, *fakeFiles, *fakeBlobs, *fakeAI, *fakeJobs) {
	fs, bl, a, j := newFakeFiles(files...), newFakeBlobs(), newFakeAI(), &fakeJobs{}
	return NewParseService(fs, bl, a, j, 15*time.Minute, quiet), fs, bl, a, j
}

func TestUpload_Validation(t *testing.T) {
	svc, _, _, _, _ := newParseFixture()
	ctx := context.Background()
	ok := base64.StdEncoding.EncodeToString([]byte("data"))
	cases := []struct {
		in   UploadInput
		want string
	}{
		{UploadInput{FileName: "a.pdf", MimeType: extract.MimePDF}, "Missing required field: fileData (base64 encoded file)"},
		{UploadInput{FileData: ok, MimeType: extract.MimePDF}, "Missing required field: fileName"},
		{UploadInput{FileData: ok, FileName: "a.pdf"}, "Missing required field: mimeType"},
		{UploadInput{FileData: ok, FileName: "a.png", MimeType: "image/png"}, "Invalid file type: image/png. Allowed types: PDF, DOC, DOCX"},
		{UploadInput{FileData: ok, FileName: "a.pdf", MimeType: extract.MimePDF, FileType: "photo"}, "Invalid fileType. Allowed: cv, portfolio, certification, other"},
		{UploadInput{FileData: "%%%", FileName: "a.pdf", MimeType: extract.MimePDF}, "Invalid base64 file data"},
	}
	for _, tc := range cases {
		_, err := svc.Upload(ctx, tc.in)
		var in *InputError
		require.ErrorAs(t, err, &in, tc.want)
		assert.Equal(t, tc.want, in.Msg)
	}

	big := base64.StdEncoding.EncodeToString(make([]byte, MaxUploadBytes+1))
	_, err := svc.Upload(ctx, UploadInput{FileData: big, FileName: "a.pdf", MimeType: extract.MimePDF})
	assert.EqualError(t, err, "File too large. Maximum size is 10MB")
}

func TestUpload_ExtractsDOCX(t *testing.T) {
	svc, files, blobs, _, _ := newParseFixture()
	svc.Now = func() time.Time { return time.UnixMilli(1700000000123) }
	data := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(docx(t, cvText))

	res, err := svc.Upload(context.Background(), UploadInput{
		UserID: "u1", FileData: data, FileName: "Jane CV.docx", MimeType: extract.MimeDOCX,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "cv-uploads/u1/1700000000123_Jane_CV.docx", res.FilePath)
	assert.Equal(t, model.FileTypeCV, res.FileType)
	assert.Equal(t, model.ExtractionCompleted, res.ExtractionStatus)
	assert.Equal(t, len(cvText), res.TextLength)
	assert.Empty(t, res.Warnings)
	assert.Contains(t, blobs.data, res.FilePath)

	f := files.files[res.SourceFileID]
	assert.Equal(t, model.ParsingPending, f.ParsingStatus)
	assert.Equal(t, cvText, f.Text())
}

func TestUpload_FailedExtractionIsPersisted(t *testing.T) {
	svc, files, _, _, _ := newParseFixture()
	data := base64.StdEncoding.EncodeToString([]byte("not a pdf at all"))
	res, err := svc.Upload(context.Background(), UploadInput{UserID: "u1", FileData: data, FileName: "x.pdf", MimeType: extract.MimePDF})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid PDF file format")
	f := files.files[res.SourceFileID]
	assert.Equal(t, model.ExtractionFailed, f.ExtractionStatus)
	require.NotNil(t, f.ExtractionError)
}

func TestUpload_InsertFailureRemovesBlob(t *testing.T) {
	svc, files, blobs, _, _ := newParseFixture()
	files.createErr = errors.New("db down")
	data := base64.StdEncoding.EncodeToString(docx(t, cvText))
	_, err := svc.Upload(context.Background(), UploadInput{UserID: "u1", FileData: data, FileName: "a.docx", MimeType: extract.MimeDOCX})
	assert.EqualError(t, err, "Failed to save file record: db down")
	assert.Empty(t, blobs.data)
	assert.Len(t, blobs.deleted, 1)
}

func extracted(id, user string) model.SourceFile {
	text := cvText
	return model.SourceFile{
		ID: id, UserID: user, FileName: "cv.pdf",
		ExtractionStatus: model.ExtractionCompleted, ExtractedText: &text,
		ParsingStatus: model.ParsingPending,
	}
}

func TestTrigger_Ownership(t *testing.T) {
	svc, _, _, _, _ := newParseFixture(extracted("f1", "owner"))
	_, err := svc.Trigger(context.Background(), "intruder", "f1")
	assert.Equal(t, ForbiddenError("Access denied: You do not own this file"), err)
	_, err = svc.Trigger(context.Background(), "owner", "missing")
	assert.Equal(t, NotFoundError("Source file not found"), err)
	_, err = svc.Status(context.Background(), "intruder", "f1")
	assert.Equal(t, ForbiddenError("Access denied: You do not own this file"), err)
}

func TestTrigger_ExtractionNotCompleted(t *testing.T) {
	msg := "No text content found in PDF."
	f := model.SourceFile{ID: "f1", UserID: "u1", ExtractionStatus: model.ExtractionFailed, ExtractionError: &msg}
	svc, _, _, _, _ := newParseFixture(f)
	_, err := svc.Trigger(context.Background(), "u1", "f1")
	var in *InputError
	require.ErrorAs(t, err, &in)
	assert.Equal(t, msg, in.Msg)
}

func TestTrigger_ThenBackground(t *testing.T) {
	svc, files, _, a, jobs := newParseFixture(extracted("f1", "u1"))
	ctx := context.Background()

	res, err := svc.Trigger(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Queued)
	assert.Equal(t, model.ParsingProcessing, res.Status)
	assert.Equal(t, "/profile-parse-cv-status?sourceFileId=f1", res.PollEndpoint)
	require.Len(t, jobs.jobs, 1)

	// a second trigger while running neither restarts nor enqueues
	res, err = svc.Trigger(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.Queued)
	assert.Len(t, jobs.jobs, 1)

	require.NoError(t, svc.RunBackground(ctx, "f1", "u1"))
	assert.ErrorIs(t, svc.RunBackground(ctx, "f1", "u1"), ErrNotClaimed)
	assert.Equal(t, 1, a.parseCalls)

	st, err := svc.Status(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.Equal(t, model.ParsingCompleted, st.ParsingStatus)
	assert.JSONEq(t, string(a.parsed), string(st.ParsedData))
	assert.Contains(t, string(st.Eligibility), `"meetsThreshold":true`)

	// completed files are served from the row
	res, err = svc.Trigger(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, model.ParsingCompleted, res.Status)
	assert.Equal(t, 1, a.parseCalls)
	assert.Equal(t, model.ParsingCompleted, files.files["f1"].ParsingStatus)
}

func TestTrigger_ConcurrentCallersEnqueueOnce(t *testing.T) {
	svc, _, _, _, jobs := newParseFixture(extracted("f1", "u1"))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Trigger(context.Background(), "u1", "f1")
		}()
	}
	wg.Wait()
	assert.Len(t, jobs.jobs, 1)
}

func TestRunBackground_FailureIsTerminal(t *testing.T) {
	svc, files, _, a, _ := newParseFixture(extracted("f1", "u1"))
	a.parseErr = errors.New("CV parsing failed: API returned status 400: bad")
	ctx := context.Background()

	_, err := svc.Trigger(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.Error(t, svc.RunBackground(ctx, "f1", "u1"))
	assert.Equal(t, model.ParsingFailed, files.files["f1"].ParsingStatus)

	res, err := svc.Trigger(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.Equal(t, model.ParsingFailed, res.Status)
	require.NotNil(t, res.ParsingError)
	assert.Contains(t, *res.ParsingError, "status 400")
	assert.Equal(t, 1, a.parseCalls, "failed parses are not re-run")
}

func TestRunBackground_EligibilityIsBestEffort(t *testing.T) {
	svc, files, _, a, _ := newParseFixture(extracted("f1", "u1"))
	a.eligErr = errors.New("eligibility down")
	ctx := context.Background()
	_, err := svc.Trigger(ctx, "u1", "f1")
	require.NoError(t, err)
	require.NoError(t, svc.RunBackground(ctx, "f1", "u1"))
	f := files.files["f1"]
	assert.Equal(t, model.ParsingCompleted, f.ParsingStatus)
	assert.True(t, f.Eligibility.IsNull())
}

func TestRunBackground_StaleClaimIsRetaken(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	f := extracted("f1", "u1")
	f.ParsingStatus, f.ParsingStartedAt, f.ParsingClaimedAt = model.ParsingProcessing, &old, &old
	svc, _, _, _, jobs := newParseFixture(f)
	ctx := context.Background()

	res, err := svc.Trigger(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.True(t, res.Queued, "stale processing row is restarted")
	assert.Len(t, jobs.jobs, 1)
	require.NoError(t, svc.RunBackground(ctx, "f1", "u1"))
}

func TestParseText(t *testing.T) {
	svc, _, _, a, _ := newParseFixture()
	ctx := context.Background()

	_, err := svc.ParseText(ctx, "u1", "")
	assert.EqualError(t, err, "Missing required field: text")
	_, err = svc.ParseText(ctx, "u1", "  short  ")
	assert.EqualError(t, err, "Text too short. Please provide at least 100 characters of CV content.")
	_, err = svc.ParseText(ctx, "u1", strings.Repeat("x", 30001))
	assert.EqualError(t, err, "Text too long. Maximum 30,000 characters allowed.")
	_, err = svc.ParseText(ctx, "u1", strings.Repeat("word ", 30))
	assert.EqualError(t, err, "Extracted content is too short. Please upload a more detailed CV or resume.")

	res, err := svc.ParseText(ctx, "u1", cvText)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Eligibility)
	assert.Equal(t, []string{}, res.Warnings)
	assert.Equal(t, 150, res.Usage.TotalTokens)

	res, err = svc.ParseText(ctx, "u1", strings.Repeat("lorem ipsum dolor sit amet ", 10))
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 2, a.parseCalls)

	a.off = true
	_, err = svc.ParseText(ctx, "u1", cvText)
	assert.Equal(t, errAIUnavailable, err)
}

func TestAssess(t *testing.T) {
	svc, _, _, _, _ := newParseFixture()
	_, err := svc.Assess(context.Background(), "u1", nil, "")
	assert.EqualError(t, err, "Missing required field: profileData")
	res, err := svc.Assess(context.Background(), "u1", model.RawJSON(`{"basicInfo":{}}`), "d1")
	require.NoError(t, err)
	assert.True(t, res.Eligibility.MeetsThreshold)
}
