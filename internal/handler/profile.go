package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/service"
)

// ProfileHandler serves the AI profile drafting pipeline: CV upload and
// parse, eligibility, the guided conversation and publishing.
type ProfileHandler struct {
	Parse  *service.ParseService
	Drafts *service.DraftService
	Logger *log.Logger
}

func NewProfileHandler(parse *service.ParseService, drafts *service.DraftService, logger *log.Logger) *ProfileHandler {
	if parse == nil || drafts == nil {
		panic("nil service passed to NewProfileHandler")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ProfileHandler{Parse: parse, Drafts: drafts, Logger: logger}
}

// Upload handles POST /profile-cv-upload.  A file whose text cannot be
// extracted is still stored and answered with 400.
func (h *ProfileHandler) Upload(c echo.Context) error {
	var body struct {
		FileData string `json:"fileData"`
		FileName string `json:"fileName"`
		MimeType string `json:"mimeType"`
		FileType string `json:"fileType"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Parse.Upload(c.Request().Context(), service.UploadInput{
		UserID:   caller(c).ID,
		FileData: body.FileData,
		FileName: body.FileName,
		MimeType: body.MimeType,
		FileType: body.FileType,
	})
	if err != nil {
		return fail(c, err)
	}
	if !res.Success {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusOK, res)
}

type sourceFileBody struct {
	SourceFileID string `json:"sourceFileId"`
	UserID       string `json:"userId"`
}

// ParseCV handles POST /profile-parse-cv.
func (h *ProfileHandler) ParseCV(c echo.Context) error {
	var body sourceFileBody
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Parse.Trigger(c.Request().Context(), caller(c).ID, body.SourceFileID)
	if err != nil {
		return fail(c, err)
	}
	if res.Accepted {
		return c.JSON(http.StatusAccepted, res)
	}
	return c.JSON(http.StatusOK, res)
}

// ParseCVBackground handles POST /profile-parse-cv-background.  The parse
// runs detached from the request and the call returns 202 at once.
func (h *ProfileHandler) ParseCVBackground(c echo.Context) error {
	var body sourceFileBody
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	if body.SourceFileID == "" || body.UserID == "" {
		return bad(c, "Missing sourceFileId or userId")
	}
	ctx := context.WithoutCancel(c.Request().Context())
	go func() {
		if err := h.Parse.RunBackground(ctx, body.SourceFileID, body.UserID); err != nil {
			h.Logger.Printf("parse-background: %s: %v", body.SourceFileID, err)
		}
	}()
	return c.JSON(http.StatusAccepted, echo.Map{"success": true, "status": model.ParsingProcessing, "sourceFileId": body.SourceFileID})
}

// ParseStatus handles GET and POST /profile-parse-cv-status.
func (h *ProfileHandler) ParseStatus(c echo.Context) error {
	id := c.QueryParam("sourceFileId")
	if id == "" && c.Request().Method == http.MethodPost {
		var body sourceFileBody
		if err := bind(c, &body); err != nil {
			return fail(c, err)
		}
		id = body.SourceFileID
	}
	res, err := h.Parse.Status(c.Request().Context(), caller(c).ID, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ParseText handles POST /profile-parse-text.
func (h *ProfileHandler) ParseText(c echo.Context) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Parse.ParseText(c.Request().Context(), caller(c).ID, body.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// AssessEligibility handles POST /profile-assess-eligibility.
func (h *ProfileHandler) AssessEligibility(c echo.Context) error {
	var body struct {
		ProfileData  model.RawJSON `json:"profileData"`
		SourceFileID string        `json:"sourceFileId"`
		DraftID      string        `json:"draftId"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Parse.Assess(c.Request().Context(), caller(c).ID, body.ProfileData, body.DraftID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Start handles POST /profile-ai-start.
func (h *ProfileHandler) Start(c echo.Context) error {
	var body struct {
		SourceFileIDs []string `json:"sourceFileIds"`
		ResumeDraftID string   `json:"resumeDraftId"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Drafts.Start(c.Request().Context(), service.StartInput{
		UserID:        caller(c).ID,
		SourceFileIDs: body.SourceFileIDs,
		ResumeDraftID: body.ResumeDraftID,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Continue handles POST /profile-ai-continue.
func (h *ProfileHandler) Continue(c echo.Context) error {
	var body struct {
		DraftID       string   `json:"draftId"`
		UserMessage   string   `json:"userMessage"`
		SourceFileIDs []string `json:"sourceFileIds"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Drafts.Continue(c.Request().Context(), service.ContinueInput{
		UserID:        caller(c).ID,
		DraftID:       body.DraftID,
		UserMessage:   body.UserMessage,
		SourceFileIDs: body.SourceFileIDs,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Publish handles POST /profile-ai-publish.
func (h *ProfileHandler) Publish(c echo.Context) error {
	var body struct {
		DraftID       string        `json:"draftId"`
		EditedProfile model.RawJSON `json:"editedProfile"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Drafts.Publish(c.Request().Context(), caller(c).ID, body.DraftID, body.EditedProfile)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// SaveParsed handles POST /profile-save-parsed.
func (h *ProfileHandler) SaveParsed(c echo.Context) error {
	var body struct {
		SourceFileID string        `json:"sourceFileId"`
		ParsedData   model.RawJSON `json:"parsedData"`
		Eligibility  model.RawJSON `json:"eligibility"`
	}
	if err := bind(c, &body); err != nil {
		return fail(c, err)
	}
	res, err := h.Drafts.SaveParsed(c.Request().Context(), service.SaveParsedInput{
		UserID:       caller(c).ID,
		SourceFileID: body.SourceFileID,
		ParsedData:   body.ParsedData,
		Eligibility:  body.Eligibility,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
