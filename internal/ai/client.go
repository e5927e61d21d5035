// Package ai talks to an OpenAI-compatible chat completions API to parse
// CVs, assess eligibility and run the profile drafting conversation.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// Features recorded in ai_usage_events.
const (
	FeatureCVParse      = "profile_cv_parse"
	FeatureEligibility  = "profile_eligibility_check"
	FeatureConversation = "profile_ai_conversation"
)

// ErrNotConfigured is returned by every call when no API key is set.
var ErrNotConfigured = errors.New("AI service not configured")

// UsageRecorder persists per-call usage.
type UsageRecorder interface {
	InsertAIUsage(ctx context.Context, userID, feature, model string, prompt, completion, total int, cost float64, metadata any) error
}

// Usage is the token accounting of one call as reported to clients.
type Usage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	CostEstimate     float64 `json:"costEstimate"`
}

// Client is a chat completions client.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	usage      UsageRecorder
	logger     *log.Logger

	// MaxAttempts bounds retries on 429 and 5xx.
	MaxAttempts int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
}

// NewClient returns a client.  An empty apiKey yields a client whose calls
// fail with ErrNotConfigured.
func NewClient(apiKey, baseURL, model string, usage UsageRecorder, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		usage:       usage,
		logger:      logger,
		MaxAttempts: 3,
		Backoff:     time.Second,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c != nil && c.apiKey != "" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// statusError is a non-2xx reply from the API.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return fmt.Sprintf("API returned status %d: %s", e.code, e.msg) }

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	// transport errors are retried unless the caller gave up
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type call struct {
	model       string
	schema      string
	messages    []chatMessage
	temperature float64
	maxTokens   int
	userID      string
	feature     string
	metadata    map[string]any
}

// complete runs one structured call, validates the reply against the
// call's schema, records usage and returns the JSON content.
func (c *Client) complete(ctx context.Context, k call) ([]byte, Usage, error) {
	if !c.Configured() {
		return nil, Usage{}, ErrNotConfigured
	}
	body, err := json.Marshal(chatRequest{
		Model:    k.model,
		Messages: k.messages,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   k.schema,
				Strict: false,
				Schema: schemas[k.schema].raw,
			},
		},
		Temperature: k.temperature,
		MaxTokens:   k.maxTokens,
	})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	var resp chatResponse
	delay := c.Backoff
	for attempt := 1; ; attempt++ {
		resp, err = c.post(ctx, body)
		if err == nil || attempt >= c.MaxAttempts || !retryable(err) {
			break
		}
		c.logger.Printf("ai: %s attempt %d failed, retrying in %s: %v", k.feature, attempt, delay, err)
		select {
		case <-ctx.Done():
			return nil, Usage{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	if err != nil {
		return nil, Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return nil, Usage{}, errors.New("no choices returned from API")
	}

	u := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostEstimate:     Cost(k.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	c.record(ctx, k, u)

	content := []byte(cleanJSON(resp.Choices[0].Message.Content))
	if err := validate(k.schema, content); err != nil {
		return nil, u, err
	}
	return content, u, nil
}

func (c *Client) post(ctx context.Context, body []byte) (chatResponse, error) {
	var out chatResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return out, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return out, &statusError{code: resp.StatusCode, msg: msg}
	}
	if out.Error != nil {
		return out, fmt.Errorf("API error: %s", out.Error.Message)
	}
	return out, nil
}

func (c *Client) record(ctx context.Context, k call, u Usage) {
	if c.usage == nil {
		return
	}
	// usage logging never fails the call
	err := c.usage.InsertAIUsage(context.WithoutCancel(ctx), k.userID, k.feature, k.model,
		u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.CostEstimate, k.metadata)
	if err != nil {
		c.logger.Printf("ai: failed to log usage for %s: %v", k.feature, err)
		return
	}
	c.logger.Printf("ai: usage logged: %s, %s, %d tokens, $%.6f", k.feature, k.model, u.TotalTokens, u.CostEstimate)
}

// cleanJSON strips a markdown fence some models wrap around JSON.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// ParseCV extracts a structured profile from CV text.  The returned
// document is the validated model output.
func (c *Client) ParseCV(ctx context.Context, userID, text, sourceFileID string) (model.RawJSON, Usage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, Usage{}, errors.New("No text content to parse")
	}
	out, u, err := c.complete(ctx, call{
		model:  c.model,
		schema: SchemaProfile,
		messages: []chatMessage{
			{Role: "system", Content: cvParsePrompt},
			{Role: "user", Content: "Please parse the following CV and extract structured profile data:\n\n" + text},
		},
		temperature: 0.1,
		maxTokens:   4000,
		userID:      userID,
		feature:     FeatureCVParse,
		metadata:    map[string]any{"source_file_id": nilIfEmpty(sourceFileID), "text_length": len(text)},
	})
	if err != nil {
		return nil, u, fmt.Errorf("CV parsing failed: %w", err)
	}
	return model.RawJSON(out), u, nil
}

// AssessEligibility rates a profile against the experience bar.  A low
// confidence answer from the default model is asked again of UpgradeModel.
func (c *Client) AssessEligibility(ctx context.Context, userID string, profile any, draftID string) (model.Eligibility, Usage, error) {
	e, u, err := c.assess(ctx, userID, profile, draftID, c.model)
	if err == nil && e.Confidence == model.ConfidenceLow && c.model == DefaultModel {
		c.logger.Printf("ai: low confidence eligibility assessment, upgrading to %s", UpgradeModel)
		e, u, err = c.assess(ctx, userID, profile, draftID, UpgradeModel)
	}
	if err != nil {
		return model.Eligibility{}, u, fmt.Errorf("Eligibility assessment failed: %w", err)
	}
	return e, u, nil
}

func (c *Client) assess(ctx context.Context, userID string, profile any, draftID, mdl string) (model.Eligibility, Usage, error) {
	var e model.Eligibility
	out, u, err := c.complete(ctx, call{
		model:  mdl,
		schema: SchemaEligibility,
		messages: []chatMessage{
			{Role: "system", Content: eligibilityPrompt},
			{Role: "user", Content: "Please assess the eligibility of this professional profile:\n\n" + prettyJSON(profile)},
		},
		temperature: 0.2,
		maxTokens:   1000,
		userID:      userID,
		feature:     FeatureEligibility,
		metadata:    map[string]any{"draft_id": nilIfEmpty(draftID)},
	})
	if err != nil {
		return e, u, err
	}
	if err := json.Unmarshal(out, &e); err != nil {
		return e, u, fmt.Errorf("failed to decode eligibility: %w", err)
	}
	if e.Reasons == nil {
		e.Reasons = []string{}
	}
	return e, u, nil
}

// Reply is one assistant turn of the drafting conversation.
type Reply struct {
	AssistantMessage string        `json:"assistantMessage"`
	DraftProfile     model.RawJSON `json:"draftProfile"`
	NextStep         model.Step    `json:"nextStep"`
	IsComplete       bool          `json:"isComplete"`
	QuestionsAsked   []string      `json:"questionsAsked,omitempty"`
}

func decodeReply(out []byte) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(out, &r); err != nil {
		return r, fmt.Errorf("failed to decode reply: %w", err)
	}
	return r, nil
}

// StartInput seeds the first turn.
type StartInput struct {
	CVText          string
	ExistingProfile map[string]any
	DraftID         string
}

// StartConversation produces the greeting turn.
func (c *Client) StartConversation(ctx context.Context, userID string, in StartInput) (Reply, Usage, error) {
	out, u, err := c.complete(ctx, call{
		model:  c.model,
		schema: SchemaConversation,
		messages: []chatMessage{
			{Role: "system", Content: startPrompt},
			{Role: "user", Content: startContext(in.CVText, in.ExistingProfile)},
		},
		temperature: 0.7,
		maxTokens:   2000,
		userID:      userID,
		feature:     FeatureConversation,
		metadata: map[string]any{
			"draft_id":          nilIfEmpty(in.DraftID),
			"conversation_turn": 0,
			"is_start":          true,
			"has_cv":            in.CVText != "",
		},
	})
	if err != nil {
		return Reply{}, u, fmt.Errorf("Failed to start conversation: %w", err)
	}
	r, err := decodeReply(out)
	if err != nil {
		return Reply{}, u, fmt.Errorf("Failed to start conversation: %w", err)
	}
	return r, u, nil
}

// ContinueInput is one user turn.  History must already hold any system
// context (such as newly uploaded CV text).
type ContinueInput struct {
	History     []model.ChatMessage
	Draft       model.RawJSON
	UserMessage string
	DraftID     string
}

// contextTurns is how much history the model sees.
const contextTurns = 10

// ContinueConversation produces the next assistant turn.
func (c *Client) ContinueConversation(ctx context.Context, userID string, in ContinueInput) (Reply, Usage, error) {
	var draft any = map[string]any{}
	if !in.Draft.IsNull() {
		draft = json.RawMessage(in.Draft)
	}
	msgs := []chatMessage{{Role: "system", Content: conversationSystemPrompt(draft)}}
	hist := in.History
	if len(hist) > contextTurns {
		hist = hist[len(hist)-contextTurns:]
	}
	for _, m := range hist {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: in.UserMessage})

	out, u, err := c.complete(ctx, call{
		model:       c.model,
		schema:      SchemaConversation,
		messages:    msgs,
		temperature: 0.7,
		maxTokens:   2000,
		userID:      userID,
		feature:     FeatureConversation,
		metadata: map[string]any{
			"draft_id":          nilIfEmpty(in.DraftID),
			"conversation_turn": len(in.History) + 1,
		},
	})
	if err != nil {
		return Reply{}, u, fmt.Errorf("Conversation failed: %w", err)
	}
	r, err := decodeReply(out)
	if err != nil {
		return Reply{}, u, fmt.Errorf("Conversation failed: %w", err)
	}
	return r, u, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
