package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is a provider-neutral outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	// ReplyTo overrides the provider's default reply address when set.
	ReplyTo string
}

// Provider delivers a message and returns the provider's message id.
type Provider interface {
	Send(ctx context.Context, m Message) (string, error)
}

const resendURL = "https://api.resend.com/emails"

// Resend is a Provider backed by the Resend HTTP API.
type Resend struct {
	apiKey     string
	from       string
	replyTo    string
	endpoint   string
	httpClient *http.Client
}

// NewResend returns a Resend client.  An empty endpoint uses the public API.
func NewResend(apiKey, from, replyTo, endpoint string) *Resend {
	if endpoint == "" {
		endpoint = resendURL
	}
	return &Resend{
		apiKey:     apiKey,
		from:       from,
		replyTo:    replyTo,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

func (r *Resend) Send(ctx context.Context, m Message) (string, error) {
	replyTo := r.replyTo
	if m.ReplyTo != "" {
		replyTo = m.ReplyTo
	}
	body, err := json.Marshal(resendRequest{
		From:    r.from,
		To:      []string{m.To},
		Subject: m.Subject,
		HTML:    m.HTML,
		Text:    m.Text,
		ReplyTo: replyTo,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal resend request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read resend response: %w", err)
	}

	var out resendResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 {
		if out.Message != "" {
			return "", errors.New(out.Message)
		}
		return "", fmt.Errorf("resend API returned status %d: %s", resp.StatusCode, string(raw))
	}
	if out.ID == "" {
		return "", errors.New("resend API returned no message id")
	}
	return out.ID, nil
}
