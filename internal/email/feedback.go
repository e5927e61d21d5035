package email

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

// FeedbackInbox receives in-app feedback.
const FeedbackInbox = "help@gigexecs.com"

var feedbackLabels = map[string]string{
	"general":     "General Feedback",
	"bug":         "Bug Report",
	"feature":     "Feature Request",
	"ui":          "UI/UX Improvement",
	"performance": "Performance Issue",
	"billing":     "Billing Question",
	"other":       "Other",
}

// FeedbackLabel names a feedback category.  Unknown categories are shown
// as given.
func FeedbackLabel(category string) string {
	if l, ok := feedbackLabels[category]; ok {
		return l
	}
	return category
}

// Feedback is one in-app submission.
type Feedback struct {
	UserID      string
	UserName    string
	UserEmail   string
	UserType    string
	Category    string
	Subject     string
	Body        string
	SubmittedAt time.Time
}

type feedbackView struct {
	Feedback
	Label     string
	Audience  string
	Submitted string
}

var feedbackLayout = template.Must(template.New("feedback").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #111827;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #0f172a; color: #ffffff; padding: 24px; border-radius: 8px 8px 0 0;">
      <h1 style="margin: 0; font-size: 24px;">New Feedback Received</h1>
      <p style="margin: 8px 0 0 0; opacity: 0.9;">From GigExecs Platform</p>
    </div>
    <div style="background: #f9fafb; padding: 24px; border: 1px solid #e5e7eb; border-radius: 0 0 8px 8px;">
      <p style="margin: 0; font-size: 12px; color: #6b7280; text-transform: uppercase;">Submitted by</p>
      <p style="margin: 4px 0 0 0;"><strong>{{.UserName}}</strong></p>
      <p style="margin: 0; color: #6b7280;">{{.UserEmail}}</p>
      <p style="margin: 8px 0 16px 0;">{{.Audience}}</p>
      <p style="margin: 0; font-size: 12px; color: #6b7280; text-transform: uppercase;">Category</p>
      <p style="margin: 4px 0 16px 0;">{{.Label}}</p>
      {{- if .Subject}}
      <p style="margin: 0; font-size: 12px; color: #6b7280; text-transform: uppercase;">Subject</p>
      <p style="margin: 4px 0 16px 0;">{{.Subject}}</p>
      {{- end}}
      <p style="margin: 0; font-size: 12px; color: #6b7280; text-transform: uppercase;">Feedback</p>
      <div style="margin-top: 4px; white-space: pre-wrap;">{{.Body}}</div>
      <div style="margin-top: 24px; padding-top: 16px; border-top: 1px solid #e5e7eb; color: #6b7280; font-size: 12px;">
        <p style="margin: 0;">User ID: {{.UserID}}</p>
        <p style="margin: 4px 0 0 0;">Submitted at: {{.Submitted}}</p>
      </div>
    </div>
  </div>
</body>
</html>`))

// RenderFeedback lays out a submission for the support inbox.  Every user
// supplied field is HTML escaped.
func RenderFeedback(f Feedback) (Rendered, error) {
	label := FeedbackLabel(f.Category)
	subject := f.Subject
	if subject == "" {
		subject = "New submission"
	}
	audience := f.UserType
	switch f.UserType {
	case "consultant":
		audience = "Professional"
	case "client":
		audience = "Client"
	}
	v := feedbackView{Feedback: f, Label: label, Audience: audience, Submitted: f.SubmittedAt.UTC().Format(time.RFC3339)}

	var buf bytes.Buffer
	if err := feedbackLayout.Execute(&buf, v); err != nil {
		return Rendered{}, err
	}

	var text strings.Builder
	text.WriteString("New feedback from " + f.UserName + " <" + f.UserEmail + ">\n\n")
	text.WriteString("Category: " + label + "\n")
	if f.Subject != "" {
		text.WriteString("Subject: " + f.Subject + "\n")
	}
	text.WriteString("\n" + f.Body + "\n\nUser ID: " + f.UserID + "\nSubmitted at: " + v.Submitted + "\n")

	return Rendered{
		Subject: "[GigExecs Feedback] " + label + ": " + subject,
		HTML:    buf.String(),
		Text:    text.String(),
	}, nil
}
