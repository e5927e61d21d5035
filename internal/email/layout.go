package email

import (
	"bytes"
	"html/template"
	"strings"
)

type view struct {
	Subject       string
	Preheader     string
	Greeting      string
	Paragraphs    []string
	CTAText       string
	CTAURL        string
	SecondaryText string
	SecondaryURL  string
	SiteURL       string
}

// SecondaryLower is used for the "Or reply to this email" line when the
// secondary action has no link.
func (v view) SecondaryLower() string { return strings.ToLower(v.SecondaryText) }

var layout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <meta http-equiv="X-UA-Compatible" content="IE=edge">
  <title>{{.Subject}}</title>
  <style>
    body { margin: 0; padding: 0; width: 100% !important; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; line-height: 1.6; color: #1f2937; background-color: #f9fafb; }
    .email-wrapper { width: 100%; background-color: #f9fafb; padding: 20px 0; }
    .email-container { max-width: 600px; margin: 0 auto; background: white; border-radius: 12px; overflow: hidden; box-shadow: 0 4px 6px -1px rgba(0, 0, 0, 0.1); }
    .header { background: linear-gradient(135deg, #0284C7 0%, #0369A1 100%); color: white; padding: 40px 30px; text-align: center; }
    .logo { font-size: 32px; font-weight: 800; margin-bottom: 8px; letter-spacing: -0.5px; color: white; }
    .tagline { font-size: 16px; opacity: 0.9; color: white; }
    .content { padding: 40px 30px; }
    .greeting { font-size: 18px; font-weight: 600; color: #1f2937; margin-bottom: 24px; }
    .paragraph { margin-bottom: 20px; font-size: 16px; color: #374151; line-height: 1.7; }
    .cta-container { margin: 32px 0; text-align: center; }
    .cta-button { display: inline-block; padding: 16px 32px; background-color: #0284C7; color: white !important; text-decoration: none; border-radius: 8px; font-size: 16px; font-weight: 600; min-width: 200px; }
    .secondary-cta { margin-top: 16px; text-align: center; }
    .secondary-link { color: #0284C7; text-decoration: none; font-size: 14px; }
    .footer { background: #f8fafc; padding: 30px; text-align: center; font-size: 14px; color: #6b7280; border-top: 1px solid #e5e7eb; }
    .footer-logo { font-weight: 800; color: #0284C7; font-size: 18px; margin-bottom: 8px; }
    .footer-tagline { margin-bottom: 15px; font-style: italic; }
    .footer-links { font-size: 12px; color: #9ca3af; margin-top: 15px; }
    .footer-link { color: #0284C7; text-decoration: none; }
    @media only screen and (max-width: 600px) {
      .email-container { border-radius: 0; margin: 0; }
      .header { padding: 30px 20px; }
      .content { padding: 30px 20px; }
      .cta-button { display: block; width: 100%; padding: 14px 24px; }
    }
  </style>
</head>
<body>
  <div style="display: none; max-height: 0px; overflow: hidden;">{{.Preheader}}</div>
  <div class="email-wrapper">
    <div class="email-container">
      <div class="header">
        <div class="logo">GigExecs</div>
        <div class="tagline">Flexible work for senior professionals</div>
      </div>
      <div class="content">
        <div class="greeting">{{.Greeting}}</div>
        {{range .Paragraphs}}<div class="paragraph">{{.}}</div>
        {{end}}
        <div class="cta-container">
          <a href="{{.CTAURL}}" class="cta-button" style="color: white !important; text-decoration: none;">{{.CTAText}}</a>
        </div>
        {{if and .SecondaryText .SecondaryURL}}<div class="secondary-cta">
          <a href="{{.SecondaryURL}}" class="secondary-link" style="color: #0284C7; text-decoration: none;">{{.SecondaryText}}</a>
        </div>{{else if .SecondaryText}}<div class="secondary-cta">
          <span style="color: #6b7280; font-size: 14px;">Or {{.SecondaryLower}}</span>
        </div>{{end}}
      </div>
      <div class="footer">
        <div class="footer-logo">GigExecs</div>
        <div class="footer-tagline">The Premier Hub for Highly Experienced Professionals</div>
        <div style="margin-top: 15px;">
          <a href="{{.SiteURL}}" class="footer-link" style="color: #0284C7; text-decoration: none;">www.gigexecs.com</a>
        </div>
        <div class="footer-links">
          You're receiving this because you're part of the GigExecs community.<br>
          <a href="{{.SiteURL}}/settings/notifications" class="footer-link">Update preferences</a> |
          <a href="{{.SiteURL}}/unsubscribe" class="footer-link">Unsubscribe</a>
        </div>
      </div>
    </div>
  </div>
</body>
</html>`))

func renderHTML(v view) (string, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderText(v view) string {
	var b strings.Builder
	b.WriteString(v.Greeting + "\n\n")
	b.WriteString(strings.Join(v.Paragraphs, "\n\n"))
	b.WriteString("\n\n" + v.CTAText + ": " + v.CTAURL + "\n")
	if v.SecondaryText != "" && v.SecondaryURL != "" {
		b.WriteString("\n" + v.SecondaryText + ": " + v.SecondaryURL + "\n")
	}
	b.WriteString("\n---\nGigExecs - The Premier Hub for Highly Experienced Professionals\nwww.gigexecs.com\n\n")
	b.WriteString("You're receiving this because you're part of the GigExecs community.\n")
	b.WriteString("Update preferences: " + v.SiteURL + "/settings/notifications\n")
	b.WriteString("Unsubscribe: " + v.SiteURL + "/unsubscribe")
	return b.String()
}
