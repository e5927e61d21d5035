// Package email renders the transactional email catalog and sends it
// through an idempotent dispatcher backed by email_delivery_log.
package email

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/valyala/fasttemplate"
	"gopkg.in/yaml.v3"
)

// TemplateID names one entry of the catalog.
type TemplateID string

const (
	EmailVerified               TemplateID = "email_verified"
	WelcomeProfessional         TemplateID = "welcome_professional"
	WelcomeClient               TemplateID = "welcome_client"
	ReminderProfessional        TemplateID = "reminder_professional"
	ReminderClient              TemplateID = "reminder_client"
	VettingStartedProfessional  TemplateID = "vetting_started_professional"
	ReviewStartedClient         TemplateID = "review_started_client"
	ApprovedProfessional        TemplateID = "approved_professional"
	ApprovedClient              TemplateID = "approved_client"
	NeedsInfoProfessional       TemplateID = "needs_info_professional"
	NeedsInfoClient             TemplateID = "needs_info_client"
	DeclinedProfessional        TemplateID = "declined_professional"
	DeclinedClient              TemplateID = "declined_client"
	ActivationNudgeProfessional TemplateID = "activation_nudge_professional"
	ActivationNudgeClient       TemplateID = "activation_nudge_client"
)

// TemplateIDs lists every template in catalog order.
var TemplateIDs = []TemplateID{
	EmailVerified, WelcomeProfessional, WelcomeClient,
	ReminderProfessional, ReminderClient,
	VettingStartedProfessional, ReviewStartedClient,
	ApprovedProfessional, ApprovedClient,
	NeedsInfoProfessional, DeclinedProfessional,
	NeedsInfoClient, DeclinedClient,
	ActivationNudgeProfessional, ActivationNudgeClient,
}

// ParseTemplateID returns the id when it names a catalog entry.
func ParseTemplateID(s string) (TemplateID, bool) {
	for _, id := range TemplateIDs {
		if string(id) == s {
			return id, true
		}
	}
	return "", false
}

//go:embed catalog.yaml
var catalogYAML []byte

type link struct {
	Text string `yaml:"text"`
	Path string `yaml:"path"`
}

type definition struct {
	Subject    string            `yaml:"subject"`
	Preheader  string            `yaml:"preheader"`
	Greeting   string            `yaml:"greeting"`
	Paragraphs []string          `yaml:"paragraphs"`
	CTA        link              `yaml:"cta"`
	Secondary  *link             `yaml:"secondary"`
	Defaults   map[string]string `yaml:"defaults"`
}

// Catalog holds the parsed templates and the site base URL used for links.
type Catalog struct {
	siteURL string
	defs    map[TemplateID]definition
}

// LoadCatalog parses the embedded catalog.  Every TemplateID must be
// present and no unknown entries are allowed.
func LoadCatalog(siteURL string) (*Catalog, error) {
	return parseCatalog(catalogYAML, siteURL)
}

func parseCatalog(data []byte, siteURL string) (*Catalog, error) {
	raw := map[string]definition{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("email catalog: %w", err)
	}
	c := &Catalog{siteURL: strings.TrimRight(siteURL, "/"), defs: map[TemplateID]definition{}}
	for _, id := range TemplateIDs {
		d, ok := raw[string(id)]
		if !ok {
			return nil, fmt.Errorf("email catalog: missing template %q", id)
		}
		if d.Subject == "" || len(d.Paragraphs) == 0 || d.CTA.Text == "" {
			return nil, fmt.Errorf("email catalog: template %q is incomplete", id)
		}
		if d.Greeting == "" {
			d.Greeting = "Hi {first_name},"
		}
		c.defs[id] = d
		delete(raw, string(id))
	}
	if len(raw) > 0 {
		extra := make([]string, 0, len(raw))
		for k := range raw {
			extra = append(extra, k)
		}
		sort.Strings(extra)
		return nil, fmt.Errorf("email catalog: unknown templates %v", extra)
	}
	return c, nil
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id TemplateID) bool {
	_, ok := c.defs[id]
	return ok
}

// Subject returns the subject line of a template.
func (c *Catalog) Subject(id TemplateID) string { return c.defs[id].Subject }

// Rendered is a ready-to-send message body.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Render substitutes vars into the template and lays it out as HTML and
// plain text.
func (c *Catalog) Render(id TemplateID, vars map[string]string) (Rendered, error) {
	d, ok := c.defs[id]
	if !ok {
		return Rendered{}, fmt.Errorf("email template not found: %s", id)
	}
	merged := make(map[string]string, len(vars)+len(d.Defaults))
	for k, v := range d.Defaults {
		merged[k] = v
	}
	for k, v := range vars {
		if v != "" {
			merged[k] = v
		}
	}
	sub := func(s string) string {
		return fasttemplate.ExecuteFuncString(s, "{", "}", func(w io.Writer, tag string) (int, error) {
			return w.Write([]byte(merged[tag]))
		})
	}

	v := view{
		Subject:   d.Subject,
		Preheader: d.Preheader,
		Greeting:  sub(d.Greeting),
		CTAText:   d.CTA.Text,
		CTAURL:    c.url(d.CTA.Path),
		SiteURL:   c.siteURL,
	}
	for _, p := range d.Paragraphs {
		v.Paragraphs = append(v.Paragraphs, sub(p))
	}
	if d.Secondary != nil {
		v.SecondaryText = d.Secondary.Text
		if d.Secondary.Path != "" {
			v.SecondaryURL = c.url(d.Secondary.Path)
		}
	}

	html, err := renderHTML(v)
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", id, err)
	}
	return Rendered{Subject: d.Subject, HTML: html, Text: renderText(v)}, nil
}

func (c *Catalog) url(path string) string {
	if path == "" {
		return c.siteURL
	}
	return c.siteURL + path
}
