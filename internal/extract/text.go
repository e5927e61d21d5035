package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	reReplacement = regexp.MustCompile(`[\x{FFFD}\x{FFFE}\x{FFFF}]`)
	reBlocks      = regexp.MustCompile(`[\x{2580}-\x{259F}]`)
	reControl     = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	reSpaces      = regexp.MustCompile(`[ \t]+`)
	reNewlines    = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes extracted text: encoding debris is removed, runs of
// blanks collapse to one space, runs of 3+ newlines collapse to a paragraph
// break, and every line is trimmed.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")
	s = reReplacement.ReplaceAllString(s, "")
	s = reBlocks.ReplaceAllString(s, "-")
	s = reControl.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	s = reNewlines.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// EstimateTokens approximates the token count at four characters a token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// TruncatedMarker is appended to text cut by TruncateToTokens.
const TruncatedMarker = "\n\n[Content truncated due to length...]"

// TruncateToTokens cuts s to roughly maxTokens.  The cut moves back to the
// last period or newline when that keeps more than 80% of the budget.
func TruncateToTokens(s string, maxTokens int) string {
	if s == "" {
		return ""
	}
	if EstimateTokens(s) <= maxTokens {
		return s
	}
	maxChars := max(maxTokens, 0) * 4
	runes := []rune(s)
	truncated := string(runes[:maxChars])

	cut := max(strings.LastIndex(truncated, "."), strings.LastIndex(truncated, "\n"))
	if cut >= 0 && utf8.RuneCountInString(truncated[:cut])*10 > maxChars*8 {
		return truncated[:cut+1] + TruncatedMarker
	}
	return truncated + TruncatedMarker
}

var cvIndicators = regexp.MustCompile(`(?i)experience|education|skills|work|employment|professional|resume|curriculum vitae|cv|career`)

// Validation is the verdict on extracted content.  Reason is set when the
// text is invalid and may also carry a warning for valid text.
type Validation struct {
	Valid  bool
	Reason string
}

const minContentChars = 200

// Validate checks that text is long enough to describe a profile.  Text
// without any CV vocabulary is still valid but carries a warning.
func Validate(text string) Validation {
	t := strings.TrimSpace(text)
	if t == "" {
		return Validation{Reason: "No text content extracted from the file."}
	}
	if utf8.RuneCountInString(t) < minContentChars {
		return Validation{Reason: "Extracted content is too short. Please upload a more detailed CV or resume."}
	}
	if !cvIndicators.MatchString(text) {
		return Validation{Valid: true, Reason: "Warning: The document may not be a CV/resume. Profile extraction may be less accurate."}
	}
	return Validation{Valid: true}
}
