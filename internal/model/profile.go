package model

// ParsedProfile is the structured profile produced by CV parsing and by the
// conversational assistant, and accepted by publish/save-parsed.  Field
// names follow the JSON the frontend and the LLM exchange.
type ParsedProfile struct {
	BasicInfo                BasicInfo        `json:"basicInfo"`
	WorkExperience           []WorkExperience `json:"workExperience"`
	Education                []Education      `json:"education"`
	Skills                   []string         `json:"skills"`
	Certifications           []Certification  `json:"certifications"`
	Languages                []LanguageEntry  `json:"languages"`
	Summary                  string           `json:"summary,omitempty"`
	EstimatedYearsExperience *float64         `json:"estimatedYearsExperience,omitempty"`
}

type BasicInfo struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedInURL string `json:"linkedinUrl,omitempty"`
	Location    string `json:"location,omitempty"`
	Headline    string `json:"headline,omitempty"`
}

type WorkExperience struct {
	Company          string `json:"company"`
	JobTitle         string `json:"jobTitle"`
	StartDateMonth   string `json:"startDateMonth,omitempty"`
	StartDateYear    *int   `json:"startDateYear,omitempty"`
	EndDateMonth     string `json:"endDateMonth,omitempty"`
	EndDateYear      *int   `json:"endDateYear,omitempty"`
	CurrentlyWorking bool   `json:"currentlyWorking,omitempty"`
	Description      string `json:"description,omitempty"`
	City             string `json:"city,omitempty"`
	Country          string `json:"country,omitempty"`
}

type Education struct {
	InstitutionName string `json:"institutionName"`
	DegreeLevel     string `json:"degreeLevel"`
	FieldOfStudy    string `json:"fieldOfStudy,omitempty"`
	StartDate       string `json:"startDate,omitempty"`
	EndDate         string `json:"endDate,omitempty"`
	Grade           string `json:"grade,omitempty"`
	Description     string `json:"description,omitempty"`
}

type Certification struct {
	Name          string `json:"name"`
	AwardingBody  string `json:"awardingBody,omitempty"`
	IssueDate     string `json:"issueDate,omitempty"`
	ExpiryDate    string `json:"expiryDate,omitempty"`
	CredentialID  string `json:"credentialId,omitempty"`
	CredentialURL string `json:"credentialUrl,omitempty"`
}

type LanguageEntry struct {
	Language    string `json:"language"`
	Proficiency string `json:"proficiency,omitempty"`
}

// Confidence of an eligibility assessment.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Eligibility is a soft assessment against the ~15 years experience bar.
// It flags profiles, it never blocks them.
type Eligibility struct {
	YearsOfExperienceEstimate float64    `json:"yearsOfExperienceEstimate"`
	MeetsThreshold            bool       `json:"meetsThreshold"`
	Confidence                Confidence `json:"confidence"`
	Reasons                   []string   `json:"reasons"`
	SeniorityIndicators       []string   `json:"seniorityIndicators,omitempty"`
}
