package cv

import (
	"time"
)

// ContactInfo holds optional contact details extracted from a CV.
type ContactInfo struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
	GitHub    string `json:"github,omitempty"`
	Portfolio string `json:"portfolio,omitempty"`
}

func (c *ContactInfo) empty() bool {
	return c == nil || *c == ContactInfo{}
}

type Skill struct {
	Name            string   `json:"name"`
	Category        string   `json:"category,omitempty"`
	Level           string   `json:"level,omitempty"`
	YearsExperience *float64 `json:"years_experience,omitempty"`
}

// Experience is a single position. Experiences are kept most-recent-first.
type Experience struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	Current     bool     `json:"current"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills"`
}

type Education struct {
	Degree         string   `json:"degree"`
	Institution    string   `json:"institution"`
	FieldOfStudy   string   `json:"field_of_study,omitempty"`
	GraduationYear *int     `json:"graduation_year,omitempty"`
	GPA            *float64 `json:"gpa,omitempty"`
}

type Language struct {
	Language    string `json:"language"`
	Proficiency string `json:"proficiency"`
}

// Input is the caller-supplied content of a CV. Only RawText is required by
// the HTTP layer; the store itself accepts any Input.
type Input struct {
	RawText        string         `json:"raw_text"`
	ContactInfo    *ContactInfo   `json:"contact_info,omitempty"`
	Skills         []Skill        `json:"skills"`
	Experiences    []Experience   `json:"experiences"`
	Education      []Education    `json:"education"`
	Languages      []Language     `json:"languages"`
	TechStack      []string       `json:"tech_stack"`
	AnalysisResult map[string]any `json:"analysis_result,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Record is a stored CV. Records are never mutated after Save; every value
// handed out by the Store is an independent copy.
type Record struct {
	ID       string    `json:"id"`
	StoredAt time.Time `json:"stored_at"`
	Input
}

// Summary carries the counts reported back after storing a CV and by the
// summary endpoints.
type Summary struct {
	ID               string    `json:"id,omitempty"`
	StoredAt         time.Time `json:"stored_at,omitzero"`
	TextLength       int       `json:"text_length"`
	SkillsCount      int       `json:"skills_count"`
	ExperiencesCount int       `json:"experiences_count"`
	EducationCount   int       `json:"education_count"`
	LanguagesCount   int       `json:"languages_count"`
	TechStackCount   int       `json:"tech_stack_count"`
	HasContactInfo   bool      `json:"has_contact_info"`
	HasAnalysis      bool      `json:"has_analysis"`
}

// Receipt is returned by Store.Save.
type Receipt struct {
	ID       string
	StoredAt time.Time
	Summary  Summary
}

// HasStructuredData reports whether the record carries any skills,
// experiences, or education entries.
func (r *Record) HasStructuredData() bool {
	return len(r.Skills) > 0 || len(r.Experiences) > 0 || len(r.Education) > 0
}
