package composer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kalambet/cvmatch/internal/cv"
)

func fullRecord() *cv.Record {
	return &cv.Record{
		ID: "cv-1",
		Input: cv.Input{
			RawText: "raw text that should not appear",
			Skills:  []cv.Skill{{Name: "Go"}, {Name: "PostgreSQL"}, {Name: "Kubernetes"}},
			Experiences: []cv.Experience{
				{Title: "Senior Engineer", Company: "Acme", Description: "Built payment services"},
				{Title: "Engineer", Company: "Globex"},
			},
			Education: []cv.Education{
				{Degree: "BSc", FieldOfStudy: "Computer Science", Institution: "MIT"},
				{Degree: "MSc", Institution: "ETH"},
			},
			TechStack: []string{"Go", "gRPC"},
		},
	}
}

func TestBuildMatchPrompt_StructuredCV(t *testing.T) {
	p := BuildMatchPrompt(fullRecord(), "Looking for a Go developer")

	for _, want := range []string{
		"Skills (3): Go, PostgreSQL, Kubernetes",
		"- Senior Engineer at Acme: Built payment services",
		"- Engineer at Globex\n",
		"- BSc in Computer Science from MIT",
		"- MSc in N/A from ETH",
		"Tech stack: Go, gRPC",
		"Looking for a Go developer",
		`"match_score"`,
		`"strengths"`,
		`"gaps"`,
		`"summary"`,
		`"skills_match"`,
		`"recommendations"`,
		"ONLY source of truth",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q\n%s", want, p)
		}
	}
	if strings.Contains(p, "raw text that should not appear") {
		t.Error("raw text included although structured data exists")
	}
}

func TestBuildMatchPrompt_Deterministic(t *testing.T) {
	rec := fullRecord()
	a := BuildMatchPrompt(rec, "job")
	b := BuildMatchPrompt(rec, "job")
	if a != b {
		t.Error("identical inputs produced different prompts")
	}
}

func TestBuildMatchPrompt_LimitsExperienceAndEducation(t *testing.T) {
	rec := &cv.Record{}
	for i := 0; i < 8; i++ {
		rec.Experiences = append(rec.Experiences, cv.Experience{Title: "T", Company: string(rune('A' + i))})
		rec.Education = append(rec.Education, cv.Education{Degree: "D", Institution: string(rune('A' + i))})
	}
	p := BuildMatchPrompt(rec, "job")

	if got := strings.Count(p, "- T at "); got != maxExperiences {
		t.Errorf("experience lines = %d, want %d", got, maxExperiences)
	}
	if got := strings.Count(p, "- D in "); got != maxEducation {
		t.Errorf("education lines = %d, want %d", got, maxEducation)
	}
	if !strings.Contains(p, "- T at A") || strings.Contains(p, "- T at F") {
		t.Error("expected the first experiences in stored order")
	}
}

func TestBuildMatchPrompt_TruncatesDescription(t *testing.T) {
	rec := &cv.Record{Input: cv.Input{Experiences: []cv.Experience{
		{Title: "T", Company: "C", Description: strings.Repeat("é", 500)},
	}}}
	p := BuildMatchPrompt(rec, "job")
	if !strings.Contains(p, strings.Repeat("é", 200)+"\n") {
		t.Error("description not truncated to 200 characters")
	}
	if strings.Contains(p, strings.Repeat("é", 201)) {
		t.Error("description longer than 200 characters")
	}
}

func TestBuildMatchPrompt_RawTextFallback(t *testing.T) {
	rec := &cv.Record{Input: cv.Input{RawText: strings.Repeat("x", 5000)}}
	p := BuildMatchPrompt(rec, "job")
	if !strings.Contains(p, "CV text:\n"+strings.Repeat("x", 3000)+"\n") {
		t.Error("raw text not included truncated to 3000 characters")
	}
	if strings.Contains(p, strings.Repeat("x", 3001)) {
		t.Error("raw text exceeds 3000 characters")
	}
}

func TestBuildMatchPrompt_NoCV(t *testing.T) {
	p := BuildMatchPrompt(nil, "Looking for a Python developer")
	if !strings.Contains(p, "No CV is available") {
		t.Error("missing no-CV notice")
	}
	if !strings.Contains(p, "Looking for a Python developer") {
		t.Error("missing job description")
	}
}

func TestBuildMatchPrompt_TruncatesJobDescription(t *testing.T) {
	jd := strings.Repeat("j", 7000)
	p := BuildMatchPrompt(nil, jd)
	if strings.Contains(p, strings.Repeat("j", 6001)) {
		t.Error("job description exceeds 6000 characters")
	}
	if !strings.Contains(p, strings.Repeat("j", 6000)) {
		t.Error("job description truncated too aggressively")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"日本語テキスト", 3, "日本語"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
