package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/cvmatch/internal/cv"
)

const (
	maxExperiences         = 5
	maxEducation           = 3
	maxDescriptionRunes    = 200
	maxRawTextRunes        = 3000
	maxJobDescriptionRunes = 6000
)

// SystemPrompt is sent as the system message of every match request.
const SystemPrompt = "You are a professional job match analyst. You compare a candidate's CV " +
	"against a job description using only the facts stated in the CV. " +
	"Always return valid JSON."

const responseShape = `{
  "match_score": <number from 0 to 100>,
  "strengths": ["<requirement the CV clearly satisfies>", ...],
  "gaps": ["<requirement missing from the CV>", ...],
  "summary": "<two or three sentence overall assessment>",
  "skills_match": {"<skill named in the job description>": <number from 0 to 100>, ...},
  "recommendations": ["<concrete action for the candidate>", ...]
}`

// BuildMatchPrompt renders the user message for a match request. rec may be
// nil when no CV is stored. The output depends only on its inputs.
func BuildMatchPrompt(rec *cv.Record, jobDescription string) string {
	var sb strings.Builder

	sb.WriteString("Evaluate how well the candidate's CV matches the job description below.\n\n")
	sb.WriteString("STRICT RULES:\n")
	sb.WriteString("1. The CV is the ONLY source of truth about the candidate.\n")
	sb.WriteString("2. Every skill, technology, or qualification the job asks for that does not appear in the CV MUST be listed in \"gaps\".\n")
	sb.WriteString("3. Do not infer, assume, or invent experience, skills, or education that the CV does not state.\n")
	sb.WriteString("4. Score \"match_score\" and \"skills_match\" only on evidence found in the CV.\n\n")

	sb.WriteString("CANDIDATE CV:\n")
	writeCV(&sb, rec)

	sb.WriteString("\nJOB DESCRIPTION:\n")
	sb.WriteString(truncate(jobDescription, maxJobDescriptionRunes))
	sb.WriteString("\n\n")

	sb.WriteString("Respond with a single JSON object of exactly this shape and nothing else:\n")
	sb.WriteString(responseShape)
	sb.WriteString("\n")

	return sb.String()
}

func writeCV(sb *strings.Builder, rec *cv.Record) {
	if rec == nil {
		sb.WriteString("No CV is available. Treat every requirement of the job as a gap.\n")
		return
	}

	if !rec.HasStructuredData() {
		if strings.TrimSpace(rec.RawText) == "" {
			sb.WriteString("The CV contains no details.\n")
		} else {
			sb.WriteString("CV text:\n")
			sb.WriteString(truncate(rec.RawText, maxRawTextRunes))
			sb.WriteString("\n")
		}
		writeTechStack(sb, rec.TechStack)
		return
	}

	if len(rec.Skills) > 0 {
		names := make([]string, 0, len(rec.Skills))
		for _, s := range rec.Skills {
			names = append(names, s.Name)
		}
		fmt.Fprintf(sb, "Skills (%d): %s\n", len(names), strings.Join(names, ", "))
	}

	if len(rec.Experiences) > 0 {
		sb.WriteString("Experience:\n")
		for i, e := range rec.Experiences {
			if i == maxExperiences {
				break
			}
			fmt.Fprintf(sb, "- %s at %s", e.Title, e.Company)
			if e.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(truncate(e.Description, maxDescriptionRunes))
			}
			sb.WriteString("\n")
		}
	}

	if len(rec.Education) > 0 {
		sb.WriteString("Education:\n")
		for i, e := range rec.Education {
			if i == maxEducation {
				break
			}
			field := e.FieldOfStudy
			if field == "" {
				field = "N/A"
			}
			fmt.Fprintf(sb, "- %s in %s from %s\n", e.Degree, field, e.Institution)
		}
	}

	writeTechStack(sb, rec.TechStack)
}

func writeTechStack(sb *strings.Builder, stack []string) {
	if len(stack) == 0 {
		return
	}
	fmt.Fprintf(sb, "Tech stack: %s\n", strings.Join(stack, ", "))
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
