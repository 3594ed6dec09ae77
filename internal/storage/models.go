package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Analysis is one completed match analysis kept in the history log.
type Analysis struct {
	ID               string             `json:"id"`
	CreatedAt        time.Time          `json:"created_at"`
	JobDescription   string             `json:"job_description"`
	Source           string             `json:"source"` // "text" or the uploaded filename
	CVID             string             `json:"cv_id,omitempty"`
	Model            string             `json:"model,omitempty"`
	MatchScore       float64            `json:"match_score"`
	Strengths        []string           `json:"strengths"`
	Gaps             []string           `json:"gaps"`
	Summary          string             `json:"summary"`
	SkillsMatch      map[string]float64 `json:"skills_match"`
	Recommendations  []string           `json:"recommendations"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`
}
