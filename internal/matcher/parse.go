package matcher

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultSummary is used when the model did not return a usable summary.
const DefaultSummary = "No analysis available."

const fence = "```"

// ExtractJSON returns the content of the first fenced code block in raw
// (```json or bare ```), or raw itself when there is none.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, fence+"json")
	skip := len(fence + "json")
	if start == -1 {
		start = strings.Index(raw, fence)
		skip = len(fence)
	}
	if start == -1 {
		return raw
	}

	inner := raw[start+skip:]
	if end := strings.Index(inner, fence); end != -1 {
		inner = inner[:end]
	}
	return strings.TrimSpace(inner)
}

// ParseResponse decodes the model output into a normalized Result. Output
// that is not a JSON object fails with ErrMalformedResponse.
func ParseResponse(raw string) (Result, error) {
	cleaned := ExtractJSON(raw)

	var doc map[string]any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc == nil {
		return Result{}, fmt.Errorf("%w: response is not a JSON object", ErrMalformedResponse)
	}
	return Normalize(doc), nil
}

// Normalize maps a decoded response object onto Result, filling defaults and
// repairing wrong types. It never fails.
func Normalize(doc map[string]any) Result {
	res := Result{
		Strengths:       coerceStrings(doc["strengths"]),
		Gaps:            coerceStrings(doc["gaps"]),
		Recommendations: coerceStrings(doc["recommendations"]),
		SkillsMatch:     coerceScores(doc["skills_match"]),
		Summary:         DefaultSummary,
	}

	if score, ok := coerceFloat(doc["match_score"]); ok {
		res.MatchScore = clampScore(score)
	}
	if s, ok := doc["summary"].(string); ok {
		res.Summary = s
	}
	return res
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func coerceFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case bool:
		if val {
			f = 1
		}
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	out := make([]string, 0, len(items))
	if !ok {
		return out
	}
	for _, item := range items {
		switch val := item.(type) {
		case nil:
			continue
		case string:
			out = append(out, val)
		case map[string]any, []any:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out = append(out, string(b))
		default:
			out = append(out, fmt.Sprint(val))
		}
	}
	return out
}

func coerceScores(v any) map[string]float64 {
	out := make(map[string]float64)
	obj, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for skill, raw := range obj {
		if f, ok := coerceFloat(raw); ok {
			out[skill] = f
		}
	}
	return out
}
