// Package matcher scores a stored CV against a job description using an
// LLM completion backend.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kalambet/cvmatch/internal/composer"
	"github.com/kalambet/cvmatch/internal/cv"
	"github.com/kalambet/cvmatch/internal/logger"
)

var (
	// ErrUnavailable means no completion backend is configured.
	ErrUnavailable = errors.New("analysis service not available: no API key configured")
	// ErrUpstream wraps transport, status, and timeout failures of the backend.
	ErrUpstream = errors.New("upstream analysis request failed")
	// ErrMalformedResponse means the backend answered with something other
	// than a JSON object.
	ErrMalformedResponse = errors.New("malformed analysis response")
)

const (
	DefaultTimeout = 60 * time.Second
	maxLogLength   = 200
)

// Completer sends a system and user message to an LLM and returns its text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Result is the normalized outcome of a match analysis.
type Result struct {
	MatchScore       float64            `json:"match_score"`
	Strengths        []string           `json:"strengths"`
	Gaps             []string           `json:"gaps"`
	Summary          string             `json:"summary"`
	SkillsMatch      map[string]float64 `json:"skills_match"`
	Recommendations  []string           `json:"recommendations"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`
}

// Analyzer runs match analyses. It holds no per-request state and is safe
// for concurrent use.
type Analyzer struct {
	client  Completer
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyzer creates an Analyzer. A nil client yields an Analyzer that
// reports itself unavailable. timeout <= 0 selects DefaultTimeout.
func NewAnalyzer(client Completer, timeout time.Duration, log *zap.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Analyzer{
		client:  client,
		timeout: timeout,
		logger:  logger.OrNop(log),
		now:     time.Now,
	}
}

// IsAvailable reports whether a completion backend is configured.
func (a *Analyzer) IsAvailable() bool {
	return a != nil && a.client != nil
}

// Model returns the backend model name when the backend exposes one.
func (a *Analyzer) Model() string {
	if a == nil {
		return ""
	}
	if m, ok := a.client.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

// Analyze scores rec against jobDescription. rec may be nil when no CV is
// stored. Exactly one backend call is made; failures are not retried.
func (a *Analyzer) Analyze(ctx context.Context, rec *cv.Record, jobDescription string) (Result, error) {
	if !a.IsAvailable() {
		return Result{}, ErrUnavailable
	}

	prompt := composer.BuildMatchPrompt(rec, jobDescription)

	cvID := ""
	if rec != nil {
		cvID = rec.ID
	}
	a.logger.Debug("match analysis request",
		zap.String("cv_id", cvID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, maxLogLength)),
	)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := a.now()
	raw, err := a.client.Complete(callCtx, composer.SystemPrompt, prompt)
	elapsed := a.now().Sub(start)
	if err != nil {
		a.logger.Warn("match analysis failed", zap.String("cv_id", cvID), zap.Duration("elapsed", elapsed), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	a.logger.Debug("match analysis response",
		zap.String("cv_id", cvID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, maxLogLength)),
	)

	res, err := ParseResponse(raw)
	if err != nil {
		a.logger.Warn("match analysis response unparseable", zap.String("cv_id", cvID), zap.Error(err))
		return Result{}, err
	}
	res.ProcessingTimeMS = float64(elapsed.Microseconds()) / 1000
	return res, nil
}
