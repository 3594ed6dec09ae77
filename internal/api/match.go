package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kalambet/cvmatch/internal/cv"
	"github.com/kalambet/cvmatch/internal/extract"
	"github.com/kalambet/cvmatch/internal/matcher"
	"github.com/kalambet/cvmatch/internal/storage"
)

// sourceText marks analyses whose job description was sent as text.
const sourceText = "text"

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 10 << 20

type analyzeJobRequest struct {
	JobDescription string `json:"job_description"`
}

// analysisResponse is a match result plus which CV, if any, it was scored
// against.
type analysisResponse struct {
	matcher.Result
	CVUsed     bool    `json:"cv_used"`
	CVID       *string `json:"cv_id"`
	AnalysisID string  `json:"analysis_id,omitempty"`
}

func handleAnalyzeJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req analyzeJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		jd := strings.TrimSpace(req.JobDescription)
		if jd == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "job_description is required and must not be empty")
			return
		}

		resp, err := runAnalysis(r.Context(), deps, jd, sourceText)
		if err != nil {
			analysisError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleMatchJobFile accepts a multipart form with an uploaded job
// description "file", a "job_description" text field, or both. The file wins
// when both are present. A URL-encoded form can carry the text field only.
func handleMatchJobFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.Limits.MaxBytes+maxRequestBodySize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "file too large: maximum size is %d MB", deps.Limits.MaxBytes>>20)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid form data: %v", err)
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		var jd, source string
		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			text, ok := extractUpload(w, deps, file, header.Filename, header.Size)
			if !ok {
				return
			}
			jd, source = text, header.Filename
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			jd, source = strings.TrimSpace(r.FormValue("job_description")), sourceText
			if jd == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "either a job description file or job_description text must be provided")
				return
			}
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading uploaded file: %v", err)
			return
		}

		resp, err := runAnalysis(r.Context(), deps, jd, source)
		if err != nil {
			analysisError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// extractUpload validates and extracts an uploaded file. It writes the error
// response itself and reports false on failure.
func extractUpload(w http.ResponseWriter, deps Deps, file io.Reader, filename string, size int64) (string, bool) {
	if err := extract.Validate(filename, size, deps.Limits); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return "", false
	}
	data, err := extract.ReadLimited(file, deps.Limits.MaxBytes)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return "", false
	}
	text, err := extract.Text(filename, data)
	if err != nil {
		deps.Logger.Warn("text extraction failed", zap.String("filename", filename), zap.Error(err))
		httpError(w, http.StatusBadRequest, "invalid_request_error", "could not read %s: %v", filename, err)
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "no text could be extracted from %s; the file may be scanned or image-based", filename)
		return "", false
	}
	deps.Logger.Info("job description extracted",
		zap.String("filename", filename),
		zap.Int64("size", size),
		zap.Int("text_length", utf8.RuneCountInString(text)),
	)
	return text, true
}

// runAnalysis scores jd against a snapshot of the current CV and records the
// result in the history log when one is configured. cv_used and cv_id
// describe the CV as it was when the request started, even if it is deleted
// while the upstream call is in flight.
func runAnalysis(ctx context.Context, deps Deps, jd, source string) (analysisResponse, error) {
	if !deps.Analyzer.IsAvailable() {
		return analysisResponse{}, matcher.ErrUnavailable
	}

	var recPtr *cv.Record
	if rec, ok := deps.CVs.Current(); ok {
		recPtr = &rec
	}

	deps.Logger.Info("analyzing job match",
		zap.String("source", source),
		zap.Int("text_length", utf8.RuneCountInString(jd)),
		zap.Bool("cv_used", recPtr != nil),
	)

	res, err := deps.Analyzer.Analyze(ctx, recPtr, jd)
	if err != nil {
		return analysisResponse{}, err
	}

	resp := analysisResponse{Result: res}
	if recPtr != nil {
		id := recPtr.ID
		resp.CVUsed = true
		resp.CVID = &id
	}
	resp.AnalysisID = recordAnalysis(deps, resp, jd, source)
	return resp, nil
}

// recordAnalysis saves a completed analysis and returns its id. Failures are
// logged and yield an empty id.
func recordAnalysis(deps Deps, resp analysisResponse, jd, source string) string {
	if deps.History == nil {
		return ""
	}
	a := storage.Analysis{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now().UTC(),
		JobDescription:   jd,
		Source:           source,
		Model:            deps.Analyzer.Model(),
		MatchScore:       resp.MatchScore,
		Strengths:        resp.Strengths,
		Gaps:             resp.Gaps,
		Summary:          resp.Summary,
		SkillsMatch:      resp.SkillsMatch,
		Recommendations:  resp.Recommendations,
		ProcessingTimeMS: resp.ProcessingTimeMS,
	}
	if resp.CVID != nil {
		a.CVID = *resp.CVID
	}
	if err := deps.History.SaveAnalysis(a); err != nil {
		deps.Logger.Warn("saving analysis history failed", zap.Error(err))
		return ""
	}
	return a.ID
}

func analysisError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, matcher.ErrUnavailable):
		httpError(w, http.StatusServiceUnavailable, "service_unavailable", "%v", err)
	case errors.Is(err, matcher.ErrUpstream), errors.Is(err, matcher.ErrMalformedResponse):
		httpError(w, http.StatusBadGateway, "upstream_error", "failed to analyze job description: %v", err)
	default:
		log.Error("job analysis failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "api_error", "internal server error")
	}
}
