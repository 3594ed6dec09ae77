package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalambet/cvmatch/internal/cv"
)

type storeCVResponse struct {
	CVID        string     `json:"cv_id"`
	StoredAt    time.Time  `json:"stored_at"`
	Message     string     `json:"message"`
	HasAnalysis bool       `json:"has_analysis"`
	Summary     cv.Summary `json:"summary"`
}

func handleStoreCV(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var in cv.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(in.RawText) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "raw_text is required")
			return
		}

		rc := deps.CVs.Save(in)
		deps.Logger.Info("cv stored",
			zap.String("cv_id", rc.ID),
			zap.Int("text_length", rc.Summary.TextLength),
			zap.Int("skills", rc.Summary.SkillsCount),
		)

		writeJSON(w, http.StatusOK, storeCVResponse{
			CVID:        rc.ID,
			StoredAt:    rc.StoredAt,
			Message:     "CV stored successfully",
			HasAnalysis: rc.Summary.HasAnalysis,
			Summary:     rc.Summary,
		})
	}
}

func handleGetCV(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, ok := deps.CVs.Get(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "CV with ID %q not found", id)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleGetCurrentCV(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := deps.CVs.Current()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no CV data stored yet")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleHasCV(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"has_cv": deps.CVs.HasCurrent()})
	}
}

func handleDeleteCV(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !deps.CVs.Delete(id) {
			httpError(w, http.StatusNotFound, "not_found", "CV with ID %q not found", id)
			return
		}
		deps.Logger.Info("cv deleted", zap.String("cv_id", id))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "CV '" + id + "' deleted successfully",
		})
	}
}

func handleClearAllCVs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := deps.CVs.ClearAll()
		deps.Logger.Info("cv store cleared", zap.Int("count", n))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Cleared all CVs (" + strconv.Itoa(n) + " items)",
			"count":   n,
		})
	}
}

func handleListCVs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs := deps.CVs.List()
		if recs == nil {
			recs = []cv.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// handleCVSummary serves both /cv-summary (current CV) and /cv-summary/{id}.
func handleCVSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sum, ok := deps.CVs.Summary(id)
		if !ok {
			if id == "" {
				httpError(w, http.StatusNotFound, "not_found", "no CV data stored yet")
				return
			}
			httpError(w, http.StatusNotFound, "not_found", "CV with ID %q not found", id)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
