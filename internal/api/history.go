package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalambet/cvmatch/internal/storage"
)

func historyDisabled(w http.ResponseWriter) {
	httpError(w, http.StatusNotFound, "not_found", "analysis history is disabled")
}

func handleListAnalyses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			historyDisabled(w)
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		items, err := deps.History.ListAnalyses(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list analyses: %v", err)
			return
		}
		if items == nil {
			items = []storage.Analysis{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleGetAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			historyDisabled(w)
			return
		}
		id := chi.URLParam(r, "id")
		a, err := deps.History.GetAnalysis(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis %q not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get analysis: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleDeleteAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			historyDisabled(w)
			return
		}
		id := chi.URLParam(r, "id")
		err := deps.History.DeleteAnalysis(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis %q not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete analysis: %v", err)
			return
		}
		deps.Logger.Info("analysis deleted", zap.String("analysis_id", id))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "analysis '" + id + "' deleted"})
	}
}
