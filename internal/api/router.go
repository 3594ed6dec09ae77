// Package api exposes the CV store and match analyzer over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kalambet/cvmatch/internal/cv"
	"github.com/kalambet/cvmatch/internal/extract"
	"github.com/kalambet/cvmatch/internal/logger"
	"github.com/kalambet/cvmatch/internal/matcher"
	"github.com/kalambet/cvmatch/internal/storage"
)

const (
	serviceName        = "cvmatch"
	maxRequestBodySize = 1 << 20 // 1MB
)

// History is the analysis log. It is optional; a nil History disables the
// history endpoints.
type History interface {
	SaveAnalysis(a storage.Analysis) error
	GetAnalysis(id string) (storage.Analysis, error)
	ListAnalyses(limit, offset int) ([]storage.Analysis, error)
	DeleteAnalysis(id string) error
	Ping(ctx context.Context) error
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	CVs      *cv.Store
	Analyzer *matcher.Analyzer
	History  History
	Limits   extract.Limits
	Prefix   string   // mount point for the API routes, e.g. "/api"
	Origins  []string // allowed CORS origins
	Version  string
	Logger   *zap.Logger
}

// NewHandler returns the root http.Handler: the service info route at "/"
// and every API route under deps.Prefix.
func NewHandler(deps Deps) http.Handler {
	deps.Logger = logger.OrNop(deps.Logger)
	if deps.Limits.MaxBytes <= 0 {
		deps.Limits = extract.DefaultLimits()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(recoverer(deps.Logger))
	if len(deps.Origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.Origins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	api := chi.NewRouter()
	api.Get("/health", handleHealth(deps))

	api.Post("/store-cv", handleStoreCV(deps))
	api.Get("/get-cv/{id}", handleGetCV(deps))
	api.Get("/get-current-cv", handleGetCurrentCV(deps))
	api.Get("/has-cv", handleHasCV(deps))
	api.Delete("/delete-cv/{id}", handleDeleteCV(deps))
	api.Post("/clear-all-cvs", handleClearAllCVs(deps))
	api.Get("/list-cvs", handleListCVs(deps))
	api.Get("/cv-summary", handleCVSummary(deps))
	api.Get("/cv-summary/{id}", handleCVSummary(deps))

	api.Post("/analyze-job", handleAnalyzeJob(deps))
	api.Post("/match-job-pdf", handleMatchJobFile(deps))

	api.Get("/analyses", handleListAnalyses(deps))
	api.Get("/analyses/{id}", handleGetAnalysis(deps))
	api.Delete("/analyses/{id}", handleDeleteAnalysis(deps))

	prefix := strings.TrimSuffix(deps.Prefix, "/")
	if prefix == "" {
		api.Get("/", handleRoot(deps, prefix))
		r.Mount("/", api)
	} else {
		r.Get("/", handleRoot(deps, prefix))
		r.Mount(prefix, api)
	}

	return r
}

func handleRoot(deps Deps, prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service":      serviceName,
			"version":      deps.Version,
			"health_check": prefix + "/health",
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analyzer := "unavailable"
		if deps.Analyzer.IsAvailable() {
			analyzer = "available"
		}

		database := "disabled"
		if deps.History != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.History.Ping(ctx); err != nil {
				deps.Logger.Warn("history database ping failed", zap.Error(err))
				database = "disconnected"
			} else {
				database = "connected"
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "healthy",
			"service":  serviceName,
			"version":  deps.Version,
			"analyzer": analyzer,
			"database": database,
			"cv_store": map[string]any{
				"has_cv": deps.CVs.HasCurrent(),
				"count":  deps.CVs.Count(),
			},
		})
	}
}

// requestLogger logs one line per request at debug level, or info for
// server errors.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if ww.Status() >= http.StatusInternalServerError {
				log.Info("http request", fields...)
				return
			}
			log.Debug("http request", fields...)
		})
	}
}

// recoverer turns a handler panic into a generic 500 and logs the detail.
func recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("panic serving request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				httpError(w, http.StatusInternalServerError, "api_error", "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
