package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func TestHealth(t *testing.T) {
	deps := newTestDeps(t, &stubCompleter{response: goodResponse})
	h := NewHandler(deps)
	deps.CVs.Save(cvInput("Sample CV text"))

	rr := do(t, h, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body struct {
		Status   string `json:"status"`
		Service  string `json:"service"`
		Version  string `json:"version"`
		Analyzer string `json:"analyzer"`
		Database string `json:"database"`
		CVStore  struct {
			HasCV bool `json:"has_cv"`
			Count int  `json:"count"`
		} `json:"cv_store"`
	}
	decode(t, rr, &body)
	if body.Status != "healthy" || body.Service != "cvmatch" || body.Version != "test" {
		t.Errorf("body = %+v", body)
	}
	if body.Analyzer != "available" {
		t.Errorf("analyzer = %q, want available", body.Analyzer)
	}
	if body.Database != "connected" {
		t.Errorf("database = %q, want connected", body.Database)
	}
	if !body.CVStore.HasCV || body.CVStore.Count != 1 {
		t.Errorf("cv_store = %+v, want has_cv with count 1", body.CVStore)
	}
}

func TestHealth_NoKeyNoHistory(t *testing.T) {
	deps := newTestDeps(t, nil)
	deps.History = nil
	h := NewHandler(deps)

	rr := do(t, h, http.MethodGet, "/api/health", "")
	var body map[string]any
	decode(t, rr, &body)
	if body["analyzer"] != "unavailable" {
		t.Errorf("analyzer = %v, want unavailable", body["analyzer"])
	}
	if body["database"] != "disabled" {
		t.Errorf("database = %v, want disabled", body["database"])
	}
}

func TestRoot(t *testing.T) {
	h := NewHandler(newTestDeps(t, nil))

	rr := do(t, h, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	decode(t, rr, &body)
	if body["health_check"] != "/api/health" {
		t.Errorf("health_check = %q, want /api/health", body["health_check"])
	}
}

func TestEmptyPrefix(t *testing.T) {
	deps := newTestDeps(t, nil)
	deps.Prefix = ""
	h := NewHandler(deps)

	if rr := do(t, h, http.MethodGet, "/has-cv", ""); rr.Code != http.StatusOK {
		t.Errorf("GET /has-cv status = %d, want 200", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/", ""); rr.Code != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	deps := newTestDeps(t, nil)
	deps.Origins = []string{"http://localhost:5173"}
	h := NewHandler(deps)

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze-job", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRecoverer(t *testing.T) {
	h := recoverer(nopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if got := errorType(t, rr); got != "api_error" {
		t.Errorf("error type = %q, want api_error", got)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=-1", 20},
		{"limit=abc", 20},
		{"limit=500", 100},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := parseIntParam(req, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
