package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/cvmatch/internal/cv"
	"github.com/kalambet/cvmatch/internal/extract"
	"github.com/kalambet/cvmatch/internal/matcher"
	"github.com/kalambet/cvmatch/internal/storage"
)

const goodResponse = `{"match_score": 72, "strengths": ["Python"], "gaps": ["Kubernetes"], "summary": "Solid fit.", "skills_match": {"Python": 90}, "recommendations": ["Learn Kubernetes"]}`

// stubCompleter is a matcher.Completer returning a canned reply.
type stubCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	onCall   func()
}

func (s *stubCompleter) Complete(_ context.Context, _, user string) (string, error) {
	if s.onCall != nil {
		s.onCall()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, user)
	return s.response, s.err
}

func (s *stubCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *stubCompleter) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

// newTestDeps wires a fresh CV store, an analyzer backed by comp (nil means
// unavailable), and an in-memory history database.
func newTestDeps(t *testing.T, comp *stubCompleter) Deps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var client matcher.Completer
	if comp != nil {
		client = comp
	}
	return Deps{
		CVs:      cv.NewStore(),
		Analyzer: matcher.NewAnalyzer(client, 0, nil),
		History:  store,
		Limits:   extract.DefaultLimits(),
		Prefix:   "/api",
		Version:  "test",
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decode(t, rr, &body)
	return body.Error.Type
}
