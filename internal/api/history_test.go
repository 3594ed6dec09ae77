package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kalambet/cvmatch/internal/storage"
)

func seedAnalyses(t *testing.T, h History, n int) []string {
	t.Helper()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, n)
	for i := range n {
		ids[i] = fmt.Sprintf("a-%d", i)
		err := h.SaveAnalysis(storage.Analysis{
			ID:             ids[i],
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			JobDescription: fmt.Sprintf("job %d", i),
			Source:         "text",
			MatchScore:     float64(10 * i),
		})
		if err != nil {
			t.Fatalf("SaveAnalysis: %v", err)
		}
	}
	return ids
}

func TestListAnalyses(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := do(t, h, http.MethodGet, "/api/analyses", "")
	if rr.Body.String() != "[]\n" {
		t.Errorf("empty history body = %q, want []", rr.Body.String())
	}

	ids := seedAnalyses(t, deps.History, 3)

	rr = do(t, h, http.MethodGet, "/api/analyses?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var items []storage.Analysis
	decode(t, rr, &items)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != ids[2] || items[1].ID != ids[1] {
		t.Errorf("order = [%s %s], want newest first", items[0].ID, items[1].ID)
	}

	rr = do(t, h, http.MethodGet, "/api/analyses?limit=2&offset=2", "")
	decode(t, rr, &items)
	if len(items) != 1 || items[0].ID != ids[0] {
		t.Errorf("second page = %+v", items)
	}
}

func TestGetDeleteAnalysis(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)
	ids := seedAnalyses(t, deps.History, 1)

	rr := do(t, h, http.MethodGet, "/api/analyses/"+ids[0], "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var a storage.Analysis
	decode(t, rr, &a)
	if a.JobDescription != "job 0" {
		t.Errorf("job_description = %q", a.JobDescription)
	}

	if rr := do(t, h, http.MethodDelete, "/api/analyses/"+ids[0], ""); rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/analyses/"+ids[0], ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/api/analyses/"+ids[0], ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestAnalyses_HistoryDisabled(t *testing.T) {
	deps := newTestDeps(t, nil)
	deps.History = nil
	h := NewHandler(deps)

	for _, path := range []string{"/api/analyses", "/api/analyses/x"} {
		rr := do(t, h, http.MethodGet, path, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rr.Code)
		}
	}
}
