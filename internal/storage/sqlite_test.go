package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_analyses_created", "idx_analyses_cv_id"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func sampleAnalysis(id string, at time.Time) Analysis {
	return Analysis{
		ID:               id,
		CreatedAt:        at,
		JobDescription:   "Looking for a Go developer",
		Source:           "job.pdf",
		CVID:             "cv-1",
		Model:            "deepseek-chat",
		MatchScore:       72.5,
		Strengths:        []string{"Go"},
		Gaps:             []string{"Kubernetes"},
		Summary:          "Good fit",
		SkillsMatch:      map[string]float64{"Go": 90},
		Recommendations:  []string{"Learn Kubernetes"},
		ProcessingTimeMS: 1234.5,
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 123000000, time.UTC)
	want := sampleAnalysis("a-1", at)

	if err := s.SaveAnalysis(want); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	got, err := s.GetAnalysis("a-1")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if !got.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, at)
	}
	got.CreatedAt = want.CreatedAt
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestSaveAnalysis_EmptyFieldsAndNoCV(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveAnalysis(Analysis{ID: "a-1", CreatedAt: time.Now(), JobDescription: "jd"}); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	got, err := s.GetAnalysis("a-1")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got.CVID != "" {
		t.Errorf("CVID = %q, want empty", got.CVID)
	}
	if got.Source != "text" {
		t.Errorf("Source = %q, want text", got.Source)
	}
	if got.Strengths == nil || got.Gaps == nil || got.Recommendations == nil || got.SkillsMatch == nil {
		t.Errorf("empty collections decoded as nil: %+v", got)
	}
}

func TestGetAnalysis_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetAnalysis("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListAnalyses_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.SaveAnalysis(sampleAnalysis(fmt.Sprintf("a-%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.ListAnalyses(2, 0)
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(page) != 2 || page[0].ID != "a-4" || page[1].ID != "a-3" {
		t.Errorf("first page = %v", ids(page))
	}

	page, err = s.ListAnalyses(10, 3)
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(page) != 2 || page[0].ID != "a-1" || page[1].ID != "a-0" {
		t.Errorf("offset page = %v", ids(page))
	}
}

func TestDeleteAnalysis(t *testing.T) {
	s := openTestStore(t)
	s.SaveAnalysis(sampleAnalysis("a-1", time.Now()))

	if err := s.DeleteAnalysis("a-1"); err != nil {
		t.Fatalf("DeleteAnalysis: %v", err)
	}
	if err := s.DeleteAnalysis("a-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestPruneAnalyses(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.SaveAnalysis(sampleAnalysis("old-1", now.Add(-100*24*time.Hour)))
	s.SaveAnalysis(sampleAnalysis("old-2", now.Add(-91*24*time.Hour)))
	s.SaveAnalysis(sampleAnalysis("new", now.Add(-time.Hour)))

	n, err := s.PruneAnalyses(now.Add(-90 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneAnalyses: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	left, _ := s.ListAnalyses(10, 0)
	if len(left) != 1 || left[0].ID != "new" {
		t.Errorf("remaining = %v", ids(left))
	}
}

func ids(as []Analysis) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}
