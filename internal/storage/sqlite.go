package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store wraps a SQLite database holding the analysis history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "cvmatch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection avoids "database is locked" errors and keeps an
	// in-memory database alive across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate applies embedded SQL migrations that have not been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Analyses ---

const analysisColumns = `id, created_at, job_description, source, cv_id, model, match_score,
	strengths, gaps, summary, skills_match, recommendations, processing_time_ms`

func (s *Store) SaveAnalysis(a Analysis) error {
	strengths, err := marshalList(a.Strengths)
	if err != nil {
		return fmt.Errorf("encoding strengths: %w", err)
	}
	gaps, err := marshalList(a.Gaps)
	if err != nil {
		return fmt.Errorf("encoding gaps: %w", err)
	}
	recs, err := marshalList(a.Recommendations)
	if err != nil {
		return fmt.Errorf("encoding recommendations: %w", err)
	}
	skills := "{}"
	if len(a.SkillsMatch) > 0 {
		b, err := json.Marshal(a.SkillsMatch)
		if err != nil {
			return fmt.Errorf("encoding skills_match: %w", err)
		}
		skills = string(b)
	}

	source := a.Source
	if source == "" {
		source = "text"
	}
	var cvID sql.NullString
	if a.CVID != "" {
		cvID = sql.NullString{String: a.CVID, Valid: true}
	}

	_, err = s.db.Exec(`INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt.UTC().Format(timeLayout), a.JobDescription, source, cvID, a.Model, a.MatchScore,
		strengths, gaps, a.Summary, skills, recs, a.ProcessingTimeMS,
	)
	return err
}

func (s *Store) GetAnalysis(id string) (Analysis, error) {
	row := s.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// ListAnalyses returns analyses newest first.
func (s *Store) ListAnalyses(limit, offset int) ([]Analysis, error) {
	rows, err := s.db.Query(`SELECT `+analysisColumns+` FROM analyses
		ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

func (s *Store) DeleteAnalysis(id string) error {
	res, err := s.db.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneAnalyses deletes analyses created before the given time and returns
// how many were removed.
func (s *Store) PruneAnalyses(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM analyses WHERE created_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var (
		a                             Analysis
		createdAt                     string
		cvID                          sql.NullString
		strengths, gaps, skills, recs string
	)
	if err := row.Scan(&a.ID, &createdAt, &a.JobDescription, &a.Source, &cvID, &a.Model, &a.MatchScore,
		&strengths, &gaps, &a.Summary, &skills, &recs, &a.ProcessingTimeMS); err != nil {
		return Analysis{}, err
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Analysis{}, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = t
	a.CVID = cvID.String

	if err := json.Unmarshal([]byte(strengths), &a.Strengths); err != nil {
		return Analysis{}, fmt.Errorf("decoding strengths: %w", err)
	}
	if err := json.Unmarshal([]byte(gaps), &a.Gaps); err != nil {
		return Analysis{}, fmt.Errorf("decoding gaps: %w", err)
	}
	if err := json.Unmarshal([]byte(recs), &a.Recommendations); err != nil {
		return Analysis{}, fmt.Errorf("decoding recommendations: %w", err)
	}
	if err := json.Unmarshal([]byte(skills), &a.SkillsMatch); err != nil {
		return Analysis{}, fmt.Errorf("decoding skills_match: %w", err)
	}
	return a, nil
}

func marshalList(items []string) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
