package cv

import (
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type entry struct {
	rec Record
	seq uint64
}

// Store keeps CV records in memory for the lifetime of the process and
// tracks which one is current. The most recently saved record becomes
// current; deleting it, or clearing the store, leaves no current record.
type Store struct {
	clock Clock
	newID func() string

	mu        sync.RWMutex
	records   map[string]*entry
	currentID string
	seq       uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return NewStoreWithClock(realClock{}, nil)
}

// NewStoreWithClock creates a Store with a custom clock and id generator
// (for testing). A nil newID uses random UUIDs.
func NewStoreWithClock(clock Clock, newID func() string) *Store {
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Store{
		clock:   clock,
		newID:   newID,
		records: make(map[string]*entry),
	}
}

// Save stores a new record built from in and makes it current.
func (s *Store) Save(in Input) Receipt {
	rec := Record{
		ID:       s.newID(),
		StoredAt: s.clock.Now().UTC(),
		Input:    copyInput(in),
	}
	sum := summarize(&rec)

	s.mu.Lock()
	s.seq++
	s.records[rec.ID] = &entry{rec: rec, seq: s.seq}
	s.currentID = rec.ID
	s.mu.Unlock()

	return Receipt{ID: rec.ID, StoredAt: rec.StoredAt, Summary: sum}
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return copyRecord(e.rec), true
}

// Current returns a copy of the current record.
func (s *Store) Current() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return Record{}, false
	}
	e, ok := s.records[s.currentID]
	if !ok {
		return Record{}, false
	}
	return copyRecord(e.rec), true
}

// HasCurrent reports whether a current record exists.
func (s *Store) HasCurrent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return false
	}
	_, ok := s.records[s.currentID]
	return ok
}

// Delete removes the record with the given id. If it was current, no record
// is current afterwards; it is not replaced by an older one.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	if s.currentID == id {
		s.currentID = ""
	}
	return true
}

// ClearAll removes every record and returns how many were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = make(map[string]*entry)
	s.currentID = ""
	return n
}

// List returns copies of all records, oldest first.
func (s *Store) List() []Record {
	s.mu.RLock()
	entries := slices.Collect(maps.Values(s.records))
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, copyRecord(e.rec))
	}
	return out
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Summary returns the summary of the record with the given id, or of the
// current record when id is empty.
func (s *Store) Summary(id string) (Summary, bool) {
	var (
		rec Record
		ok  bool
	)
	if id == "" {
		rec, ok = s.Current()
	} else {
		rec, ok = s.Get(id)
	}
	if !ok {
		return Summary{}, false
	}
	return summarize(&rec), true
}

func summarize(r *Record) Summary {
	return Summary{
		ID:               r.ID,
		StoredAt:         r.StoredAt,
		TextLength:       utf8.RuneCountInString(r.RawText),
		SkillsCount:      len(r.Skills),
		ExperiencesCount: len(r.Experiences),
		EducationCount:   len(r.Education),
		LanguagesCount:   len(r.Languages),
		TechStackCount:   len(r.TechStack),
		HasContactInfo:   !r.ContactInfo.empty(),
		HasAnalysis:      len(r.AnalysisResult) > 0,
	}
}
