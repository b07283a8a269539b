package inventory

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrRunNotFound is returned when a run ID is unknown to the store.
var ErrRunNotFound = errors.New("inventory run not found")

// ResultStore persists inventory reports.
type ResultStore interface {
	SaveRun(ctx context.Context, report *Report) error
	GetRun(ctx context.Context, runID string) (*Report, error)

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// InMemoryStore is an in-memory implementation of ResultStore.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Report
}

// NewInMemoryStore creates a new in-memory result store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]*Report)}
}

// SaveRun stores a copy of report, replacing any run with the same ID.
func (s *InMemoryStore) SaveRun(_ context.Context, report *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *report
	cp.Failures = append([]Failure(nil), report.Failures...)
	s.runs[report.RunID] = &cp
	return nil
}

// GetRun returns a copy of the stored report.
func (s *InMemoryStore) GetRun(_ context.Context, runID string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *report
	return &cp, nil
}

// ListRuns returns up to limit run summaries, newest first.
func (s *InMemoryStore) ListRuns(_ context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]RunSummary, 0, len(s.runs))
	for _, report := range s.runs {
		summaries = append(summaries, report.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

var _ ResultStore = (*InMemoryStore)(nil)
