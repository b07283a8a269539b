package trafficcycle

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []CountRecord
}

// NewInMemoryRepository creates a repository holding records.
func NewInMemoryRepository(records []CountRecord) *InMemoryRepository {
	return &InMemoryRepository{records: records}
}

// LoadCountRecords returns a copy of the stored records.
func (r *InMemoryRepository) LoadCountRecords(_ context.Context) ([]CountRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]CountRecord(nil), r.records...), nil
}

var _ Repository = (*InMemoryRepository)(nil)
