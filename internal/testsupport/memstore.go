// Package testsupport provides in-memory fakes shared by package tests.
package testsupport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"cardflow/internal/job"
)

// MemStore is an in-memory store.SnapshotStore for isolated tests.
type MemStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]job.Job
	order []uuid.UUID

	// FailSaves makes every Save return an error when set.
	FailSaves error
}

func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[uuid.UUID]job.Job)}
}

func (m *MemStore) Save(_ context.Context, j job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	if _, seen := m.jobs[j.ID]; !seen {
		m.order = append(m.order, j.ID)
	}
	m.jobs[j.ID] = j
	return nil
}

func (m *MemStore) Load(_ context.Context, id uuid.UUID) (job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return job.Job{}, job.ErrNotFound
	}
	return j, nil
}

func (m *MemStore) LoadAll(_ context.Context) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job.Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id])
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }

// Snapshot returns the stored copy of id for assertions.
func (m *MemStore) Snapshot(id uuid.UUID) (job.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}
