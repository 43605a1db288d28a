package memory

import (
	"context"
	"sync"

	"conncheck/internal/domain"
	"conncheck/internal/repo"
)

const defaultCapacity = 100

// Store keeps the most recent runs in memory. It is the default history
// backend for serve mode; nothing survives a restart.
type Store struct {
	mu      sync.RWMutex
	limit   int
	reports []*domain.Report
}

func New() *Store {
	return NewWithCapacity(defaultCapacity)
}

func NewWithCapacity(n int) *Store {
	if n < 1 {
		n = 1
	}
	return &Store{limit: n, reports: make([]*domain.Report, 0, n)}
}

func (m *Store) Append(ctx context.Context, rep *domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reports) == m.limit {
		// drop the oldest, reusing the backing array
		copy(m.reports, m.reports[1:])
		m.reports = m.reports[:m.limit-1]
	}
	m.reports = append(m.reports, rep)
	return nil
}

func (m *Store) Latest(ctx context.Context) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.reports) == 0 {
		return nil, nil
	}
	return m.reports[len(m.reports)-1], nil
}

func (m *Store) List(ctx context.Context) ([]repo.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]repo.RunSummary, 0, len(m.reports))
	for _, rep := range m.reports {
		out = append(out, repo.Summarize(rep))
	}
	return out, nil
}

var _ repo.RunStore = (*Store)(nil)
