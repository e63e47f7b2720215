package anticheat

import (
	"context"
	"sort"
	"sync"

	"github.com/playguard/playguard/internal/pagination"
)

// MemoryStore is the in-memory Store used in development and tests. Reports
// are deep-copied on the way in and out so callers can never mutate stored
// state through a shared slice.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

// NewMemoryStore creates an empty in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]*Report)}
}

func (m *MemoryStore) Record(_ context.Context, report *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = cloneReport(report)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return cloneReport(r), nil
}

func (m *MemoryStore) ListByGame(_ context.Context, gameID string, limit int, after *pagination.Cursor) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Report
	for _, r := range m.reports {
		if r.GameID != gameID {
			continue
		}
		if after != nil && !after.Contains(r.EndTime, r.ID) {
			continue
		}
		out = append(out, cloneReport(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime != out[j].EndTime {
			return out[i].EndTime > out[j].EndTime
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored reports.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}

func cloneReport(r *Report) *Report {
	c := *r
	c.Flags = copyFlags(r.Flags)
	return &c
}
