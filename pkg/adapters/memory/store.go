// Package memory provides an in-memory report store, suitable for tests and
// single-process embedding.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pergolab/pergola/pkg/domain"
)

// ReportStore keeps run reports in a map guarded by a mutex.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]*domain.Report
}

// NewReportStore creates an empty store.
func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[string]*domain.Report)}
}

// Save stores a report keyed by its run id, overwriting any previous entry.
func (s *ReportStore) Save(_ context.Context, report *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *report
	s.reports[report.RunID] = &cp
	return nil
}

// Load returns the report for runID or domain.ErrReportNotFound.
func (s *ReportStore) Load(_ context.Context, runID string) (*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[runID]
	if !ok {
		return nil, domain.ErrReportNotFound
	}
	cp := *report
	return &cp, nil
}

// List returns run ids ordered by start time, oldest first.
func (s *ReportStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.reports))
	for id := range s.reports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := s.reports[ids[i]], s.reports[ids[j]]
		if ri.StartedAt.Equal(rj.StartedAt) {
			return ids[i] < ids[j]
		}
		return ri.StartedAt.Before(rj.StartedAt)
	})
	return ids, nil
}

// Delete removes a report. Deleting an unknown id is a no-op.
func (s *ReportStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, runID)
	return nil
}
