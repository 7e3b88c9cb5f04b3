// Package jobstore keeps terminal upload reports for status lookups after a
// job has left the service's live job table.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/custupload/internal/core"
)

var _ core.JobStore = (*Memory)(nil)

type memEntry struct {
	report  *core.OutcomeReport
	expires time.Time
}

// Memory is a process-local JobStore. Expired reports are evicted lazily on
// read and by a timer per entry.
type Memory struct {
	mu      sync.Mutex
	reports map[string]memEntry
	now     func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		reports: make(map[string]memEntry),
		now:     time.Now,
	}
}

// Save stores report until ttl elapses. A non-positive ttl keeps it forever.
func (m *Memory) Save(_ context.Context, report *core.OutcomeReport, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memEntry{report: report}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
		id := report.JobID
		time.AfterFunc(ttl, func() { m.evict(id) })
	}
	m.reports[report.JobID] = e
	return nil
}

// Get returns the stored report or core.ErrJobNotFound.
func (m *Memory) Get(_ context.Context, jobID string) (*core.OutcomeReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.reports[jobID]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.reports, jobID)
		return nil, core.ErrJobNotFound
	}
	return e.report, nil
}

func (m *Memory) evict(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.reports[jobID]; ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.reports, jobID)
	}
}

// Len returns the number of stored reports, including expired ones not yet
// evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}
