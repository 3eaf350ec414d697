// Package store provides cra.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mickeymick25/foresy-sub002/cra"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements cra.TxStore with copy-on-write transactions. WithTx
// holds the write lock for the whole transaction, which also serializes
// concurrent lock() calls on the same report the way row-level locking
// does in a real database.
type Memory struct {
	mu      sync.RWMutex
	reports map[string]cra.ActivityReport
	entries map[string]cra.ActivityEntry
	links   map[string]cra.AssignmentLink
}

func NewMemory() *Memory {
	return &Memory{
		reports: make(map[string]cra.ActivityReport),
		entries: make(map[string]cra.ActivityEntry),
		links:   make(map[string]cra.AssignmentLink),
	}
}

// =============================================================================
// REPORTS
// =============================================================================

func (m *Memory) CreateReport(ctx context.Context, r *cra.ActivityReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createReportLocked(r)
}

func (m *Memory) createReportLocked(r *cra.ActivityReport) error {
	if _, ok := m.reports[r.ID]; ok {
		return fmt.Errorf("report %s already exists: %w", r.ID, cra.ErrInvalidInput)
	}
	for _, existing := range m.reports {
		if existing.CreatedBy == r.CreatedBy && existing.Period == r.Period && existing.DeletedAt == nil {
			return fmt.Errorf("creator %s period %s: %w", r.CreatedBy, r.Period, cra.ErrDuplicatePeriod)
		}
	}
	m.reports[r.ID] = *r
	return nil
}

func (m *Memory) GetReport(ctx context.Context, id string) (*cra.ActivityReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReportLocked(id)
}

func (m *Memory) getReportLocked(id string) (*cra.ActivityReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	copied := r
	return &copied, nil
}

func (m *Memory) UpdateReport(ctx context.Context, r *cra.ActivityReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateReportLocked(r)
}

func (m *Memory) updateReportLocked(r *cra.ActivityReport) error {
	if _, ok := m.reports[r.ID]; !ok {
		return fmt.Errorf("report %s: %w", r.ID, cra.ErrReportNotFound)
	}
	m.reports[r.ID] = *r
	return nil
}

func (m *Memory) ListReports(ctx context.Context, createdBy string) ([]cra.ActivityReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReportsLocked(createdBy)
}

func (m *Memory) listReportsLocked(createdBy string) ([]cra.ActivityReport, error) {
	var out []cra.ActivityReport
	for _, r := range m.reports {
		if r.CreatedBy == createdBy {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Year != out[j].Period.Year {
			return out[i].Period.Year < out[j].Period.Year
		}
		if out[i].Period.Month != out[j].Period.Month {
			return out[i].Period.Month < out[j].Period.Month
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Memory) CreateEntry(ctx context.Context, e *cra.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createEntryLocked(e)
}

func (m *Memory) createEntryLocked(e *cra.ActivityEntry) error {
	if _, ok := m.entries[e.ID]; ok {
		return fmt.Errorf("entry %s already exists: %w", e.ID, cra.ErrInvalidInput)
	}
	m.entries[e.ID] = *e
	return nil
}

func (m *Memory) GetEntry(ctx context.Context, id string) (*cra.ActivityEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntryLocked(id)
}

func (m *Memory) getEntryLocked(id string) (*cra.ActivityEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	copied := e
	return &copied, nil
}

func (m *Memory) UpdateEntry(ctx context.Context, e *cra.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateEntryLocked(e)
}

func (m *Memory) updateEntryLocked(e *cra.ActivityEntry) error {
	if _, ok := m.entries[e.ID]; !ok {
		return fmt.Errorf("entry %s: %w", e.ID, cra.ErrEntryNotFound)
	}
	m.entries[e.ID] = *e
	return nil
}

func (m *Memory) ActiveEntries(ctx context.Context, reportID string) ([]cra.ActivityEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeEntriesLocked(reportID)
}

func (m *Memory) activeEntriesLocked(reportID string) ([]cra.ActivityEntry, error) {
	var out []cra.ActivityEntry
	for _, e := range m.entries {
		if e.ReportID == reportID && e.DeletedAt == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// ASSIGNMENT LINKS
// =============================================================================

func (m *Memory) LinkAssignment(ctx context.Context, link *cra.AssignmentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkAssignmentLocked(link)
}

func (m *Memory) linkAssignmentLocked(link *cra.AssignmentLink) error {
	m.links[link.ID] = *link
	return nil
}

func (m *Memory) AssignmentIDs(ctx context.Context, reportID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assignmentIDsLocked(reportID)
}

func (m *Memory) assignmentIDsLocked(reportID string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, link := range m.links {
		entry, ok := m.entries[link.EntryID]
		if !ok || entry.ReportID != reportID || entry.DeletedAt != nil {
			continue
		}
		if !seen[link.AssignmentID] {
			seen[link.AssignmentID] = true
			ids = append(ids, link.AssignmentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// =============================================================================
// TRANSACTIONS - copy-on-write with full restore on error
// =============================================================================

// WithTx executes fn against an unlocked view while holding the write
// lock. On error every map is restored from the pre-transaction snapshot.
func (m *Memory) WithTx(ctx context.Context, fn func(cra.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reports := cloneMap(m.reports)
	entries := cloneMap(m.entries)
	links := cloneMap(m.links)

	if err := fn(&memoryTx{m}); err != nil {
		m.reports = reports
		m.entries = entries
		m.links = links
		return err
	}
	return nil
}

func cloneMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// memoryTx is the transactional view; the parent's lock is already held.
type memoryTx struct {
	m *Memory
}

func (t *memoryTx) CreateReport(_ context.Context, r *cra.ActivityReport) error {
	return t.m.createReportLocked(r)
}

func (t *memoryTx) GetReport(_ context.Context, id string) (*cra.ActivityReport, error) {
	return t.m.getReportLocked(id)
}

func (t *memoryTx) UpdateReport(_ context.Context, r *cra.ActivityReport) error {
	return t.m.updateReportLocked(r)
}

func (t *memoryTx) ListReports(_ context.Context, createdBy string) ([]cra.ActivityReport, error) {
	return t.m.listReportsLocked(createdBy)
}

func (t *memoryTx) CreateEntry(_ context.Context, e *cra.ActivityEntry) error {
	return t.m.createEntryLocked(e)
}

func (t *memoryTx) GetEntry(_ context.Context, id string) (*cra.ActivityEntry, error) {
	return t.m.getEntryLocked(id)
}

func (t *memoryTx) UpdateEntry(_ context.Context, e *cra.ActivityEntry) error {
	return t.m.updateEntryLocked(e)
}

func (t *memoryTx) ActiveEntries(_ context.Context, reportID string) ([]cra.ActivityEntry, error) {
	return t.m.activeEntriesLocked(reportID)
}

func (t *memoryTx) LinkAssignment(_ context.Context, link *cra.AssignmentLink) error {
	return t.m.linkAssignmentLocked(link)
}

func (t *memoryTx) AssignmentIDs(_ context.Context, reportID string) ([]string, error) {
	return t.m.assignmentIDsLocked(reportID)
}
