// Package state tracks what a mirror run has saved and journals the outcome.
package state

import (
	"sync"
	"time"
)

// runIDLayout sorts lexically in chronological order.
const runIDLayout = "20060102T150405.000000000Z"

// Manager owns the run-wide saved set and builds the run record.
type Manager struct {
	mu     sync.Mutex
	store  Store
	saved  *Deduplicator
	record *RunRecord
}

// NewManager creates a manager. store may be nil, in which case nothing is
// persisted.
func NewManager(store Store, estimatedURLs int) *Manager {
	return &Manager{
		store:  store,
		saved:  NewDeduplicator(estimatedURLs),
		record: &RunRecord{},
	}
}

// Start begins a new run record.
func (m *Manager) Start(portal, outputDir string, startURLs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.saved.Reset()
	m.record = &RunRecord{
		ID:        now.Format(runIDLayout),
		Portal:    portal,
		OutputDir: outputDir,
		StartedAt: now,
		StartURLs: append([]string(nil), startURLs...),
	}
}

// MarkSaved counts a page save and reports whether url had not been saved
// before in this run. Repeated saves of the same URL are counted but listed
// once.
func (m *Manager) MarkSaved(url, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record.Stats.PagesSaved++
	if !m.saved.MarkNew(url) {
		return false
	}
	m.record.Pages = append(m.record.Pages, PageRecord{URL: url, Path: path})
	m.record.Stats.UniquePages = m.saved.Count()
	return true
}

// HasSaved reports whether url was saved earlier in this run.
func (m *Manager) HasSaved(url string) bool {
	return m.saved.HasSeen(url)
}

// RecordFailure records a page that was skipped.
func (m *Manager) RecordFailure(f FailureRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record.Failures = append(m.record.Failures, f)
	m.record.Stats.PagesFailed++
}

// RecordCrawl records the totals of one directory crawl.
func (m *Manager) RecordCrawl(c CrawlRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record.Crawls = append(m.record.Crawls, c)
}

// RecordAssets sets the asset totals.
func (m *Manager) RecordAssets(downloaded, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record.Stats.AssetsDownloaded = downloaded
	m.record.Stats.AssetsFailed = failed
}

// SetBrokenLinks stores the link validator findings.
func (m *Manager) SetBrokenLinks(links []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record.BrokenLinks = append([]string(nil), links...)
}

// Snapshot returns a copy of the current record.
func (m *Manager) Snapshot() RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := *m.record
	rec.StartURLs = append([]string(nil), m.record.StartURLs...)
	rec.Crawls = append([]CrawlRecord(nil), m.record.Crawls...)
	rec.Pages = append([]PageRecord(nil), m.record.Pages...)
	rec.Failures = append([]FailureRecord(nil), m.record.Failures...)
	rec.BrokenLinks = append([]string(nil), m.record.BrokenLinks...)
	if rec.FinishedAt.IsZero() {
		rec.Stats.Duration = time.Since(rec.StartedAt)
	}
	return rec
}

// Finish closes the record and saves it to the store.
func (m *Manager) Finish() (*RunRecord, error) {
	m.mu.Lock()
	m.record.FinishedAt = time.Now().UTC()
	m.record.Stats.Duration = m.record.FinishedAt.Sub(m.record.StartedAt)
	m.mu.Unlock()

	rec := m.Snapshot()
	if m.store == nil {
		return &rec, nil
	}
	if err := m.store.SaveRun(&rec); err != nil {
		return &rec, err
	}
	return &rec, nil
}
