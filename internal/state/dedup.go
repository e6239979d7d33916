package state

import (
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator is a URL set: a Bloom filter answers most negative lookups and
// an exact map settles the rest.
type Deduplicator struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	fpRate float64
}

// NewDeduplicator creates a new deduplicator.
func NewDeduplicator(estimatedItems int) *Deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	fpRate := 0.001

	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(estimatedItems), fpRate),
		exact:  make(map[string]struct{}),
		fpRate: fpRate,
	}
}

// Add adds a URL to the set.
func (d *Deduplicator) Add(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(url)
}

func (d *Deduplicator) addLocked(url string) bool {
	if d.filter.TestString(url) {
		if _, exists := d.exact[url]; exists {
			return false
		}
	}
	d.filter.AddString(url)
	d.exact[url] = struct{}{}
	return true
}

// MarkNew adds url and reports whether it was absent before.
func (d *Deduplicator) MarkNew(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(url)
}

// HasSeen checks if a URL is in the set.
func (d *Deduplicator) HasSeen(url string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.filter.TestString(url) {
		return false
	}

	_, exists := d.exact[url]
	return exists
}

// Count returns the number of unique URLs seen.
func (d *Deduplicator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.exact)
}

// Reset empties the set.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filter.ClearAll()
	d.exact = make(map[string]struct{})
}

// GetAll returns all URLs in sorted order.
func (d *Deduplicator) GetAll() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	urls := make([]string, 0, len(d.exact))
	for url := range d.exact {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// FalsePositiveRate returns the configured Bloom filter false positive rate.
func (d *Deduplicator) FalsePositiveRate() float64 {
	return d.fpRate
}
