// Package metrics collects counters for a mirror run.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// bucketBounds are the upper bounds, in milliseconds, of the response time
// histogram. The last bucket holds everything slower.
var bucketBounds = [...]int64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Collector collects and aggregates metrics.
type Collector struct {
	// Requests
	requestsTotal atomic.Int64
	errorsTotal   atomic.Int64
	retriesTotal  atomic.Int64
	bytesTotal    atomic.Int64

	// Pages
	pagesDiscovered atomic.Int64
	pagesSaved      atomic.Int64
	pagesFailed     atomic.Int64
	linksRewritten  atomic.Int64

	// Assets
	assetsDownloaded atomic.Int64
	assetsReused     atomic.Int64
	assetsFailed     atomic.Int64

	queueDepth atomic.Int64

	responseTimesSum    atomic.Int64
	responseTimesNum    atomic.Int64
	responseTimeBuckets [len(bucketBounds) + 1]atomic.Int64

	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordRequest records one HTTP attempt.
func (c *Collector) RecordRequest() {
	c.requestsTotal.Add(1)
}

// RecordError records a failure by error type.
func (c *Collector) RecordError(errorType string) {
	c.errorsTotal.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// RecordResponseTime records a response time.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)
	c.responseTimeBuckets[bucket(ms)].Add(1)
}

func bucket(ms int64) int {
	for i, bound := range bucketBounds {
		if ms < bound {
			return i
		}
	}
	return len(bucketBounds)
}

// RecordStatusCode records an HTTP status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.Lock()
	if c.statusCodes[code] == nil {
		c.statusCodes[code] = &atomic.Int64{}
	}
	c.statusCodes[code].Add(1)
	c.statusMu.Unlock()
}

// RecordRetry records a retried attempt.
func (c *Collector) RecordRetry() {
	c.retriesTotal.Add(1)
}

// RecordBytes records transferred bytes.
func (c *Collector) RecordBytes(n int64) {
	c.bytesTotal.Add(n)
}

// RecordPageDiscovered increments pages enqueued for crawling.
func (c *Collector) RecordPageDiscovered() {
	c.pagesDiscovered.Add(1)
}

// RecordPageSaved increments saved pages.
func (c *Collector) RecordPageSaved() {
	c.pagesSaved.Add(1)
}

// RecordPageFailed increments pages skipped after a failure.
func (c *Collector) RecordPageFailed() {
	c.pagesFailed.Add(1)
}

// RecordLinksRewritten adds to the count of localized hyperlinks.
func (c *Collector) RecordLinksRewritten(n int) {
	c.linksRewritten.Add(int64(n))
}

// RecordAssetDownloaded increments downloaded assets.
func (c *Collector) RecordAssetDownloaded() {
	c.assetsDownloaded.Add(1)
}

// RecordAssetReused increments asset references served from an earlier download.
func (c *Collector) RecordAssetReused() {
	c.assetsReused.Add(1)
}

// RecordAssetFailed increments assets that could not be downloaded.
func (c *Collector) RecordAssetFailed() {
	c.assetsFailed.Add(1)
}

// SetQueueDepth sets the current queue depth.
func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

// GetAverageResponseTime returns the average response time.
func (c *Collector) GetAverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(c.startTime),
		RequestsTotal:       c.requestsTotal.Load(),
		ErrorsTotal:         c.errorsTotal.Load(),
		RetriesTotal:        c.retriesTotal.Load(),
		BytesTotal:          c.bytesTotal.Load(),
		PagesDiscovered:     c.pagesDiscovered.Load(),
		PagesSaved:          c.pagesSaved.Load(),
		PagesFailed:         c.pagesFailed.Load(),
		LinksRewritten:      c.linksRewritten.Load(),
		AssetsDownloaded:    c.assetsDownloaded.Load(),
		AssetsReused:        c.assetsReused.Load(),
		AssetsFailed:        c.assetsFailed.Load(),
		QueueDepth:          c.queueDepth.Load(),
		AverageResponseTime: c.GetAverageResponseTime(),
		ErrorCounts:         make(map[string]int64),
		StatusCodes:         make(map[int]int64),
		ResponseTimeHist:    make([]int64, len(c.responseTimeBuckets)),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := range c.responseTimeBuckets {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp" yaml:"timestamp"`
	Uptime              time.Duration    `json:"uptime" yaml:"uptime"`
	RequestsTotal       int64            `json:"requests_total" yaml:"requests_total"`
	ErrorsTotal         int64            `json:"errors_total" yaml:"errors_total"`
	RetriesTotal        int64            `json:"retries_total" yaml:"retries_total"`
	BytesTotal          int64            `json:"bytes_total" yaml:"bytes_total"`
	PagesDiscovered     int64            `json:"pages_discovered" yaml:"pages_discovered"`
	PagesSaved          int64            `json:"pages_saved" yaml:"pages_saved"`
	PagesFailed         int64            `json:"pages_failed" yaml:"pages_failed"`
	LinksRewritten      int64            `json:"links_rewritten" yaml:"links_rewritten"`
	AssetsDownloaded    int64            `json:"assets_downloaded" yaml:"assets_downloaded"`
	AssetsReused        int64            `json:"assets_reused" yaml:"assets_reused"`
	AssetsFailed        int64            `json:"assets_failed" yaml:"assets_failed"`
	QueueDepth          int64            `json:"queue_depth" yaml:"queue_depth"`
	AverageResponseTime time.Duration    `json:"average_response_time" yaml:"average_response_time"`
	ErrorCounts         map[string]int64 `json:"error_counts" yaml:"error_counts"`
	StatusCodes         map[int]int64    `json:"status_codes" yaml:"status_codes"`
	ResponseTimeHist    []int64          `json:"response_time_histogram" yaml:"response_time_histogram"`
}

// ErrorRate returns the error rate (errors/requests).
func (s *Snapshot) ErrorRate() float64 {
	if s.RequestsTotal == 0 {
		return 0
	}
	return float64(s.ErrorsTotal) / float64(s.RequestsTotal)
}

// Summary returns the headline numbers for logging.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"requests_total":       s.RequestsTotal,
		"retries_total":        s.RetriesTotal,
		"error_rate":           s.ErrorRate(),
		"pages_saved":          s.PagesSaved,
		"pages_failed":         s.PagesFailed,
		"assets_downloaded":    s.AssetsDownloaded,
		"assets_failed":        s.AssetsFailed,
		"bytes_total":          s.BytesTotal,
		"avg_response_time_ms": s.AverageResponseTime.Milliseconds(),
	}
}
