package state

import "time"

// RunRecord is the journal entry written after each mirror run.
type RunRecord struct {
	ID          string          `json:"id" yaml:"id"`
	Portal      string          `json:"portal" yaml:"portal"`
	OutputDir   string          `json:"output_dir" yaml:"output_dir"`
	StartedAt   time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time       `json:"finished_at" yaml:"finished_at"`
	StartURLs   []string        `json:"start_urls" yaml:"start_urls"`
	Crawls      []CrawlRecord   `json:"crawls" yaml:"crawls"`
	Pages       []PageRecord    `json:"pages" yaml:"pages"`
	Failures    []FailureRecord `json:"failures" yaml:"failures"`
	BrokenLinks []string        `json:"broken_links,omitempty" yaml:"broken_links,omitempty"`
	Stats       RunStats        `json:"stats" yaml:"stats"`
}

// CrawlRecord summarises one directory crawl.
type CrawlRecord struct {
	StartURL string `json:"start_url" yaml:"start_url"`
	Saved    int    `json:"saved" yaml:"saved"`
	Failed   int    `json:"failed" yaml:"failed"`
}

// PageRecord is a page saved during the run.
type PageRecord struct {
	URL  string `json:"url" yaml:"url"`
	Path string `json:"path" yaml:"path"`
}

// FailureRecord is a page that could not be mirrored.
type FailureRecord struct {
	URL        string `json:"url" yaml:"url"`
	Kind       string `json:"kind" yaml:"kind"`
	Message    string `json:"message" yaml:"message"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
}

// RunStats contains the run totals.
type RunStats struct {
	PagesSaved       int           `json:"pages_saved" yaml:"pages_saved"`
	UniquePages      int           `json:"unique_pages" yaml:"unique_pages"`
	PagesFailed      int           `json:"pages_failed" yaml:"pages_failed"`
	AssetsDownloaded int           `json:"assets_downloaded" yaml:"assets_downloaded"`
	AssetsFailed     int           `json:"assets_failed" yaml:"assets_failed"`
	Duration         time.Duration `json:"duration" yaml:"duration"`
}
