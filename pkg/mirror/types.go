// Package mirror crawls scoped portal directories into a browsable offline
// tree.
package mirror

import (
	"time"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
	"github.com/PortalMirror/portalmirror/internal/metrics"
	"github.com/PortalMirror/portalmirror/internal/state"
	"github.com/PortalMirror/portalmirror/internal/validate"
)

// PageOutcome is the result of processing one queued URL.
type PageOutcome struct {
	URL            string   `json:"url"`
	Path           string   `json:"path,omitempty"`
	Saved          bool     `json:"saved"`
	Kind           string   `json:"kind,omitempty"`
	StatusCode     int      `json:"status_code,omitempty"`
	Attempts       int      `json:"attempts,omitempty"`
	LinksRewritten int      `json:"links_rewritten,omitempty"`
	AssetsFailed   []string `json:"assets_failed,omitempty"`
	Err            error    `json:"-"`
}

// Failed reports whether the page was skipped.
func (p PageOutcome) Failed() bool {
	return !p.Saved
}

func failedOutcome(url string, err error) PageOutcome {
	return PageOutcome{
		URL:        url,
		Kind:       crawlerrors.GetErrorType(err).String(),
		StatusCode: crawlerrors.GetStatusCode(err),
		Err:        err,
	}
}

func (p PageOutcome) failureRecord() state.FailureRecord {
	msg := ""
	if p.Err != nil {
		msg = p.Err.Error()
	}
	return state.FailureRecord{
		URL:        p.URL,
		Kind:       p.Kind,
		Message:    msg,
		StatusCode: p.StatusCode,
	}
}

// CrawlResult is the outcome of one directory crawl.
type CrawlResult struct {
	StartURL string        `json:"start_url"`
	Prefixes []string      `json:"prefixes"`
	Saved    int           `json:"saved"`
	Failed   int           `json:"failed"`
	Pages    []PageOutcome `json:"pages"`
	Duration time.Duration `json:"duration"`
}

func (r *CrawlResult) add(p PageOutcome) {
	r.Pages = append(r.Pages, p)
	if p.Saved {
		r.Saved++
	} else {
		r.Failed++
	}
}

// RunResult is the outcome of a batch run.
type RunResult struct {
	TotalSaved  int                   `json:"total_saved"`
	UniquePages int                   `json:"unique_pages"`
	OutputDir   string                `json:"output_dir"`
	StartURLs   []string              `json:"start_urls"`
	OutOfScope  []string              `json:"out_of_scope,omitempty"`
	Crawls      []*CrawlResult        `json:"crawls"`
	BrokenLinks []validate.BrokenLink `json:"broken_links,omitempty"`
	Record      *state.RunRecord      `json:"-"`
	Metrics     *metrics.Snapshot     `json:"-"`
	Duration    time.Duration         `json:"duration"`
	ReportPath  string                `json:"report_path,omitempty"`
}
