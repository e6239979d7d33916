package mirror

import (
	"context"
	"time"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
	"github.com/PortalMirror/portalmirror/internal/queue"
	"github.com/PortalMirror/portalmirror/internal/rewrite"
	"github.com/PortalMirror/portalmirror/internal/scope"
	"github.com/PortalMirror/portalmirror/internal/state"
)

// CrawlDirectory mirrors the directory a start URL belongs to. Pages are
// processed one at a time in FIFO order; the visited set is local to this
// call, so a page may be saved again by a later crawl. A start URL outside
// the content path saves nothing. The returned error is non-nil only when
// ctx is cancelled, in which case the partial result is returned too.
func (m *Mirror) CrawlDirectory(ctx context.Context, startURL string) (*CrawlResult, error) {
	start := time.Now()
	result := &CrawlResult{StartURL: startURL}
	defer func() { result.Duration = time.Since(start) }()

	log := m.logger.WithStartURL(startURL)

	if !m.policy.Allowed(startURL) {
		log.Warn("Start URL is outside the content path")
		return result, nil
	}

	result.Prefixes = scope.DirectoryPrefixes(startURL)

	if m.robots != nil {
		if delay := m.robots.CrawlDelay(ctx, startURL); delay > 0 {
			m.limiter.SlowTo(delay)
			log.Infof("Honouring robots.txt crawl delay of %v", delay)
		}
	}

	var frontier queue.Queue = queue.NewMemoryQueue(0)
	defer frontier.Close()
	visited := state.NewDeduplicator(1000)

	_ = frontier.Push(&queue.QueueItem{URL: startURL})
	m.metrics.RecordPageDiscovered()

	for {
		if ctx.Err() != nil {
			return result, crawlerrors.NewCancelledError(startURL, "crawl")
		}

		item, err := frontier.Pop()
		if err != nil {
			break
		}
		m.metrics.SetQueueDepth(int64(frontier.Len()))

		if !visited.MarkNew(item.URL) {
			continue
		}

		outcome, body := m.processPage(ctx, item.URL)
		if outcome.Kind == crawlerrors.Cancelled.String() {
			return result, outcome.Err
		}
		result.add(outcome)

		for _, link := range rewrite.ExtractLinks(item.URL, body) {
			if !m.policy.InCrawlScope(link, result.Prefixes) || visited.HasSeen(link) || frontier.Contains(link) {
				continue
			}
			if err := frontier.Push(&queue.QueueItem{URL: link, Depth: item.Depth + 1, ParentURL: item.URL}); err == nil {
				m.metrics.RecordPageDiscovered()
			}
		}

		if m.progress != nil {
			snap := m.state.Snapshot()
			m.progress.Update(snap.Stats.PagesSaved, snap.Stats.PagesFailed, frontier.Len(), item.URL)
		}
	}

	log.Infof("Crawl finished: %d saved, %d failed", result.Saved, result.Failed)
	return result, nil
}

// processPage fetches, localizes and saves one page. The fetched HTML is
// returned whenever the fetch succeeded so links can still be followed when
// saving fails. Other content types are saved unchanged and return no body.
func (m *Mirror) processPage(ctx context.Context, pageURL string) (PageOutcome, []byte) {
	fetched, err := m.client.Get(ctx, pageURL)
	if err != nil {
		return m.fail(ctx, pageURL, err), nil
	}

	body := fetched.Body
	var page *rewrite.PageResult
	if rewrite.IsHTML(fetched.ContentType) {
		page, err = m.rewriter.RewriteAndSave(ctx, pageURL, fetched.Body)
	} else {
		page, err = m.rewriter.SaveRaw(pageURL, fetched.Body)
		body = nil
	}
	if err != nil {
		return m.fail(ctx, pageURL, err), body
	}

	m.state.MarkSaved(pageURL, page.Path)
	m.metrics.RecordPageSaved()
	m.logger.PageEvent(pageURL, page.Path, page.LinksRewritten, page.AssetsDownloaded)

	return PageOutcome{
		URL:            pageURL,
		Path:           page.Path,
		Saved:          true,
		Attempts:       fetched.Attempts,
		LinksRewritten: page.LinksRewritten,
		AssetsFailed:   page.AssetsFailed,
	}, body
}

// fail records a skipped page. Errors caused by cancellation are not
// recorded; the caller stops the crawl instead.
func (m *Mirror) fail(ctx context.Context, pageURL string, err error) PageOutcome {
	if ctx.Err() != nil {
		return failedOutcome(pageURL, crawlerrors.NewCancelledError(pageURL, "crawl"))
	}
	if crawlerrors.GetErrorType(err) == crawlerrors.Cancelled {
		return failedOutcome(pageURL, err)
	}

	outcome := failedOutcome(pageURL, err)
	m.state.RecordFailure(outcome.failureRecord())
	m.metrics.RecordPageFailed()
	switch {
	case crawlerrors.IsScopeError(err):
		m.logger.WithURL(pageURL).Warnf("Page skipped: %v", err)
	case crawlerrors.IsFetchError(err):
		m.logger.ErrorEvent(err, pageURL, "fetch")
	default:
		m.logger.ErrorEvent(err, pageURL, "save")
	}
	return outcome
}
