// Package progress shows a terminal spinner while the mirror runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/briandowns/spinner"

	"github.com/PortalMirror/portalmirror/internal/state"
)

// Display manages the spinner during a run.
type Display struct {
	mu      sync.Mutex
	spin    *spinner.Spinner
	out     io.Writer
	started bool
	stopped bool

	pagesSaved  atomic.Int64
	pagesFailed atomic.Int64
	queueSize   atomic.Int64

	startTime time.Time
	target    string
	lastLine  string
}

// New creates a display writing to out (stderr when nil).
func New(out io.Writer) *Display {
	if out == nil {
		out = os.Stderr
	}
	return &Display{
		out:  out,
		spin: spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(out)),
	}
}

// Start begins the spinner.
func (d *Display) Start(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.target = target
	d.spin.Suffix = " " + truncateURL(target, 60)
	d.spin.Start()
}

// Update refreshes the counters and the spinner suffix.
func (d *Display) Update(saved, failed, queued int, current string) {
	d.pagesSaved.Store(int64(saved))
	d.pagesFailed.Store(int64(failed))
	d.queueSize.Store(int64(queued))

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	d.lastLine = statusLine(saved, failed, queued, time.Since(d.startTime), current)

	d.spin.Lock()
	d.spin.Suffix = " " + d.lastLine
	d.spin.Unlock()
}

// Stop stops the spinner.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true
	d.spin.Stop()
}

// LastLine returns the most recent status line.
func (d *Display) LastLine() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastLine
}

// Stats returns the latest counters.
func (d *Display) Stats() (saved, failed, queued int64) {
	return d.pagesSaved.Load(), d.pagesFailed.Load(), d.queueSize.Load()
}

// PrintSummary prints a final summary of run to w.
func PrintSummary(w io.Writer, run state.RunRecord) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                       Mirror Complete                        ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Portal:              %s\n", truncateURL(run.Portal, 50))
	fmt.Fprintf(w, "  Output:              %s\n", run.OutputDir)
	fmt.Fprintf(w, "  Duration:            %s\n", formatDuration(run.Stats.Duration))
	fmt.Fprintf(w, "  Start URLs:          %d\n", len(run.StartURLs))
	fmt.Fprintf(w, "  Pages Saved:         %d\n", run.Stats.PagesSaved)
	fmt.Fprintf(w, "  Unique Pages:        %d\n", run.Stats.UniquePages)
	fmt.Fprintf(w, "  Pages Failed:        %d\n", run.Stats.PagesFailed)
	fmt.Fprintf(w, "  Assets Downloaded:   %d\n", run.Stats.AssetsDownloaded)
	fmt.Fprintf(w, "  Assets Failed:       %d\n", run.Stats.AssetsFailed)
	if len(run.BrokenLinks) > 0 {
		fmt.Fprintf(w, "  Broken Links:        %d\n", len(run.BrokenLinks))
	}
	fmt.Fprintln(w)
}

func statusLine(saved, failed, queued int, elapsed time.Duration, current string) string {
	return fmt.Sprintf("Saved: %d | Failed: %d | Queue: %d | %s | %s",
		saved, failed, queued, formatDuration(elapsed), truncateURL(current, 50))
}

// truncateURL truncates a URL to maxLen characters.
func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
