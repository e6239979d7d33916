package output

import (
	"os"
	"path/filepath"
	"time"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
	"github.com/PortalMirror/portalmirror/internal/metrics"
	"github.com/PortalMirror/portalmirror/internal/state"
)

// Report is the document written after a mirror run.
type Report struct {
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	Run         state.RunRecord   `json:"run" yaml:"run"`
	Metrics     *metrics.Snapshot `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// NewReport assembles a report from a finished run.
func NewReport(run state.RunRecord, snapshot *metrics.Snapshot) *Report {
	return &Report{
		GeneratedAt: time.Now().UTC(),
		Run:         run,
		Metrics:     snapshot,
	}
}

// WriteFile writes report to config.FilePath, creating parent directories.
// An empty Format is derived from the file extension.
func WriteFile(report *Report, config Config) error {
	if config.Format == "" {
		config.Format = FormatFromPath(config.FilePath)
	}

	if dir := filepath.Dir(config.FilePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return crawlerrors.NewIOError(config.FilePath, "write_report", err)
		}
	}

	f, err := os.Create(config.FilePath)
	if err != nil {
		return crawlerrors.NewIOError(config.FilePath, "write_report", err)
	}

	w, err := NewWriter(f, config)
	if err != nil {
		f.Close()
		return crawlerrors.NewConfigError(config.FilePath, err.Error(), err)
	}

	if err := w.WriteReport(report); err != nil {
		w.Close()
		return crawlerrors.NewIOError(config.FilePath, "write_report", err)
	}
	if err := w.Close(); err != nil {
		return crawlerrors.NewIOError(config.FilePath, "write_report", err)
	}
	return nil
}
