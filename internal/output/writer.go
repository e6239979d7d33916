// Package output writes the run report.
package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Report formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Writer defines the interface for report writers.
type Writer interface {
	// WriteReport writes the complete run report
	WriteReport(report *Report) error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format   string
	Pretty   bool
	FilePath string
}

// NewWriter creates a report writer for config.Format.
func NewWriter(w io.Writer, config Config) (Writer, error) {
	switch strings.ToLower(config.Format) {
	case "", FormatJSON:
		return NewJSONWriter(w, config.Pretty), nil
	case FormatYAML, "yml":
		return NewYAMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", config.Format)
	}
}

// FormatFromPath picks the report format from a file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}
