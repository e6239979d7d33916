package output

import (
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes output in YAML format.
type YAMLWriter struct {
	mu     sync.Mutex
	writer io.Writer
	closed bool
}

// NewYAMLWriter creates a new YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{writer: w}
}

// WriteReport writes the complete report as one YAML document.
func (y *YAMLWriter) WriteReport(report *Report) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}

	enc := yaml.NewEncoder(y.writer)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

// Close closes the writer.
func (y *YAMLWriter) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}
	y.closed = true

	if closer, ok := y.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
