// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

// Reporter writes scenario results to an output.
type Reporter interface {
	// Write processes a single scenario result.
	Write(result *scenario.Result) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// NopCloser wraps w so that closing a reporter leaves w open.
func NopCloser(w io.Writer) io.WriteCloser {
	return &nopWriteCloser{w}
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve output path %s: %w", outputPath, err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	r, err := NewWithWriter(format, writer, toolVersion)
	if err != nil && !isStdOut {
		writer.Close()
	}
	return r, err
}

// NewWithWriter creates a reporter that takes ownership of writer.
func NewWithWriter(format string, writer io.WriteCloser, toolVersion string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "text":
		return NewTextReporter(writer), nil
	case "json":
		return NewJSONReporter(writer, toolVersion), nil
	case "junit":
		return NewJUnitReporter(writer), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// runTotals tallies results as they arrive.
type runTotals struct {
	runID  string
	passed int
	failed int
}

func (t *runTotals) add(r *scenario.Result) {
	if t.runID == "" {
		t.runID = r.RunID
	}
	if r.Passed {
		t.passed++
	} else {
		t.failed++
	}
}
