package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

// TextReporter writes an aligned table, one row per scenario, and a totals line on Close.
type TextReporter struct {
	writer io.WriteCloser
	tw     *tabwriter.Writer

	mu     sync.Mutex
	header bool
	totals runTotals
}

// NewTextReporter creates a human readable reporter.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{
		writer: writer,
		tw:     tabwriter.NewWriter(writer, 0, 4, 2, ' ', 0),
	}
}

// Write adds a row for result.
func (r *TextReporter) Write(result *scenario.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.header {
		if _, err := fmt.Fprintln(r.tw, "STATUS\tSCENARIO\tOUTCOME\tATTEMPTS\tDURATION\tDETAIL"); err != nil {
			return err
		}
		r.header = true
	}
	r.totals.add(result)

	status := "PASS"
	detail := result.ErrorText
	if !result.Passed {
		status = "FAIL"
		detail = result.Reason
		if len(result.Artifacts) > 0 {
			detail += " (artifacts: " + strings.Join(result.Artifacts, ", ") + ")"
		}
	}
	_, err := fmt.Fprintf(r.tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
		status, result.Scenario, result.Outcome, result.Attempts,
		result.Duration.Round(time.Millisecond), detail)
	return err
}

// Close flushes the table, writes totals and closes the writer.
func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	flushErr := r.tw.Flush()
	var sumErr error
	if flushErr == nil {
		_, sumErr = fmt.Fprintf(r.writer, "\n%d passed, %d failed\n", r.totals.passed, r.totals.failed)
	}
	closeErr := r.writer.Close()

	switch {
	case flushErr != nil:
		return fmt.Errorf("failed to write text report: %w", flushErr)
	case sumErr != nil:
		return fmt.Errorf("failed to write text report: %w", sumErr)
	case closeErr != nil:
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
