package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/observability"
	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

// ToolName identifies the producer in machine readable reports.
const ToolName = "gatecheck"

// Document is the JSON report layout.
type Document struct {
	Tool        string            `json:"tool"`
	ToolVersion string            `json:"tool_version"`
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Passed      int               `json:"passed"`
	Failed      int               `json:"failed"`
	Results     []scenario.Result `json:"results"`
}

// JSONReporter buffers results and writes one Document on Close. It is thread safe.
type JSONReporter struct {
	writer  io.WriteCloser
	logger  *zap.Logger
	version string

	mu      sync.Mutex
	totals  runTotals
	results []scenario.Result
}

// NewJSONReporter creates a reporter that writes a JSON document.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer:  writer,
		logger:  observability.GetLogger().Named("json_reporter"),
		version: toolVersion,
		results: []scenario.Result{},
	}
}

// Write appends result to the buffer.
func (r *JSONReporter) Write(result *scenario.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.add(result)
	r.results = append(r.results, *result)
	return nil
}

// Close encodes the document and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := Document{
		Tool:        ToolName,
		ToolVersion: r.version,
		RunID:       r.totals.runID,
		GeneratedAt: time.Now().UTC(),
		Passed:      r.totals.passed,
		Failed:      r.totals.failed,
		Results:     r.results,
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(doc)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Wrote JSON report", zap.Int("results", len(r.results)))
	return nil
}
