package reporting

import (
	"encoding/xml"
	"fmt"
	"io"
	"sync"

	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	ID       string      `xml:"id,attr,omitempty"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// JUnitReporter writes a JUnit XML test suite on Close, for CI systems that ingest it.
type JUnitReporter struct {
	writer io.WriteCloser

	mu    sync.Mutex
	suite junitSuite
	total float64
}

// NewJUnitReporter creates a JUnit XML reporter.
func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: writer, suite: junitSuite{Name: ToolName}}
}

// Write adds a test case for result.
func (r *JUnitReporter) Write(result *scenario.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.suite.ID == "" {
		r.suite.ID = result.RunID
	}
	secs := result.Duration.Seconds()
	r.total += secs
	c := junitCase{
		Name:      result.Scenario,
		ClassName: ToolName + ".login",
		Time:      fmt.Sprintf("%.3f", secs),
		SystemOut: fmt.Sprintf("outcome=%s attempts=%d url=%s", result.Outcome, result.Attempts, result.URL),
	}
	if !result.Passed {
		r.suite.Failures++
		c.Failure = &junitFailure{Message: result.Reason, Body: result.ErrorText}
	}
	r.suite.Tests++
	r.suite.Cases = append(r.suite.Cases, c)
	return nil
}

// Close encodes the suite and closes the writer.
func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.suite.Time = fmt.Sprintf("%.3f", r.total)
	_, err := io.WriteString(r.writer, xml.Header)
	if err == nil {
		enc := xml.NewEncoder(r.writer)
		enc.Indent("", "  ")
		err = enc.Encode(r.suite)
	}
	closeErr := r.writer.Close()
	if err != nil {
		return fmt.Errorf("failed to encode JUnit output: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
