// Package scenario runs configured login scenarios against one page object
// and judges each against its expectation.
package scenario

import (
	"fmt"
	"regexp"
	"time"

	"github.com/xkilldash9x/gatecheck/internal/config"
)

// Expectation is what a scenario should end in.
type Expectation string

const (
	ExpectAuthenticated Expectation = "authenticated"
	ExpectError         Expectation = "error"
)

// Scenario is one credential pair and its expected outcome.
type Scenario struct {
	Name     string
	Identity string
	Secret   string
	Expect   Expectation
	// ErrorPattern must match the banner text, case-insensitively, when Expect is ExpectError.
	ErrorPattern *regexp.Regexp
	// MaxAttempts overrides the runner default when positive.
	MaxAttempts int
}

// FromConfig compiles scenario definitions.
func FromConfig(defs []config.ScenarioConfig) ([]Scenario, error) {
	out := make([]Scenario, 0, len(defs))
	for i, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		s := Scenario{
			Name:        d.Name,
			Identity:    d.Identity,
			Secret:      d.Secret,
			Expect:      Expectation(d.Expect),
			MaxAttempts: d.MaxAttempts,
		}
		if d.ErrorPattern != "" {
			re, err := regexp.Compile("(?i)" + d.ErrorPattern)
			if err != nil {
				return nil, fmt.Errorf("scenario %q: invalid error_pattern: %w", d.Name, err)
			}
			s.ErrorPattern = re
		}
		out = append(out, s)
	}
	return out, nil
}

// Result is the verdict for one scenario.
type Result struct {
	Scenario  string        `json:"scenario"`
	RunID     string        `json:"run_id"`
	Expect    Expectation   `json:"expect"`
	Attempts  int           `json:"attempts"`
	Outcome   string        `json:"outcome"`
	URL       string        `json:"url,omitempty"`
	ErrorText string        `json:"error_text,omitempty"`
	Passed    bool          `json:"passed"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Artifacts []string      `json:"artifacts,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Results  []Result      `json:"results"`
}

// OK reports whether every scenario passed.
func (s Summary) OK() bool { return s.Failed == 0 }
