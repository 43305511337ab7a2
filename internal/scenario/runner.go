package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver"
	"github.com/xkilldash9x/gatecheck/internal/page"
)

// Facade is the page surface the runner drives. *page.LoginPage implements it.
type Facade interface {
	Visit(ctx context.Context) error
	Login(ctx context.Context, identity, secret string) (page.Result, error)
	IsAuthenticated(ctx context.Context, timeout time.Duration) bool
	ErrorText(ctx context.Context, timeout time.Duration) (string, bool)
	CurrentURL(ctx context.Context) string
	ResetState(ctx context.Context)
}

var _ Facade = (*page.LoginPage)(nil)

// ArtifactSink persists failure artifacts and returns the written paths.
type ArtifactSink interface {
	Save(ctx context.Context, runID, scenario string, a *driver.Artifacts) ([]string, error)
}

// Runner executes scenarios sequentially against one Facade.
type Runner struct {
	facade    Facade
	collector driver.ArtifactCollector
	sink      ArtifactSink
	observe   func(Result)
	timing    config.TimingConfig
	cfg       config.RunnerConfig
	logger    *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithArtifacts enables failure artifact capture.
func WithArtifacts(collector driver.ArtifactCollector, sink ArtifactSink) Option {
	return func(r *Runner) {
		r.collector = collector
		r.sink = sink
	}
}

// WithObserver registers fn to receive each result as soon as it is decided.
func WithObserver(fn func(Result)) Option {
	return func(r *Runner) { r.observe = fn }
}

// NewRunner builds a Runner.
func NewRunner(f Facade, cfg config.Interface, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		facade: f,
		timing: cfg.Timing(),
		cfg:    cfg.Runner(),
		logger: logger.Named("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every scenario in order. A failing scenario does not stop the
// run unless stop_on_failure is set. The error is non-nil only when ctx ends
// the run early; the partial summary is still returned.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (Summary, error) {
	sum := Summary{RunID: uuid.New().String(), Started: time.Now()}
	log := r.logger.With(zap.String("run_id", sum.RunID))
	log.Info("Starting run.", zap.Int("scenarios", len(scenarios)))

	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			sum.Duration = time.Since(sum.Started)
			return sum, err
		}
		res := r.runOne(ctx, log, sum.RunID, sc)
		sum.Results = append(sum.Results, res)
		if res.Passed {
			sum.Passed++
		} else {
			sum.Failed++
		}
		if r.observe != nil {
			r.observe(res)
		}
		if !res.Passed && r.cfg.StopOnFailure {
			log.Warn("Stopping run after failure.", zap.String("scenario", sc.Name))
			break
		}
	}
	sum.Duration = time.Since(sum.Started)
	log.Info("Run finished.", zap.Int("passed", sum.Passed), zap.Int("failed", sum.Failed), zap.Duration("duration", sum.Duration))
	return sum, ctx.Err()
}

func (r *Runner) runOne(ctx context.Context, log *zap.Logger, runID string, sc Scenario) Result {
	start := time.Now()
	log = log.With(zap.String("scenario", sc.Name))
	res := Result{Scenario: sc.Name, RunID: runID, Expect: sc.Expect, Outcome: page.Indeterminate.String()}

	attempts := sc.MaxAttempts
	if attempts <= 0 {
		attempts = r.cfg.MaxAttempts
	}
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt
		if err := r.facade.Visit(ctx); err != nil {
			res.Reason = fmt.Sprintf("visit: %v", err)
			break
		}
		lr, err := r.facade.Login(ctx, sc.Identity, sc.Secret)
		if err != nil {
			res.Reason = fmt.Sprintf("login: %v", err)
			break
		}
		res.Outcome = lr.Outcome.String()
		res.ErrorText = lr.ErrorText
		if lr.Outcome == page.Indeterminate && attempt < attempts {
			log.Warn("Login outcome indeterminate; retrying.", zap.Int("attempt", attempt))
			r.facade.ResetState(ctx)
			continue
		}
		r.judge(ctx, sc, &res)
		break
	}
	res.URL = r.facade.CurrentURL(ctx)

	if !res.Passed {
		res.Artifacts = r.captureArtifacts(ctx, log, runID, sc.Name)
		log.Warn("Scenario failed.", zap.String("reason", res.Reason), zap.Int("attempts", res.Attempts))
	} else {
		log.Info("Scenario passed.", zap.Int("attempts", res.Attempts))
	}
	r.facade.ResetState(ctx)
	res.Duration = time.Since(start)
	return res
}

// judge checks the page against the expectation after a completed login.
func (r *Runner) judge(ctx context.Context, sc Scenario, res *Result) {
	switch sc.Expect {
	case ExpectAuthenticated:
		if r.facade.IsAuthenticated(ctx, r.timing.AuthTimeout) {
			res.Passed = true
			return
		}
		if res.ErrorText != "" {
			res.Reason = fmt.Sprintf("expected authentication, got error %q", res.ErrorText)
			return
		}
		res.Reason = "expected authentication, authenticated view never appeared"

	case ExpectError:
		text, ok := r.facade.ErrorText(ctx, r.timing.ErrorTimeout)
		if !ok {
			res.Reason = "expected an error banner, none appeared"
			return
		}
		res.ErrorText = text
		if sc.ErrorPattern != nil && !sc.ErrorPattern.MatchString(text) {
			res.Reason = fmt.Sprintf("error %q does not match %s", text, sc.ErrorPattern)
			return
		}
		if r.facade.IsAuthenticated(ctx, r.timing.GraceDelay) {
			res.Reason = "error banner shown but session is authenticated"
			return
		}
		res.Passed = true

	default:
		res.Reason = fmt.Sprintf("unknown expectation %q", sc.Expect)
	}
}

func (r *Runner) captureArtifacts(ctx context.Context, log *zap.Logger, runID, name string) []string {
	if r.collector == nil || r.sink == nil {
		return nil
	}
	a, err := r.collector.CollectArtifacts(ctx)
	if err != nil {
		log.Warn("Could not collect failure artifacts.", zap.Error(err))
		return nil
	}
	paths, err := r.sink.Save(ctx, runID, name, a)
	if err != nil {
		log.Warn("Could not save failure artifacts.", zap.Error(err))
	}
	return paths
}
