package page

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/locator"
	"github.com/xkilldash9x/gatecheck/internal/wait"
)

// Outcome is the terminal result of one submission.
type Outcome int

const (
	// Indeterminate means neither outcome appeared within the race budget.
	// The caller retries after ResetState and Visit.
	Indeterminate Outcome = iota
	Authenticated
	ErrorShown
)

func (o Outcome) String() string {
	switch o {
	case Authenticated:
		return "authenticated"
	case ErrorShown:
		return "error_shown"
	default:
		return "indeterminate"
	}
}

// Result is what Login observed. ErrorText is set only for ErrorShown.
type Result struct {
	Outcome   Outcome
	ErrorText string
}

// State tracks one attempt.
type State int

const (
	Idle State = iota
	FormFilled
	Submitted
	StateAuthenticated
	StateErrorShown
	StateIndeterminate
)

func (s State) String() string {
	switch s {
	case FormFilled:
		return "form_filled"
	case Submitted:
		return "submitted"
	case StateAuthenticated:
		return "authenticated"
	case StateErrorShown:
		return "error_shown"
	case StateIndeterminate:
		return "indeterminate"
	default:
		return "idle"
	}
}

const (
	watchError         = "error"
	watchAuthenticated = "authenticated"
)

// Login fills both fields in order, submits, and races the error banner
// against the authenticated URL. Exactly one Result is produced per call.
func (p *LoginPage) Login(ctx context.Context, identity, secret string) (Result, error) {
	if err := p.FillField(ctx, locator.Username, identity); err != nil {
		return Result{}, err
	}
	if err := p.FillField(ctx, locator.Password, secret); err != nil {
		return Result{}, err
	}
	p.setState(FormFilled)

	if err := p.Submit(ctx); err != nil {
		return Result{}, err
	}
	return p.awaitOutcome(ctx)
}

func (p *LoginPage) awaitOutcome(ctx context.Context) (Result, error) {
	budget := p.timing.RaceBudget
	errLoc := p.locators.Resolve(locator.Error)

	race, err := wait.Race(ctx, budget,
		wait.Watch{Name: watchError, Timeout: budget, Wait: func(ctx context.Context, timeout time.Duration) (wait.Outcome, error) {
			return p.waiter.Located(ctx, errLoc, timeout)
		}},
		wait.Watch{Name: watchAuthenticated, Timeout: budget, Wait: func(ctx context.Context, timeout time.Duration) (wait.Outcome, error) {
			return p.waiter.URLContains(ctx, p.target.AuthenticatedPath, timeout)
		}},
	)
	if err != nil {
		return Result{}, err
	}

	settle := p.timing.SettleDelay
	if race.Indeterminate() {
		settle = p.timing.IndeterminateSettle
	}
	if err := p.drv.Sleep(ctx, settle); err != nil {
		return Result{}, err
	}

	var res Result
	switch race.Name {
	case watchAuthenticated:
		res = Result{Outcome: Authenticated}
		p.setState(StateAuthenticated)
	case watchError:
		res = Result{Outcome: ErrorShown, ErrorText: p.bannerText(ctx, race.Outcome)}
		p.setState(StateErrorShown)
	default:
		res = Result{Outcome: Indeterminate}
		p.setState(StateIndeterminate)
	}
	p.logger.Info("Login attempt finished.",
		zap.Stringer("outcome", res.Outcome),
		zap.String("error_text", res.ErrorText),
		zap.String("winner_detail", race.Outcome.Detail),
	)
	return res, nil
}

// bannerText reads the banner the race found, falling back to a fresh
// lookup if the DOM replaced it while settling.
func (p *LoginPage) bannerText(ctx context.Context, found wait.Outcome) string {
	if found.Element != nil {
		if text, err := p.drv.Text(ctx, found.Element); err == nil {
			return strings.TrimSpace(text)
		}
	}
	text, _ := p.ErrorText(ctx, p.timing.GraceDelay)
	return text
}
