// Package page is the login page object: the only surface scenario code uses.
// It sequences the wait primitives into resilient multi-step actions, absorbs
// transient driver conditions with a single graced retry, and reports the
// outcome of a submission as a value.
package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver"
	"github.com/xkilldash9x/gatecheck/internal/locator"
	"github.com/xkilldash9x/gatecheck/internal/wait"
)

var (
	// ErrNavigationFailed means the entry page never became usable, even after retries.
	ErrNavigationFailed = errors.New("navigation failed")
	// ErrElementUnavailable means a required element never became visible.
	ErrElementUnavailable = errors.New("element unavailable")
	// ErrInteractionRejected means every interaction attempt on an element failed.
	ErrInteractionRejected = errors.New("interaction rejected")

	errNotCommitted = errors.New("value not committed")
)

const (
	jsReadyState   = `return document.readyState;`
	jsClearStorage = `window.localStorage.clear(); window.sessionStorage.clear(); return true;`
)

// LoginPage drives one login form through one driver session. Methods must
// not be called concurrently; the session is a single logical flow.
type LoginPage struct {
	drv        driver.Driver
	waiter     *wait.Waiter
	locators   locator.Set
	target     config.TargetConfig
	timing     config.TimingConfig
	strategies []Strategy
	logger     *zap.Logger

	mu    sync.Mutex
	state State
}

// Option customizes a LoginPage.
type Option func(*LoginPage)

// WithStrategies replaces the submit strategy chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(p *LoginPage) { p.strategies = strategies }
}

// WithLocators replaces the locator table.
func WithLocators(set locator.Set) Option {
	return func(p *LoginPage) { p.locators = set }
}

// New builds the page object over drv.
func New(drv driver.Driver, cfg config.Interface, logger *zap.Logger, opts ...Option) *LoginPage {
	log := logger.Named("page")
	timing := cfg.Timing()
	p := &LoginPage{
		drv:        drv,
		waiter:     wait.New(drv, timing.PollInterval, log),
		locators:   locator.NewSet(cfg.Locators()),
		target:     cfg.Target(),
		timing:     timing,
		strategies: DefaultStrategies(),
		logger:     log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State is the attempt state after the last operation.
func (p *LoginPage) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *LoginPage) setState(next State) {
	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()
	if prev != next {
		p.logger.Debug("Attempt state changed.", zap.Stringer("from", prev), zap.Stringer("to", next))
	}
}

// Visit clears client state, loads the base URL and confirms the entry form
// is visible. A failed load is retried navigation_retries times.
func (p *LoginPage) Visit(ctx context.Context) error {
	p.ResetState(ctx)

	url := p.target.BaseURL
	attempts := p.timing.NavigationRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			p.logger.Warn("Retrying navigation.", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(lastErr))
			if err := p.drv.Sleep(ctx, p.timing.GraceDelay); err != nil {
				return err
			}
		}
		lastErr = p.load(ctx, url)
		if lastErr == nil {
			p.setState(Idle)
			p.logger.Info("Entry page ready.", zap.String("url", url), zap.Int("attempt", attempt))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempt(s): %w", ErrNavigationFailed, url, attempts, lastErr)
}

func (p *LoginPage) load(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.timing.NavigationTimeout)
	defer cancel()

	if err := p.drv.Navigate(navCtx, url); err != nil {
		return err
	}
	ready, err := p.waiter.Condition(navCtx, p.timing.NavigationTimeout, p.documentReady)
	if err != nil {
		return err
	}
	if !ready.Found() {
		return fmt.Errorf("document at %s never became interactive", url)
	}
	form := p.locators.Resolve(locator.Username)
	visible, err := p.waiter.Visible(navCtx, form, p.timing.DefaultTimeout)
	if err != nil {
		return err
	}
	if !visible.Found() {
		return fmt.Errorf("entry form %s not visible", form)
	}
	return nil
}

func (p *LoginPage) documentReady(ctx context.Context) (bool, error) {
	v, err := p.drv.ExecuteScript(ctx, jsReadyState)
	if err != nil {
		return false, err
	}
	state, _ := v.(string)
	return state == "interactive" || state == "complete", nil
}

// FillField waits for the field, clears it and types value, then reads the
// value back. An empty value still clears the field. A transient failure or
// a value that did not stick is retried once after the grace delay.
func (p *LoginPage) FillField(ctx context.Context, role locator.Role, value string) error {
	loc := p.locators.Resolve(role)
	err := p.fill(ctx, loc, value)
	if err != nil && (driver.IsTransient(err) || errors.Is(err, errNotCommitted)) {
		p.logger.Debug("Retrying field input.", zap.Stringer("locator", loc), zap.Error(err))
		if serr := p.drv.Sleep(ctx, p.timing.GraceDelay); serr != nil {
			return serr
		}
		err = p.fill(ctx, loc, value)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrElementUnavailable) || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: fill %s: %w", ErrInteractionRejected, loc, err)
}

func (p *LoginPage) fill(ctx context.Context, loc locator.Locator, value string) error {
	el, err := p.visibleElement(ctx, loc)
	if err != nil {
		return err
	}
	if err := p.drv.Clear(ctx, el); err != nil {
		return err
	}
	if err := p.drv.Type(ctx, el, value); err != nil {
		return err
	}
	got, err := p.drv.Value(ctx, el)
	if err != nil {
		return err
	}
	if got != value {
		return fmt.Errorf("%w: %s holds %d chars, want %d", errNotCommitted, loc, len(got), len(value))
	}
	return nil
}

func (p *LoginPage) visibleElement(ctx context.Context, loc locator.Locator) (driver.Element, error) {
	out, err := p.waiter.Visible(ctx, loc, p.timing.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	if !out.Found() {
		return nil, fmt.Errorf("%w: %s not visible within %v", ErrElementUnavailable, loc, p.timing.DefaultTimeout)
	}
	return out.Element, nil
}

// CurrentURL returns the page location, or "" if the driver cannot report it.
func (p *LoginPage) CurrentURL(ctx context.Context) string {
	u, err := p.drv.CurrentURL(ctx)
	if err != nil {
		p.logger.Debug("Could not read current URL.", zap.Error(err))
		return ""
	}
	return u
}

// ResetState deletes cookies and clears both storage scopes. It is best
// effort: failures are logged and never returned.
func (p *LoginPage) ResetState(ctx context.Context) {
	if err := p.drv.DeleteCookies(ctx); err != nil {
		p.logger.Warn("Could not delete cookies.", zap.Error(err))
	}
	if _, err := p.drv.ExecuteScript(ctx, jsClearStorage); err != nil {
		p.logger.Warn("Could not clear web storage.", zap.Error(err))
	}
	p.setState(Idle)
}

// IsAuthenticated reports whether the URL carries the authenticated path and
// the authenticated view's marker is visible, both within timeout.
func (p *LoginPage) IsAuthenticated(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	url, err := p.waiter.URLContains(ctx, p.target.AuthenticatedPath, timeout)
	if err != nil || !url.Found() {
		p.logAbsence("authenticated url", err)
		return false
	}
	marker, err := p.waiter.Visible(ctx, p.locators.Resolve(locator.AuthenticatedMarker), time.Until(deadline))
	if err != nil || !marker.Found() {
		p.logAbsence("authenticated marker", err)
		return false
	}
	return true
}

// ErrorText waits for the error banner and returns its text. The bool is
// false when no banner appeared within timeout. A stale read is retried once
// inside the same timeout.
func (p *LoginPage) ErrorText(ctx context.Context, timeout time.Duration) (string, bool) {
	if err := p.drv.Sleep(ctx, p.timing.ErrorPreReadDelay); err != nil {
		return "", false
	}
	deadline := time.Now().Add(timeout)
	loc := p.locators.Resolve(locator.Error)
	for attempt := 0; attempt < 2; attempt++ {
		out, err := p.waiter.Visible(ctx, loc, time.Until(deadline))
		if err != nil || !out.Found() {
			p.logAbsence("error banner", err)
			return "", false
		}
		text, err := p.drv.Text(ctx, out.Element)
		if err == nil {
			return strings.TrimSpace(text), true
		}
		if !driver.IsTransient(err) {
			p.logAbsence("error banner text", err)
			return "", false
		}
	}
	return "", false
}

// IsErrorVisible reports whether the error banner is shown within timeout.
func (p *LoginPage) IsErrorVisible(ctx context.Context, timeout time.Duration) bool {
	_, ok := p.ErrorText(ctx, timeout)
	return ok
}

func (p *LoginPage) logAbsence(what string, err error) {
	if err != nil {
		p.logger.Debug("Predicate wait failed.", zap.String("what", what), zap.Error(err))
	}
}
