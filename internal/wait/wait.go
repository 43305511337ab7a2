// Package wait holds the bounded polling primitives the page layer is built
// from. Every wait returns an Outcome value; it never reports "element absent"
// or "budget exhausted" as an error. Errors are reserved for driver failures
// that polling cannot fix and for cancellation of the caller's context.
package wait

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/gatecheck/internal/driver"
	"github.com/xkilldash9x/gatecheck/internal/locator"
)

// DefaultPollInterval is used when a Waiter is built with a non-positive interval.
const DefaultPollInterval = 100 * time.Millisecond

// Status is the tri-state result of a bounded wait.
type Status int

const (
	// NotFound means a zero-budget probe found nothing.
	NotFound Status = iota
	// Found means the condition held before the budget ran out.
	Found
	// TimedOut means the condition never held within the budget.
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case TimedOut:
		return "timed_out"
	default:
		return "not_found"
	}
}

// Outcome is what a wait observed.
type Outcome struct {
	Status Status
	// Element is set when an element wait is Found.
	Element driver.Element
	// Detail is the matching query for element waits and the observed URL for URL waits.
	Detail string
}

// Found reports whether the condition held.
func (o Outcome) Found() bool { return o.Status == Found }

// Waiter polls one driver at a fixed interval.
type Waiter struct {
	drv      driver.Driver
	interval time.Duration
	logger   *zap.Logger
}

// New returns a Waiter polling drv every interval.
func New(drv driver.Driver, interval time.Duration, logger *zap.Logger) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Waiter{drv: drv, interval: interval, logger: logger.Named("wait")}
}

// probe checks a condition once. done reports that the condition holds.
type probe func(ctx context.Context) (out Outcome, done bool, err error)

// poll runs p until it reports done or timeout elapses. A non-positive timeout
// probes exactly once. The last probe runs at the deadline so a condition that
// became true inside the budget is never missed between ticks.
func (w *Waiter) poll(ctx context.Context, timeout time.Duration, p probe) (Outcome, error) {
	if timeout <= 0 {
		out, done, err := w.probeOnce(ctx, ctx, p)
		if err != nil || done {
			return out, err
		}
		return Outcome{Status: NotFound}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(w.interval), 1)

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			break
		}
		out, done, err := w.probeOnce(ctx, waitCtx, p)
		if err != nil || done {
			return out, err
		}
	}

	// The limiter refuses a token it cannot grant before the deadline; sit
	// out the remainder, then look one last time.
	<-waitCtx.Done()
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	finalCtx, finalCancel := context.WithTimeout(ctx, w.interval)
	defer finalCancel()
	out, done, err := w.probeOnce(ctx, finalCtx, p)
	if err != nil || done {
		return out, err
	}
	return Outcome{Status: TimedOut}, nil
}

// probeOnce classifies a single probe. Transient driver conditions and the
// probe's own deadline mean "not yet"; anything else is a hard failure.
func (w *Waiter) probeOnce(parent, ctx context.Context, p probe) (Outcome, bool, error) {
	out, done, err := p(ctx)
	if err == nil {
		return out, done, nil
	}
	if perr := parent.Err(); perr != nil {
		return Outcome{}, false, perr
	}
	if driver.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		w.logger.Debug("Transient condition while polling.", zap.Error(err))
		return Outcome{}, false, nil
	}
	return Outcome{}, false, err
}

// locate tries each query of loc once, in priority order.
func (w *Waiter) locate(ctx context.Context, loc locator.Locator) (Outcome, bool, error) {
	for _, q := range loc.Queries() {
		el, err := w.drv.FindElement(ctx, q)
		switch {
		case err == nil:
			return Outcome{Status: Found, Element: el, Detail: q}, true, nil
		case driver.IsTransient(err):
			continue
		default:
			return Outcome{}, false, err
		}
	}
	return Outcome{}, false, nil
}

// Located waits until any of loc's queries matches an element.
func (w *Waiter) Located(ctx context.Context, loc locator.Locator, timeout time.Duration) (Outcome, error) {
	out, err := w.poll(ctx, timeout, func(ctx context.Context) (Outcome, bool, error) {
		return w.locate(ctx, loc)
	})
	w.logResult("located", loc.String(), out, err)
	return out, err
}

// Visible waits until an element matching loc exists and is rendered. Both
// phases share the one budget. A handle that goes stale is located again.
func (w *Waiter) Visible(ctx context.Context, loc locator.Locator, timeout time.Duration) (Outcome, error) {
	var current Outcome
	out, err := w.poll(ctx, timeout, func(ctx context.Context) (Outcome, bool, error) {
		if current.Element == nil {
			found, ok, err := w.locate(ctx, loc)
			if err != nil || !ok {
				return Outcome{}, false, err
			}
			current = found
		}
		visible, err := w.drv.IsVisible(ctx, current.Element)
		if errors.Is(err, driver.ErrStale) {
			current = Outcome{}
			return Outcome{}, false, nil
		}
		if err != nil || !visible {
			return Outcome{}, false, err
		}
		return current, true, nil
	})
	w.logResult("visible", loc.String(), out, err)
	return out, err
}

// URLContains waits until the current URL contains substr.
func (w *Waiter) URLContains(ctx context.Context, substr string, timeout time.Duration) (Outcome, error) {
	out, err := w.poll(ctx, timeout, func(ctx context.Context) (Outcome, bool, error) {
		u, err := w.drv.CurrentURL(ctx)
		if err != nil {
			return Outcome{}, false, err
		}
		if strings.Contains(u, substr) {
			return Outcome{Status: Found, Detail: u}, true, nil
		}
		return Outcome{}, false, nil
	})
	w.logResult("url", substr, out, err)
	return out, err
}

// Condition waits until check reports true. check follows the probe rules:
// transient driver errors are retried.
func (w *Waiter) Condition(ctx context.Context, timeout time.Duration, check func(ctx context.Context) (bool, error)) (Outcome, error) {
	return w.poll(ctx, timeout, func(ctx context.Context) (Outcome, bool, error) {
		ok, err := check(ctx)
		if err != nil || !ok {
			return Outcome{}, false, err
		}
		return Outcome{Status: Found}, true, nil
	})
}

func (w *Waiter) logResult(kind, target string, out Outcome, err error) {
	if err != nil {
		w.logger.Debug("Wait aborted.", zap.String("kind", kind), zap.String("target", target), zap.Error(err))
		return
	}
	w.logger.Debug("Wait finished.", zap.String("kind", kind), zap.String("target", target), zap.Stringer("status", out.Status))
}
