package page

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/driver"
	"github.com/xkilldash9x/gatecheck/internal/locator"
)

// Strategy is one way of activating the submit control. Do succeeding is the
// strategy's success. Advance decides whether a failure hands over to the
// next strategy in the chain or ends it.
type Strategy struct {
	Name    string
	Do      func(ctx context.Context, drv driver.Driver, el driver.Element) error
	Advance func(err error) bool
}

// rejectedOrStale advances only on conditions another strategy can get past.
func rejectedOrStale(err error) bool {
	return errors.Is(err, driver.ErrNotInteractable) || errors.Is(err, driver.ErrStale)
}

// NativeClick dispatches a real pointer click through the driver.
var NativeClick = Strategy{
	Name: "native_click",
	Do: func(ctx context.Context, drv driver.Driver, el driver.Element) error {
		return drv.Click(ctx, el)
	},
	Advance: rejectedOrStale,
}

// ScriptClick calls the element's click() from page script, bypassing hit
// testing and pointer event dispatch.
var ScriptClick = Strategy{
	Name: "script_click",
	Do: func(ctx context.Context, drv driver.Driver, el driver.Element) error {
		_, err := drv.ExecuteScript(ctx, "arguments[0].click();", el)
		return err
	},
	Advance: rejectedOrStale,
}

// DefaultStrategies is the submit chain: native click, then script click.
func DefaultStrategies() []Strategy {
	return []Strategy{NativeClick, ScriptClick}
}

// Submit waits for the submit control and walks the strategy chain until one
// strategy succeeds.
func (p *LoginPage) Submit(ctx context.Context) error {
	loc := p.locators.Resolve(locator.Submit)
	el, err := p.visibleElement(ctx, loc)
	if err != nil {
		return err
	}

	var failures []error
	for i, s := range p.strategies {
		err := s.Do(ctx, p.drv, el)
		if err == nil {
			p.logger.Debug("Submitted.", zap.String("strategy", s.Name), zap.Int("position", i))
			p.setState(Submitted)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		failures = append(failures, fmt.Errorf("%s: %w", s.Name, err))
		if s.Advance == nil || !s.Advance(err) {
			break
		}
		p.logger.Info("Submit strategy rejected; falling back.", zap.String("strategy", s.Name), zap.Error(err))
		if errors.Is(err, driver.ErrStale) {
			if el, err = p.visibleElement(ctx, loc); err != nil {
				failures = append(failures, err)
				break
			}
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrInteractionRejected, loc, errors.Join(failures...))
}
