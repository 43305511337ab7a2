package wait

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Watch is one contender in a Race.
type Watch struct {
	Name string
	// Timeout is the watch's own budget. Zero or anything above the race
	// budget is clamped to the race budget.
	Timeout time.Duration
	Wait    func(ctx context.Context, timeout time.Duration) (Outcome, error)
}

// RaceResult names the winning watch. Index is -1 when nothing resolved.
type RaceResult struct {
	Index   int
	Name    string
	Outcome Outcome
}

// Indeterminate reports that no watch resolved within the budget.
func (r RaceResult) Indeterminate() bool { return r.Index < 0 }

// Race runs every watch concurrently and returns the first one to report
// Found. The remaining watches are canceled, and all of them have returned
// before Race does. If nothing resolves within timeout the result is
// Indeterminate with a nil error. A watch that fails hard simply drops out;
// an error is returned only when every watch failed or ctx was canceled.
func Race(ctx context.Context, timeout time.Duration, watches ...Watch) (RaceResult, error) {
	none := RaceResult{Index: -1}
	if len(watches) == 0 {
		return none, nil
	}

	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		once   sync.Once
		winner = none
		errs   = make([]error, len(watches))
		g      errgroup.Group
	)
	for i, w := range watches {
		g.Go(func() error {
			sub := w.Timeout
			if sub <= 0 || sub > timeout {
				sub = timeout
			}
			out, err := w.Wait(raceCtx, sub)
			if err != nil {
				// Errors caused by the race ending are not failures of the watch.
				if raceCtx.Err() == nil {
					errs[i] = err
				}
				return nil
			}
			if out.Found() {
				once.Do(func() {
					winner = RaceResult{Index: i, Name: w.Name, Outcome: out}
					cancel()
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	if !winner.Indeterminate() {
		return winner, nil
	}
	if err := ctx.Err(); err != nil {
		return none, err
	}
	for _, err := range errs {
		if err == nil {
			return none, nil
		}
	}
	return none, errs[0]
}
