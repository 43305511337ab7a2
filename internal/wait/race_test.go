package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gatecheck/internal/driver/drivertest"
	"github.com/xkilldash9x/gatecheck/internal/locator"
)

// after returns a watch that resolves once d has elapsed, or never when d < 0.
func after(name string, d time.Duration) Watch {
	return Watch{Name: name, Wait: func(ctx context.Context, timeout time.Duration) (Outcome, error) {
		if d < 0 || d > timeout {
			select {
			case <-time.After(timeout):
				return Outcome{Status: TimedOut}, nil
			case <-ctx.Done():
				return Outcome{}, ctx.Err()
			}
		}
		select {
		case <-time.After(d):
			return Outcome{Status: Found, Detail: name}, nil
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}}
}

func failing(name string, err error) Watch {
	return Watch{Name: name, Wait: func(context.Context, time.Duration) (Outcome, error) {
		return Outcome{}, err
	}}
}

func TestRace(t *testing.T) {
	t.Run("FirstResolvedWins", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		res, err := Race(context.Background(), time.Second, after("error", 80*time.Millisecond), after("url", 20*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Index)
		assert.Equal(t, "url", res.Name)
		assert.False(t, res.Indeterminate())
	})

	t.Run("LoserIsCanceledPromptly", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		start := time.Now()
		res, err := Race(context.Background(), 5*time.Second, after("a", 10*time.Millisecond), after("b", -1))
		require.NoError(t, err)
		assert.Equal(t, "a", res.Name)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("NeitherResolvesIsIndeterminate", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		res, err := Race(context.Background(), 50*time.Millisecond, after("a", -1), after("b", -1))
		require.NoError(t, err)
		assert.True(t, res.Indeterminate())
		assert.Equal(t, -1, res.Index)
	})

	t.Run("SubTimeoutClamped", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		w := after("slow", 200*time.Millisecond)
		w.Timeout = time.Hour
		start := time.Now()
		res, err := Race(context.Background(), 50*time.Millisecond, w)
		require.NoError(t, err)
		assert.True(t, res.Indeterminate())
		assert.Less(t, time.Since(start), 150*time.Millisecond)
	})

	t.Run("HardFailureDropsOut", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		res, err := Race(context.Background(), time.Second, failing("broken", errors.New("boom")), after("ok", 20*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Name)
	})

	t.Run("AllFailedReturnsError", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		boom := errors.New("boom")
		res, err := Race(context.Background(), time.Second, failing("a", boom), failing("b", errors.New("bang")))
		assert.ErrorIs(t, err, boom)
		assert.True(t, res.Indeterminate())
	})

	t.Run("ParentCanceled", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err := Race(ctx, time.Second, after("a", -1), after("b", -1))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("NoWatches", func(t *testing.T) {
		res, err := Race(context.Background(), time.Second)
		require.NoError(t, err)
		assert.True(t, res.Indeterminate())
	})
}

// If A's condition becomes true before the budget and B's never does, the
// race reports A whatever B's polling schedule.
func TestRaceAWinsOverSilentB(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	for _, bInterval := range []time.Duration{time.Millisecond, 7 * time.Millisecond, 90 * time.Millisecond} {
		for _, ta := range []time.Duration{0, 30 * time.Millisecond, 140 * time.Millisecond} {
			doc := drivertest.New()
			require.NoError(t, doc.Navigate(ctx, "https://www.saucedemo.com/"))
			doc.After(ta, func(d *drivertest.Document) {
				d.AddLocked(&drivertest.Node{Queries: []string{`[data-test="error"]`}, Visible: true})
			})

			a := New(doc, 10*time.Millisecond, zaptest.NewLogger(t))
			b := New(doc, bInterval, zaptest.NewLogger(t))
			errLoc := locator.New(locator.Error, `h3[data-test="error"]`, `[data-test="error"]`)

			res, err := Race(ctx, 200*time.Millisecond,
				Watch{Name: "error", Wait: func(ctx context.Context, timeout time.Duration) (Outcome, error) {
					return a.Located(ctx, errLoc, timeout)
				}},
				Watch{Name: "url", Wait: func(ctx context.Context, timeout time.Duration) (Outcome, error) {
					return b.URLContains(ctx, "/inventory", timeout)
				}},
			)
			require.NoError(t, err)
			assert.Equal(t, "error", res.Name, "t_a=%v b_interval=%v", ta, bInterval)
			_ = doc.Close(ctx)
		}
	}
}
