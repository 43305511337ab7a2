package cdp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type ctxKey string

func TestBindContext(t *testing.T) {
	const key ctxKey = "tab"

	t.Run("ValuesFromTab", func(t *testing.T) {
		tab := context.WithValue(context.Background(), key, "target-1")
		bound, cancel := bindContext(tab, context.Background())
		defer cancel()

		assert.Equal(t, "target-1", bound.Value(key))
		assert.NoError(t, bound.Err())
	})

	t.Run("CanceledByEither", func(t *testing.T) {
		for _, name := range []string{"tab", "call"} {
			tab, cancelTab := context.WithCancel(context.Background())
			call, cancelCall := context.WithCancel(context.Background())
			bound, cancel := bindContext(tab, call)

			if name == "tab" {
				cancelTab()
			} else {
				cancelCall()
			}
			assert.Eventually(t, func() bool { return bound.Err() != nil }, time.Second, 5*time.Millisecond, name)
			assert.ErrorIs(t, bound.Err(), context.Canceled)

			cancel()
			cancelTab()
			cancelCall()
		}
	})

	t.Run("CallDeadlineCancels", func(t *testing.T) {
		call, cancelCall := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancelCall()
		bound, cancel := bindContext(context.Background(), call)
		defer cancel()

		<-bound.Done()
		_, hasDeadline := bound.Deadline()
		assert.False(t, hasDeadline)
		assert.ErrorIs(t, bound.Err(), context.Canceled)
	})
}
