package page

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver"
	"github.com/xkilldash9x/gatecheck/internal/driver/drivertest"
	"github.com/xkilldash9x/gatecheck/internal/locator"
)

const baseURL = "https://www.saucedemo.com/"

// fastConfig shrinks every budget so the simulated site can be driven in
// milliseconds.
func fastConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.TargetCfg.BaseURL = baseURL
	cfg.TimingCfg = config.TimingConfig{
		DefaultTimeout:      time.Second,
		NavigationTimeout:   time.Second,
		NavigationRetries:   1,
		PollInterval:        5 * time.Millisecond,
		RaceBudget:          600 * time.Millisecond,
		SettleDelay:         10 * time.Millisecond,
		IndeterminateSettle: 20 * time.Millisecond,
		ErrorPreReadDelay:   5 * time.Millisecond,
		ErrorTimeout:        300 * time.Millisecond,
		AuthTimeout:         300 * time.Millisecond,
		GraceDelay:          10 * time.Millisecond,
	}
	return cfg
}

func newSitePage(t *testing.T, opts drivertest.SiteOptions, pageOpts ...Option) (*LoginPage, *drivertest.Site) {
	t.Helper()
	site := drivertest.NewSite(baseURL, opts)
	t.Cleanup(func() { _ = site.Close(context.Background()) })
	return New(site, fastConfig(), zaptest.NewLogger(t), pageOpts...), site
}

func TestLoginScenarios(t *testing.T) {
	tests := []struct {
		name             string
		identity, secret string
		wantAuth         bool
		wantError        *regexp.Regexp
	}{
		{"valid credentials", "standard_user", "secret_sauce", true, nil},
		{"invalid credentials", "invalid_user", "wrong_password", false, regexp.MustCompile(`(?i)do not match`)},
		{"locked out user", "locked_out_user", "secret_sauce", false, regexp.MustCompile(`(?i)locked out`)},
		{"empty username", "", "secret_sauce", false, regexp.MustCompile(`(?i)username is required`)},
		{"empty password", "standard_user", "", false, regexp.MustCompile(`(?i)password is required`)},
	}
	for _, tt := range tests {
		for _, latency := range []time.Duration{0, 120 * time.Millisecond} {
			t.Run(tt.name+"/"+latency.String(), func(t *testing.T) {
				ctx := context.Background()
				p, _ := newSitePage(t, drivertest.SiteOptions{ResponseDelay: latency})
				require.NoError(t, p.Visit(ctx))

				res, err := p.Login(ctx, tt.identity, tt.secret)
				require.NoError(t, err)

				if tt.wantAuth {
					assert.Equal(t, Authenticated, res.Outcome)
					assert.Equal(t, StateAuthenticated, p.State())
					assert.True(t, p.IsAuthenticated(ctx, 300*time.Millisecond))
					assert.Contains(t, p.CurrentURL(ctx), "/inventory")
					return
				}
				assert.Equal(t, ErrorShown, res.Outcome)
				assert.Regexp(t, tt.wantError, res.ErrorText)
				text, ok := p.ErrorText(ctx, 300*time.Millisecond)
				require.True(t, ok)
				assert.Regexp(t, tt.wantError, text)
				assert.False(t, p.IsAuthenticated(ctx, 50*time.Millisecond))
			})
		}
	}
}

func TestLoginFieldOrderAndEmptyInput(t *testing.T) {
	ctx := context.Background()
	p, site := newSitePage(t, drivertest.SiteOptions{})
	require.NoError(t, p.Visit(ctx))

	_, err := p.Login(ctx, "", "secret_sauce")
	require.NoError(t, err)

	var interactions []string
	for _, c := range site.Calls() {
		switch c {
		case "clear #user-name", `type #user-name ""`, "clear #password", `type #password "secret_sauce"`, "click #login-button":
			interactions = append(interactions, c)
		}
	}
	assert.Equal(t, []string{
		"clear #user-name", `type #user-name ""`,
		"clear #password", `type #password "secret_sauce"`,
		"click #login-button",
	}, interactions)
}

func TestLoginIndeterminate(t *testing.T) {
	ctx := context.Background()
	p, _ := newSitePage(t, drivertest.SiteOptions{Silent: true})
	require.NoError(t, p.Visit(ctx))

	start := time.Now()
	res, err := p.Login(ctx, "standard_user", "secret_sauce")
	require.NoError(t, err)
	assert.Equal(t, Indeterminate, res.Outcome)
	assert.Equal(t, StateIndeterminate, p.State())
	assert.GreaterOrEqual(t, time.Since(start), 600*time.Millisecond)

	// A fresh attempt after reset and visit works once the site answers again.
	p.ResetState(ctx)
	require.NoError(t, p.Visit(ctx))
	assert.Equal(t, Idle, p.State())
}

func TestLoginErrorBannerHeadingForm(t *testing.T) {
	ctx := context.Background()
	p, _ := newSitePage(t, drivertest.SiteOptions{BannerAsHeading: true})
	require.NoError(t, p.Visit(ctx))

	res, err := p.Login(ctx, "locked_out_user", "secret_sauce")
	require.NoError(t, err)
	assert.Equal(t, ErrorShown, res.Outcome)
	assert.Equal(t, drivertest.MsgLockedOut, res.ErrorText)
}

func TestSubmitFallsBackToScriptClick(t *testing.T) {
	ctx := context.Background()
	p, site := newSitePage(t, drivertest.SiteOptions{SubmitClickRejections: 1})
	require.NoError(t, p.Visit(ctx))

	res, err := p.Login(ctx, "standard_user", "secret_sauce")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, res.Outcome)
	assert.Contains(t, site.Calls(), "click-rejected #login-button")
	assert.Contains(t, site.Calls(), "script-click #login-button")
}

func TestSubmitStrategyChain(t *testing.T) {
	ctx := context.Background()
	var tried []string
	record := func(name string, err error) Strategy {
		return Strategy{
			Name: name,
			Do: func(context.Context, driver.Driver, driver.Element) error {
				tried = append(tried, name)
				return err
			},
			Advance: rejectedOrStale,
		}
	}

	t.Run("AllRejected", func(t *testing.T) {
		tried = nil
		p, _ := newSitePage(t, drivertest.SiteOptions{},
			WithStrategies(record("first", driver.ErrNotInteractable), record("second", driver.ErrNotInteractable)))
		require.NoError(t, p.Visit(ctx))

		err := p.Submit(ctx)
		assert.ErrorIs(t, err, ErrInteractionRejected)
		assert.ErrorIs(t, err, driver.ErrNotInteractable)
		assert.Equal(t, []string{"first", "second"}, tried)
	})

	t.Run("HardFailureStopsChain", func(t *testing.T) {
		tried = nil
		boom := errors.New("target crashed")
		p, _ := newSitePage(t, drivertest.SiteOptions{},
			WithStrategies(record("first", boom), record("second", nil)))
		require.NoError(t, p.Visit(ctx))

		err := p.Submit(ctx)
		assert.ErrorIs(t, err, ErrInteractionRejected)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"first"}, tried)
	})

	t.Run("SecondSucceeds", func(t *testing.T) {
		tried = nil
		p, _ := newSitePage(t, drivertest.SiteOptions{},
			WithStrategies(record("first", driver.ErrStale), record("second", nil)))
		require.NoError(t, p.Visit(ctx))

		require.NoError(t, p.Submit(ctx))
		assert.Equal(t, Submitted, p.State())
		assert.Equal(t, []string{"first", "second"}, tried)
	})
}

func TestVisit(t *testing.T) {
	ctx := context.Background()

	t.Run("RetriesOnce", func(t *testing.T) {
		p, site := newSitePage(t, drivertest.SiteOptions{})
		site.FailNavigations(1)
		require.NoError(t, p.Visit(ctx))
		assert.Equal(t, 2, countPrefix(site.Calls(), "navigate "))
	})

	t.Run("FailsAfterRetry", func(t *testing.T) {
		p, site := newSitePage(t, drivertest.SiteOptions{})
		site.FailNavigations(2)
		err := p.Visit(ctx)
		assert.ErrorIs(t, err, ErrNavigationFailed)
		assert.Contains(t, err.Error(), "ERR_TIMED_OUT")
		assert.Equal(t, 2, countPrefix(site.Calls(), "navigate "))
	})

	t.Run("WaitsForSlowForm", func(t *testing.T) {
		p, _ := newSitePage(t, drivertest.SiteOptions{FormDelay: 80 * time.Millisecond})
		require.NoError(t, p.Visit(ctx))
	})

	t.Run("FormNeverAppears", func(t *testing.T) {
		cfg := fastConfig()
		cfg.TimingCfg.DefaultTimeout = 50 * time.Millisecond
		cfg.TimingCfg.NavigationRetries = 0
		doc := drivertest.New()
		t.Cleanup(func() { _ = doc.Close(ctx) })
		p := New(doc, cfg, zaptest.NewLogger(t))

		err := p.Visit(ctx)
		assert.ErrorIs(t, err, ErrNavigationFailed)
	})
}

func TestResetStateIdempotent(t *testing.T) {
	ctx := context.Background()
	p, site := newSitePage(t, drivertest.SiteOptions{})
	require.NoError(t, p.Visit(ctx))
	res, err := p.Login(ctx, "standard_user", "secret_sauce")
	require.NoError(t, err)
	require.Equal(t, Authenticated, res.Outcome)

	cookies, local, _ := site.ClientState()
	require.NotEmpty(t, cookies)
	require.NotEmpty(t, local)

	p.ResetState(ctx)
	c1, l1, s1 := site.ClientState()
	p.ResetState(ctx)
	c2, l2, s2 := site.ClientState()

	assert.Empty(t, c1)
	assert.Empty(t, l1)
	assert.Empty(t, s1)
	assert.Equal(t, c1, c2)
	assert.Equal(t, l1, l2)
	assert.Equal(t, s1, s2)
}

func TestResetStateOnBlankPageDoesNotFail(t *testing.T) {
	doc := drivertest.New()
	t.Cleanup(func() { _ = doc.Close(context.Background()) })
	p := New(doc, fastConfig(), zaptest.NewLogger(t))

	p.ResetState(context.Background())
	assert.Equal(t, Idle, p.State())
}

func TestFillFieldRetriesDroppedInput(t *testing.T) {
	ctx := context.Background()
	doc := drivertest.New()
	t.Cleanup(func() { _ = doc.Close(ctx) })
	field := &drivertest.Node{Queries: []string{"#user-name"}, Visible: true, DropKeystrokes: 1}
	doc.Add(field)
	p := New(doc, fastConfig(), zaptest.NewLogger(t))

	require.NoError(t, p.FillField(ctx, locator.Username, "standard_user"))
	assert.Equal(t, 2, countPrefix(doc.Calls(), "type #user-name"))

	el, err := doc.FindElement(ctx, "#user-name")
	require.NoError(t, err)
	v, err := doc.Value(ctx, el)
	require.NoError(t, err)
	assert.Equal(t, "standard_user", v)
}

func TestFillFieldFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("NeverVisible", func(t *testing.T) {
		cfg := fastConfig()
		cfg.TimingCfg.DefaultTimeout = 30 * time.Millisecond
		doc := drivertest.New()
		t.Cleanup(func() { _ = doc.Close(ctx) })
		doc.Add(&drivertest.Node{Queries: []string{"#password"}})
		p := New(doc, cfg, zaptest.NewLogger(t))

		err := p.FillField(ctx, locator.Password, "x")
		assert.ErrorIs(t, err, ErrElementUnavailable)
	})

	t.Run("RejectedTwice", func(t *testing.T) {
		doc := drivertest.New()
		t.Cleanup(func() { _ = doc.Close(ctx) })
		doc.Add(&drivertest.Node{Queries: []string{"#password"}, Visible: true, TypeRejections: 2})
		p := New(doc, fastConfig(), zaptest.NewLogger(t))

		err := p.FillField(ctx, locator.Password, "x")
		assert.ErrorIs(t, err, ErrInteractionRejected)
		assert.ErrorIs(t, err, driver.ErrNotInteractable)
	})

	t.Run("RejectedOnce", func(t *testing.T) {
		doc := drivertest.New()
		t.Cleanup(func() { _ = doc.Close(ctx) })
		doc.Add(&drivertest.Node{Queries: []string{"#password"}, Visible: true, TypeRejections: 1})
		p := New(doc, fastConfig(), zaptest.NewLogger(t))

		assert.NoError(t, p.FillField(ctx, locator.Password, "x"))
	})
}

func TestPredicatesWithoutOutcome(t *testing.T) {
	ctx := context.Background()
	p, _ := newSitePage(t, drivertest.SiteOptions{})
	require.NoError(t, p.Visit(ctx))

	text, ok := p.ErrorText(ctx, 30*time.Millisecond)
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.False(t, p.IsErrorVisible(ctx, 30*time.Millisecond))
	assert.False(t, p.IsAuthenticated(ctx, 30*time.Millisecond))
}

func TestErrorTextRetriesStaleReadWithinTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("RereadsReplacedBanner", func(t *testing.T) {
		doc := drivertest.New()
		t.Cleanup(func() { _ = doc.Close(ctx) })
		banner := &drivertest.Node{Queries: []string{`[data-test="error"]`}, Text: "stale", Visible: true, StaleReads: 1}
		doc.Add(banner)
		doc.After(20*time.Millisecond, func(d *drivertest.Document) {
			d.AddLocked(&drivertest.Node{Queries: []string{`[data-test="error"]`}, Text: " Epic sadface ", Visible: true})
		})
		p := New(doc, fastConfig(), zaptest.NewLogger(t))

		text, ok := p.ErrorText(ctx, 300*time.Millisecond)
		assert.True(t, ok)
		assert.Equal(t, "Epic sadface", text)
	})

	t.Run("BannerGoneAfterStaleRead", func(t *testing.T) {
		doc := drivertest.New()
		t.Cleanup(func() { _ = doc.Close(ctx) })
		doc.Add(&drivertest.Node{Queries: []string{`[data-test="error"]`}, Visible: true, StaleReads: 1})
		p := New(doc, fastConfig(), zaptest.NewLogger(t))

		const timeout = 200 * time.Millisecond
		start := time.Now()
		_, ok := p.ErrorText(ctx, timeout)
		elapsed := time.Since(start)

		assert.False(t, ok)
		assert.Less(t, elapsed, timeout+timeout/2, "the retry shares the caller's timeout")
	})
}

func TestLocatorOverrides(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.LocatorsCfg = map[string][]string{"username": {"#missing", `[data-test="username"]`}}
	site := drivertest.NewSite(baseURL, drivertest.SiteOptions{})
	t.Cleanup(func() { _ = site.Close(ctx) })
	p := New(site, cfg, zaptest.NewLogger(t))

	require.NoError(t, p.Visit(ctx))
	res, err := p.Login(ctx, "standard_user", "secret_sauce")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, res.Outcome)
}

func TestOutcomeAndStateStrings(t *testing.T) {
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "error_shown", ErrorShown.String())
	assert.Equal(t, "indeterminate", Indeterminate.String())
	assert.Equal(t, "form_filled", FormFilled.String())
	assert.Equal(t, "idle", Idle.String())
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
