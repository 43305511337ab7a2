// Package webdriver implements driver.Driver against a W3C WebDriver remote
// end (Selenium server, chromedriver) using tebeka/selenium.
package webdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver"
)

// Remote is the subset of selenium.WebDriver the adapter uses.
type Remote interface {
	Get(url string) error
	FindElement(by, value string) (selenium.WebElement, error)
	CurrentURL() (string, error)
	Title() (string, error)
	PageSource() (string, error)
	ExecuteScript(script string, args []interface{}) (interface{}, error)
	GetCookies() ([]selenium.Cookie, error)
	DeleteAllCookies() error
	Screenshot() ([]byte, error)
	Quit() error
}

var _ Remote = selenium.WebDriver(nil)

const jsValue = "return arguments[0].value;"

// Driver is one WebDriver session.
type Driver struct {
	id     string
	wd     Remote
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

var (
	_ driver.Driver            = (*Driver)(nil)
	_ driver.ArtifactCollector = (*Driver)(nil)
)

type element struct {
	we    selenium.WebElement
	query string
}

func (e *element) Query() string { return e.query }

// Capabilities builds the Chrome capabilities requested from the remote end.
func Capabilities(cfg config.BrowserConfig) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": "chrome"}
	if cfg.IgnoreTLSErrors {
		caps["acceptInsecureCerts"] = true
	}
	args := []string{"--no-sandbox", "--disable-gpu", "--disable-dev-shm-usage"}
	if cfg.Headless {
		args = append(args, "--headless=new")
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", cfg.Viewport.Width, cfg.Viewport.Height))
	}
	for _, a := range cfg.Args {
		if !strings.HasPrefix(a, "--") {
			a = "--" + a
		}
		args = append(args, a)
	}
	caps.AddChrome(chrome.Capabilities{Path: cfg.ExecPath, Args: args, W3C: true})
	return caps
}

// Open starts a session on the remote end at cfg.WebDriverURL.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wd, err := selenium.NewRemote(Capabilities(cfg), cfg.WebDriverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to start webdriver session at %s: %w", cfg.WebDriverURL, err)
	}
	d := New(wd, logger)

	// Waits are driven by the poll loops above this package; implicit waits would
	// turn every FindElement into a blocking call.
	if err := wd.SetImplicitWaitTimeout(0); err != nil {
		d.logger.Warn("Could not disable implicit wait.", zap.Error(err))
	}
	if cfg.PageLoadTimeout > 0 {
		if err := wd.SetPageLoadTimeout(cfg.PageLoadTimeout); err != nil {
			d.logger.Warn("Could not set page load timeout.", zap.Error(err))
		}
	}
	if cfg.ScriptTimeout > 0 {
		if err := wd.SetAsyncScriptTimeout(cfg.ScriptTimeout); err != nil {
			d.logger.Warn("Could not set script timeout.", zap.Error(err))
		}
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		if err := wd.ResizeWindow("", cfg.Viewport.Width, cfg.Viewport.Height); err != nil {
			d.logger.Debug("Could not resize window.", zap.Error(err))
		}
	}
	d.logger.Info("WebDriver session started.", zap.String("remote", cfg.WebDriverURL))
	return d, nil
}

// New wraps an existing remote session.
func New(wd Remote, logger *zap.Logger) *Driver {
	id := uuid.New().String()
	return &Driver{
		id:     id,
		wd:     wd,
		logger: logger.Named("webdriver").With(zap.String("session_id", id)),
	}
}

// ID is the session identifier used in logs.
func (d *Driver) ID() string { return d.id }

// call runs fn on its own goroutine so ctx can abandon a slow remote call.
// The HTTP request itself keeps going until the remote end answers.
func (d *Driver) call(ctx context.Context, fn func() error) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return driver.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return mapError(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mapError translates W3C error codes into driver sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	code := err.Error()
	var se *selenium.Error
	if errors.As(err, &se) {
		code = se.Err
	}
	switch {
	case strings.Contains(code, "no such element"):
		return fmt.Errorf("%w: %v", driver.ErrNotFound, err)
	case strings.Contains(code, "stale element reference"):
		return fmt.Errorf("%w: %v", driver.ErrStale, err)
	case strings.Contains(code, "element not interactable"),
		strings.Contains(code, "element click intercepted"),
		strings.Contains(code, "invalid element state"):
		return fmt.Errorf("%w: %v", driver.ErrNotInteractable, err)
	case strings.Contains(code, "invalid session id"):
		return fmt.Errorf("%w: %v", driver.ErrClosed, err)
	}
	return err
}

func (d *Driver) element(el driver.Element) (*element, error) {
	e, ok := el.(*element)
	if !ok || e.we == nil {
		return nil, fmt.Errorf("webdriver: element %T was not produced by this driver", el)
	}
	return e, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.call(ctx, func() error { return d.wd.Get(url) }); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *Driver) FindElement(ctx context.Context, query string) (driver.Element, error) {
	var we selenium.WebElement
	err := d.call(ctx, func() error {
		var err error
		we, err = d.wd.FindElement(selenium.ByCSSSelector, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &element{we: we, query: query}, nil
}

func (d *Driver) IsVisible(ctx context.Context, el driver.Element) (bool, error) {
	e, err := d.element(el)
	if err != nil {
		return false, err
	}
	var visible bool
	err = d.call(ctx, func() error {
		var err error
		visible, err = e.we.IsDisplayed()
		return err
	})
	if err != nil {
		return false, err
	}
	return visible, nil
}

func (d *Driver) Click(ctx context.Context, el driver.Element) error {
	e, err := d.element(el)
	if err != nil {
		return err
	}
	return d.call(ctx, e.we.Click)
}

func (d *Driver) Clear(ctx context.Context, el driver.Element) error {
	e, err := d.element(el)
	if err != nil {
		return err
	}
	return d.call(ctx, e.we.Clear)
}

func (d *Driver) Type(ctx context.Context, el driver.Element, text string) error {
	e, err := d.element(el)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return d.call(ctx, func() error { return e.we.SendKeys(text) })
}

func (d *Driver) Value(ctx context.Context, el driver.Element) (string, error) {
	e, err := d.element(el)
	if err != nil {
		return "", err
	}
	// The value attribute keeps the initial markup value; the property tracks typed input.
	return d.stringCall(ctx, func() (string, error) {
		v, err := d.wd.ExecuteScript(jsValue, []interface{}{e.we})
		if err != nil {
			return "", err
		}
		switch v := v.(type) {
		case nil:
			return "", nil
		case string:
			return v, nil
		default:
			return fmt.Sprint(v), nil
		}
	})
}

func (d *Driver) Text(ctx context.Context, el driver.Element) (string, error) {
	e, err := d.element(el)
	if err != nil {
		return "", err
	}
	return d.stringCall(ctx, e.we.Text)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	return d.stringCall(ctx, d.wd.CurrentURL)
}

func (d *Driver) stringCall(ctx context.Context, fn func() (string, error)) (string, error) {
	var s string
	err := d.call(ctx, func() error {
		var err error
		s, err = fn()
		return err
	})
	if err != nil {
		return "", err
	}
	return s, nil
}

// ExecuteScript passes Element arguments through as WebDriver element references.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	wireArgs := make([]interface{}, len(args))
	for i, a := range args {
		if e, ok := a.(*element); ok {
			wireArgs[i] = e.we
			continue
		}
		wireArgs[i] = a
	}
	var out any
	err := d.call(ctx, func() error {
		var err error
		out, err = d.wd.ExecuteScript(script, wireArgs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) Cookies(ctx context.Context) ([]driver.Cookie, error) {
	var cookies []selenium.Cookie
	err := d.call(ctx, func() error {
		var err error
		cookies, err = d.wd.GetCookies()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]driver.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, driver.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	return out, nil
}

func (d *Driver) DeleteCookies(ctx context.Context) error {
	return d.call(ctx, d.wd.DeleteAllCookies)
}

func (d *Driver) Sleep(ctx context.Context, dur time.Duration) error {
	return driver.Sleep(ctx, dur)
}

func (d *Driver) CollectArtifacts(ctx context.Context) (*driver.Artifacts, error) {
	a := &driver.Artifacts{}
	var err error
	if a.URL, err = d.stringCall(ctx, d.wd.CurrentURL); err != nil {
		return nil, fmt.Errorf("capture page state: %w", err)
	}
	if a.Title, err = d.stringCall(ctx, d.wd.Title); err != nil {
		d.logger.Debug("Could not read title.", zap.Error(err))
	}
	if a.HTML, err = d.stringCall(ctx, d.wd.PageSource); err != nil {
		d.logger.Warn("Could not read page source.", zap.Error(err))
	}
	var shot []byte
	err = d.call(ctx, func() error {
		var err error
		shot, err = d.wd.Screenshot()
		return err
	})
	if err != nil {
		d.logger.Warn("Could not capture screenshot.", zap.Error(err))
		return a, nil
	}
	a.Screenshot = shot
	return a, nil
}

// Close ends the remote session. Subsequent calls are no-ops.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.logger.Debug("Quitting WebDriver session.")
	done := make(chan error, 1)
	go func() { done <- d.wd.Quit() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("quit webdriver session: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
