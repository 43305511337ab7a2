// Package cdp implements driver.Driver on top of chromedp, talking to a
// locally launched Chrome over the DevTools protocol.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver"
)

const (
	shutdownTimeout = 10 * time.Second
	artifactTimeout = 15 * time.Second
)

// Driver is one Chrome tab driven through CDP.
type Driver struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
}

var (
	_ driver.Driver            = (*Driver)(nil)
	_ driver.ArtifactCollector = (*Driver)(nil)
)

type element struct {
	node  *cdproto.Node
	query string
}

func (e *element) Query() string { return e.query }

// AllocatorOptions translates the browser configuration into exec allocator flags.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Open launches Chrome and attaches to a fresh tab. The tab lives until Close
// or until ctx is canceled.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	id := uuid.New().String()
	log := logger.Named("cdp").With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	sugar := log.Sugar()
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	var tasks chromedp.Tasks
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(cfg.Viewport.Width), int64(cfg.Viewport.Height)))
	}
	// The first Run starts the browser and creates the target.
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return &Driver{
		id:          id,
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      log,
	}, nil
}

// ID is the session identifier used in logs.
func (d *Driver) ID() string { return d.id }

// run executes actions bound both to the tab's lifetime and to ctx.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return driver.ErrClosed
	}
	runCtx, cancel := bindContext(d.ctx, ctx)
	defer cancel()
	return normalizeError(ctx, chromedp.Run(runCtx, actions...))
}

// normalizeError maps CDP failure text onto the driver sentinels.
func normalizeError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "No node with given id"),
		strings.Contains(msg, "Could not find node"),
		strings.Contains(msg, "Node is detached"),
		strings.Contains(msg, "stale element"):
		return fmt.Errorf("%w: %v", driver.ErrStale, err)
	case strings.Contains(msg, "Could not compute box model"),
		strings.Contains(msg, "Node does not have a layout object"),
		strings.Contains(msg, "not interactable"),
		strings.Contains(msg, "not focusable"):
		return fmt.Errorf("%w: %v", driver.ErrNotInteractable, err)
	}
	return err
}

func (d *Driver) element(el driver.Element) (*element, error) {
	e, ok := el.(*element)
	if !ok || e.node == nil {
		return nil, fmt.Errorf("cdp: element %T was not produced by this driver", el)
	}
	return e, nil
}

// Navigate loads url and waits for the load event.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if d.cfg.PageLoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.PageLoadTimeout)
		defer cancel()
	}
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// FindElement returns the first node matching the CSS query without waiting.
func (d *Driver) FindElement(ctx context.Context, query string) (driver.Element, error) {
	var nodes []*cdproto.Node
	if err := d.run(ctx, chromedp.Nodes(query, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, driver.ErrNotFound
	}
	return &element{node: nodes[0], query: query}, nil
}

const (
	jsVisible = `function() {
		const r = this.getBoundingClientRect();
		const s = window.getComputedStyle(this);
		return r.width > 0 && r.height > 0 && s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0';
	}`
	// jsClickable scrolls the node into view and reports whether it would
	// receive a click at its center point.
	jsClickable = `function() {
		this.scrollIntoView({block: 'center', inline: 'center'});
		const r = this.getBoundingClientRect();
		if (r.width === 0 || r.height === 0 || this.disabled) return false;
		const top = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
		return top === null || top === this || this.contains(top);
	}`
	jsClear = `function() {
		if (this.disabled || this.readOnly) return false;
		this.value = '';
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	}`
	jsValue = `function() { return this.value === undefined || this.value === null ? '' : String(this.value); }`
	jsText  = `function() { return this.innerText || this.textContent || ''; }`
)

func (d *Driver) IsVisible(ctx context.Context, el driver.Element) (bool, error) {
	var visible bool
	if err := d.callOn(ctx, el, jsVisible, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// Click refuses with ErrNotInteractable when another element would receive
// the click, then dispatches a real mouse click at the node's center.
func (d *Driver) Click(ctx context.Context, el driver.Element) error {
	e, err := d.element(el)
	if err != nil {
		return err
	}
	var clickable bool
	if err := d.callOn(ctx, el, jsClickable, &clickable); err != nil {
		return err
	}
	if !clickable {
		return fmt.Errorf("%w: %s is obscured or disabled", driver.ErrNotInteractable, e.query)
	}
	return d.run(ctx, chromedp.MouseClickNode(e.node))
}

func (d *Driver) Clear(ctx context.Context, el driver.Element) error {
	var cleared bool
	if err := d.callOn(ctx, el, jsClear, &cleared); err != nil {
		return err
	}
	if !cleared {
		return fmt.Errorf("%w: %s is disabled or read-only", driver.ErrNotInteractable, el.Query())
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, el driver.Element, text string) error {
	e, err := d.element(el)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return d.run(ctx, chromedp.KeyEventNode(e.node, text))
}

func (d *Driver) Value(ctx context.Context, el driver.Element) (string, error) {
	return d.stringOn(ctx, el, jsValue)
}

func (d *Driver) Text(ctx context.Context, el driver.Element) (string, error) {
	return d.stringOn(ctx, el, jsText)
}

func (d *Driver) stringOn(ctx context.Context, el driver.Element, fn string) (string, error) {
	var v string
	if err := d.callOn(ctx, el, fn, &v); err != nil {
		return "", err
	}
	return v, nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := d.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// callOn invokes fn with the element bound to `this` and decodes the returned
// value into out.
func (d *Driver) callOn(ctx context.Context, el driver.Element, fn string, out any) error {
	e, err := d.element(el)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		res, exc, err := runtime.CallFunctionOn(guardConnected(fn)).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return decodeInto(res, out)
	}))
}

// guardConnected makes fn throw a recognizable error when the node has left
// the document.
func guardConnected(fn string) string {
	return `function(...args) {
		if (!this.isConnected) { throw new Error('stale element reference'); }
		return (` + fn + `).apply(this, args);
	}`
}

func decodeInto(res *runtime.RemoteObject, out any) error {
	if res == nil || res.Type == runtime.TypeUndefined || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value), out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

// ExecuteScript runs body as a function. With element arguments it is called
// through Runtime.callFunctionOn so the nodes arrive as live DOM objects;
// otherwise the arguments are inlined as JSON and the call is evaluated.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	fn := "function() {\n" + script + "\n}"
	var out any

	var anchor *element
	for _, a := range args {
		if e, ok := a.(*element); ok {
			anchor = e
			break
		}
	}

	if anchor == nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode script arguments: %w", err)
		}
		if args == nil {
			encoded = []byte("[]")
		}
		expr := "(" + fn + ").apply(null, " + string(encoded) + ")"
		err = d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			res, exc, err := runtime.Evaluate(expr).WithReturnByValue(true).WithAwaitPromise(true).Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return exc
			}
			return decodeInto(res, &out)
		}))
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		callArgs := make([]*runtime.CallArgument, 0, len(args))
		var objects []runtime.RemoteObjectID
		defer func() {
			for _, id := range objects {
				_ = runtime.ReleaseObject(id).Do(ctx)
			}
		}()
		for _, a := range args {
			if e, ok := a.(*element); ok {
				obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
				if err != nil {
					return err
				}
				objects = append(objects, obj.ObjectID)
				callArgs = append(callArgs, &runtime.CallArgument{ObjectID: obj.ObjectID})
				continue
			}
			b, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("encode script argument: %w", err)
			}
			callArgs = append(callArgs, &runtime.CallArgument{Value: b})
		}
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(objects[0]).
			WithArguments(callArgs).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return decodeInto(res, &out)
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) Cookies(ctx context.Context) ([]driver.Cookie, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
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
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.ClearBrowserCookies().Do(ctx)
	}))
}

func (d *Driver) Sleep(ctx context.Context, dur time.Duration) error {
	return d.run(ctx, chromedp.Sleep(dur))
}

// CollectArtifacts captures the page even when ctx has already expired, so a
// failing step can still be diagnosed.
func (d *Driver) CollectArtifacts(ctx context.Context) (*driver.Artifacts, error) {
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), artifactTimeout)
	defer cancel()

	a := &driver.Artifacts{}
	if err := d.run(captureCtx,
		chromedp.Location(&a.URL),
		chromedp.Title(&a.Title),
		chromedp.OuterHTML("html", &a.HTML, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("capture page state: %w", err)
	}
	if err := d.run(captureCtx, chromedp.CaptureScreenshot(&a.Screenshot)); err != nil {
		d.logger.Warn("Could not capture screenshot.", zap.Error(err))
	}
	return a, nil
}

// Close shuts the browser down. Subsequent calls are no-ops.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.logger.Debug("Closing browser session.")
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(d.ctx) }()

	var err error
	select {
	case err = <-done:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	case <-time.After(shutdownTimeout):
		d.logger.Warn("Browser shutdown timed out; forcing.", zap.Duration("timeout", shutdownTimeout))
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.cancel()
	d.allocCancel()
	return err
}
