// Package drivertest provides an in-memory, scriptable implementation of
// driver.Driver. A Document holds a flat list of nodes addressed by exact query
// strings; tests mutate it directly or schedule mutations with After to model a
// page whose DOM changes while a wait is in flight.
package drivertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/gatecheck/internal/driver"
)

// Node is one element of the fake document.
type Node struct {
	Queries []string
	Text    string
	Value   string
	Visible bool
	// ClickRejections is how many native clicks fail with ErrNotInteractable
	// before one succeeds. Script clicks ignore it.
	ClickRejections int
	// TypeRejections is the same for Type.
	TypeRejections int
	// DropKeystrokes makes Type silently lose its input this many times.
	DropKeystrokes int
	// StaleReads makes Text detach the node and fail with ErrStale this many
	// times, as when a banner is re-rendered mid-read.
	StaleReads int
	OnClick    func(d *Document)

	attached bool
}

func (n *Node) matches(query string) bool {
	for _, q := range n.Queries {
		if q == query {
			return true
		}
	}
	return false
}

type handle struct {
	node  *Node
	query string
}

func (h *handle) Query() string { return h.query }

// ScriptFunc handles ExecuteScript calls whose body contains a registered substring.
type ScriptFunc func(d *Document, args []any) (any, error)

type scriptHandler struct {
	match string
	fn    ScriptFunc
}

// Document is a fake browser tab. All methods are safe for concurrent use.
type Document struct {
	mu             sync.Mutex
	url            string
	title          string
	readyState     string
	nodes          []*Node
	cookies        []driver.Cookie
	localStorage   map[string]string
	sessionStorage map[string]string
	scripts        []scriptHandler
	timers         []*time.Timer
	calls          []string
	closed         bool

	// navigateHook replaces the default navigation behavior when set.
	navigateHook func(d *Document, url string) error
	// failNavigations is the number of upcoming Navigate calls that fail.
	failNavigations int
	// failFinds makes FindElement return a hard error this many times.
	failFinds int
}

var (
	_ driver.Driver            = (*Document)(nil)
	_ driver.ArtifactCollector = (*Document)(nil)
)

// New returns an empty, loaded document at about:blank.
func New() *Document {
	return &Document{
		url:            "about:blank",
		readyState:     "complete",
		localStorage:   map[string]string{},
		sessionStorage: map[string]string{},
	}
}

// -- Test-side mutation API --

// Add attaches nodes to the document.
func (d *Document) Add(nodes ...*Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(nodes...)
}

func (d *Document) addLocked(nodes ...*Node) {
	for _, n := range nodes {
		n.attached = true
		d.nodes = append(d.nodes, n)
	}
}

// Remove detaches n, turning existing handles to it stale.
func (d *Document) Remove(n *Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(n)
}

func (d *Document) removeLocked(n *Node) {
	n.attached = false
	kept := d.nodes[:0]
	for _, other := range d.nodes {
		if other != n {
			kept = append(kept, other)
		}
	}
	d.nodes = kept
}

// resetLocked detaches every node.
func (d *Document) resetLocked() {
	for _, n := range d.nodes {
		n.attached = false
	}
	d.nodes = nil
}

// Mutate runs fn with the document locked.
func (d *Document) Mutate(fn func(d *Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

// After schedules fn to mutate the document once delay has elapsed.
func (d *Document) After(delay time.Duration, fn func(d *Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.afterLocked(delay, fn)
}

func (d *Document) afterLocked(delay time.Duration, fn func(d *Document)) {
	if d.closed {
		return
	}
	t := time.AfterFunc(delay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.closed {
			fn(d)
		}
	})
	d.timers = append(d.timers, t)
}

// SetURL changes the current location without touching nodes. Call from Mutate/After.
func (d *Document) SetURL(u string) { d.url = u }

// SetReadyState changes document.readyState. Call from Mutate/After.
func (d *Document) SetReadyState(s string) { d.readyState = s }

// AddLocked attaches nodes from inside Mutate/After.
func (d *Document) AddLocked(nodes ...*Node) { d.addLocked(nodes...) }

// RemoveLocked detaches n from inside Mutate/After.
func (d *Document) RemoveLocked(n *Node) { d.removeLocked(n) }

// SetCookie stores a cookie. Call from Mutate/After.
func (d *Document) SetCookie(c driver.Cookie) { d.cookies = append(d.cookies, c) }

// SetStorage writes a localStorage and sessionStorage entry. Call from Mutate/After.
func (d *Document) SetStorage(key, value string) {
	d.localStorage[key] = value
	d.sessionStorage[key] = value
}

// HandleScript registers fn for scripts containing match.
func (d *Document) HandleScript(match string, fn ScriptFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = append(d.scripts, scriptHandler{match: match, fn: fn})
}

// FailNavigations makes the next n Navigate calls fail.
func (d *Document) FailNavigations(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNavigations = n
}

// FailFinds makes the next n FindElement calls fail with a hard error.
func (d *Document) FailFinds(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFinds = n
}

// OnNavigate installs the navigation behavior.
func (d *Document) OnNavigate(fn func(d *Document, url string) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigateHook = fn
}

// Calls returns the interaction log in order.
func (d *Document) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// ClientState returns copies of cookies and both storage scopes.
func (d *Document) ClientState() ([]driver.Cookie, map[string]string, map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cookies := append([]driver.Cookie(nil), d.cookies...)
	local := make(map[string]string, len(d.localStorage))
	for k, v := range d.localStorage {
		local[k] = v
	}
	session := make(map[string]string, len(d.sessionStorage))
	for k, v := range d.sessionStorage {
		session[k] = v
	}
	return cookies, local, session
}

func (d *Document) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *Document) resolve(el driver.Element) (*Node, error) {
	h, ok := el.(*handle)
	if !ok {
		return nil, fmt.Errorf("drivertest: foreign element handle %T", el)
	}
	if !h.node.attached {
		return nil, driver.ErrStale
	}
	return h.node, nil
}

// -- driver.Driver --

func (d *Document) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrClosed
	}
	d.record("navigate %s", url)
	if d.failNavigations > 0 {
		d.failNavigations--
		return fmt.Errorf("net::ERR_TIMED_OUT loading %s", url)
	}
	d.resetLocked()
	d.url = url
	d.readyState = "complete"
	if d.navigateHook != nil {
		return d.navigateHook(d, url)
	}
	return nil
}

func (d *Document) FindElement(ctx context.Context, query string) (driver.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrClosed
	}
	if d.failFinds > 0 {
		d.failFinds--
		return nil, fmt.Errorf("drivertest: injected find failure for %q", query)
	}
	for _, n := range d.nodes {
		if n.matches(query) {
			return &handle{node: n, query: query}, nil
		}
	}
	return nil, driver.ErrNotFound
}

func (d *Document) IsVisible(ctx context.Context, el driver.Element) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.resolve(el)
	if err != nil {
		return false, err
	}
	return n.Visible, nil
}

func (d *Document) Click(ctx context.Context, el driver.Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.resolve(el)
	if err != nil {
		return err
	}
	if !n.Visible || n.ClickRejections > 0 {
		if n.ClickRejections > 0 {
			n.ClickRejections--
		}
		d.record("click-rejected %s", el.Query())
		return driver.ErrNotInteractable
	}
	d.record("click %s", el.Query())
	if n.OnClick != nil {
		n.OnClick(d)
	}
	return nil
}

func (d *Document) Clear(ctx context.Context, el driver.Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.resolve(el)
	if err != nil {
		return err
	}
	d.record("clear %s", el.Query())
	n.Value = ""
	return nil
}

func (d *Document) Type(ctx context.Context, el driver.Element, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.resolve(el)
	if err != nil {
		return err
	}
	if n.TypeRejections > 0 {
		n.TypeRejections--
		return driver.ErrNotInteractable
	}
	d.record("type %s %q", el.Query(), text)
	if n.DropKeystrokes > 0 {
		n.DropKeystrokes--
		return nil
	}
	n.Value += text
	return nil
}

func (d *Document) Value(ctx context.Context, el driver.Element) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.resolve(el)
	if err != nil {
		return "", err
	}
	return n.Value, nil
}

func (d *Document) Text(ctx context.Context, el driver.Element) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.resolve(el)
	if err != nil {
		return "", err
	}
	if n.StaleReads > 0 {
		n.StaleReads--
		d.removeLocked(n)
		return "", driver.ErrStale
	}
	return n.Text, nil
}

func (d *Document) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", driver.ErrClosed
	}
	return d.url, nil
}

// ExecuteScript understands the handful of scripts the page layer sends
// (readyState probe, storage clearing, forced click) plus registered handlers.
func (d *Document) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrClosed
	}
	for _, h := range d.scripts {
		if strings.Contains(script, h.match) {
			return h.fn(d, args)
		}
	}
	switch {
	case strings.Contains(script, "document.readyState"):
		return d.readyState, nil
	case strings.Contains(script, "localStorage.clear"):
		if d.url == "about:blank" {
			return nil, fmt.Errorf("SecurityError: storage is disabled inside 'data:' and 'about:' URLs")
		}
		d.record("clear-storage")
		d.localStorage = map[string]string{}
		d.sessionStorage = map[string]string{}
		return nil, nil
	case strings.Contains(script, ".click()"):
		if len(args) == 0 {
			return nil, fmt.Errorf("drivertest: click script without element argument")
		}
		el, ok := args[0].(driver.Element)
		if !ok {
			return nil, fmt.Errorf("drivertest: click script argument is %T", args[0])
		}
		n, err := d.resolve(el)
		if err != nil {
			return nil, err
		}
		d.record("script-click %s", el.Query())
		if n.OnClick != nil {
			n.OnClick(d)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("drivertest: unhandled script %q", script)
}

func (d *Document) Cookies(ctx context.Context) ([]driver.Cookie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrClosed
	}
	return append([]driver.Cookie(nil), d.cookies...), nil
}

func (d *Document) DeleteCookies(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrClosed
	}
	d.record("delete-cookies")
	d.cookies = nil
	return nil
}

func (d *Document) Sleep(ctx context.Context, dur time.Duration) error {
	return driver.Sleep(ctx, dur)
}

// Close stops pending mutations. It is idempotent.
func (d *Document) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
	return nil
}

// Closed reports whether Close has been called.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Document) CollectArtifacts(ctx context.Context) (*driver.Artifacts, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, n := range d.nodes {
		fmt.Fprintf(&b, "<div data-query=%q>%s</div>", strings.Join(n.Queries, ","), n.Text)
	}
	b.WriteString("</body></html>")
	return &driver.Artifacts{URL: d.url, Title: d.title, HTML: b.String()}, nil
}
