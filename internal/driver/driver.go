// Package driver defines the browser capability set that the wait and page
// layers are written against. Concrete backends live in subpackages: cdp
// (Chrome DevTools Protocol via chromedp) and webdriver (W3C WebDriver via
// tebeka/selenium). Both translate backend-specific failures into the sentinel
// errors declared here, so nothing above this package inspects driver error text.
package driver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no element currently matches the query.
	ErrNotFound = errors.New("element not found")
	// ErrStale means a previously located element is no longer attached to the document.
	ErrStale = errors.New("stale element reference")
	// ErrNotInteractable means the element exists but refused the interaction
	// (obscured, zero-sized, disabled, mid-animation).
	ErrNotInteractable = errors.New("element not interactable")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("driver closed")
)

// Element is an opaque handle to a located DOM element. Handles belong to the
// driver that produced them.
type Element interface {
	// Query is the expression that located the element.
	Query() string
}

// Cookie is the driver-neutral view of a browser cookie.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Driver is the capability set a browser backend must provide.
//
// ExecuteScript takes a function body in WebDriver style: it may read its
// arguments through `arguments[i]`, Element arguments arrive as DOM nodes, and
// the value of a `return` statement is decoded into string, bool, float64, nil,
// []any or map[string]any.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	FindElement(ctx context.Context, query string) (Element, error)
	IsVisible(ctx context.Context, el Element) (bool, error)
	Click(ctx context.Context, el Element) error
	Clear(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	Value(ctx context.Context, el Element) (string, error)
	Text(ctx context.Context, el Element) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	ExecuteScript(ctx context.Context, script string, args ...any) (any, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	DeleteCookies(ctx context.Context) error
	Sleep(ctx context.Context, d time.Duration) error
	Close(ctx context.Context) error
}

// Artifacts is a snapshot of the page used for failure diagnostics.
type Artifacts struct {
	URL        string
	Title      string
	HTML       string
	Screenshot []byte // PNG; empty when the backend cannot capture
}

// ArtifactCollector is an optional Driver capability.
type ArtifactCollector interface {
	CollectArtifacts(ctx context.Context) (*Artifacts, error)
}

// Sleep pauses for d or until ctx is done. Backends without a native pause use it.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsTransient reports whether err is a condition worth one more try after a
// short grace delay.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStale) || errors.Is(err, ErrNotInteractable) || errors.Is(err, ErrNotFound)
}
