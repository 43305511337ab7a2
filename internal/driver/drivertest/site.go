package drivertest

import (
	"strings"
	"time"

	"github.com/xkilldash9x/gatecheck/internal/driver"
)

// SauceDemo rejection banners, verbatim.
const (
	MsgNoMatch          = "Epic sadface: Username and password do not match any user in this service"
	MsgLockedOut        = "Epic sadface: Sorry, this user has been locked out."
	MsgUsernameRequired = "Epic sadface: Username is required"
	MsgPasswordRequired = "Epic sadface: Password is required"
)

const (
	siteTitle     = "Swag Labs"
	validPassword = "secret_sauce"
)

// SiteOptions tunes the simulated login page's latency and quirks.
type SiteOptions struct {
	// FormDelay is how long after navigation the form becomes visible. The
	// document stays in readyState "loading" until then.
	FormDelay time.Duration
	// ResponseDelay is how long after submit the outcome appears.
	ResponseDelay time.Duration
	// Silent makes submit produce no outcome at all.
	Silent bool
	// SubmitClickRejections makes the submit button refuse this many native clicks.
	SubmitClickRejections int
	// BannerAsHeading renders the error banner as an h3, so the primary error
	// query matches. Otherwise only the attribute form matches.
	BannerAsHeading bool
}

// Site simulates the SauceDemo login page on top of a Document.
type Site struct {
	*Document
	opts    SiteOptions
	baseURL string
}

// NewSite returns a Document that renders the login form on every navigation
// under baseURL.
func NewSite(baseURL string, opts SiteOptions) *Site {
	s := &Site{Document: New(), opts: opts, baseURL: baseURL}
	s.OnNavigate(s.navigate)
	return s
}

// Users SauceDemo accepts with the shared password.
var knownUsers = map[string]bool{
	"standard_user":           true,
	"locked_out_user":         true,
	"problem_user":            true,
	"performance_glitch_user": true,
	"error_user":              true,
	"visual_user":             true,
}

func (s *Site) navigate(d *Document, url string) error {
	d.title = siteTitle
	// Visiting the origin plants client state, like the real page does.
	d.SetStorage("backtrace-guid", "3f1c")
	if !strings.HasPrefix(url, s.baseURL) {
		return nil
	}
	if strings.Contains(url, "inventory") && s.authenticated(d) {
		d.addLocked(inventoryList())
		return nil
	}
	if s.opts.FormDelay > 0 {
		d.readyState = "loading"
		d.afterLocked(s.opts.FormDelay, func(d *Document) {
			d.readyState = "complete"
			s.renderForm(d)
		})
		return nil
	}
	s.renderForm(d)
	return nil
}

func (s *Site) authenticated(d *Document) bool {
	for _, c := range d.cookies {
		if c.Name == "session-username" {
			return true
		}
	}
	return false
}

func (s *Site) renderForm(d *Document) {
	user := &Node{Queries: []string{"#user-name", `[data-test="username"]`}, Visible: true}
	pass := &Node{Queries: []string{"#password", `[data-test="password"]`}, Visible: true}
	submit := &Node{
		Queries:         []string{"#login-button", `[data-test="login-button"]`},
		Visible:         true,
		ClickRejections: s.opts.SubmitClickRejections,
	}
	submit.OnClick = func(d *Document) { s.submit(d, user.Value, pass.Value) }
	d.addLocked(user, pass, submit)
}

func (s *Site) submit(d *Document, username, password string) {
	if s.opts.Silent {
		return
	}
	msg := ""
	switch {
	case username == "":
		msg = MsgUsernameRequired
	case password == "":
		msg = MsgPasswordRequired
	case !knownUsers[username] || password != validPassword:
		msg = MsgNoMatch
	case username == "locked_out_user":
		msg = MsgLockedOut
	}
	d.afterLocked(s.opts.ResponseDelay, func(d *Document) {
		if msg != "" {
			s.showError(d, msg)
			return
		}
		d.resetLocked()
		d.cookies = append(d.cookies, driver.Cookie{Name: "session-username", Value: username, Domain: "www.saucedemo.com", Path: "/"})
		d.url = strings.TrimSuffix(s.baseURL, "/") + "/inventory.html"
		d.addLocked(inventoryList())
	})
}

func (s *Site) showError(d *Document, msg string) {
	for _, n := range d.nodes {
		if n.matches(`[data-test="error"]`) {
			d.removeLocked(n)
			break
		}
	}
	queries := []string{`[data-test="error"]`}
	if s.opts.BannerAsHeading {
		queries = append([]string{`h3[data-test="error"]`}, queries...)
	}
	d.addLocked(&Node{Queries: queries, Text: msg, Visible: true})
}

func inventoryList() *Node {
	return &Node{Queries: []string{".inventory_list"}, Visible: true}
}
