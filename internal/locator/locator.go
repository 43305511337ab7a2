// Package locator maps the semantic roles of a login form to the driver-level
// CSS queries used to find them.
//
// A role may carry several equivalent queries, tried in priority order, so that
// small markup variants (an error banner exposed as either an h3 or a bare
// data-test attribute) resolve to the same element. Resolution never fails: a
// role with no matching query simply never appears, and the consuming wait
// reports the timeout.
package locator

import (
	"strings"
)

// Role names a semantic element of the form under test.
type Role string

const (
	Username            Role = "username"
	Password            Role = "password"
	Submit              Role = "submit"
	Error               Role = "error"
	AuthenticatedMarker Role = "authenticatedMarker"
)

// Roles lists every known role in a stable order.
var Roles = []Role{Username, Password, Submit, Error, AuthenticatedMarker}

// Locator is an immutable role plus its ordered query expressions.
type Locator struct {
	role    Role
	queries []string
}

// New builds a Locator. Empty queries are dropped.
func New(role Role, queries ...string) Locator {
	qs := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			qs = append(qs, q)
		}
	}
	return Locator{role: role, queries: qs}
}

// Role returns the semantic role.
func (l Locator) Role() Role { return l.role }

// Queries returns a copy of the query expressions in priority order.
func (l Locator) Queries() []string {
	out := make([]string, len(l.queries))
	copy(out, l.queries)
	return out
}

// String renders the locator for log fields.
func (l Locator) String() string {
	return string(l.role) + "[" + strings.Join(l.queries, " | ") + "]"
}

// Set is the locator table for one page.
type Set struct {
	byRole map[Role]Locator
}

// Defaults returns the locator table of the SauceDemo login page.
func Defaults() Set {
	return Set{byRole: map[Role]Locator{
		Username:            New(Username, "#user-name"),
		Password:            New(Password, "#password"),
		Submit:              New(Submit, "#login-button"),
		Error:               New(Error, `h3[data-test="error"]`, `[data-test="error"]`),
		AuthenticatedMarker: New(AuthenticatedMarker, ".inventory_list"),
	}}
}

// NewSet starts from Defaults and replaces any role named in overrides.
// Keys are matched case-insensitively because config loaders lowercase them.
func NewSet(overrides map[string][]string) Set {
	s := Defaults()
	for key, queries := range overrides {
		role, ok := lookupRole(key)
		if !ok {
			role = Role(key)
		}
		s.byRole[role] = New(role, queries...)
	}
	return s
}

// Resolve returns the locator for role. Unknown roles yield a locator with no
// queries, which no wait will ever find.
func (s Set) Resolve(role Role) Locator {
	if l, ok := s.byRole[role]; ok {
		return l
	}
	return Locator{role: role}
}

func lookupRole(key string) (Role, bool) {
	for _, r := range Roles {
		if strings.EqualFold(string(r), key) {
			return r, true
		}
	}
	return "", false
}
