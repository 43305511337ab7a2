package cdp

import "context"

// bindContext scopes a chromedp call to tab, which holds the target
// connection and supplies values, and also ends it when call is done.
// The caller's deadline is not copied; chromedp only consults tab's.
func bindContext(tab, call context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(call, cancel)
	return bound, func() {
		stop()
		cancel()
	}
}
