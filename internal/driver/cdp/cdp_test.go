package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver"
)

func TestNormalizeError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		msg  string
		want error
	}{
		{"could not resolve node: No node with given id found (-32000)", driver.ErrStale},
		{"exception \"Uncaught\": Error: stale element reference", driver.ErrStale},
		{"Could not compute box model. (-32000)", driver.ErrNotInteractable},
		{"Element is not focusable (-32000)", driver.ErrNotInteractable},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, normalizeError(ctx, errors.New(tt.msg)), tt.want, tt.msg)
	}

	other := errors.New("websocket: close 1006")
	assert.Same(t, other, normalizeError(ctx, other))
	assert.NoError(t, normalizeError(ctx, nil))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, normalizeError(canceled, errors.New("No node with given id")), context.Canceled)
}

func TestAllocatorOptions(t *testing.T) {
	base := AllocatorOptions(config.BrowserConfig{})
	full := AllocatorOptions(config.BrowserConfig{
		Headless:        true,
		ExecPath:        "/opt/chrome/chrome",
		IgnoreTLSErrors: true,
		Viewport:        config.ViewportConfig{Width: 800, Height: 600},
		Args:            []string{"--lang=en-US", "--mute-audio"},
	})
	assert.Len(t, full, len(base)+6)
}

func TestGuardConnectedWrapsFunction(t *testing.T) {
	wrapped := guardConnected(jsValue)
	assert.Contains(t, wrapped, "this.isConnected")
	assert.Contains(t, wrapped, jsValue)
}

func TestForeignElementRejected(t *testing.T) {
	d := &Driver{}
	_, err := d.element(fakeElement("#x"))
	assert.Error(t, err)
}

type fakeElement string

func (f fakeElement) Query() string { return string(f) }

// -- Browser integration --

const loginPage = `<!doctype html>
<html><head><title>Login</title></head><body>
<form onsubmit="return false;">
  <input id="user" type="text">
  <input id="pass" type="password">
  <div id="veil" style="position:fixed;inset:0;background:transparent"></div>
  <button id="go" type="button">Sign in</button>
  <p id="hidden" style="display:none">secret</p>
</form>
<script>
  document.getElementById('go').addEventListener('click', function () {
    const h = document.createElement('h3');
    h.setAttribute('data-test', 'error');
    h.textContent = 'Hello ' + document.getElementById('user').value;
    document.body.appendChild(h);
  });
</script>
</body></html>`

func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping browser integration test in short mode.")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("Chrome not found in PATH, skipping browser integration test.")
}

func TestDriverAgainstLocalPage(t *testing.T) {
	requireChrome(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loginPage)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	cfg := config.NewDefaultConfig().Browser()
	d, err := Open(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	require.NoError(t, d.Navigate(ctx, server.URL))

	_, err = d.FindElement(ctx, "#missing")
	assert.ErrorIs(t, err, driver.ErrNotFound)

	hidden, err := d.FindElement(ctx, "#hidden")
	require.NoError(t, err)
	visible, err := d.IsVisible(ctx, hidden)
	require.NoError(t, err)
	assert.False(t, visible)

	user, err := d.FindElement(ctx, "#user")
	require.NoError(t, err)
	require.NoError(t, d.Type(ctx, user, "standard_user"))
	v, err := d.Value(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "standard_user", v)

	require.NoError(t, d.Clear(ctx, user))
	v, err = d.Value(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, v)
	require.NoError(t, d.Type(ctx, user, "bob"))

	// The transparent veil covers the button, so a native click is refused
	// and only the script click reaches it.
	btn, err := d.FindElement(ctx, "#go")
	require.NoError(t, err)
	assert.ErrorIs(t, d.Click(ctx, btn), driver.ErrNotInteractable)
	_, err = d.ExecuteScript(ctx, "arguments[0].click();", btn)
	require.NoError(t, err)

	banner, err := d.FindElement(ctx, `h3[data-test="error"]`)
	require.NoError(t, err)
	text, err := d.Text(ctx, banner)
	require.NoError(t, err)
	assert.Equal(t, "Hello bob", text)

	state, err := d.ExecuteScript(ctx, "return document.readyState;")
	require.NoError(t, err)
	assert.Equal(t, "complete", state)

	sum, err := d.ExecuteScript(ctx, "return arguments[0] + arguments[1];", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(5), sum)

	require.NoError(t, d.Navigate(ctx, server.URL))
	_, err = d.Text(ctx, banner)
	assert.ErrorIs(t, err, driver.ErrStale)

	art, err := d.CollectArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Login", art.Title)
	assert.Contains(t, art.HTML, `id="user"`)
	assert.NotEmpty(t, art.Screenshot)

	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Close(ctx))
	_, err = d.CurrentURL(ctx)
	assert.ErrorIs(t, err, driver.ErrClosed)
}
