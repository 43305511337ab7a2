// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tebeka/selenium"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver"
	"github.com/xkilldash9x/gatecheck/internal/page"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Target() config.TargetConfig {
	args := m.Called()
	return args.Get(0).(config.TargetConfig)
}

func (m *MockConfig) Timing() config.TimingConfig {
	args := m.Called()
	return args.Get(0).(config.TimingConfig)
}

func (m *MockConfig) Locators() map[string][]string {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(map[string][]string)
	}
	return nil
}

func (m *MockConfig) Runner() config.RunnerConfig {
	args := m.Called()
	return args.Get(0).(config.RunnerConfig)
}

func (m *MockConfig) Scenarios() []config.ScenarioConfig {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]config.ScenarioConfig)
	}
	return nil
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

func (m *MockConfig) Validate() error { return m.Called().Error(0) }

// --- Setters ---

func (m *MockConfig) SetBrowserDriver(d string)  { m.Called(d) }
func (m *MockConfig) SetBrowserHeadless(b bool)  { m.Called(b) }
func (m *MockConfig) SetTargetBaseURL(u string)  { m.Called(u) }
func (m *MockConfig) SetReportFormat(f string)   { m.Called(f) }
func (m *MockConfig) SetReportOutput(out string) { m.Called(out) }

// -- Login Facade Mock --

// MockFacade mocks the login page surface used by the scenario runner.
type MockFacade struct {
	mock.Mock
}

func (m *MockFacade) Visit(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockFacade) Login(ctx context.Context, identity, secret string) (page.Result, error) {
	args := m.Called(ctx, identity, secret)
	return args.Get(0).(page.Result), args.Error(1)
}

func (m *MockFacade) IsAuthenticated(ctx context.Context, timeout time.Duration) bool {
	return m.Called(ctx, timeout).Bool(0)
}

func (m *MockFacade) ErrorText(ctx context.Context, timeout time.Duration) (string, bool) {
	args := m.Called(ctx, timeout)
	return args.String(0), args.Bool(1)
}

func (m *MockFacade) CurrentURL(ctx context.Context) string { return m.Called(ctx).String(0) }

func (m *MockFacade) ResetState(ctx context.Context) { m.Called(ctx) }

// -- Artifact Collector Mock --

// MockArtifactCollector mocks driver.ArtifactCollector.
type MockArtifactCollector struct {
	mock.Mock
}

var _ driver.ArtifactCollector = (*MockArtifactCollector)(nil)

func (m *MockArtifactCollector) CollectArtifacts(ctx context.Context) (*driver.Artifacts, error) {
	args := m.Called(ctx)
	if a := args.Get(0); a != nil {
		return a.(*driver.Artifacts), args.Error(1)
	}
	return nil, args.Error(1)
}

// -- WebDriver Remote Mock --

// MockWebDriver mocks the subset of selenium.WebDriver the webdriver adapter calls.
type MockWebDriver struct {
	mock.Mock
}

func (m *MockWebDriver) Get(url string) error { return m.Called(url).Error(0) }

func (m *MockWebDriver) FindElement(by, value string) (selenium.WebElement, error) {
	args := m.Called(by, value)
	if el := args.Get(0); el != nil {
		return el.(selenium.WebElement), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWebDriver) CurrentURL() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockWebDriver) Title() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockWebDriver) PageSource() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockWebDriver) ExecuteScript(script string, scriptArgs []interface{}) (interface{}, error) {
	args := m.Called(script, scriptArgs)
	return args.Get(0), args.Error(1)
}

func (m *MockWebDriver) GetCookies() ([]selenium.Cookie, error) {
	args := m.Called()
	if c := args.Get(0); c != nil {
		return c.([]selenium.Cookie), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWebDriver) DeleteAllCookies() error { return m.Called().Error(0) }

func (m *MockWebDriver) Screenshot() ([]byte, error) {
	args := m.Called()
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWebDriver) Quit() error { return m.Called().Error(0) }

// MockWebElement mocks the element calls the webdriver adapter makes. The
// embedded interface satisfies the remaining selenium.WebElement methods;
// calling any of them panics.
type MockWebElement struct {
	selenium.WebElement
	mock.Mock
}

func (m *MockWebElement) Click() error               { return m.Called().Error(0) }
func (m *MockWebElement) Clear() error               { return m.Called().Error(0) }
func (m *MockWebElement) SendKeys(keys string) error { return m.Called(keys).Error(0) }

func (m *MockWebElement) IsDisplayed() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockWebElement) Text() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}
