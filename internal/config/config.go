// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Target() TargetConfig
	Timing() TimingConfig
	Locators() map[string][]string
	Runner() RunnerConfig
	Scenarios() []ScenarioConfig
	Report() ReportConfig
	Store() StoreConfig
	Validate() error

	// Setters driven by CLI flags.
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)
	SetTargetBaseURL(string)
	SetReportFormat(string)
	SetReportOutput(string)
}

// Config holds the entire application configuration. Fields are exported so
// viper (mapstructure) can populate them; callers should prefer the getters.
type Config struct {
	LoggerCfg    LoggerConfig        `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig       `mapstructure:"browser" yaml:"browser"`
	TargetCfg    TargetConfig        `mapstructure:"target" yaml:"target"`
	TimingCfg    TimingConfig        `mapstructure:"timing" yaml:"timing"`
	LocatorsCfg  map[string][]string `mapstructure:"locators" yaml:"locators"`
	RunnerCfg    RunnerConfig        `mapstructure:"runner" yaml:"runner"`
	ScenariosCfg []ScenarioConfig    `mapstructure:"scenarios" yaml:"scenarios"`
	ReportCfg    ReportConfig        `mapstructure:"report" yaml:"report"`
	StoreCfg     StoreConfig         `mapstructure:"store" yaml:"store"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig          { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig        { return c.BrowserCfg }
func (c *Config) Target() TargetConfig          { return c.TargetCfg }
func (c *Config) Timing() TimingConfig          { return c.TimingCfg }
func (c *Config) Locators() map[string][]string { return c.LocatorsCfg }
func (c *Config) Runner() RunnerConfig          { return c.RunnerCfg }
func (c *Config) Scenarios() []ScenarioConfig   { return c.ScenariosCfg }
func (c *Config) Report() ReportConfig          { return c.ReportCfg }
func (c *Config) Store() StoreConfig            { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserDriver(d string)  { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetTargetBaseURL(u string)  { c.TargetCfg.BaseURL = u }
func (c *Config) SetReportFormat(f string)   { c.ReportCfg.Format = f }
func (c *Config) SetReportOutput(out string) { c.ReportCfg.Output = out }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported browser driver kinds.
const (
	DriverCDP       = "cdp"
	DriverWebDriver = "webdriver"
)

// ViewportConfig is the browser window size in CSS pixels.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig holds settings for the browser the driver controls.
type BrowserConfig struct {
	// Driver selects the automation backend: "cdp" or "webdriver".
	Driver          string         `mapstructure:"driver" yaml:"driver"`
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	// WebDriverURL is the remote end used when Driver is "webdriver".
	WebDriverURL    string        `mapstructure:"webdriver_url" yaml:"webdriver_url"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	ScriptTimeout   time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
}

// TargetConfig describes the page under test.
type TargetConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// AuthenticatedPath is the URL substring that marks the authenticated view.
	AuthenticatedPath string `mapstructure:"authenticated_path" yaml:"authenticated_path"`
}

// TimingConfig groups every wait budget and settle delay used by the page layer.
// The defaults were tuned against one public demo site; none of them is a
// principled threshold.
type TimingConfig struct {
	DefaultTimeout      time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	NavigationTimeout   time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	NavigationRetries   int           `mapstructure:"navigation_retries" yaml:"navigation_retries"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RaceBudget          time.Duration `mapstructure:"race_budget" yaml:"race_budget"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	IndeterminateSettle time.Duration `mapstructure:"indeterminate_settle" yaml:"indeterminate_settle"`
	ErrorPreReadDelay   time.Duration `mapstructure:"error_pre_read_delay" yaml:"error_pre_read_delay"`
	ErrorTimeout        time.Duration `mapstructure:"error_timeout" yaml:"error_timeout"`
	AuthTimeout         time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	GraceDelay          time.Duration `mapstructure:"grace_delay" yaml:"grace_delay"`
}

// RunnerConfig tunes the scenario runner.
type RunnerConfig struct {
	MaxAttempts   int  `mapstructure:"max_attempts" yaml:"max_attempts"`
	StopOnFailure bool `mapstructure:"stop_on_failure" yaml:"stop_on_failure"`
}

// ScenarioConfig is one login scenario as written in the config file.
type ScenarioConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Identity     string `mapstructure:"identity" yaml:"identity"`
	Secret       string `mapstructure:"secret" yaml:"secret"`
	Expect       string `mapstructure:"expect" yaml:"expect"`
	ErrorPattern string `mapstructure:"error_pattern" yaml:"error_pattern"`
	MaxAttempts  int    `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ReportConfig controls where and how run results are written.
type ReportConfig struct {
	Format       string `mapstructure:"format" yaml:"format"`
	Output       string `mapstructure:"output" yaml:"output"`
	ArtifactsDir string `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
}

// StoreConfig enables the run history store. An empty DatabaseURL disables it.
type StoreConfig struct {
	DatabaseURL string        `mapstructure:"database_url" yaml:"database_url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gatecheck")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverCDP)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)
	v.SetDefault("browser.webdriver_url", "http://localhost:4444/wd/hub")
	v.SetDefault("browser.page_load_timeout", "30s")
	v.SetDefault("browser.script_timeout", "5s")

	// -- Target --
	v.SetDefault("target.base_url", "https://www.saucedemo.com/")
	v.SetDefault("target.authenticated_path", "/inventory")

	// -- Timing --
	v.SetDefault("timing.default_timeout", "20s")
	v.SetDefault("timing.navigation_timeout", "30s")
	v.SetDefault("timing.navigation_retries", 1)
	v.SetDefault("timing.poll_interval", "100ms")
	v.SetDefault("timing.race_budget", "25s")
	v.SetDefault("timing.settle_delay", "500ms")
	v.SetDefault("timing.indeterminate_settle", "1s")
	v.SetDefault("timing.error_pre_read_delay", "500ms")
	v.SetDefault("timing.error_timeout", "25s")
	v.SetDefault("timing.auth_timeout", "20s")
	v.SetDefault("timing.grace_delay", "250ms")

	// -- Runner --
	v.SetDefault("runner.max_attempts", 2)
	v.SetDefault("runner.stop_on_failure", false)
	v.SetDefault("scenarios", DefaultScenarios())

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")
	v.SetDefault("report.artifacts_dir", "artifacts")

	// -- Store --
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.timeout", "10s")
}

// DefaultScenarios returns the stock SauceDemo login scenarios.
func DefaultScenarios() []map[string]interface{} {
	return []map[string]interface{}{
		{"name": "valid credentials", "identity": "standard_user", "secret": "secret_sauce", "expect": "authenticated"},
		{"name": "invalid credentials", "identity": "invalid_user", "secret": "wrong_password", "expect": "error", "error_pattern": "do not match"},
		{"name": "locked out user", "identity": "locked_out_user", "secret": "secret_sauce", "expect": "error", "error_pattern": "locked out"},
		{"name": "empty username", "identity": "", "secret": "secret_sauce", "expect": "error", "error_pattern": "username is required"},
		{"name": "empty password", "identity": "standard_user", "secret": "", "expect": "error", "error_pattern": "password is required"},
	}
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Driver {
	case DriverCDP, DriverWebDriver:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverCDP, DriverWebDriver, c.BrowserCfg.Driver)
	}
	if c.BrowserCfg.Driver == DriverWebDriver && c.BrowserCfg.WebDriverURL == "" {
		return fmt.Errorf("browser.webdriver_url is required for the webdriver driver")
	}
	if c.TargetCfg.BaseURL == "" {
		return fmt.Errorf("target.base_url is a required configuration field")
	}
	if c.TargetCfg.AuthenticatedPath == "" {
		return fmt.Errorf("target.authenticated_path is a required configuration field")
	}
	if err := c.TimingCfg.Validate(); err != nil {
		return fmt.Errorf("timing configuration invalid: %w", err)
	}
	if c.RunnerCfg.MaxAttempts <= 0 {
		return fmt.Errorf("runner.max_attempts must be a positive integer")
	}
	for i, s := range c.ScenariosCfg {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("scenarios[%d]: %w", i, err)
		}
	}
	switch strings.ToLower(c.ReportCfg.Format) {
	case "text", "json", "junit":
	default:
		return fmt.Errorf("report.format must be text, json or junit, got %q", c.ReportCfg.Format)
	}
	if c.StoreCfg.DatabaseURL != "" && c.StoreCfg.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be a positive duration")
	}
	return nil
}

// Validate checks the timing budgets.
func (t *TimingConfig) Validate() error {
	if t.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be a positive duration")
	}
	if t.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if t.NavigationRetries < 0 {
		return fmt.Errorf("navigation_retries cannot be negative")
	}
	// Polling must stay sub-second so waits react quickly.
	if t.PollInterval <= 0 || t.PollInterval >= time.Second {
		return fmt.Errorf("poll_interval must be between 0 and 1s, got %v", t.PollInterval)
	}
	if t.RaceBudget <= 0 {
		return fmt.Errorf("race_budget must be a positive duration")
	}
	if t.SettleDelay < 0 || t.IndeterminateSettle < 0 || t.ErrorPreReadDelay < 0 || t.GraceDelay < 0 {
		return fmt.Errorf("settle and grace delays cannot be negative")
	}
	return nil
}

// Validate checks a single scenario definition.
func (s *ScenarioConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Expect {
	case "authenticated":
	case "error":
		if s.ErrorPattern == "" {
			return fmt.Errorf("scenario %q expects an error but has no error_pattern", s.Name)
		}
	default:
		return fmt.Errorf("scenario %q: expect must be authenticated or error, got %q", s.Name, s.Expect)
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("scenario %q: max_attempts cannot be negative", s.Name)
	}
	return nil
}
