package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/driver"
	"github.com/xkilldash9x/gatecheck/internal/driver/cdp"
	"github.com/xkilldash9x/gatecheck/internal/driver/webdriver"
	"github.com/xkilldash9x/gatecheck/internal/observability"
	"github.com/xkilldash9x/gatecheck/internal/page"
	"github.com/xkilldash9x/gatecheck/internal/reporting"
	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

// ErrScenariosFailed is returned by the run command when any scenario fails.
var ErrScenariosFailed = errors.New("scenarios failed")

// openDriver starts the configured browser backend. Tests replace it.
var openDriver = func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (driver.Driver, error) {
	bc := cfg.Browser()
	switch bc.Driver {
	case config.DriverWebDriver:
		return webdriver.Open(ctx, bc, logger)
	default:
		return cdp.Open(ctx, bc, logger)
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [scenario names...]",
		Short: "Runs the configured login scenarios against the target",
		Long: `Runs each configured scenario in order: visit the login page, submit the
credentials and check the outcome against the expectation. Naming scenarios
restricts the run to them. The command fails when any scenario fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			return runScenarios(cmd, cfg, args)
		},
	}

	flags := runCmd.Flags()
	flags.String("driver", "", "browser backend: cdp or webdriver")
	flags.Bool("headless", true, "run the browser without a window")
	flags.String("base-url", "", "login page URL")
	flags.StringP("format", "f", "", "report format: text, json or junit")
	flags.StringP("output", "o", "", "report file (default stdout)")
	return runCmd
}

// applyRunFlags layers explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("driver") {
		v, _ := flags.GetString("driver")
		cfg.SetBrowserDriver(v)
	}
	if flags.Changed("headless") {
		v, _ := flags.GetBool("headless")
		cfg.SetBrowserHeadless(v)
	}
	if flags.Changed("base-url") {
		v, _ := flags.GetString("base-url")
		cfg.SetTargetBaseURL(v)
	}
	if flags.Changed("format") {
		v, _ := flags.GetString("format")
		cfg.SetReportFormat(v)
	}
	if flags.Changed("output") {
		v, _ := flags.GetString("output")
		cfg.SetReportOutput(v)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func selectScenarios(all []scenario.Scenario, names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}
	var out []scenario.Scenario
	for _, name := range names {
		i := slices.IndexFunc(all, func(s scenario.Scenario) bool { return s.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, all[i])
	}
	return out, nil
}

func openReporter(cmd *cobra.Command, rc config.ReportConfig) (reporting.Reporter, error) {
	if rc.Output == "" || rc.Output == "stdout" {
		return reporting.NewWithWriter(rc.Format, reporting.NopCloser(cmd.OutOrStdout()), Version)
	}
	return reporting.New(rc.Format, rc.Output, Version)
}

func runScenarios(cmd *cobra.Command, cfg config.Interface, names []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	all, err := scenario.FromConfig(cfg.Scenarios())
	if err != nil {
		return err
	}
	scs, err := selectScenarios(all, names)
	if err != nil {
		return err
	}
	if len(scs) == 0 {
		return errors.New("no scenarios configured")
	}

	rep, err := openReporter(cmd, cfg.Report())
	if err != nil {
		return err
	}

	drv, err := openDriver(ctx, cfg, logger)
	if err != nil {
		discardReport(rep, logger)
		return fmt.Errorf("failed to start %s driver: %w", cfg.Browser().Driver, err)
	}
	defer func() {
		if err := drv.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Driver did not close cleanly.", zap.Error(err))
		}
	}()

	runnerOpts := []scenario.Option{
		scenario.WithObserver(func(res scenario.Result) {
			if err := rep.Write(&res); err != nil {
				logger.Warn("Failed to write result.", zap.String("scenario", res.Scenario), zap.Error(err))
			}
		}),
	}
	if collector, ok := drv.(driver.ArtifactCollector); ok && cfg.Report().ArtifactsDir != "" {
		runnerOpts = append(runnerOpts, scenario.WithArtifacts(collector, &reporting.DirSink{Root: cfg.Report().ArtifactsDir}))
	}

	lp := page.New(drv, cfg, logger)
	sum, runErr := scenario.NewRunner(lp, cfg, logger, runnerOpts...).Run(ctx, scs)
	closeErr := rep.Close()
	saveHistory(ctx, cfg, sum, logger)

	switch {
	case runErr != nil:
		return runErr
	case closeErr != nil:
		return closeErr
	case !sum.OK():
		return fmt.Errorf("%w: %d of %d", ErrScenariosFailed, sum.Failed, len(sum.Results))
	}
	return nil
}

// discardReport closes a reporter on an early exit where the close error
// cannot change the command's result.
func discardReport(rep reporting.Reporter, logger *zap.Logger) {
	if err := rep.Close(); err != nil {
		logger.Warn("Reporter did not close cleanly.", zap.Error(err))
	}
}
