// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecheck/internal/config"
	"github.com/xkilldash9x/gatecheck/internal/observability"
)

// EnvPrefix prefixes environment overrides, e.g. GATECHECK_TARGET_BASE_URL.
const EnvPrefix = "GATECHECK"

// rootOptions carries state shared by the subcommands of one root command.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// NewRootCommand returns a fresh command tree. Each call gets its own viper
// instance so flags do not leak between executions.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "gatecheck",
		Short: "Gatecheck drives login forms and checks how they respond.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				// Keep a logger available for the failure message.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "gatecheck"})
				return err
			}
			observability.InitializeLogger(opts.cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", opts.v.ConfigFileUsed()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newRunCmd(opts), newScenariosCmd(opts), newHistoryCmd(opts), newVersionCmd())
	return rootCmd, opts
}

// load reads defaults, the config file and GATECHECK_* variables, in rising precedence.
func (o *rootOptions) load(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)

	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	if cmd.Flags().Changed("log-level") {
		lvl, _ := cmd.Flags().GetString("log-level")
		v.Set("logger.level", lvl)
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	o.v = v
	o.cfg = cfg
	return nil
}

// Execute runs the command tree with ctx and logs any failure.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}
