package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/lumstudio/yohub/internal/app"
	"github.com/lumstudio/yohub/internal/config"
	"github.com/lumstudio/yohub/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version of yohub.
const Version = "0.1.0"

var (
	configFile string
	logLevel   string
	jsonLogs   bool

	// core is built by requireApp and closed by Execute.
	core *app.App
)

var rootCmd = &cobra.Command{
	Use:     "yohub",
	Short:   "Manage Android devices over adb and fastboot",
	Version: Version,
	Long: `yohub keeps a private copy of adb, fastboot and the flashing helpers,
drives them through one persistent shell, and tracks the devices attached
over USB in adb and fastboot modes.`,
	SilenceUsage: true,
}

// loadConfig reads the config from --config or the default location.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFrom(configFile)
	}
	return config.Load()
}

// saveConfig writes cfg back to where loadConfig read it from.
func saveConfig(cfg *config.Config) error {
	if configFile != "" {
		return config.SaveTo(cfg, configFile)
	}
	return config.Save(cfg)
}

func configLocation() string {
	if configFile != "" {
		return configFile
	}
	return config.ConfigPath()
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logging.New(logging.Options{Level: level, Out: os.Stderr, JSON: jsonLogs})
}

// requireApp returns a PreRunE that builds the core and, when provisioned is
// set, makes sure the bundled tools are on disk.
func requireApp(provisioned bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		a, err := app.New(cfg, app.WithLogger(log))
		if err != nil {
			return err
		}
		core = a
		if provisioned {
			if err := a.Startup(cmd.Context(), nil); err != nil {
				return err
			}
		}
		return nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error, off")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON")
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if core != nil {
		core.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
