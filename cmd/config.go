package cmd

import (
	"fmt"
	"os"

	"github.com/lumstudio/yohub/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage yohub configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Config file: %s\n\n", configLocation())
		fmt.Printf("Root directory:      %s\n", cfg.ExpandRootDir())
		fmt.Printf("Log level:           %s\n", cfg.LogLevel)
		fmt.Printf("Settle delay:        %s\n", cfg.SettleDelay)
		fmt.Printf("Max server restarts: %d\n", cfg.MaxServerRestarts)
		if cfg.ProbeTimeout > 0 {
			fmt.Printf("Probe timeout:       %s\n", cfg.ProbeTimeout)
		} else {
			fmt.Printf("Probe timeout:       none\n")
		}
		fmt.Printf("Poll interval:       %s\n", cfg.PollInterval)
		shellPath := cfg.Shell.Path
		if shellPath == "" {
			shellPath = "(platform default)"
		}
		fmt.Printf("Shell:               %s\n", shellPath)
		if cfg.Shell.Encoding != "" {
			fmt.Printf("Shell encoding:      %s\n", cfg.Shell.Encoding)
		}

		fmt.Printf("\nPreferences:\n")
		keys := cfg.PreferenceKeys()
		if len(keys) == 0 {
			fmt.Println("  (none)")
		}
		for _, k := range keys {
			v, _ := cfg.Preference(k)
			fmt.Printf("  - %s = %s\n", k, v)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configLocation()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := saveConfig(config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("Config created at %s\n", path)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		v, ok := cfg.Preference(args[0])
		if !ok {
			return fmt.Errorf("preference %q not set", args[0])
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.SetPreference(args[0], args[1])
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.UnsetPreference(args[0]) {
			return fmt.Errorf("preference %q not set", args[0])
		}
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	rootCmd.AddCommand(configCmd)
}
