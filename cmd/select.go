package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var selectClear bool

var selectCmd = &cobra.Command{
	Use:     "select <id>",
	Short:   "Choose the device later commands act on",
	Args:    cobra.MaximumNArgs(1),
	PreRunE: requireApp(true),
	RunE: func(cmd *cobra.Command, args []string) error {
		if selectClear {
			core.Registry.ClearSelection()
			core.Config.UnsetPreference(selectedPref)
			if err := saveConfig(core.Config); err != nil {
				return err
			}
			fmt.Println("Selection cleared.")
			return nil
		}
		if len(args) != 1 {
			return fmt.Errorf("a device id or --clear is required")
		}

		// A failed pass is logged by the engine and leaves the list stale.
		if _, err := core.Refresh(cmd.Context()); err != nil && cmd.Context().Err() != nil {
			return err
		}
		if err := selectDevice(args[0]); err != nil {
			return err
		}
		d, _ := core.Registry.Selected()
		fmt.Printf("Selected %s\n", d)
		return nil
	},
}

func init() {
	selectCmd.Flags().BoolVar(&selectClear, "clear", false, "clear the selection")
	rootCmd.AddCommand(selectCmd)
}
