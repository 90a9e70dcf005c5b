package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var driverCmd = &cobra.Command{
	Use:     "driver",
	Short:   "Check whether the USB driver fastboot needs is installed",
	PreRunE: requireApp(false),
	RunE: func(cmd *cobra.Command, args []string) error {
		if core.Driver.IsDriverInstalled(cmd.Context()) {
			fmt.Println("USB driver: installed")
			return nil
		}
		fmt.Println("USB driver: missing")
		fmt.Printf("Install the driver package at %s and replug the device.\n", core.Layout.UsbDriver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(driverCmd)
}
