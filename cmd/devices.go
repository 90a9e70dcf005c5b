package cmd

import (
	"fmt"

	"github.com/lumstudio/yohub/internal/device"

	"github.com/spf13/cobra"
)

// selectedPref remembers the selected device id between invocations.
const selectedPref = "selected_device"

var devicesSelect string

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Short:   "List attached devices in adb and fastboot mode",
	PreRunE: requireApp(true),
	RunE: func(cmd *cobra.Command, args []string) error {
		// A failed pass is logged by the engine and leaves the list stale.
		if _, err := core.Refresh(cmd.Context()); err != nil && cmd.Context().Err() != nil {
			return err
		}
		restoreSelection()

		if devicesSelect != "" {
			if err := selectDevice(devicesSelect); err != nil {
				return err
			}
		}
		printDevices(core.Registry.Snapshot())
		return nil
	},
}

// restoreSelection re-applies the remembered selection when that device is
// still attached.
func restoreSelection() {
	id, ok := core.Config.Preference(selectedPref)
	if !ok {
		return
	}
	if _, attached := core.Registry.Lookup(id); attached {
		_ = core.Registry.Select(id)
	}
}

func selectDevice(id string) error {
	if err := core.Registry.Select(id); err != nil {
		return err
	}
	core.Config.SetPreference(selectedPref, id)
	return saveConfig(core.Config)
}

func printDevices(snap device.Snapshot) {
	if len(snap.Devices) == 0 {
		fmt.Println("No devices connected.")
	}
	for _, d := range snap.Devices {
		mark := " "
		if d.ID == snap.SelectedID {
			mark = "*"
		}
		fmt.Printf("%s %-20s [%s] [%s]\n", mark, d.ID, d.State, d.Type)
	}
	if !snap.DriverInstalled {
		fmt.Println("Warning: the WinUSB driver is not installed; fastboot devices may not be listed.")
	}
}

func init() {
	devicesCmd.Flags().StringVar(&devicesSelect, "select", "", "select the device with this id")
	rootCmd.AddCommand(devicesCmd)
}
