package cmd

import (
	"fmt"
	"time"

	"github.com/lumstudio/yohub/internal/discovery"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Track devices as they are plugged and unplugged",
	PreRunE: requireApp(true),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Watching for devices. Press Ctrl+C to stop.")
		return core.Watch(cmd.Context(), func(res discovery.Result) {
			restoreSelection()
			fmt.Printf("\n%s  %d device(s)\n", time.Now().Format("15:04:05"), len(res.Devices))
			printDevices(core.Registry.Snapshot())
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
