package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumstudio/yohub/internal/adb"

	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:     "shell <command>",
	Short:   "Run a command line in the persistent shell",
	Long:    `Example: yohub shell "echo hello"`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: requireApp(true),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := core.Session.ExecuteStatus(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if res.Output != "" {
			fmt.Println(res.Output)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("exit status %d", res.ExitCode)
		}
		return nil
	},
}

var runDevice string

// tools maps the names accepted by `yohub run` to the façade entry points.
// Device-scoped variants are used for adb and fastboot when a device is set.
var tools = map[string]struct {
	run      func(c *adb.Client, ctx context.Context, args ...string) (string, error)
	onDevice func(c *adb.Client, ctx context.Context, id string, args ...string) (string, error)
}{
	"adb":            {run: (*adb.Client).Adb, onDevice: (*adb.Client).AdbDevice},
	"fastboot":       {run: (*adb.Client).Fastboot, onDevice: (*adb.Client).FastbootDevice},
	"python":         {run: (*adb.Client).Python},
	"payload-dumper": {run: (*adb.Client).PayloadDumper},
	"magisk-patcher": {run: (*adb.Client).MagiskPatcher},
}

var runCmd = &cobra.Command{
	Use:   "run <tool> [args...]",
	Short: "Run a bundled tool: adb, fastboot, python, payload-dumper or magisk-patcher",
	Long: `Runs one of the bundled tools through the persistent shell. adb and
fastboot target --device, or the selected device when one is remembered.

Example: yohub run adb shell getprop ro.product.model`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: requireApp(true),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, ok := tools[args[0]]
		if !ok {
			return fmt.Errorf("unknown tool %q", args[0])
		}
		id := runDevice
		if id == "" {
			id, _ = core.Config.Preference(selectedPref)
		}

		var (
			out string
			err error
		)
		if id != "" && t.onDevice != nil {
			out, err = t.onDevice(core.Client, cmd.Context(), id, args[1:]...)
		} else {
			out, err = t.run(core.Client, cmd.Context(), args[1:]...)
		}
		if err != nil {
			return err
		}
		if out != "" {
			fmt.Println(out)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runDevice, "device", "s", "", "device id for adb and fastboot")
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(runCmd)
}
