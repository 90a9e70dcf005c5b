package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/lumstudio/yohub/internal/app"
	"github.com/lumstudio/yohub/internal/bundle"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var installForce bool

var installCmd = &cobra.Command{
	Use:     "install",
	Short:   "Extract the bundled adb, fastboot and helper tools",
	PreRunE: requireApp(false),
	RunE: func(cmd *cobra.Command, args []string) error {
		if installForce {
			for _, rt := range core.Layout.Runtimes() {
				if err := core.Manifest.Forget(rt.Target); err != nil {
					return err
				}
				if err := os.Remove(rt.Target); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove %s: %w", rt.Target, err)
				}
			}
		}
		fmt.Printf("Installing tools under %s\n", core.Layout.RuntimeDir())
		err := core.Startup(cmd.Context(), printStep)
		if err != nil {
			return err
		}
		fmt.Println("All tools ready.")
		return nil
	},
}

func printStep(s app.Step) {
	prefix := fmt.Sprintf("[%d/%d] %-15s", s.Index, s.Total, s.Component)
	switch {
	case s.Err != nil:
		fmt.Printf("%s failed\n", prefix)
	case s.Skipped:
		fmt.Printf("%s not bundled, using PATH\n", prefix)
	case s.Written:
		size := ""
		if info, err := os.Stat(s.Target); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		fmt.Printf("%s installed%s\n", prefix, size)
	default:
		fmt.Printf("%s up to date\n", prefix)
	}
}

var installListCmd = &cobra.Command{
	Use:     "list",
	Short:   "Show the installed tools",
	PreRunE: requireApp(false),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := core.Manifest.List()
		if err != nil {
			return err
		}
		bundled, err := bundle.Default().Names()
		if err != nil {
			return err
		}
		if len(bundled) == 0 {
			fmt.Println("This build bundles no tools; they are taken from PATH.")
		} else {
			fmt.Printf("Bundled: %s\n", strings.Join(bundled, ", "))
		}
		if len(entries) == 0 {
			fmt.Println("Nothing installed yet. Run 'yohub install'.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-15s %8s  %s  installed %s\n",
				e.Name, humanize.Bytes(uint64(e.Size)), shortDigest(e.SHA256), humanize.Time(e.InstalledAt))
		}
		return nil
	},
}

func shortDigest(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "reinstall every tool even if it is up to date")
	installCmd.AddCommand(installListCmd)
	rootCmd.AddCommand(installCmd)
}
