//go:build !windows

package shell

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup makes the shell the leader of a new process group, so
// the commands it starts can be killed with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(proc *os.Process) {
	if err := unix.Kill(-proc.Pid, unix.SIGKILL); err != nil {
		_ = proc.Kill()
	}
}
