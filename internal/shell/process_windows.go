package shell

import (
	"os"
	"os/exec"
	"strconv"
)

func setProcessGroup(*exec.Cmd) {}

// killProcessGroup ends the shell and every process it started.
func killProcessGroup(proc *os.Process) {
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(proc.Pid))
	if err := kill.Run(); err != nil {
		_ = proc.Kill()
	}
}
