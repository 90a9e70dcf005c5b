package driver

import (
	"context"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// ServicesKey is the registry key listing installed Windows services.
const ServicesKey = `HKEY_LOCAL_MACHINE\SYSTEM\CurrentControlSet\Services`

// DriverToken marks the USB class driver fastboot devices need on Windows.
const DriverToken = "WINUSB"

// Commander runs a raw shell command line. *adb.Client satisfies it.
type Commander interface {
	Cmd(ctx context.Context, text string) (string, error)
}

// Checker reports whether the fastboot USB driver is installed.
type Checker struct {
	cmd  Commander
	goos string
	log  zerolog.Logger
}

// New creates a checker for the given platform. An empty goos means the host.
func New(cmd Commander, goos string, log zerolog.Logger) *Checker {
	if goos == "" {
		goos = runtime.GOOS
	}
	return &Checker{cmd: cmd, goos: goos, log: log}
}

// IsDriverInstalled queries the Windows registry for the WinUSB service.
// Other platforms need no driver and always report true. A failed query
// reports false.
func (c *Checker) IsDriverInstalled(ctx context.Context) bool {
	if c.goos != "windows" {
		return true
	}
	out, err := c.cmd.Cmd(ctx, "reg query "+ServicesKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("driver query failed")
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(strings.ToUpper(line), DriverToken) {
			return true
		}
	}
	c.log.Debug().Msg("winusb driver not found")
	return false
}
