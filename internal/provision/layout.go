package provision

import (
	"path/filepath"
)

// Runtime pairs a bundled resource with the host path it is installed to.
type Runtime struct {
	Name       string
	Resource   string
	Target     string
	Executable bool
}

// Layout computes the deterministic host paths of the bundled tools.
type Layout struct {
	Root string
	GOOS string
}

// NewLayout returns the layout for a root directory on the given platform.
func NewLayout(root, goos string) Layout {
	return Layout{Root: root, GOOS: goos}
}

// RuntimeDir is the directory every tool is installed under.
func (l Layout) RuntimeDir() string {
	return filepath.Join(l.Root, "runtime")
}

func (l Layout) exe(name string) string {
	if l.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Adb returns the adb host path.
func (l Layout) Adb() string {
	return filepath.Join(l.RuntimeDir(), "adb", l.exe("adb"))
}

// Fastboot returns the fastboot host path. It ships next to adb.
func (l Layout) Fastboot() string {
	return filepath.Join(l.RuntimeDir(), "adb", l.exe("fastboot"))
}

// Python returns the python interpreter host path.
func (l Layout) Python() string {
	return filepath.Join(l.RuntimeDir(), "python", l.exe("python"))
}

// PayloadDumper returns the payload dumper host path.
func (l Layout) PayloadDumper() string {
	return filepath.Join(l.RuntimeDir(), "payload-dumper", l.exe("payload-dumper"))
}

// MagiskPatcher returns the magisk patcher entry point. It lives inside the
// python runtime because it is run by that interpreter.
func (l Layout) MagiskPatcher() string {
	return filepath.Join(filepath.Dir(l.Python()), "magisk-patcher", l.exe("magisk-patcher"))
}

// UsbDriver returns the USB driver package path.
func (l Layout) UsbDriver() string {
	return filepath.Join(l.RuntimeDir(), "driver", "usb-driver.zip")
}

// Runtimes lists the tools to provision in install order. adb and fastboot
// come first because device discovery depends on them.
func (l Layout) Runtimes() []Runtime {
	rts := []Runtime{
		{Name: "adb", Resource: l.exe("adb"), Target: l.Adb(), Executable: true},
		{Name: "fastboot", Resource: l.exe("fastboot"), Target: l.Fastboot(), Executable: true},
		{Name: "python", Resource: l.exe("python"), Target: l.Python(), Executable: true},
		{Name: "payload-dumper", Resource: l.exe("payload-dumper"), Target: l.PayloadDumper(), Executable: true},
		{Name: "magisk-patcher", Resource: l.exe("magisk-patcher"), Target: l.MagiskPatcher(), Executable: true},
	}
	if l.GOOS == "windows" {
		rts = append(rts, Runtime{Name: "usb-driver", Resource: "usb-driver.zip", Target: l.UsbDriver()})
	}
	return rts
}
