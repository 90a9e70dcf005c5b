package adb

import (
	"context"
	"runtime"
	"strings"
	"sync"
)

// Executor runs one command line and returns its captured output.
// *shell.Session satisfies it.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Paths locates the provisioned tools. An empty path falls back to the bare
// tool name, resolved through PATH by the shell.
type Paths struct {
	Adb           string
	Fastboot      string
	Python        string
	PayloadDumper string
	MagiskPatcher string
}

// Client builds adb, fastboot and helper command lines and runs them
// through an Executor. Apart from the tool paths it holds no state.
type Client struct {
	exec Executor
	goos string

	mu    sync.RWMutex
	paths Paths
}

// Option configures a Client.
type Option func(*Client)

// WithGOOS overrides the platform used for argument quoting.
func WithGOOS(goos string) Option {
	return func(c *Client) { c.goos = goos }
}

// NewClient creates a new command façade.
func NewClient(exec Executor, paths Paths, opts ...Option) *Client {
	c := &Client{exec: exec, paths: paths, goos: runtime.GOOS}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Paths returns the current tool locations.
func (c *Client) Paths() Paths {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paths
}

// SetPaths replaces the tool locations used by later commands.
func (c *Client) SetPaths(p Paths) {
	c.mu.Lock()
	c.paths = p
	c.mu.Unlock()
}

// Adb runs adb with args.
func (c *Client) Adb(ctx context.Context, args ...string) (string, error) {
	return c.run(ctx, tool(c.Paths().Adb, "adb"), args)
}

// AdbDevice runs adb against one device: adb -s <id> args...
func (c *Client) AdbDevice(ctx context.Context, id string, args ...string) (string, error) {
	return c.Adb(ctx, append([]string{"-s", id}, args...)...)
}

// Fastboot runs fastboot with args.
func (c *Client) Fastboot(ctx context.Context, args ...string) (string, error) {
	return c.run(ctx, tool(c.Paths().Fastboot, "fastboot"), args)
}

// FastbootDevice runs fastboot against one device: fastboot -s <id> args...
func (c *Client) FastbootDevice(ctx context.Context, id string, args ...string) (string, error) {
	return c.Fastboot(ctx, append([]string{"-s", id}, args...)...)
}

// Python runs the bundled python interpreter with args.
func (c *Client) Python(ctx context.Context, args ...string) (string, error) {
	return c.run(ctx, tool(c.Paths().Python, "python"), args)
}

// PayloadDumper runs the payload dumper with args.
func (c *Client) PayloadDumper(ctx context.Context, args ...string) (string, error) {
	return c.run(ctx, tool(c.Paths().PayloadDumper, "payload-dumper"), args)
}

// MagiskPatcher runs the magisk patcher with args.
func (c *Client) MagiskPatcher(ctx context.Context, args ...string) (string, error) {
	return c.run(ctx, tool(c.Paths().MagiskPatcher, "magisk-patcher"), args)
}

// Cmd runs a raw shell command line unchanged.
func (c *Client) Cmd(ctx context.Context, text string) (string, error) {
	return c.exec.Execute(ctx, text)
}

// Devices returns the raw output of `adb devices`.
func (c *Client) Devices(ctx context.Context) (string, error) {
	return c.Adb(ctx, "devices")
}

// FastbootDevices returns the raw output of `fastboot devices`.
func (c *Client) FastbootDevices(ctx context.Context) (string, error) {
	return c.Fastboot(ctx, "devices")
}

// KillServer stops the adb server; the next adb call starts a fresh one.
func (c *Client) KillServer(ctx context.Context) error {
	_, err := c.Adb(ctx, "kill-server")
	return err
}

// GetProp reads a system property from a device. adb does not read stdin
// for the call.
func (c *Client) GetProp(ctx context.Context, id, prop string) (string, error) {
	out, err := c.AdbDevice(ctx, id, "shell", "-n", "getprop", prop)
	return strings.TrimSpace(out), err
}

func (c *Client) run(ctx context.Context, bin string, args []string) (string, error) {
	return c.exec.Execute(ctx, CommandLine(c.goos, bin, args...))
}

func tool(path, name string) string {
	if path == "" {
		return name
	}
	return path
}

// CommandLine joins bin and args into one shell command line, quoting any
// word the platform shell would otherwise split or expand.
func CommandLine(goos, bin string, args ...string) string {
	words := make([]string, 0, len(args)+1)
	words = append(words, Quote(goos, bin))
	for _, a := range args {
		words = append(words, Quote(goos, a))
	}
	return strings.Join(words, " ")
}

const (
	posixSpecial   = " \t\n\"'\\$`&|;<>()*?[]#~%!{}"
	windowsSpecial = " \t\"&|<>^()%!"
)

// Quote quotes a single word for the platform shell.
func Quote(goos, s string) string {
	if goos == "windows" {
		if s != "" && !strings.ContainsAny(s, windowsSpecial) {
			return s
		}
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	if s != "" && !strings.ContainsAny(s, posixSpecial) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
