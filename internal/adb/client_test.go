package adb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	commands []string
	output   string
	err      error
}

func (r *recordingExecutor) Execute(_ context.Context, command string) (string, error) {
	r.commands = append(r.commands, command)
	return r.output, r.err
}

func TestClientBuildsCommandLines(t *testing.T) {
	exec := &recordingExecutor{}
	c := NewClient(exec, Paths{
		Adb:      "/data/yohub/runtime/adb/adb",
		Fastboot: "/data/yohub/runtime/adb/fastboot",
		Python:   "/opt/my tools/python",
	}, WithGOOS("linux"))
	ctx := context.Background()

	_, _ = c.Devices(ctx)
	_, _ = c.AdbDevice(ctx, "emulator-5554", "shell", "getprop ro.boot.slot_suffix")
	_, _ = c.FastbootDevices(ctx)
	_, _ = c.FastbootDevice(ctx, "0123456789ABCDEF", "getvar", "current-slot")
	_, _ = c.Python(ctx, "-V")
	_, _ = c.PayloadDumper(ctx, "payload.bin")
	_ = c.KillServer(ctx)
	_, _ = c.Cmd(ctx, "echo raw | cat")

	assert.Equal(t, []string{
		"/data/yohub/runtime/adb/adb devices",
		"/data/yohub/runtime/adb/adb -s emulator-5554 shell 'getprop ro.boot.slot_suffix'",
		"/data/yohub/runtime/adb/fastboot devices",
		"/data/yohub/runtime/adb/fastboot -s 0123456789ABCDEF getvar current-slot",
		"'/opt/my tools/python' -V",
		"payload-dumper payload.bin",
		"/data/yohub/runtime/adb/adb kill-server",
		"echo raw | cat",
	}, exec.commands)
}

func TestClientWindowsQuoting(t *testing.T) {
	exec := &recordingExecutor{}
	c := NewClient(exec, Paths{Adb: `C:\Program Files\yohub\adb.exe`}, WithGOOS("windows"))

	_, _ = c.AdbDevice(context.Background(), "emulator-5554", "shell", "getprop", "ro.virtual_ab.enabled")
	require.Len(t, exec.commands, 1)
	assert.Equal(t, `"C:\Program Files\yohub\adb.exe" -s emulator-5554 shell getprop ro.virtual_ab.enabled`, exec.commands[0])
}

func TestClientPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	c := NewClient(&recordingExecutor{output: "partial", err: boom}, Paths{})

	out, err := c.Adb(context.Background(), "devices")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", out)
}

func TestGetPropTrimsOutput(t *testing.T) {
	exec := &recordingExecutor{output: "  true  "}
	c := NewClient(exec, Paths{}, WithGOOS("linux"))

	v, err := c.GetProp(context.Background(), "abc", "ro.virtual_ab.enabled")
	require.NoError(t, err)
	assert.Equal(t, "true", v)
	assert.Equal(t, "adb -s abc shell -n getprop ro.virtual_ab.enabled", exec.commands[0])
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "plain", Quote("linux", "plain"))
	assert.Equal(t, "''", Quote("linux", ""))
	assert.Equal(t, `'it'\''s'`, Quote("linux", "it's"))
	assert.Equal(t, `'$HOME'`, Quote("linux", "$HOME"))
	assert.Equal(t, `C:\adb.exe`, Quote("windows", `C:\adb.exe`))
	assert.Equal(t, `"a ""b"""`, Quote("windows", `a "b"`))
}

func TestSetPathsAppliesToLaterCommands(t *testing.T) {
	exec := &recordingExecutor{}
	c := NewClient(exec, Paths{}, WithGOOS("linux"))

	_, _ = c.Devices(context.Background())
	c.SetPaths(Paths{Adb: "/rt/adb"})
	_, _ = c.Devices(context.Background())

	assert.Equal(t, []string{"adb devices", "/rt/adb devices"}, exec.commands)
	assert.Equal(t, "/rt/adb", c.Paths().Adb)
}
