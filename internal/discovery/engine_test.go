package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumstudio/yohub/internal/adb"
	"github.com/lumstudio/yohub/internal/device"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTools scripts the command façade. Devices pops from adbOut until one
// entry is left, which then repeats.
type fakeTools struct {
	mu          sync.Mutex
	adbOut      []string
	fastbootOut string
	props       map[string]map[string]string
	propErr     error
	devicesErr  error
	kills       int
	probed      []string
	calls       []string
	probeCtx    []context.Context
}

func (f *fakeTools) Devices(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "adb devices")
	if f.devicesErr != nil {
		return "", f.devicesErr
	}
	out := f.adbOut[0]
	if len(f.adbOut) > 1 {
		f.adbOut = f.adbOut[1:]
	}
	return out, nil
}

func (f *fakeTools) FastbootDevices(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "fastboot devices")
	return f.fastbootOut, nil
}

func (f *fakeTools) KillServer(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "adb kill-server")
	f.kills++
	return nil
}

func (f *fakeTools) GetProp(ctx context.Context, id, prop string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, id+" "+prop)
	f.probeCtx = append(f.probeCtx, ctx)
	if f.propErr != nil {
		return "", f.propErr
	}
	return f.props[id][prop], nil
}

type fakeDriver struct{ installed bool }

func (f fakeDriver) IsDriverInstalled(context.Context) bool { return f.installed }

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

const header = "List of devices attached\n"

func newEngine(tools *fakeTools, reg *device.Registry, cfg Config, driver DriverChecker) (*Engine, *sleepRecorder) {
	rec := &sleepRecorder{}
	return New(tools, driver, reg, cfg, WithSleep(rec.sleep)), rec
}

func TestClassification(t *testing.T) {
	tools := &fakeTools{
		adbOut: []string{header +
			"emulator-5554\tdevice\n" +
			"pixel7\tdevice\n" +
			"oldphone\tdevice\n"},
		props: map[string]map[string]string{
			"emulator-5554": {"ro.virtual_ab.enabled": "true"},
			"pixel7":        {"ro.virtual_ab.enabled": "false", "ro.boot.slot_suffix": "_a"},
			"oldphone":      {},
		},
	}
	reg := device.NewRegistry()
	e, _ := newEngine(tools, reg, DefaultConfig(), nil)

	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []adb.Device{
		{ID: "emulator-5554", State: adb.StateDevice, Type: adb.TypeADBVAB},
		{ID: "pixel7", State: adb.StateDevice, Type: adb.TypeADBAB},
		{ID: "oldphone", State: adb.StateDevice, Type: adb.TypeADB},
	}, res.Devices)
	assert.Equal(t, res.Devices, reg.Devices())

	// A virtual A/B answer short-circuits the slot probe.
	assert.Equal(t, []string{
		"emulator-5554 ro.virtual_ab.enabled",
		"pixel7 ro.virtual_ab.enabled",
		"pixel7 ro.boot.slot_suffix",
		"oldphone ro.virtual_ab.enabled",
		"oldphone ro.boot.slot_suffix",
	}, tools.probed)
}

func TestFastbootDevicesAreAppended(t *testing.T) {
	tools := &fakeTools{
		adbOut:      []string{header + "emulator-5554\tdevice\n"},
		fastbootOut: "0123456789ABCDEF\tfastboot\n",
	}
	reg := device.NewRegistry()
	e, _ := newEngine(tools, reg, DefaultConfig(), nil)

	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Devices, 2)
	assert.Equal(t, "emulator-5554", res.Devices[0].ID)
	assert.Equal(t, adb.Device{ID: "0123456789ABCDEF", State: adb.StateFastboot, Type: adb.TypeFastboot}, res.Devices[1])
	assert.Equal(t, []string{"adb devices", "fastboot devices"}, tools.calls)
}

func TestDuplicateIDsKeepFirstOccurrence(t *testing.T) {
	tools := &fakeTools{
		adbOut:      []string{header + "abc\tdevice\nabc\toffline\n"},
		fastbootOut: "abc\tfastboot\nfb1\tfastboot\nfb1\tfastboot\n",
	}
	reg := device.NewRegistry()
	e, _ := newEngine(tools, reg, DefaultConfig(), nil)

	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []adb.Device{
		{ID: "abc", State: adb.StateDevice, Type: adb.TypeADB},
		{ID: "fb1", State: adb.StateFastboot, Type: adb.TypeFastboot},
	}, res.Devices)
	assert.Len(t, tools.probed, 2, "duplicate line must not be probed again")
}

func TestUnknownStateLineIsSkipped(t *testing.T) {
	tools := &fakeTools{
		adbOut: []string{header + "weird\tteleporting\nemulator-5554\tunauthorized\n"},
	}
	reg := device.NewRegistry()
	e, _ := newEngine(tools, reg, DefaultConfig(), nil)

	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "weird", res.Skipped[0].Line.ID)

	var unknown *adb.UnknownStateError
	assert.ErrorAs(t, res.Skipped[0].Err, &unknown)

	assert.Equal(t, []adb.Device{
		{ID: "emulator-5554", State: adb.StateUnauthorized, Type: adb.TypeADB},
	}, res.Devices)
	assert.Empty(t, tools.probed, "only online devices are probed")
}

func TestProbeFailureFallsBackToADB(t *testing.T) {
	tools := &fakeTools{
		adbOut:  []string{header + "emulator-5554\tdevice\npixel7\tdevice\n"},
		propErr: errors.New("boom"),
	}
	reg := device.NewRegistry()
	e, _ := newEngine(tools, reg, DefaultConfig(), nil)

	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Devices, 2)
	for _, d := range res.Devices {
		assert.Equal(t, adb.TypeADB, d.Type)
	}
}

func TestProbeTimeoutBoundsEachProbe(t *testing.T) {
	tools := &fakeTools{adbOut: []string{header + "emulator-5554\tdevice\n"}}
	cfg := DefaultConfig()
	cfg.ProbeTimeout = time.Second
	e, _ := newEngine(tools, device.NewRegistry(), cfg, nil)

	_, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, tools.probeCtx)
	for _, ctx := range tools.probeCtx {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	}
}

func TestNoProbeTimeoutByDefault(t *testing.T) {
	tools := &fakeTools{adbOut: []string{header + "emulator-5554\tdevice\n"}}
	e, _ := newEngine(tools, device.NewRegistry(), DefaultConfig(), nil)

	_, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	for _, ctx := range tools.probeCtx {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
	}
}

func TestServerMalfunctionRestartsOnce(t *testing.T) {
	tools := &fakeTools{
		adbOut: []string{
			"error: protocol fault\n* please run 'adb kill-server'\n",
			header + "emulator-5554\tdevice\n",
		},
	}
	reg := device.NewRegistry()
	e, rec := newEngine(tools, reg, DefaultConfig(), nil)

	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tools.kills)
	assert.Equal(t, 1, res.Restarts)
	require.Len(t, res.Devices, 1)
	assert.Equal(t, []string{"adb devices", "adb kill-server", "adb devices", "fastboot devices"}, tools.calls)

	d := DefaultConfig().SettleDelay
	assert.Equal(t, []time.Duration{d, 2 * d}, rec.delays)
}

func TestServerMalfunctionIsBounded(t *testing.T) {
	tools := &fakeTools{adbOut: []string{"adb server is out of date. killing... run adb kill-server\n"}}
	reg := device.NewRegistry()
	reg.Commit([]adb.Device{{ID: "stale", State: adb.StateDevice, Type: adb.TypeADB}})

	cfg := DefaultConfig()
	cfg.MaxServerRestarts = 2
	e, _ := newEngine(tools, reg, cfg, nil)

	var called bool
	res, err := e.Run(context.Background(), func(Result) { called = true })
	require.ErrorIs(t, err, ErrServerUnhealthy)
	assert.True(t, called)
	assert.Equal(t, 2, tools.kills)
	assert.Equal(t, 2, res.Restarts)

	// The registry keeps the previous pass.
	assert.Equal(t, []string{"stale"}, ids(reg.Devices()))
	assert.NotContains(t, tools.calls, "fastboot devices")
}

func TestSelectionFollowsPasses(t *testing.T) {
	tools := &fakeTools{adbOut: []string{header + "emulator-5554\tdevice\n"}}
	reg := device.NewRegistry()
	e, _ := newEngine(tools, reg, DefaultConfig(), nil)

	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", res.SelectedID)

	tools.adbOut = []string{header}
	tools.fastbootOut = "0123456789ABCDEF\tfastboot\n"
	res, err = e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.SelectedID, "vanished selection is cleared")

	res, err = e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "0123456789ABCDEF", res.SelectedID, "lone device is auto-selected")
}

func TestCallbackReceivesResult(t *testing.T) {
	tools := &fakeTools{adbOut: []string{header + "emulator-5554\tdevice\n"}}
	e, _ := newEngine(tools, device.NewRegistry(), DefaultConfig(), nil)

	var got Result
	res, err := e.Run(context.Background(), func(r Result) { got = r })
	require.NoError(t, err)
	assert.Equal(t, res, got)
}

func TestDriverResultIsRecorded(t *testing.T) {
	tools := &fakeTools{adbOut: []string{header}}
	reg := device.NewRegistry()
	e, _ := newEngine(tools, reg, DefaultConfig(), fakeDriver{installed: false})

	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.DriverInstalled)
	assert.False(t, reg.DriverInstalled())
}

func TestCancelledContextLeavesRegistry(t *testing.T) {
	tools := &fakeTools{adbOut: []string{header + "emulator-5554\tdevice\n"}}
	reg := device.NewRegistry()
	e, _ := newEngine(tools, reg, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, reg.Len())
	assert.Empty(t, tools.calls)
}

func TestListingErrorLeavesRegistry(t *testing.T) {
	tools := &fakeTools{adbOut: []string{header}, devicesErr: errors.New("shell terminated")}
	reg := device.NewRegistry()
	reg.Commit([]adb.Device{{ID: "stale", State: adb.StateDevice, Type: adb.TypeADB}})
	e, _ := newEngine(tools, reg, DefaultConfig(), nil)

	_, err := e.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, []string{"stale"}, ids(reg.Devices()))
}

func TestDefaultSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), 0))
}

func ids(devs []adb.Device) []string {
	out := make([]string, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.ID)
	}
	return out
}
