package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumstudio/yohub/internal/adb"
	"github.com/lumstudio/yohub/internal/device"

	"github.com/rs/zerolog"
)

var (
	// ErrServerUnhealthy is returned when `adb devices` still reports a
	// broken server after the configured number of kill-server restarts.
	ErrServerUnhealthy = errors.New("adb server unhealthy")

	// ErrClassificationProbeFailed marks a getprop round-trip that failed.
	// The device is then classified as plain ADB.
	ErrClassificationProbeFailed = errors.New("classification probe failed")
)

// Tools is the subset of the command façade a pass needs.
type Tools interface {
	Devices(ctx context.Context) (string, error)
	FastbootDevices(ctx context.Context) (string, error)
	KillServer(ctx context.Context) error
	GetProp(ctx context.Context, id, prop string) (string, error)
}

// DriverChecker reports whether the fastboot USB driver is present.
type DriverChecker interface {
	IsDriverInstalled(ctx context.Context) bool
}

// Config tunes a discovery pass.
type Config struct {
	// SettleDelay is waited before probing, to ride out USB bounce.
	SettleDelay time.Duration
	// MaxServerRestarts caps kill-server recoveries within one pass.
	MaxServerRestarts int
	// ProbeTimeout bounds each getprop round-trip. Zero means no limit.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the default pass tuning.
func DefaultConfig() Config {
	return Config{
		SettleDelay:       1500 * time.Millisecond,
		MaxServerRestarts: 3,
	}
}

// Skip records a listing line that was dropped.
type Skip struct {
	Line adb.Line
	Err  error
}

// Result summarises one pass.
type Result struct {
	Devices         []adb.Device
	SelectedID      string
	Skipped         []Skip
	Restarts        int
	DriverInstalled bool
}

// Engine runs discovery passes and commits their outcome to a registry.
// Each pass recomputes the device set from scratch.
type Engine struct {
	tools    Tools
	driver   DriverChecker
	registry *device.Registry
	cfg      Config
	log      zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSleep replaces the delay function used for settle and backoff waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// New creates an engine. driver may be nil.
func New(tools Tools, driver DriverChecker, registry *device.Registry, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		tools:    tools,
		driver:   driver,
		registry: registry,
		cfg:      cfg,
		log:      zerolog.Nop(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs one discovery pass. onFinished, when non-nil, is called with
// the result whether or not the pass succeeded. On error the registry keeps
// its previous contents.
func (e *Engine) Run(ctx context.Context, onFinished func(Result)) (Result, error) {
	res, err := e.pass(ctx)
	if err != nil {
		e.log.Warn().Err(err).Int("restarts", res.Restarts).Msg("discovery pass failed")
	} else {
		e.log.Debug().
			Int("devices", len(res.Devices)).
			Int("skipped", len(res.Skipped)).
			Str("selected", res.SelectedID).
			Msg("discovery pass finished")
	}
	if onFinished != nil {
		onFinished(res)
	}
	return res, err
}

func (e *Engine) pass(ctx context.Context) (Result, error) {
	var res Result
	for attempt := 0; ; attempt++ {
		// Restarts back off linearly on top of the settle delay.
		if err := e.sleep(ctx, e.cfg.SettleDelay*time.Duration(attempt+1)); err != nil {
			return res, err
		}

		res.DriverInstalled = e.checkDriver(ctx)

		out, err := e.tools.Devices(ctx)
		if err != nil {
			return res, fmt.Errorf("adb devices: %w", err)
		}
		if adb.ServerMalfunction(out) {
			if attempt >= e.cfg.MaxServerRestarts {
				return res, fmt.Errorf("%w after %d restarts", ErrServerUnhealthy, res.Restarts)
			}
			e.log.Warn().Int("attempt", attempt+1).Msg("adb server malfunction, restarting")
			if err := e.tools.KillServer(ctx); err != nil {
				e.log.Warn().Err(err).Msg("adb kill-server")
			}
			res.Restarts++
			continue
		}

		var candidates []adb.Device
		seen := make(map[string]bool)

		for _, line := range adb.ParseDeviceLines(out) {
			if seen[line.ID] {
				continue
			}
			state, err := adb.ParseState(line.Token)
			if err != nil {
				e.log.Debug().Err(err).Str("device", line.ID).Msg("skipping adb line")
				res.Skipped = append(res.Skipped, Skip{Line: line, Err: err})
				continue
			}
			d := adb.Device{ID: line.ID, State: state, Type: adb.TypeADB}
			if state == adb.StateDevice {
				d.Type = e.classify(ctx, line.ID)
			}
			seen[d.ID] = true
			candidates = append(candidates, d)
		}

		fbOut, err := e.tools.FastbootDevices(ctx)
		if err != nil {
			return res, fmt.Errorf("fastboot devices: %w", err)
		}
		for _, line := range adb.ParseDeviceLines(fbOut) {
			if seen[line.ID] {
				continue
			}
			seen[line.ID] = true
			candidates = append(candidates, adb.Device{ID: line.ID, State: adb.StateFastboot, Type: adb.TypeFastboot})
		}

		snap := e.registry.Commit(candidates)
		res.Devices = snap.Devices
		res.SelectedID = snap.SelectedID
		return res, nil
	}
}

func (e *Engine) checkDriver(ctx context.Context) bool {
	if e.driver == nil {
		return true
	}
	installed := e.driver.IsDriverInstalled(ctx)
	e.registry.SetDriverInstalled(installed)
	return installed
}

// classify probes the device's update scheme: virtual A/B, then A/B slots,
// else plain. A failed probe falls back to plain ADB.
func (e *Engine) classify(ctx context.Context, id string) adb.Type {
	vab, err := e.probe(ctx, id, "ro.virtual_ab.enabled")
	if err != nil {
		e.logProbeFailure(id, err)
		return adb.TypeADB
	}
	if strings.Contains(vab, "true") {
		return adb.TypeADBVAB
	}
	slot, err := e.probe(ctx, id, "ro.boot.slot_suffix")
	if err != nil {
		e.logProbeFailure(id, err)
		return adb.TypeADB
	}
	if strings.Contains(slot, "_") {
		return adb.TypeADBAB
	}
	return adb.TypeADB
}

func (e *Engine) probe(ctx context.Context, id, prop string) (string, error) {
	if e.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ProbeTimeout)
		defer cancel()
	}
	v, err := e.tools.GetProp(ctx, id, prop)
	if err != nil {
		return "", fmt.Errorf("%w: getprop %s: %w", ErrClassificationProbeFailed, prop, err)
	}
	return v, nil
}

func (e *Engine) logProbeFailure(id string, err error) {
	e.log.Warn().Err(err).Str("device", id).Msg("classifying as plain adb")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
