// Package app assembles the device-management core: provisioning, the
// persistent shell, the command façade, discovery and the hotplug trigger.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/lumstudio/yohub/internal/adb"
	"github.com/lumstudio/yohub/internal/bundle"
	"github.com/lumstudio/yohub/internal/config"
	"github.com/lumstudio/yohub/internal/device"
	"github.com/lumstudio/yohub/internal/discovery"
	"github.com/lumstudio/yohub/internal/driver"
	"github.com/lumstudio/yohub/internal/hotplug"
	"github.com/lumstudio/yohub/internal/logging"
	"github.com/lumstudio/yohub/internal/manifest"
	"github.com/lumstudio/yohub/internal/provision"
	"github.com/lumstudio/yohub/internal/shell"

	"github.com/rs/zerolog"
)

// Step reports the outcome of provisioning one component.
type Step struct {
	Component string
	Target    string
	Index     int
	Total     int
	// Written is false when the component was already up to date.
	Written bool
	// Skipped is set when this build does not bundle the component.
	Skipped bool
	Err     error
}

// App owns every long-lived collaborator. It is built once and passed by
// reference.
type App struct {
	Config    *config.Config
	Layout    provision.Layout
	Manifest  *manifest.DB
	Installer *provision.Installer
	Session   *shell.Session
	Client    *adb.Client
	Driver    *driver.Checker
	Registry  *device.Registry
	Engine    *discovery.Engine
	Scheduler *hotplug.Scheduler

	resources provision.ResourceSource
	goos      string
	log       zerolog.Logger
	onPass    func(discovery.Result)
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the root logger. Each component logs under its own module.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithResources replaces the embedded runtime bundle.
func WithResources(src provision.ResourceSource) Option {
	return func(a *App) { a.resources = src }
}

// WithGOOS overrides the target platform.
func WithGOOS(goos string) Option {
	return func(a *App) { a.goos = goos }
}

// New builds an App from cfg. The shell is not started until the first
// command runs. Close releases everything New acquired.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		Config: cfg,
		goos:   runtime.GOOS,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.resources == nil {
		src := bundle.Default()
		src.GOOS = a.goos
		a.resources = src
	}

	root := cfg.ExpandRootDir()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root dir: %w", err)
	}
	a.Layout = provision.NewLayout(root, a.goos)

	db, err := manifest.Open(root)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	a.Manifest = db
	a.Installer = provision.NewInstaller(db,
		provision.WithLogger(logging.For(a.log, "provision")),
		provision.WithGOOS(a.goos),
	)

	shellCfg := shell.DefaultConfig(a.goos)
	if cfg.Shell.Path != "" {
		shellCfg.Path = cfg.Shell.Path
		shellCfg.Args = cfg.Shell.Args
	}
	shellCfg.Encoding = cfg.Shell.Encoding
	sess, err := shell.New(shellCfg,
		shell.WithLogger(logging.For(a.log, "shell")),
		shell.WithGOOS(a.goos),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.Session = sess

	a.Client = adb.NewClient(sess, a.installedPaths(), adb.WithGOOS(a.goos))

	a.Driver = driver.New(a.Client, a.goos, logging.For(a.log, "driver"))
	a.Registry = device.NewRegistry()
	a.Engine = discovery.New(a.Client, a.Driver, a.Registry, discovery.Config{
		SettleDelay:       cfg.SettleDelay,
		MaxServerRestarts: cfg.MaxServerRestarts,
		ProbeTimeout:      cfg.ProbeTimeout,
	}, discovery.WithLogger(logging.For(a.log, "discovery")))
	a.Scheduler = hotplug.NewScheduler(func(ctx context.Context) {
		_, _ = a.Engine.Run(ctx, a.onPass)
	}, hotplug.WithSchedulerLogger(logging.For(a.log, "hotplug")))

	return a, nil
}

// Startup provisions every bundled runtime in order: adb and fastboot,
// python, the payload dumper, the magisk patcher and, on Windows, the USB
// driver package. It stops at the first failure and returns a
// *provision.ProvisionError naming the component. Components this build
// does not bundle are skipped and resolved through PATH. progress may be
// nil.
func (a *App) Startup(ctx context.Context, progress func(Step)) error {
	defer func() { a.Client.SetPaths(a.installedPaths()) }()

	rts := a.Layout.Runtimes()
	for i, rt := range rts {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := Step{Component: rt.Name, Target: rt.Target, Index: i + 1, Total: len(rts)}
		written, err := a.Installer.Install(a.resources, rt)
		switch {
		case errors.Is(err, bundle.ErrResourceMissing):
			a.log.Info().Str("component", rt.Name).Msg("not bundled, using PATH")
			step.Skipped = true
			err = nil
		case err != nil:
			a.log.Error().Err(err).Str("component", rt.Name).Msg("provisioning failed")
			step.Err = err
		default:
			step.Written = written
		}
		if progress != nil {
			progress(step)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// installedPaths returns the layout path of every tool present on disk and
// leaves the others empty so they resolve through PATH.
func (a *App) installedPaths() adb.Paths {
	present := func(path string) string {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
		return ""
	}
	return adb.Paths{
		Adb:           present(a.Layout.Adb()),
		Fastboot:      present(a.Layout.Fastboot()),
		Python:        present(a.Layout.Python()),
		PayloadDumper: present(a.Layout.PayloadDumper()),
		MagiskPatcher: present(a.Layout.MagiskPatcher()),
	}
}

// Refresh runs one discovery pass synchronously.
func (a *App) Refresh(ctx context.Context) (discovery.Result, error) {
	return a.Engine.Run(ctx, nil)
}

// Watch runs discovery on every USB change until ctx is cancelled. The
// first pass runs immediately. onPass, when non-nil, receives each pass
// result on the scheduler's goroutine.
func (a *App) Watch(ctx context.Context, onPass func(discovery.Result)) error {
	a.onPass = onPass
	a.Scheduler.Start(ctx)
	defer a.Scheduler.Stop()

	w := hotplug.NewWatcher(a.Scheduler.Notify,
		hotplug.WithPollInterval(a.Config.PollInterval),
		hotplug.WithPollNotify(a.Scheduler.NotifyCoalesced),
		hotplug.WithWatcherLogger(logging.For(a.log, "hotplug")),
	)
	return w.Run(ctx)
}

// Close stops the shell and closes the manifest.
func (a *App) Close() error {
	return errors.Join(a.Session.Close(), a.Manifest.Close())
}
