package hotplug

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	// DefaultRoot is the usbfs device tree on Linux hosts.
	DefaultRoot = "/dev/bus/usb"

	DefaultDebounce     = 300 * time.Millisecond
	DefaultPollInterval = 5 * time.Second
)

// Watcher calls notify whenever USB devices may have changed. It watches
// the device tree with fsnotify and coalesces bursts of events; when the
// tree cannot be watched it polls on a ticker instead. notify is also
// called once when Run starts.
type Watcher struct {
	notify   func()
	tick     func()
	root     string
	debounce time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithRoot sets the directory tree to watch.
func WithRoot(root string) WatcherOption {
	return func(w *Watcher) { w.root = root }
}

// WithDebounce sets the quiet period that ends an event burst.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithPollInterval sets the fallback polling period. Zero disables polling.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

// WithPollNotify sets the function called on each poll tick. It defaults
// to notify.
func WithPollNotify(fn func()) WatcherOption {
	return func(w *Watcher) { w.tick = fn }
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(l zerolog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher creates a watcher that reports changes through notify.
func NewWatcher(notify func(), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		notify:   notify,
		root:     DefaultRoot,
		debounce: DefaultDebounce,
		interval: DefaultPollInterval,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tick == nil {
		w.tick = notify
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.notify()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn().Err(err).Msg("fsnotify unavailable, polling")
		return w.poll(ctx)
	}
	defer fsw.Close()

	if err := addTree(fsw, w.root); err != nil {
		w.log.Info().Err(err).Str("root", w.root).Msg("cannot watch usb tree, polling")
		return w.poll(ctx)
	}
	w.log.Info().Str("root", w.root).Msg("watching usb tree")

	debounced := debounce.New(w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			// Bus directories appear when a hub is attached.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fsw.Add(event.Name); err != nil {
						w.log.Debug().Err(err).Str("path", event.Name).Msg("watch new bus")
					}
				}
			}
			w.log.Trace().Str("event", event.String()).Msg("usb event")
			debounced(w.notify)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	if w.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick()
		}
	}
}

func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
}
