package provision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/lumstudio/yohub/internal/manifest"

	"github.com/rs/zerolog"
)

// MarkerStore persists the size and digest last written to each target.
type MarkerStore interface {
	Lookup(targetPath string) (manifest.Entry, bool, error)
	Record(name, targetPath string, size int64, sha string) error
}

// ResourceSource provides bundled resource bytes by logical name.
type ResourceSource interface {
	Resource(name string) ([]byte, error)
}

// Installer extracts bundled runtimes to disk, once per distinct content.
type Installer struct {
	markers MarkerStore
	goos    string
	log     zerolog.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the installer's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(i *Installer) { i.log = l }
}

// WithGOOS overrides the platform used to decide on executable bits.
func WithGOOS(goos string) Option {
	return func(i *Installer) { i.goos = goos }
}

// NewInstaller creates an installer. markers may be nil, in which case
// up-to-date checks fall back to comparing content.
func NewInstaller(markers MarkerStore, opts ...Option) *Installer {
	i := &Installer{
		markers: markers,
		goos:    runtime.GOOS,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install reads rt's resource from src and installs it.
func (i *Installer) Install(src ResourceSource, rt Runtime) (bool, error) {
	data, err := src.Resource(rt.Resource)
	if err != nil {
		return false, &ProvisionError{Component: rt.Name, Target: rt.Target, Err: err}
	}
	return i.install(rt.Name, data, rt.Target, rt.Executable)
}

// InstallRuntime writes data to target unless target already holds exactly
// that content. It reports whether the file was written.
func (i *Installer) InstallRuntime(data []byte, target string) (bool, error) {
	return i.install(filepath.Base(target), data, target, true)
}

func (i *Installer) install(name string, data []byte, target string, executable bool) (bool, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	size := int64(len(data))

	if i.upToDate(name, target, size, digest) {
		i.log.Debug().Str("component", name).Str("target", target).Msg("runtime up to date")
		return false, nil
	}

	if err := writeAtomic(target, data, executable && i.goos != "windows"); err != nil {
		return false, &ProvisionError{Component: name, Target: target, Err: err}
	}
	i.record(name, target, size, digest)
	i.log.Info().Str("component", name).Str("target", target).Int64("size", size).Msg("runtime installed")
	return true, nil
}

func (i *Installer) upToDate(name, target string, size int64, digest string) bool {
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return false
	}
	if i.markers != nil {
		e, ok, err := i.markers.Lookup(target)
		if err != nil {
			i.log.Warn().Err(err).Str("target", target).Msg("runtime marker lookup failed")
		} else if ok && e.Matches(size, digest) && info.Size() == size {
			return true
		}
	}
	if info.Size() != size {
		return false
	}
	onDisk, err := fileDigest(target)
	if err != nil || onDisk != digest {
		return false
	}
	// Content matches but the marker is missing or stale.
	i.record(name, target, size, digest)
	return true
}

func (i *Installer) record(name, target string, size int64, digest string) {
	if i.markers == nil {
		return
	}
	if err := i.markers.Record(name, target, size, digest); err != nil {
		i.log.Warn().Err(err).Str("target", target).Msg("record runtime marker")
	}
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeAtomic writes data next to target and renames it into place, so an
// interrupted install never leaves a truncated target behind.
func writeAtomic(target string, data []byte, executable bool) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close: %w", err)
	}
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
