package bundle

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"runtime"
)

//go:embed resources
var resources embed.FS

// ErrResourceMissing is returned when the build did not package a resource.
var ErrResourceMissing = errors.New("resource not bundled")

// Source reads bundled resources for one platform.
type Source struct {
	FS   fs.FS
	GOOS string
}

// Default returns the resources embedded in this binary for the host platform.
func Default() Source {
	sub, err := fs.Sub(resources, "resources")
	if err != nil {
		// fs.Sub only fails on an invalid path.
		panic(err)
	}
	return Source{FS: sub, GOOS: runtime.GOOS}
}

// Resource returns the bytes of a bundled resource by logical name.
func (s Source) Resource(name string) ([]byte, error) {
	p := path.Join(s.GOOS, name)
	data, err := fs.ReadFile(s.FS, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrResourceMissing)
		}
		return nil, fmt.Errorf("read resource %s: %w", p, err)
	}
	return data, nil
}

// Names lists the resources bundled for the platform.
func (s Source) Names() ([]string, error) {
	entries, err := fs.ReadDir(s.FS, s.GOOS)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list resources: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
