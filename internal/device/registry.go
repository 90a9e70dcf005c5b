package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lumstudio/yohub/internal/adb"
)

// ErrUnknownDevice is returned when selecting an id that is not registered.
var ErrUnknownDevice = errors.New("unknown device")

// Snapshot is a consistent copy of the registry state.
type Snapshot struct {
	Devices         []adb.Device
	SelectedID      string
	DriverInstalled bool
}

// Selected returns the selected device within the snapshot.
func (s Snapshot) Selected() (adb.Device, bool) {
	if s.SelectedID == "" {
		return adb.Device{}, false
	}
	for _, d := range s.Devices {
		if d.ID == s.SelectedID {
			return d, true
		}
	}
	return adb.Device{}, false
}

// Registry holds the currently visible devices, the active selection and
// the last driver check result. The device list is only ever replaced as a
// whole, by Commit. Observers are notified after every change.
type Registry struct {
	mu              sync.RWMutex
	devices         []adb.Device
	selected        string
	driverInstalled bool

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		driverInstalled: true,
		subs:            make(map[int]func(Snapshot)),
	}
}

// Devices returns a copy of the visible devices in discovery order.
func (r *Registry) Devices() []adb.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]adb.Device(nil), r.devices...)
}

// Len returns the number of visible devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Lookup returns the device with the given id.
func (r *Registry) Lookup(id string) (adb.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

func (r *Registry) lookup(id string) (adb.Device, bool) {
	for _, d := range r.devices {
		if d.ID == id {
			return d, true
		}
	}
	return adb.Device{}, false
}

// Selected returns the active device, if any.
func (r *Registry) Selected() (adb.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == "" {
		return adb.Device{}, false
	}
	return r.lookup(r.selected)
}

// Select makes the device with id the active one.
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	if _, ok := r.lookup(id); !ok {
		r.mu.Unlock()
		return fmt.Errorf("select %s: %w", id, ErrUnknownDevice)
	}
	changed := r.selected != id
	r.selected = id
	snap := r.snapshot()
	r.mu.Unlock()

	if changed {
		r.notify(snap)
	}
	return nil
}

// ClearSelection drops the active device.
func (r *Registry) ClearSelection() {
	r.mu.Lock()
	changed := r.selected != ""
	r.selected = ""
	snap := r.snapshot()
	r.mu.Unlock()

	if changed {
		r.notify(snap)
	}
}

// DriverInstalled returns the last driver check result.
func (r *Registry) DriverInstalled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.driverInstalled
}

// SetDriverInstalled records a driver check result.
func (r *Registry) SetDriverInstalled(installed bool) {
	r.mu.Lock()
	changed := r.driverInstalled != installed
	r.driverInstalled = installed
	snap := r.snapshot()
	r.mu.Unlock()

	if changed {
		r.notify(snap)
	}
}

// Commit replaces the device list and reconciles the selection: a lone
// device is selected when nothing is, and a selection whose id vanished is
// cleared. Duplicate ids keep their first occurrence.
func (r *Registry) Commit(devices []adb.Device) Snapshot {
	next := make([]adb.Device, 0, len(devices))
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		next = append(next, d)
	}

	r.mu.Lock()
	r.devices = next
	if r.selected == "" && len(next) == 1 {
		r.selected = next[0].ID
	}
	if r.selected != "" && !seen[r.selected] {
		r.selected = ""
	}
	snap := r.snapshot()
	r.mu.Unlock()

	r.notify(snap)
	return snap
}

// Snapshot returns a consistent copy of the registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot()
}

func (r *Registry) snapshot() Snapshot {
	return Snapshot{
		Devices:         append([]adb.Device(nil), r.devices...),
		SelectedID:      r.selected,
		DriverInstalled: r.driverInstalled,
	}
}

// Subscribe registers fn to be called with a snapshot after every change.
// fn runs on the goroutine that made the change. The returned function
// removes the subscription.
func (r *Registry) Subscribe(fn func(Snapshot)) func() {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) notify(snap Snapshot) {
	r.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
