package adb

import (
	"fmt"
	"strings"
)

// State is the connection state a tool reports for a device.
type State string

const (
	StateDevice        State = "DEVICE"
	StateOffline       State = "OFFLINE"
	StateUnauthorized  State = "UNAUTHORIZED"
	StateAuthorizing   State = "AUTHORIZING"
	StateConnecting    State = "CONNECTING"
	StateRecovery      State = "RECOVERY"
	StateRescue        State = "RESCUE"
	StateSideload      State = "SIDELOAD"
	StateBootloader    State = "BOOTLOADER"
	StateHost          State = "HOST"
	StateNoPermissions State = "NO_PERMISSIONS"
	StateFastboot      State = "FASTBOOT"
)

var knownStates = map[State]bool{
	StateDevice:        true,
	StateOffline:       true,
	StateUnauthorized:  true,
	StateAuthorizing:   true,
	StateConnecting:    true,
	StateRecovery:      true,
	StateRescue:        true,
	StateSideload:      true,
	StateBootloader:    true,
	StateHost:          true,
	StateNoPermissions: true,
	StateFastboot:      true,
}

// UnknownStateError is returned for a state token this package does not know.
type UnknownStateError struct {
	Raw string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown device state %q", e.Raw)
}

// ParseState parses a state token as printed by adb or fastboot.
// Tokens are case-insensitive; "no permissions" becomes NO_PERMISSIONS.
func ParseState(raw string) (State, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	// adb prints "no permissions (...)" with a trailing explanation.
	if strings.HasPrefix(token, "NO PERMISSIONS") {
		return StateNoPermissions, nil
	}
	s := State(strings.ReplaceAll(token, " ", "_"))
	if !knownStates[s] {
		return "", &UnknownStateError{Raw: raw}
	}
	return s, nil
}

// Type classifies a device's partition update scheme.
type Type string

const (
	TypeADB      Type = "ADB"
	TypeADBAB    Type = "ADB_AB"
	TypeADBVAB   Type = "ADB_VAB"
	TypeFastboot Type = "FASTBOOT"
)

// Device represents one attached device. Values are never mutated in place.
type Device struct {
	ID    string
	State State
	Type  Type
}

// IsOnline returns true if the device is in "device" state (ready).
func (d Device) IsOnline() bool {
	return d.State == StateDevice
}

// IsFastboot returns true if the device is in bootloader mode.
func (d Device) IsFastboot() bool {
	return d.Type == TypeFastboot
}

func (d Device) String() string {
	return fmt.Sprintf("%s [%s %s]", d.ID, d.State, d.Type)
}
