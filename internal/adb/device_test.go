package adb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	cases := map[string]State{
		"device":                           StateDevice,
		"OFFLINE":                          StateOffline,
		" unauthorized ":                   StateUnauthorized,
		"recovery":                         StateRecovery,
		"sideload":                         StateSideload,
		"fastboot":                         StateFastboot,
		"no permissions (user in plugdev)": StateNoPermissions,
	}
	for raw, want := range cases {
		got, err := ParseState(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseStateUnknown(t *testing.T) {
	_, err := ParseState("teleporting")
	require.Error(t, err)

	var use *UnknownStateError
	require.True(t, errors.As(err, &use))
	assert.Equal(t, "teleporting", use.Raw)
}

func TestDevicePredicates(t *testing.T) {
	d := Device{ID: "emulator-5554", State: StateDevice, Type: TypeADB}
	assert.True(t, d.IsOnline())
	assert.False(t, d.IsFastboot())
	assert.Equal(t, "emulator-5554 [DEVICE ADB]", d.String())

	fb := Device{ID: "0123456789ABCDEF", State: StateFastboot, Type: TypeFastboot}
	assert.False(t, fb.IsOnline())
	assert.True(t, fb.IsFastboot())
}
