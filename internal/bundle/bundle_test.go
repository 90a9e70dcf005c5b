package bundle

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource(t *testing.T) {
	src := Source{
		FS: fstest.MapFS{
			"linux/adb":       {Data: []byte("adb-linux")},
			"windows/adb.exe": {Data: []byte("adb-windows")},
		},
		GOOS: "linux",
	}

	data, err := src.Resource("adb")
	require.NoError(t, err)
	assert.Equal(t, []byte("adb-linux"), data)

	_, err = src.Resource("adb.exe")
	assert.ErrorIs(t, err, ErrResourceMissing)
}

func TestNames(t *testing.T) {
	src := Source{
		FS: fstest.MapFS{
			"darwin/adb":      {Data: []byte("a")},
			"darwin/fastboot": {Data: []byte("f")},
		},
		GOOS: "darwin",
	}
	names, err := src.Names()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"adb", "fastboot"}, names)

	src.GOOS = "plan9"
	names, err = src.Names()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDefaultReadsEmbeddedTree(t *testing.T) {
	src := Default()
	_, err := src.Resource("definitely-not-bundled")
	assert.ErrorIs(t, err, ErrResourceMissing)
}
