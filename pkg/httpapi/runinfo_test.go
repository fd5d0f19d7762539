package httpapi

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInfoStore_RoundTrip(t *testing.T) {
	store := &RunInfoStore{dir: t.TempDir()}

	// Nothing recorded yet.
	info, err := store.Read()
	require.NoError(t, err)
	assert.Nil(t, info)

	want := &RunInfo{
		PID:        os.Getpid(),
		Address:    "127.0.0.1:8132",
		PluginsDir: "/srv/plugins",
		StartedAt:  time.Now().UTC().Truncate(time.Second),
		Version:    "1.2.3",
	}
	require.NoError(t, store.Write(want))

	got, err := store.Read()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.PID, got.PID)
	assert.Equal(t, want.Address, got.Address)
	assert.Equal(t, want.PluginsDir, got.PluginsDir)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, want.Version, got.Version)

	require.NoError(t, store.Clear())
	info, err = store.Read()
	require.NoError(t, err)
	assert.Nil(t, info)

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}

func TestNewRunInfoStore_UsesBasePath(t *testing.T) {
	base := t.TempDir()
	t.Setenv("LDAGENT_BASE_PATH", base)

	store, err := NewRunInfoStore()
	require.NoError(t, err)

	require.NoError(t, store.Write(&RunInfo{PID: 1}))
	assert.FileExists(t, filepath.Join(base, runInfoFile))
}

func TestAlive(t *testing.T) {
	assert.True(t, Alive(&RunInfo{PID: os.Getpid()}))
	assert.False(t, Alive(nil))
	assert.False(t, Alive(&RunInfo{PID: 0}))
	assert.False(t, Alive(&RunInfo{PID: 1 << 30}))
}
