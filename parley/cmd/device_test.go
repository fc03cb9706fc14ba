package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceIDIsCreatedOnceAndReused(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".parley", "device_id")

	first, err := deviceID(path)
	require.NoError(t, err)
	assert.Len(t, first, 36)

	second, err := deviceID(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(path, []byte("  custom-device \n"), 0o600))
	third, err := deviceID(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-device", third)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"chats", "new", "chat", "delete"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("server"))
}
