package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		want := filepath.Join(t.TempDir(), "a", "b")
		got, err := EnsureDir(want)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.DirExists(t, want)
	})

	t.Run("env", func(t *testing.T) {
		want := filepath.Join(t.TempDir(), "env")
		t.Setenv(envDir, want)
		got, err := EnsureDir("")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv(envDir, "")
		t.Setenv("HOME", home)
		got, err := EnsureDir("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, rootDir), got)

		info, err := os.Stat(got)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	})
}
