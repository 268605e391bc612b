package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesRotatedFile(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	dir := t.TempDir()
	require.NoError(t, Init(Config{Level: "debug", File: FileConfig{Directory: dir, MaxSizeMB: 1}}))

	zap.S().Named("test").Infow("hello", "spi", 7)
	_ = zap.L().Sync()

	b, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
	assert.Contains(t, string(b), `"spi":7`)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	require.Error(t, Config{Level: "loud"}.Validate())
	require.Error(t, Config{File: FileConfig{MaxBackups: -1}}.Validate())
}
