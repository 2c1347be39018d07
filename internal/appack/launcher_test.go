package appack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLauncherSubstitutesBinary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeLauncher(dir, "jq"))

	data, err := os.ReadFile(filepath.Join(dir, "AppRun"))
	require.NoError(t, err)
	script := string(data)

	assert.Contains(t, script, `exec "$HERE/usr/bin/jq" "$@"`)
	assert.NotContains(t, script, launcherPlaceholder)
	assert.Contains(t, script, "LD_LIBRARY_PATH=")
	assert.Contains(t, script, `export PATH="$HERE/usr/bin:$PATH"`)

	info, err := os.Stat(filepath.Join(dir, "AppRun"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111, "launcher must be executable")
}

func TestWriteDesktopEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeDesktopEntry(dir, "jq", "JQ"))

	data, err := os.ReadFile(filepath.Join(dir, "jq.desktop"))
	require.NoError(t, err)
	entry := string(data)

	assert.Contains(t, entry, "[Desktop Entry]")
	assert.Contains(t, entry, "Name=JQ\n")
	assert.Contains(t, entry, "Exec=jq\n")
	assert.Contains(t, entry, "Icon=jq\n")
	assert.Contains(t, entry, "Type=Application")
}

func TestGenerateIconBestEffort(t *testing.T) {
	dir := t.TempDir()
	// Must not fail the run regardless of what tools the host has; at
	// worst the Go-native fallback writes the placeholder.
	generateIcon(dir, "jq", "JQ")
	assert.FileExists(t, filepath.Join(dir, "jq.png"))
}
