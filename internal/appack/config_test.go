package appack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on", " 1 "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "false", "no", "off", "2"} {
		assert.False(t, isTruthy(v), v)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appack.conf")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
APPACK_TMPDIR="/var/tmp"
APPACK_OUTPUT_FORMAT = tar.zst
malformed line without separator
`), 0o644))

	t.Setenv("APPACK_OUTPUT_FORMAT", "tar.xz")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp", cfg.Values["APPACK_TMPDIR"])
	// Environment wins over the file.
	assert.Equal(t, "tar.xz", cfg.Values["APPACK_OUTPUT_FORMAT"])
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp", cfg.Values["APPACK_TMPDIR"])
}

func TestInitConfigDefaults(t *testing.T) {
	oldTmp, oldFmt, oldDeps := tmpDir, outputFormat, installDeps
	oldDebug, oldVerbose, oldURL := Debug, Verbose, appimagetoolURL
	t.Cleanup(func() {
		tmpDir, outputFormat, installDeps = oldTmp, oldFmt, oldDeps
		Debug, Verbose, appimagetoolURL = oldDebug, oldVerbose, oldURL
	})

	initConfig(&Config{Values: map[string]string{}})
	assert.Equal(t, "/tmp", tmpDir)
	assert.Equal(t, "appimage", outputFormat)
	assert.False(t, installDeps)
	assert.False(t, Debug)

	initConfig(&Config{Values: map[string]string{
		"APPACK_TMPDIR":       "/var/tmp",
		"APPACK_INSTALL_DEPS": "1",
		"APPACK_DEBUG":        "yes",
	}})
	assert.Equal(t, "/var/tmp", tmpDir)
	assert.True(t, installDeps)
	assert.True(t, Debug)
	assert.Equal(t, filepath.Join("/var/tmp", "appack-jq"), runWorkDir("jq"))
}
