package appack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLister injects a fixed dependency listing.
type fakeLister struct {
	libs []string
	err  error
}

func (f *fakeLister) List(string) ([]string, error) { return f.libs, f.err }

func newAppDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "usr", "bin"), 0o755))
	return dir
}

func writeLib(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("\x7fELF"), 0o755))
	return path
}

func TestIsSystemLib(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/lib64/ld-linux-x86-64.so.2", true},
		{"/lib64/libc.so.6", true},
		{"/lib64/libm.so.6", true},
		{"/lib64/libpthread.so.0", true},
		{"/lib64/librt.so.1", true},
		{"/lib64/libdl.so.2", true},
		{"/lib64/libnsl.so.1", true},
		{"/lib64/libresolv.so.2", true},
		{"/lib64/libcrypt.so.1", true},
		{"linux-vdso.so.1", true},
		{"/usr/lib64/alsa-lib/libasound_module_pcm_pulse.so", true},
		{"/usr/lib64/libjq.so.1", false},
		{"/usr/lib64/libonig.so.5", false},
		{"/usr/lib64/libcrypto.so.3", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSystemLib(tt.path), tt.path)
	}
}

func TestAuditNeverCopiesDenylistedLibraries(t *testing.T) {
	appdir := newAppDir(t)
	srcDir := t.TempDir()
	libc := writeLib(t, srcDir, "libc.so.6")
	ld := writeLib(t, srcDir, "ld-linux-x86-64.so.2")
	keep := writeLib(t, srcDir, "libonig.so.5")

	auditLibraries(appdir, "ignored", &fakeLister{libs: []string{libc, ld, keep}})

	assert.NoFileExists(t, filepath.Join(appdir, "usr", "lib", "libc.so.6"))
	assert.NoFileExists(t, filepath.Join(appdir, "usr", "lib64", "libc.so.6"))
	assert.NoFileExists(t, filepath.Join(appdir, "usr", "lib", "ld-linux-x86-64.so.2"))
	assert.FileExists(t, filepath.Join(appdir, "usr", "lib", "libonig.so.5"))
}

func TestAuditSkipsBaseNamesAlreadyStaged(t *testing.T) {
	appdir := newAppDir(t)
	// emerge already staged this library somewhere under usr/.
	writeLib(t, filepath.Join(appdir, "usr", "lib64"), "libjq.so.1")

	src := writeLib(t, t.TempDir(), "libjq.so.1")
	auditLibraries(appdir, "ignored", &fakeLister{libs: []string{src}})

	assert.NoFileExists(t, filepath.Join(appdir, "usr", "lib", "libjq.so.1"))
}

func TestAuditBundlesSymlinkAndRealFile(t *testing.T) {
	appdir := newAppDir(t)
	srcDir := t.TempDir()
	real := writeLib(t, srcDir, "libonig.so.5.4.0")
	link := filepath.Join(srcDir, "libonig.so.5")
	require.NoError(t, os.Symlink(real, link))

	auditLibraries(appdir, "ignored", &fakeLister{libs: []string{link}})

	// Non-standard source dir collapses into the canonical usr/lib.
	target := filepath.Join(appdir, "usr", "lib")
	require.FileExists(t, filepath.Join(target, "libonig.so.5.4.0"))

	got, err := os.Readlink(filepath.Join(target, "libonig.so.5"))
	require.NoError(t, err)
	assert.Equal(t, "libonig.so.5.4.0", got, "symlink must resolve inside the bundle lib dir")

	resolved, err := filepath.EvalSymlinks(filepath.Join(target, "libonig.so.5"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(target, "libonig.so.5.4.0"), resolved)
}

func TestAuditStandardLib64Mapping(t *testing.T) {
	assert.Equal(t, "/a/usr/lib64", libTargetDir("/a", "/usr/lib64/libx.so"))
	assert.Equal(t, "/a/usr/lib64", libTargetDir("/a", "/lib64/libx.so"))
	assert.Equal(t, "/a/usr/lib", libTargetDir("/a", "/usr/lib/libx.so"))
	assert.Equal(t, "/a/usr/lib", libTargetDir("/a", "/opt/vendor/libx.so"))
}

func TestAuditNilListerBundlesNothing(t *testing.T) {
	appdir := newAppDir(t)
	auditLibraries(appdir, "ignored", nil)
	assert.NoDirExists(t, filepath.Join(appdir, "usr", "lib"))
	assert.NoDirExists(t, filepath.Join(appdir, "usr", "lib64"))
}

func TestAuditToleratesMissingPaths(t *testing.T) {
	appdir := newAppDir(t)
	src := writeLib(t, t.TempDir(), "libonig.so.5")

	auditLibraries(appdir, "ignored", &fakeLister{libs: []string{"/does/not/exist/libz.so.1", src}})

	// The missing entry warns and is skipped; the good one still lands.
	assert.FileExists(t, filepath.Join(appdir, "usr", "lib", "libonig.so.5"))
	assert.NoFileExists(t, filepath.Join(appdir, "usr", "lib", "libz.so.1"))
}

func TestBundleLibraryDoesNotDuplicateRealFile(t *testing.T) {
	appdir := newAppDir(t)
	srcDir := t.TempDir()
	real := writeLib(t, srcDir, "libx.so.1.0")
	linkA := filepath.Join(srcDir, "libx.so.1")
	linkB := filepath.Join(srcDir, "libx.so")
	require.NoError(t, os.Symlink(real, linkA))
	require.NoError(t, os.Symlink(real, linkB))

	require.NoError(t, bundleLibrary(appdir, linkA))
	require.NoError(t, bundleLibrary(appdir, linkB))

	target := filepath.Join(appdir, "usr", "lib")
	assert.FileExists(t, filepath.Join(target, "libx.so.1.0"))
	for _, name := range []string{"libx.so.1", "libx.so"} {
		got, err := os.Readlink(filepath.Join(target, name))
		require.NoError(t, err)
		assert.Equal(t, "libx.so.1.0", got)
	}
}

func TestBundleLibraryRejectsDanglingSymlink(t *testing.T) {
	appdir := newAppDir(t)
	srcDir := t.TempDir()
	link := filepath.Join(srcDir, "libgone.so.1")
	require.NoError(t, os.Symlink(filepath.Join(srcDir, "missing.so"), link))

	err := bundleLibrary(appdir, link)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(appdir, "usr", "lib", "libgone.so.1"))
}
