package appack

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DependencyLister enumerates the transitive shared-library dependency
// set of an executable. The real implementation shells out to lddtree;
// tests inject their own. A nil lister means the tool is unavailable
// and the audit is skipped entirely.
type DependencyLister interface {
	List(binary string) ([]string, error)
}

// LddtreeLister lists dependencies with pax-utils' lddtree.
type LddtreeLister struct {
	Exec *Executor
}

// newDependencyLister returns the lddtree-backed lister, or nil when
// lddtree is not installed on the host.
func newDependencyLister(execCtx *Executor) DependencyLister {
	if _, err := exec.LookPath("lddtree"); err != nil {
		return nil
	}
	return &LddtreeLister{Exec: execCtx}
}

// List runs `lddtree -l` and returns the resolved library paths, one
// absolute path per line. The first line is the binary itself and is
// dropped.
func (l *LddtreeLister) List(binary string) ([]string, error) {
	cmd := exec.Command("lddtree", "-l", binary)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr

	if err := l.Exec.Run(cmd); err != nil {
		return nil, fmt.Errorf("lddtree failed for %s: %w", binary, err)
	}

	var libs []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == binary {
			continue
		}
		if strings.HasPrefix(line, "/") {
			libs = append(libs, line)
		}
	}
	return libs, scanner.Err()
}

// systemLibPatterns is the denylist of base names assumed present on
// any compatible target: the dynamic linker, the core glibc set, the
// virtual DSO and sound-backend plugin libraries. Bundling these risks
// incompatibility, not portability.
var systemLibPatterns = []string{
	"ld-*",
	"libc.so*",
	"libm.so*",
	"libdl.so*",
	"libpthread.so*",
	"librt.so*",
	"libnsl.so*",
	"libresolv.so*",
	"libcrypt.so*",
	"linux-vdso*",
	"linux-gate*",
	"libasound*",
}

func isSystemLib(libPath string) bool {
	base := filepath.Base(libPath)
	for _, pat := range systemLibPatterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
	}
	return false
}

// libAction is the classification of one dependency entry.
type libAction int

const (
	libExclude   libAction = iota // assumed present on the target system
	libRedundant                  // same base name already staged by emerge
	libBundle                     // must be copied into the bundle
)

// classifyLibrary decides what to do with one resolved dependency path.
// dir is the AppDir; the redundancy check covers its installed-files
// subtree (usr/).
func classifyLibrary(dir, libPath string) libAction {
	if isSystemLib(libPath) {
		return libExclude
	}
	if baseNameExistsUnder(filepath.Join(dir, "usr"), filepath.Base(libPath)) {
		return libRedundant
	}
	return libBundle
}

// libTargetDir maps a library's source directory to its directory
// inside the bundle. The standard 64-bit locations keep their layout;
// everything else collapses into the canonical usr/lib.
func libTargetDir(dir, libPath string) string {
	switch filepath.Dir(libPath) {
	case "/lib64", "/usr/lib64":
		return filepath.Join(dir, "usr", "lib64")
	case "/lib", "/usr/lib":
		return filepath.Join(dir, "usr", "lib")
	}
	debugf("Relocating %s from non-standard %s into usr/lib\n",
		filepath.Base(libPath), filepath.Dir(libPath))
	return filepath.Join(dir, "usr", "lib")
}

// bundleLibrary copies one library into the bundle. A symlink source is
// resolved to its real file first; the real file is copied (when not
// already present by that name) and the symlink recreated by name,
// pointing at the real file's base name within the same directory. A
// link that cannot be fully resolved is never copied.
func bundleLibrary(dir, libPath string) error {
	target := libTargetDir(dir, libPath)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	info, err := os.Lstat(libPath)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return copyFile(libPath, filepath.Join(target, filepath.Base(libPath)))
	}

	real, err := filepath.EvalSymlinks(libPath)
	if err != nil {
		return fmt.Errorf("unresolvable symlink %s: %w", libPath, err)
	}
	realBase := filepath.Base(real)
	realDst := filepath.Join(target, realBase)
	if !fileExists(realDst) {
		if err := copyFile(real, realDst); err != nil {
			return err
		}
	}

	linkName := filepath.Join(target, filepath.Base(libPath))
	if filepath.Base(libPath) == realBase {
		return nil
	}
	if _, err := os.Lstat(linkName); err == nil {
		os.Remove(linkName)
	}
	return os.Symlink(realBase, linkName)
}

// auditLibraries resolves the located binary's dependency set and
// copies everything that cannot be assumed present on the target. The
// whole step is best-effort and additive: per-library failures are
// reported and skipped, and a missing lister tool skips the audit with
// a warning instead of aborting the run.
func auditLibraries(dir, binPath string, lister DependencyLister) {
	if lister == nil {
		colWarn.Println("Warning: lddtree not found; skipping automatic library bundling")
		return
	}

	libs, err := lister.List(binPath)
	if err != nil {
		colWarn.Printf("Warning: dependency listing failed: %v\n", err)
		return
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Auditing %d shared-library dependencies\n", len(libs))

	bundled := 0
	for _, lib := range libs {
		if !fileExists(lib) {
			colWarn.Printf("Warning: listed library %s missing on disk, skipping\n", lib)
			continue
		}
		switch classifyLibrary(dir, lib) {
		case libExclude:
			debugf("System library, not bundled: %s\n", filepath.Base(lib))
		case libRedundant:
			debugf("Already staged by emerge: %s\n", filepath.Base(lib))
		case libBundle:
			if err := bundleLibrary(dir, lib); err != nil {
				colWarn.Printf("Warning: failed to bundle %s: %v\n", lib, err)
				continue
			}
			if Verbose {
				cPrintf(colInfo, "  + %s\n", lib)
			}
			bundled++
		}
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Bundled %d libraries\n", bundled)
}
