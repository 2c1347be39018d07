package appack

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// stagingMarker is the nested root used by the conservative install
// variant. The layout normalizer hoists it after emerge finishes.
const stagingMarker = "pkgroot"

// materializePackage installs pkg into the AppDir staging tree via
// emerge. Two variants:
//   - leaf-only (default): dependencies must already be satisfied on the
//     host; emerge installs just the named package directly under the
//     AppDir, which then needs no restructuring.
//   - with deps (APPACK_INSTALL_DEPS=1): emerge resolves runtime
//     dependencies too and stages everything one level deeper, under
//     <appdir>/pkgroot.
//
// Any emerge failure is fatal; the staging tree is left in whatever
// partial state the installer produced.
func materializePackage(pkg string, execCtx *Executor) error {
	root := appDir
	args := []string{"--oneshot"}
	if installDeps {
		root = filepath.Join(appDir, stagingMarker)
		args = append(args, "--root-deps=rdeps")
	} else {
		args = append(args, "--nodeps")
	}
	args = append(args, "--root="+root, pkg)

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create staging root %s: %w", root, err)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Installing %s into %s\n", pkg, root)

	cmd := exec.Command("emerge", args...)
	if err := execCtx.Run(cmd); err != nil {
		return fmt.Errorf("emerge failed for %s: %w", pkg, err)
	}
	return nil
}

// portageArch asks portage for its configured ARCH value, falling back
// to uname -m when portageq is unavailable.
func portageArch() string {
	if _, err := exec.LookPath("portageq"); err == nil {
		cmd := exec.Command("portageq", "envvar", "ARCH")
		if out, err := cmd.Output(); err == nil {
			if s := strings.TrimSpace(string(out)); s != "" {
				return s
			}
		}
	}
	if out, err := exec.Command("uname", "-m").Output(); err == nil {
		return strings.TrimSpace(string(out))
	}
	return hostArch
}
