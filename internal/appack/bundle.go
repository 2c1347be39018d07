package appack

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"lukechampine.com/blake3"
)

// appimagetoolBaseURL is the fixed source for the bundling tool. No
// integrity verification is performed on the download.
const appimagetoolBaseURL = "https://github.com/AppImage/appimagetool/releases/download/continuous"

// appimageArchNames maps portage ARCH values to appimagetool's naming
// convention. Unrecognized values fall through as the raw host string.
var appimageArchNames = map[string]string{
	"amd64": "x86_64",
	"x86":   "i686",
	"arm64": "aarch64",
	"arm":   "armhf",
}

func appimageArch(portArch string) string {
	if name, ok := appimageArchNames[portArch]; ok {
		return name
	}
	return portArch
}

// ensureExecLink guarantees usr/bin/<binName> exists inside the AppDir,
// creating a relative link to the located binary when it lives
// elsewhere in the tree.
func ensureExecLink(dir, binPath, binName string) error {
	binDir := filepath.Join(dir, "usr", "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", binDir, err)
	}

	want := filepath.Join(binDir, binName)
	if binPath == want {
		return nil
	}
	if _, err := os.Lstat(want); err == nil {
		return nil
	}

	rel, err := filepath.Rel(binDir, binPath)
	if err != nil {
		return fmt.Errorf("failed to compute relative link target: %w", err)
	}
	if err := os.Symlink(rel, want); err != nil {
		return fmt.Errorf("failed to link %s into usr/bin: %w", binName, err)
	}
	debugf("Linked %s -> %s\n", want, rel)
	return nil
}

// fetchAppimagetool downloads the bundling tool for arch into the
// working directory unless a previous run already cached it there.
func fetchAppimagetool(arch string) (string, error) {
	name := fmt.Sprintf("appimagetool-%s.AppImage", arch)
	dest := filepath.Join(workDir, name)
	if fileExists(dest) {
		debugf("appimagetool already cached: %s\n", dest)
		return dest, nil
	}

	url := appimagetoolURL
	if url == "" {
		url = fmt.Sprintf("%s/%s", appimagetoolBaseURL, name)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Fetching %s\n", name)
	if err := downloadFile(url, dest); err != nil {
		return "", fmt.Errorf("failed to fetch appimagetool: %w", err)
	}
	if err := os.Chmod(dest, 0o755); err != nil {
		return "", err
	}
	return dest, nil
}

// buildBundle produces the final artifact from the assembled AppDir and
// returns its path. The default format invokes appimagetool; the tar
// formats are written natively and skip the external tool entirely.
func buildBundle(binName string, execCtx *Executor) (string, error) {
	arch := appimageArch(portageArch())

	if strings.HasPrefix(outputFormat, "tar.") {
		return writeTarball(binName, arch, outputFormat)
	}

	tool, err := fetchAppimagetool(arch)
	if err != nil {
		return "", err
	}

	artifact := filepath.Join(workDir, fmt.Sprintf("%s-%s.AppImage", binName, arch))

	colArrow.Print("-> ")
	colSuccess.Printf("Building AppImage for %s\n", arch)

	cmd := exec.Command(tool, appDir, artifact)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "ARCH="+arch)
	if err := execCtx.Run(cmd); err != nil {
		return "", fmt.Errorf("appimagetool failed: %w", err)
	}
	if !fileExists(artifact) {
		return "", fmt.Errorf("appimagetool reported success but %s is missing", artifact)
	}
	return artifact, nil
}

// writeTarball archives the AppDir with the requested compressor.
func writeTarball(binName, arch, format string) (string, error) {
	artifact := filepath.Join(workDir, fmt.Sprintf("%s-%s.%s", binName, arch, format))

	colArrow.Print("-> ")
	colSuccess.Printf("Creating %s\n", filepath.Base(artifact))

	out, err := os.Create(artifact)
	if err != nil {
		return "", err
	}
	defer out.Close()

	var zw io.WriteCloser
	switch format {
	case "tar.gz":
		zw = pgzip.NewWriter(out)
	case "tar.xz":
		xw, err := xz.NewWriter(out)
		if err != nil {
			return "", err
		}
		zw = xw
	case "tar.zst":
		zs, err := zstd.NewWriter(out)
		if err != nil {
			return "", err
		}
		zw = zs
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}

	tw := tar.NewWriter(zw)

	err = filepath.WalkDir(appDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == appDir {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(appDir, path)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive AppDir: %w", err)
	}

	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return artifact, nil
}

// hashFile computes the BLAKE3 checksum of a file, preferring the
// system b3sum binary and falling back to the internal implementation.
func hashFile(path string) (string, error) {
	if _, err := exec.LookPath("b3sum"); err == nil {
		cmd := exec.Command("b3sum", path)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err == nil {
			fields := strings.Fields(out.String())
			if len(fields) > 0 {
				return fields[0], nil
			}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// reportArtifact lists the finished artifact and its checksum.
func reportArtifact(artifact string) {
	info, err := os.Stat(artifact)
	if err != nil {
		return
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Bundle ready: %s (%d bytes)\n", artifact, info.Size())
	if sum, err := hashFile(artifact); err == nil {
		cPrintf(colInfo, "BLAKE3: %s  %s\n", sum, filepath.Base(artifact))
	}
}
