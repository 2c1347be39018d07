package appack

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// appRunTemplate is the indirection script written into the bundle
// root. The binary name is substituted in only after the locator has
// resolved the real binary, so the script can never reference a name
// that is not actually present in usr/bin.
const appRunTemplate = `#!/bin/sh
HERE="$(dirname "$(readlink -f "$0")")"
export APPDIR="$HERE"
export LD_LIBRARY_PATH="$HERE/usr/lib64:$HERE/usr/lib:$LD_LIBRARY_PATH"
export PATH="$HERE/usr/bin:$PATH"
exec "$HERE/usr/bin/__APPACK_BIN__" "$@"
`

const launcherPlaceholder = "__APPACK_BIN__"

// writeLauncher emits AppRun with the located binary substituted in.
func writeLauncher(dir, binName string) error {
	script := strings.ReplaceAll(appRunTemplate, launcherPlaceholder, binName)
	path := filepath.Join(dir, "AppRun")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return fmt.Errorf("failed to write launcher: %w", err)
	}
	debugf("Launcher written to %s\n", path)
	return nil
}

// writeDesktopEntry emits the desktop-integration descriptor next to
// the launcher.
func writeDesktopEntry(dir, binName, displayName string) error {
	entry := fmt.Sprintf(`[Desktop Entry]
Name=%s
Exec=%s
Icon=%s
Type=Application
Categories=Utility;
`, displayName, binName, binName)

	path := filepath.Join(dir, binName+".desktop")
	if err := os.WriteFile(path, []byte(entry), 0o644); err != nil {
		return fmt.Errorf("failed to write desktop entry: %w", err)
	}
	return nil
}

// generateIcon produces a best-effort placeholder icon. ImageMagick is
// tried first (magick, then the legacy convert entry point); when
// neither works a flat Go-native PNG is written instead. Every failure
// here is silent: a missing icon never blocks the bundle.
func generateIcon(dir, binName, displayName string) {
	iconPath := filepath.Join(dir, binName+".png")

	for _, tool := range []string{"magick", "convert"} {
		if _, err := exec.LookPath(tool); err != nil {
			continue
		}
		cmd := exec.Command(tool,
			"-size", "256x256", "xc:#455a64",
			"-fill", "white", "-gravity", "center", "-pointsize", "48",
			"-annotate", "0", displayName,
			iconPath)
		cmd.Stdout = nil
		cmd.Stderr = nil
		if err := cmd.Run(); err == nil {
			debugf("Icon generated with %s: %s\n", tool, iconPath)
			return
		}
	}

	// Go-native fallback: a plain tile with no lettering.
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	fill := color.RGBA{R: 0x45, G: 0x5a, B: 0x64, A: 0xff}
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, fill)
		}
	}
	f, err := os.Create(iconPath)
	if err != nil {
		return
	}
	defer f.Close()
	_ = png.Encode(f, img)
}
