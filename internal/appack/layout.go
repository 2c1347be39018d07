package appack

import (
	"fmt"
	"os"
	"path/filepath"
)

// normalizeLayout hoists a nested staging root one level up. The
// conservative emerge variant stages under <dir>/pkgroot; the bundle
// format wants usr/ directly under the AppDir. The old root is renamed
// aside first so a partially moved tree is never mistaken for the
// marker on a re-run. Running against an already-normalized tree is a
// no-op (marker absent).
func normalizeLayout(dir string) error {
	marker := filepath.Join(dir, stagingMarker)
	if _, err := os.Stat(marker); os.IsNotExist(err) {
		debugf("Layout already normalized: no %s under %s\n", stagingMarker, dir)
		return nil
	}

	aside := filepath.Join(dir, "."+stagingMarker+".old")
	if err := os.Rename(marker, aside); err != nil {
		return fmt.Errorf("failed to rename staging root aside: %w", err)
	}

	entries, err := os.ReadDir(aside)
	if err != nil {
		return fmt.Errorf("failed to read staging root: %w", err)
	}
	for _, e := range entries {
		src := filepath.Join(aside, e.Name())
		dst := filepath.Join(dir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to hoist %s: %w", e.Name(), err)
		}
	}

	if err := os.Remove(aside); err != nil {
		return fmt.Errorf("failed to remove empty staging shell: %w", err)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Hoisted %s contents into %s\n", stagingMarker, dir)
	return nil
}
