package appack

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// errBinaryNotFound signals a binary-name/package mismatch; the CLI
// maps it to a distinct exit code since the user has to fix the name.
var errBinaryNotFound = errors.New("binary not found")

// locateBinary walks the tree for a regular executable file named
// exactly name and returns the first match in lexical walk order.
func locateBinary(root, name string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() != name {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.Mode().IsRegular() || info.Mode()&0o111 == 0 {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", errBinaryNotFound
	}
	return found, nil
}
