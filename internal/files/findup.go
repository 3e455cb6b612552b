package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FindUp returns the nearest directory at or above dir containing an entry called name.
// It returns "" if there is none.
func FindUp(name, dir string) (string, error) {
	curDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	for {
		_, err := os.Stat(filepath.Join(curDir, name))
		if err == nil {
			return curDir, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("looking for %s: %w", name, err)
		}
		parent := filepath.Dir(curDir)
		if parent == curDir {
			return "", nil
		}
		curDir = parent
	}
}
