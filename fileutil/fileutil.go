package fileutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileExists returns true if a file or directory with the given path exists.
func FileExists(fs afero.Fs, filename string) bool {
	_, err := fs.Stat(filename)
	return err == nil
}

// IsDir returns true if a directory with the given path exists.
func IsDir(fs afero.Fs, filename string) bool {
	info, err := fs.Stat(filename)
	return err == nil && info.IsDir()
}

// EnsureDir creates the given directory and any missing parents. A directory
// that already exists is not an error.
func EnsureDir(fs afero.Fs, dir string) error {
	if IsDir(fs, dir) {
		return nil
	}

	err := fs.MkdirAll(dir, 0755)
	if err != nil {
		// Lost a race with someone else creating it.
		if IsDir(fs, dir) {
			return nil
		}
		return fmt.Errorf("failed to create directory: dir=%s err=%w", dir, err)
	}

	return nil
}

// UniquePath returns a path that does not name an existing file. If p is free
// it is returned as is. Otherwise a numeric suffix is inserted before the
// extension: "foo.jpg" becomes "foo_1.jpg", then "foo_2.jpg", and so on.
func UniquePath(fs afero.Fs, p string) string {
	if !FileExists(fs, p) {
		return p
	}

	ext := filepath.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !FileExists(fs, candidate) {
			return candidate
		}
	}
}
