package download

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ccollins476ad/imgfetch/dedup"
	"github.com/ccollins476ad/imgfetch/fileutil"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Store saves downloaded images into a single destination directory.
type Store struct {
	destDir string // constant
	fs      afero.Fs
}

func NewStore(fs afero.Fs, destDir string) *Store {
	return &Store{
		destDir: destDir,
		fs:      fs,
	}
}

// Dir returns the store's destination directory.
func (s *Store) Dir() string {
	return s.destDir
}

// Fs returns the filesystem the store writes to.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// SaveFile writes b to the destination directory under the given filename,
// creating the directory if necessary. If the name is taken, a numeric
// suffix is added (see fileutil.UniquePath); existing files are never
// overwritten. The content is written to a temporary file first and then
// renamed into place, so a failed save leaves nothing behind. It returns the
// path of the new file.
func (s *Store) SaveFile(filename string, b []byte) (string, error) {
	err := fileutil.EnsureDir(s.fs, s.destDir)
	if err != nil {
		return "", err
	}

	destPath := fileutil.UniquePath(s.fs, filepath.Join(s.destDir, filename))

	tmp, err := afero.TempFile(s.fs, s.destDir, dedup.TempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: dir=%s err=%w", s.destDir, err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(b)
	err = errors.Join(err, tmp.Close())
	if err == nil {
		err = s.fs.Chmod(tmpPath, 0644)
	}
	if err == nil {
		err = s.fs.Rename(tmpPath, destPath)
	}
	if err != nil {
		if rmErr := s.fs.Remove(tmpPath); rmErr != nil {
			log.WithError(rmErr).Debugf("failed to remove temporary file: path=%s", tmpPath)
		}
		return "", fmt.Errorf("failed to save file: path=%s err=%w", destPath, err)
	}

	log.Infof("saved %s (%d bytes)", destPath, len(b))
	return destPath, nil
}
