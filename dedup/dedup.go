// Package dedup tracks the content digests of the images already present in a
// download directory so repeats can be skipped.
package dedup

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// TempPrefix is the name prefix of in-flight writes. Load ignores such files.
const TempPrefix = ".imgfetch-"

// Digest is the fingerprint of a file's contents. It detects accidental
// duplicates; it is not meant to resist deliberate collisions.
type Digest [md5.Size]byte

// Sum returns the digest of b.
func Sum(b []byte) Digest {
	return Digest(md5.Sum(b))
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Index is a set of digests. It only grows. It is not safe for concurrent use.
type Index struct {
	digests map[Digest]struct{}
}

func NewIndex() *Index {
	return &Index{
		digests: map[Digest]struct{}{},
	}
}

// Load builds an index from the regular files directly inside dir. It is
// best-effort: a missing directory yields an empty index, and files that
// can't be read are skipped.
func Load(fs afero.Fs, dir string) *Index {
	ix := NewIndex()

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Debugf("cannot list directory; starting with empty index: dir=%s", dir)
		}
		return ix
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), TempPrefix) {
			continue
		}

		path := filepath.Join(dir, e.Name())

		// Stat rather than trusting the entry so symlinks to files count.
		info, err := fs.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		b, err := afero.ReadFile(fs, path)
		if err != nil {
			log.WithError(err).Debugf("skipping unreadable file: path=%s", path)
			continue
		}

		ix.Record(Sum(b))
	}

	log.Debugf("loaded %d digests from %s", ix.Len(), dir)
	return ix
}

// Contains returns true if d has been recorded.
func (ix *Index) Contains(d Digest) bool {
	_, ok := ix.digests[d]
	return ok
}

// Record adds d to the index. Recording a digest twice is a no-op.
func (ix *Index) Record(d Digest) {
	ix.digests[d] = struct{}{}
}

func (ix *Index) Len() int {
	return len(ix.digests)
}

// Digests returns every recorded digest in ascending byte order.
func (ix *Index) Digests() []Digest {
	ds := make([]Digest, 0, len(ix.digests))
	for d := range ix.digests {
		ds = append(ds, d)
	}
	slices.SortFunc(ds, func(a, b Digest) int {
		return bytes.Compare(a[:], b[:])
	})
	return ds
}
