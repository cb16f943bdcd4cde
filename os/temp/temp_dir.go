// Package temp makes hierarchical temporary directories.
// Workers stage downloaded and copied artifacts in them before moving the
// result into place, so readers never see a half written folder.
package temp

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Create a new TempDir in directory dir with prefix string.
func NewTempDir(dir, prefix string) (*TempDir, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, errors.Wrapf(err, "couldn't create %s", dir)
	}
	p, err := os.MkdirTemp(dir, prefix)
	if err != nil {
		return nil, err
	}
	return &TempDir{Dir: p}, nil
}

// TempDir is a temporary directory, that may live under other temporary directories.
type TempDir struct {
	Dir string
}

// Create a new temporary file under d
func (d *TempDir) TempFile(prefix string) (*os.File, error) {
	return os.CreateTemp(d.Dir, prefix)
}

// MoveTo replaces dst with the contents of d. d must be on the same
// filesystem as dst and is gone afterwards.
func (d *TempDir) MoveTo(dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0777); err != nil {
		return err
	}
	if err := os.RemoveAll(dst); err != nil {
		return errors.Wrapf(err, "couldn't remove previous %s", dst)
	}
	return os.Rename(d.Dir, dst)
}

// Remove deletes d and everything under it.
func (d *TempDir) Remove() error {
	return os.RemoveAll(d.Dir)
}
