// Package payload enumerates the files that get seeded onto a freshly
// formatted card: files from the host, a YAML manifest of them, or the files
// embedded in a MEGA65 core slot.
package payload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrNotRegular = errors.New("not a regular file")
	ErrCorrupt    = errors.New("corrupt core image")
)

// File is one file to seed. Name is the on-card name, Open yields Size bytes.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// IsROM reports whether f is the MEGA65 system ROM.
func (f File) IsROM() bool {
	return strings.EqualFold(f.Name, "MEGA65.ROM")
}

// HostFile describes the file at path, seeded under name. An empty name
// keeps the base name of path.
func HostFile(path, name string) (File, error) {
	st, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if !st.Mode().IsRegular() {
		return File{}, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return File{
		Name: name,
		Size: st.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// HostFiles stats every path. All failures are reported together.
func HostFiles(paths ...string) ([]File, error) {
	var (
		files []File
		errs  *multierror.Error
	)
	for _, p := range paths {
		f, err := HostFile(p, "")
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		files = append(files, f)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return files, nil
}
