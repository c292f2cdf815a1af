package payload

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Manifest lists host files to seed.
//
//	files:
//	  - path: roms/mega65-920377.rom
//	    name: MEGA65.ROM
//	  - path: FREEZER.M65
type Manifest struct {
	Files []ManifestEntry `yaml:"files"`
}

// ManifestEntry is one file. Name defaults to the base name of Path.
type ManifestEntry struct {
	Path string `yaml:"path"`
	Name string `yaml:"name,omitempty"`
}

// LoadManifest reads the manifest at path and stats every file in it.
// Relative paths resolve against the manifest's directory.
func LoadManifest(path string) ([]File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m Manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	var (
		files []File
		errs  *multierror.Error
	)
	for i, e := range m.Files {
		if e.Path == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: entry %d has no path", path, i))
			continue
		}
		p := e.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		hf, err := HostFile(p, e.Name)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		files = append(files, hf)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return files, nil
}
