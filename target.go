package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"m65fdisk/blockio"
	"m65fdisk/format"
	"m65fdisk/geometry"
	"m65fdisk/payload"
	"m65fdisk/sector"
	"m65fdisk/syspart"
)

// target is an opened image file or block device.
type target struct {
	name    string
	file    *os.File
	dev     *blockio.File
	image   bool
	closeFn func() error
}

func (t *target) Sync() error {
	return t.dev.Sync()
}

func (t *target) Close() error {
	if t.closeFn != nil {
		return t.closeFn()
	}
	return t.file.Close()
}

// sectorsFor converts a byte size to a sector count, capped at what a
// 32-bit LBA can address.
func sectorsFor(size int64) (uint32, bool) {
	n := size / sector.Size
	if n > math.MaxUint32 {
		return math.MaxUint32, true
	}
	return uint32(n), false
}

func newTarget(name string, f *os.File, size int64, image bool, closeFn func() error) *target {
	sectors, capped := sectorsFor(size)
	if capped {
		fmt.Fprintf(os.Stderr, "WARNING: %s is %s, only the first %s are addressable\n",
			name, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(sectors)*sector.Size))
	}
	return &target{
		name:    name,
		file:    f,
		dev:     blockio.NewFile(f, sectors),
		image:   image,
		closeFn: closeFn,
	}
}

// createImage creates an image file of size bytes. With keep set, an
// existing file is reused and only resized, otherwise it starts out zeroed.
func createImage(path string, size int64, keep bool) (*target, error) {
	if size < sector.Size {
		return nil, fmt.Errorf("image size %d is smaller than one sector", size)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}
	flag := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if keep {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return newTarget(path, f, size, true, nil), nil
}

// openTarget opens an existing image file or block device for writing.
func openTarget(path string) (*target, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Mode().IsRegular() {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		return newTarget(path, f, st.Size(), true, nil), nil
	}

	f, size, closeFn, err := openBlockDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	if size <= 0 {
		closeFn()
		return nil, fmt.Errorf("cannot determine size of %s", path)
	}
	return newTarget(path, f, size, false, closeFn), nil
}

type prepareRequest struct {
	out    string
	size   int64
	device string
	files  []payload.File
	yes    bool
}

// prepareTarget shows the current partition table and the plan, gets the
// operator's decision and only then opens the target for writing. An image
// named by out is not created or resized before the decision.
func prepareTarget(ctx context.Context, in *bufio.Reader, w io.Writer, req prepareRequest) (*target, format.Decision, error) {
	var (
		t       *target
		name    string
		sectors uint32
	)
	if req.out != "" {
		name = req.out
		sectors, _ = sectorsFor(req.size)
		if f, err := os.Open(req.out); err == nil {
			showMBR(w, f)
			f.Close()
		}
	} else {
		var err error
		if t, err = openTarget(req.device); err != nil {
			return nil, format.Mismatch, err
		}
		name, sectors = t.name, t.dev.Sectors()
		if desc := probeContent(t.file); desc != "" {
			fmt.Fprintf(w, "Detected on %s: %s\n", t.name, desc)
		}
		showMBR(w, t.file)
	}
	fail := func(err error) (*target, format.Decision, error) {
		if t != nil {
			t.Close()
		}
		return nil, format.Mismatch, err
	}

	l, err := geometry.Calculate(sectors)
	if err != nil {
		return fail(err)
	}
	plan := format.Plan{Layout: l, System: syspart.Plan(l.System.Length).Absolute(l.System.Start), Files: req.files}
	fmt.Fprintln(w)
	for _, line := range plan.Summary() {
		fmt.Fprintln(w, line)
	}

	decision := format.Proceed
	if !req.yes {
		if decision, err = promptConfirmation(ctx, in, w, name); err != nil {
			return fail(err)
		}
	}

	if t == nil {
		if t, err = createImage(req.out, req.size, decision == format.FixMBROnly); err != nil {
			return nil, format.Mismatch, err
		}
	}
	return t, decision, nil
}
