// Package blockio is the sector-addressed view of a target device.
//
// Everything the formatter writes goes through Device: absolute 512-byte
// sectors, bounds-checked, failures surfaced immediately without retries.
package blockio

import (
	"errors"
	"fmt"
	"io"

	"m65fdisk/sector"
)

// ErrOutOfRange is returned for any access beyond the last sector.
var ErrOutOfRange = errors.New("sector out of range")

// Device reads and writes whole sectors at absolute addresses.
type Device interface {
	// Sectors is the capacity of the device.
	Sectors() uint32
	ReadSector(lba uint32, dst *sector.Image) error
	WriteSector(lba uint32, src *sector.Image) error
	// Erase zero-fills [first, last]. first > last is a no-op.
	Erase(first, last uint32) error
}

// ReadWriterAt is the backing store of a File device.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// eraseChunk bounds how much zero buffer is written per call.
const eraseChunk = 1 << 20

// File is a Device over a file or raw block device.
type File struct {
	rw      ReadWriterAt
	sectors uint32
}

// NewFile wraps rw, which must hold at least sectors*512 bytes.
func NewFile(rw ReadWriterAt, sectors uint32) *File {
	return &File{rw: rw, sectors: sectors}
}

func (f *File) Sectors() uint32 { return f.sectors }

func (f *File) ReadSector(lba uint32, dst *sector.Image) error {
	if err := checkRange(lba, 1, f.sectors); err != nil {
		return err
	}
	if _, err := f.rw.ReadAt(dst.Bytes(), offset(lba)); err != nil {
		return fmt.Errorf("read sector %d: %w", lba, err)
	}
	return nil
}

func (f *File) WriteSector(lba uint32, src *sector.Image) error {
	if err := checkRange(lba, 1, f.sectors); err != nil {
		return err
	}
	if _, err := f.rw.WriteAt(src.Bytes(), offset(lba)); err != nil {
		return fmt.Errorf("write sector %d: %w", lba, err)
	}
	return nil
}

func (f *File) Erase(first, last uint32) error {
	if first > last {
		return nil
	}
	count := uint64(last-first) + 1
	if err := checkRange(first, count, f.sectors); err != nil {
		return err
	}

	z := make([]byte, eraseChunk)
	total := int64(count) * sector.Size
	for done := int64(0); done < total; {
		n := total - done
		if n > eraseChunk {
			n = eraseChunk
		}
		if _, err := f.rw.WriteAt(z[:n], offset(first)+done); err != nil {
			return fmt.Errorf("erase sectors %d-%d: %w", first, last, err)
		}
		done += n
	}
	return nil
}

// Sync flushes the backing store when it supports it.
func (f *File) Sync() error {
	if s, ok := f.rw.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

func offset(lba uint32) int64 {
	return int64(lba) * sector.Size
}

func checkRange(lba uint32, count uint64, sectors uint32) error {
	if uint64(lba)+count > uint64(sectors) {
		return fmt.Errorf("%w: %d+%d beyond %d", ErrOutOfRange, lba, count, sectors)
	}
	return nil
}

// WriteFunc is told about every successful write or erase.
type WriteFunc func(first, count uint32)

type observed struct {
	Device
	fn WriteFunc
}

// Observe returns dev with fn called after each write and erase.
func Observe(dev Device, fn WriteFunc) Device {
	if fn == nil {
		return dev
	}
	return &observed{Device: dev, fn: fn}
}

func (o *observed) WriteSector(lba uint32, src *sector.Image) error {
	if err := o.Device.WriteSector(lba, src); err != nil {
		return err
	}
	o.fn(lba, 1)
	return nil
}

func (o *observed) Erase(first, last uint32) error {
	if err := o.Device.Erase(first, last); err != nil {
		return err
	}
	if first <= last {
		o.fn(first, last-first+1)
	}
	return nil
}
