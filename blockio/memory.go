package blockio

import (
	"errors"
	"io"

	"m65fdisk/sector"
)

// Memory is a RAM-backed device. Besides Device it implements
// io.ReaderAt, io.WriterAt and io.Seeker so filesystem readers can inspect it.
type Memory struct {
	*File
	buf []byte
	pos int64
}

// NewMemory returns a zeroed device of the given size.
func NewMemory(sectors uint32) *Memory {
	m := &Memory{buf: make([]byte, int64(sectors)*sector.Size)}
	m.File = NewFile(memStore{m}, sectors)
	return m
}

// Fill sets every byte of the device to b.
func (m *Memory) Fill(b byte) {
	for i := range m.buf {
		m.buf[i] = b
	}
}

// Bytes exposes the raw image.
func (m *Memory) Bytes() []byte {
	return m.buf
}

// Sector returns a copy of one sector.
func (m *Memory) Sector(lba uint32) sector.Image {
	var img sector.Image
	copy(img[:], m.buf[offset(lba):])
	return img
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, ErrOutOfRange
	}
	return copy(m.buf[off:], p), nil
}

func (m *Memory) Seek(off int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = off
	case io.SeekCurrent:
		pos = m.pos + off
	case io.SeekEnd:
		pos = int64(len(m.buf)) + off
	default:
		return 0, errors.New("invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = pos
	return pos, nil
}

// memStore keeps File from seeing Memory's own Seek and Sync surface.
type memStore struct{ m *Memory }

func (s memStore) ReadAt(p []byte, off int64) (int, error)  { return s.m.ReadAt(p, off) }
func (s memStore) WriteAt(p []byte, off int64) (int, error) { return s.m.WriteAt(p, off) }
