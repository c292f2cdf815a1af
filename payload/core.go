package payload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Flash slot sizes. Model 3 boards (MEGA65 R3) use 8 MiB slots.
const (
	SlotSizeDefault int64 = 4 << 20
	SlotSizeR3      int64 = 8 << 20

	MaxSlots = 8
)

// SlotSizeForModel returns the slot size for a hardware model id.
func SlotSizeForModel(model int) int64 {
	if model == 3 {
		return SlotSizeR3
	}
	return SlotSizeDefault
}

const (
	slotMagic     = "MEGA65BITSTREAM0"
	slotModel     = "MEGA65"
	slotVersion   = 48
	versionLen    = 32
	slotFileCount = 0x72
	slotFileStart = 0x73
	slotHeaderLen = 0x77

	fileHeaderLen = 4 + 4 + 32
)

// Slot is one core slot of a flash image.
type Slot struct {
	Index      int
	Version    string
	FileCount  int
	FileOffset int64 // slot relative

	r    io.ReaderAt
	base int64
	size int64
}

// HasFiles reports whether the slot carries embedded files.
func (s Slot) HasFiles() bool {
	return s.Version != "" && s.FileCount > 0
}

// ScanCore reads the slot headers of a core or flash image. Slots without
// the bitstream magic are skipped; scanning stops at the end of the image.
func ScanCore(r io.ReaderAt, slotSize int64, maxSlots int) ([]Slot, error) {
	if slotSize < slotHeaderLen {
		return nil, fmt.Errorf("slot size %d too small", slotSize)
	}

	var slots []Slot
	hdr := make([]byte, slotHeaderLen)
	for i := 0; i < maxSlots; i++ {
		base := int64(i) * slotSize
		if _, err := r.ReadAt(hdr, base); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read slot %d: %w", i, err)
		}
		if string(hdr[:16]) != slotMagic || string(hdr[16:22]) != slotModel {
			continue
		}
		slots = append(slots, Slot{
			Index:      i,
			Version:    cString(hdr[slotVersion:slotVersion+versionLen], true),
			FileCount:  int(hdr[slotFileCount]),
			FileOffset: int64(binary.LittleEndian.Uint32(hdr[slotFileStart:])),
			r:          r,
			base:       base,
			size:       slotSize,
		})
	}
	return slots, nil
}

// Files walks the slot's embedded file chain. Every file must lie inside the slot.
func (s Slot) Files() ([]File, error) {
	var files []File
	hdr := make([]byte, fileHeaderLen)
	off := s.FileOffset
	for i := 0; i < s.FileCount; i++ {
		if off < slotHeaderLen || off+fileHeaderLen > s.size {
			return nil, fmt.Errorf("%w: slot %d file %d header at $%X", ErrCorrupt, s.Index, i, off)
		}
		if _, err := s.r.ReadAt(hdr, s.base+off); err != nil {
			return nil, fmt.Errorf("slot %d file %d: %w", s.Index, i, err)
		}
		next := int64(binary.LittleEndian.Uint32(hdr[0:4]))
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		name := cString(hdr[8:], false)
		data := off + fileHeaderLen
		if name == "" || data+size > s.size {
			return nil, fmt.Errorf("%w: slot %d file %d %q of %d bytes", ErrCorrupt, s.Index, i, name, size)
		}

		sr := io.NewSectionReader(s.r, s.base+data, size)
		files = append(files, File{
			Name: name,
			Size: size,
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(io.NewSectionReader(sr, 0, size)), nil
			},
		})
		off = next
	}
	return files, nil
}

func (s Slot) String() string {
	return fmt.Sprintf("(%d) MEGA65 - %2d Files  %s", s.Index, s.FileCount, s.Version)
}

func cString(b []byte, trimSpace bool) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if trimSpace {
		return strings.TrimRight(string(b), " ")
	}
	return string(b)
}
