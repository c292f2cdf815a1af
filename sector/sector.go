// Package sector holds the 512-byte scratch image every on-disk structure is built in.
package sector

import "encoding/binary"

// Size is the only sector size the formatter supports.
const Size = 512

// Image is one sector worth of bytes. The zero value is an all-zero sector.
type Image [Size]byte

// New returns a zeroed image.
func New() *Image {
	return &Image{}
}

// Clear zero-fills the image.
func (s *Image) Clear() {
	*s = Image{}
}

// Bytes returns the backing slice. Writes through it modify the image.
func (s *Image) Bytes() []byte {
	return s[:]
}

// CopyFrom copies b into the image starting at off, truncating at the sector end.
func (s *Image) CopyFrom(off int, b []byte) {
	copy(s[off:], b)
}

// PutUint16 stores v little-endian at off.
func (s *Image) PutUint16(off int, v uint16) {
	binary.LittleEndian.PutUint16(s[off:off+2], v)
}

// PutUint32 stores v little-endian at off.
func (s *Image) PutUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(s[off:off+4], v)
}

func (s *Image) Uint16(off int) uint16 {
	return binary.LittleEndian.Uint16(s[off : off+2])
}

func (s *Image) Uint32(off int) uint32 {
	return binary.LittleEndian.Uint32(s[off : off+4])
}

// SetSignature writes the 0x55 0xAA trailer shared by MBR, boot and FSInfo sectors.
func (s *Image) SetSignature() {
	s[510] = 0x55
	s[511] = 0xaa
}

// HasSignature reports whether the 0x55 0xAA trailer is present.
func (s *Image) HasSignature() bool {
	return s[510] == 0x55 && s[511] == 0xaa
}

// Count returns how many sectors are needed to hold n bytes.
func Count(n int64) int64 {
	return (n + Size - 1) / Size
}
