// Package mbr builds the two-entry MEGA65 partition table and reads existing tables back.
package mbr

import (
	"errors"
	"fmt"
	"io"

	diskmbr "github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/diskfs/go-diskfs/util"

	"m65fdisk/geometry"
	"m65fdisk/sector"
)

const (
	diskSignatureOffset = 0x1b8
	entriesOffset       = 0x1be
	entrySize           = 16
	entryCount          = 4

	entryTypeOffset   = 4
	entryStartOffset  = 8
	entryLengthOffset = 12
)

// diskSignature is fixed so repeated formats of the same card produce the same sector 0.
var diskSignature = [4]byte{0x83, 0x7d, 0xcb, 0xa6}

// ErrInvalidTable is returned when sector 0 does not carry a readable MBR.
var ErrInvalidTable = errors.New("current partition table is invalid")

// Build returns sector 0 with the FAT32 partition in slot 0 and the system partition in slot 1.
// CHS fields stay zero; only LBA addressing is used.
func Build(fat32, system geometry.Partition) *sector.Image {
	img := sector.New()
	img.CopyFrom(diskSignatureOffset, diskSignature[:])
	putEntry(img, 0, fat32)
	putEntry(img, 1, system)
	img.SetSignature()
	return img
}

func putEntry(img *sector.Image, slot int, p geometry.Partition) {
	off := entriesOffset + slot*entrySize
	img[off+entryTypeOffset] = p.Type
	img.PutUint32(off+entryStartOffset, p.Start)
	img.PutUint32(off+entryLengthOffset, p.Length)
}

// Entry is one decoded partition table slot.
type Entry struct {
	Index    int
	Bootable bool
	Type     byte
	Start    uint32
	Length   uint32

	StartHead, StartSector, EndHead, EndSector uint8
	StartCylinder, EndCylinder                 uint16
}

// Empty reports whether the slot is unused.
func (e Entry) Empty() bool {
	return e.Type == byte(diskmbr.Empty) && e.Length == 0
}

// LastLBA is the last sector of the partition, or Start for an empty slot.
func (e Entry) LastLBA() uint32 {
	if e.Length == 0 {
		return e.Start
	}
	return e.Start + e.Length - 1
}

func (e Entry) String() string {
	active := ' '
	if e.Bootable {
		active = '*'
	}
	return fmt.Sprintf("%02X%c : Start=%3d/%2d/%4d or %08X / End=%3d/%2d/%4d or %08X",
		e.Type, active,
		e.StartHead, e.StartSector, e.StartCylinder, e.Start,
		e.EndHead, e.EndSector, e.EndCylinder, e.LastLBA())
}

// Read parses the partition table in sector 0 of f.
func Read(f util.File) ([]Entry, error) {
	raw := sector.New()
	if _, err := f.ReadAt(raw.Bytes(), 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read sector 0: %w", err)
	}
	if !raw.HasSignature() {
		return nil, ErrInvalidTable
	}

	table, err := diskmbr.Read(f, sector.Size, sector.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	entries := make([]Entry, 0, entryCount)
	for i, p := range table.Partitions {
		entries = append(entries, Entry{
			Index:         i,
			Bootable:      p.Bootable,
			Type:          byte(p.Type),
			Start:         p.Start,
			Length:        p.Size,
			StartHead:     p.StartHead,
			StartSector:   p.StartSector & 0x1f,
			StartCylinder: cylinder(p.StartSector, p.StartCylinder),
			EndHead:       p.EndHead,
			EndSector:     p.EndSector & 0x1f,
			EndCylinder:   cylinder(p.EndSector, p.EndCylinder),
		})
	}
	return entries, nil
}

// cylinder joins the two high bits kept in the sector byte with the low cylinder byte.
func cylinder(sec, cyl byte) uint16 {
	return (uint16(sec)<<2)&0x300 | uint16(cyl)
}

// Matches reports whether entries describe exactly the given layout.
func Matches(entries []Entry, l geometry.Layout) bool {
	if len(entries) < 2 {
		return false
	}
	want := []geometry.Partition{l.FAT32, l.System}
	for i, p := range want {
		e := entries[i]
		if e.Type != p.Type || e.Start != p.Start || e.Length != p.Length {
			return false
		}
	}
	for _, e := range entries[2:] {
		if !e.Empty() {
			return false
		}
	}
	return true
}
