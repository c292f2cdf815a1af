// Package syspart builds the MEGA65 system partition: the header sector that
// describes the freeze and service slot areas, and the default configuration
// sector that follows it.
package syspart

import (
	"fmt"

	"m65fdisk/sector"
)

const (
	// SlotSize is the size of one freeze or service slot in sectors (512 KiB).
	SlotSize = 1024
	// ReservedSectors is the 1 MiB at the start of the partition holding the
	// header, the configuration sector and room for later config versions.
	ReservedSectors = 2048
	// MaxSlots keeps the slot counters within 16 bits.
	MaxSlots = 0xffff

	// ConfigLBA is the partition-relative sector of the configuration sector.
	ConfigLBA = 1
)

// Magic identifies a MEGA65 system partition.
var Magic = [11]byte{'M', 'E', 'G', 'A', '6', '5', 'S', 'Y', 'S', '0', '0'}

// header field offsets
const (
	hdrFreezeStart  = 0x10
	hdrFreezeSize   = 0x14
	hdrFreezeSlot   = 0x18
	hdrFreezeCount  = 0x1c
	hdrFreezeDir    = 0x1e
	hdrServiceStart = 0x20
	hdrServiceSize  = 0x24
	hdrServiceSlot  = 0x28
	hdrServiceCount = 0x2c
	hdrServiceDir   = 0x2e
)

// Layout describes the slot areas of a system partition. FreezeDir and
// ServiceDir are relative to the partition start until Absolute is applied.
type Layout struct {
	Length     uint32
	SlotSize   uint32
	SlotCount  uint32
	DirSectors uint32
	// RegionSize is the size of one slot area, slots plus directory.
	RegionSize uint32
	FreezeDir  uint32
	ServiceDir uint32
}

// Absolute returns l with the directory sectors moved to a partition starting at start.
func (l Layout) Absolute(start uint32) Layout {
	l.FreezeDir += start
	l.ServiceDir += start
	return l
}

// FreezeDirEnd is the last sector of the freeze slot directory.
func (l Layout) FreezeDirEnd() uint32 {
	return l.FreezeDir + l.DirSectors - 1
}

// ServiceDirEnd is the last sector of the service slot directory.
func (l Layout) ServiceDirEnd() uint32 {
	return l.ServiceDir + l.DirSectors - 1
}

func (l Layout) String() string {
	return fmt.Sprintf("%d freeze and service slots, %d directory sectors each, freeze dir @ $%08X, service dir @ $%08X",
		l.SlotCount, l.DirSectors, l.FreezeDir, l.ServiceDir)
}

// Plan sizes the slot areas of a system partition of length sectors.
func Plan(length uint32) Layout {
	var count uint32
	if length > ReservedSectors {
		count = (length - ReservedSectors) / (2*SlotSize + 1)
	}
	count = min(count, MaxSlots)

	l := sized(length, count)
	// Rounding the directory up can push the service area past the end for
	// the smallest partitions. Give up slots until both areas fit.
	for l.SlotCount > 0 && uint64(ReservedSectors)+2*uint64(l.RegionSize) > uint64(length) {
		l = sized(length, l.SlotCount-1)
	}
	return l
}

func sized(length, count uint32) Layout {
	dir := 1 + count/4
	region := SlotSize*count + dir
	return Layout{
		Length:     length,
		SlotSize:   SlotSize,
		SlotCount:  count,
		DirSectors: dir,
		RegionSize: region,
		FreezeDir:  ReservedSectors,
		ServiceDir: ReservedSectors + region,
	}
}

// Header returns the system partition header sector for a partition of
// length sectors, together with the slot layout it describes.
func Header(length uint32) (*sector.Image, Layout) {
	l := Plan(length)

	img := sector.New()
	img.CopyFrom(0, Magic[:])

	img.PutUint32(hdrFreezeStart, 0)
	img.PutUint32(hdrFreezeSize, l.RegionSize)
	img.PutUint32(hdrFreezeSlot, l.SlotSize)
	img.PutUint16(hdrFreezeCount, uint16(l.SlotCount))
	img.PutUint16(hdrFreezeDir, uint16(l.DirSectors))

	img.PutUint32(hdrServiceStart, l.RegionSize)
	img.PutUint32(hdrServiceSize, l.RegionSize)
	img.PutUint32(hdrServiceSlot, l.SlotSize)
	img.PutUint16(hdrServiceCount, uint16(l.SlotCount))
	img.PutUint16(hdrServiceDir, uint16(l.DirSectors))

	return img, l
}

// IsHeader reports whether img carries the system partition magic.
func IsHeader(img *sector.Image) bool {
	return string(img[:len(Magic)]) == string(Magic[:])
}
