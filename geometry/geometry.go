// Package geometry derives the partition split and FAT32 layout from a raw device size.
package geometry

import (
	"errors"
	"fmt"

	"m65fdisk/sector"
)

const (
	// PartitionGap is the unpartitioned 1 MiB ahead of the first partition.
	PartitionGap = 2048
	// AlignSectors is the alignment unit of the FAT32 partition length.
	AlignSectors = 2048
	// MaxFAT32Sectors caps the data partition at 2 GiB.
	MaxFAT32Sectors = 2 * 1024 * 1024 * 1024 / sector.Size

	ReservedSectors   = 568
	SectorsPerCluster = 8
	FATEntrySize      = 4

	// SystemReservedSectors is the configuration zone at the head of the system partition.
	SystemReservedSectors = 2048
	// minSystemSectors holds the reserved zone plus one directory sector per slot region.
	minSystemSectors = SystemReservedSectors + 2

	// MinDeviceSectors is the smallest device on which every structure fits.
	MinDeviceSectors = PartitionGap + AlignSectors + minSystemSectors

	minClusters = 3
)

// MBR partition type tags.
const (
	TypeFAT32LBA byte = 0x0c
	TypeMEGA65   byte = 0x41
)

var (
	ErrDeviceTooSmall = errors.New("device too small")
	ErrNoConvergence  = errors.New("cluster count did not converge")
)

// Partition is an absolute sector range on the device.
type Partition struct {
	Start  uint32
	Length uint32
	Type   byte
}

// End returns the first sector after the partition.
func (p Partition) End() uint32 {
	return p.Start + p.Length
}

func (p Partition) String() string {
	return fmt.Sprintf("type=%02X start=%d length=%d", p.Type, p.Start, p.Length)
}

// FAT is the FAT32 layout. Sector numbers are relative to the partition start.
type FAT struct {
	ReservedSectors   uint32
	SectorsPerCluster uint32
	// ClusterCount includes the two reserved entries 0 and 1.
	ClusterCount uint32
	FATLength    uint32
	FAT1         uint32
	FAT2         uint32
	RootDir      uint32
	DataSectors  uint32
	// Iterations is how many correction rounds the sizing loop ran.
	Iterations int
}

// Available is the number of partition sectors after the reserved area.
func (f FAT) Available(partitionSectors uint32) uint32 {
	return partitionSectors - f.ReservedSectors
}

// Required is the number of sectors both FATs and the addressable clusters need.
func (f FAT) Required() uint32 {
	return required(f.ClusterCount, f.FATLength, f.SectorsPerCluster)
}

// FreeClusters is the free count recorded in the FS information sector.
// Clusters 0 and 1 are reserved and cluster 2 holds the root directory.
func (f FAT) FreeClusters() uint32 {
	return f.ClusterCount - 3
}

// Layout is the complete result of sizing one device. It is never mutated after Calculate.
type Layout struct {
	DeviceSectors uint32
	FAT32         Partition
	System        Partition
	FAT           FAT
}

func (l Layout) AbsFAT1() uint32    { return l.FAT32.Start + l.FAT.FAT1 }
func (l Layout) AbsFAT2() uint32    { return l.FAT32.Start + l.FAT.FAT2 }
func (l Layout) AbsRootDir() uint32 { return l.FAT32.Start + l.FAT.RootDir }

// Calculate splits the device into the FAT32 and system partitions and sizes the FAT.
func Calculate(deviceSectors uint32) (Layout, error) {
	if deviceSectors < MinDeviceSectors {
		return Layout{}, fmt.Errorf("%w: %d sectors, need at least %d", ErrDeviceTooSmall, deviceSectors, MinDeviceSectors)
	}

	fatLen := (deviceSectors - PartitionGap) / 2
	if fatLen > MaxFAT32Sectors {
		fatLen = MaxFAT32Sectors
	}
	fatLen &^= AlignSectors - 1

	l := Layout{
		DeviceSectors: deviceSectors,
		FAT32: Partition{
			Start:  PartitionGap,
			Length: fatLen,
			Type:   TypeFAT32LBA,
		},
	}
	l.System = Partition{
		Start:  l.FAT32.End(),
		Length: deviceSectors - PartitionGap - fatLen,
		Type:   TypeMEGA65,
	}

	fat, err := SizeFAT(fatLen)
	if err != nil {
		return Layout{}, err
	}
	l.FAT = fat

	return l, nil
}

// SizeFAT runs the cluster sizing loop for a FAT32 partition of the given length.
func SizeFAT(partitionSectors uint32) (FAT, error) {
	if partitionSectors <= ReservedSectors {
		return FAT{}, fmt.Errorf("%w: FAT32 partition of %d sectors has no room after %d reserved", ErrDeviceTooSmall, partitionSectors, ReservedSectors)
	}

	f := FAT{
		ReservedSectors:   ReservedSectors,
		SectorsPerCluster: SectorsPerCluster,
	}
	available := f.Available(partitionSectors)

	f.ClusterCount = available / f.SectorsPerCluster
	if f.ClusterCount < minClusters {
		return FAT{}, fmt.Errorf("%w: %d clusters, need at least %d", ErrDeviceTooSmall, f.ClusterCount, minClusters)
	}
	f.FATLength = fatLength(f.ClusterCount)

	for f.Required() > available {
		excess := f.Required() - available
		delta := excess / (1 + f.SectorsPerCluster)
		if delta < 1 {
			delta = 1
		}
		if delta >= f.ClusterCount || f.ClusterCount-delta < minClusters {
			return FAT{}, fmt.Errorf("%w: %d clusters still %d sectors over", ErrNoConvergence, f.ClusterCount, excess)
		}
		f.ClusterCount -= delta
		f.FATLength = fatLength(f.ClusterCount)
		f.Iterations++
	}

	f.FAT1 = f.ReservedSectors
	f.FAT2 = f.FAT1 + f.FATLength
	f.RootDir = f.FAT2 + f.FATLength
	f.DataSectors = f.ClusterCount * f.SectorsPerCluster

	return f, nil
}

func fatLength(clusters uint32) uint32 {
	const perSector = sector.Size / FATEntrySize
	n := clusters / perSector
	if clusters%perSector != 0 {
		n++
	}
	return n
}

func required(clusters, fatLen, spc uint32) uint32 {
	n := 2*uint64(fatLen) + uint64(clusters-2)*uint64(spc)
	if n > 0xffffffff {
		return 0xffffffff
	}
	return uint32(n)
}
