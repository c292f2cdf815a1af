package fat32

import "m65fdisk/sector"

// FAT32 entry values. Only the low 28 bits are significant.
const (
	EntryFree       uint32 = 0x00000000
	EntryEndOfChain uint32 = 0x0ffffff8
	entryMask       uint32 = 0x0fffffff

	entriesPerSector = sector.Size / 4
)

// RootCluster is the first cluster of the root directory.
const RootCluster = 2

// reservedEntries marks cluster 0 with the media byte, cluster 1 as end of
// chain and cluster 2, the root directory, as a complete one-cluster chain.
var reservedEntries = [12]byte{
	0xf8, 0xff, 0xff, 0x0f,
	0xff, 0xff, 0xff, 0x0f,
	0xf8, 0xff, 0xff, 0x0f,
}

// FATSector returns the first sector of an empty FAT. The rest of the table is zero.
func FATSector() *sector.Image {
	img := sector.New()
	img.CopyFrom(0, reservedEntries[:])
	return img
}

// Entry returns the FAT entry for cluster c from the FAT sector holding it.
func Entry(img *sector.Image, c uint32) uint32 {
	return img.Uint32(int(c%entriesPerSector)*4) & entryMask
}

func setEntry(img *sector.Image, c, v uint32) {
	off := int(c%entriesPerSector) * 4
	// the top four bits are reserved and must be preserved
	high := img.Uint32(off) &^ entryMask
	img.PutUint32(off, high|(v&entryMask))
}

// entrySector is the FAT-relative sector holding the entry for cluster c.
func entrySector(c uint32) uint32 {
	return c / entriesPerSector
}

// IsEndOfChain reports whether v terminates a cluster chain.
func IsEndOfChain(v uint32) bool {
	return v&entryMask >= 0x0ffffff8
}
