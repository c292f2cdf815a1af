package fat32

import "m65fdisk/sector"

const (
	fsiLeadSignature   = 0x000
	fsiStructSignature = 0x1e4
	fsiFreeCount       = 0x1e8
	fsiNextFree        = 0x1ec
)

var (
	fsiLead   = [4]byte{0x52, 0x52, 0x61, 0x41}
	fsiStruct = [4]byte{0x72, 0x72, 0x41, 0x61}
)

// PreallocatedClusters is how many cluster numbers a fresh volume already
// accounts for: the reserved entries 0 and 1 plus the root directory.
// Some tools count only the root cluster; this value is the on-card contract.
const PreallocatedClusters = 3

// FSInfo returns the FS information sector of an empty volume.
func FSInfo(clusterCount uint32) *sector.Image {
	return fsInfo(clusterCount-PreallocatedClusters, PreallocatedClusters)
}

func fsInfo(free, next uint32) *sector.Image {
	img := sector.New()
	img.CopyFrom(fsiLeadSignature, fsiLead[:])
	img.CopyFrom(fsiStructSignature, fsiStruct[:])
	img.PutUint32(fsiFreeCount, free)
	img.PutUint32(fsiNextFree, next)
	img.SetSignature()
	return img
}

// FreeCount reads the free-cluster field of an FS information sector.
func FreeCount(img *sector.Image) uint32 {
	return img.Uint32(fsiFreeCount)
}

// NextFree reads the next-free-cluster hint of an FS information sector.
func NextFree(img *sector.Image) uint32 {
	return img.Uint32(fsiNextFree)
}
