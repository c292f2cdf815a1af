// Package fat32 builds the FAT32 structures of the MEGA65 data partition
// and writes contiguous files into a freshly formatted volume.
package fat32

import "m65fdisk/sector"

// Boot sector field offsets patched into the template.
const (
	bsTotalSectors32 = 0x20
	bsSectorsPerFAT  = 0x24
)

// Partition-relative sectors of the fixed structures.
const (
	BootSectorLBA       = 0
	FSInfoLBA           = 1
	BackupBootSectorLBA = 6
	BackupFSInfoLBA     = 7
)

// bootTemplate is the MEGA65 boot sector up to the end of the HYPPOBOOT
// message. The trailing byte of the 258-byte table stays zero.
var bootTemplate = [258]byte{
	0xeb, 0x58, 0x90, // jmp
	'M', 'E', 'G', 'A', '6', '5', 'r', '1', // OEM

	0x00, 0x02, // bytes per sector
	0x08,       // sectors per cluster
	0x38, 0x02, // reserved sectors (568)
	0x02,       // FATs
	0x00, 0x00, // root entries (FAT12/16 only)
	0x00, 0x00, // total sectors 16
	0xf8,       // media
	0x00, 0x00, // sectors per FAT 16
	0x00, 0x00, // sectors per track
	0x00, 0x00, // heads
	0x00, 0x00, 0x00, 0x00, // hidden sectors

	0x00, 0xe8, 0x0f, 0x00, // 0x20 total sectors 32
	0xf8, 0x03, 0x00, 0x00, // 0x24 sectors per FAT
	0x00, 0x00, // 0x28 flags
	0x00, 0x00, // 0x2a version
	0x02, 0x00, 0x00, 0x00, // 0x2c root cluster
	0x01, 0x00, // 0x30 FS information sector
	0x06, 0x00, // 0x32 backup boot sector
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x80,                   // 0x40 drive number
	0x00,                   // 0x41
	0x29,                   // 0x42 extended boot signature
	0x6d, 0x66, 0x62, 0x61, // 0x43 volume ID "mfba"
	'M', '.', 'E', '.', 'G', '.', 'A', '.', ' ', '6', '5', // 0x47
	'F', 'A', 'T', '3', '2', ' ', ' ', ' ', // 0x52

	// boot code: print the message below and wait for a key
	0x0e, 0x1f, 0xbe, 0x77, 0x7c, 0xac, 0x22, 0xc0, 0x74, 0x0b, 0x56, 0xb4, 0x0e, 0xbb, 0x07, 0x00, 0xcd, 0x10, 0x5e, 0xeb,
	0xf0, 0x32, 0xe4, 0xcd, 0x16, 0xcd, 0x19, 0xeb, 0xfe,

	'M', 'E', 'G', 'A', '6', '5', ' ',
	'H', 'Y', 'P', 'P', 'O', 'B', 'O', 'O', 'T',
	0x20, 0x56, 0x30, 0x30, 0x2e, 0x31, 0x31, 0x0d, 0x0a, 0x0d, 0x3f, 0x4e, 0x4f, 0x20, 0x34, 0x35, 0x47, 0x53, 0x30, 0x32,
	0x2c, 0x20, 0x34, 0x35, 0x31, 0x30, 0x2c, 0x20, 0x36, 0x35, 0x5b, 0x63, 0x65, 0x5d, 0x30, 0x32, 0x2c, 0x20, 0x36, 0x35,
	0x31, 0x30, 0x20, 0x4f, 0x52, 0x20, 0x38, 0x35, 0x31, 0x30, 0x20, 0x50, 0x52, 0x4f, 0x43, 0x45, 0x53, 0x53, 0x4f, 0x52,
	0x20, 0x20, 0x45, 0x52, 0x52, 0x4f, 0x52, 0x0d, 0x0a, 0x49, 0x4e, 0x53, 0x45, 0x52, 0x54, 0x20, 0x44, 0x49, 0x53, 0x4b,
	0x20, 0x49, 0x4e, 0x20, 0x52, 0x45, 0x41, 0x4c, 0x20, 0x43, 0x4f, 0x4d, 0x50, 0x55, 0x54, 0x45, 0x52, 0x20, 0x41, 0x4e,
	0x44, 0x20, 0x54, 0x52, 0x59, 0x20, 0x41, 0x47, 0x41, 0x49, 0x4e, 0x2e, 0x0a, 0x0a, 0x52, 0x45, 0x41, 0x44, 0x59, 0x2e,
	0x0d, 0x0a,
}

// BootSector returns the partition boot sector. totalSectors is the length
// of the FAT32 partition and fatLength the size of one FAT in sectors.
// The same image is written again as the backup at BackupBootSectorLBA.
func BootSector(totalSectors, fatLength uint32) *sector.Image {
	img := sector.New()
	img.CopyFrom(0, bootTemplate[:])
	img.PutUint32(bsTotalSectors32, totalSectors)
	img.PutUint32(bsSectorsPerFAT, fatLength)
	img.SetSignature()
	return img
}
