package fat32

import (
	"fmt"
	"strings"
	"time"

	"m65fdisk/sector"
)

const (
	dirEntrySize      = 32
	entriesPerDirSect = sector.Size / dirEntrySize

	deName       = 0
	deAttr       = 11
	deCreateTime = 14
	deCreateDate = 16
	deAccessDate = 18
	deClusterHi  = 20
	deModTime    = 22
	deModDate    = 24
	deClusterLo  = 26
	deSize       = 28

	attrVolumeLabel = 0x08
	attrArchive     = 0x20

	entryEnd     = 0x00
	entryDeleted = 0xe5
)

// DefaultLabel is the volume name written into the root directory.
var DefaultLabel = [11]byte{'M', '.', 'E', '.', 'G', '.', 'A', '.', '6', '5', '!'}

// labelTemplate follows the label name: volume-label attribute, then the
// fixed creation, access and modification stamps the MEGA65 tools use.
var labelTemplate = [15]byte{0x08, 0x00, 0x00, 0x53, 0xae, 0x93, 0x4a, 0x93, 0x4a, 0x00, 0x00, 0x53, 0xae, 0x93, 0x4a}

// RootDirectory returns the first root directory sector holding only the volume label.
func RootDirectory(label [11]byte) *sector.Image {
	img := sector.New()
	img.CopyFrom(deName, label[:])
	img.CopyFrom(deAttr, labelTemplate[:])
	return img
}

// Label converts s into an 11-byte, space padded, upper-case volume label.
func Label(s string) ([11]byte, error) {
	var out [11]byte
	if s == "" || len(s) > len(out) {
		return out, fmt.Errorf("%w: label %q must be 1-11 characters", ErrInvalidName, s)
	}
	for i := range out {
		out[i] = ' '
	}
	for i := 0; i < len(s); i++ {
		c := upper(s[i])
		if !validShortChar(c) && c != ' ' {
			return out, fmt.Errorf("%w: label %q has character %q", ErrInvalidName, s, s[i])
		}
		out[i] = c
	}
	return out, nil
}

// ShortName converts a file name into the padded 8.3 form used in directory entries.
// The extension is whatever follows the last dot.
func ShortName(name string) ([11]byte, error) {
	var out [11]byte

	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}
	if base == "" {
		return out, fmt.Errorf("%w: %q has no name part", ErrInvalidName, name)
	}
	if len(base) > 8 || len(ext) > 3 {
		return out, fmt.Errorf("%w: %q must fit 8.3, got %q.%q", ErrNameTooLong, name, base, ext)
	}

	padded := fmt.Sprintf("%-8s%-3s", base, ext)
	for i := 0; i < len(out); i++ {
		c := upper(padded[i])
		if c != ' ' && !validShortChar(c) {
			return out, fmt.Errorf("%w: %q has character %q", ErrInvalidName, name, padded[i])
		}
		out[i] = c
	}
	if out[0] == entryDeleted {
		out[0] = 0x05
	}
	return out, nil
}

// DisplayName renders an 8.3 name as NAME.EXT.
func DisplayName(n [11]byte) string {
	base := strings.TrimRight(string(n[:8]), " ")
	ext := strings.TrimRight(string(n[8:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 0x20
	}
	return c
}

func validShortChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c >= 0x80:
		return true
	}
	return strings.IndexByte("!#$%&'()-@^_`{}~", c) >= 0
}

// dirEntry is one decoded 32-byte short directory entry.
type dirEntry struct {
	Name    [11]byte
	Attr    byte
	Cluster uint32
	Size    uint32
}

func readDirEntry(img *sector.Image, slot int) dirEntry {
	off := slot * dirEntrySize
	var e dirEntry
	copy(e.Name[:], img[off+deName:off+deName+11])
	e.Attr = img[off+deAttr]
	e.Cluster = uint32(img.Uint16(off+deClusterHi))<<16 | uint32(img.Uint16(off+deClusterLo))
	e.Size = img.Uint32(off + deSize)
	return e
}

func writeDirEntry(img *sector.Image, slot int, e dirEntry, stamp time.Time) {
	off := slot * dirEntrySize
	for i := off; i < off+dirEntrySize; i++ {
		img[i] = 0
	}
	img.CopyFrom(off+deName, e.Name[:])
	img[off+deAttr] = e.Attr
	d, t := fatDateTime(stamp)
	img.PutUint16(off+deCreateTime, t)
	img.PutUint16(off+deCreateDate, d)
	img.PutUint16(off+deAccessDate, d)
	img.PutUint16(off+deClusterHi, uint16(e.Cluster>>16))
	img.PutUint16(off+deModTime, t)
	img.PutUint16(off+deModDate, d)
	img.PutUint16(off+deClusterLo, uint16(e.Cluster))
	img.PutUint32(off+deSize, e.Size)
}

// fatDateTime packs t into FAT date and time words. Dates before 1980 clamp to 1980-01-01.
func fatDateTime(t time.Time) (date, clock uint16) {
	if t.Year() < 1980 {
		return 1<<5 | 1, 0
	}
	date = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	clock = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, clock
}
