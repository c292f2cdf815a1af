package fat32

import (
	"bytes"
	"fmt"
	"time"

	"m65fdisk/blockio"
	"m65fdisk/geometry"
	"m65fdisk/sector"
)

// Volume locates the structures of a formatted FAT32 partition in absolute sectors.
type Volume struct {
	Start             uint32
	FAT1              uint32
	FAT2              uint32
	FATLength         uint32
	RootDir           uint32
	SectorsPerCluster uint32
	// ClusterCount counts entries 0 and 1, so the last usable cluster is ClusterCount-1.
	ClusterCount uint32
}

// VolumeFor returns the volume described by a device layout.
func VolumeFor(l geometry.Layout) Volume {
	return Volume{
		Start:             l.FAT32.Start,
		FAT1:              l.AbsFAT1(),
		FAT2:              l.AbsFAT2(),
		FATLength:         l.FAT.FATLength,
		RootDir:           l.AbsRootDir(),
		SectorsPerCluster: l.FAT.SectorsPerCluster,
		ClusterCount:      l.FAT.ClusterCount,
	}
}

// ClusterBytes is the allocation unit in bytes.
func (v Volume) ClusterBytes() int64 {
	return int64(v.SectorsPerCluster) * sector.Size
}

// ClusterSector is the absolute first sector of data cluster c.
func (v Volume) ClusterSector(c uint32) uint32 {
	return v.RootDir + (c-RootCluster)*v.SectorsPerCluster
}

// Allocation describes a file created by Writer.Create.
type Allocation struct {
	Name         [11]byte
	Size         int64
	FirstCluster uint32
	Clusters     uint32
	// FirstSector is the absolute sector the file data starts at. Zero for empty files.
	FirstSector uint32
}

// Sectors is how many data sectors the caller has to fill.
func (a Allocation) Sectors() int64 {
	return sector.Count(a.Size)
}

// Writer creates contiguous files in the root directory of a fresh volume.
type Writer struct {
	dev blockio.Device
	vol Volume
	now func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithClock sets the source of directory entry timestamps.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter returns a writer for vol on dev.
func NewWriter(dev blockio.Device, vol Volume, opts ...WriterOption) *Writer {
	w := &Writer{dev: dev, vol: vol, now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Create allocates a contiguous cluster run for size bytes, chains it in both
// FATs, adds a root directory entry and refreshes the FS information sectors.
// The file data itself is left for the caller to write at FirstSector.
func (w *Writer) Create(name [11]byte, size int64) (Allocation, error) {
	a := Allocation{Name: name, Size: size}
	if size < 0 || size > 0xffffffff {
		return a, fmt.Errorf("%w: %s is %d bytes", ErrNoSpace, DisplayName(name), size)
	}

	dirLBA, slot, err := w.findDirSlot(name)
	if err != nil {
		return a, err
	}

	a.Clusters = uint32((size + w.vol.ClusterBytes() - 1) / w.vol.ClusterBytes())
	if a.Clusters > 0 {
		first, err := w.findRun(a.Clusters)
		if err != nil {
			return a, fmt.Errorf("%s: %w", DisplayName(name), err)
		}
		if err := w.chain(first, a.Clusters); err != nil {
			return a, err
		}
		a.FirstCluster = first
		a.FirstSector = w.vol.ClusterSector(first)
	}

	dir := sector.New()
	if err := w.dev.ReadSector(dirLBA, dir); err != nil {
		return a, err
	}
	writeDirEntry(dir, slot, dirEntry{
		Name:    name,
		Attr:    attrArchive,
		Cluster: a.FirstCluster,
		Size:    uint32(size),
	}, w.now())
	if err := w.dev.WriteSector(dirLBA, dir); err != nil {
		return a, fmt.Errorf("write directory entry: %w", err)
	}

	if a.Clusters > 0 {
		if err := w.updateFSInfo(a.Clusters, a.FirstCluster+a.Clusters); err != nil {
			return a, err
		}
	}
	return a, nil
}

// findDirSlot returns the sector and slot of the first free root entry,
// failing if name is already present.
func (w *Writer) findDirSlot(name [11]byte) (uint32, int, error) {
	img := sector.New()
	var (
		freeLBA  uint32
		freeSlot = -1
	)
	for i := uint32(0); i < w.vol.SectorsPerCluster; i++ {
		lba := w.vol.RootDir + i
		if err := w.dev.ReadSector(lba, img); err != nil {
			return 0, 0, err
		}
		for slot := 0; slot < entriesPerDirSect; slot++ {
			e := readDirEntry(img, slot)
			switch {
			case e.Name[0] == entryEnd:
				if freeSlot < 0 {
					return lba, slot, nil
				}
				return freeLBA, freeSlot, nil
			case e.Name[0] == entryDeleted:
				if freeSlot < 0 {
					freeLBA, freeSlot = lba, slot
				}
			case e.Attr&attrVolumeLabel != 0:
				// label and long-name entries never collide with a short name
			case bytes.Equal(e.Name[:], name[:]):
				return 0, 0, fmt.Errorf("%w: %s", ErrExists, DisplayName(name))
			}
		}
	}
	if freeSlot >= 0 {
		return freeLBA, freeSlot, nil
	}
	return 0, 0, ErrDirectoryFull
}

// findRun scans FAT1 for n consecutive free clusters after the root directory.
func (w *Writer) findRun(n uint32) (uint32, error) {
	img := sector.New()
	loaded := ^uint32(0)

	var start, length uint32
	for c := uint32(RootCluster + 1); c < w.vol.ClusterCount; c++ {
		if s := entrySector(c); s != loaded {
			if err := w.dev.ReadSector(w.vol.FAT1+s, img); err != nil {
				return 0, err
			}
			loaded = s
		}
		if Entry(img, c) != EntryFree {
			length = 0
			continue
		}
		if length == 0 {
			start = c
		}
		length++
		if length == n {
			return start, nil
		}
	}
	return 0, fmt.Errorf("%w: need %d clusters", ErrNoSpace, n)
}

// chain links clusters first..first+n-1 and terminates the run, in both FATs.
func (w *Writer) chain(first, n uint32) error {
	img := sector.New()
	last := first + n - 1

	for s := entrySector(first); s <= entrySector(last); s++ {
		if err := w.dev.ReadSector(w.vol.FAT1+s, img); err != nil {
			return err
		}
		lo := s * entriesPerSector
		hi := lo + entriesPerSector - 1
		for c := max(lo, first); c <= min(hi, last); c++ {
			next := c + 1
			if c == last {
				next = EntryEndOfChain
			}
			setEntry(img, c, next)
		}
		if err := w.dev.WriteSector(w.vol.FAT1+s, img); err != nil {
			return fmt.Errorf("write FAT1: %w", err)
		}
		if err := w.dev.WriteSector(w.vol.FAT2+s, img); err != nil {
			return fmt.Errorf("write FAT2: %w", err)
		}
	}
	return nil
}

func (w *Writer) updateFSInfo(used, next uint32) error {
	img := sector.New()
	if err := w.dev.ReadSector(w.vol.Start+FSInfoLBA, img); err != nil {
		return err
	}
	free := FreeCount(img)
	if free >= used {
		free -= used
	} else {
		free = 0
	}
	fsi := fsInfo(free, next)
	for _, lba := range []uint32{FSInfoLBA, BackupFSInfoLBA} {
		if err := w.dev.WriteSector(w.vol.Start+lba, fsi); err != nil {
			return fmt.Errorf("write FS information sector: %w", err)
		}
	}
	return nil
}
