// Package format runs the MEGA65 SD card formatting sequence: partition
// table, system partition, FAT32 structures and optional seeded files, in a
// fixed order on a single goroutine.
package format

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"m65fdisk/blockio"
	"m65fdisk/fat32"
	"m65fdisk/geometry"
	"m65fdisk/mbr"
	"m65fdisk/payload"
	"m65fdisk/sector"
	"m65fdisk/syspart"
)

// ErrSource marks a seeded file whose contents could not be read.
var ErrSource = errors.New("read source file")

// Seeded is a file written into the root directory.
type Seeded struct {
	Name        string
	ShortName   string
	Size        int64
	FirstSector uint32
	Clusters    uint32
}

// Result describes a finished run.
type Result struct {
	Layout geometry.Layout
	System syspart.Layout
	Seeded []Seeded
	// Rejected collects the files that were skipped, or is nil.
	Rejected error
	HasROM   bool
	// MBROnly is set when the operator chose to rewrite the partition table alone.
	MBROnly bool
}

// ClosingMessage tells the operator what to do with the card next.
func (r *Result) ClosingMessage() string {
	switch {
	case r.MBROnly:
		return "Partition table rewritten. Reboot to continue."
	case len(r.Seeded) == 0:
		return "Remove, Copy SD Essentials and MEGA65.ROM, reinsert AND reboot."
	case !r.HasROM:
		return "Remove, Copy MEGA65.ROM, reinsert AND reboot."
	}
	return "Reboot to continue."
}

// FixMBR writes only the partition table for layout l.
func FixMBR(dev blockio.Device, l geometry.Layout) error {
	if err := dev.WriteSector(0, mbr.Build(l.FAT32, l.System)); err != nil {
		return fmt.Errorf("write MBR: %w", err)
	}
	return nil
}

type step struct {
	phase Phase
	fn    func() error
}

type run struct {
	dev  blockio.Device
	opts Options
	log  *zap.Logger
	l    geometry.Layout
	sys  syspart.Layout
}

// Format lays out dev from scratch. Cancelling ctx is honored before the
// first write and between seeded files; an interrupted run keeps whatever
// was already written. On error after the first write the returned Result
// describes the partial run.
func Format(ctx context.Context, dev blockio.Device, setters ...Option) (*Result, error) {
	opts := NewDefaultOptions(setters...)
	log := opts.Logger

	if err := opts.System.Validate(); err != nil {
		return nil, err
	}

	l, err := geometry.Calculate(dev.Sectors())
	if err != nil {
		return nil, fmt.Errorf("compute geometry: %w", err)
	}
	sys := syspart.Plan(l.System.Length).Absolute(l.System.Start)
	plan := Plan{Layout: l, System: sys, Files: opts.Files}

	log.Info("layout computed",
		zap.Uint32("device_sectors", l.DeviceSectors),
		zap.Uint32("fat32_start", l.FAT32.Start),
		zap.Uint32("fat32_sectors", l.FAT32.Length),
		zap.Uint32("system_start", l.System.Start),
		zap.Uint32("system_sectors", l.System.Length),
		zap.Uint32("clusters", l.FAT.ClusterCount),
		zap.Uint32("fat_sectors", l.FAT.FATLength),
		zap.Int("iterations", l.FAT.Iterations),
		zap.Uint32("slots", sys.SlotCount),
	)
	opts.Progress.Start(plan)

	decision := Proceed
	if opts.Confirm != nil {
		decision, err = opts.Confirm.Confirm(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("confirm: %w", err)
		}
	}
	log.Info("confirmation", zap.Stringer("decision", decision))

	if decision == Mismatch {
		return nil, ErrNotConfirmed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Layout: l, System: sys}
	observed := blockio.Observe(dev, opts.Progress.Written)

	if decision == FixMBROnly {
		opts.Progress.Phase(PhaseMBR)
		res.MBROnly = true
		return res, FixMBR(observed, l)
	}

	r := &run{dev: observed, opts: opts, log: log, l: l, sys: sys}
	for _, s := range r.steps() {
		opts.Progress.Phase(s.phase)
		log.Debug("phase", zap.String("phase", string(s.phase)))
		if err := s.fn(); err != nil {
			return res, fmt.Errorf("%s: %w", strings.ToLower(string(s.phase)), err)
		}
	}

	opts.Progress.Phase(PhaseSeed)
	if err := r.seedAll(ctx, res); err != nil {
		return res, err
	}

	log.Info("format complete",
		zap.Int("seeded", len(res.Seeded)),
		zap.Bool("rom", res.HasROM),
	)
	return res, nil
}

func (r *run) steps() []step {
	return []step{
		{PhaseMBR, r.writeMBR},
		{PhaseSystemHeader, r.writeSystemHeader},
		{PhaseSystemConfig, r.writeSystemConfig},
		{PhaseSystemErase, r.eraseSystemReserved},
		{PhaseSlotDirs, r.eraseSlotDirs},
		{PhaseBootSector, r.writeBootSectors},
		{PhaseFSInfo, r.writeFSInfo},
		{PhaseFATs, r.writeFATs},
		{PhaseRootDir, r.writeRootDir},
		{PhaseClearFAT, r.clearFATStructures},
	}
}

func (r *run) writeMBR() error {
	return FixMBR(r.dev, r.l)
}

func (r *run) writeSystemHeader() error {
	img, _ := syspart.Header(r.l.System.Length)
	r.opts.Progress.Message(r.sys.String())
	return r.dev.WriteSector(r.l.System.Start, img)
}

func (r *run) writeSystemConfig() error {
	return r.dev.WriteSector(r.l.System.Start+syspart.ConfigLBA, syspart.ConfigSector(r.opts.System))
}

func (r *run) eraseSystemReserved() error {
	start := r.l.System.Start
	return r.dev.Erase(start+syspart.ConfigLBA+1, start+syspart.ReservedSectors-1)
}

func (r *run) eraseSlotDirs() error {
	if err := r.dev.Erase(r.sys.FreezeDir, r.sys.FreezeDirEnd()); err != nil {
		return err
	}
	return r.dev.Erase(r.sys.ServiceDir, r.sys.ServiceDirEnd())
}

func (r *run) writeBootSectors() error {
	img := fat32.BootSector(r.l.FAT32.Length, r.l.FAT.FATLength)
	return r.writeAll(img, r.l.FAT32.Start+fat32.BootSectorLBA, r.l.FAT32.Start+fat32.BackupBootSectorLBA)
}

func (r *run) writeFSInfo() error {
	img := fat32.FSInfo(r.l.FAT.ClusterCount)
	return r.writeAll(img, r.l.FAT32.Start+fat32.FSInfoLBA, r.l.FAT32.Start+fat32.BackupFSInfoLBA)
}

func (r *run) writeFATs() error {
	r.opts.Progress.Message(fmt.Sprintf("Writing FATs at offsets $%X AND $%X",
		int64(r.l.FAT.FAT1)*sector.Size, int64(r.l.FAT.FAT2)*sector.Size))
	return r.writeAll(fat32.FATSector(), r.l.AbsFAT1(), r.l.AbsFAT2())
}

func (r *run) writeRootDir() error {
	return r.dev.WriteSector(r.l.AbsRootDir(), fat32.RootDirectory(r.opts.Label))
}

// clearFATStructures zeroes everything in the reserved area, the FATs and the
// root cluster that the previous phases left alone.
func (r *run) clearFATStructures() error {
	s := r.l.FAT32.Start
	fat1, fat2, root := r.l.AbsFAT1(), r.l.AbsFAT2(), r.l.AbsRootDir()
	ranges := [][2]uint32{
		{s + fat32.FSInfoLBA + 1, s + fat32.BackupBootSectorLBA - 1},
		{s + fat32.BackupFSInfoLBA + 1, fat1 - 1},
		{fat1 + 1, fat2 - 1},
		{fat2 + 1, root - 1},
		{root + 1, root + r.l.FAT.SectorsPerCluster - 1},
	}
	for _, rg := range ranges {
		if err := r.dev.Erase(rg[0], rg[1]); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) writeAll(img *sector.Image, lbas ...uint32) error {
	for _, lba := range lbas {
		if err := r.dev.WriteSector(lba, img); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) seedAll(ctx context.Context, res *Result) error {
	w := fat32.NewWriter(r.dev, fat32.VolumeFor(r.l), fat32.WithClock(r.opts.Now))

	var rejected *multierror.Error
	defer func() {
		res.Rejected = rejected.ErrorOrNil()
	}()

	for _, f := range r.opts.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.opts.Progress.Message("Pre-populating file " + f.Name)
		s, err := r.seed(w, f)
		switch {
		case err == nil:
		case rejectable(err):
			r.log.Warn("file rejected", zap.String("file", f.Name), zap.Error(err))
			r.opts.Progress.Message("!! Error writing file " + f.Name + ": " + err.Error())
			rejected = multierror.Append(rejected, fmt.Errorf("%s: %w", f.Name, err))
			continue
		default:
			return fmt.Errorf("seed %s: %w", f.Name, err)
		}

		r.log.Info("file seeded",
			zap.String("file", f.Name),
			zap.String("short_name", s.ShortName),
			zap.Int64("size", s.Size),
			zap.Uint32("first_sector", s.FirstSector),
		)
		res.Seeded = append(res.Seeded, s)
		if f.IsROM() {
			res.HasROM = true
		}
	}
	return nil
}

func rejectable(err error) bool {
	for _, target := range []error{
		fat32.ErrNameTooLong,
		fat32.ErrInvalidName,
		fat32.ErrExists,
		fat32.ErrDirectoryFull,
		fat32.ErrNoSpace,
		ErrSource,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (r *run) seed(w *fat32.Writer, f payload.File) (Seeded, error) {
	name, err := fat32.ShortName(f.Name)
	if err != nil {
		return Seeded{}, err
	}

	src, err := f.Open()
	if err != nil {
		return Seeded{}, fmt.Errorf("%w: %w", ErrSource, err)
	}
	defer src.Close()

	a, err := w.Create(name, f.Size)
	if err != nil {
		return Seeded{}, err
	}
	if err := r.copyData(src, a); err != nil {
		return Seeded{}, err
	}

	return Seeded{
		Name:        f.Name,
		ShortName:   fat32.DisplayName(name),
		Size:        f.Size,
		FirstSector: a.FirstSector,
		Clusters:    a.Clusters,
	}, nil
}

// copyData streams exactly a.Size bytes into the allocation. The tail of the
// last sector is zero.
func (r *run) copyData(src io.Reader, a fat32.Allocation) error {
	img := sector.New()
	for i := int64(0); i < a.Sectors(); i++ {
		img.Clear()
		want := min(int64(sector.Size), a.Size-i*sector.Size)
		if n, err := io.ReadFull(src, img[:want]); err != nil {
			return fmt.Errorf("%w: short read after %d of %d bytes: %w", ErrSource, i*sector.Size+int64(n), a.Size, err)
		}
		if err := r.dev.WriteSector(a.FirstSector+uint32(i), img); err != nil {
			return fmt.Errorf("write data sector: %w", err)
		}
	}
	return nil
}
