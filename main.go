// m65fdisk prepares SD cards and disk images for the MEGA65.
//
// A card gets an MBR with a FAT32 data partition and a MEGA65 system
// partition, an empty FAT32 volume and, optionally, files seeded into its
// root directory from the host or from a core image.
// Cobra CLI + tcell fullscreen UI with one map cell per group of sectors.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/diskfs/go-diskfs/util"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"m65fdisk/fat32"
	"m65fdisk/fdiskui"
	"m65fdisk/format"
	"m65fdisk/geometry"
	"m65fdisk/mbr"
	"m65fdisk/payload"
	"m65fdisk/syspart"
)

/* ===================== Helpers ===================== */

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func parseSize(s string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(ss, "k"):
		mult = 1024
		ss = strings.TrimSuffix(ss, "k")
	case strings.HasSuffix(ss, "m"):
		mult = 1024 * 1024
		ss = strings.TrimSuffix(ss, "m")
	case strings.HasSuffix(ss, "g"):
		mult = 1024 * 1024 * 1024
		ss = strings.TrimSuffix(ss, "g")
	case strings.HasSuffix(ss, "t"):
		mult = 1024 * 1024 * 1024 * 1024
		ss = strings.TrimSuffix(ss, "t")
	case strings.HasSuffix(ss, "b"):
		mult = 1
		ss = strings.TrimSuffix(ss, "b")
	}
	v, err := strconv.ParseFloat(ss, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return int64(v * float64(mult)), nil
}

// newLogger builds the zap logger. Under the full-screen UI, logs go to
// file or are dropped.
func newLogger(level, file string, screen bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if screen && file == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}
	return cfg.Build()
}

func systemConfig(video, mac, diskImage string, mouse bool) (syspart.Config, error) {
	opts := []syspart.Option{syspart.WithAmigaMouse(mouse)}
	if video != "" {
		v, err := syspart.ParseVideoMode(video)
		if err != nil {
			return syspart.Config{}, err
		}
		opts = append(opts, syspart.WithVideoMode(v))
	}
	if mac != "" {
		hw, err := net.ParseMAC(mac)
		if err != nil {
			return syspart.Config{}, fmt.Errorf("%w: %w", syspart.ErrInvalidConfig, err)
		}
		opts = append(opts, syspart.WithMAC(hw))
	}
	if diskImage != "" {
		opts = append(opts, syspart.WithDefaultDiskImage(diskImage))
	}
	cfg := syspart.NewConfig(opts...)
	return cfg, cfg.Validate()
}

func showMBR(w io.Writer, f util.File) {
	fmt.Fprintln(w)
	entries, err := mbr.Read(f)
	switch {
	case errors.Is(err, mbr.ErrInvalidTable):
		fmt.Fprintln(w, "Current partition table is invalid.")
		return
	case err != nil:
		fmt.Fprintf(w, "Cannot read partition table: %v\n", err)
		return
	}
	fmt.Fprintln(w, "Current partition table:")
	for _, e := range entries {
		fmt.Fprintln(w, e)
	}
}

/* ===================== Seeding ===================== */

type seedFlags struct {
	files    []string
	manifest string
	core     string
	slot     int
	model    int
	slotSize string
}

func coreSlotSize(model int, sizeStr string) (int64, error) {
	if sizeStr == "" {
		return payload.SlotSizeForModel(model), nil
	}
	return parseSize(sizeStr)
}

// collectFiles gathers every file to seed. The returned func closes the core
// image, which must stay open until seeding is done.
func collectFiles(sf seedFlags) ([]payload.File, func(), error) {
	var (
		files []payload.File
		errs  *multierror.Error
	)
	closeFn := func() {}

	if len(sf.files) > 0 {
		fs, err := payload.HostFiles(sf.files...)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		files = append(files, fs...)
	}
	if sf.manifest != "" {
		fs, err := payload.LoadManifest(sf.manifest)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		files = append(files, fs...)
	}
	if sf.core != "" {
		fs, c, err := coreFiles(sf)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else {
			closeFn = c
		}
		files = append(files, fs...)
	}
	if err := errs.ErrorOrNil(); err != nil {
		closeFn()
		return nil, func() {}, err
	}
	return files, closeFn, nil
}

func coreFiles(sf seedFlags) ([]payload.File, func(), error) {
	size, err := coreSlotSize(sf.model, sf.slotSize)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(sf.core)
	if err != nil {
		return nil, nil, err
	}
	slots, err := payload.ScanCore(f, size, payload.MaxSlots)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	for _, s := range slots {
		if s.Index != sf.slot {
			continue
		}
		if !s.HasFiles() {
			f.Close()
			return nil, nil, fmt.Errorf("%s: slot %d has no embedded files", sf.core, sf.slot)
		}
		files, err := s.Files()
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return files, func() { f.Close() }, nil
	}
	f.Close()
	return nil, nil, fmt.Errorf("%s: no core in slot %d", sf.core, sf.slot)
}

func printOutcome(w io.Writer, res *format.Result, err error) {
	if res == nil {
		return
	}
	for _, s := range res.Seeded {
		fmt.Fprintf(w, "  %-12s %9s  @ $%08X\n", s.ShortName, humanize.IBytes(uint64(s.Size)), s.FirstSector)
	}
	if res.Rejected != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", res.Rejected)
	}
	if err != nil {
		return
	}
	if res.MBROnly {
		fmt.Fprintln(w, "MBR Re-written")
	} else {
		fmt.Fprintln(w, "SD Card has been formatted.")
	}
	fmt.Fprintln(w, res.ClosingMessage())
}

/* ===================== Main ===================== */

func main() {
	root := &cobra.Command{
		Use:   "m65fdisk",
		Short: "MEGA65 SD card partitioner and formatter",
		Long:  "Partition and format SD cards or disk images for the MEGA65: FAT32 data partition, MEGA65 system partition and optional seeded files",
	}

	// Format command
	var (
		out, sizeStr, device, label string
		video, mac, diskImage       string
		logLevel, logFile           string
		force, yes, noUI, mouse     bool
		seed                        seedFlags
	)

	formatCmd := &cobra.Command{
		Use:   "format",
		Short: "Partition and format an image or SD card",
		RunE: func(_ *cobra.Command, _ []string) error {
			if out != "" && device != "" {
				return fmt.Errorf("choose at most one of --out or --device")
			}
			if device != "" && !force {
				return fmt.Errorf("--device requires --force")
			}
			if out != "" && sizeStr == "" {
				return fmt.Errorf("--out requires --size")
			}

			screen := !noUI && isTerminal(os.Stdout)
			log, err := newLogger(logLevel, logFile, screen)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cfg, err := systemConfig(video, mac, diskImage, mouse)
			if err != nil {
				return err
			}
			volLabel := fat32.DefaultLabel
			if label != "" {
				if volLabel, err = fat32.Label(label); err != nil {
					return err
				}
			}

			files, closeSeeds, err := collectFiles(seed)
			if err != nil {
				return err
			}
			defer closeSeeds()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := prepareRequest{device: device, files: files, yes: yes}
			stdin := bufio.NewReader(os.Stdin)
			if out != "" {
				req.out = out
				if req.size, err = parseSize(sizeStr); err != nil {
					return err
				}
			} else if device == "" {
				if !isTerminal(os.Stdin) {
					return fmt.Errorf("choose --out or --device")
				}
				if req.device, err = selectDevice(stdin, os.Stdout, discoverDevices); err != nil {
					return err
				}
			}

			t, decision, err := prepareTarget(ctx, stdin, os.Stdout, req)
			if err != nil {
				return err
			}
			defer t.Close()
			log.Info("target opened",
				zap.String("path", t.name),
				zap.Bool("image", t.image),
				zap.Uint32("sectors", t.dev.Sectors()),
				zap.Stringer("decision", decision),
			)

			var (
				progress format.Progress
				ui       *fdiskui.UI
				reporter *fdiskui.Reporter
				text     *textProgress
			)
			if screen {
				if ui, err = fdiskui.NewUI(); err != nil {
					return err
				}
				reporter = fdiskui.NewReporter(ui, fdiskui.Title(t.name, t.dev.Sectors()))
				progress = reporter

				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				defer cancel()
				go func() {
					select {
					case <-ui.Stopped():
						cancel()
					case <-ctx.Done():
					}
				}()
			} else {
				text = &textProgress{out: os.Stdout}
				progress = text
			}

			res, err := format.Format(ctx, t.dev,
				format.WithLogger(log),
				format.WithProgress(progress),
				format.WithConfirm(format.Always(decision)),
				format.WithFiles(files...),
				format.WithSystemConfig(cfg),
				format.WithVolumeLabel(volLabel),
			)
			if serr := t.Sync(); serr != nil && err == nil {
				err = fmt.Errorf("sync: %w", serr)
			}
			if errors.Is(err, context.Canceled) {
				err = fdiskui.ErrInterrupted
			}
			if err != nil {
				log.Error("format failed", zap.Error(err))
			}

			if ui != nil {
				reporter.Finish(res, err)
				if !ui.IsStopped() {
					<-ui.Stopped()
				}
				ui.Close()
			} else {
				text.done()
			}

			printOutcome(os.Stdout, res, err)
			return err
		},
	}
	formatCmd.Flags().StringVar(&out, "out", "", "output image path")
	formatCmd.Flags().StringVar(&sizeStr, "size", "", "image size (e.g. 64m, 2g, 32g)")
	formatCmd.Flags().StringVar(&device, "device", "", "SD card block device (e.g. /dev/mmcblk0, /dev/disk4)")
	formatCmd.Flags().BoolVar(&force, "force", false, "required with --device")
	formatCmd.Flags().StringVar(&label, "label", "", "FAT32 volume label (default M.E.G.A.65!)")
	formatCmd.Flags().StringSliceVar(&seed.files, "file", nil, "host file to copy into the root directory (repeatable)")
	formatCmd.Flags().StringVar(&seed.manifest, "manifest", "", "YAML manifest of files to copy into the root directory")
	formatCmd.Flags().StringVar(&seed.core, "core", "", "core or flash image to take embedded files from")
	formatCmd.Flags().IntVar(&seed.slot, "slot", 1, "core slot with the embedded files")
	formatCmd.Flags().IntVar(&seed.model, "model", 0, "hardware model id; 3 selects 8 MiB slots")
	formatCmd.Flags().StringVar(&seed.slotSize, "slot-size", "", "core slot size, overrides --model")
	formatCmd.Flags().StringVar(&video, "video", "", "default video mode: pal or ntsc (default ntsc)")
	formatCmd.Flags().StringVar(&mac, "mac", "", "ethernet MAC address (default 41:41:41:41:41:41)")
	formatCmd.Flags().StringVar(&diskImage, "disk-image", "", "default disk image name (default mega65.d81)")
	formatCmd.Flags().BoolVar(&mouse, "amiga-mouse", true, "enable Amiga mouse support")
	formatCmd.Flags().BoolVar(&yes, "yes", false, "do not ask for confirmation")
	formatCmd.Flags().BoolVar(&noUI, "no-ui", false, "plain line output instead of the full-screen display")
	formatCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	formatCmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	root.AddCommand(formatCmd)

	// MBR commands
	mbrCmd := &cobra.Command{
		Use:   "mbr",
		Short: "Inspect or rewrite the partition table",
	}

	var mbrPath string
	mbrShow := &cobra.Command{
		Use:   "show",
		Short: "Print the current partition table (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			f, err := os.Open(mbrPath)
			if err != nil {
				return err
			}
			defer f.Close()
			showMBR(os.Stdout, f)
			return nil
		},
	}
	mbrShow.Flags().StringVar(&mbrPath, "path", "", "image or device")
	_ = mbrShow.MarkFlagRequired("path")

	var fixForce bool
	mbrFix := &cobra.Command{
		Use:   "fix",
		Short: "Rewrite only the partition table for the computed layout",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !fixForce {
				return fmt.Errorf("mbr fix requires --force")
			}
			t, err := openTarget(mbrPath)
			if err != nil {
				return err
			}
			defer t.Close()

			l, err := geometry.Calculate(t.dev.Sectors())
			if err != nil {
				return err
			}
			if entries, err := mbr.Read(t.file); err == nil && mbr.Matches(entries, l) {
				showMBR(os.Stdout, t.file)
				fmt.Println("Partition table already matches the computed layout.")
				return nil
			}
			if err := format.FixMBR(t.dev, l); err != nil {
				return err
			}
			if err := t.Sync(); err != nil {
				return err
			}
			showMBR(os.Stdout, t.file)
			fmt.Println("MBR Re-written")
			return nil
		},
	}
	mbrFix.Flags().StringVar(&mbrPath, "path", "", "image or device")
	mbrFix.Flags().BoolVar(&fixForce, "force", false, "required to write")
	_ = mbrFix.MarkFlagRequired("path")

	mbrCmd.AddCommand(mbrShow)
	mbrCmd.AddCommand(mbrFix)
	root.AddCommand(mbrCmd)

	// Core command
	coreCmd := &cobra.Command{
		Use:   "core",
		Short: "Inspect MEGA65 core and flash images",
	}

	var (
		coreImage, coreSize string
		coreModel           int
	)
	coreList := &cobra.Command{
		Use:   "list",
		Short: "List core slots and their embedded files",
		RunE: func(_ *cobra.Command, _ []string) error {
			size, err := coreSlotSize(coreModel, coreSize)
			if err != nil {
				return err
			}
			f, err := os.Open(coreImage)
			if err != nil {
				return err
			}
			defer f.Close()

			slots, err := payload.ScanCore(f, size, payload.MaxSlots)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				fmt.Println("No MEGA65 cores found.")
				return nil
			}
			for _, s := range slots {
				fmt.Println(s)
				if !s.HasFiles() {
					continue
				}
				files, err := s.Files()
				if err != nil {
					fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
					continue
				}
				for _, pf := range files {
					fmt.Printf("      %-16s %9s\n", pf.Name, humanize.IBytes(uint64(pf.Size)))
				}
			}
			return nil
		},
	}
	coreList.Flags().StringVar(&coreImage, "image", "", "core or flash image")
	coreList.Flags().IntVar(&coreModel, "model", 0, "hardware model id; 3 selects 8 MiB slots")
	coreList.Flags().StringVar(&coreSize, "slot-size", "", "slot size, overrides --model")
	_ = coreList.MarkFlagRequired("image")
	coreCmd.AddCommand(coreList)
	root.AddCommand(coreCmd)

	// Device discovery command (read-only; never formats)
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Device related utilities (safe, read-only)",
	}

	var listAll bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List compatible and non-compatible devices for formatting (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			infos, err := discoverDevices()
			if err != nil {
				return err
			}
			fmt.Printf("OS: %s\n", runtime.GOOS)
			fmt.Println("This is a SAFE, read-only listing. No formatting will be performed.")
			fmt.Println()
			fmt.Println("Compatible devices (usable with --device):")
			fmt.Printf("  %-18s  %-14s  %-20s  %-9s\n", "Path", "Type", "Serial", "Size")
			compat := compatibleDevices(infos)
			for _, d := range compat {
				dtype, serial := deviceDetails(d.Path)
				sizeStr := "-"
				if sz, err := deviceSize(d.Path); err == nil {
					sizeStr = humanize.IBytes(uint64(sz))
				}
				fmt.Printf("  %-18s  %-14s  %-20s  %-9s\n", d.Path, dtype, serial, sizeStr)
			}
			if len(compat) == 0 {
				fmt.Println("  <none detected>")
			}
			fmt.Println()
			if listAll {
				fmt.Println("Non-compatible/partitions (will NOT be used with --device):")
				for _, d := range infos {
					if !d.Compatible {
						reason := d.Reason
						if strings.TrimSpace(reason) == "" {
							reason = "not a whole-disk device"
						}
						fmt.Printf("  %s  (%s)\n", d.Path, reason)
					}
				}
				fmt.Println()
			}
			if mvs := listMounted(); len(mvs) > 0 {
				fmt.Println("Mounted volumes:")
				fmt.Printf("  %-24s  %-14s  %-18s  %-9s\n", "Mount", "FS", "Device", "Size")
				for _, m := range mvs {
					fmt.Printf("  %-24s  %-14s  %-18s  %-9s\n", m.MountPoint, m.FSType, m.Device, humanize.IBytes(uint64(m.SizeBytes)))
				}
				fmt.Println()
			}
			fmt.Println("Notes:")
			fmt.Println("  - " + deviceNotes)
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listAll, "all", false, "include non-compatible devices/partitions in output")
	deviceCmd.AddCommand(listCmd)

	// device info --path <mountpoint or device>
	var infoPath string
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show detailed info about a mount point or device (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			if strings.TrimSpace(infoPath) == "" {
				return fmt.Errorf("--path is required")
			}
			dev, mnt, err := resolvePathToDevice(infoPath)
			if err != nil {
				return err
			}
			whole := wholeDevice(dev)

			fmt.Println("Path info")
			fmt.Printf("  Input:   %s\n", infoPath)
			fmt.Printf("  Device:  %s\n", dev)
			if mnt != "" {
				fmt.Printf("  Mounted: %s\n", mnt)
			}
			fmt.Printf("  Whole:   %s\n", whole)
			if size, err := deviceSize(whole); err == nil {
				fmt.Printf("  Size:    %s\n", humanize.IBytes(uint64(size)))
				if sectors, _ := sectorsFor(size); sectors >= geometry.MinDeviceSectors {
					l, err := geometry.Calculate(sectors)
					if err == nil {
						fmt.Printf("  Layout:  FAT32 %s, system %s\n",
							humanize.IBytes(uint64(l.FAT32.Length)*512), humanize.IBytes(uint64(l.System.Length)*512))
					}
				}
			}
			if f, err := os.Open(whole); err == nil {
				defer f.Close()
				if desc := probeContent(f); desc != "" {
					fmt.Printf("  Content: %s\n", desc)
				}
			}
			return nil
		},
	}
	infoCmd.Flags().StringVar(&infoPath, "path", "", "mount point (e.g. /media/SD) or device path (e.g. /dev/mmcblk0)")
	_ = infoCmd.MarkFlagRequired("path")
	deviceCmd.AddCommand(infoCmd)
	root.AddCommand(deviceCmd)

	must(root.Execute())
}
