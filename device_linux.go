//go:build linux

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/siderolabs/go-blockdevice/v2/blkid"
	"github.com/siderolabs/go-blockdevice/v2/block"
)

// openBlockDevice opens path for writing and holds an exclusive lock on it
// until the returned close func runs.
func openBlockDevice(path string) (*os.File, int64, func() error, error) {
	bd, err := block.NewFromPath(path, block.OpenForWrite())
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to open blockdevice %s: %w", path, err)
	}

	if err = bd.Lock(true); err != nil {
		bd.Close()
		return nil, 0, nil, fmt.Errorf("failed to lock blockdevice %s: %w", path, err)
	}

	size, err := bd.GetSize()
	if err != nil {
		bd.Unlock()
		bd.Close()
		return nil, 0, nil, fmt.Errorf("failed to get size of %s: %w", path, err)
	}

	closeFn := func() error {
		bd.Unlock()
		return bd.Close()
	}
	return bd.File(), int64(size), closeFn, nil
}

// deviceSize returns the size of a block device without locking it.
func deviceSize(path string) (int64, error) {
	bd, err := block.NewFromPath(path)
	if err != nil {
		return 0, err
	}
	defer bd.Close()

	size, err := bd.GetSize()
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}

// probeContent describes what is currently on the device, or "" when
// nothing is recognized.
func probeContent(f *os.File) string {
	info, err := blkid.Probe(f, blkid.WithSkipLocking(true))
	if err != nil || info.Name == "" {
		return ""
	}
	desc := info.Name
	if info.Label != nil && *info.Label != "" {
		desc += fmt.Sprintf(" %q", *info.Label)
	}
	if n := len(info.Parts); n > 0 {
		desc += fmt.Sprintf(", %d partitions", n)
	}
	return desc
}

func discoverDevices() ([]deviceInfo, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	infos := []deviceInfo{}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join("/dev", name)
		switch {
		case isWholeLinuxDevice(name):
			infos = append(infos, deviceInfo{Path: path, Compatible: true})
		case isPartitionLinux(name):
			infos = append(infos, deviceInfo{Path: path, Compatible: false, Reason: "partition"})
		case strings.HasPrefix(name, "loop"):
			infos = append(infos, deviceInfo{Path: path, Compatible: false, Reason: "loop device"})
		}
	}
	return infos, nil
}

// resolveMount maps a mount point to the device mounted on it using
// /proc/self/mounts.
func resolveMount(target string) (device string, mountpoint string) {
	b, err := os.ReadFile("/proc/self/mounts")
	if err != nil {
		return "", ""
	}
	for _, ln := range strings.Split(string(b), "\n") {
		// <src> <target> <fstype> <opts> ...
		fields := strings.Fields(ln)
		if len(fields) < 2 {
			continue
		}
		if filepath.Clean(fields[1]) == filepath.Clean(target) {
			return fields[0], fields[1]
		}
	}
	return "", ""
}

func listMounted() []mountedVol {
	return nil
}

// deviceDetails returns the media type and serial number from sysfs.
func deviceDetails(path string) (dtype, serial string) {
	dtype, serial = "Disk", "-"
	sysPath := filepath.Join("/sys/block", filepath.Base(path))
	if _, err := os.Stat(sysPath); err != nil {
		sysPath = filepath.Join("/sys/class/block", filepath.Base(path))
	}
	if b, err := os.ReadFile(filepath.Join(sysPath, "removable")); err == nil {
		if strings.TrimSpace(string(b)) == "1" {
			dtype = "Removable Disk"
		} else {
			dtype = "Fixed Disk"
		}
	}
	if b, err := os.ReadFile(filepath.Join(sysPath, "device", "serial")); err == nil {
		serial = strings.TrimSpace(string(b))
	}
	if strings.HasPrefix(filepath.Base(path), "mmcblk") {
		dtype = "SD/MMC"
	}
	return dtype, serial
}

const deviceNotes = "Whole disks: /dev/sdX, /dev/vdX, /dev/nvmeXnY, /dev/mmcblkX. Partitions (digits) are not compatible."
