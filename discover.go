package main

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Device discovery (read-only)
type deviceInfo struct {
	Path       string
	Compatible bool
	Reason     string
}

type mountedVol struct {
	MountPoint string
	Device     string
	FSType     string
	SizeBytes  int64
}

func compatibleDevices(infos []deviceInfo) []deviceInfo {
	var out []deviceInfo
	for _, d := range infos {
		if d.Compatible {
			out = append(out, d)
		}
	}
	return out
}

func isWholeLinuxDevice(name string) bool {
	// sdX, vdX
	if len(name) == 3 && (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && name[2] >= 'a' && name[2] <= 'z' {
		return true
	}
	// nvmeXnY
	if strings.HasPrefix(name, "nvme") && !strings.Contains(name, "p") {
		parts := strings.Split(strings.TrimPrefix(name, "nvme"), "n")
		return len(parts) == 2 && parts[0] != "" && parts[1] != ""
	}
	// mmcblkX
	if strings.HasPrefix(name, "mmcblk") && !strings.Contains(name, "p") {
		return len(name) > len("mmcblk") && isDigits(name[len("mmcblk"):])
	}
	return false
}

func isPartitionLinux(name string) bool {
	// sdXN or vdXN
	if (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && len(name) >= 4 {
		return isDigits(name[3:])
	}
	// nvmeXnYpZ, mmcblkXpZ
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		return strings.Contains(name, "p")
	}
	return false
}

// isPartitionDarwin matches diskNsM and rdiskNsM.
func isPartitionDarwin(name string) bool {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == 's' && name[i+1] >= '0' && name[i+1] <= '9' {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// wholeDevice returns the whole-disk node a partition node belongs to.
func wholeDevice(dev string) string {
	dir, b := filepath.Dir(dev), filepath.Base(dev)
	switch {
	case strings.HasPrefix(b, "disk") || strings.HasPrefix(b, "rdisk"):
		// diskNsM -> diskN
		for i := 0; i+1 < len(b); i++ {
			if b[i] == 's' && b[i+1] >= '0' && b[i+1] <= '9' {
				return filepath.Join(dir, b[:i])
			}
		}
	case isPartitionLinux(b):
		// nvmeXnYpZ -> nvmeXnY, mmcblkXpZ -> mmcblkX, sdXN -> sdX
		if idx := strings.LastIndexByte(b, 'p'); idx != -1 && !strings.HasPrefix(b, "sd") && !strings.HasPrefix(b, "vd") {
			return filepath.Join(dir, b[:idx])
		}
		return filepath.Join(dir, strings.TrimRight(b, "0123456789"))
	}
	return dev
}

// resolvePathToDevice maps a device node or mount point to its device and
// mount point.
func resolvePathToDevice(p string) (device string, mountpoint string, err error) {
	p = filepath.Clean(p)
	if strings.HasPrefix(p, "/dev/") {
		return p, "", nil
	}
	dev, mnt := resolveMount(p)
	if dev == "" {
		return "", "", fmt.Errorf("cannot resolve device for %s", p)
	}
	return dev, mnt, nil
}
