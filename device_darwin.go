//go:build darwin

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	dkiocGetBlockSize  = 0x40046418 // _IOR('d', 24, uint32)
	dkiocGetBlockCount = 0x40086419 // _IOR('d', 25, uint64)
)

// getDeviceSize returns the size of a file or disk node in bytes.
func getDeviceSize(f *os.File) (int64, error) {
	if size, err := f.Seek(0, io.SeekEnd); err == nil && size > 0 {
		_, _ = f.Seek(0, io.SeekStart)
		return size, nil
	}

	var blockSize uint32
	var blockCount uint64
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), dkiocGetBlockSize, uintptr(unsafe.Pointer(&blockSize))); errno != 0 {
		return 0, fmt.Errorf("cannot get block size: %v", errno)
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), dkiocGetBlockCount, uintptr(unsafe.Pointer(&blockCount))); errno != 0 {
		return 0, fmt.Errorf("cannot get block count: %v", errno)
	}
	return int64(blockSize) * int64(blockCount), nil
}

// openBlockDevice opens a disk node for writing under an exclusive flock.
func openBlockDevice(path string) (*os.File, int64, func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, 0, nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, 0, nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	size, err := getDeviceSize(f)
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	closeFn := func() error {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return f.Close()
	}
	return f, size, closeFn, nil
}

func deviceSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return getDeviceSize(f)
}

func probeContent(*os.File) string {
	return ""
}

func discoverDevices() ([]deviceInfo, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	infos := []deviceInfo{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "disk") && !strings.HasPrefix(name, "rdisk") {
			continue
		}
		path := filepath.Join("/dev", name)
		if isPartitionDarwin(name) {
			infos = append(infos, deviceInfo{Path: path, Compatible: false, Reason: "partition"})
		} else {
			infos = append(infos, deviceInfo{Path: path, Compatible: true})
		}
	}
	return infos, nil
}

func statfsMounts() []unix.Statfs_t {
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil || n <= 0 {
		return nil
	}
	buf := make([]unix.Statfs_t, n)
	if _, err := unix.Getfsstat(buf, unix.MNT_NOWAIT); err != nil {
		return nil
	}
	return buf
}

func resolveMount(target string) (device string, mountpoint string) {
	for _, st := range statfsMounts() {
		on := unix.ByteSliceToString(st.Mntonname[:])
		if filepath.Clean(on) == filepath.Clean(target) {
			return unix.ByteSliceToString(st.Mntfromname[:]), on
		}
	}
	return "", ""
}

func listMounted() []mountedVol {
	var out []mountedVol
	for _, st := range statfsMounts() {
		out = append(out, mountedVol{
			MountPoint: filepath.Clean(unix.ByteSliceToString(st.Mntonname[:])),
			Device:     unix.ByteSliceToString(st.Mntfromname[:]),
			FSType:     unix.ByteSliceToString(st.Fstypename[:]),
			SizeBytes:  int64(st.Blocks) * int64(st.Bsize),
		})
	}
	return out
}

func deviceDetails(string) (dtype, serial string) {
	return "Disk", "-"
}

const deviceNotes = "Whole disks are typically /dev/diskN. Partitions like /dev/diskNsM are not compatible."
