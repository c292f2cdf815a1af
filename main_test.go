package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m65fdisk/format"
	"m65fdisk/geometry"
	"m65fdisk/syspart"
)

func TestParseSize(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want int64
	}{
		{in: "512", want: 512},
		{in: "512b", want: 512},
		{in: "4k", want: 4096},
		{in: "64M", want: 64 << 20},
		{in: " 2g ", want: 2 << 30},
		{in: "1.5g", want: 3 << 29},
		{in: "1t", want: 1 << 40},
	} {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := parseSize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"", "abc", "-1m", "12x"} {
		_, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestSectorsFor(t *testing.T) {
	t.Parallel()

	n, capped := sectorsFor(64<<20 + 100)
	assert.Equal(t, uint32(131072), n)
	assert.False(t, capped)

	n, capped = sectorsFor(4 << 40)
	assert.Equal(t, uint32(0xffffffff), n)
	assert.True(t, capped)
}

func TestPromptConfirmation(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		input string
		want  format.Decision
		tries int
	}{
		{name: "delete", input: "DELETE EVERYTHING\n", want: format.Proceed, tries: 1},
		{name: "batch", input: "BATCH MODE\n", want: format.Proceed, tries: 1},
		{name: "fix mbr", input: "FIX MBR\n", want: format.FixMBROnly, tries: 1},
		{name: "retry", input: "delete everything\nyes\nDELETE EVERYTHING\n", want: format.Proceed, tries: 3},
		{name: "no newline", input: "FIX MBR", want: format.FixMBROnly, tries: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			d, err := promptConfirmation(context.Background(), bufio.NewReader(strings.NewReader(tc.input)), &out, "card.img")
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
			assert.Equal(t, tc.tries-1, strings.Count(out.String(), "Entered text does not match. Try again."))
			assert.Contains(t, out.String(), "Type DELETE EVERYTHING to continue formatting card.img")
		})
	}
}

func TestPromptConfirmationEOF(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	d, err := promptConfirmation(context.Background(), bufio.NewReader(strings.NewReader("nope\n")), &out, "x")
	require.ErrorIs(t, err, format.ErrNotConfirmed)
	assert.ErrorIs(t, err, errNoInput)
	assert.Equal(t, format.Mismatch, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = promptConfirmation(ctx, bufio.NewReader(strings.NewReader("DELETE EVERYTHING\n")), &out, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectDevice(t *testing.T) {
	t.Parallel()

	scans := 0
	discover := func() ([]deviceInfo, error) {
		scans++
		infos := []deviceInfo{
			{Path: "/dev/sda", Compatible: true},
			{Path: "/dev/sda1", Reason: "partition"},
		}
		if scans > 1 {
			infos = append(infos, deviceInfo{Path: "/dev/mmcblk0", Compatible: true})
		}
		return infos, nil
	}

	var out bytes.Buffer
	path, err := selectDevice(bufio.NewReader(strings.NewReader("r\n7\n1\n")), &out, discover)
	require.NoError(t, err)
	assert.Equal(t, "/dev/mmcblk0", path)
	assert.Equal(t, 3, scans)
	assert.Contains(t, out.String(), "Please select SD card to modify or r to rescan (0-0/r): ")
	assert.Contains(t, out.String(), "Please select SD card to modify or r to rescan (0-1/r): ")
	assert.Contains(t, out.String(), `"7" is not a device number.`)
	assert.NotContains(t, out.String(), "/dev/sda1")

	_, err = selectDevice(bufio.NewReader(strings.NewReader("")), &out, func() ([]deviceInfo, error) {
		return []deviceInfo{{Path: "/dev/sdb1", Reason: "partition"}}, nil
	})
	assert.ErrorContains(t, err, "no compatible devices")

	broken := errors.New("no /dev")
	_, err = selectDevice(bufio.NewReader(strings.NewReader("0\n")), &out, func() ([]deviceInfo, error) {
		return nil, broken
	})
	assert.ErrorIs(t, err, broken)
}

func TestDeviceNames(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name      string
		whole     bool
		partition bool
	}{
		{name: "sda", whole: true},
		{name: "sda1", partition: true},
		{name: "vdb12", partition: true},
		{name: "nvme0n1", whole: true},
		{name: "nvme0n1p2", partition: true},
		{name: "mmcblk0", whole: true},
		{name: "mmcblk0p1", partition: true},
		{name: "loop0"},
		{name: "tty0"},
	} {
		assert.Equal(t, tc.whole, isWholeLinuxDevice(tc.name), tc.name)
		assert.Equal(t, tc.partition, isPartitionLinux(tc.name), tc.name)
	}

	assert.True(t, isPartitionDarwin("disk2s1"))
	assert.True(t, isPartitionDarwin("rdisk3s2"))
	assert.False(t, isPartitionDarwin("disk4"))
}

func TestWholeDevice(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"/dev/sdb1":      "/dev/sdb",
		"/dev/sdb":       "/dev/sdb",
		"/dev/nvme0n1p3": "/dev/nvme0n1",
		"/dev/mmcblk0p1": "/dev/mmcblk0",
		"/dev/disk4s1":   "/dev/disk4",
		"/dev/rdisk4s2":  "/dev/rdisk4",
		"/dev/disk4":     "/dev/disk4",
	} {
		assert.Equal(t, want, wholeDevice(in), in)
	}
}

func TestSystemConfig(t *testing.T) {
	t.Parallel()

	cfg, err := systemConfig("", "", "", true)
	require.NoError(t, err)
	assert.Equal(t, syspart.NewConfig(), cfg)

	cfg, err = systemConfig("pal", "02:00:00:aa:bb:cc", "games.d81", false)
	require.NoError(t, err)
	assert.Equal(t, syspart.VideoPAL, cfg.Video)
	assert.Equal(t, "02:00:00:aa:bb:cc", cfg.MAC.String())
	assert.Equal(t, "games.d81", cfg.DiskImage)
	assert.False(t, cfg.AmigaMouse)

	_, err = systemConfig("secam", "", "", true)
	assert.ErrorIs(t, err, syspart.ErrInvalidConfig)

	_, err = systemConfig("", "not-a-mac", "", true)
	assert.ErrorIs(t, err, syspart.ErrInvalidConfig)

	_, err = systemConfig("", "", "a-name-that-is-far-too-long.d81", true)
	assert.ErrorIs(t, err, syspart.ErrInvalidConfig)
}

func TestCollectFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rom := filepath.Join(dir, "MEGA65.ROM")
	require.NoError(t, os.WriteFile(rom, bytes.Repeat([]byte{0xea}, 1000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	manifest := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("files:\n  - path: notes.txt\n    name: README.TXT\n"), 0o644))

	files, closeFn, err := collectFiles(seedFlags{files: []string{rom}, manifest: manifest})
	require.NoError(t, err)
	defer closeFn()

	require.Len(t, files, 2)
	assert.Equal(t, "MEGA65.ROM", files[0].Name)
	assert.Equal(t, int64(1000), files[0].Size)
	assert.Equal(t, "README.TXT", files[1].Name)

	_, _, err = collectFiles(seedFlags{
		files: []string{filepath.Join(dir, "missing.bin")},
		core:  filepath.Join(dir, "missing.cor"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.bin")
	assert.Contains(t, err.Error(), "missing.cor")
}

func TestCoreSlotSize(t *testing.T) {
	t.Parallel()

	size, err := coreSlotSize(3, "")
	require.NoError(t, err)
	assert.Equal(t, int64(8<<20), size)

	size, err = coreSlotSize(3, "1m")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), size)
}

func TestImageMBRRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "card.img")
	tg, err := createImage(path, 32<<20, false)
	require.NoError(t, err)
	defer tg.Close()

	assert.True(t, tg.image)
	assert.Equal(t, uint32(65536), tg.dev.Sectors())

	var out bytes.Buffer
	showMBR(&out, tg.file)
	assert.Contains(t, out.String(), "Current partition table is invalid.")

	l, err := geometry.Calculate(tg.dev.Sectors())
	require.NoError(t, err)
	require.NoError(t, format.FixMBR(tg.dev, l))
	require.NoError(t, tg.Sync())

	out.Reset()
	showMBR(&out, tg.file)
	assert.Contains(t, out.String(), "Current partition table:")
	assert.Contains(t, out.String(), "0C")
	assert.Contains(t, out.String(), "41")

	reopened, err := openTarget(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint32(65536), reopened.dev.Sectors())

	_, err = createImage(filepath.Join(t.TempDir(), "tiny.img"), 100, false)
	assert.Error(t, err)
}

func TestPrepareTargetLeavesImageUntilConfirmed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "card.img")
	old := bytes.Repeat([]byte("MEGA65"), 1000)
	require.NoError(t, os.WriteFile(path, old, 0o644))

	var out bytes.Buffer
	_, d, err := prepareTarget(context.Background(), bufio.NewReader(strings.NewReader("nope\n")), &out,
		prepareRequest{out: path, size: 32 << 20})
	require.ErrorIs(t, err, format.ErrNotConfirmed)
	assert.Equal(t, format.Mismatch, d)
	assert.Contains(t, out.String(), "Entered text does not match. Try again.")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, old, got, "image must be untouched")

	_, _, err = prepareTarget(context.Background(), bufio.NewReader(strings.NewReader("DELETE EVERYTHING\n")), &out,
		prepareRequest{out: path, size: 4096})
	require.ErrorIs(t, err, geometry.ErrDeviceTooSmall)
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, old, got, "a plan that cannot be built writes nothing")
}

func TestPrepareTargetCreatesImage(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		answer string
		want   format.Decision
		keeps  bool
	}{
		{name: "delete", answer: "DELETE EVERYTHING\n", want: format.Proceed},
		{name: "fix mbr", answer: "FIX MBR\n", want: format.FixMBROnly, keeps: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "card.img")
			old := bytes.Repeat([]byte{0xa5}, 4096)
			require.NoError(t, os.WriteFile(path, old, 0o644))

			var out bytes.Buffer
			tg, d, err := prepareTarget(context.Background(), bufio.NewReader(strings.NewReader(tc.answer)), &out,
				prepareRequest{out: path, size: 32 << 20})
			require.NoError(t, err)
			defer tg.Close()

			assert.Equal(t, tc.want, d)
			assert.Equal(t, uint32(65536), tg.dev.Sectors())
			assert.Contains(t, out.String(), "FAT32 partition:")

			head := make([]byte, len(old))
			_, err = tg.file.ReadAt(head, 0)
			require.NoError(t, err)
			if tc.keeps {
				assert.Equal(t, old, head)
			} else {
				assert.Equal(t, make([]byte, len(old)), head)
			}
		})
	}

	path := filepath.Join(t.TempDir(), "new.img")
	tg, d, err := prepareTarget(context.Background(), nil, io.Discard, prepareRequest{out: path, size: 32 << 20, yes: true})
	require.NoError(t, err)
	defer tg.Close()
	assert.Equal(t, format.Proceed, d)
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(32<<20), st.Size())
}

func TestPrintOutcome(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printOutcome(&out, &format.Result{
		Seeded: []format.Seeded{{Name: "MEGA65.ROM", ShortName: "MEGA65.ROM", Size: 131072, FirstSector: 4772}},
		HasROM: true,
	}, nil)
	assert.Contains(t, out.String(), "MEGA65.ROM")
	assert.Contains(t, out.String(), "$000012A4")
	assert.Contains(t, out.String(), "SD Card has been formatted.")
	assert.Contains(t, out.String(), "Reboot to continue.")

	out.Reset()
	printOutcome(&out, &format.Result{MBROnly: true}, nil)
	assert.Contains(t, out.String(), "MBR Re-written")

	out.Reset()
	printOutcome(&out, &format.Result{}, errors.New("boom"))
	assert.NotContains(t, out.String(), "formatted")

	out.Reset()
	printOutcome(&out, nil, nil)
	assert.Empty(t, out.String())
}

func TestTextProgress(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := &textProgress{out: &out}
	var _ format.Progress = p

	p.Phase(format.PhaseMBR)
	p.Written(0, 1)
	p.Written(10, 2047)
	p.Message("hello")
	p.done()

	assert.Equal(t, "Writing partition table...\n  hello\n2048 sectors (1.0 MiB) written\n", out.String())
}
